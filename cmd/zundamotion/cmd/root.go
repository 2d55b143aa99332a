// Package cmd implements the CLI commands for zundamotion.
package cmd

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/zundamotion/zundamotion/internal/config"
	"github.com/zundamotion/zundamotion/internal/ffmpeg"
	"github.com/zundamotion/zundamotion/internal/observability"
	"github.com/zundamotion/zundamotion/internal/script"
	"github.com/zundamotion/zundamotion/internal/version"
)

// cfgFile holds the config file path from the CLI flag.
var cfgFile string

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:     "zundamotion",
	Short:   "YAML screenplay to MP4 renderer",
	Version: version.Short(),
	Long: `zundamotion renders a YAML screenplay into an MP4 video: it synthesizes
character voices through a VOICEVOX-compatible engine, composites characters,
subtitles, and effects over scene backgrounds with ffmpeg, and assembles the
scenes into a single output file.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command and maps errors to process exit codes:
// 0 success, 2 for screenplay validation and missing-dependency errors,
// 1 for everything else.
func Execute() int {
	err := rootCmd.Execute()
	if err == nil {
		return 0
	}
	fmt.Fprintln(os.Stderr, "Error:", err)

	var validationErr *script.ValidationError
	var dependencyErr *ffmpeg.DependencyError
	if errors.As(err, &validationErr) || errors.As(err, &dependencyErr) {
		return 2
	}
	return 1
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml or $HOME/.zundamotion/config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "", "log format (text, json)")
}

// loadConfig reads the application config and applies CLI logging overrides.
// Flags beat environment variables which beat the config file.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	if rootCmd.PersistentFlags().Changed("log-level") {
		level, _ := rootCmd.PersistentFlags().GetString("log-level")
		cfg.Logging.Level = strings.ToLower(level)
	}
	if rootCmd.PersistentFlags().Changed("log-format") {
		format, _ := rootCmd.PersistentFlags().GetString("log-format")
		cfg.Logging.Format = strings.ToLower(format)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// setupLogger builds the process logger and installs it as the default.
func setupLogger(cfg *config.Config) *slog.Logger {
	logger := observability.NewLoggerWithWriter(cfg.Logging, os.Stderr)
	observability.SetDefault(logger)
	return logger
}
