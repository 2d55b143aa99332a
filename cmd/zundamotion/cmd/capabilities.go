package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/zundamotion/zundamotion/internal/ffmpeg"
)

var capabilitiesJSON bool

// capabilitiesCmd probes the transcoder installation and prints what the
// renderer will be able to use.
var capabilitiesCmd = &cobra.Command{
	Use:   "capabilities",
	Short: "Probe ffmpeg hardware and filter capabilities",
	Long: `Capabilities locates ffmpeg/ffprobe, runs the hardware encoder and GPU
filter smoke tests, and reports the result. The same probes run implicitly
at the start of every render.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		logger := setupLogger(cfg)

		detector := ffmpeg.NewBinaryDetector(cfg.FFmpeg.BinaryPath, cfg.FFmpeg.ProbePath)
		info, err := detector.Detect(ctx)
		if err != nil {
			return err
		}

		runner := ffmpeg.NewRunner(info.FFmpegPath, cfg.FFmpeg.RunTimeout, cfg.FFmpeg.KillGrace, logger)
		hw := ffmpeg.NewHWDetector(runner, logger).Detect(ctx)
		filters := ffmpeg.NewCapabilities(runner, logger).Probe(ctx)

		if capabilitiesJSON {
			out := struct {
				Binary   *ffmpeg.BinaryInfo `json:"binary"`
				Hardware ffmpeg.HWAccelInfo `json:"hardware"`
				Filters  ffmpeg.Summary     `json:"filters"`
			}{info, hw, filters}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		}

		fmt.Printf("ffmpeg:       %s (version %s)\n", info.FFmpegPath, info.Version)
		fmt.Printf("ffprobe:      %s\n", info.FFprobePath)
		fmt.Printf("hw encoder:   %s\n", encoderLabel(hw))
		fmt.Printf("cuda overlay: %v\n", filters.CUDAOverlay)
		fmt.Printf("gpu scale:    %s\n", valueOr(filters.GPUScale, "none"))
		fmt.Printf("opencl:       %v\n", filters.OpenCL)
		return nil
	},
}

func encoderLabel(hw ffmpeg.HWAccelInfo) string {
	if hw.Encoder == "" {
		return "none (libx264)"
	}
	return fmt.Sprintf("%s (%s)", hw.Encoder, hw.Kind)
}

func valueOr(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

func init() {
	capabilitiesCmd.Flags().BoolVar(&capabilitiesJSON, "json", false, "output as JSON")
	rootCmd.AddCommand(capabilitiesCmd)
}
