// Package config provides configuration management for zundamotion using Viper.
// It supports configuration from files, environment variables, and defaults.
//
// This covers application-level settings only (cache, binaries, TTS endpoint,
// rendering defaults, logging). The screenplay itself is loaded separately by
// the script package.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Default configuration values.
const (
	defaultCacheMaxSize      = 2 * 1024 * 1024 * 1024 // 2GB
	defaultCacheTTLHours     = 240
	defaultTTSBaseURL        = "http://127.0.0.1:50021"
	defaultTTSTimeout        = 60 * time.Second
	defaultTTSRetryAttempts  = 5
	defaultRunTimeout        = 10 * time.Minute
	defaultKillGrace         = 3 * time.Second
	defaultMinMajorVersion   = 6
	defaultClipWorkers       = 2
	defaultProfileFirstClips = 4
	defaultSubtitleWorkers   = 2
)

// Config holds all application configuration.
type Config struct {
	Logging LoggingConfig `mapstructure:"logging"`
	Cache   CacheConfig   `mapstructure:"cache"`
	FFmpeg  FFmpegConfig  `mapstructure:"ffmpeg"`
	TTS     TTSConfig     `mapstructure:"tts"`
	Render  RenderConfig  `mapstructure:"render"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`  // debug, info, warn, error
	Format     string `mapstructure:"format"` // json, text
	AddSource  bool   `mapstructure:"add_source"`
	TimeFormat string `mapstructure:"time_format"`
}

// CacheConfig holds artifact cache configuration.
type CacheConfig struct {
	Dir      string   `mapstructure:"dir"`       // Cache directory (empty = ~/.zundamotion/cache)
	MaxSize  ByteSize `mapstructure:"max_size"`  // Size cap before oldest-atime eviction
	TTLHours int      `mapstructure:"ttl_hours"` // Entries idle longer than this are evicted
}

// FFmpegConfig holds transcoder binary configuration.
type FFmpegConfig struct {
	BinaryPath      string        `mapstructure:"binary_path"`       // Path to ffmpeg binary (empty = auto-detect)
	ProbePath       string        `mapstructure:"probe_path"`        // Path to ffprobe binary (empty = auto-detect)
	MinMajorVersion int           `mapstructure:"min_major_version"` // Startup version gate
	RunTimeout      time.Duration `mapstructure:"run_timeout"`       // Per-invocation budget
	KillGrace       time.Duration `mapstructure:"kill_grace"`        // SIGTERM -> SIGKILL grace
	HWFilterMode    string        `mapstructure:"hw_filter_mode"`    // auto, cuda, cpu
	LogCommands     bool          `mapstructure:"log_commands"`      // Log full command lines at debug
}

// TTSConfig holds speech-synthesis service configuration.
type TTSConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	Timeout        time.Duration `mapstructure:"timeout"`
	RetryAttempts  int           `mapstructure:"retry_attempts"`
	DefaultSpeaker int           `mapstructure:"default_speaker"`
}

// RenderConfig holds rendering pipeline configuration.
type RenderConfig struct {
	Jobs              int `mapstructure:"jobs"`                // Transcoder thread budget (0 = auto)
	ClipWorkers       int `mapstructure:"clip_workers"`        // Concurrent per-line clip renders
	ProfileFirstClips int `mapstructure:"profile_first_clips"` // Auto-tune sample size
	SubtitleWorkers   int `mapstructure:"subtitle_workers"`    // Subtitle PNG raster workers
}

// Load reads configuration from file and environment variables.
// Environment variables take precedence over file configuration and are
// prefixed with ZUNDAMOTION, using underscores for nesting.
// Example: ZUNDAMOTION_TTS_BASE_URL=http://voicevox:50021.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	SetDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.zundamotion")
	}

	v.SetEnvPrefix("ZUNDAMOTION")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		// Config file not found is OK - we'll use defaults and env vars
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// SetDefaults configures default values for all configuration options.
// This should be called before reading the config file.
func SetDefaults(v *viper.Viper) {
	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.add_source", false)
	v.SetDefault("logging.time_format", time.RFC3339)

	// Cache defaults
	v.SetDefault("cache.dir", "")
	v.SetDefault("cache.max_size", defaultCacheMaxSize)
	v.SetDefault("cache.ttl_hours", defaultCacheTTLHours)

	// FFmpeg defaults
	v.SetDefault("ffmpeg.binary_path", "")
	v.SetDefault("ffmpeg.probe_path", "")
	v.SetDefault("ffmpeg.min_major_version", defaultMinMajorVersion)
	v.SetDefault("ffmpeg.run_timeout", defaultRunTimeout)
	v.SetDefault("ffmpeg.kill_grace", defaultKillGrace)
	v.SetDefault("ffmpeg.hw_filter_mode", "auto")
	v.SetDefault("ffmpeg.log_commands", false)

	// TTS defaults
	v.SetDefault("tts.base_url", defaultTTSBaseURL)
	v.SetDefault("tts.timeout", defaultTTSTimeout)
	v.SetDefault("tts.retry_attempts", defaultTTSRetryAttempts)
	v.SetDefault("tts.default_speaker", 1)

	// Render defaults
	v.SetDefault("render.jobs", 0)
	v.SetDefault("render.clip_workers", defaultClipWorkers)
	v.SetDefault("render.profile_first_clips", defaultProfileFirstClips)
	v.SetDefault("render.subtitle_workers", defaultSubtitleWorkers)
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}

	if c.Cache.MaxSize < 0 {
		return fmt.Errorf("cache.max_size must not be negative")
	}
	if c.Cache.TTLHours < 0 {
		return fmt.Errorf("cache.ttl_hours must not be negative")
	}

	validModes := map[string]bool{"auto": true, "cuda": true, "cpu": true}
	if !validModes[c.FFmpeg.HWFilterMode] {
		return fmt.Errorf("ffmpeg.hw_filter_mode must be one of: auto, cuda, cpu")
	}
	if c.FFmpeg.MinMajorVersion < 1 {
		return fmt.Errorf("ffmpeg.min_major_version must be at least 1")
	}

	if c.TTS.BaseURL == "" {
		return fmt.Errorf("tts.base_url is required")
	}
	if c.TTS.RetryAttempts < 1 {
		return fmt.Errorf("tts.retry_attempts must be at least 1")
	}

	if c.Render.ClipWorkers < 0 {
		return fmt.Errorf("render.clip_workers must not be negative")
	}
	if c.Render.ProfileFirstClips < 1 {
		return fmt.Errorf("render.profile_first_clips must be at least 1")
	}

	return nil
}
