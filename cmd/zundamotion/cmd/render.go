package cmd

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/zundamotion/zundamotion/internal/cache"
	"github.com/zundamotion/zundamotion/internal/ffmpeg"
	"github.com/zundamotion/zundamotion/internal/pipeline/audiophase"
	"github.com/zundamotion/zundamotion/internal/pipeline/core"
	"github.com/zundamotion/zundamotion/internal/pipeline/finalize"
	"github.com/zundamotion/zundamotion/internal/pipeline/videophase"
	"github.com/zundamotion/zundamotion/internal/plugins"
	"github.com/zundamotion/zundamotion/internal/script"
	"github.com/zundamotion/zundamotion/internal/timeline"
	"github.com/zundamotion/zundamotion/internal/tts"
)

var (
	renderOutput      string
	renderDefaults    string
	renderNoCache     bool
	renderRefresh     bool
	renderJobs        int
	renderClipWorkers int
	renderTimeline    string
	renderNoTimeline  bool
	renderSubFile     string
	renderVoiceReport bool
	renderKeepTemp    bool
	renderCopyOnly    bool
)

// renderCmd renders a screenplay into an MP4.
var renderCmd = &cobra.Command{
	Use:   "render <script.yaml>",
	Short: "Render a YAML screenplay to MP4",
	Long: `Render runs the full pipeline: voice synthesis, per-line clip rendering,
and final assembly. Intermediate artifacts are cached under the cache
directory so unchanged lines re-render instantly.`,
	Args: cobra.ExactArgs(1),
	RunE: runRender,
}

func init() {
	f := renderCmd.Flags()
	f.StringVarP(&renderOutput, "output", "o", "output/video.mp4", "output video path")
	f.StringVar(&renderDefaults, "defaults", "", "defaults YAML merged under the screenplay")
	f.BoolVar(&renderNoCache, "no-cache", false, "bypass the artifact cache entirely")
	f.BoolVar(&renderRefresh, "cache-refresh", false, "recompute artifacts, overwriting cached ones")
	f.IntVar(&renderJobs, "jobs", 0, "transcoder thread budget (0 = auto)")
	f.IntVar(&renderClipWorkers, "clip-workers", 0, "concurrent clip renders (0 = config default)")
	f.StringVar(&renderTimeline, "timeline", "md", "timeline export format (md, csv, both)")
	f.BoolVar(&renderNoTimeline, "no-timeline", false, "skip the timeline export")
	f.StringVar(&renderSubFile, "subtitle-file", "", "subtitle file export format (srt, ass, both)")
	f.BoolVar(&renderVoiceReport, "voice-report", false, "write a per-character voice usage report")
	f.BoolVar(&renderKeepTemp, "keep-temp", false, "keep the temp directory for debugging")
	f.BoolVar(&renderCopyOnly, "final-copy-only", false, "fail instead of re-encoding the final join")
	rootCmd.AddCommand(renderCmd)
}

func runRender(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if renderJobs > 0 {
		cfg.Render.Jobs = renderJobs
	}
	if renderClipWorkers > 0 {
		cfg.Render.ClipWorkers = renderClipWorkers
	}
	logger := setupLogger(cfg)

	sc, err := script.Load(args[0], renderDefaults)
	if err != nil {
		return err
	}

	detector := ffmpeg.NewBinaryDetector(cfg.FFmpeg.BinaryPath, cfg.FFmpeg.ProbePath)
	info, err := detector.Detect(ctx)
	if err != nil {
		return err
	}
	if err := detector.EnsureMinVersion(ctx, cfg.FFmpeg.MinMajorVersion); err != nil {
		return err
	}
	logger.Info("transcoder detected",
		slog.String("ffmpeg", info.FFmpegPath),
		slog.String("version", info.Version))

	runner := ffmpeg.NewRunner(info.FFmpegPath, cfg.FFmpeg.RunTimeout, cfg.FFmpeg.KillGrace, logger)
	runner.SetLogCommands(cfg.FFmpeg.LogCommands)

	cacheMode := cache.ModeNormal
	switch {
	case renderNoCache:
		cacheMode = cache.ModeDisabled
	case renderRefresh:
		cacheMode = cache.ModeRefresh
	}
	cacheCfg := cfg.Cache
	if cacheCfg.Dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("resolving cache directory: %w", err)
		}
		cacheCfg.Dir = filepath.Join(home, ".zundamotion", "cache")
	}
	cm, err := cache.New(cacheCfg, os.TempDir(), cacheMode, logger)
	if err != nil {
		return err
	}

	registry := plugins.NewRegistry(logger)
	specs := plugins.Discover(plugins.DefaultRoots(sc.Plugins.Paths), sc.Plugins.Allow, sc.Plugins.Deny, logger)
	registry.Install(specs)

	state := core.NewState(sc, cfg)
	state.ScriptPath = args[0]
	state.OutputPath = renderOutput
	state.Cache = cm
	state.FFmpegVersion = info.Version
	state.Runner = runner
	state.Prober = ffmpeg.NewProber(info.FFprobePath)
	state.HW = ffmpeg.NewHWDetector(runner, logger).Detect(ctx)
	state.Caps = ffmpeg.NewCapabilities(runner, logger)
	state.Mode = ffmpeg.NewModeController(ffmpeg.FilterMode(cfg.FFmpeg.HWFilterMode), logger)
	state.TTS = tts.NewClient(cfg.TTS, logger)
	state.Registry = registry

	orch := core.NewOrchestrator(logger,
		audiophase.New(logger),
		videophase.New(logger),
		finalize.New(logger, renderCopyOnly),
	)
	orch.KeepTemp(renderKeepTemp)

	if err := orch.Execute(ctx, state); err != nil {
		if errors.Is(err, core.ErrNoScenes) {
			logger.Warn("screenplay has no scenes, nothing to render")
			return nil
		}
		return err
	}

	if err := writeExports(state, logger); err != nil {
		return err
	}

	if cacheMode == cache.ModeNormal || cacheMode == cache.ModeRefresh {
		if err := cm.Evict(); err != nil {
			logger.Warn("cache eviction failed", slog.Any("error", err))
		}
	}

	fmt.Println(state.OutputPath)
	return nil
}

// writeExports produces the timeline, subtitle-file, and voice-report
// companions next to the output video.
func writeExports(state *core.State, logger *slog.Logger) error {
	base := strings.TrimSuffix(state.OutputPath, filepath.Ext(state.OutputPath))

	if !renderNoTimeline {
		switch renderTimeline {
		case "md", "csv":
			if err := state.Timeline.SaveFile(base+".timeline."+renderTimeline, renderTimeline); err != nil {
				return err
			}
		case "both":
			if err := state.Timeline.SaveFile(base+".timeline.md", "md"); err != nil {
				return err
			}
			if err := state.Timeline.SaveFile(base+".timeline.csv", "csv"); err != nil {
				return err
			}
		default:
			return fmt.Errorf("unknown timeline format %q", renderTimeline)
		}
	}

	if renderSubFile != "" {
		if renderSubFile != "srt" && renderSubFile != "ass" && renderSubFile != "both" {
			return fmt.Errorf("unknown subtitle file format %q", renderSubFile)
		}
		if renderSubFile == "srt" || renderSubFile == "both" {
			if err := writeTo(base+".srt", state.Timeline.WriteSRT); err != nil {
				return err
			}
		}
		if renderSubFile == "ass" || renderSubFile == "both" {
			style := timeline.DefaultASSStyle()
			style.PlayResX = state.Script.Video.Width
			style.PlayResY = state.Script.Video.Height
			err := writeTo(base+".ass", func(w io.Writer) error {
				return state.Timeline.WriteASS(w, style)
			})
			if err != nil {
				return err
			}
		}
	}

	if renderVoiceReport {
		if err := writeTo(base+".voices.md", state.Timeline.WriteVoiceReport); err != nil {
			return err
		}
	}

	logger.Debug("exports written", slog.String("base", base))
	return nil
}

func writeTo(path string, write func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
