package videophase

import (
	"encoding/json"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sort"

	"github.com/shirou/gopsutil/v4/cpu"

	"github.com/zundamotion/zundamotion/internal/models"
)

// hintFileName is the persisted auto-tune decision inside the cache dir.
const hintFileName = "autotune_hint.json"

// autotuneHint is a persisted profiling decision. A hint only applies when
// the transcoder build and detected hardware still match.
type autotuneHint struct {
	FFmpegVersion string  `json:"ffmpeg_version"`
	HWKind        string  `json:"hw_kind"`
	DecidedMode   string  `json:"decided_mode"`
	ForceCPU      bool    `json:"force_cpu"`
	ClipWorkers   int     `json:"clip_workers"`
	CPURatio      float64 `json:"cpu_ratio"`
	AvgElapsed    float64 `json:"avg_elapsed"`
	P90Elapsed    float64 `json:"p90_elapsed"`
}

func hintPath(cacheDir string) string {
	return filepath.Join(cacheDir, hintFileName)
}

// loadHint reads a previously saved hint, discarding it when the ffmpeg
// version or hardware kind changed.
func loadHint(cacheDir, ffmpegVersion string, kind models.HWEncoderKind, logger *slog.Logger) (autotuneHint, bool) {
	raw, err := os.ReadFile(hintPath(cacheDir))
	if err != nil {
		return autotuneHint{}, false
	}
	var hint autotuneHint
	if err := json.Unmarshal(raw, &hint); err != nil {
		logger.Warn("discarding unreadable autotune hint", slog.Any("error", err))
		return autotuneHint{}, false
	}
	if hint.FFmpegVersion != ffmpegVersion || hint.HWKind != string(kind) {
		logger.Debug("autotune hint stale",
			slog.String("hint_version", hint.FFmpegVersion),
			slog.String("hint_hw", hint.HWKind))
		return autotuneHint{}, false
	}
	return hint, true
}

// saveHint persists the decision for future runs. Failure is non-fatal.
func saveHint(cacheDir string, hint autotuneHint, logger *slog.Logger) {
	raw, err := json.MarshalIndent(hint, "", "  ")
	if err != nil {
		return
	}
	if err := os.WriteFile(hintPath(cacheDir), raw, 0o644); err != nil {
		logger.Warn("saving autotune hint failed", slog.Any("error", err))
	}
}

// elapsedStats reduces the per-clip wall times of the profiling sample to
// their mean and 90th percentile, in seconds.
func elapsedStats(samples []float64) (avg, p90 float64) {
	if len(samples) == 0 {
		return 0, 0
	}
	sorted := append([]float64(nil), samples...)
	sort.Float64s(sorted)

	var sum float64
	for _, s := range sorted {
		sum += s
	}
	idx := int(math.Ceil(0.9*float64(len(sorted)))) - 1
	if idx < 0 {
		idx = 0
	}
	return sum / float64(len(sorted)), sorted[idx]
}

// decideTuning converts a profiling sample into a tuning decision. When at
// least half the profiled clips composited overlays on the CPU, GPU
// filtering buys little and wider CPU parallelism wins.
func decideTuning(profiled, cpuOverlay, currentWorkers int) (forceCPU bool, workers int) {
	if profiled == 0 || cpuOverlay*2 < profiled {
		return false, currentWorkers
	}
	cpus, err := cpu.Counts(true)
	if err != nil || cpus < 1 {
		cpus = 2
	}
	workers = cpus / 2
	if workers < 2 {
		workers = 2
	}
	if workers > 4 {
		workers = 4
	}
	return true, workers
}
