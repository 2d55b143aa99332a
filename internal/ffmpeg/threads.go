package ffmpeg

import (
	"os"
	"runtime"
	"strconv"

	"github.com/zundamotion/zundamotion/internal/models"
)

// Environment variables controlling filter thread counts.
const (
	EnvFilterThreads           = "FFMPEG_FILTER_THREADS"
	EnvFilterThreadsCap        = "FFMPEG_FILTER_THREADS_CAP"
	EnvFilterComplexThreads    = "FFMPEG_FILTER_COMPLEX_THREADS"
	EnvFilterComplexThreadsCap = "FFMPEG_FILTER_COMPLEX_THREADS_CAP"
)

// ThreadPlan holds the per-invocation thread counts. Zero means "let the
// transcoder decide" and emits no flag.
type ThreadPlan struct {
	FilterThreads        int
	FilterComplexThreads int
}

// PlanThreads sizes filter threads so that workers parallel transcoder
// processes do not oversubscribe the machine. GPU paths need fewer CPU
// filter threads than the software path.
func PlanThreads(workers int, hwKind models.HWEncoderKind, mode FilterMode) ThreadPlan {
	if workers < 1 {
		workers = 1
	}
	cpus := runtime.NumCPU()

	share := cpus / workers
	if share < 1 {
		share = 1
	}
	// The GPU does the heavy lifting on the cuda path; two CPU threads per
	// process cover the up/download stages.
	if mode == FilterModeCUDA || (mode == FilterModeAuto && hwKind != models.HWEncoderNone) {
		if share > 2 {
			share = 2
		}
	}

	plan := ThreadPlan{FilterThreads: share, FilterComplexThreads: share}

	if v := envInt(EnvFilterThreads); v > 0 {
		plan.FilterThreads = v
	}
	if v := envInt(EnvFilterComplexThreads); v > 0 {
		plan.FilterComplexThreads = v
	}
	if cap := envInt(EnvFilterThreadsCap); cap > 0 && plan.FilterThreads > cap {
		plan.FilterThreads = cap
	}
	if cap := envInt(EnvFilterComplexThreadsCap); cap > 0 && plan.FilterComplexThreads > cap {
		plan.FilterComplexThreads = cap
	}
	return plan
}

// Args renders the plan as global transcoder flags.
func (p ThreadPlan) Args() []string {
	var args []string
	if p.FilterThreads > 0 {
		args = append(args, "-filter_threads", strconv.Itoa(p.FilterThreads))
	}
	if p.FilterComplexThreads > 0 {
		args = append(args, "-filter_complex_threads", strconv.Itoa(p.FilterComplexThreads))
	}
	return args
}

func envInt(name string) int {
	raw := os.Getenv(name)
	if raw == "" {
		return 0
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return 0
	}
	return v
}
