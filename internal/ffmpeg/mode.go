package ffmpeg

import (
	"log/slog"
	"os"
	"strings"
	"sync"
)

// FilterMode selects which filter path the graph builder may use.
type FilterMode string

const (
	// FilterModeAuto lets each clip pick GPU or CPU based on probed
	// capabilities and overlay composition.
	FilterModeAuto FilterMode = "auto"
	// FilterModeCUDA forces the CUDA filter path where possible.
	FilterModeCUDA FilterMode = "cuda"
	// FilterModeCPU forces software filters for everything.
	FilterModeCPU FilterMode = "cpu"
)

// EnvHWFilterMode overrides the initial filter mode for the process.
const EnvHWFilterMode = "HW_FILTER_MODE"

// ValidFilterMode reports whether m is a recognized mode.
func ValidFilterMode(m FilterMode) bool {
	switch m {
	case FilterModeAuto, FilterModeCUDA, FilterModeCPU:
		return true
	}
	return false
}

// ModeController holds the process-wide filter mode. Transitions are
// monotonic toward cpu: once a GPU failure demotes the mode, it never goes
// back up for the rest of the run.
type ModeController struct {
	mu     sync.Mutex
	mode   FilterMode
	logger *slog.Logger
}

// NewModeController initializes the controller from the configured mode,
// with HW_FILTER_MODE taking precedence when set to a valid value.
func NewModeController(configured FilterMode, logger *slog.Logger) *ModeController {
	if logger == nil {
		logger = slog.Default()
	}
	mode := configured
	if !ValidFilterMode(mode) {
		mode = FilterModeAuto
	}
	if env := FilterMode(strings.ToLower(os.Getenv(EnvHWFilterMode))); ValidFilterMode(env) {
		mode = env
	}
	return &ModeController{mode: mode, logger: logger}
}

// Mode returns the current filter mode.
func (m *ModeController) Mode() FilterMode {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mode
}

// DemoteToCPU switches the process to the CPU filter path. The reason is
// logged once per actual transition. Demotion is irreversible.
func (m *ModeController) DemoteToCPU(reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.mode == FilterModeCPU {
		return
	}
	m.logger.Warn("switching to cpu filter path for the rest of the run",
		slog.String("previous_mode", string(m.mode)),
		slog.String("reason", reason),
	)
	m.mode = FilterModeCPU
}

// GPUAllowed reports whether the current mode permits GPU filters.
func (m *ModeController) GPUAllowed() bool {
	return m.Mode() != FilterModeCPU
}
