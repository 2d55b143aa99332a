package core

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/zundamotion/zundamotion/internal/observability"
)

// Phase is one sequential stage of the rendering pipeline.
type Phase interface {
	// ID returns a stable identifier for logging and error reporting.
	ID() string

	// Name returns a human-readable phase name.
	Name() string

	// Run executes the phase against the shared state.
	Run(ctx context.Context, state *State) error
}

// Orchestrator runs the pipeline phases in order with a shared temp
// directory for intermediate files.
type Orchestrator struct {
	phases   []Phase
	logger   *slog.Logger
	keepTemp bool

	mu       sync.Mutex
	executed bool
}

// NewOrchestrator creates an orchestrator over the given phases.
func NewOrchestrator(logger *slog.Logger, phases ...Phase) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		phases: phases,
		logger: observability.WithComponent(logger, "pipeline"),
	}
}

// KeepTemp disables temp-directory cleanup for debugging.
func (o *Orchestrator) KeepTemp(v bool) { o.keepTemp = v }

// Execute runs all phases sequentially. The temp directory is created before
// the first phase and removed after the last one, success or failure.
func (o *Orchestrator) Execute(ctx context.Context, state *State) error {
	if state == nil {
		return ErrNilState
	}

	o.mu.Lock()
	if o.executed {
		o.mu.Unlock()
		return ErrAlreadyExecuted
	}
	o.executed = true
	o.mu.Unlock()

	if len(state.Script.Scenes) == 0 {
		return ErrNoScenes
	}

	logger := observability.WithRunID(o.logger, state.RunID)

	tempDir, err := os.MkdirTemp("", "zundamotion-*")
	if err != nil {
		return fmt.Errorf("creating temp directory: %w", err)
	}
	state.TempDir = tempDir
	defer func() {
		if o.keepTemp {
			logger.Info("keeping temp directory", slog.String("dir", tempDir))
			return
		}
		if err := os.RemoveAll(tempDir); err != nil {
			logger.Warn("failed to remove temp directory",
				slog.String("dir", tempDir), slog.String("error", err.Error()))
		}
	}()

	state.Report.StartedAt = time.Now()
	logger.Info("pipeline started",
		slog.Int("phases", len(o.phases)),
		slog.Int("scenes", len(state.Script.Scenes)))

	for _, phase := range o.phases {
		select {
		case <-ctx.Done():
			return fmt.Errorf("pipeline cancelled before phase %s: %w", phase.ID(), ctx.Err())
		default:
		}

		phaseLogger := logger.With(slog.String("phase", phase.ID()))
		done := observability.TimedOperation(ctx, phaseLogger, phase.Name())
		err := phase.Run(ctx, state)
		done()
		if err != nil {
			return NewPhaseError(phase.ID(), phase.Name(), err)
		}
	}

	state.Report.Elapsed = time.Since(state.Report.StartedAt)
	if state.Mode != nil {
		state.Report.FinalMode = state.Mode.Mode()
	}
	logger.Info("pipeline finished", state.Report.LogAttrs()...)
	return nil
}
