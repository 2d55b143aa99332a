package core

import (
	"errors"
	"fmt"
)

// Common pipeline errors.
var (
	ErrPhaseNotFound    = errors.New("phase not found")
	ErrAlreadyExecuted  = errors.New("pipeline already executed")
	ErrNilState         = errors.New("pipeline state is nil")
	ErrNoScenes         = errors.New("screenplay has no scenes")
	ErrNoSceneClips     = errors.New("no scene clips were produced")
	ErrCopyOnlyMismatch = errors.New("scene clips have mismatched encode parameters")
)

// PhaseError wraps an error that occurred during phase execution.
type PhaseError struct {
	PhaseID   string
	PhaseName string
	Err       error
}

func (e *PhaseError) Error() string {
	return fmt.Sprintf("phase %s (%s) failed: %v", e.PhaseID, e.PhaseName, e.Err)
}

func (e *PhaseError) Unwrap() error {
	return e.Err
}

// NewPhaseError creates a new PhaseError.
func NewPhaseError(phaseID, phaseName string, err error) *PhaseError {
	return &PhaseError{
		PhaseID:   phaseID,
		PhaseName: phaseName,
		Err:       err,
	}
}
