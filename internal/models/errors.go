package models

import (
	"errors"
	"fmt"
)

// Invariant violations surfaced by LineData.Validate.
var (
	ErrWaitWithAudio         = errors.New("wait line must not carry audio")
	ErrNegativeDuration      = errors.New("duration must not be negative")
	ErrFaceAnimWithoutTarget = errors.New("face animation requires a target name")
)

// LineID builds the canonical line identifier from a scene ID and a
// zero-based line index.
func LineID(sceneID string, index int) string {
	return fmt.Sprintf("%s_%d", sceneID, index+1)
}
