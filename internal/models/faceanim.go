package models

// MouthState is the mouth shape for one segment of speech.
type MouthState string

const (
	MouthClose MouthState = "close"
	MouthHalf  MouthState = "half"
	MouthOpen  MouthState = "open"
)

// MouthSeg is one mouth-shape interval. Segments are non-overlapping,
// ordered by Start, and together cover [0, audio duration].
type MouthSeg struct {
	Start float64    `json:"start"`
	End   float64    `json:"end"`
	State MouthState `json:"state"`
}

// BlinkSeg is one eyes-closed interval. The baseline is eyes open, so
// blinks are sparse and never overlap.
type BlinkSeg struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// FaceAnimMeta captures the parameters the timeline was computed with.
// It participates in cache keys so parameter changes invalidate artifacts.
type FaceAnimMeta struct {
	FPS              int     `json:"fps"`
	ThrHalfRatio     float64 `json:"thr_half_ratio"`
	ThrOpenRatio     float64 `json:"thr_open_ratio"`
	MinBlinkInterval float64 `json:"min_blink_interval"`
	MaxBlinkInterval float64 `json:"max_blink_interval"`
	CloseFrames      int     `json:"close_frames"`
}

// DefaultFaceAnimMeta returns the standard face-animation tuning.
func DefaultFaceAnimMeta() FaceAnimMeta {
	return FaceAnimMeta{
		FPS:              10,
		ThrHalfRatio:     0.2,
		ThrOpenRatio:     0.5,
		MinBlinkInterval: 2.0,
		MaxBlinkInterval: 5.0,
		CloseFrames:      2,
	}
}

// FaceAnim is the per-line face animation plan: mouth segments keyed to the
// speech waveform and a deterministic blink schedule.
type FaceAnim struct {
	TargetName string       `json:"target_name"`
	Mouth      []MouthSeg   `json:"mouth"`
	Eyes       []BlinkSeg   `json:"eyes"`
	Meta       FaceAnimMeta `json:"meta"`
}
