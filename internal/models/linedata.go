package models

// LineType distinguishes spoken lines from pure waits.
type LineType string

const (
	LineTalk LineType = "talk"
	LineWait LineType = "wait"
)

// BackgroundKind identifies what a background source is.
type BackgroundKind string

const (
	BackgroundImage BackgroundKind = "image"
	BackgroundVideo BackgroundKind = "video"
)

// BackgroundSource is the chosen background input for one clip render.
// When Normalized and PreScaled are set the input is already at the target
// resolution/fps and the filter graph passes it through untouched.
type BackgroundSource struct {
	Path       string         `json:"path"`
	Kind       BackgroundKind `json:"kind"`
	StartTime  float64        `json:"start_time"` // Seek offset into scene-base/run-base
	Normalized bool           `json:"normalized"`
	PreScaled  bool           `json:"pre_scaled"`
	CacheKey   string         `json:"cache_key,omitempty"` // Upstream hash for cache chaining
}

// LineData is the Audio Phase output for one line, consumed by the Video
// Phase. It references its source line by scene ID and zero-based index
// rather than holding a back-pointer into the screenplay.
type LineData struct {
	Type         LineType  `json:"type"`
	SceneID      string    `json:"scene_id"`
	LineIndex    int       `json:"line_index"`
	AudioPath    string    `json:"audio_path,omitempty"`
	AudioKey     string    `json:"audio_key,omitempty"` // Cache-key hash of the synthesized audio
	Duration     float64   `json:"duration"`
	PreDuration  float64   `json:"pre_duration"`
	PostDuration float64   `json:"post_duration"`
	Text         string    `json:"text,omitempty"`     // Display text after reading-markup parsing
	TTSText      string    `json:"tts_text,omitempty"` // Synthesis text after reading-markup parsing
	FaceAnim     *FaceAnim `json:"face_anim,omitempty"`
}

// LineID returns the canonical line identifier "<scene>_<index+1>".
func (d LineData) LineID() string {
	return LineID(d.SceneID, d.LineIndex)
}

// TotalDuration is the clip duration including enter/leave padding.
func (d LineData) TotalDuration() float64 {
	return d.PreDuration + d.Duration + d.PostDuration
}

// Validate enforces the LineData invariants.
func (d LineData) Validate() error {
	if d.Type == LineWait && d.AudioPath != "" {
		return ErrWaitWithAudio
	}
	if d.Duration < 0 {
		return ErrNegativeDuration
	}
	if d.FaceAnim != nil && d.FaceAnim.TargetName == "" {
		return ErrFaceAnimWithoutTarget
	}
	return nil
}
