// Package script loads and validates the YAML screenplay that drives the
// rendering pipeline. A screenplay is merged over a defaults document before
// validation; the resulting Config is immutable for the rest of the run.
package script

import (
	"path/filepath"

	"github.com/zundamotion/zundamotion/internal/models"
)

// Config is the merged, validated screenplay.
type Config struct {
	Video      VideoSettings      `yaml:"video"`
	Audio      AudioSettings      `yaml:"audio"`
	Subtitle   SubtitleStyle      `yaml:"subtitle"`
	BGM        *BGMSettings       `yaml:"bgm,omitempty"`
	Background BackgroundSettings `yaml:"background"`
	Plugins    PluginSettings     `yaml:"plugins"`
	Defaults   Defaults           `yaml:"defaults"`
	Scenes     []Scene            `yaml:"scenes"`
}

// VideoSettings is the target video encode description.
type VideoSettings struct {
	Width   int    `yaml:"width"`
	Height  int    `yaml:"height"`
	FPS     int    `yaml:"fps"`
	PixFmt  string `yaml:"pix_fmt"`
	Profile string `yaml:"profile"`
	Level   string `yaml:"level"`
	CRF     int    `yaml:"crf"`
	CQ      int    `yaml:"cq"`
	Bitrate string `yaml:"bitrate"`
}

// Params converts to the pipeline's VideoParams.
func (v VideoSettings) Params() models.VideoParams {
	return models.VideoParams{
		Width:   v.Width,
		Height:  v.Height,
		FPS:     v.FPS,
		PixFmt:  v.PixFmt,
		Profile: v.Profile,
		Level:   v.Level,
		CRF:     v.CRF,
		CQ:      v.CQ,
		Bitrate: v.Bitrate,
	}
}

// AudioSettings is the target audio encode description.
type AudioSettings struct {
	SampleRate int    `yaml:"sample_rate"`
	Channels   int    `yaml:"channels"`
	Codec      string `yaml:"codec"`
	Bitrate    string `yaml:"bitrate"`
}

// Params converts to the pipeline's AudioParams.
func (a AudioSettings) Params() models.AudioParams {
	return models.AudioParams{
		SampleRate: a.SampleRate,
		Channels:   a.Channels,
		Codec:      a.Codec,
		Bitrate:    a.Bitrate,
	}
}

// SubtitleStyle describes how subtitle PNGs are rasterized and placed.
type SubtitleStyle struct {
	Enabled      *bool           `yaml:"enabled,omitempty"`
	FontPath     string          `yaml:"font_path"`
	FontSize     int             `yaml:"font_size"`
	Color        string          `yaml:"color"`
	OutlineColor string          `yaml:"outline_color"`
	OutlineWidth int             `yaml:"outline_width"`
	LineSpacing  int             `yaml:"line_spacing"`
	MaxWidth     int             `yaml:"max_width"`
	MarginBottom int             `yaml:"margin_bottom"`
	Effects      []models.Effect `yaml:"effects,omitempty"`
}

// IsEnabled defaults to true when unset.
func (s SubtitleStyle) IsEnabled() bool {
	return s.Enabled == nil || *s.Enabled
}

// BGMSettings configures background music for a scene or the final video.
type BGMSettings struct {
	Path    string  `yaml:"path"`
	Volume  float64 `yaml:"volume"`
	Start   float64 `yaml:"start"`
	FadeIn  float64 `yaml:"fade_in"`
	FadeOut float64 `yaml:"fade_out"`
}

// BackgroundSettings mirrors models.BackgroundLayout in YAML form; pointer
// fields allow per-scene/per-line overrides to touch single keys only.
type BackgroundSettings struct {
	Fit       string           `yaml:"fit"`
	FillColor string           `yaml:"fill_color"`
	Anchor    string           `yaml:"anchor"`
	Position  *models.Position `yaml:"position,omitempty"`
}

// Layout resolves to the pipeline's BackgroundLayout, falling back to
// defaults for unset fields.
func (b BackgroundSettings) Layout() models.BackgroundLayout {
	layout := models.DefaultBackgroundLayout()
	if b.Fit != "" {
		layout.Fit = models.FitMode(b.Fit)
	}
	if b.FillColor != "" {
		layout.FillColor = b.FillColor
	}
	if b.Anchor != "" {
		layout.Anchor = models.Anchor(b.Anchor)
	}
	if b.Position != nil {
		layout.Position = *b.Position
	}
	return layout
}

// Merged overlays non-zero fields of o on top of b.
func (b BackgroundSettings) Merged(o *BackgroundSettings) BackgroundSettings {
	if o == nil {
		return b
	}
	out := b
	if o.Fit != "" {
		out.Fit = o.Fit
	}
	if o.FillColor != "" {
		out.FillColor = o.FillColor
	}
	if o.Anchor != "" {
		out.Anchor = o.Anchor
	}
	if o.Position != nil {
		out.Position = o.Position
	}
	return out
}

// PluginSettings configures plugin discovery.
type PluginSettings struct {
	Paths []string `yaml:"paths,omitempty"`
	Allow []string `yaml:"allow,omitempty"`
	Deny  []string `yaml:"deny,omitempty"`
}

// CharacterDefaults describes where a character's art lives and its default
// placement.
type CharacterDefaults struct {
	ImageDir      string           `yaml:"image_dir"`
	Scale         float64          `yaml:"scale"`
	Anchor        string           `yaml:"anchor"`
	Position      *models.Position `yaml:"position,omitempty"`
	FaceAnim      *bool            `yaml:"face_anim,omitempty"`
	EnterEffect   string           `yaml:"enter"`
	EnterDuration float64          `yaml:"enter_duration"`
	LeaveEffect   string           `yaml:"leave"`
	LeaveDuration float64          `yaml:"leave_duration"`
}

// FaceAnimEnabled defaults to true when unset.
func (c CharacterDefaults) FaceAnimEnabled() bool {
	return c.FaceAnim == nil || *c.FaceAnim
}

// Image returns the path to an expression image under the character's dir.
func (c CharacterDefaults) Image(expression string) string {
	return filepath.Join(c.ImageDir, expression+".png")
}

// FaceImage returns the path to a face-animation part image
// (eyes_close, mouth_half, mouth_open).
func (c CharacterDefaults) FaceImage(part string) string {
	return filepath.Join(c.ImageDir, "face", part+".png")
}

// Defaults carries screenplay-wide fallbacks for talk lines.
type Defaults struct {
	SpeakerID   int                          `yaml:"speaker_id"`
	SpeakerName string                       `yaml:"speaker_name"`
	Speed       float64                      `yaml:"speed"`
	Pitch       float64                      `yaml:"pitch"`
	ReadingMode string                       `yaml:"reading_mode"` // ruby, none
	Characters  map[string]CharacterDefaults `yaml:"characters,omitempty"`
}

// Scene is one screenplay scene: a background plus an ordered line sequence.
type Scene struct {
	ID         string              `yaml:"id"`
	BG         string              `yaml:"bg"`
	BGM        *BGMSettings        `yaml:"bgm,omitempty"`
	Transition *Transition         `yaml:"transition,omitempty"`
	FGOverlays []ForegroundOverlay `yaml:"fg_overlays,omitempty"`
	Background *BackgroundSettings `yaml:"background,omitempty"`
	Lines      []Line              `yaml:"lines"`
}

// Transition describes how a scene joins the next one.
type Transition struct {
	Type     string  `yaml:"type"`
	Duration float64 `yaml:"duration"`
}

// ForegroundOverlay is a static image layered over a scene or line.
type ForegroundOverlay struct {
	Path     string           `yaml:"path"`
	Anchor   string           `yaml:"anchor"`
	Position *models.Position `yaml:"position,omitempty"`
	Scale    float64          `yaml:"scale"`
	Opacity  float64          `yaml:"opacity"`
}

// LineKind distinguishes talk lines from waits.
type LineKind string

const (
	KindTalk LineKind = "talk"
	KindWait LineKind = "wait"
)

// Line is one screenplay line. A line with Text is a talk line; a line with
// Wait set (and no Text) is a wait line. A line with neither renders as a
// minimum-length silence; setting both is a validation error.
type Line struct {
	Text        string   `yaml:"text,omitempty"`
	Reading     string   `yaml:"reading,omitempty"`
	SpeakerID   int      `yaml:"speaker_id,omitempty"`
	SpeakerName string   `yaml:"speaker_name,omitempty"`
	Speed       float64  `yaml:"speed,omitempty"`
	Pitch       float64  `yaml:"pitch,omitempty"`
	Wait        *float64 `yaml:"wait,omitempty"`

	VoiceLayers  []VoiceLayer  `yaml:"voice_layers,omitempty"`
	SoundEffects []SoundEffect `yaml:"sound_effects,omitempty"`

	Characters []CharacterSpec     `yaml:"characters,omitempty"`
	Insert     *Insert             `yaml:"insert,omitempty"`
	FGOverlays []ForegroundOverlay `yaml:"fg_overlays,omitempty"`

	Subtitle          *SubtitleOverride   `yaml:"subtitle,omitempty"`
	ScreenEffects     []models.Effect     `yaml:"screen_effects,omitempty"`
	BackgroundEffects []models.Effect     `yaml:"background_effects,omitempty"`
	Background        *BackgroundSettings `yaml:"background,omitempty"`
}

// Kind reports whether the line is talk or wait.
func (l Line) Kind() LineKind {
	if l.Wait != nil && l.Text == "" {
		return KindWait
	}
	return KindTalk
}

// VoiceLayer is one extra synthesized voice mixed under the main line.
type VoiceLayer struct {
	Text      string  `yaml:"text"`
	SpeakerID int     `yaml:"speaker_id,omitempty"`
	Speed     float64 `yaml:"speed,omitempty"`
	Pitch     float64 `yaml:"pitch,omitempty"`
	Volume    float64 `yaml:"volume,omitempty"`
	Delay     float64 `yaml:"delay,omitempty"`
}

// SoundEffect is an audio file mixed into a line at an offset.
type SoundEffect struct {
	Path   string  `yaml:"path"`
	Volume float64 `yaml:"volume,omitempty"`
	Delay  float64 `yaml:"delay,omitempty"`
}

// CharacterSpec places a character on screen for one line.
type CharacterSpec struct {
	Name          string           `yaml:"name"`
	Expression    string           `yaml:"expression,omitempty"`
	Visible       *bool            `yaml:"visible,omitempty"`
	Scale         float64          `yaml:"scale,omitempty"`
	Anchor        string           `yaml:"anchor,omitempty"`
	Position      *models.Position `yaml:"position,omitempty"`
	Enter         string           `yaml:"enter,omitempty"`
	EnterDuration float64          `yaml:"enter_duration,omitempty"`
	Leave         string           `yaml:"leave,omitempty"`
	LeaveDuration float64          `yaml:"leave_duration,omitempty"`
	Effects       []models.Effect  `yaml:"effects,omitempty"`
}

// IsVisible defaults to true when unset.
func (c CharacterSpec) IsVisible() bool {
	return c.Visible == nil || *c.Visible
}

// Insert is an image or video inset shown during a line.
type Insert struct {
	Path     string           `yaml:"path"`
	Scale    float64          `yaml:"scale,omitempty"`
	Anchor   string           `yaml:"anchor,omitempty"`
	Position *models.Position `yaml:"position,omitempty"`
}

// SubtitleOverride adjusts the subtitle for a single line.
type SubtitleOverride struct {
	Text    string `yaml:"text,omitempty"`
	Visible *bool  `yaml:"visible,omitempty"`
}

// IsVisible defaults to true when unset.
func (s SubtitleOverride) IsVisible() bool {
	return s.Visible == nil || *s.Visible
}
