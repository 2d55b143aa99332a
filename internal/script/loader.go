package script

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ValidationError marks a screenplay problem the user must fix. The CLI maps
// it to exit code 2.
type ValidationError struct {
	Path string // YAML-ish path to the offending node, e.g. "scenes[2].lines[0]"
	Msg  string
}

func (e *ValidationError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("script validation: %s", e.Msg)
	}
	return fmt.Sprintf("script validation: %s: %s", e.Path, e.Msg)
}

// Load reads the screenplay at scriptPath, merges it over the defaults
// document at defaultsPath (optional, empty = no defaults file), applies
// built-in fallbacks, and validates the result.
func Load(scriptPath, defaultsPath string) (*Config, error) {
	merged := map[string]any{}

	if defaultsPath != "" {
		base, err := loadYAMLMap(defaultsPath)
		if err != nil {
			return nil, fmt.Errorf("loading defaults: %w", err)
		}
		merged = base
	}

	doc, err := loadYAMLMap(scriptPath)
	if err != nil {
		return nil, fmt.Errorf("loading script: %w", err)
	}
	merged = deepMerge(merged, doc)

	// Round-trip the merged tree through YAML into the typed config.
	raw, err := yaml.Marshal(merged)
	if err != nil {
		return nil, fmt.Errorf("re-encoding merged script: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, &ValidationError{Msg: err.Error()}
	}

	cfg.applyFallbacks()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// loadYAMLMap reads a YAML document into a generic string-keyed map.
func loadYAMLMap(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	out := map[string]any{}
	if err := yaml.Unmarshal(data, &out); err != nil {
		return nil, &ValidationError{Msg: fmt.Sprintf("%s: %s", path, err)}
	}
	return out, nil
}

// deepMerge overlays src on top of dst. Maps merge recursively; any other
// value in src replaces the value in dst. Neither input is mutated.
func deepMerge(dst, src map[string]any) map[string]any {
	out := make(map[string]any, len(dst)+len(src))
	for k, v := range dst {
		out[k] = v
	}
	for k, v := range src {
		if sv, ok := v.(map[string]any); ok {
			if dv, ok := out[k].(map[string]any); ok {
				out[k] = deepMerge(dv, sv)
				continue
			}
		}
		out[k] = v
	}
	return out
}

// applyFallbacks fills built-in defaults for fields the merged document
// left unset.
func (c *Config) applyFallbacks() {
	if c.Video.Width == 0 {
		c.Video.Width = 1920
	}
	if c.Video.Height == 0 {
		c.Video.Height = 1080
	}
	if c.Video.FPS == 0 {
		c.Video.FPS = 30
	}
	if c.Video.PixFmt == "" {
		c.Video.PixFmt = "yuv420p"
	}
	if c.Video.CRF == 0 {
		c.Video.CRF = 23
	}
	if c.Video.CQ == 0 {
		c.Video.CQ = 23
	}
	if c.Audio.SampleRate == 0 {
		c.Audio.SampleRate = 48000
	}
	if c.Audio.Channels == 0 {
		c.Audio.Channels = 2
	}
	if c.Audio.Codec == "" {
		c.Audio.Codec = "aac"
	}
	if c.Subtitle.FontSize == 0 {
		c.Subtitle.FontSize = 48
	}
	if c.Subtitle.Color == "" {
		c.Subtitle.Color = "#ffffff"
	}
	if c.Subtitle.OutlineColor == "" {
		c.Subtitle.OutlineColor = "#000000"
	}
	if c.Subtitle.OutlineWidth == 0 {
		c.Subtitle.OutlineWidth = 4
	}
	if c.Subtitle.MarginBottom == 0 {
		c.Subtitle.MarginBottom = 60
	}
	if c.Defaults.SpeakerID == 0 {
		c.Defaults.SpeakerID = 1
	}
	if c.Defaults.Speed == 0 {
		c.Defaults.Speed = 1.0
	}
	if c.Defaults.ReadingMode == "" {
		c.Defaults.ReadingMode = "ruby"
	}
	if c.BGM != nil && c.BGM.Volume == 0 {
		c.BGM.Volume = 0.2
	}
	for i := range c.Scenes {
		if c.Scenes[i].BGM != nil && c.Scenes[i].BGM.Volume == 0 {
			c.Scenes[i].BGM.Volume = 0.2
		}
	}
}
