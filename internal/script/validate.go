package script

import (
	"fmt"

	"github.com/zundamotion/zundamotion/internal/models"
)

var validFits = map[string]bool{
	"": true, "stretch": true, "contain": true, "cover": true,
	"fit_width": true, "fit_height": true,
}

var validEnterLeave = map[string]bool{
	"": true, "none": true, "fade": true,
	"slide_left": true, "slide_right": true, "slide_top": true, "slide_bottom": true,
}

var validReadingModes = map[string]bool{"ruby": true, "none": true}

// Validate checks the merged screenplay for structural errors. It returns
// the first problem found as a *ValidationError.
func (c *Config) Validate() error {
	if c.Video.Width <= 0 || c.Video.Height <= 0 {
		return &ValidationError{Path: "video", Msg: "width and height must be positive"}
	}
	if c.Video.FPS <= 0 {
		return &ValidationError{Path: "video.fps", Msg: "fps must be positive"}
	}
	if c.Audio.SampleRate <= 0 {
		return &ValidationError{Path: "audio.sample_rate", Msg: "sample_rate must be positive"}
	}
	if !validReadingModes[c.Defaults.ReadingMode] {
		return &ValidationError{Path: "defaults.reading_mode", Msg: "must be one of: ruby, none"}
	}
	if err := validateBackground("background", &c.Background); err != nil {
		return err
	}

	seen := map[string]bool{}
	for i := range c.Scenes {
		scene := &c.Scenes[i]
		path := fmt.Sprintf("scenes[%d]", i)

		if scene.ID == "" {
			return &ValidationError{Path: path, Msg: "scene id is required"}
		}
		if seen[scene.ID] {
			return &ValidationError{Path: path, Msg: fmt.Sprintf("duplicate scene id %q", scene.ID)}
		}
		seen[scene.ID] = true

		if scene.BG == "" {
			return &ValidationError{Path: path + ".bg", Msg: "background is required"}
		}
		if err := validateBackground(path+".background", scene.Background); err != nil {
			return err
		}

		for j := range scene.Lines {
			if err := validateLine(fmt.Sprintf("%s.lines[%d]", path, j), &scene.Lines[j], c); err != nil {
				return err
			}
		}
	}
	return nil
}

func validateBackground(path string, b *BackgroundSettings) error {
	if b == nil {
		return nil
	}
	if !validFits[b.Fit] {
		return &ValidationError{Path: path + ".fit", Msg: fmt.Sprintf("unknown fit %q", b.Fit)}
	}
	if b.Anchor != "" && !models.ValidAnchor(models.Anchor(b.Anchor)) {
		return &ValidationError{Path: path + ".anchor", Msg: fmt.Sprintf("unknown anchor %q", b.Anchor)}
	}
	return nil
}

func validateLine(path string, l *Line, c *Config) error {
	hasText := l.Text != ""
	hasWait := l.Wait != nil

	// A line with neither text nor wait is allowed; the audio phase turns
	// it into a minimum-length silence.
	if hasText && hasWait {
		return &ValidationError{Path: path, Msg: "line cannot have both text and wait"}
	}

	if hasWait && *l.Wait < 0 {
		return &ValidationError{Path: path + ".wait", Msg: "wait duration must not be negative"}
	}

	for k, ch := range l.Characters {
		cpath := fmt.Sprintf("%s.characters[%d]", path, k)
		if ch.Name == "" {
			return &ValidationError{Path: cpath, Msg: "character name is required"}
		}
		if _, ok := c.Defaults.Characters[ch.Name]; !ok {
			return &ValidationError{Path: cpath, Msg: fmt.Sprintf("character %q is not declared in defaults.characters", ch.Name)}
		}
		if ch.Anchor != "" && !models.ValidAnchor(models.Anchor(ch.Anchor)) {
			return &ValidationError{Path: cpath + ".anchor", Msg: fmt.Sprintf("unknown anchor %q", ch.Anchor)}
		}
		if !validEnterLeave[ch.Enter] {
			return &ValidationError{Path: cpath + ".enter", Msg: fmt.Sprintf("unknown enter effect %q", ch.Enter)}
		}
		if !validEnterLeave[ch.Leave] {
			return &ValidationError{Path: cpath + ".leave", Msg: fmt.Sprintf("unknown leave effect %q", ch.Leave)}
		}
		if ch.EnterDuration < 0 || ch.LeaveDuration < 0 {
			return &ValidationError{Path: cpath, Msg: "enter/leave durations must not be negative"}
		}
	}

	for k, layer := range l.VoiceLayers {
		if layer.Text == "" {
			return &ValidationError{Path: fmt.Sprintf("%s.voice_layers[%d].text", path, k), Msg: "layer text is required"}
		}
	}
	for k, se := range l.SoundEffects {
		if se.Path == "" {
			return &ValidationError{Path: fmt.Sprintf("%s.sound_effects[%d].path", path, k), Msg: "sound effect path is required"}
		}
	}
	if l.Insert != nil && l.Insert.Path == "" {
		return &ValidationError{Path: path + ".insert.path", Msg: "insert path is required"}
	}
	return validateBackground(path+".background", l.Background)
}
