// Package plan resolves screenplay lines into concrete render inputs:
// character placements with pixel positions, enter/leave padding, and the
// face-animation target. Both the audio and video phases consult it so
// durations and overlays agree.
package plan

import (
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"

	"github.com/zundamotion/zundamotion/internal/filtergraph"
	"github.com/zundamotion/zundamotion/internal/models"
	"github.com/zundamotion/zundamotion/internal/script"
)

// defaultEffectDuration applies when an enter/leave effect names no duration.
const defaultEffectDuration = 0.5

func isSlide(e models.EnterLeaveEffect) bool {
	switch e {
	case models.EffectSlideLeft, models.EffectSlideRight,
		models.EffectSlideTop, models.EffectSlideBottom:
		return true
	}
	return false
}

func normalizeEffect(s string) models.EnterLeaveEffect {
	if s == "" {
		return models.EffectNone
	}
	return models.EnterLeaveEffect(s)
}

// Characters resolves the visible character overlays for one line, merging
// per-line specs over the screenplay's character defaults. Pixel positions
// are resolved against the frame so face-animation parts can anchor on the
// base character.
func Characters(line script.Line, defaults script.Defaults, frameW, frameH int) ([]models.OverlayPlacement, error) {
	var out []models.OverlayPlacement
	for _, spec := range line.Characters {
		if !spec.IsVisible() {
			continue
		}
		cd, ok := defaults.Characters[spec.Name]
		if !ok {
			return nil, fmt.Errorf("character %q is not defined in defaults", spec.Name)
		}

		expr := spec.Expression
		if expr == "" {
			expr = "default"
		}

		scale := spec.Scale
		if scale == 0 {
			scale = cd.Scale
		}
		if scale == 0 {
			scale = 1
		}

		anchor := models.Anchor(spec.Anchor)
		if anchor == "" {
			anchor = models.Anchor(cd.Anchor)
		}
		if anchor == "" {
			anchor = models.AnchorBottomCenter
		}

		var pos models.Position
		switch {
		case spec.Position != nil:
			pos = *spec.Position
		case cd.Position != nil:
			pos = *cd.Position
		}

		enter := normalizeEffect(spec.Enter)
		enterDur := spec.EnterDuration
		if spec.Enter == "" {
			enter = normalizeEffect(cd.EnterEffect)
			enterDur = cd.EnterDuration
		}
		if enter != models.EffectNone && enterDur <= 0 {
			enterDur = defaultEffectDuration
		}

		leave := normalizeEffect(spec.Leave)
		leaveDur := spec.LeaveDuration
		if spec.Leave == "" {
			leave = normalizeEffect(cd.LeaveEffect)
			leaveDur = cd.LeaveDuration
		}
		if leave != models.EffectNone && leaveDur <= 0 {
			leaveDur = defaultEffectDuration
		}

		p := models.OverlayPlacement{
			Name:            spec.Name,
			Expression:      expr,
			ImagePath:       cd.Image(expr),
			Scale:           scale,
			Anchor:          anchor,
			Position:        pos,
			EnterEffect:     enter,
			EnterDuration:   enterDur,
			LeaveEffect:     leave,
			LeaveDuration:   leaveDur,
			DynamicPosition: isSlide(enter) || isSlide(leave),
			Effects:         spec.Effects,
		}

		w, h := imageSize(p.ImagePath)
		sw := int(float64(w) * scale)
		sh := int(float64(h) * scale)
		p.NumericX, p.NumericY = filtergraph.NumericAnchor(anchor, pos, frameW, frameH, sw, sh)

		out = append(out, p)
	}
	return out, nil
}

// Padding derives the clip's pre and post padding from the longest enter and
// leave animations among the line's characters.
func Padding(placements []models.OverlayPlacement) (pre, post float64) {
	for _, p := range placements {
		if p.EnterEffect != models.EffectNone && p.EnterDuration > pre {
			pre = p.EnterDuration
		}
		if p.LeaveEffect != models.EffectNone && p.LeaveDuration > post {
			post = p.LeaveDuration
		}
	}
	return pre, post
}

// FaceTarget selects the character whose face is animated for a talk line:
// the speaking character when it is on screen with face animation enabled,
// otherwise none.
func FaceTarget(line script.Line, defaults script.Defaults) (string, script.CharacterDefaults, bool) {
	if line.SpeakerName == "" {
		return "", script.CharacterDefaults{}, false
	}
	for _, spec := range line.Characters {
		if spec.Name != line.SpeakerName || !spec.IsVisible() {
			continue
		}
		cd, ok := defaults.Characters[spec.Name]
		if !ok || !cd.FaceAnimEnabled() {
			return "", script.CharacterDefaults{}, false
		}
		if !fileExists(cd.FaceImage("mouth_open")) {
			return "", script.CharacterDefaults{}, false
		}
		return spec.Name, cd, true
	}
	return "", script.CharacterDefaults{}, false
}

// FaceImages collects the face part image paths that exist on disk.
func FaceImages(cd script.CharacterDefaults) filtergraph.FaceImages {
	imgs := filtergraph.FaceImages{}
	if p := cd.FaceImage("eyes_close"); fileExists(p) {
		imgs.EyesClose = p
	}
	if p := cd.FaceImage("mouth_half"); fileExists(p) {
		imgs.MouthHalf = p
	}
	if p := cd.FaceImage("mouth_open"); fileExists(p) {
		imgs.MouthOpen = p
	}
	return imgs
}

// SubtitleText returns the text to rasterize for a line, honoring the
// per-line override. An empty string means no subtitle.
func SubtitleText(line script.Line, displayText string) string {
	if line.Subtitle != nil {
		if !line.Subtitle.IsVisible() {
			return ""
		}
		if line.Subtitle.Text != "" {
			return line.Subtitle.Text
		}
	}
	return displayText
}

func imageSize(path string) (int, int) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0
	}
	defer f.Close()
	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return 0, 0
	}
	return cfg.Width, cfg.Height
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
