// Package videophase implements the second pipeline phase: per-line clip
// rendering with shared base reuse, concurrent transcoder workers, a
// GPU-to-CPU retry, and per-scene concatenation.
package videophase

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/zundamotion/zundamotion/internal/filtergraph"
	"github.com/zundamotion/zundamotion/internal/models"
	"github.com/zundamotion/zundamotion/internal/pipeline/core"
	"github.com/zundamotion/zundamotion/internal/pipeline/plan"
	"github.com/zundamotion/zundamotion/internal/script"
	"github.com/zundamotion/zundamotion/internal/subtitle"
)

var imageExtensions = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".bmp": true, ".webp": true,
}

func backgroundKind(path string) models.BackgroundKind {
	if imageExtensions[strings.ToLower(filepath.Ext(path))] {
		return models.BackgroundImage
	}
	return models.BackgroundVideo
}

// lineClip is one line's fully resolved render plan within a scene.
type lineClip struct {
	index int
	id    string
	data  *models.LineData
	line  script.Line

	characters []filtergraph.Character
	statics    map[models.StaticKey]bool

	insert *filtergraph.Insert

	subtitleText string
	subtitle     *filtergraph.Subtitle

	bgEffects     []string
	screenEffects []string
	layout        models.BackgroundLayout

	// background is chosen late, after base decisions
	background models.BackgroundSource
	baked      map[models.StaticKey]bool // statics already in the base
}

// scenePlan is everything the render loop needs for one scene.
type scenePlan struct {
	scene    script.Scene
	offset   float64 // start of the scene on the output time axis
	duration float64
	bg       models.BackgroundSource
	clips    []*lineClip
}

// buildScenePlan resolves every line of a scene into a lineClip.
func (p *Phase) buildScenePlan(ctx context.Context, state *core.State, scene script.Scene, offset float64) (*scenePlan, error) {
	cfg := state.Script
	sceneLayoutBase := cfg.Background.Merged(scene.Background)

	sp := &scenePlan{
		scene:  scene,
		offset: offset,
		bg: models.BackgroundSource{
			Path: scene.BG,
			Kind: backgroundKind(scene.BG),
		},
	}

	for li, line := range scene.Lines {
		id := models.LineID(scene.ID, li)
		data, ok := state.Line(id)
		if !ok {
			return nil, fmt.Errorf("line %s has no audio-phase output", id)
		}

		clip := &lineClip{
			index:  li,
			id:     id,
			data:   data,
			line:   line,
			layout: sceneLayoutBase.Merged(line.Background).Layout(),
			baked:  map[models.StaticKey]bool{},
		}

		placements, err := plan.Characters(line, cfg.Defaults, cfg.Video.Width, cfg.Video.Height)
		if err != nil {
			return nil, fmt.Errorf("line %s: %w", id, err)
		}
		clip.statics = map[models.StaticKey]bool{}
		for _, pl := range placements {
			clip.characters = append(clip.characters, filtergraph.Character{
				Placement: pl,
				Effects:   state.Registry.ResolveOverlayEffects(pl.Effects, data.TotalDuration()),
			})
			if key, static := pl.Static(); static {
				clip.statics[key] = true
			}
		}

		// Line foreground overlays ride the character overlay machinery but
		// never join static detection, so opacity is preserved per clip.
		for _, fg := range line.FGOverlays {
			clip.characters = append(clip.characters, fgCharacter(fg))
		}

		clip.bgEffects = state.Registry.ResolveOverlayEffects(line.BackgroundEffects, data.TotalDuration())
		clip.screenEffects = state.Registry.ResolveOverlayEffects(line.ScreenEffects, data.TotalDuration())

		if line.Insert != nil {
			ins, err := p.resolveInsert(ctx, state, line.Insert)
			if err != nil {
				return nil, fmt.Errorf("line %s: %w", id, err)
			}
			clip.insert = ins
		}

		if data.Type == models.LineTalk && cfg.Subtitle.IsEnabled() {
			clip.subtitleText = plan.SubtitleText(line, data.Text)
		}

		sp.clips = append(sp.clips, clip)
		sp.duration += data.TotalDuration()
	}
	return sp, nil
}

// fgPlacement resolves a foreground overlay's placement defaults.
func fgPlacement(fg script.ForegroundOverlay) models.OverlayPlacement {
	scale := fg.Scale
	if scale == 0 {
		scale = 1
	}
	anchor := models.Anchor(fg.Anchor)
	if anchor == "" {
		anchor = models.AnchorMiddleCenter
	}
	var pos models.Position
	if fg.Position != nil {
		pos = *fg.Position
	}
	return models.OverlayPlacement{
		Name:      "fg:" + fg.Path,
		ImagePath: fg.Path,
		Scale:     scale,
		Anchor:    anchor,
		Position:  pos,
	}
}

// fgCharacter wraps a line-level foreground overlay as an overlay character.
func fgCharacter(fg script.ForegroundOverlay) filtergraph.Character {
	var effects []string
	if fg.Opacity > 0 && fg.Opacity < 1 {
		effects = append(effects, fmt.Sprintf("colorchannelmixer=aa=%g", fg.Opacity))
	}
	return filtergraph.Character{
		Placement: fgPlacement(fg),
		Effects:   effects,
	}
}

// resolveInsert probes the insert media and builds its placement.
func (p *Phase) resolveInsert(ctx context.Context, state *core.State, ins *script.Insert) (*filtergraph.Insert, error) {
	info, err := state.Prober.Probe(ctx, ins.Path)
	if err != nil {
		return nil, fmt.Errorf("probing insert %s: %w", ins.Path, err)
	}
	isVideo := backgroundKind(ins.Path) == models.BackgroundVideo && info.HasVideo

	scale := ins.Scale
	if scale == 0 {
		scale = 1
	}
	anchor := models.Anchor(ins.Anchor)
	if anchor == "" {
		anchor = models.AnchorMiddleCenter
	}
	var pos models.Position
	if ins.Position != nil {
		pos = *ins.Position
	}

	return &filtergraph.Insert{
		Path:     ins.Path,
		IsVideo:  isVideo,
		HasAudio: isVideo && info.HasAudio,
		Placement: models.OverlayPlacement{
			ImagePath: ins.Path,
			Scale:     scale,
			Anchor:    anchor,
			Position:  pos,
		},
	}, nil
}

// prepareSubtitles rasterizes the subtitle PNGs for a scene up front and
// attaches them to the clips.
func (p *Phase) prepareSubtitles(ctx context.Context, state *core.State, sp *scenePlan) error {
	style := state.Script.Subtitle
	if !style.IsEnabled() || style.FontPath == "" {
		return nil
	}

	fg, err := subtitle.ParseColor(style.Color)
	if err != nil {
		return fmt.Errorf("subtitle color: %w", err)
	}
	outline, err := subtitle.ParseColor(style.OutlineColor)
	if err != nil {
		return fmt.Errorf("subtitle outline color: %w", err)
	}
	renderStyle := subtitle.Style{
		FontPath:     style.FontPath,
		FontSize:     style.FontSize,
		Color:        fg,
		OutlineColor: outline,
		OutlineWidth: style.OutlineWidth,
		LineSpacing:  style.LineSpacing,
		MaxWidth:     style.MaxWidth,
	}

	yOffset := ""
	if frags := state.Registry.ResolveOverlayEffects(style.Effects, 0); len(frags) > 0 {
		yOffset = frags[0]
	}

	subDir := filepath.Join(state.TempDir, "subs")
	if err := os.MkdirAll(subDir, 0o755); err != nil {
		return err
	}

	var jobs []subtitle.Job
	for _, clip := range sp.clips {
		if clip.subtitleText == "" {
			continue
		}
		out := filepath.Join(subDir, clip.id+".png")
		jobs = append(jobs, subtitle.Job{Text: clip.subtitleText, OutPath: out})
		clip.subtitle = &filtergraph.Subtitle{
			PNGPath:      out,
			MarginBottom: style.MarginBottom,
			YOffsetExpr:  yOffset,
		}
	}
	if len(jobs) == 0 {
		return nil
	}
	return subtitle.RenderAll(ctx, renderStyle, jobs, state.App.Render.SubtitleWorkers)
}
