package videophase

import (
	"context"
	"path/filepath"

	"github.com/zundamotion/zundamotion/internal/cache"
	"github.com/zundamotion/zundamotion/internal/filtergraph"
	"github.com/zundamotion/zundamotion/internal/pipeline/core"
	"github.com/zundamotion/zundamotion/internal/script"
)

// assembleScene concatenates the line clips and applies the scene-level
// finishing passes: foreground overlays and subtitle windows composited in a
// single invocation, then the scene's own background music. Scenes without
// any of these concatenate straight into the temp directory; everything else
// goes through the cache keyed on the clip hashes and the pass inputs.
func (p *Phase) assembleScene(ctx context.Context, state *core.State, sp *scenePlan,
	clipPaths, clipHashes []string) (string, error) {

	images := sceneImages(sp.scene.FGOverlays)
	subs := subtitleWindows(sp)
	bgm := sp.scene.BGM

	if len(images) == 0 && len(subs) == 0 && bgm == nil {
		outPath := filepath.Join(state.TempDir, "scene_"+sp.scene.ID+".mp4")
		return outPath, p.concatClips(ctx, state, clipPaths, outPath)
	}

	key, err := p.sceneKey(state, sp, clipHashes, images, bgm)
	if err != nil {
		return "", err
	}
	path, hit, err := state.Cache.GetOrCreate(ctx, "scene", key, "mp4",
		func(ctx context.Context, tmpPath string) error {
			return p.buildScene(ctx, state, sp, clipPaths, images, subs, bgm, tmpPath)
		})
	if err != nil {
		return "", err
	}
	state.Report.AddCacheResult(hit)
	return path, nil
}

// buildScene runs the concat, overlay, and BGM stages into outPath.
func (p *Phase) buildScene(ctx context.Context, state *core.State, sp *scenePlan,
	clipPaths []string, images []filtergraph.SceneImage, subs []filtergraph.SubtitleWindow,
	bgm *script.BGMSettings, outPath string) error {

	stage := filepath.Join(state.TempDir, "scene_"+sp.scene.ID+"_concat.mp4")
	if err := p.concatClips(ctx, state, clipPaths, stage); err != nil {
		return err
	}

	if len(images) > 0 || len(subs) > 0 {
		next := outPath
		if bgm != nil {
			next = filepath.Join(state.TempDir, "scene_"+sp.scene.ID+"_post.mp4")
		}
		args := filtergraph.ScenePostArgs(stage, images, subs,
			sp.duration, state.Script.Video.Params(), next)
		if err := state.Runner.Run(ctx, args); err != nil {
			return err
		}
		stage = next
	}

	if bgm != nil {
		return state.Runner.Run(ctx, filtergraph.BGMMixArgs(filtergraph.BGMSpec{
			Path:    bgm.Path,
			Volume:  bgm.Volume,
			Start:   bgm.Start,
			FadeIn:  bgm.FadeIn,
			FadeOut: bgm.FadeOut,
		}, sp.duration, state.Script.Audio.Params(), stage, outPath))
	}
	if stage != outPath {
		return copyFile(stage, outPath)
	}
	return nil
}

// subtitleWindows collects each line's subtitle PNG with its visibility
// window on the scene's time axis.
func subtitleWindows(sp *scenePlan) []filtergraph.SubtitleWindow {
	var subs []filtergraph.SubtitleWindow
	off := 0.0
	for _, clip := range sp.clips {
		dur := clip.data.TotalDuration()
		if clip.subtitle != nil {
			subs = append(subs, filtergraph.SubtitleWindow{
				PNGPath:      clip.subtitle.PNGPath,
				MarginBottom: clip.subtitle.MarginBottom,
				YOffsetExpr:  clip.subtitle.YOffsetExpr,
				Start:        off,
				End:          off + dur,
			})
		}
		off += dur
	}
	return subs
}

// sceneImages maps the scene's foreground overlays to composition specs.
func sceneImages(fgs []script.ForegroundOverlay) []filtergraph.SceneImage {
	out := make([]filtergraph.SceneImage, 0, len(fgs))
	for _, fg := range fgs {
		out = append(out, filtergraph.SceneImage{
			Placement: fgPlacement(fg),
			Opacity:   fg.Opacity,
		})
	}
	return out
}

// sceneKey identifies an assembled scene clip: the line clips it joins, the
// overlay and subtitle passes, and the music mix. Subtitle PNGs are keyed by
// text and style since their files are regenerated every run.
func (p *Phase) sceneKey(state *core.State, sp *scenePlan, clipHashes []string,
	images []filtergraph.SceneImage, bgm *script.BGMSettings) (cache.Key, error) {

	key := cache.Key{
		"kind":  "scene",
		"scene": sp.scene.ID,
		"clips": toAnySlice(clipHashes),
		"video": videoKey(state.Script.Video.Params()),
	}

	if len(images) > 0 {
		items := make([]any, len(images))
		for i, img := range images {
			ident, err := fileIdentity(img.Placement.ImagePath)
			if err != nil {
				return nil, err
			}
			items[i] = map[string]any{
				"file":    ident,
				"scale":   img.Placement.Scale,
				"anchor":  string(img.Placement.Anchor),
				"x":       img.Placement.Position.X,
				"y":       img.Placement.Position.Y,
				"opacity": img.Opacity,
			}
		}
		key["fg"] = items
	}

	var subItems []any
	off := 0.0
	for _, clip := range sp.clips {
		dur := clip.data.TotalDuration()
		if clip.subtitle != nil {
			subItems = append(subItems, map[string]any{
				"text":    clip.subtitleText,
				"margin":  clip.subtitle.MarginBottom,
				"yoffset": clip.subtitle.YOffsetExpr,
				"start":   off,
			})
		}
		off += dur
	}
	if len(subItems) > 0 {
		key["subtitles"] = subItems
		key["subtitle_style"] = subtitleStyleKey(state)
	}

	if bgm != nil {
		ident, err := fileIdentity(bgm.Path)
		if err != nil {
			return nil, err
		}
		key["bgm"] = map[string]any{
			"file":     ident,
			"volume":   bgm.Volume,
			"start":    bgm.Start,
			"fade_in":  bgm.FadeIn,
			"fade_out": bgm.FadeOut,
		}
	}
	return key, nil
}
