package videophase

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/zundamotion/zundamotion/internal/cache"
	"github.com/zundamotion/zundamotion/internal/filtergraph"
	"github.com/zundamotion/zundamotion/internal/models"
	"github.com/zundamotion/zundamotion/internal/pipeline/core"
)

// sceneBaseVideoThreshold is the minimum scene duration for which baking a
// video background into a scene-base pays for itself.
const sceneBaseVideoThreshold = 20.0

// EnvCharCacheDisable bypasses the scene-base/run-base artifact cache; bases
// are then rendered into the run's temp directory instead.
const EnvCharCacheDisable = "CHAR_CACHE_DISABLE"

// fileIdentity returns cache key components identifying a file version.
func fileIdentity(path string) (map[string]any, error) {
	st, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"path":  path,
		"size":  st.Size(),
		"mtime": st.ModTime().UnixNano(),
	}, nil
}

// layoutKey renders a background layout for cache keys.
func layoutKey(l models.BackgroundLayout) map[string]any {
	return map[string]any{
		"fit":        string(l.Fit),
		"fill_color": l.FillColor,
		"anchor":     string(l.Anchor),
		"x":          l.Position.X,
		"y":          l.Position.Y,
	}
}

// videoKey renders the target video params for cache keys.
func videoKey(v models.VideoParams) map[string]any {
	return map[string]any{
		"w": v.Width, "h": v.Height, "fps": v.FPS,
		"pix_fmt": v.PixFmt, "crf": v.CRF, "cq": v.CQ, "bitrate": v.Bitrate,
	}
}

// staticsKey renders a baked static-overlay set for cache keys, in a stable
// order.
func staticsKey(statics []models.OverlayPlacement) []any {
	sorted := make([]models.OverlayPlacement, len(statics))
	copy(sorted, statics)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })

	out := make([]any, len(sorted))
	for i, s := range sorted {
		out[i] = map[string]any{
			"name":   s.Name,
			"expr":   s.Expression,
			"image":  s.ImagePath,
			"scale":  s.Scale,
			"anchor": string(s.Anchor),
			"x":      s.Position.X,
			"y":      s.Position.Y,
		}
	}
	return out
}

// normalizeBackground pre-transcodes a video background to the target
// resolution and frame rate so per-clip renders skip the scale work. The
// scene-level layout is baked in; lines overriding the layout fall back to
// the raw file.
func (p *Phase) normalizeBackground(ctx context.Context, state *core.State,
	bg models.BackgroundSource, layout models.BackgroundLayout) (models.BackgroundSource, error) {

	if bg.Kind != models.BackgroundVideo {
		return bg, nil
	}
	ident, err := fileIdentity(bg.Path)
	if err != nil {
		return bg, fmt.Errorf("background %s: %w", bg.Path, err)
	}

	params := state.Script.Video.Params()
	key := cache.Key{
		"kind":   "bgnorm",
		"file":   ident,
		"layout": layoutKey(layout),
		"video":  videoKey(params),
	}
	hash, err := key.Hash()
	if err != nil {
		return bg, err
	}

	path, hit, err := state.Cache.GetOrCreate(ctx, "bgnorm", key, "mp4",
		func(ctx context.Context, tmpPath string) error {
			filters := filtergraph.BackgroundFit(layout, false,
				params.Width, params.Height, params.FPS, true)
			args := []string{
				"-y", "-i", bg.Path,
				"-vf", strings.Join(filters, ","),
				"-an",
			}
			args = append(args, filtergraph.VideoEncodeArgs(params, state.HW.Kind, !state.Mode.GPUAllowed())...)
			args = append(args, "-f", "mp4", tmpPath)
			return state.Runner.Run(ctx, args)
		})
	if err != nil {
		return bg, err
	}
	state.Report.AddCacheResult(hit)

	return models.BackgroundSource{
		Path:       path,
		Kind:       models.BackgroundVideo,
		Normalized: true,
		PreScaled:  true,
		CacheKey:   hash,
	}, nil
}

// renderBase bakes the fitted background plus a set of static character
// overlays into a normalized MP4 of the given duration.
func (p *Phase) renderBase(ctx context.Context, state *core.State, name string,
	bg models.BackgroundSource, layout models.BackgroundLayout,
	statics []models.OverlayPlacement, startTime, duration float64) (models.BackgroundSource, error) {

	ident, err := fileIdentity(bg.Path)
	if err != nil {
		return models.BackgroundSource{}, fmt.Errorf("background %s: %w", bg.Path, err)
	}
	params := state.Script.Video.Params()
	key := cache.Key{
		"kind":     name,
		"file":     ident,
		"upstream": bg.CacheKey,
		"layout":   layoutKey(layout),
		"statics":  staticsKey(statics),
		"start":    startTime,
		"duration": duration,
		"video":    videoKey(params),
	}
	hash, err := key.Hash()
	if err != nil {
		return models.BackgroundSource{}, err
	}

	if os.Getenv(EnvCharCacheDisable) == "1" {
		path := filepath.Join(state.TempDir, name+"_"+hash[:12]+".mp4")
		if err := state.Runner.Run(ctx, p.baseArgs(state, bg, layout, statics, startTime, duration, path)); err != nil {
			return models.BackgroundSource{}, err
		}
		return models.BackgroundSource{
			Path:       path,
			Kind:       models.BackgroundVideo,
			Normalized: true,
			PreScaled:  true,
			CacheKey:   hash,
		}, nil
	}

	path, hit, err := state.Cache.GetOrCreate(ctx, name, key, "mp4",
		func(ctx context.Context, tmpPath string) error {
			return state.Runner.Run(ctx, p.baseArgs(state, bg, layout, statics, startTime, duration, tmpPath))
		})
	if err != nil {
		return models.BackgroundSource{}, err
	}
	state.Report.AddCacheResult(hit)

	return models.BackgroundSource{
		Path:       path,
		Kind:       models.BackgroundVideo,
		Normalized: true,
		PreScaled:  true,
		CacheKey:   hash,
	}, nil
}

// baseArgs assembles the transcoder command baking statics into a base clip.
// Bases always render on the CPU path; they are one-off artifacts and the
// alpha overlays would force CPU compositing anyway.
func (p *Phase) baseArgs(state *core.State, bg models.BackgroundSource,
	layout models.BackgroundLayout, statics []models.OverlayPlacement,
	startTime, duration float64, outPath string) []string {

	params := state.Script.Video.Params()
	g := filtergraph.NewGraph()

	var bgOpts []string
	if bg.Kind == models.BackgroundImage {
		bgOpts = append(bgOpts, "-loop", "1")
	}
	if startTime > 0 {
		bgOpts = append(bgOpts, "-ss", fmt.Sprintf("%.3f", startTime))
	}
	bgIdx := g.AddInput(bg.Path, bgOpts...)

	current := g.Label("bg")
	g.AddChain([]string{fmt.Sprintf("%d:v", bgIdx)},
		filtergraph.BackgroundFit(layout, bg.PreScaled, params.Width, params.Height, params.FPS, !bg.PreScaled),
		current)

	for _, st := range statics {
		idx := g.AddInput(st.ImagePath, "-loop", "1")
		prepared := g.Label("ch")
		g.AddChain([]string{fmt.Sprintf("%d:v", idx)},
			filtergraph.CharacterChain(st, duration, nil, false), prepared)

		x, y := filtergraph.CharacterPosition(st, duration)
		next := g.Label("v")
		g.AddChain([]string{current, prepared},
			[]string{fmt.Sprintf("overlay=x='%s':y='%s'", x, y)}, next)
		current = next
	}

	final := g.Label("final_v")
	g.AddChain([]string{current}, []string{"format=" + params.PixFmt}, final)

	args := []string{"-y"}
	args = append(args, g.InputArgs()...)
	args = append(args, "-filter_complex", g.FilterComplex())
	args = append(args, "-map", "["+final+"]", "-an")
	args = append(args, filtergraph.DurationArgs(duration)...)
	args = append(args, filtergraph.VideoEncodeArgs(params, state.HW.Kind, !state.Mode.GPUAllowed())...)
	args = append(args, "-movflags", "+faststart", outPath)
	return args
}

// staticIntersection returns the static keys shared by every clip in the
// scene, with the placements taken from the first clip carrying them.
func staticIntersection(clips []*lineClip) []models.OverlayPlacement {
	if len(clips) == 0 {
		return nil
	}
	shared := map[models.StaticKey]bool{}
	for k := range clips[0].statics {
		shared[k] = true
	}
	for _, c := range clips[1:] {
		for k := range shared {
			if !c.statics[k] {
				delete(shared, k)
			}
		}
	}
	if len(shared) == 0 {
		return nil
	}
	return placementsForKeys(clips[0], shared)
}

// placementsForKeys extracts the placements of a clip matching the keys.
func placementsForKeys(clip *lineClip, keys map[models.StaticKey]bool) []models.OverlayPlacement {
	var out []models.OverlayPlacement
	for _, ch := range clip.characters {
		if k, static := ch.Placement.Static(); static && keys[k] {
			out = append(out, ch.Placement)
		}
	}
	return out
}

// equalStatics reports whether two clips carry the same static set.
func equalStatics(a, b *lineClip) bool {
	if len(a.statics) != len(b.statics) {
		return false
	}
	for k := range a.statics {
		if !b.statics[k] {
			return false
		}
	}
	return true
}

// staticRun is a maximal run of consecutive clips sharing a static set.
type staticRun struct {
	start, end int // clip indexes, inclusive
}

// findStaticRuns locates consecutive runs of at least two clips with equal
// non-empty static sets.
func findStaticRuns(clips []*lineClip) []staticRun {
	var runs []staticRun
	i := 0
	for i < len(clips) {
		if len(clips[i].statics) == 0 {
			i++
			continue
		}
		j := i
		for j+1 < len(clips) && equalStatics(clips[i], clips[j+1]) {
			j++
		}
		if j > i {
			runs = append(runs, staticRun{start: i, end: j})
		}
		i = j + 1
	}
	return runs
}
