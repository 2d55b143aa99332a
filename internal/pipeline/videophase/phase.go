package videophase

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/zundamotion/zundamotion/internal/cache"
	"github.com/zundamotion/zundamotion/internal/ffmpeg"
	"github.com/zundamotion/zundamotion/internal/filtergraph"
	"github.com/zundamotion/zundamotion/internal/models"
	"github.com/zundamotion/zundamotion/internal/observability"
	"github.com/zundamotion/zundamotion/internal/pipeline/core"
	"github.com/zundamotion/zundamotion/internal/pipeline/plan"
)

// Phase renders every line clip and concatenates them into scene clips.
type Phase struct {
	logger *slog.Logger

	mu          sync.Mutex
	clipWorkers int
	tuned       bool
	profiled    int
	cpuOverlay  int
	elapsed     []float64
}

// New creates the video phase.
func New(logger *slog.Logger) *Phase {
	if logger == nil {
		logger = slog.Default()
	}
	return &Phase{logger: observability.WithComponent(logger, "videophase")}
}

func (p *Phase) ID() string   { return "video" }
func (p *Phase) Name() string { return "video rendering" }

// Run renders all scenes in order. Within a scene, clips render concurrently
// once the auto-tune sample is collected.
func (p *Phase) Run(ctx context.Context, state *core.State) error {
	p.clipWorkers = state.App.Render.ClipWorkers
	if p.clipWorkers < 1 {
		p.clipWorkers = 1
	}

	if hint, ok := loadHint(state.Cache.Dir(), state.FFmpegVersion, state.HW.Kind, p.logger); ok {
		p.tuned = true
		if hint.ForceCPU {
			state.Mode.DemoteToCPU("autotune hint")
		}
		if hint.ClipWorkers > 0 {
			p.clipWorkers = hint.ClipWorkers
		}
		p.logger.Info("applying autotune hint",
			slog.Bool("force_cpu", hint.ForceCPU),
			slog.Int("clip_workers", p.clipWorkers))
	}

	offset := 0.0
	for _, scene := range state.Script.Scenes {
		sp, err := p.buildScenePlan(ctx, state, scene, offset)
		if err != nil {
			return err
		}
		if err := p.prepareSubtitles(ctx, state, sp); err != nil {
			return fmt.Errorf("scene %s subtitles: %w", scene.ID, err)
		}
		if err := p.assignBackgrounds(ctx, state, sp); err != nil {
			return fmt.Errorf("scene %s backgrounds: %w", scene.ID, err)
		}

		clipPaths, clipHashes, err := p.renderSceneClips(ctx, state, sp)
		if err != nil {
			return fmt.Errorf("scene %s: %w", scene.ID, err)
		}

		scenePath, err := p.assembleScene(ctx, state, sp, clipPaths, clipHashes)
		if err != nil {
			return fmt.Errorf("scene %s assembly: %w", scene.ID, err)
		}
		state.SceneClips = append(state.SceneClips, core.SceneClip{
			SceneID: scene.ID,
			Path:    scenePath,
		})
		p.logger.Info("scene rendered",
			slog.String("scene", scene.ID),
			slog.Int("clips", len(sp.clips)),
			slog.Float64("start", sp.offset),
			slog.Float64("duration", sp.duration))
		offset += sp.duration
	}
	return nil
}

// pathEnv snapshots the capability state for path selection. GPU probes are
// skipped entirely once the process has demoted to CPU.
func (p *Phase) pathEnv(ctx context.Context, state *core.State) filtergraph.PathEnv {
	env := filtergraph.PathEnv{HWKind: state.HW.Kind}
	if !state.Mode.GPUAllowed() {
		return env
	}
	env.GPUAllowed = true
	env.HasCUDAOverlay = state.Caps.HasCUDAFilters(ctx)
	env.GPUScaleFilter = state.Caps.PreferredCUDAScaleFilter(ctx)
	return env
}

// assignBackgrounds decides scene-base/run-base reuse and pins each clip's
// background source.
func (p *Phase) assignBackgrounds(ctx context.Context, state *core.State, sp *scenePlan) error {
	sceneLayout := state.Script.Background.Merged(sp.scene.Background).Layout()

	normalized, err := p.normalizeBackground(ctx, state, sp.bg, sceneLayout)
	if err != nil {
		return err
	}

	shared := staticIntersection(sp.clips)
	useSceneBase := len(shared) > 0 ||
		(sp.bg.Kind == models.BackgroundVideo && sp.duration >= sceneBaseVideoThreshold) ||
		(sp.bg.Kind == models.BackgroundImage && len(sp.clips) >= 2)

	if useSceneBase {
		base, err := p.renderBase(ctx, state, "scenebase", normalized, sceneLayout, shared, 0, sp.duration)
		if err != nil {
			return err
		}
		sharedKeys := map[models.StaticKey]bool{}
		for _, s := range shared {
			if k, ok := s.Static(); ok {
				sharedKeys[k] = true
			}
		}

		off := 0.0
		for _, clip := range sp.clips {
			if clip.line.Background == nil {
				clip.background = base
				clip.background.StartTime = off
				for k := range sharedKeys {
					clip.baked[k] = true
				}
			} else {
				clip.background = rawBackground(sp.bg, off)
			}
			off += clip.data.TotalDuration()
		}
		return nil
	}

	offsets := make([]float64, len(sp.clips))
	off := 0.0
	for i, clip := range sp.clips {
		offsets[i] = off
		off += clip.data.TotalDuration()
	}

	assigned := make([]bool, len(sp.clips))
	for _, run := range findStaticRuns(sp.clips) {
		first := sp.clips[run.start]
		if first.line.Background != nil {
			continue
		}
		statics := placementsForKeys(first, first.statics)

		runDur := 0.0
		for i := run.start; i <= run.end; i++ {
			runDur += sp.clips[i].data.TotalDuration()
		}
		startInBG := 0.0
		if normalized.Kind == models.BackgroundVideo {
			startInBG = offsets[run.start]
		}

		base, err := p.renderBase(ctx, state, "runbase", normalized, sceneLayout, statics, startInBG, runDur)
		if err != nil {
			return err
		}
		for i := run.start; i <= run.end; i++ {
			clip := sp.clips[i]
			if clip.line.Background != nil {
				continue
			}
			clip.background = base
			clip.background.StartTime = offsets[i] - offsets[run.start]
			for k := range clip.statics {
				clip.baked[k] = true
			}
			assigned[i] = true
		}
	}

	for i, clip := range sp.clips {
		if assigned[i] {
			continue
		}
		if clip.line.Background != nil {
			clip.background = rawBackground(sp.bg, offsets[i])
			continue
		}
		clip.background = normalized
		if normalized.Kind == models.BackgroundVideo {
			clip.background.StartTime = offsets[i]
		}
	}
	return nil
}

// rawBackground is the unprocessed scene background at an offset. Image
// backgrounds ignore the offset.
func rawBackground(bg models.BackgroundSource, offset float64) models.BackgroundSource {
	out := bg
	if bg.Kind == models.BackgroundVideo {
		out.StartTime = offset
	}
	return out
}

// renderSceneClips renders the scene's clips, sequentially while the
// auto-tune sample is still being collected, then concurrently. It returns
// the clip paths and their cache-key hashes in scene order.
func (p *Phase) renderSceneClips(ctx context.Context, state *core.State, sp *scenePlan) ([]string, []string, error) {
	paths := make([]string, len(sp.clips))
	hashes := make([]string, len(sp.clips))

	next := 0
	for next < len(sp.clips) && p.needsProfiling(state) {
		clip := sp.clips[next]
		started := time.Now()
		path, hash, cpuOverlay, err := p.renderClip(ctx, state, clip)
		if err != nil {
			return nil, nil, err
		}
		paths[next] = path
		hashes[next] = hash
		p.recordProfile(state, cpuOverlay, time.Since(started).Seconds())
		next++
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers())
	for i := next; i < len(sp.clips); i++ {
		g.Go(func() error {
			path, hash, _, err := p.renderClip(gctx, state, sp.clips[i])
			if err != nil {
				return err
			}
			paths[i] = path
			hashes[i] = hash
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return paths, hashes, nil
}

func (p *Phase) workers() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.clipWorkers
}

// needsProfiling reports whether more sequential sample clips are needed.
func (p *Phase) needsProfiling(state *core.State) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return !p.tuned && p.profiled < state.App.Render.ProfileFirstClips
}

// recordProfile adds one sample and, once the sample is full, applies and
// persists the tuning decision.
func (p *Phase) recordProfile(state *core.State, cpuOverlay bool, elapsed float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.profiled++
	if cpuOverlay {
		p.cpuOverlay++
	}
	p.elapsed = append(p.elapsed, elapsed)
	if p.tuned || p.profiled < state.App.Render.ProfileFirstClips {
		return
	}
	p.tuned = true

	forceCPU, workers := decideTuning(p.profiled, p.cpuOverlay, p.clipWorkers)
	if forceCPU {
		state.Mode.DemoteToCPU("autotune: overlay-heavy workload")
		p.clipWorkers = workers
	}
	avg, p90 := elapsedStats(p.elapsed)
	saveHint(state.Cache.Dir(), autotuneHint{
		FFmpegVersion: state.FFmpegVersion,
		HWKind:        string(state.HW.Kind),
		DecidedMode:   string(state.Mode.Mode()),
		ForceCPU:      forceCPU,
		ClipWorkers:   p.clipWorkers,
		CPURatio:      float64(p.cpuOverlay) / float64(p.profiled),
		AvgElapsed:    avg,
		P90Elapsed:    p90,
	}, p.logger)
	p.logger.Info("autotune decision",
		slog.Int("profiled", p.profiled),
		slog.Int("cpu_overlay", p.cpuOverlay),
		slog.Bool("force_cpu", forceCPU),
		slog.Float64("avg_elapsed", avg),
		slog.Float64("p90_elapsed", p90),
		slog.Int("clip_workers", p.clipWorkers))
}

// renderClip renders one line clip through the cache, retrying once on the
// CPU when the GPU path fails. It returns the clip path and its key hash.
func (p *Phase) renderClip(ctx context.Context, state *core.State, clip *lineClip) (string, string, bool, error) {
	spec := p.clipSpec(state, clip)
	env := p.pathEnv(ctx, state)

	// CPU-overlay stat comes from a dry build so cache hits still count.
	probeCmd := filtergraph.Build(spec, env, !state.Mode.GPUAllowed())

	key, err := p.clipKey(state, clip, spec)
	if err != nil {
		return "", "", false, err
	}
	hash, err := key.Hash()
	if err != nil {
		return "", "", false, err
	}

	path, hit, err := state.Cache.GetOrCreate(ctx, "clip", key, "mp4",
		func(ctx context.Context, tmpPath string) error {
			return p.runClip(ctx, state, spec, tmpPath)
		})
	if err != nil {
		return "", "", false, err
	}
	state.Report.AddCacheResult(hit)
	state.Report.AddClip(probeCmd.CPUOverlay)
	return path, hash, probeCmd.CPUOverlay, nil
}

// runClip executes the clip render, demoting to the CPU path and retrying
// once when the failure looks GPU-related.
func (p *Phase) runClip(ctx context.Context, state *core.State, spec filtergraph.ClipSpec, outPath string) error {
	spec.OutPath = outPath
	env := p.pathEnv(ctx, state)
	forceCPU := !state.Mode.GPUAllowed()

	cmd := filtergraph.Build(spec, env, forceCPU)
	err := state.Runner.Run(ctx, p.withThreadArgs(state, cmd.Args, false))
	if err == nil {
		return nil
	}
	if forceCPU || !ffmpeg.IsGPUFailure(err) {
		return err
	}

	state.Mode.DemoteToCPU("clip render failed on GPU path")
	state.Report.AddGPURetry()
	p.logger.Warn("retrying clip on CPU path",
		slog.String("out", outPath), slog.Any("error", err))

	retry := filtergraph.Build(spec, p.pathEnv(ctx, state), true)
	return state.Runner.Run(ctx, p.withThreadArgs(state, retry.Args, true))
}

// withThreadArgs injects the filter thread plan after the -y flag. The
// GPU-failure retry pins both filter lanes to a single thread.
func (p *Phase) withThreadArgs(state *core.State, args []string, retry bool) []string {
	tp := ffmpeg.PlanThreads(p.workers(), state.HW.Kind, state.Mode.Mode())
	if j := state.App.Render.Jobs; j > 0 {
		tp.FilterThreads = j
		tp.FilterComplexThreads = j
	}
	if retry {
		tp.FilterThreads = 1
		tp.FilterComplexThreads = 1
	}
	threadArgs := tp.Args()
	if len(threadArgs) == 0 {
		return args
	}
	out := make([]string, 0, len(args)+len(threadArgs))
	out = append(out, args[0])
	out = append(out, threadArgs...)
	out = append(out, args[1:]...)
	return out
}

// clipSpec assembles the filter-graph spec for one clip, dropping characters
// already baked into the base.
func (p *Phase) clipSpec(state *core.State, clip *lineClip) filtergraph.ClipSpec {
	var characters []filtergraph.Character
	for _, ch := range clip.characters {
		if k, static := ch.Placement.Static(); static && clip.baked[k] {
			continue
		}
		characters = append(characters, ch)
	}

	var faceImages filtergraph.FaceImages
	if clip.data.FaceAnim != nil {
		if cd, ok := state.Script.Defaults.Characters[clip.data.FaceAnim.TargetName]; ok {
			faceImages = plan.FaceImages(cd)
		}
	}

	return filtergraph.ClipSpec{
		BackgroundPath:  clip.background.Path,
		BackgroundKind:  clip.background.Kind,
		BackgroundStart: clip.background.StartTime,
		PreScaled:       clip.background.PreScaled,
		Layout:          clip.layout,
		SpeechPath:      clip.data.AudioPath,
		PreDuration:     clip.data.PreDuration,
		Duration:        clip.data.TotalDuration(),
		Characters:      characters,
		FaceAnim:        clip.data.FaceAnim,
		FaceImages:      faceImages,
		Insert:          clip.insert,
		BGEffects:       clip.bgEffects,
		ScreenEffects:   clip.screenEffects,
		Video:           state.Script.Video.Params(),
		Audio:           state.Script.Audio.Params(),
	}
}

// clipKey derives the cache key for a clip from everything that shapes its
// pixels and samples: the upstream hashes, the encode parameters, the
// transcoder version and hardware kind, and the face-animation inputs
// including the line ID that seeds the blink schedule. The in-run filter
// mode is excluded: GPU and CPU renders of the same spec are
// interchangeable. Subtitles are excluded as well; they are overlaid on the
// concatenated scene clip, not burned per clip.
func (p *Phase) clipKey(state *core.State, clip *lineClip, spec filtergraph.ClipSpec) (cache.Key, error) {
	bg := map[string]any{
		"key":   clip.background.CacheKey,
		"start": clip.background.StartTime,
	}
	if clip.background.CacheKey == "" {
		ident, err := fileIdentity(clip.background.Path)
		if err != nil {
			return nil, err
		}
		bg["file"] = ident
	}

	chars := make([]any, len(spec.Characters))
	for i, ch := range spec.Characters {
		pl := ch.Placement
		chars[i] = map[string]any{
			"name":      pl.Name,
			"expr":      pl.Expression,
			"image":     pl.ImagePath,
			"scale":     pl.Scale,
			"anchor":    string(pl.Anchor),
			"x":         pl.Position.X,
			"y":         pl.Position.Y,
			"enter":     string(pl.EnterEffect),
			"enter_dur": pl.EnterDuration,
			"leave":     string(pl.LeaveEffect),
			"leave_dur": pl.LeaveDuration,
			"effects":   toAnySlice(ch.Effects),
		}
	}

	key := cache.Key{
		"kind":       "clip",
		"version":    state.FFmpegVersion,
		"hw":         string(state.HW.Kind),
		"audio":      clip.data.AudioKey,
		"background": bg,
		"layout":     layoutKey(spec.Layout),
		"characters": chars,
		"pre":        spec.PreDuration,
		"duration":   spec.Duration,
		"bg_fx":      toAnySlice(spec.BGEffects),
		"screen_fx":  toAnySlice(spec.ScreenEffects),
		"video":      videoKey(spec.Video),
		"audio_params": map[string]any{
			"rate":     spec.Audio.SampleRate,
			"channels": spec.Audio.Channels,
			"codec":    spec.Audio.Codec,
			"bitrate":  spec.Audio.Bitrate,
		},
	}
	if clip.insert != nil {
		ident, err := fileIdentity(clip.insert.Path)
		if err != nil {
			return nil, err
		}
		key["insert"] = map[string]any{
			"file":   ident,
			"scale":  clip.insert.Placement.Scale,
			"anchor": string(clip.insert.Placement.Anchor),
			"x":      clip.insert.Placement.Position.X,
			"y":      clip.insert.Placement.Position.Y,
		}
	}
	if fa := clip.data.FaceAnim; fa != nil {
		key["face"] = map[string]any{
			"target":       fa.TargetName,
			"seed":         clip.id,
			"fps":          fa.Meta.FPS,
			"thr_half":     fa.Meta.ThrHalfRatio,
			"thr_open":     fa.Meta.ThrOpenRatio,
			"blink_min":    fa.Meta.MinBlinkInterval,
			"blink_max":    fa.Meta.MaxBlinkInterval,
			"close_frames": fa.Meta.CloseFrames,
		}
	}
	return key, nil
}

func subtitleStyleKey(state *core.State) map[string]any {
	s := state.Script.Subtitle
	return map[string]any{
		"font":          s.FontPath,
		"size":          s.FontSize,
		"color":         s.Color,
		"outline_color": s.OutlineColor,
		"outline_width": s.OutlineWidth,
		"line_spacing":  s.LineSpacing,
		"max_width":     s.MaxWidth,
	}
}

func toAnySlice(in []string) []any {
	out := make([]any, len(in))
	for i, v := range in {
		out[i] = v
	}
	return out
}

// concatClips joins the scene's clips by stream copy with the concat
// demuxer. Clips share encode parameters by construction.
func (p *Phase) concatClips(ctx context.Context, state *core.State, clips []string, outPath string) error {
	if len(clips) == 0 {
		return fmt.Errorf("no clips to concatenate")
	}
	if len(clips) == 1 {
		return copyFile(clips[0], outPath)
	}

	listPath := outPath + ".txt"
	var b []byte
	for _, c := range clips {
		b = append(b, []byte(fmt.Sprintf("file '%s'\n", c))...)
	}
	if err := os.WriteFile(listPath, b, 0o644); err != nil {
		return err
	}
	return state.Runner.Run(ctx, []string{
		"-y", "-f", "concat", "-safe", "0",
		"-i", listPath,
		"-c", "copy",
		"-movflags", "+faststart",
		outPath,
	})
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
