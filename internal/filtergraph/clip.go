package filtergraph

import (
	"fmt"

	"github.com/zundamotion/zundamotion/internal/models"
)

// PathEnv is the capability snapshot path selection consults.
type PathEnv struct {
	GPUAllowed     bool   // current process-wide filter mode permits GPU
	HasCUDAOverlay bool   // overlay_cuda smoke passed
	GPUScaleFilter string // working GPU scale filter, "" = none
	HWKind         models.HWEncoderKind
}

// RenderPath names the chosen filter path for a clip.
type RenderPath string

const (
	PathGPU    RenderPath = "gpu"    // CUDA scale and overlay
	PathHybrid RenderPath = "hybrid" // GPU scale, CPU overlays
	PathCPU    RenderPath = "cpu"
)

// Character is a placement plus its resolved effect fragments.
type Character struct {
	Placement models.OverlayPlacement
	Effects   []string
}

// Insert is additional media composited over the background.
type Insert struct {
	Path      string
	IsVideo   bool
	HasAudio  bool
	Placement models.OverlayPlacement
}

// Subtitle is the pre-rasterized subtitle PNG and its placement.
type Subtitle struct {
	PNGPath      string
	MarginBottom int
	YOffsetExpr  string // appended to the baseline y, e.g. a bounce term
}

// ClipSpec is everything needed to render one line clip.
type ClipSpec struct {
	BackgroundPath  string
	BackgroundKind  models.BackgroundKind
	BackgroundStart float64 // seek offset into a scene-base or run-base
	PreScaled       bool    // background is already at target w*h*fps
	Layout          models.BackgroundLayout

	SpeechPath  string // "" for wait clips
	PreDuration float64
	Duration    float64 // total clip duration including padding

	Characters []Character
	FaceAnim   *models.FaceAnim
	FaceImages FaceImages
	Insert     *Insert
	Subtitle   *Subtitle

	BGEffects     []string // resolved background effect fragments
	ScreenEffects []string // resolved whole-frame effect fragments

	Video models.VideoParams
	Audio models.AudioParams

	OutPath string
}

// Command is a fully assembled transcoder invocation.
type Command struct {
	Args       []string
	Path       RenderPath
	CPUOverlay bool // clip composited overlays on the CPU (auto-tune signal)
}

// needsSoftwareFrames reports whether the clip has work the CUDA frame path
// cannot take: overlay compositing (characters, subtitles, inserts of either
// kind) and whole-frame screen effects all run as software filters.
func (s *ClipSpec) needsSoftwareFrames() bool {
	if len(s.Characters) > 0 || s.Subtitle != nil || s.Insert != nil {
		return true
	}
	return len(s.ScreenEffects) > 0
}

// selectPath implements the path policy: clips needing software frames
// composite on the CPU, optionally with GPU scaling (hybrid); pure
// background clips may run fully on the GPU. forceCPU (the retry) disables
// everything.
func (s *ClipSpec) selectPath(env PathEnv, forceCPU bool) RenderPath {
	if forceCPU || !env.GPUAllowed {
		return PathCPU
	}
	if s.needsSoftwareFrames() {
		if env.GPUScaleFilter != "" && !s.PreScaled {
			return PathHybrid
		}
		return PathCPU
	}
	if env.HasCUDAOverlay && env.GPUScaleFilter != "" {
		return PathGPU
	}
	return PathCPU
}

// Build assembles the full command for one clip.
func Build(spec ClipSpec, env PathEnv, forceCPU bool) *Command {
	g := NewGraph()
	path := spec.selectPath(env, forceCPU)

	// background input
	var bgOpts []string
	if spec.BackgroundKind == models.BackgroundImage {
		bgOpts = append(bgOpts, "-loop", "1")
	}
	if spec.BackgroundStart > 0 {
		bgOpts = append(bgOpts, "-ss", fmt.Sprintf("%.3f", spec.BackgroundStart))
	}
	bgIdx := g.AddInput(spec.BackgroundPath, bgOpts...)

	speechIdx := -1
	if spec.SpeechPath != "" {
		speechIdx = g.AddInput(spec.SpeechPath)
	}

	// background fit
	applyFPS := !spec.PreScaled
	var bgFilters []string
	switch path {
	case PathGPU:
		bgFilters = append(bgFilters, "format=nv12", "hwupload_cuda")
		if !spec.PreScaled {
			bgFilters = append(bgFilters,
				fmt.Sprintf("%s=%d:%d", env.GPUScaleFilter, spec.Video.Width, spec.Video.Height))
		}
	case PathHybrid:
		bgFilters = GPUBackgroundFit(spec.Layout, env.GPUScaleFilter,
			spec.Video.Width, spec.Video.Height, spec.Video.FPS, applyFPS)
	default:
		bgFilters = BackgroundFit(spec.Layout, spec.PreScaled,
			spec.Video.Width, spec.Video.Height, spec.Video.FPS, applyFPS)
	}
	bgFilters = append(bgFilters, spec.BGEffects...)

	current := g.Label("bg")
	g.AddChain([]string{fmt.Sprintf("%d:v", bgIdx)}, bgFilters, current)

	cpuOverlay := false

	// character overlays
	var faceBase *models.OverlayPlacement
	for _, ch := range spec.Characters {
		cpuOverlay = true
		idx := g.AddInput(ch.Placement.ImagePath, "-loop", "1")

		prepared := g.Label("ch")
		g.AddChain([]string{fmt.Sprintf("%d:v", idx)},
			CharacterChain(ch.Placement, spec.Duration, ch.Effects, forceCPU),
			prepared)

		x, y := CharacterPosition(ch.Placement, spec.Duration)
		next := g.Label("v")
		g.AddChain([]string{current, prepared},
			[]string{fmt.Sprintf("overlay=x='%s':y='%s':enable='%s'",
				x, y, enableBetween(0, spec.Duration))},
			next)
		current = next

		if spec.FaceAnim != nil && ch.Placement.Name == spec.FaceAnim.TargetName {
			p := ch.Placement
			faceBase = &p
		}
	}
	// fall back to the first character when the target has no placement
	if spec.FaceAnim != nil && faceBase == nil && len(spec.Characters) > 0 {
		p := spec.Characters[0].Placement
		faceBase = &p
	}

	// face animation overlays
	if spec.FaceAnim != nil && faceBase != nil {
		for _, fo := range FaceOverlays(spec.FaceAnim, spec.FaceImages, *faceBase, spec.Duration) {
			idx := g.AddInput(fo.ImagePath, "-loop", "1")
			prepared := g.Label("face")
			filters := []string{"format=rgba"}
			if faceBase.Scale > 0 && faceBase.Scale != 1.0 {
				filters = append(filters, fmt.Sprintf("scale=iw*%s:-1", ff(faceBase.Scale)))
			}
			if !forceCPU {
				if thr := alphaThreshold(EnvFaceAlphaThreshold, 0.5); thr > 0 {
					filters = append(filters, alphaThresholdFilter(thr))
				}
			}
			g.AddChain([]string{fmt.Sprintf("%d:v", idx)}, filters, prepared)

			next := g.Label("v")
			g.AddChain([]string{current, prepared},
				[]string{fmt.Sprintf("overlay=x='%s':y='%s':enable='%s'", fo.X, fo.Y, fo.Enable)},
				next)
			current = next
		}
	}

	// insert media overlay
	insertAudioIdx := -1
	if spec.Insert != nil {
		cpuOverlay = true
		var opts []string
		if !spec.Insert.IsVideo {
			opts = append(opts, "-loop", "1")
		}
		idx := g.AddInput(spec.Insert.Path, opts...)
		if spec.Insert.HasAudio {
			insertAudioIdx = idx
		}

		prepared := g.Label("ins")
		g.AddChain([]string{fmt.Sprintf("%d:v", idx)},
			CharacterChain(spec.Insert.Placement, spec.Duration, nil, forceCPU),
			prepared)

		x, y := CharacterPosition(spec.Insert.Placement, spec.Duration)
		next := g.Label("v")
		g.AddChain([]string{current, prepared},
			[]string{fmt.Sprintf("overlay=x='%s':y='%s':enable='%s'",
				x, y, enableBetween(0, spec.Duration))},
			next)
		current = next
	}

	// subtitle overlay
	if spec.Subtitle != nil {
		cpuOverlay = true
		idx := g.AddInput(spec.Subtitle.PNGPath, "-loop", "1")

		y := fmt.Sprintf("H-h-%d", spec.Subtitle.MarginBottom)
		if spec.Subtitle.YOffsetExpr != "" {
			y = y + spec.Subtitle.YOffsetExpr
		}
		next := g.Label("v")
		g.AddChain([]string{current, fmt.Sprintf("%d:v", idx)},
			[]string{fmt.Sprintf("overlay=x='(W-w)/2':y='%s':enable='%s'",
				y, enableBetween(0, spec.Duration))},
			next)
		current = next
	}

	// download to software frames, then screen effects and format
	// normalization
	var tail []string
	gpuEncode := path == PathGPU && !forceCPU && env.HWKind == models.HWEncoderNVENC
	if path == PathGPU && !gpuEncode {
		tail = append(tail, "hwdownload", "format=nv12")
	}
	tail = append(tail, spec.ScreenEffects...)
	if !gpuEncode {
		tail = append(tail, "format="+spec.Video.PixFmt)
	}
	final := g.Label("final_v")
	g.AddChain([]string{current}, tail, final)

	// audio
	audioLabel := BuildAudioChain(g, AudioChainSpec{
		SpeechInput: speechIdx,
		InsertInput: insertAudioIdx,
		PreDelay:    spec.PreDuration,
		Duration:    spec.Duration,
		Params:      spec.Audio,
	})

	args := []string{"-y"}
	args = append(args, g.InputArgs()...)
	args = append(args, "-filter_complex", g.FilterComplex())
	args = append(args, "-map", "["+final+"]", "-map", "["+audioLabel+"]")
	args = append(args, DurationArgs(spec.Duration)...)
	args = append(args, VideoEncodeArgs(spec.Video, env.HWKind, forceCPU)...)
	args = append(args, AudioEncodeArgs(spec.Audio)...)
	args = append(args, "-movflags", "+faststart", spec.OutPath)

	return &Command{Args: args, Path: path, CPUOverlay: cpuOverlay}
}
