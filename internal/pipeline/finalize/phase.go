// Package finalize implements the last pipeline phase: joining the scene
// clips into the output MP4 and mixing in the global background music.
// Scene clips share encode parameters by construction, so the default join
// is a lossless stream copy; a parameter mismatch falls back to one
// re-encode unless copy-only mode forbids it.
package finalize

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/zundamotion/zundamotion/internal/ffmpeg"
	"github.com/zundamotion/zundamotion/internal/filtergraph"
	"github.com/zundamotion/zundamotion/internal/models"
	"github.com/zundamotion/zundamotion/internal/observability"
	"github.com/zundamotion/zundamotion/internal/pipeline/core"
	"github.com/zundamotion/zundamotion/internal/script"
)

// Phase assembles the final video.
type Phase struct {
	logger   *slog.Logger
	copyOnly bool
}

// New creates the finalize phase. copyOnly makes a stream-copy join
// mandatory: mismatched scene clips become an error instead of a re-encode.
func New(logger *slog.Logger, copyOnly bool) *Phase {
	if logger == nil {
		logger = slog.Default()
	}
	return &Phase{
		logger:   observability.WithComponent(logger, "finalize"),
		copyOnly: copyOnly,
	}
}

func (p *Phase) ID() string   { return "finalize" }
func (p *Phase) Name() string { return "final assembly" }

// Run joins the scene clips and applies BGM, writing state.OutputPath.
func (p *Phase) Run(ctx context.Context, state *core.State) error {
	if len(state.SceneClips) == 0 {
		return core.ErrNoSceneClips
	}
	if dir := filepath.Dir(state.OutputPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}

	canCopy, err := p.uniformParams(ctx, state)
	if err != nil {
		return err
	}
	if !canCopy && p.copyOnly {
		return fmt.Errorf("%w: rerun without copy-only or align scene parameters", core.ErrCopyOnlyMismatch)
	}

	joined := state.OutputPath
	if state.Script.BGM != nil {
		joined = filepath.Join(state.TempDir, "joined.mp4")
	}

	if canCopy {
		err = p.concatCopy(ctx, state, joined)
	} else {
		p.logger.Warn("scene clips differ, re-encoding the final join")
		err = p.concatReencode(ctx, state, joined)
	}
	if err != nil {
		return err
	}

	if state.Script.BGM != nil {
		if err := p.mixBGM(ctx, state, joined, state.OutputPath); err != nil {
			return fmt.Errorf("mixing background music: %w", err)
		}
	}

	p.logger.Info("final video written", slog.String("path", state.OutputPath))
	return nil
}

// uniformParams probes every scene clip and reports whether a stream-copy
// join is safe.
func (p *Phase) uniformParams(ctx context.Context, state *core.State) (bool, error) {
	var first *ffmpeg.MediaInfo
	for _, sc := range state.SceneClips {
		info, err := state.Prober.Probe(ctx, sc.Path)
		if err != nil {
			return false, fmt.Errorf("probing scene clip %s: %w", sc.SceneID, err)
		}
		if first == nil {
			first = info
			continue
		}
		if info.Width != first.Width || info.Height != first.Height ||
			info.HasAudio != first.HasAudio ||
			info.SampleRate != first.SampleRate || info.Channels != first.Channels {
			p.logger.Warn("scene clip parameter mismatch",
				slog.String("scene", sc.SceneID),
				slog.String("got", fmt.Sprintf("%dx%d %dHz/%dch", info.Width, info.Height, info.SampleRate, info.Channels)),
				slog.String("want", fmt.Sprintf("%dx%d %dHz/%dch", first.Width, first.Height, first.SampleRate, first.Channels)))
			return false, nil
		}
	}
	return true, nil
}

// concatCopy joins clips losslessly with the concat demuxer.
func (p *Phase) concatCopy(ctx context.Context, state *core.State, outPath string) error {
	listPath := filepath.Join(state.TempDir, "final_concat.txt")
	var b strings.Builder
	for _, sc := range state.SceneClips {
		fmt.Fprintf(&b, "file '%s'\n", sc.Path)
	}
	if err := os.WriteFile(listPath, []byte(b.String()), 0o644); err != nil {
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

// concatReencode joins clips through the concat filter with one re-encode.
func (p *Phase) concatReencode(ctx context.Context, state *core.State, outPath string) error {
	args := concatReencodeArgs(state.SceneClips,
		state.Script.Video.Params(), state.Script.Audio.Params(),
		state.HW.Kind, !state.Mode.GPUAllowed(), outPath)
	return state.Runner.Run(ctx, args)
}

// concatReencodeArgs assembles the concat-filter invocation.
func concatReencodeArgs(clips []core.SceneClip, video models.VideoParams, audio models.AudioParams,
	hwKind models.HWEncoderKind, forceCPU bool, outPath string) []string {

	args := []string{"-y"}
	var labels strings.Builder
	for i, sc := range clips {
		args = append(args, "-i", sc.Path)
		fmt.Fprintf(&labels, "[%d:v][%d:a]", i, i)
	}
	filter := fmt.Sprintf("%sconcat=n=%d:v=1:a=1[v][a]", labels.String(), len(clips))

	args = append(args, "-filter_complex", filter, "-map", "[v]", "-map", "[a]")
	args = append(args, filtergraph.VideoEncodeArgs(video, hwKind, forceCPU)...)
	args = append(args, filtergraph.AudioEncodeArgs(audio)...)
	args = append(args, "-movflags", "+faststart", outPath)
	return args
}

// mixBGM lays the background music under the joined video's audio. The
// video stream is copied untouched.
func (p *Phase) mixBGM(ctx context.Context, state *core.State, inPath, outPath string) error {
	args := bgmMixArgs(state.Script.BGM, state.Timeline.TotalDuration(),
		state.Script.Audio.Params(), inPath, outPath)
	return state.Runner.Run(ctx, args)
}

// bgmMixArgs assembles the BGM mix invocation: volume, optional fades, and
// padding so short music does not truncate the mix.
func bgmMixArgs(bgm *script.BGMSettings, total float64, audio models.AudioParams, inPath, outPath string) []string {
	return filtergraph.BGMMixArgs(filtergraph.BGMSpec{
		Path:    bgm.Path,
		Volume:  bgm.Volume,
		Start:   bgm.Start,
		FadeIn:  bgm.FadeIn,
		FadeOut: bgm.FadeOut,
	}, total, audio, inPath, outPath)
}
