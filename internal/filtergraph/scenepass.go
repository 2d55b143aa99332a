package filtergraph

import (
	"fmt"

	"github.com/zundamotion/zundamotion/internal/models"
)

// SceneImage is a foreground image overlaid on a scene clip for its full
// duration.
type SceneImage struct {
	Placement models.OverlayPlacement
	Opacity   float64 // 0 or 1 = opaque
}

// SubtitleWindow is one line's subtitle PNG and the window it is visible in
// on the scene's time axis.
type SubtitleWindow struct {
	PNGPath      string
	MarginBottom int
	YOffsetExpr  string
	Start        float64
	End          float64
}

// ScenePostArgs assembles the single pass that composites scene-level
// foreground overlays and all subtitle windows onto a concatenated scene
// clip. The audio stream is copied; the video is re-encoded on the CPU path
// since every overlay here carries alpha.
func ScenePostArgs(inPath string, images []SceneImage, subs []SubtitleWindow,
	duration float64, video models.VideoParams, outPath string) []string {

	g := NewGraph()
	g.AddInput(inPath)
	current := "0:v"

	for _, img := range images {
		idx := g.AddInput(img.Placement.ImagePath, "-loop", "1")

		filters := CharacterChain(img.Placement, duration, nil, false)
		if img.Opacity > 0 && img.Opacity < 1 {
			filters = append(filters, fmt.Sprintf("colorchannelmixer=aa=%s", ff(img.Opacity)))
		}
		prepared := g.Label("fg")
		g.AddChain([]string{fmt.Sprintf("%d:v", idx)}, filters, prepared)

		x, y := CharacterPosition(img.Placement, duration)
		next := g.Label("v")
		g.AddChain([]string{current, prepared},
			[]string{fmt.Sprintf("overlay=x='%s':y='%s':enable='%s'",
				x, y, enableBetween(0, duration))},
			next)
		current = next
	}

	for _, sub := range subs {
		idx := g.AddInput(sub.PNGPath, "-loop", "1")

		y := fmt.Sprintf("H-h-%d", sub.MarginBottom)
		if sub.YOffsetExpr != "" {
			y = y + sub.YOffsetExpr
		}
		next := g.Label("v")
		g.AddChain([]string{current, fmt.Sprintf("%d:v", idx)},
			[]string{fmt.Sprintf("overlay=x='(W-w)/2':y='%s':enable='%s'",
				y, enableBetween(sub.Start, sub.End))},
			next)
		current = next
	}

	final := g.Label("final_v")
	g.AddChain([]string{current}, []string{"format=" + video.PixFmt}, final)

	args := []string{"-y"}
	args = append(args, g.InputArgs()...)
	args = append(args, "-filter_complex", g.FilterComplex())
	args = append(args, "-map", "["+final+"]", "-map", "0:a", "-c:a", "copy")
	args = append(args, DurationArgs(duration)...)
	args = append(args, VideoEncodeArgs(video, models.HWEncoderNone, true)...)
	args = append(args, "-movflags", "+faststart", outPath)
	return args
}
