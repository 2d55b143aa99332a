package filtergraph

import (
	"fmt"

	"github.com/zundamotion/zundamotion/internal/models"
)

// FaceImages are the part images overlaid on top of the base character.
type FaceImages struct {
	EyesClose string
	MouthHalf string
	MouthOpen string
}

// FaceOverlay describes one face part ready for graph insertion.
type FaceOverlay struct {
	ImagePath string
	Enable    string
	X, Y      string
}

// FaceOverlays derives the eyes/mouth overlays for the animation target.
// Mouth segments are clipped to start no earlier than enterClip (the base
// character's enter animation window); blinks are not clipped. The overlays
// anchor at the base character's numeric position, or inherit the dynamic
// expression when the base moves.
func FaceOverlays(anim *models.FaceAnim, imgs FaceImages, base models.OverlayPlacement, duration float64) []FaceOverlay {
	if anim == nil {
		return nil
	}

	x, y := faceAnchor(base, duration)

	enterClip := 0.0
	if base.EnterEffect != models.EffectNone && base.EnterEffect != "" {
		enterClip = base.EnterDuration
	}

	var out []FaceOverlay

	if imgs.EyesClose != "" && len(anim.Eyes) > 0 {
		segs := make([][2]float64, 0, len(anim.Eyes))
		for _, b := range anim.Eyes {
			if b.Start >= duration {
				continue
			}
			segs = append(segs, [2]float64{b.Start, min(b.End, duration)})
		}
		if len(segs) > 0 {
			out = append(out, FaceOverlay{
				ImagePath: imgs.EyesClose,
				Enable:    enableSegments(segs),
				X:         x, Y: y,
			})
		}
	}

	for _, part := range []struct {
		state models.MouthState
		img   string
	}{
		{models.MouthHalf, imgs.MouthHalf},
		{models.MouthOpen, imgs.MouthOpen},
	} {
		if part.img == "" {
			continue
		}
		segs := mouthSegments(anim.Mouth, part.state, enterClip, duration)
		if len(segs) == 0 {
			continue
		}
		out = append(out, FaceOverlay{
			ImagePath: part.img,
			Enable:    enableSegments(segs),
			X:         x, Y: y,
		})
	}
	return out
}

// faceAnchor picks the coordinate expressions face parts follow. Static
// bases use the resolved numeric position; dynamic bases share the base's
// moving expression so the face tracks it.
func faceAnchor(base models.OverlayPlacement, duration float64) (string, string) {
	if base.DynamicPosition {
		return CharacterPosition(base, duration)
	}
	return fmt.Sprintf("%d", base.NumericX), fmt.Sprintf("%d", base.NumericY)
}

// mouthSegments selects the intervals of one mouth state, clipped to
// [enterClip, duration].
func mouthSegments(mouth []models.MouthSeg, state models.MouthState, enterClip, duration float64) [][2]float64 {
	var segs [][2]float64
	for _, m := range mouth {
		if m.State != state {
			continue
		}
		start, end := m.Start, m.End
		if start < enterClip {
			start = enterClip
		}
		if end > duration {
			end = duration
		}
		if end <= start {
			continue
		}
		segs = append(segs, [2]float64{start, end})
	}
	return segs
}
