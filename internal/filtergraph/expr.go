package filtergraph

import (
	"fmt"
	"strconv"

	"github.com/zundamotion/zundamotion/internal/models"
)

// ff renders a float the way filter expressions expect: compact, no
// exponent surprises for the usual magnitudes.
func ff(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// anchorExprs returns overlay x/y expressions for an anchor plus pixel
// offset, in terms of the overlay filter's W/H (main) and w/h (overlay).
func anchorExprs(a models.Anchor, pos models.Position) (x, y string) {
	switch a {
	case models.AnchorTopLeft, models.AnchorMiddleLeft, models.AnchorBottomLeft:
		x = "0"
	case models.AnchorTopRight, models.AnchorMiddleRight, models.AnchorBottomRight:
		x = "W-w"
	default:
		x = "(W-w)/2"
	}
	switch a {
	case models.AnchorTopLeft, models.AnchorTopCenter, models.AnchorTopRight:
		y = "0"
	case models.AnchorBottomLeft, models.AnchorBottomCenter, models.AnchorBottomRight:
		y = "H-h"
	default:
		y = "(H-h)/2"
	}
	if pos.X != 0 {
		x = fmt.Sprintf("%s+%d", x, pos.X)
	}
	if pos.Y != 0 {
		y = fmt.Sprintf("%s+%d", y, pos.Y)
	}
	return x, y
}

// NumericAnchor resolves an anchor to concrete pixel coordinates for known
// frame and overlay sizes. Face-animation sub-overlays use this so they land
// on the base character at rest.
func NumericAnchor(a models.Anchor, pos models.Position, frameW, frameH, w, h int) (int, int) {
	var x, y int
	switch a {
	case models.AnchorTopLeft, models.AnchorMiddleLeft, models.AnchorBottomLeft:
		x = 0
	case models.AnchorTopRight, models.AnchorMiddleRight, models.AnchorBottomRight:
		x = frameW - w
	default:
		x = (frameW - w) / 2
	}
	switch a {
	case models.AnchorTopLeft, models.AnchorTopCenter, models.AnchorTopRight:
		y = 0
	case models.AnchorBottomLeft, models.AnchorBottomCenter, models.AnchorBottomRight:
		y = frameH - h
	default:
		y = (frameH - h) / 2
	}
	return x + pos.X, y + pos.Y
}

// Easing names the envelope shapes effects and slides can use.
type Easing string

const (
	EaseLinear   Easing = "linear"
	EaseIn       Easing = "ease_in"
	EaseOut      Easing = "ease_out"
	EaseInOut    Easing = "ease_in_out"
	EaseConstant Easing = "constant"
)

// easingExpr returns a 0..1 progress expression over tExpr in [0,1].
// ease_in_out uses the rational sigmoid u^p/(u^p+(1-u)^p).
func easingExpr(e Easing, power float64, tExpr string) string {
	p := ff(power)
	u := "clip(" + tExpr + ",0,1)"
	switch e {
	case EaseIn:
		return fmt.Sprintf("pow(%s,%s)", u, p)
	case EaseOut:
		return fmt.Sprintf("(1-pow(1-%s,%s))", u, p)
	case EaseInOut:
		return fmt.Sprintf("(pow(%s,%s)/(pow(%s,%s)+pow(1-%s,%s)))", u, p, u, p, u, p)
	case EaseConstant:
		return "1"
	default:
		return u
	}
}

// enableBetween builds an enable expression covering [start, end).
func enableBetween(start, end float64) string {
	return fmt.Sprintf("between(t,%s,%s)", ff(start), ff(end))
}

// enableSegments ORs a set of intervals into one enable expression.
func enableSegments(segs [][2]float64) string {
	if len(segs) == 0 {
		return "0"
	}
	parts := make([]string, len(segs))
	for i, s := range segs {
		parts[i] = enableBetween(s[0], s[1])
	}
	if len(parts) == 1 {
		return parts[0]
	}
	out := parts[0]
	for _, p := range parts[1:] {
		out = out + "+" + p
	}
	return "gt(" + out + ",0)"
}
