package filtergraph

import (
	"fmt"
	"os"
	"strconv"

	"github.com/zundamotion/zundamotion/internal/models"
)

// Alpha-threshold environment controls. Hard-thresholding the alpha channel
// avoids fringing on the CPU overlay path; it is dropped on retry because
// some builds miss the lut filter on failure paths.
const (
	EnvCharAlphaThreshold    = "CHAR_ALPHA_THRESHOLD"
	EnvFaceAlphaThreshold    = "FACE_ALPHA_THRESHOLD"
	EnvDisableAlphaThreshold = "DISABLE_ALPHA_HARD_THRESHOLD"
)

// alphaThreshold reads a 0..1 threshold from env, with a default. Returns
// 0 when thresholding is disabled.
func alphaThreshold(envVar string, def float64) float64 {
	if os.Getenv(EnvDisableAlphaThreshold) == "1" {
		return 0
	}
	if raw := os.Getenv(envVar); raw != "" {
		if v, err := strconv.ParseFloat(raw, 64); err == nil && v > 0 && v < 1 {
			return v
		}
	}
	return def
}

// alphaThresholdFilter hard-cuts the alpha channel at threshold thr.
func alphaThresholdFilter(thr float64) string {
	cut := int(thr * 255)
	return fmt.Sprintf("lut=a='if(gte(val,%d),255,0)'", cut)
}

// CharacterChain prepares one character input stream: RGBA format, scale,
// optional alpha threshold, fade enter/leave, and per-character effects.
func CharacterChain(p models.OverlayPlacement, duration float64, effectFrags []string, disableAlphaThreshold bool) []string {
	filters := []string{"format=rgba"}

	if p.Scale > 0 && p.Scale != 1.0 {
		filters = append(filters, fmt.Sprintf("scale=iw*%s:-1", ff(p.Scale)))
	}

	if !disableAlphaThreshold {
		if thr := alphaThreshold(EnvCharAlphaThreshold, 0.5); thr > 0 {
			filters = append(filters, alphaThresholdFilter(thr))
		}
	}

	if p.EnterEffect == models.EffectFade && p.EnterDuration > 0 {
		filters = append(filters,
			fmt.Sprintf("fade=t=in:st=0:d=%s:alpha=1", ff(p.EnterDuration)))
	}
	if p.LeaveEffect == models.EffectFade && p.LeaveDuration > 0 {
		filters = append(filters,
			fmt.Sprintf("fade=t=out:st=%s:d=%s:alpha=1",
				ff(duration-p.LeaveDuration), ff(p.LeaveDuration)))
	}

	filters = append(filters, effectFrags...)
	return filters
}

// CharacterPosition returns the overlay x/y expressions for a placement,
// including slide enter/leave interpolation. Slides ease toward the anchor
// position during the enter window and away during the leave window.
func CharacterPosition(p models.OverlayPlacement, duration float64) (x, y string) {
	x, y = anchorExprs(p.Anchor, p.Position)

	x = slideExpr(x, p.EnterEffect, p.EnterDuration, p.LeaveEffect, p.LeaveDuration, duration, true)
	y = slideExpr(y, p.EnterEffect, p.EnterDuration, p.LeaveEffect, p.LeaveDuration, duration, false)
	return x, y
}

// slideExpr rewrites one axis of the base position as a piecewise slide.
// horizontal selects which slide directions affect this axis.
func slideExpr(base string, enter models.EnterLeaveEffect, enterDur float64,
	leave models.EnterLeaveEffect, leaveDur float64, duration float64, horizontal bool) string {

	offFor := func(e models.EnterLeaveEffect) (string, bool) {
		switch e {
		case models.EffectSlideLeft:
			if horizontal {
				return "-w", true
			}
		case models.EffectSlideRight:
			if horizontal {
				return "W", true
			}
		case models.EffectSlideTop:
			if !horizontal {
				return "-h", true
			}
		case models.EffectSlideBottom:
			if !horizontal {
				return "H", true
			}
		}
		return "", false
	}

	expr := base
	if off, ok := offFor(enter); ok && enterDur > 0 {
		ease := easingExpr(EaseOut, 2, "t/"+ff(enterDur))
		expr = fmt.Sprintf("if(lt(t,%s),(%s)+((%s)-(%s))*%s,%s)",
			ff(enterDur), off, expr, off, ease, expr)
	}
	if off, ok := offFor(leave); ok && leaveDur > 0 {
		start := duration - leaveDur
		ease := easingExpr(EaseIn, 2, fmt.Sprintf("(t-%s)/%s", ff(start), ff(leaveDur)))
		expr = fmt.Sprintf("if(gt(t,%s),(%s)+((%s)-(%s))*%s,%s)",
			ff(start), expr, off, expr, ease, expr)
	}
	return expr
}
