package filtergraph

import (
	"fmt"

	"github.com/zundamotion/zundamotion/internal/models"
)

// padAnchorExprs returns pad x/y placing the input inside the output box
// (ow/oh = output, iw/ih = input).
func padAnchorExprs(a models.Anchor, pos models.Position) (x, y string) {
	switch a {
	case models.AnchorTopLeft, models.AnchorMiddleLeft, models.AnchorBottomLeft:
		x = "0"
	case models.AnchorTopRight, models.AnchorMiddleRight, models.AnchorBottomRight:
		x = "ow-iw"
	default:
		x = "(ow-iw)/2"
	}
	switch a {
	case models.AnchorTopLeft, models.AnchorTopCenter, models.AnchorTopRight:
		y = "0"
	case models.AnchorBottomLeft, models.AnchorBottomCenter, models.AnchorBottomRight:
		y = "oh-ih"
	default:
		y = "(oh-ih)/2"
	}
	if pos.X != 0 {
		x = fmt.Sprintf("%s+%d", x, pos.X)
	}
	if pos.Y != 0 {
		y = fmt.Sprintf("%s+%d", y, pos.Y)
	}
	return x, y
}

// cropAnchorExprs returns crop x/y selecting the output box out of a larger
// input (iw/ih = input, ow/oh = crop size).
func cropAnchorExprs(a models.Anchor, pos models.Position) (x, y string) {
	switch a {
	case models.AnchorTopLeft, models.AnchorMiddleLeft, models.AnchorBottomLeft:
		x = "0"
	case models.AnchorTopRight, models.AnchorMiddleRight, models.AnchorBottomRight:
		x = "iw-ow"
	default:
		x = "(iw-ow)/2"
	}
	switch a {
	case models.AnchorTopLeft, models.AnchorTopCenter, models.AnchorTopRight:
		y = "0"
	case models.AnchorBottomLeft, models.AnchorBottomCenter, models.AnchorBottomRight:
		y = "ih-oh"
	default:
		y = "(ih-oh)/2"
	}
	if pos.X != 0 {
		x = fmt.Sprintf("%s+%d", x, pos.X)
	}
	if pos.Y != 0 {
		y = fmt.Sprintf("%s+%d", y, pos.Y)
	}
	return x, y
}

// BackgroundFit builds the filter chain fitting a background into the
// target frame. Pre-scaled inputs (scene-base, run-base) pass through
// untouched; applyFPS appends a frame-rate conversion at the end.
func BackgroundFit(layout models.BackgroundLayout, preScaled bool, w, h, fps int, applyFPS bool) []string {
	var filters []string
	if preScaled {
		filters = []string{"null"}
	} else {
		filters = fitFilters(layout, w, h)
	}
	if applyFPS {
		filters = append(filters, fmt.Sprintf("fps=%d", fps))
	}
	return filters
}

func fitFilters(layout models.BackgroundLayout, w, h int) []string {
	fill := layout.FillColor
	if fill == "" {
		fill = "black"
	}

	switch layout.Fit {
	case models.FitContain:
		px, py := padAnchorExprs(layout.Anchor, layout.Position)
		return []string{
			fmt.Sprintf("scale=%d:%d:force_original_aspect_ratio=decrease", w, h),
			fmt.Sprintf("pad=%d:%d:%s:%s:color=%s", w, h, px, py, fill),
		}
	case models.FitCover:
		cx, cy := cropAnchorExprs(layout.Anchor, layout.Position)
		return []string{
			fmt.Sprintf("scale=%d:%d:force_original_aspect_ratio=increase", w, h),
			fmt.Sprintf("crop=%d:%d:%s:%s", w, h, cx, cy),
		}
	case models.FitFitWidth:
		cx, cy := cropAnchorExprs(layout.Anchor, layout.Position)
		px, py := padAnchorExprs(layout.Anchor, layout.Position)
		return []string{
			fmt.Sprintf("scale=%d:-2", w),
			fmt.Sprintf("crop=%d:'min(ih,%d)':%s:%s", w, h, cx, cy),
			fmt.Sprintf("pad=%d:%d:%s:%s:color=%s", w, h, px, py, fill),
		}
	case models.FitFitHeight:
		cx, cy := cropAnchorExprs(layout.Anchor, layout.Position)
		px, py := padAnchorExprs(layout.Anchor, layout.Position)
		return []string{
			fmt.Sprintf("scale=-2:%d", h),
			fmt.Sprintf("crop='min(iw,%d)':%d:%s:%s", w, h, cx, cy),
			fmt.Sprintf("pad=%d:%d:%s:%s:color=%s", w, h, px, py, fill),
		}
	default: // stretch
		return []string{fmt.Sprintf("scale=%d:%d", w, h)}
	}
}

// GPUBackgroundFit is the hybrid-path variant: upload, scale on the GPU
// with the probed scale filter, download, then finish fitting on the CPU.
// Only stretch benefits; other fits fall back to the CPU chain entirely.
func GPUBackgroundFit(layout models.BackgroundLayout, scaleFilter string, w, h, fps int, applyFPS bool) []string {
	if layout.Fit != models.FitStretch && layout.Fit != "" {
		return BackgroundFit(layout, false, w, h, fps, applyFPS)
	}
	filters := []string{
		"format=nv12",
		"hwupload_cuda",
		fmt.Sprintf("%s=%d:%d", scaleFilter, w, h),
		"hwdownload",
		"format=nv12",
	}
	if applyFPS {
		filters = append(filters, fmt.Sprintf("fps=%d", fps))
	}
	return filters
}
