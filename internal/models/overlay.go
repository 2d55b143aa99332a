package models

// Anchor names a reference point on the frame for overlay placement.
type Anchor string

const (
	AnchorTopLeft      Anchor = "top_left"
	AnchorTopCenter    Anchor = "top_center"
	AnchorTopRight     Anchor = "top_right"
	AnchorMiddleLeft   Anchor = "middle_left"
	AnchorMiddleCenter Anchor = "middle_center"
	AnchorMiddleRight  Anchor = "middle_right"
	AnchorBottomLeft   Anchor = "bottom_left"
	AnchorBottomCenter Anchor = "bottom_center"
	AnchorBottomRight  Anchor = "bottom_right"
)

// ValidAnchor reports whether a is one of the nine anchor names.
func ValidAnchor(a Anchor) bool {
	switch a {
	case AnchorTopLeft, AnchorTopCenter, AnchorTopRight,
		AnchorMiddleLeft, AnchorMiddleCenter, AnchorMiddleRight,
		AnchorBottomLeft, AnchorBottomCenter, AnchorBottomRight:
		return true
	}
	return false
}

// FitMode controls how a background is fitted into the target frame.
type FitMode string

const (
	FitStretch   FitMode = "stretch"
	FitContain   FitMode = "contain"
	FitCover     FitMode = "cover"
	FitFitWidth  FitMode = "fit_width"
	FitFitHeight FitMode = "fit_height"
)

// Position is a pixel offset relative to an anchor.
type Position struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// BackgroundLayout is the resolved per-line background fit, produced by
// merging global -> scene -> line overrides.
type BackgroundLayout struct {
	Fit       FitMode  `json:"fit"`
	FillColor string   `json:"fill_color"`
	Anchor    Anchor   `json:"anchor"`
	Position  Position `json:"position"`
}

// DefaultBackgroundLayout is full-frame stretch.
func DefaultBackgroundLayout() BackgroundLayout {
	return BackgroundLayout{
		Fit:       FitStretch,
		FillColor: "black",
		Anchor:    AnchorMiddleCenter,
	}
}

// EnterLeaveEffect names a character enter or leave animation.
type EnterLeaveEffect string

const (
	EffectNone        EnterLeaveEffect = "none"
	EffectFade        EnterLeaveEffect = "fade"
	EffectSlideLeft   EnterLeaveEffect = "slide_left"
	EffectSlideRight  EnterLeaveEffect = "slide_right"
	EffectSlideTop    EnterLeaveEffect = "slide_top"
	EffectSlideBottom EnterLeaveEffect = "slide_bottom"
)

// Effect is a generic effect reference resolved through the plugin registry.
type Effect struct {
	Type   string         `json:"type"`
	Params map[string]any `json:"params,omitempty"`
}

// OverlayPlacement is a fully resolved character overlay: which image, where,
// and how it enters and leaves. NumericX/NumericY is the anchor-resolved pixel
// position used by face-animation sub-overlays so mouth and eyes land exactly
// on the base character at rest.
type OverlayPlacement struct {
	Name            string           `json:"name"`
	Expression      string           `json:"expression"`
	ImagePath       string           `json:"image_path"`
	Scale           float64          `json:"scale"`
	Anchor          Anchor           `json:"anchor"`
	Position        Position         `json:"position"`
	EnterEffect     EnterLeaveEffect `json:"enter_effect"`
	EnterDuration   float64          `json:"enter_duration"`
	LeaveEffect     EnterLeaveEffect `json:"leave_effect"`
	LeaveDuration   float64          `json:"leave_duration"`
	DynamicPosition bool             `json:"dynamic_position"`
	NumericX        int              `json:"numeric_x"`
	NumericY        int              `json:"numeric_y"`
	Effects         []Effect         `json:"effects,omitempty"`
}

// StaticKey is the quantized identity of a character overlay used for
// static-overlay detection. Two placements with equal keys can be baked into
// a shared scene-base or run-base.
type StaticKey struct {
	Name   string `json:"name"`
	Expr   string `json:"expr"`
	ScaleQ int    `json:"scale_q"` // scale * 1000, truncated
	Anchor Anchor `json:"anchor"`
	XQ     int    `json:"x_q"`
	YQ     int    `json:"y_q"`
}

// Static returns the quantized identity of the placement. Placements with
// enter/leave animation or dynamic positions are never static.
func (p OverlayPlacement) Static() (StaticKey, bool) {
	if p.DynamicPosition {
		return StaticKey{}, false
	}
	if p.EnterEffect != EffectNone && p.EnterEffect != "" {
		return StaticKey{}, false
	}
	if p.LeaveEffect != EffectNone && p.LeaveEffect != "" {
		return StaticKey{}, false
	}
	if len(p.Effects) > 0 {
		return StaticKey{}, false
	}
	return StaticKey{
		Name:   p.Name,
		Expr:   p.Expression,
		ScaleQ: int(p.Scale * 1000),
		Anchor: p.Anchor,
		XQ:     p.Position.X,
		YQ:     p.Position.Y,
	}, true
}
