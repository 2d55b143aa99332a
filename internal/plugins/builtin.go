package plugins

import (
	"fmt"
	"strconv"
)

// registerBuiltins installs the stock effects. Overlay effects return filter
// chains applied to the stream they decorate; subtitle effects return
// coordinate expressions consumed by the subtitle overlay step. Each motion
// effect is also reachable under its scoped id ("bg:", "char:", "screen:").
func registerBuiltins(r *Registry) {
	r.Register("blur", buildBlur, KindOverlay, SourceBuiltin, "builtin")
	r.Alias("gblur", "blur", SourceBuiltin)

	r.Register("vignette", buildVignette, KindOverlay, SourceBuiltin, "builtin")

	r.Register("shake_bg", shakeBuilder(10, 6, true, true), KindOverlay, SourceBuiltin, "builtin")
	r.Register("shake_char", shakeBuilder(8, 8, true, true), KindOverlay, SourceBuiltin, "builtin")
	r.Register("bob_char", shakeBuilder(6, 0.8, false, true), KindOverlay, SourceBuiltin, "builtin")
	r.Register("sway_char", shakeBuilder(10, 0.5, true, false), KindOverlay, SourceBuiltin, "builtin")
	r.Register("shake_screen", shakeBuilder(12, 10, true, true), KindOverlay, SourceBuiltin, "builtin")
	r.Alias("bg:shake_bg", "shake_bg", SourceBuiltin)
	r.Alias("char:shake_char", "shake_char", SourceBuiltin)
	r.Alias("char:bob_char", "bob_char", SourceBuiltin)
	r.Alias("char:sway_char", "sway_char", SourceBuiltin)
	r.Alias("screen:shake_screen", "shake_screen", SourceBuiltin)

	r.Register("bounce", buildBounce, KindSubtitle, SourceBuiltin, "builtin")
}

func buildBlur(params map[string]any, _ float64) (string, error) {
	sigma := floatParam(params, "sigma", 10)
	if sigma < 0 {
		return "", fmt.Errorf("sigma must not be negative, got %v", sigma)
	}
	return "gblur=sigma=" + formatFloat(sigma), nil
}

func buildVignette(params map[string]any, _ float64) (string, error) {
	if angle, ok := params["angle"]; ok {
		return "vignette=angle=" + fmt.Sprint(angle), nil
	}
	return "vignette", nil
}

// shakeBuilder produces a pad+crop translation loop. The stream is padded by
// the amplitude on the moving axes, then cropped back to its original size
// with sinusoidal offsets, so no content is lost at the edges. An optional
// envelope scales the amplitude over the clip duration.
func shakeBuilder(defAmp, defFreq float64, horizontal, vertical bool) Builder {
	return func(params map[string]any, duration float64) (string, error) {
		amp := floatParam(params, "amplitude", defAmp)
		freq := floatParam(params, "frequency", defFreq)
		if amp <= 0 {
			return "", fmt.Errorf("amplitude must be positive, got %v", amp)
		}
		a := formatFloat(amp)
		f := formatFloat(freq)
		env := envelopeExpr(stringParam(params, "envelope", "constant"),
			floatParam(params, "power", 2), duration)

		// offset = amplitude + envelope-scaled oscillation; x and y stay a
		// quarter period apart so the motion never collapses to a diagonal
		offset := func(fn string) string {
			term := a + "*" + fn + "(2*PI*" + f + "*t)"
			if env != "1" {
				term = env + "*" + term
			}
			return a + "+" + term
		}

		padW, padH, padX, padY := "iw", "ih", "0", "0"
		cropX, cropY := "0", "0"
		if horizontal {
			padW = "iw+2*" + a
			padX = a
			cropX = offset("sin")
		}
		if vertical {
			padH = "ih+2*" + a
			padY = a
			cropY = offset("cos")
		}

		cropW, cropH := "iw", "ih"
		if horizontal {
			cropW = "iw-2*" + a
		}
		if vertical {
			cropH = "ih-2*" + a
		}

		return fmt.Sprintf("pad=%s:%s:%s:%s,crop=%s:%s:%s:%s",
			padW, padH, padX, padY, cropW, cropH, cropX, cropY), nil
	}
}

// envelopeExpr is a 0..1 amplitude factor over the clip duration. The
// progress term clamps to [0,1] so expressions stay bounded past the end.
func envelopeExpr(name string, power, duration float64) string {
	if duration <= 0 || name == "" || name == "constant" {
		return "1"
	}
	p := formatFloat(power)
	prog := fmt.Sprintf("clip(t/%s,0,1)", formatFloat(duration))
	switch name {
	case "linear":
		return prog
	case "ease_in":
		return fmt.Sprintf("pow(%s,%s)", prog, p)
	case "ease_out":
		return fmt.Sprintf("(1-pow(1-%s,%s))", prog, p)
	case "ease_in_out":
		return fmt.Sprintf("(pow(%s,%s)/(pow(%s,%s)+pow(1-%s,%s)))",
			prog, p, prog, p, prog, p)
	}
	return "1"
}

// buildBounce returns a vertical offset expression added to the subtitle's
// baseline y position.
func buildBounce(params map[string]any, _ float64) (string, error) {
	amp := floatParam(params, "amplitude", 12)
	freq := floatParam(params, "frequency", 1.2)
	return fmt.Sprintf("-%s*abs(sin(2*PI*%s*t))", formatFloat(amp), formatFloat(freq)), nil
}

// floatParam reads a numeric parameter, tolerating the int/float/string
// variants YAML decoding produces.
func floatParam(params map[string]any, key string, def float64) float64 {
	v, ok := params[key]
	if !ok {
		return def
	}
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	case int64:
		return float64(n)
	case string:
		if f, err := strconv.ParseFloat(n, 64); err == nil {
			return f
		}
	}
	return def
}

func stringParam(params map[string]any, key, def string) string {
	if v, ok := params[key].(string); ok && v != "" {
		return v
	}
	return def
}

// formatFloat renders numbers compactly and stably for filter strings.
func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
