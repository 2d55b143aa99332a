// Package subtitle rasterizes per-line subtitle text into transparent PNGs
// that the filter graph overlays onto each clip. Rasterizing up front keeps
// font shaping out of the transcoder and makes the images cacheable.
package subtitle

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"os"
	"strings"

	"golang.org/x/image/font"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"
	"golang.org/x/text/unicode/norm"
	"golang.org/x/text/width"
)

// Style is the resolved appearance of a subtitle image.
type Style struct {
	FontPath     string
	FontSize     int
	Color        color.RGBA
	OutlineColor color.RGBA
	OutlineWidth int
	LineSpacing  int
	MaxWidth     int // wrap limit in pixels, 0 = no wrapping
}

// Renderer rasterizes text with one loaded font face. It is safe for
// concurrent use only through the Pool; font.Face is not goroutine-safe.
type Renderer struct {
	face  font.Face
	style Style
}

// NewRenderer loads the font and prepares a face at the style's size.
func NewRenderer(style Style) (*Renderer, error) {
	data, err := os.ReadFile(style.FontPath)
	if err != nil {
		return nil, fmt.Errorf("reading font %s: %w", style.FontPath, err)
	}
	ft, err := opentype.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parsing font %s: %w", style.FontPath, err)
	}
	face, err := opentype.NewFace(ft, &opentype.FaceOptions{
		Size:    float64(style.FontSize),
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err != nil {
		return nil, fmt.Errorf("creating font face: %w", err)
	}
	return &Renderer{face: face, style: style}, nil
}

// Close releases the font face.
func (r *Renderer) Close() error { return r.face.Close() }

// Render rasterizes text into a tightly sized RGBA image with transparent
// background. Explicit newlines are honored; long lines wrap at MaxWidth.
func (r *Renderer) Render(text string) (*image.RGBA, error) {
	text = norm.NFC.String(text)
	lines := r.wrap(text)
	if len(lines) == 0 {
		return nil, fmt.Errorf("empty subtitle text")
	}

	metrics := r.face.Metrics()
	lineHeight := metrics.Height.Ceil() + r.style.LineSpacing
	ascent := metrics.Ascent.Ceil()
	pad := r.style.OutlineWidth

	maxW := 0
	for _, line := range lines {
		if w := font.MeasureString(r.face, line).Ceil(); w > maxW {
			maxW = w
		}
	}

	img := image.NewRGBA(image.Rect(0, 0, maxW+2*pad, lineHeight*len(lines)+2*pad))
	draw.Draw(img, img.Bounds(), image.Transparent, image.Point{}, draw.Src)

	for i, line := range lines {
		// center shorter lines
		w := font.MeasureString(r.face, line).Ceil()
		x := pad + (maxW-w)/2
		y := pad + ascent + i*lineHeight
		r.drawLine(img, line, x, y)
	}
	return img, nil
}

// drawLine paints the outline ring first, then the fill on top.
func (r *Renderer) drawLine(dst *image.RGBA, line string, x, y int) {
	ow := r.style.OutlineWidth
	if ow > 0 {
		outline := &font.Drawer{
			Dst:  dst,
			Src:  image.NewUniform(r.style.OutlineColor),
			Face: r.face,
		}
		for dy := -ow; dy <= ow; dy++ {
			for dx := -ow; dx <= ow; dx++ {
				if dx == 0 && dy == 0 {
					continue
				}
				if dx*dx+dy*dy > ow*ow {
					continue
				}
				outline.Dot = fixed.P(x+dx, y+dy)
				outline.DrawString(line)
			}
		}
	}

	fill := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(r.style.Color),
		Face: r.face,
		Dot:  fixed.P(x, y),
	}
	fill.DrawString(line)
}

// wrap splits text on explicit newlines and then breaks each line at
// MaxWidth. Break points fall between runes; East Asian text has no word
// boundaries to respect.
func (r *Renderer) wrap(text string) []string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimRight(line, " ")
		if line == "" {
			continue
		}
		if r.style.MaxWidth <= 0 {
			out = append(out, line)
			continue
		}
		out = append(out, r.breakLine(line)...)
	}
	return out
}

func (r *Renderer) breakLine(line string) []string {
	var (
		out  []string
		cur  strings.Builder
		curW fixed.Int26_6
	)
	limit := fixed.I(r.style.MaxWidth)

	for _, ru := range line {
		rw := font.MeasureString(r.face, string(ru))
		if cur.Len() > 0 && curW+rw > limit {
			out = append(out, cur.String())
			cur.Reset()
			curW = 0
		}
		cur.WriteRune(ru)
		curW += rw
	}
	if cur.Len() > 0 {
		out = append(out, cur.String())
	}
	return out
}

// DisplayWidth counts a string in half-width columns, with fullwidth and
// wide runes counting double. Used by the timeline writers for alignment.
func DisplayWidth(s string) int {
	total := 0
	for _, ru := range s {
		switch width.LookupRune(ru).Kind() {
		case width.EastAsianFullwidth, width.EastAsianWide:
			total += 2
		default:
			total++
		}
	}
	return total
}

// WritePNG encodes img to path.
func WritePNG(img image.Image, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		return fmt.Errorf("encoding %s: %w", path, err)
	}
	return f.Close()
}

// ParseColor accepts #RGB, #RRGGBB, #RRGGBBAA, and a few common names.
func ParseColor(s string) (color.RGBA, error) {
	switch strings.ToLower(s) {
	case "", "white":
		return color.RGBA{255, 255, 255, 255}, nil
	case "black":
		return color.RGBA{0, 0, 0, 255}, nil
	case "red":
		return color.RGBA{255, 0, 0, 255}, nil
	case "green":
		return color.RGBA{0, 255, 0, 255}, nil
	case "blue":
		return color.RGBA{0, 0, 255, 255}, nil
	}

	hexStr := strings.TrimPrefix(s, "#")
	var c color.RGBA
	c.A = 255
	switch len(hexStr) {
	case 3:
		_, err := fmt.Sscanf(hexStr, "%1x%1x%1x", &c.R, &c.G, &c.B)
		if err != nil {
			return c, fmt.Errorf("parsing color %q: %w", s, err)
		}
		c.R *= 17
		c.G *= 17
		c.B *= 17
	case 6:
		if _, err := fmt.Sscanf(hexStr, "%02x%02x%02x", &c.R, &c.G, &c.B); err != nil {
			return c, fmt.Errorf("parsing color %q: %w", s, err)
		}
	case 8:
		if _, err := fmt.Sscanf(hexStr, "%02x%02x%02x%02x", &c.R, &c.G, &c.B, &c.A); err != nil {
			return c, fmt.Errorf("parsing color %q: %w", s, err)
		}
	default:
		return c, fmt.Errorf("parsing color %q: unsupported format", s)
	}
	return c, nil
}
