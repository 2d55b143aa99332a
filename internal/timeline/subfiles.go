package timeline

import (
	"fmt"
	"io"
	"strings"
)

// WriteSRT emits a SubRip file. Only talk entries with text become cues;
// waits are gaps.
func (t *Timeline) WriteSRT(w io.Writer) error {
	n := 0
	for _, e := range t.Entries() {
		if e.Kind != "talk" || e.Text == "" {
			continue
		}
		n++
		_, err := fmt.Fprintf(w, "%d\n%s --> %s\n%s\n\n",
			n, srtTime(e.Start), srtTime(e.End), e.Text)
		if err != nil {
			return err
		}
	}
	return nil
}

// ASSStyle holds the handful of style fields the ASS header needs.
type ASSStyle struct {
	FontName     string
	FontSize     int
	PrimaryColor string // &HAABBGGRR
	OutlineColor string
	OutlineWidth int
	MarginBottom int
	PlayResX     int
	PlayResY     int
}

// DefaultASSStyle matches the built-in subtitle appearance.
func DefaultASSStyle() ASSStyle {
	return ASSStyle{
		FontName:     "Sans",
		FontSize:     48,
		PrimaryColor: "&H00FFFFFF",
		OutlineColor: "&H00000000",
		OutlineWidth: 2,
		MarginBottom: 60,
		PlayResX:     1920,
		PlayResY:     1080,
	}
}

// WriteASS emits an Advanced SubStation Alpha file with a single style.
// Talk entries with a character name carry it in the Name field.
func (t *Timeline) WriteASS(w io.Writer, style ASSStyle) error {
	header := fmt.Sprintf(`[Script Info]
ScriptType: v4.00+
PlayResX: %d
PlayResY: %d
WrapStyle: 0

[V4+ Styles]
Format: Name, Fontname, Fontsize, PrimaryColour, OutlineColour, BackColour, Bold, Italic, BorderStyle, Outline, Shadow, Alignment, MarginL, MarginR, MarginV, Encoding
Style: Default,%s,%d,%s,%s,&H00000000,0,0,1,%d,0,2,10,10,%d,1

[Events]
Format: Layer, Start, End, Style, Name, MarginL, MarginR, MarginV, Effect, Text
`,
		style.PlayResX, style.PlayResY,
		style.FontName, style.FontSize, style.PrimaryColor, style.OutlineColor,
		style.OutlineWidth, style.MarginBottom)

	if _, err := io.WriteString(w, header); err != nil {
		return err
	}

	for _, e := range t.Entries() {
		if e.Kind != "talk" || e.Text == "" {
			continue
		}
		text := strings.ReplaceAll(e.Text, "\n", "\\N")
		_, err := fmt.Fprintf(w, "Dialogue: 0,%s,%s,Default,%s,0,0,0,,%s\n",
			assTime(e.Start), assTime(e.End), e.Character, text)
		if err != nil {
			return err
		}
	}
	return nil
}

// srtTime renders HH:MM:SS,mmm.
func srtTime(sec float64) string {
	ms := int(sec*1000 + 0.5)
	return fmt.Sprintf("%02d:%02d:%02d,%03d",
		ms/3600000, ms%3600000/60000, ms%60000/1000, ms%1000)
}

// assTime renders H:MM:SS.cc (centiseconds).
func assTime(sec float64) string {
	cs := int(sec*100 + 0.5)
	return fmt.Sprintf("%d:%02d:%02d.%02d",
		cs/360000, cs%360000/6000, cs%6000/100, cs%100)
}
