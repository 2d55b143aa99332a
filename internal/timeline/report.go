package timeline

import (
	"fmt"
	"io"
	"sort"
)

// VoiceStats aggregates speech per character.
type VoiceStats struct {
	Character string
	Lines     int
	Duration  float64
}

// VoiceReport tallies talk entries by character. Lines with no character
// are grouped under "(narration)".
func (t *Timeline) VoiceReport() []VoiceStats {
	byChar := map[string]*VoiceStats{}
	for _, e := range t.Entries() {
		if e.Kind != "talk" {
			continue
		}
		name := e.Character
		if name == "" {
			name = "(narration)"
		}
		st, ok := byChar[name]
		if !ok {
			st = &VoiceStats{Character: name}
			byChar[name] = st
		}
		st.Lines++
		st.Duration += e.Duration()
	}

	out := make([]VoiceStats, 0, len(byChar))
	for _, st := range byChar {
		out = append(out, *st)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Duration != out[j].Duration {
			return out[i].Duration > out[j].Duration
		}
		return out[i].Character < out[j].Character
	})
	return out
}

// WriteVoiceReport renders the per-character tallies as Markdown.
func (t *Timeline) WriteVoiceReport(w io.Writer) error {
	if _, err := fmt.Fprintf(w, "# Voice Report\n\n| Character | Lines | Speech Time |\n|-----------|-------|-------------|\n"); err != nil {
		return err
	}
	for _, st := range t.VoiceReport() {
		if _, err := fmt.Fprintf(w, "| %s | %d | %s |\n",
			st.Character, st.Lines, formatClock(st.Duration)); err != nil {
			return err
		}
	}
	return nil
}
