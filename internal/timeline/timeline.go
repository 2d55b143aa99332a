// Package timeline records when each line plays in the final video and
// writes the human-readable exports: a Markdown/CSV timeline, SRT/ASS
// subtitle files, and a per-character voice report.
package timeline

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"sync"
)

// Entry is one rendered line placed on the output's time axis.
type Entry struct {
	SceneID   string  `json:"scene_id"`
	LineIndex int     `json:"line_index"` // 1-based within the scene
	LineID    string  `json:"line_id"`
	Start     float64 `json:"start"`
	End       float64 `json:"end"`
	Kind      string  `json:"kind"` // talk or wait
	Character string  `json:"character,omitempty"`
	Text      string  `json:"text,omitempty"`
}

// Duration returns the entry length in seconds.
func (e Entry) Duration() float64 { return e.End - e.Start }

// Timeline accumulates entries as clips are scheduled. Safe for concurrent
// Add; exports sort by start time.
type Timeline struct {
	mu      sync.Mutex
	entries []Entry
}

// New returns an empty timeline.
func New() *Timeline {
	return &Timeline{}
}

// Add appends one entry.
func (t *Timeline) Add(e Entry) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries = append(t.entries, e)
}

// Entries returns a copy sorted by start time.
func (t *Timeline) Entries() []Entry {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Entry, len(t.entries))
	copy(out, t.entries)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Start < out[j].Start })
	return out
}

// TotalDuration returns the end time of the last entry.
func (t *Timeline) TotalDuration() float64 {
	var max float64
	for _, e := range t.Entries() {
		if e.End > max {
			max = e.End
		}
	}
	return max
}

// WriteMarkdown renders the timeline as a table.
func (t *Timeline) WriteMarkdown(w io.Writer) error {
	if _, err := fmt.Fprintf(w, "# Timeline\n\n| # | Scene | Start | End | Kind | Character | Text |\n|---|-------|-------|-----|------|-----------|------|\n"); err != nil {
		return err
	}
	for i, e := range t.Entries() {
		_, err := fmt.Fprintf(w, "| %d | %s | %s | %s | %s | %s | %s |\n",
			i+1, e.SceneID, formatClock(e.Start), formatClock(e.End), e.Kind, e.Character, e.Text)
		if err != nil {
			return err
		}
	}
	return nil
}

// WriteCSV renders the timeline as CSV with a header row.
func (t *Timeline) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"line_id", "scene_id", "start", "end", "kind", "character", "text"}); err != nil {
		return err
	}
	for _, e := range t.Entries() {
		rec := []string{
			e.LineID,
			e.SceneID,
			strconv.FormatFloat(e.Start, 'f', 3, 64),
			strconv.FormatFloat(e.End, 'f', 3, 64),
			e.Kind,
			e.Character,
			e.Text,
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// SaveFile writes one export chosen by extension: .md, .csv, .srt, or .ass.
func (t *Timeline) SaveFile(path, format string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	defer f.Close()

	switch format {
	case "md":
		err = t.WriteMarkdown(f)
	case "csv":
		err = t.WriteCSV(f)
	case "srt":
		err = t.WriteSRT(f)
	case "ass":
		err = t.WriteASS(f, DefaultASSStyle())
	default:
		err = fmt.Errorf("unknown timeline format %q", format)
	}
	if err != nil {
		return err
	}
	return f.Close()
}

// formatClock renders seconds as H:MM:SS.mmm for the Markdown table.
func formatClock(sec float64) string {
	ms := int(sec*1000 + 0.5)
	h := ms / 3600000
	m := ms % 3600000 / 60000
	s := ms % 60000 / 1000
	ms %= 1000
	return fmt.Sprintf("%d:%02d:%02d.%03d", h, m, s, ms)
}
