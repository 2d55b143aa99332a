package timeline

import (
	"bytes"
	"encoding/csv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleTimeline() *Timeline {
	t := New()
	t.Add(Entry{SceneID: "intro", LineIndex: 1, LineID: "intro_1",
		Start: 0, End: 2.5, Kind: "talk", Character: "zundamon", Text: "こんにちは"})
	t.Add(Entry{SceneID: "intro", LineIndex: 2, LineID: "intro_2",
		Start: 2.5, End: 3.5, Kind: "wait"})
	t.Add(Entry{SceneID: "intro", LineIndex: 3, LineID: "intro_3",
		Start: 3.5, End: 7.0, Kind: "talk", Character: "metan", Text: "やあ"})
	return t
}

func TestEntriesSortedByStart(t *testing.T) {
	tl := New()
	tl.Add(Entry{LineID: "b", Start: 5, End: 6})
	tl.Add(Entry{LineID: "a", Start: 1, End: 2})

	entries := tl.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, "a", entries[0].LineID)
	assert.InDelta(t, 6.0, tl.TotalDuration(), 1e-9)
}

func TestWriteMarkdown(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, sampleTimeline().WriteMarkdown(&buf))
	out := buf.String()

	assert.Contains(t, out, "| # | Scene |")
	assert.Contains(t, out, "| 1 | intro | 0:00:00.000 | 0:00:02.500 | talk | zundamon | こんにちは |")
	assert.Contains(t, out, "wait")
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, sampleTimeline().WriteCSV(&buf))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 4) // header + 3 entries
	assert.Equal(t, []string{"line_id", "scene_id", "start", "end", "kind", "character", "text"}, records[0])
	assert.Equal(t, "intro_1", records[1][0])
	assert.Equal(t, "0.000", records[1][2])
	assert.Equal(t, "2.500", records[1][3])
}

func TestWriteSRT(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, sampleTimeline().WriteSRT(&buf))
	out := buf.String()

	// waits do not become cues and numbering stays dense
	assert.Contains(t, out, "1\n00:00:00,000 --> 00:00:02,500\nこんにちは\n")
	assert.Contains(t, out, "2\n00:00:03,500 --> 00:00:07,000\nやあ\n")
	assert.NotContains(t, out, "wait")
}

func TestWriteASS(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, sampleTimeline().WriteASS(&buf, DefaultASSStyle()))
	out := buf.String()

	assert.Contains(t, out, "[Script Info]")
	assert.Contains(t, out, "PlayResX: 1920")
	assert.Contains(t, out, "Style: Default,Sans,48,")
	assert.Contains(t, out, "Dialogue: 0,0:00:00.00,0:00:02.50,Default,zundamon,0,0,0,,こんにちは")
	assert.Equal(t, 2, strings.Count(out, "Dialogue:"))
}

func TestVoiceReport(t *testing.T) {
	tl := sampleTimeline()
	tl.Add(Entry{LineID: "x", Start: 7, End: 8, Kind: "talk", Text: "no speaker"})

	stats := tl.VoiceReport()
	require.Len(t, stats, 3)

	// sorted by speech time descending
	assert.Equal(t, "metan", stats[0].Character)
	assert.InDelta(t, 3.5, stats[0].Duration, 1e-9)
	assert.Equal(t, "zundamon", stats[1].Character)
	assert.Equal(t, "(narration)", stats[2].Character)
	assert.Equal(t, 1, stats[2].Lines)

	var buf bytes.Buffer
	require.NoError(t, tl.WriteVoiceReport(&buf))
	assert.Contains(t, buf.String(), "| metan | 1 | 0:00:03.500 |")
}

func TestTimeFormats(t *testing.T) {
	assert.Equal(t, "01:01:01,250", srtTime(3661.25))
	assert.Equal(t, "1:01:01.25", assTime(3661.25))
	assert.Equal(t, "0:00:00.000", formatClock(0))
}
