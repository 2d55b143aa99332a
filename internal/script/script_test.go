package script

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

const minimalScript = `
scenes:
  - id: s1
    bg: assets/bg.png
    lines:
      - text: "Hello"
        speaker_id: 1
      - wait: 1.5
`

func TestLoadMinimal(t *testing.T) {
	path := writeFile(t, "script.yaml", minimalScript)

	cfg, err := Load(path, "")
	require.NoError(t, err)

	// built-in fallbacks
	assert.Equal(t, 1920, cfg.Video.Width)
	assert.Equal(t, 30, cfg.Video.FPS)
	assert.Equal(t, 48000, cfg.Audio.SampleRate)
	assert.Equal(t, "ruby", cfg.Defaults.ReadingMode)

	require.Len(t, cfg.Scenes, 1)
	scene := cfg.Scenes[0]
	require.Len(t, scene.Lines, 2)
	assert.Equal(t, KindTalk, scene.Lines[0].Kind())
	assert.Equal(t, KindWait, scene.Lines[1].Kind())
	assert.InDelta(t, 1.5, *scene.Lines[1].Wait, 1e-9)
}

func TestLoadMergesDefaults(t *testing.T) {
	defaults := writeFile(t, "defaults.yaml", `
video:
  width: 1280
  height: 720
  fps: 24
defaults:
  speaker_id: 3
  speed: 1.1
`)
	script := writeFile(t, "script.yaml", `
video:
  fps: 60
scenes:
  - id: s1
    bg: bg.png
    lines:
      - text: "hi"
`)

	cfg, err := Load(script, defaults)
	require.NoError(t, err)

	// script overrides defaults, defaults fill the rest
	assert.Equal(t, 60, cfg.Video.FPS)
	assert.Equal(t, 1280, cfg.Video.Width)
	assert.Equal(t, 720, cfg.Video.Height)
	assert.Equal(t, 3, cfg.Defaults.SpeakerID)
	assert.InDelta(t, 1.1, cfg.Defaults.Speed, 1e-9)
}

func TestValidateRejects(t *testing.T) {
	cases := []struct {
		name   string
		body   string
		substr string
	}{
		{
			name: "line with both text and wait",
			body: `
scenes:
  - id: s1
    bg: bg.png
    lines:
      - text: "hi"
        wait: 1.0
`,
			substr: "both text and wait",
		},
		{
			name: "duplicate scene id",
			body: `
scenes:
  - id: s1
    bg: bg.png
    lines: [{text: a}]
  - id: s1
    bg: bg.png
    lines: [{text: b}]
`,
			substr: "duplicate scene id",
		},
		{
			name: "missing bg",
			body: `
scenes:
  - id: s1
    lines: [{text: a}]
`,
			substr: "background is required",
		},
		{
			name: "undeclared character",
			body: `
scenes:
  - id: s1
    bg: bg.png
    lines:
      - text: a
        characters: [{name: ghost}]
`,
			substr: "not declared",
		},
		{
			name: "bad anchor",
			body: `
background:
  anchor: somewhere
scenes:
  - id: s1
    bg: bg.png
    lines: [{text: a}]
`,
			substr: "unknown anchor",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := writeFile(t, "script.yaml", tc.body)
			_, err := Load(path, "")
			require.Error(t, err)
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Contains(t, err.Error(), tc.substr)
		})
	}
}

func TestEmptyLineAllowed(t *testing.T) {
	path := writeFile(t, "script.yaml", `
scenes:
  - id: s1
    bg: bg.png
    lines:
      - speaker_id: 1
`)
	cfg, err := Load(path, "")
	require.NoError(t, err, "a line with neither text nor wait becomes a silence")
	require.Len(t, cfg.Scenes[0].Lines, 1)
}

func TestEmptyScenesAllowed(t *testing.T) {
	path := writeFile(t, "script.yaml", `scenes: []`)
	cfg, err := Load(path, "")
	require.NoError(t, err)
	assert.Empty(t, cfg.Scenes)
}

func TestParseReadingMarkup(t *testing.T) {
	t.Run("none mode is identity", func(t *testing.T) {
		d, s := ParseReadingMarkup("plain text", "none")
		assert.Equal(t, "plain text", d)
		assert.Equal(t, "plain text", s)
	})

	t.Run("plain text unchanged in ruby mode", func(t *testing.T) {
		d, s := ParseReadingMarkup("plain text", "ruby")
		assert.Equal(t, "plain text", d)
		assert.Equal(t, "plain text", s)
	})

	t.Run("ruby markup splits display and tts", func(t *testing.T) {
		d, s := ParseReadingMarkup("豆腐((とうふ))を食べる", "ruby")
		assert.Equal(t, "豆腐を食べる", d)
		assert.Equal(t, "とうふを食べる", s)
	})

	t.Run("multiple rubies", func(t *testing.T) {
		d, s := ParseReadingMarkup("東京((とうきょう))と大阪((おおさか))", "ruby")
		assert.Equal(t, "東京と大阪", d)
		assert.Equal(t, "とうきょうとおおさか", s)
	})
}

func TestBackgroundMerge(t *testing.T) {
	global := BackgroundSettings{Fit: "contain", FillColor: "black"}
	sceneOverride := &BackgroundSettings{Fit: "cover"}

	merged := global.Merged(sceneOverride)
	assert.Equal(t, "cover", merged.Fit)
	assert.Equal(t, "black", merged.FillColor)

	layout := merged.Layout()
	assert.Equal(t, "cover", string(layout.Fit))
	assert.Equal(t, "middle_center", string(layout.Anchor))
}
