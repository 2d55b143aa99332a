package audiophase

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zundamotion/zundamotion/internal/config"
	"github.com/zundamotion/zundamotion/internal/models"
	"github.com/zundamotion/zundamotion/internal/pipeline/core"
	"github.com/zundamotion/zundamotion/internal/script"
)

func stateWithDefaults() *core.State {
	return core.NewState(&script.Config{}, &config.Config{
		TTS: config.TTSConfig{DefaultSpeaker: 3},
	})
}

func TestReadingTexts(t *testing.T) {
	t.Run("explicit reading wins", func(t *testing.T) {
		display, ttsText := readingTexts(script.Line{
			Text:    "漢字",
			Reading: "かんじ",
		}, script.Defaults{})
		assert.Equal(t, "漢字", display)
		assert.Equal(t, "かんじ", ttsText)
	})

	t.Run("ruby markup splits", func(t *testing.T) {
		display, ttsText := readingTexts(script.Line{
			Text: "漢字((かんじ))を読む",
		}, script.Defaults{ReadingMode: "ruby"})
		assert.Equal(t, "漢字を読む", display)
		assert.Equal(t, "かんじを読む", ttsText)
	})

	t.Run("reading mode none keeps markup", func(t *testing.T) {
		display, ttsText := readingTexts(script.Line{
			Text: "漢字((かんじ))",
		}, script.Defaults{ReadingMode: "none"})
		assert.Equal(t, "漢字((かんじ))", display)
		assert.Equal(t, "漢字((かんじ))", ttsText)
	})
}

func TestVoiceRequestFallbacks(t *testing.T) {
	state := stateWithDefaults()

	t.Run("line values win", func(t *testing.T) {
		req := voiceRequest(script.Line{SpeakerID: 8, Speed: 1.3, Pitch: 0.1},
			script.Defaults{SpeakerID: 5, Speed: 0.9}, state)
		assert.Equal(t, 8, req.Speaker)
		assert.Equal(t, 1.3, req.Speed)
		assert.Equal(t, 0.1, req.Pitch)
	})

	t.Run("defaults fill gaps", func(t *testing.T) {
		req := voiceRequest(script.Line{}, script.Defaults{SpeakerID: 5, Speed: 0.9, Pitch: -0.05}, state)
		assert.Equal(t, 5, req.Speaker)
		assert.Equal(t, 0.9, req.Speed)
		assert.Equal(t, -0.05, req.Pitch)
	})

	t.Run("config speaker is the last resort", func(t *testing.T) {
		req := voiceRequest(script.Line{}, script.Defaults{}, state)
		assert.Equal(t, 3, req.Speaker)
		assert.Equal(t, 1.0, req.Speed)
		assert.Equal(t, 0.0, req.Pitch)
	})
}

func TestMixArgs(t *testing.T) {
	inputs := []mixInput{
		{path: "layer.wav", volume: 0.8, delay: 0.25},
		{path: "se.wav", volume: 1, delay: 0},
	}
	args := mixArgs("voice.wav", inputs, 48000, "out.wav")

	joined := strings.Join(args, " ")
	assert.Contains(t, joined, "-i voice.wav -i layer.wav -i se.wav")
	assert.Contains(t, joined, "[1:a]volume=0.8,adelay=250:all=1[l1]")
	assert.Contains(t, joined, "[2:a]anull[l2]")
	assert.Contains(t, joined, "[0:a][l1][l2]amix=inputs=3:duration=longest:normalize=0[mix]")
	assert.Contains(t, joined, "-map [mix] -c:a pcm_s16le -ar 48000 out.wav")
	assert.Equal(t, "-y", args[0])
}

func TestDefaultVolume(t *testing.T) {
	assert.Equal(t, 1.0, defaultVolume(0))
	assert.Equal(t, 0.4, defaultVolume(0.4))
}

func TestEmptyLineBecomesSilence(t *testing.T) {
	state := core.NewState(&script.Config{
		Scenes: []script.Scene{{
			ID: "s1", BG: "bg.png",
			Lines: []script.Line{{SpeakerID: 1}},
		}},
	}, &config.Config{})

	p := New(nil)
	require.NoError(t, p.Run(context.Background(), state))

	data, ok := state.Line("s1_1")
	require.True(t, ok)
	assert.Equal(t, models.LineWait, data.Type)
	assert.GreaterOrEqual(t, data.Duration, 0.001)
	assert.Empty(t, data.AudioPath)
}
