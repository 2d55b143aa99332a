package finalize

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/zundamotion/zundamotion/internal/models"
	"github.com/zundamotion/zundamotion/internal/pipeline/core"
	"github.com/zundamotion/zundamotion/internal/script"
)

func TestConcatReencodeArgs(t *testing.T) {
	clips := []core.SceneClip{
		{SceneID: "a", Path: "a.mp4"},
		{SceneID: "b", Path: "b.mp4"},
	}
	video := models.DefaultVideoParams()
	audio := models.DefaultAudioParams()

	args := concatReencodeArgs(clips, video, audio, models.HWEncoderNone, true, "final.mp4")
	joined := strings.Join(args, " ")

	assert.Contains(t, joined, "-i a.mp4 -i b.mp4")
	assert.Contains(t, joined, "[0:v][0:a][1:v][1:a]concat=n=2:v=1:a=1[v][a]")
	assert.Contains(t, joined, "-map [v] -map [a]")
	assert.Contains(t, joined, "-c:v libx264")
	assert.Contains(t, joined, "-movflags +faststart final.mp4")
}

func TestBGMMixArgs(t *testing.T) {
	bgm := &script.BGMSettings{
		Path:    "music.mp3",
		Volume:  0.3,
		Start:   10,
		FadeIn:  2,
		FadeOut: 3,
	}
	audio := models.DefaultAudioParams()

	args := bgmMixArgs(bgm, 60, audio, "joined.mp4", "final.mp4")
	joined := strings.Join(args, " ")

	assert.Contains(t, joined, "-i joined.mp4")
	assert.Contains(t, joined, "-ss 10.000 -i music.mp3")
	assert.Contains(t, joined, "volume=0.3")
	assert.Contains(t, joined, "afade=t=in:st=0:d=2")
	assert.Contains(t, joined, "afade=t=out:st=57:d=3")
	assert.Contains(t, joined, "amix=inputs=2:duration=first:normalize=0[a]")
	assert.Contains(t, joined, "-map 0:v -map [a] -c:v copy")
	assert.Contains(t, joined, "final.mp4")
}

func TestBGMMixArgsDefaults(t *testing.T) {
	bgm := &script.BGMSettings{Path: "music.mp3"}
	args := bgmMixArgs(bgm, 30, models.DefaultAudioParams(), "in.mp4", "out.mp4")
	joined := strings.Join(args, " ")

	assert.Contains(t, joined, "volume=0.5", "volume defaults to half")
	assert.NotContains(t, joined, "-ss", "no seek without a start offset")
	assert.NotContains(t, joined, "afade")
}
