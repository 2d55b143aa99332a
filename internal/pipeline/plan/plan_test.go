package plan

import (
	"image"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zundamotion/zundamotion/internal/models"
	"github.com/zundamotion/zundamotion/internal/script"
)

// writePNG creates a blank image file of the given size.
func writePNG(t *testing.T, path string, w, h int) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, image.NewRGBA(image.Rect(0, 0, w, h))))
}

// characterFixture sets up a character image dir with a default expression
// and face parts.
func characterFixture(t *testing.T) script.Defaults {
	t.Helper()
	dir := t.TempDir()
	writePNG(t, filepath.Join(dir, "default.png"), 100, 200)
	writePNG(t, filepath.Join(dir, "happy.png"), 100, 200)
	writePNG(t, filepath.Join(dir, "face", "mouth_open.png"), 40, 20)
	writePNG(t, filepath.Join(dir, "face", "mouth_half.png"), 40, 20)
	writePNG(t, filepath.Join(dir, "face", "eyes_close.png"), 40, 10)

	return script.Defaults{
		Characters: map[string]script.CharacterDefaults{
			"zunda": {ImageDir: dir, Scale: 0.5, Anchor: "bottom_center"},
		},
	}
}

func TestCharactersResolvesPlacement(t *testing.T) {
	defaults := characterFixture(t)
	line := script.Line{
		Text:       "hello",
		Characters: []script.CharacterSpec{{Name: "zunda", Expression: "happy"}},
	}

	placements, err := Characters(line, defaults, 1920, 1080)
	require.NoError(t, err)
	require.Len(t, placements, 1)

	p := placements[0]
	assert.Equal(t, "zunda", p.Name)
	assert.Equal(t, "happy", p.Expression)
	assert.Equal(t, 0.5, p.Scale)
	assert.Equal(t, models.AnchorBottomCenter, p.Anchor)
	assert.False(t, p.DynamicPosition)
	assert.Equal(t, models.EffectNone, p.EnterEffect)

	// 100x200 image at scale 0.5 is 50x100, bottom_center in 1920x1080
	assert.Equal(t, (1920-50)/2, p.NumericX)
	assert.Equal(t, 1080-100, p.NumericY)
}

func TestCharactersSlideEnterIsDynamic(t *testing.T) {
	defaults := characterFixture(t)
	line := script.Line{
		Characters: []script.CharacterSpec{{Name: "zunda", Enter: "slide_left"}},
	}

	placements, err := Characters(line, defaults, 1920, 1080)
	require.NoError(t, err)
	require.Len(t, placements, 1)

	assert.Equal(t, models.EffectSlideLeft, placements[0].EnterEffect)
	assert.Equal(t, defaultEffectDuration, placements[0].EnterDuration)
	assert.True(t, placements[0].DynamicPosition)
}

func TestCharactersFadeKeepsStaticPosition(t *testing.T) {
	defaults := characterFixture(t)
	line := script.Line{
		Characters: []script.CharacterSpec{{Name: "zunda", Enter: "fade", EnterDuration: 1.2}},
	}

	placements, err := Characters(line, defaults, 1920, 1080)
	require.NoError(t, err)
	assert.Equal(t, models.EffectFade, placements[0].EnterEffect)
	assert.Equal(t, 1.2, placements[0].EnterDuration)
	assert.False(t, placements[0].DynamicPosition)
}

func TestCharactersSkipsInvisible(t *testing.T) {
	defaults := characterFixture(t)
	hidden := false
	line := script.Line{
		Characters: []script.CharacterSpec{{Name: "zunda", Visible: &hidden}},
	}

	placements, err := Characters(line, defaults, 1920, 1080)
	require.NoError(t, err)
	assert.Empty(t, placements)
}

func TestCharactersUnknownName(t *testing.T) {
	_, err := Characters(script.Line{
		Characters: []script.CharacterSpec{{Name: "ghost"}},
	}, script.Defaults{}, 1920, 1080)
	assert.Error(t, err)
}

func TestPadding(t *testing.T) {
	placements := []models.OverlayPlacement{
		{EnterEffect: models.EffectFade, EnterDuration: 0.5},
		{EnterEffect: models.EffectSlideLeft, EnterDuration: 1.5, LeaveEffect: models.EffectFade, LeaveDuration: 0.3},
		{EnterEffect: models.EffectNone, EnterDuration: 9}, // no effect, no padding
	}
	pre, post := Padding(placements)
	assert.Equal(t, 1.5, pre)
	assert.Equal(t, 0.3, post)
}

func TestFaceTarget(t *testing.T) {
	defaults := characterFixture(t)

	t.Run("speaker on screen", func(t *testing.T) {
		line := script.Line{
			SpeakerName: "zunda",
			Characters:  []script.CharacterSpec{{Name: "zunda"}},
		}
		name, cd, ok := FaceTarget(line, defaults)
		require.True(t, ok)
		assert.Equal(t, "zunda", name)
		assert.NotEmpty(t, cd.ImageDir)
	})

	t.Run("speaker not placed", func(t *testing.T) {
		line := script.Line{SpeakerName: "zunda"}
		_, _, ok := FaceTarget(line, defaults)
		assert.False(t, ok)
	})

	t.Run("face animation disabled", func(t *testing.T) {
		off := false
		cd := defaults.Characters["zunda"]
		cd.FaceAnim = &off
		d := script.Defaults{Characters: map[string]script.CharacterDefaults{"zunda": cd}}

		line := script.Line{
			SpeakerName: "zunda",
			Characters:  []script.CharacterSpec{{Name: "zunda"}},
		}
		_, _, ok := FaceTarget(line, d)
		assert.False(t, ok)
	})
}

func TestFaceImages(t *testing.T) {
	defaults := characterFixture(t)
	imgs := FaceImages(defaults.Characters["zunda"])
	assert.NotEmpty(t, imgs.EyesClose)
	assert.NotEmpty(t, imgs.MouthHalf)
	assert.NotEmpty(t, imgs.MouthOpen)

	missing := FaceImages(script.CharacterDefaults{ImageDir: t.TempDir()})
	assert.Empty(t, missing.MouthOpen)
}

func TestSubtitleText(t *testing.T) {
	hidden := false

	assert.Equal(t, "spoken", SubtitleText(script.Line{}, "spoken"))
	assert.Equal(t, "override", SubtitleText(script.Line{
		Subtitle: &script.SubtitleOverride{Text: "override"},
	}, "spoken"))
	assert.Empty(t, SubtitleText(script.Line{
		Subtitle: &script.SubtitleOverride{Visible: &hidden},
	}, "spoken"))
}
