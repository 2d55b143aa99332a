package videophase

import (
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zundamotion/zundamotion/internal/config"
	"github.com/zundamotion/zundamotion/internal/ffmpeg"
	"github.com/zundamotion/zundamotion/internal/filtergraph"
	"github.com/zundamotion/zundamotion/internal/models"
	"github.com/zundamotion/zundamotion/internal/pipeline/core"
	"github.com/zundamotion/zundamotion/internal/script"
)

func TestBackgroundKind(t *testing.T) {
	assert.Equal(t, models.BackgroundImage, backgroundKind("room.png"))
	assert.Equal(t, models.BackgroundImage, backgroundKind("ROOM.JPG"))
	assert.Equal(t, models.BackgroundVideo, backgroundKind("street.mp4"))
	assert.Equal(t, models.BackgroundVideo, backgroundKind("clip.mov"))
}

// staticClip builds a lineClip holding the named static characters.
func staticClip(dur float64, names ...string) *lineClip {
	clip := &lineClip{
		data:    &models.LineData{Duration: dur},
		statics: map[models.StaticKey]bool{},
		baked:   map[models.StaticKey]bool{},
	}
	for _, n := range names {
		p := models.OverlayPlacement{Name: n, ImagePath: n + ".png", Scale: 1, Anchor: models.AnchorBottomCenter}
		clip.characters = append(clip.characters, filtergraph.Character{Placement: p})
		key, ok := p.Static()
		if ok {
			clip.statics[key] = true
		}
	}
	return clip
}

func TestStaticIntersection(t *testing.T) {
	t.Run("shared character", func(t *testing.T) {
		clips := []*lineClip{
			staticClip(1, "zunda", "metan"),
			staticClip(1, "zunda"),
			staticClip(1, "zunda", "tsumugi"),
		}
		shared := staticIntersection(clips)
		require.Len(t, shared, 1)
		assert.Equal(t, "zunda", shared[0].Name)
	})

	t.Run("no overlap", func(t *testing.T) {
		clips := []*lineClip{staticClip(1, "zunda"), staticClip(1, "metan")}
		assert.Empty(t, staticIntersection(clips))
	})

	t.Run("empty line breaks the intersection", func(t *testing.T) {
		clips := []*lineClip{staticClip(1, "zunda"), staticClip(1)}
		assert.Empty(t, staticIntersection(clips))
	})
}

func TestFindStaticRuns(t *testing.T) {
	clips := []*lineClip{
		staticClip(1, "zunda"), // 0
		staticClip(1, "zunda"), // 1
		staticClip(1, "metan"), // 2
		staticClip(1),          // 3
		staticClip(1, "metan"), // 4: same set as 2 but not consecutive
		staticClip(1, "metan"), // 5
	}
	runs := findStaticRuns(clips)
	require.Len(t, runs, 2)
	assert.Equal(t, staticRun{start: 0, end: 1}, runs[0])
	assert.Equal(t, staticRun{start: 4, end: 5}, runs[1])
}

func TestDecideTuning(t *testing.T) {
	t.Run("overlay-light keeps settings", func(t *testing.T) {
		force, workers := decideTuning(4, 1, 2)
		assert.False(t, force)
		assert.Equal(t, 2, workers)
	})

	t.Run("overlay-heavy forces cpu", func(t *testing.T) {
		force, workers := decideTuning(4, 3, 2)
		assert.True(t, force)
		assert.GreaterOrEqual(t, workers, 2)
		assert.LessOrEqual(t, workers, 4)
	})

	t.Run("empty sample is a no-op", func(t *testing.T) {
		force, workers := decideTuning(0, 0, 2)
		assert.False(t, force)
		assert.Equal(t, 2, workers)
	})
}

func TestAutotuneHintRoundtrip(t *testing.T) {
	dir := t.TempDir()
	logger := slog.Default()

	saveHint(dir, autotuneHint{
		FFmpegVersion: "7.1",
		HWKind:        string(models.HWEncoderNVENC),
		DecidedMode:   string(ffmpeg.FilterModeCPU),
		ForceCPU:      true,
		ClipWorkers:   3,
		CPURatio:      0.75,
		AvgElapsed:    1.2,
		P90Elapsed:    2.4,
	}, logger)

	hint, ok := loadHint(dir, "7.1", models.HWEncoderNVENC, logger)
	require.True(t, ok)
	assert.True(t, hint.ForceCPU)
	assert.Equal(t, 3, hint.ClipWorkers)
	assert.Equal(t, string(ffmpeg.FilterModeCPU), hint.DecidedMode)
	assert.Equal(t, 0.75, hint.CPURatio)
	assert.Equal(t, 1.2, hint.AvgElapsed)
	assert.Equal(t, 2.4, hint.P90Elapsed)

	_, ok = loadHint(dir, "8.0", models.HWEncoderNVENC, logger)
	assert.False(t, ok, "version change must invalidate the hint")

	_, ok = loadHint(dir, "7.1", models.HWEncoderNone, logger)
	assert.False(t, ok, "hardware change must invalidate the hint")

	_, ok = loadHint(t.TempDir(), "7.1", models.HWEncoderNVENC, logger)
	assert.False(t, ok, "missing hint file")
}

func TestElapsedStats(t *testing.T) {
	avg, p90 := elapsedStats(nil)
	assert.Zero(t, avg)
	assert.Zero(t, p90)

	avg, p90 = elapsedStats([]float64{3.5})
	assert.Equal(t, 3.5, avg)
	assert.Equal(t, 3.5, p90)

	samples := []float64{10, 1, 2, 3, 4, 5, 6, 7, 8, 9}
	avg, p90 = elapsedStats(samples)
	assert.InDelta(t, 5.5, avg, 1e-9)
	assert.Equal(t, 9.0, p90)
	assert.Equal(t, 10.0, samples[0], "input order must be preserved")
}

func TestRawBackground(t *testing.T) {
	video := models.BackgroundSource{Path: "bg.mp4", Kind: models.BackgroundVideo}
	out := rawBackground(video, 12.5)
	assert.Equal(t, 12.5, out.StartTime)

	img := models.BackgroundSource{Path: "bg.png", Kind: models.BackgroundImage}
	out = rawBackground(img, 12.5)
	assert.Zero(t, out.StartTime)
}

func TestClipKeyStability(t *testing.T) {
	state := core.NewState(&script.Config{
		Video: script.VideoSettings{Width: 1920, Height: 1080, FPS: 30, PixFmt: "yuv420p"},
		Audio: script.AudioSettings{SampleRate: 48000, Channels: 2, Codec: "aac"},
	}, &config.Config{})
	p := New(nil)

	clip := staticClip(2, "zunda")
	clip.data.AudioKey = "abc123"
	clip.background = models.BackgroundSource{
		Path: "base.mp4", Kind: models.BackgroundVideo, CacheKey: "deadbeef", StartTime: 1.5,
	}
	spec := p.clipSpec(state, clip)

	key1, err := p.clipKey(state, clip, spec)
	require.NoError(t, err)
	key2, err := p.clipKey(state, clip, spec)
	require.NoError(t, err)

	h1, err := key1.Hash()
	require.NoError(t, err)
	h2, err := key2.Hash()
	require.NoError(t, err)
	assert.Equal(t, h1, h2)

	// Subtitles are overlaid per scene, so they must not change the clip key.
	clip.subtitleText = "hello"
	clip.subtitle = &filtergraph.Subtitle{PNGPath: "x.png", MarginBottom: 60}
	key3, err := p.clipKey(state, clip, p.clipSpec(state, clip))
	require.NoError(t, err)
	h3, err := key3.Hash()
	require.NoError(t, err)
	assert.Equal(t, h1, h3)

	// Audio changes do.
	clip.data.AudioKey = "other"
	key4, err := p.clipKey(state, clip, p.clipSpec(state, clip))
	require.NoError(t, err)
	h4, err := key4.Hash()
	require.NoError(t, err)
	assert.NotEqual(t, h1, h4)
}

func TestClipKeySensitivity(t *testing.T) {
	state := core.NewState(&script.Config{
		Video: script.VideoSettings{Width: 1920, Height: 1080, FPS: 30, PixFmt: "yuv420p"},
		Audio: script.AudioSettings{SampleRate: 48000, Channels: 2, Codec: "aac"},
	}, &config.Config{})
	state.FFmpegVersion = "7.1"
	state.HW = ffmpeg.HWAccelInfo{Kind: models.HWEncoderNVENC}
	p := New(nil)

	clip := staticClip(2, "zunda")
	clip.id = "s1_1"
	clip.data.AudioKey = "abc123"
	clip.background = models.BackgroundSource{
		Path: "base.mp4", Kind: models.BackgroundVideo, CacheKey: "deadbeef",
	}

	hash := func() string {
		key, err := p.clipKey(state, clip, p.clipSpec(state, clip))
		require.NoError(t, err)
		h, err := key.Hash()
		require.NoError(t, err)
		return h
	}
	base := hash()

	t.Run("transcoder version", func(t *testing.T) {
		state.FFmpegVersion = "8.0"
		assert.NotEqual(t, base, hash())
		state.FFmpegVersion = "7.1"
		assert.Equal(t, base, hash())
	})

	t.Run("hardware kind", func(t *testing.T) {
		state.HW.Kind = models.HWEncoderNone
		assert.NotEqual(t, base, hash())
		state.HW.Kind = models.HWEncoderNVENC
		assert.Equal(t, base, hash())
	})

	t.Run("face animation inputs", func(t *testing.T) {
		clip.data.FaceAnim = &models.FaceAnim{
			TargetName: "zunda", Meta: models.DefaultFaceAnimMeta(),
		}
		withFace := hash()
		assert.NotEqual(t, base, withFace)

		// the line id seeds the blink schedule, so it is part of the key
		clip.id = "s1_2"
		assert.NotEqual(t, withFace, hash())
		clip.id = "s1_1"

		clip.data.FaceAnim.Meta.CloseFrames++
		assert.NotEqual(t, withFace, hash())
	})
}

func TestWithThreadArgsRetryPin(t *testing.T) {
	state := core.NewState(&script.Config{}, &config.Config{
		Render: config.RenderConfig{Jobs: 8},
	})
	state.Mode = ffmpeg.NewModeController(ffmpeg.FilterModeCPU, nil)
	p := New(nil)
	p.clipWorkers = 2

	normal := strings.Join(p.withThreadArgs(state, []string{"-y", "-i", "in.mp4"}, false), " ")
	assert.Contains(t, normal, "-filter_threads 8")
	assert.Contains(t, normal, "-filter_complex_threads 8")

	retry := p.withThreadArgs(state, []string{"-y", "-i", "in.mp4"}, true)
	assert.Equal(t, "-y", retry[0])
	joined := strings.Join(retry, " ")
	assert.Contains(t, joined, "-filter_threads 1")
	assert.Contains(t, joined, "-filter_complex_threads 1")
	assert.NotContains(t, joined, "-filter_threads 8")
}

func TestSubtitleWindows(t *testing.T) {
	sp := &scenePlan{clips: []*lineClip{
		staticClip(2),
		staticClip(3),
		staticClip(1),
	}}
	sp.clips[1].subtitleText = "spoken"
	sp.clips[1].subtitle = &filtergraph.Subtitle{PNGPath: "sub.png", MarginBottom: 60}

	subs := subtitleWindows(sp)
	require.Len(t, subs, 1)
	assert.Equal(t, 2.0, subs[0].Start)
	assert.Equal(t, 5.0, subs[0].End)
	assert.Equal(t, 60, subs[0].MarginBottom)
}

func TestSceneKeyDependsOnSubtitleText(t *testing.T) {
	state := core.NewState(&script.Config{
		Video: script.VideoSettings{Width: 1920, Height: 1080, FPS: 30, PixFmt: "yuv420p"},
	}, &config.Config{})
	p := New(nil)

	sp := &scenePlan{scene: script.Scene{ID: "intro"}, clips: []*lineClip{staticClip(2)}}
	sp.clips[0].subtitleText = "one"
	sp.clips[0].subtitle = &filtergraph.Subtitle{PNGPath: "a.png", MarginBottom: 60}

	key1, err := p.sceneKey(state, sp, []string{"c1"}, nil, nil)
	require.NoError(t, err)
	h1, err := key1.Hash()
	require.NoError(t, err)

	sp.clips[0].subtitleText = "two"
	key2, err := p.sceneKey(state, sp, []string{"c1"}, nil, nil)
	require.NoError(t, err)
	h2, err := key2.Hash()
	require.NoError(t, err)
	assert.NotEqual(t, h1, h2)

	// The PNG path is regenerated every run and must not matter.
	sp.clips[0].subtitleText = "one"
	sp.clips[0].subtitle.PNGPath = "b.png"
	key3, err := p.sceneKey(state, sp, []string{"c1"}, nil, nil)
	require.NoError(t, err)
	h3, err := key3.Hash()
	require.NoError(t, err)
	assert.Equal(t, h1, h3)
}

func TestClipSpecDropsBakedCharacters(t *testing.T) {
	state := core.NewState(&script.Config{}, &config.Config{})
	p := New(nil)

	clip := staticClip(2, "zunda", "metan")
	for k := range clip.statics {
		if k.Name == "zunda" {
			clip.baked[k] = true
		}
	}
	clip.background = models.BackgroundSource{Path: "base.mp4", Kind: models.BackgroundVideo}

	spec := p.clipSpec(state, clip)
	require.Len(t, spec.Characters, 1)
	assert.Equal(t, "metan", spec.Characters[0].Placement.Name)
}
