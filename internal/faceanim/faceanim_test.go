package faceanim

import (
	"bytes"
	"crypto/md5"
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zundamotion/zundamotion/internal/models"
)

// buildWAV writes a 16-bit mono PCM WAV from float samples.
func buildWAV(t *testing.T, samples []float64, rate int) []byte {
	t.Helper()
	var data bytes.Buffer
	for _, s := range samples {
		v := int16(s * 32767)
		require.NoError(t, binary.Write(&data, binary.LittleEndian, v))
	}

	var buf bytes.Buffer
	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, uint32(36+data.Len()))
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	binary.Write(&buf, binary.LittleEndian, uint32(16))
	binary.Write(&buf, binary.LittleEndian, uint16(1)) // PCM
	binary.Write(&buf, binary.LittleEndian, uint16(1)) // mono
	binary.Write(&buf, binary.LittleEndian, uint32(rate))
	binary.Write(&buf, binary.LittleEndian, uint32(rate*2))
	binary.Write(&buf, binary.LittleEndian, uint16(2))
	binary.Write(&buf, binary.LittleEndian, uint16(16))
	buf.WriteString("data")
	binary.Write(&buf, binary.LittleEndian, uint32(data.Len()))
	buf.Write(data.Bytes())
	return buf.Bytes()
}

// tone generates seconds of a sine wave at the given amplitude.
func tone(seconds float64, rate int, amplitude float64) []float64 {
	n := int(seconds * float64(rate))
	out := make([]float64, n)
	for i := range out {
		out[i] = amplitude * math.Sin(2*math.Pi*440*float64(i)/float64(rate))
	}
	return out
}

func TestDecodeWAV(t *testing.T) {
	rate := 8000
	samples := tone(0.5, rate, 0.5)
	wav := buildWAV(t, samples, rate)

	pcm, err := DecodeWAV(wav)
	require.NoError(t, err)
	assert.Equal(t, rate, pcm.SampleRate)
	assert.Len(t, pcm.Samples, len(samples))
	assert.InDelta(t, 0.5, pcm.Duration(), 1e-3)
}

func TestDecodeWAVRejectsGarbage(t *testing.T) {
	_, err := DecodeWAV([]byte("definitely not a wav"))
	assert.Error(t, err)

	_, err = DecodeWAV([]byte("RIFF\x00\x00\x00\x00WAVE"))
	assert.Error(t, err, "missing fmt and data chunks")
}

func TestDecodeSampleDepths(t *testing.T) {
	assert.InDelta(t, 0, decodeSample([]byte{128}, 8), 1e-9)
	assert.InDelta(t, -1, decodeSample([]byte{0}, 8), 1e-2)

	assert.InDelta(t, 0.5, decodeSample([]byte{0x00, 0x40}, 16), 1e-3)
	assert.InDelta(t, -1, decodeSample([]byte{0x00, 0x80}, 16), 1e-9)

	assert.InDelta(t, 0.5, decodeSample([]byte{0x00, 0x00, 0x40}, 24), 1e-3)
	assert.InDelta(t, 0.5, decodeSample([]byte{0x00, 0x00, 0x00, 0x40}, 32), 1e-3)
}

func TestMouthSegmentsSilence(t *testing.T) {
	rate := 8000
	pcm := &PCM{Samples: make([]float64, rate), SampleRate: rate}

	segs := MouthSegments(pcm, models.DefaultFaceAnimMeta())
	require.Len(t, segs, 1)
	assert.Equal(t, models.MouthClose, segs[0].State)
	assert.Zero(t, segs[0].Start)
	assert.InDelta(t, 1.0, segs[0].End, 1e-9)
}

func TestMouthSegmentsSpeechPattern(t *testing.T) {
	rate := 8000
	// 0.5s loud, 0.5s quiet, 0.5s silence
	samples := tone(0.5, rate, 0.8)
	samples = append(samples, tone(0.5, rate, 0.25)...)
	samples = append(samples, make([]float64, rate/2)...)
	pcm := &PCM{Samples: samples, SampleRate: rate}

	segs := MouthSegments(pcm, models.DefaultFaceAnimMeta())
	require.NotEmpty(t, segs)

	// coverage: contiguous from 0 to duration
	assert.Zero(t, segs[0].Start)
	for i := 1; i < len(segs); i++ {
		assert.InDelta(t, segs[i-1].End, segs[i].Start, 1e-9)
		assert.NotEqual(t, segs[i-1].State, segs[i].State, "adjacent segments must differ")
	}
	assert.InDelta(t, pcm.Duration(), segs[len(segs)-1].End, 1e-9)

	// loud part opens the mouth, trailing silence closes it
	assert.Equal(t, models.MouthOpen, segs[0].State)
	assert.Equal(t, models.MouthClose, segs[len(segs)-1].State)

	// quiet middle shows up as a half segment somewhere
	hasHalf := false
	for _, s := range segs {
		if s.State == models.MouthHalf {
			hasHalf = true
		}
	}
	assert.True(t, hasHalf)
}

func TestBlinkScheduleDeterministic(t *testing.T) {
	meta := models.DefaultFaceAnimMeta()

	a := BlinkSchedule("s1_1", 30, meta)
	b := BlinkSchedule("s1_1", 30, meta)
	assert.Equal(t, a, b, "same line id must give the same schedule")

	c := BlinkSchedule("s1_2", 30, meta)
	assert.NotEqual(t, a, c, "different line ids should diverge")
}

func TestBlinkSeedWidth(t *testing.T) {
	// the seed is the big-endian value of md5(lineID)[:4]
	sum := md5.Sum([]byte("s1_1"))
	want := int64(binary.BigEndian.Uint32(sum[:4]))
	assert.Equal(t, want, blinkSeed("s1_1"))
	assert.Less(t, blinkSeed("s1_1"), int64(1)<<32)
	assert.GreaterOrEqual(t, blinkSeed("s1_1"), int64(0))
}

func TestBlinkScheduleBounds(t *testing.T) {
	meta := models.DefaultFaceAnimMeta()
	segs := BlinkSchedule("s2_4", 60, meta)
	require.NotEmpty(t, segs)

	blinkLen := float64(meta.CloseFrames) / float64(meta.FPS)
	for i, s := range segs {
		assert.InDelta(t, blinkLen, s.End-s.Start, 1e-9)
		assert.LessOrEqual(t, s.End, 60.0)
		if i > 0 {
			gap := s.Start - segs[i-1].End
			assert.GreaterOrEqual(t, gap, meta.MinBlinkInterval-1e-9)
			assert.LessOrEqual(t, gap, meta.MaxBlinkInterval+1e-9)
		}
	}

	assert.Empty(t, BlinkSchedule("s1_1", 0.5, meta), "clip shorter than the first interval has no blinks")
}

func TestAnalyze(t *testing.T) {
	rate := 8000
	wav := buildWAV(t, tone(1.0, rate, 0.6), rate)
	path := filepath.Join(t.TempDir(), "voice.wav")
	require.NoError(t, os.WriteFile(path, wav, 0644))

	anim, err := Analyze("s1_1", path, "zundamon", models.DefaultFaceAnimMeta())
	require.NoError(t, err)
	assert.Equal(t, "zundamon", anim.TargetName)
	assert.NotEmpty(t, anim.Mouth)
	assert.Equal(t, 10, anim.Meta.FPS)
}
