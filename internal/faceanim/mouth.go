package faceanim

import (
	"math"

	"github.com/zundamotion/zundamotion/internal/models"
)

// MouthSegments derives mouth-shape intervals from the speech waveform. The
// audio is sliced into 1/fps windows, each window's RMS level is compared
// against thresholds relative to the loudest window, and consecutive windows
// with the same shape merge into one segment.
//
// Silent audio (peak RMS of zero) yields a single close segment covering the
// whole clip.
func MouthSegments(pcm *PCM, meta models.FaceAnimMeta) []models.MouthSeg {
	duration := pcm.Duration()
	if duration <= 0 {
		return nil
	}

	fps := meta.FPS
	if fps <= 0 {
		fps = models.DefaultFaceAnimMeta().FPS
	}

	rms := windowRMS(pcm, fps)

	peak := 0.0
	for _, v := range rms {
		if v > peak {
			peak = v
		}
	}
	if peak <= 1e-9 {
		return []models.MouthSeg{{Start: 0, End: duration, State: models.MouthClose}}
	}

	thrHalf := peak * meta.ThrHalfRatio
	thrOpen := peak * meta.ThrOpenRatio

	window := 1.0 / float64(fps)
	var segs []models.MouthSeg
	for i, v := range rms {
		state := models.MouthClose
		switch {
		case v >= thrOpen:
			state = models.MouthOpen
		case v >= thrHalf:
			state = models.MouthHalf
		}

		start := float64(i) * window
		end := start + window
		if end > duration {
			end = duration
		}

		if n := len(segs); n > 0 && segs[n-1].State == state {
			segs[n-1].End = end
			continue
		}
		segs = append(segs, models.MouthSeg{Start: start, End: end, State: state})
	}

	// The last window may undershoot the true duration by a fraction.
	if n := len(segs); n > 0 && segs[n-1].End < duration {
		segs[n-1].End = duration
	}
	return segs
}

// windowRMS computes the RMS level of each 1/fps slice.
func windowRMS(pcm *PCM, fps int) []float64 {
	windowLen := pcm.SampleRate / fps
	if windowLen <= 0 {
		windowLen = 1
	}
	n := (len(pcm.Samples) + windowLen - 1) / windowLen
	out := make([]float64, 0, n)

	for start := 0; start < len(pcm.Samples); start += windowLen {
		end := start + windowLen
		if end > len(pcm.Samples) {
			end = len(pcm.Samples)
		}
		var sum float64
		for _, s := range pcm.Samples[start:end] {
			sum += s * s
		}
		out = append(out, math.Sqrt(sum/float64(end-start)))
	}
	return out
}
