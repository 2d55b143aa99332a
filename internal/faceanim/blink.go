package faceanim

import (
	"crypto/md5"
	"encoding/binary"
	"math/rand"

	"github.com/zundamotion/zundamotion/internal/models"
)

// BlinkSchedule produces eyes-closed intervals for one line. The schedule is
// seeded from the line ID, so re-renders of the same line blink at the same
// times and cached clips stay valid.
func BlinkSchedule(lineID string, duration float64, meta models.FaceAnimMeta) []models.BlinkSeg {
	if duration <= 0 {
		return nil
	}

	fps := meta.FPS
	if fps <= 0 {
		fps = models.DefaultFaceAnimMeta().FPS
	}
	blinkLen := float64(meta.CloseFrames) / float64(fps)

	minIv, maxIv := meta.MinBlinkInterval, meta.MaxBlinkInterval
	if minIv <= 0 || maxIv < minIv {
		d := models.DefaultFaceAnimMeta()
		minIv, maxIv = d.MinBlinkInterval, d.MaxBlinkInterval
	}

	rng := rand.New(rand.NewSource(blinkSeed(lineID)))

	var segs []models.BlinkSeg
	t := minIv + rng.Float64()*(maxIv-minIv)
	for t+blinkLen <= duration {
		segs = append(segs, models.BlinkSeg{Start: t, End: t + blinkLen})
		t += blinkLen + minIv + rng.Float64()*(maxIv-minIv)
	}
	return segs
}

// blinkSeed reads the leading 32 bits of md5(lineID) as the PRNG seed.
func blinkSeed(lineID string) int64 {
	sum := md5.Sum([]byte(lineID))
	return int64(binary.BigEndian.Uint32(sum[:4]))
}
