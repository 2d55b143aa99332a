package audiophase

import (
	"context"
	"encoding/json"
	"os"

	"github.com/zundamotion/zundamotion/internal/cache"
	"github.com/zundamotion/zundamotion/internal/faceanim"
	"github.com/zundamotion/zundamotion/internal/models"
	"github.com/zundamotion/zundamotion/internal/pipeline/core"
)

// EnvFaceCacheDisable bypasses the face-animation artifact cache.
const EnvFaceCacheDisable = "FACE_CACHE_DISABLE"

// analyzeFace computes (or restores) the face-animation plan for one line.
// The artifact is JSON keyed on the audio hash and the analysis parameters.
func (p *Phase) analyzeFace(ctx context.Context, state *core.State,
	lineID, audioPath, audioKey, target string) (*models.FaceAnim, error) {

	meta := models.DefaultFaceAnimMeta()

	if os.Getenv(EnvFaceCacheDisable) == "1" {
		return faceanim.Analyze(lineID, audioPath, target, meta)
	}

	key := cache.Key{
		"kind":   "faceanim",
		"audio":  audioKey,
		"line":   lineID,
		"target": target,
		"meta": map[string]any{
			"fps":                meta.FPS,
			"thr_half_ratio":     meta.ThrHalfRatio,
			"thr_open_ratio":     meta.ThrOpenRatio,
			"min_blink_interval": meta.MinBlinkInterval,
			"max_blink_interval": meta.MaxBlinkInterval,
			"close_frames":       meta.CloseFrames,
		},
	}

	path, hit, err := state.Cache.GetOrCreate(ctx, "faceanim", key, "json",
		func(ctx context.Context, tmpPath string) error {
			anim, err := faceanim.Analyze(lineID, audioPath, target, meta)
			if err != nil {
				return err
			}
			raw, err := json.Marshal(anim)
			if err != nil {
				return err
			}
			return os.WriteFile(tmpPath, raw, 0o644)
		})
	if err != nil {
		return nil, err
	}
	state.Report.AddCacheResult(hit)

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var anim models.FaceAnim
	if err := json.Unmarshal(raw, &anim); err != nil {
		return nil, err
	}
	return &anim, nil
}
