package faceanim

import (
	"fmt"

	"github.com/zundamotion/zundamotion/internal/models"
)

// Analyze builds the full face animation plan for one spoken line from its
// synthesized WAV file.
func Analyze(lineID, wavPath, targetName string, meta models.FaceAnimMeta) (*models.FaceAnim, error) {
	pcm, err := DecodeWAVFile(wavPath)
	if err != nil {
		return nil, fmt.Errorf("analyzing face animation for %s: %w", lineID, err)
	}
	return &models.FaceAnim{
		TargetName: targetName,
		Mouth:      MouthSegments(pcm, meta),
		Eyes:       BlinkSchedule(lineID, pcm.Duration(), meta),
		Meta:       meta,
	}, nil
}
