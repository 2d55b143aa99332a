package filtergraph

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/zundamotion/zundamotion/internal/models"
)

// BGMSpec describes a music track mixed under an existing video's audio.
type BGMSpec struct {
	Path    string
	Volume  float64 // 0 = default 0.5
	Start   float64 // seek offset into the music file
	FadeIn  float64
	FadeOut float64
}

// BGMMixArgs assembles the invocation laying bgm under inPath's audio. The
// video stream is copied untouched; apad keeps short music from truncating
// the mix and duration=first pins the output length to the video.
func BGMMixArgs(bgm BGMSpec, total float64, audio models.AudioParams, inPath, outPath string) []string {
	volume := bgm.Volume
	if volume == 0 {
		volume = 0.5
	}

	chain := []string{"volume=" + strconv.FormatFloat(volume, 'g', -1, 64)}
	if bgm.FadeIn > 0 {
		chain = append(chain, fmt.Sprintf("afade=t=in:st=0:d=%g", bgm.FadeIn))
	}
	if bgm.FadeOut > 0 && total > bgm.FadeOut {
		chain = append(chain, fmt.Sprintf("afade=t=out:st=%g:d=%g", total-bgm.FadeOut, bgm.FadeOut))
	}
	chain = append(chain, "apad")

	filter := fmt.Sprintf("[1:a]%s[bgm];[0:a][bgm]amix=inputs=2:duration=first:normalize=0[a]",
		strings.Join(chain, ","))

	args := []string{"-y", "-i", inPath}
	if bgm.Start > 0 {
		args = append(args, "-ss", fmt.Sprintf("%.3f", bgm.Start))
	}
	args = append(args,
		"-i", bgm.Path,
		"-filter_complex", filter,
		"-map", "0:v", "-map", "[a]",
		"-c:v", "copy",
	)
	args = append(args, AudioEncodeArgs(audio)...)
	args = append(args, "-movflags", "+faststart", outPath)
	return args
}
