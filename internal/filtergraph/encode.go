package filtergraph

import (
	"fmt"
	"os"
	"strconv"

	"github.com/zundamotion/zundamotion/internal/models"
)

// EnvNVENCFast selects the fast NVENC preset for throughput over quality.
const EnvNVENCFast = "NVENC_FAST"

// hwEncoderName maps a hardware kind to its H.264 encoder.
func hwEncoderName(kind models.HWEncoderKind) string {
	switch kind {
	case models.HWEncoderNVENC:
		return "h264_nvenc"
	case models.HWEncoderQSV:
		return "h264_qsv"
	case models.HWEncoderVAAPI:
		return "h264_vaapi"
	case models.HWEncoderAMF:
		return "h264_amf"
	case models.HWEncoderVideoToolbox:
		return "h264_videotoolbox"
	}
	return "libx264"
}

// VideoEncodeArgs renders the encoder flags for the clip. forceCPU pins
// libx264 regardless of the detected hardware (the retry path).
func VideoEncodeArgs(p models.VideoParams, kind models.HWEncoderKind, forceCPU bool) []string {
	if forceCPU {
		kind = models.HWEncoderNone
	}
	encoder := hwEncoderName(kind)
	args := []string{"-c:v", encoder}

	switch {
	case p.Bitrate != "":
		args = append(args, "-b:v", p.Bitrate)
	case kind == models.HWEncoderNone:
		args = append(args, "-crf", strconv.Itoa(p.CRF), "-preset", "medium")
	case kind == models.HWEncoderNVENC:
		preset := "p5"
		if os.Getenv(EnvNVENCFast) == "1" {
			preset = "p2"
		}
		args = append(args, "-rc", "vbr", "-cq", strconv.Itoa(p.CQ), "-preset", preset)
	default:
		args = append(args, "-global_quality", strconv.Itoa(p.CQ))
	}

	if p.Profile != "" {
		args = append(args, "-profile:v", p.Profile)
	}
	if p.Level != "" {
		args = append(args, "-level", p.Level)
	}
	args = append(args,
		"-pix_fmt", p.PixFmt,
		"-r", strconv.Itoa(p.FPS),
	)
	return args
}

// AudioEncodeArgs renders the audio encoder flags.
func AudioEncodeArgs(p models.AudioParams) []string {
	args := []string{
		"-c:a", p.Codec,
		"-ar", strconv.Itoa(p.SampleRate),
		"-ac", strconv.Itoa(p.Channels),
	}
	if p.Bitrate != "" {
		args = append(args, "-b:a", p.Bitrate)
	}
	return args
}

// DurationArgs caps the output length.
func DurationArgs(duration float64) []string {
	return []string{"-t", fmt.Sprintf("%.3f", duration)}
}
