package ffmpeg

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/zundamotion/zundamotion/internal/models"
)

// EnvDisableHWEnc disables hardware encoder detection entirely.
const EnvDisableHWEnc = "DISABLE_HWENC"

// smokeTimeout bounds each capability probe invocation.
const smokeTimeout = 5 * time.Second

// encoderCandidates maps hardware kinds to their H.264 encoder names, in
// preference order.
var encoderCandidates = []struct {
	kind    models.HWEncoderKind
	encoder string
}{
	{models.HWEncoderNVENC, "h264_nvenc"},
	{models.HWEncoderQSV, "h264_qsv"},
	{models.HWEncoderVAAPI, "h264_vaapi"},
	{models.HWEncoderAMF, "h264_amf"},
	{models.HWEncoderVideoToolbox, "h264_videotoolbox"},
}

// HWAccelInfo is the result of hardware encoder detection.
type HWAccelInfo struct {
	Kind    models.HWEncoderKind `json:"kind"`
	Encoder string               `json:"encoder"`
}

// HWDetector probes which hardware encoder actually works on this machine.
// Listing an encoder in `-encoders` is not enough; drivers may be missing,
// so a tiny encode smoke test confirms it.
type HWDetector struct {
	runner *Runner
	logger *slog.Logger

	once sync.Once
	info HWAccelInfo
}

// NewHWDetector creates a detector using the given ffmpeg runner.
func NewHWDetector(runner *Runner, logger *slog.Logger) *HWDetector {
	if logger == nil {
		logger = slog.Default()
	}
	return &HWDetector{runner: runner, logger: logger}
}

// Detect returns the first usable hardware encoder, or HWEncoderNone. The
// probe runs once per process; later calls return the cached result.
func (d *HWDetector) Detect(ctx context.Context) HWAccelInfo {
	d.once.Do(func() {
		d.info = d.detect(ctx)
	})
	return d.info
}

func (d *HWDetector) detect(ctx context.Context) HWAccelInfo {
	none := HWAccelInfo{Kind: models.HWEncoderNone}

	if os.Getenv(EnvDisableHWEnc) == "1" {
		d.logger.Info("hardware encoders disabled by environment")
		return none
	}

	listed, err := d.listEncoders(ctx)
	if err != nil {
		d.logger.Warn("listing encoders failed, using software encoding", slog.Any("error", err))
		return none
	}

	for _, cand := range encoderCandidates {
		if !listed[cand.encoder] {
			continue
		}
		if err := d.encodeSmoke(ctx, cand.encoder); err != nil {
			d.logger.Debug("hardware encoder listed but unusable",
				slog.String("encoder", cand.encoder),
				slog.Any("error", err),
			)
			continue
		}
		d.logger.Info("hardware encoder detected",
			slog.String("kind", string(cand.kind)),
			slog.String("encoder", cand.encoder),
		)
		return HWAccelInfo{Kind: cand.kind, Encoder: cand.encoder}
	}

	d.logger.Info("no usable hardware encoder, using libx264")
	return none
}

// listEncoders parses `ffmpeg -encoders` into a name set.
func (d *HWDetector) listEncoders(ctx context.Context) (map[string]bool, error) {
	ctx, cancel := context.WithTimeout(ctx, smokeTimeout)
	defer cancel()

	out, err := d.runner.Output(ctx, []string{"-hide_banner", "-encoders"})
	if err != nil {
		return nil, err
	}
	return parseEncoderList(string(out)), nil
}

// parseEncoderList extracts encoder names from -encoders output. Lines look
// like " V....D h264_nvenc  NVIDIA NVENC H.264 encoder".
func parseEncoderList(out string) map[string]bool {
	names := map[string]bool{}
	inList := false
	for _, line := range strings.Split(out, "\n") {
		if strings.Contains(line, "------") {
			inList = true
			continue
		}
		if !inList {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) >= 2 {
			names[fields[1]] = true
		}
	}
	return names
}

// encodeSmoke encodes a few synthetic frames to the null muxer to confirm
// the encoder and its driver actually work.
func (d *HWDetector) encodeSmoke(ctx context.Context, encoder string) error {
	ctx, cancel := context.WithTimeout(ctx, smokeTimeout)
	defer cancel()

	args := []string{
		"-hide_banner", "-loglevel", "error",
		"-f", "lavfi", "-i", "color=c=black:s=256x144:d=0.1:r=10",
		"-frames:v", "3",
		"-c:v", encoder,
		"-f", "null", "-",
	}
	if err := d.runner.Run(ctx, args); err != nil {
		return fmt.Errorf("encode smoke test with %s: %w", encoder, err)
	}
	return nil
}
