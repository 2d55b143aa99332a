package ffmpeg

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/zundamotion/zundamotion/internal/util"
)

// Environment variables for binary overrides.
const (
	EnvFFmpegBinary  = "ZUNDAMOTION_FFMPEG_BINARY"
	EnvFFprobeBinary = "ZUNDAMOTION_FFPROBE_BINARY"
)

// DependencyError marks a missing or too-old external tool. The CLI maps it
// to exit code 2.
type DependencyError struct {
	Tool string
	Msg  string
}

func (e *DependencyError) Error() string {
	return fmt.Sprintf("dependency %s: %s", e.Tool, e.Msg)
}

// BinaryInfo describes the detected transcoder installation.
type BinaryInfo struct {
	FFmpegPath   string `json:"ffmpeg_path"`
	FFprobePath  string `json:"ffprobe_path"`
	Version      string `json:"version"`
	MajorVersion int    `json:"major_version"`
	MinorVersion int    `json:"minor_version"`
}

// BinaryDetector finds the ffmpeg/ffprobe binaries and caches the result for
// the process lifetime.
type BinaryDetector struct {
	mu          sync.Mutex
	info        *BinaryInfo
	ffmpegPath  string // explicit override, empty = auto-detect
	ffprobePath string
}

// NewBinaryDetector creates a detector. Non-empty paths override
// auto-detection.
func NewBinaryDetector(ffmpegPath, ffprobePath string) *BinaryDetector {
	return &BinaryDetector{ffmpegPath: ffmpegPath, ffprobePath: ffprobePath}
}

var versionRe = regexp.MustCompile(`ffmpeg version (\S+)`)

// Detect locates both binaries and parses the ffmpeg version. Results are
// cached; subsequent calls are cheap.
func (d *BinaryDetector) Detect(ctx context.Context) (*BinaryInfo, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.info != nil {
		return d.info, nil
	}

	info := &BinaryInfo{}

	ffmpegPath := d.ffmpegPath
	if ffmpegPath == "" {
		var err error
		ffmpegPath, err = util.FindBinary("ffmpeg", EnvFFmpegBinary)
		if err != nil {
			return nil, &DependencyError{Tool: "ffmpeg", Msg: "not found on PATH"}
		}
	}
	info.FFmpegPath = ffmpegPath

	ffprobePath := d.ffprobePath
	if ffprobePath == "" {
		var err error
		ffprobePath, err = util.FindBinary("ffprobe", EnvFFprobeBinary)
		if err != nil {
			return nil, &DependencyError{Tool: "ffprobe", Msg: "not found on PATH"}
		}
	}
	info.FFprobePath = ffprobePath

	runner := NewRunner(ffmpegPath, 10*time.Second, time.Second, nil)
	out, err := runner.Output(ctx, []string{"-version"})
	if err != nil {
		return nil, &DependencyError{Tool: "ffmpeg", Msg: fmt.Sprintf("querying version: %v", err)}
	}

	info.Version, info.MajorVersion, info.MinorVersion = parseVersion(string(out))
	if info.Version == "" {
		return nil, &DependencyError{Tool: "ffmpeg", Msg: "unparseable -version output"}
	}

	d.info = info
	return info, nil
}

// EnsureMinVersion fails with a DependencyError when the detected major
// version is below min.
func (d *BinaryDetector) EnsureMinVersion(ctx context.Context, min int) error {
	info, err := d.Detect(ctx)
	if err != nil {
		return err
	}
	if info.MajorVersion > 0 && info.MajorVersion < min {
		return &DependencyError{
			Tool: "ffmpeg",
			Msg:  fmt.Sprintf("version %s is too old, need major version >= %d", info.Version, min),
		}
	}
	return nil
}

// parseVersion extracts the version string and major/minor numbers from
// `ffmpeg -version` output. Git builds ("N-12345-gdeadbeef") report 0.0.
func parseVersion(out string) (full string, major, minor int) {
	m := versionRe.FindStringSubmatch(out)
	if m == nil {
		return "", 0, 0
	}
	full = m[1]

	numeric := strings.TrimPrefix(full, "n")
	parts := strings.SplitN(numeric, ".", 3)
	if len(parts) >= 1 {
		major, _ = strconv.Atoi(strings.TrimFunc(parts[0], func(r rune) bool {
			return r < '0' || r > '9'
		}))
	}
	if len(parts) >= 2 {
		minor, _ = strconv.Atoi(strings.TrimFunc(parts[1], func(r rune) bool {
			return r < '0' || r > '9'
		}))
	}
	return full, major, minor
}
