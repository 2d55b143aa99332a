package ffmpeg

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"
)

// MediaInfo holds the probed properties of an input file.
type MediaInfo struct {
	Path       string  `json:"path"`
	Duration   float64 `json:"duration"`
	Width      int     `json:"width,omitempty"`
	Height     int     `json:"height,omitempty"`
	HasVideo   bool    `json:"has_video"`
	HasAudio   bool    `json:"has_audio"`
	SampleRate int     `json:"sample_rate,omitempty"`
	Channels   int     `json:"channels,omitempty"`
}

// probeKey identifies a file version. A re-probed path with a changed mtime
// or size gets a fresh entry.
type probeKey struct {
	path  string
	mtime int64
	size  int64
}

// Prober wraps ffprobe with a per-process memoization keyed by absolute
// path, mtime, and size.
type Prober struct {
	runner *Runner

	mu    sync.Mutex
	cache map[probeKey]*MediaInfo
}

// NewProber creates a prober around the ffprobe binary at path.
func NewProber(ffprobePath string) *Prober {
	return &Prober{
		runner: NewRunner(ffprobePath, 30*time.Second, time.Second, nil),
		cache:  map[probeKey]*MediaInfo{},
	}
}

// ffprobe JSON shapes.
type probeOutput struct {
	Streams []probeStream `json:"streams"`
	Format  probeFormat   `json:"format"`
}

type probeStream struct {
	CodecType  string `json:"codec_type"`
	Width      int    `json:"width"`
	Height     int    `json:"height"`
	SampleRate string `json:"sample_rate"`
	Channels   int    `json:"channels"`
	Duration   string `json:"duration"`
}

type probeFormat struct {
	Duration string `json:"duration"`
}

// Probe returns media info for path, using the cache when the file is
// unchanged since the last probe.
func (p *Prober) Probe(ctx context.Context, path string) (*MediaInfo, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolving %s: %w", path, err)
	}
	st, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("probing %s: %w", path, err)
	}
	key := probeKey{path: abs, mtime: st.ModTime().UnixNano(), size: st.Size()}

	p.mu.Lock()
	if info, ok := p.cache[key]; ok {
		p.mu.Unlock()
		return info, nil
	}
	p.mu.Unlock()

	info, err := p.probe(ctx, abs)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	p.cache[key] = info
	p.mu.Unlock()
	return info, nil
}

// Duration returns the probed duration in seconds.
func (p *Prober) Duration(ctx context.Context, path string) (float64, error) {
	info, err := p.Probe(ctx, path)
	if err != nil {
		return 0, err
	}
	return info.Duration, nil
}

func (p *Prober) probe(ctx context.Context, abs string) (*MediaInfo, error) {
	args := []string{
		"-hide_banner", "-loglevel", "error",
		"-show_streams", "-show_format",
		"-of", "json",
		abs,
	}
	out, err := p.runner.Output(ctx, args)
	if err != nil {
		return nil, fmt.Errorf("probing %s: %w", abs, err)
	}

	var raw probeOutput
	if err := json.Unmarshal(out, &raw); err != nil {
		return nil, fmt.Errorf("parsing probe output for %s: %w", abs, err)
	}

	info := &MediaInfo{Path: abs}
	info.Duration, _ = strconv.ParseFloat(raw.Format.Duration, 64)
	for _, s := range raw.Streams {
		switch s.CodecType {
		case "video":
			info.HasVideo = true
			if info.Width == 0 {
				info.Width, info.Height = s.Width, s.Height
			}
		case "audio":
			info.HasAudio = true
			if info.SampleRate == 0 {
				info.SampleRate, _ = strconv.Atoi(s.SampleRate)
				info.Channels = s.Channels
			}
		}
		// Streams may carry duration when the container does not.
		if info.Duration == 0 {
			if d, err := strconv.ParseFloat(s.Duration, 64); err == nil && d > 0 {
				info.Duration = d
			}
		}
	}
	return info, nil
}
