// Package core holds the rendering pipeline's shared state and the
// orchestrator that runs the audio, video, and finalize phases in order.
package core

import (
	"crypto/rand"
	"log/slog"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/zundamotion/zundamotion/internal/cache"
	"github.com/zundamotion/zundamotion/internal/config"
	"github.com/zundamotion/zundamotion/internal/ffmpeg"
	"github.com/zundamotion/zundamotion/internal/models"
	"github.com/zundamotion/zundamotion/internal/plugins"
	"github.com/zundamotion/zundamotion/internal/script"
	"github.com/zundamotion/zundamotion/internal/timeline"
	"github.com/zundamotion/zundamotion/internal/tts"
)

// SceneClip is one finished per-scene MP4 awaiting final concatenation.
type SceneClip struct {
	SceneID string
	Path    string
}

// Report accumulates run statistics across phases. Counter methods are safe
// for concurrent use by clip workers.
type Report struct {
	mu sync.Mutex

	Clips           int
	CPUOverlayClips int
	CacheHits       int
	CacheMisses     int
	GPURetries      int

	StartedAt time.Time
	Elapsed   time.Duration
	FinalMode ffmpeg.FilterMode
}

// AddClip records one rendered clip.
func (r *Report) AddClip(cpuOverlay bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Clips++
	if cpuOverlay {
		r.CPUOverlayClips++
	}
}

// AddCacheResult records one cache lookup outcome.
func (r *Report) AddCacheResult(hit bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if hit {
		r.CacheHits++
	} else {
		r.CacheMisses++
	}
}

// AddGPURetry records one GPU failure that was retried on the CPU.
func (r *Report) AddGPURetry() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.GPURetries++
}

// LogAttrs renders the report as structured log attributes.
func (r *Report) LogAttrs() []any {
	r.mu.Lock()
	defer r.mu.Unlock()
	return []any{
		slog.Int("clips", r.Clips),
		slog.Int("cpu_overlay_clips", r.CPUOverlayClips),
		slog.Int("cache_hits", r.CacheHits),
		slog.Int("cache_misses", r.CacheMisses),
		slog.Int("gpu_retries", r.GPURetries),
		slog.String("filter_mode", string(r.FinalMode)),
		slog.Duration("elapsed", r.Elapsed),
	}
}

// State is the shared context passed through all pipeline phases. The audio
// phase fills LineData and LineOrder, the video phase consumes them and fills
// SceneClips, and the finalize phase produces OutputPath.
type State struct {
	RunID string

	Script     *script.Config
	ScriptPath string
	App        *config.Config

	Cache         *cache.Manager
	FFmpegVersion string

	Runner   *ffmpeg.Runner
	Prober   *ffmpeg.Prober
	HW       ffmpeg.HWAccelInfo
	Caps     *ffmpeg.Capabilities
	Mode     *ffmpeg.ModeController
	TTS      *tts.Client
	Registry *plugins.Registry
	Timeline *timeline.Timeline

	TempDir    string
	OutputPath string

	LineData  map[string]*models.LineData
	LineOrder []string

	SceneClips []SceneClip

	Report Report
}

// NewState creates a pipeline state with a fresh run ID.
func NewState(sc *script.Config, app *config.Config) *State {
	return &State{
		RunID:    ulid.MustNew(ulid.Timestamp(time.Now()), rand.Reader).String(),
		Script:   sc,
		App:      app,
		Timeline: timeline.New(),
		LineData: map[string]*models.LineData{},
	}
}

// Line returns the audio-phase output for a line ID.
func (s *State) Line(id string) (*models.LineData, bool) {
	d, ok := s.LineData[id]
	return d, ok
}

// PutLine stores one audio-phase output and remembers its order.
func (s *State) PutLine(d *models.LineData) {
	id := d.LineID()
	if _, exists := s.LineData[id]; !exists {
		s.LineOrder = append(s.LineOrder, id)
	}
	s.LineData[id] = d
}
