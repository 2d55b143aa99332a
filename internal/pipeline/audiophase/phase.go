// Package audiophase implements the first pipeline phase: speech synthesis,
// line durations, face-animation analysis, and the timeline skeleton. Lines
// are processed in screenplay order so the timeline and cache are stable
// across runs.
package audiophase

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/zundamotion/zundamotion/internal/cache"
	"github.com/zundamotion/zundamotion/internal/models"
	"github.com/zundamotion/zundamotion/internal/observability"
	"github.com/zundamotion/zundamotion/internal/pipeline/core"
	"github.com/zundamotion/zundamotion/internal/pipeline/plan"
	"github.com/zundamotion/zundamotion/internal/script"
	"github.com/zundamotion/zundamotion/internal/timeline"
	"github.com/zundamotion/zundamotion/internal/tts"
)

// Phase synthesizes every talk line and measures every line's duration.
type Phase struct {
	logger *slog.Logger
}

// minSilence is the duration given to a line with neither text nor wait.
const minSilence = 0.05

// New creates the audio phase.
func New(logger *slog.Logger) *Phase {
	if logger == nil {
		logger = slog.Default()
	}
	return &Phase{logger: observability.WithComponent(logger, "audiophase")}
}

func (p *Phase) ID() string   { return "audio" }
func (p *Phase) Name() string { return "audio synthesis" }

// Run walks the screenplay in order, producing one LineData per line and a
// timeline entry on the output time axis.
func (p *Phase) Run(ctx context.Context, state *core.State) error {
	cursor := 0.0
	for _, scene := range state.Script.Scenes {
		for li, line := range scene.Lines {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}

			var (
				data *models.LineData
				err  error
			)
			switch {
			case line.Kind() == script.KindWait:
				data = &models.LineData{
					Type:      models.LineWait,
					SceneID:   scene.ID,
					LineIndex: li,
					Duration:  *line.Wait,
				}
			case line.Text == "" && line.Reading == "":
				// neither text nor wait: a minimum-length silence
				data = &models.LineData{
					Type:      models.LineWait,
					SceneID:   scene.ID,
					LineIndex: li,
					Duration:  minSilence,
				}
			default:
				data, err = p.processTalk(ctx, state, scene, li, line)
				if err != nil {
					return fmt.Errorf("line %s: %w", models.LineID(scene.ID, li), err)
				}
			}

			if err := data.Validate(); err != nil {
				return fmt.Errorf("line %s: %w", data.LineID(), err)
			}
			state.PutLine(data)

			state.Timeline.Add(timeline.Entry{
				SceneID:   scene.ID,
				LineIndex: li + 1,
				LineID:    data.LineID(),
				Start:     cursor,
				End:       cursor + data.TotalDuration(),
				Kind:      string(data.Type),
				Character: line.SpeakerName,
				Text:      data.Text,
			})
			cursor += data.TotalDuration()
		}
	}

	p.logger.Info("audio phase complete",
		slog.Int("lines", len(state.LineOrder)),
		slog.Float64("total_duration", cursor))
	return nil
}

// processTalk synthesizes one talk line, mixes any extra voice layers and
// sound effects, and runs face-animation analysis for the speaking character.
func (p *Phase) processTalk(ctx context.Context, state *core.State, scene script.Scene, li int, line script.Line) (*models.LineData, error) {
	defaults := state.Script.Defaults
	id := models.LineID(scene.ID, li)

	display, ttsText := readingTexts(line, defaults)

	req := voiceRequest(line, defaults, state)
	req.Text = ttsText

	audioPath, audioKey, err := p.synthesize(ctx, state, req)
	if err != nil {
		return nil, fmt.Errorf("synthesizing voice: %w", err)
	}

	if len(line.VoiceLayers) > 0 || len(line.SoundEffects) > 0 {
		audioPath, audioKey, err = p.mixLine(ctx, state, line, defaults, audioPath, audioKey)
		if err != nil {
			return nil, fmt.Errorf("mixing voice layers: %w", err)
		}
	}

	duration, err := state.Prober.Duration(ctx, audioPath)
	if err != nil {
		return nil, fmt.Errorf("probing voice duration: %w", err)
	}

	placements, err := plan.Characters(line, defaults, state.Script.Video.Width, state.Script.Video.Height)
	if err != nil {
		return nil, err
	}
	pre, post := plan.Padding(placements)

	data := &models.LineData{
		Type:         models.LineTalk,
		SceneID:      scene.ID,
		LineIndex:    li,
		AudioPath:    audioPath,
		AudioKey:     audioKey,
		Duration:     duration,
		PreDuration:  pre,
		PostDuration: post,
		Text:         display,
		TTSText:      ttsText,
	}

	if target, _, ok := plan.FaceTarget(line, defaults); ok {
		anim, err := p.analyzeFace(ctx, state, id, audioPath, audioKey, target)
		if err != nil {
			p.logger.Warn("face animation analysis failed, continuing without",
				slog.String("line", id), slog.Any("error", err))
		} else {
			data.FaceAnim = anim
		}
	}
	return data, nil
}

// readingTexts splits a line into display text and synthesis text. A full
// per-line reading wins over inline ruby markup.
func readingTexts(line script.Line, defaults script.Defaults) (display, ttsText string) {
	if line.Reading != "" {
		return line.Text, line.Reading
	}
	mode := defaults.ReadingMode
	if mode == "" {
		mode = "ruby"
	}
	return script.ParseReadingMarkup(line.Text, mode)
}

// voiceRequest resolves the line's voice parameters against the screenplay
// defaults and the application config.
func voiceRequest(line script.Line, defaults script.Defaults, state *core.State) tts.Request {
	speaker := line.SpeakerID
	if speaker == 0 {
		speaker = defaults.SpeakerID
	}
	if speaker == 0 {
		speaker = state.App.TTS.DefaultSpeaker
	}
	speed := line.Speed
	if speed == 0 {
		speed = defaults.Speed
	}
	if speed == 0 {
		speed = 1.0
	}
	pitch := line.Pitch
	if pitch == 0 {
		pitch = defaults.Pitch
	}
	return tts.Request{Speaker: speaker, Speed: speed, Pitch: pitch}
}

// synthesize produces the WAV for one request through the cache.
func (p *Phase) synthesize(ctx context.Context, state *core.State, req tts.Request) (path, hash string, err error) {
	key := cache.Key{
		"kind":    "tts",
		"text":    req.Text,
		"speaker": req.Speaker,
		"speed":   req.Speed,
		"pitch":   req.Pitch,
		"tts_url": state.App.TTS.BaseURL,
	}
	hash, err = key.Hash()
	if err != nil {
		return "", "", err
	}

	path, hit, err := state.Cache.GetOrCreate(ctx, "voice", key, "wav",
		func(ctx context.Context, tmpPath string) error {
			wav, err := state.TTS.Synthesize(ctx, req)
			if err != nil {
				return err
			}
			return os.WriteFile(tmpPath, wav, 0o644)
		})
	if err != nil {
		return "", "", err
	}
	state.Report.AddCacheResult(hit)
	return path, hash, nil
}
