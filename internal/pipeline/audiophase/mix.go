package audiophase

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/zundamotion/zundamotion/internal/cache"
	"github.com/zundamotion/zundamotion/internal/pipeline/core"
	"github.com/zundamotion/zundamotion/internal/script"
)

// mixInput is one extra audio source mixed under the main voice.
type mixInput struct {
	path   string
	hash   string
	volume float64
	delay  float64
}

// mixLine layers extra voices and sound effects under the main voice WAV
// with per-input volume and delay, through the cache.
func (p *Phase) mixLine(ctx context.Context, state *core.State, line script.Line,
	defaults script.Defaults, basePath, baseKey string) (string, string, error) {

	var inputs []mixInput

	for _, layer := range line.VoiceLayers {
		req := voiceRequest(script.Line{
			SpeakerID: layer.SpeakerID,
			Speed:     layer.Speed,
			Pitch:     layer.Pitch,
		}, defaults, state)
		req.Text = layer.Text

		lpath, lhash, err := p.synthesize(ctx, state, req)
		if err != nil {
			return "", "", fmt.Errorf("synthesizing voice layer: %w", err)
		}
		inputs = append(inputs, mixInput{
			path:   lpath,
			hash:   lhash,
			volume: defaultVolume(layer.Volume),
			delay:  layer.Delay,
		})
	}

	for _, se := range line.SoundEffects {
		st, err := os.Stat(se.Path)
		if err != nil {
			return "", "", fmt.Errorf("sound effect %s: %w", se.Path, err)
		}
		inputs = append(inputs, mixInput{
			path:   se.Path,
			hash:   fmt.Sprintf("%s:%d:%d", se.Path, st.Size(), st.ModTime().UnixNano()),
			volume: defaultVolume(se.Volume),
			delay:  se.Delay,
		})
	}

	keyInputs := make([]any, len(inputs))
	for i, in := range inputs {
		keyInputs[i] = map[string]any{
			"hash":   in.hash,
			"volume": in.volume,
			"delay":  in.delay,
		}
	}
	key := cache.Key{
		"kind":   "voice_mix",
		"base":   baseKey,
		"inputs": keyInputs,
	}
	hash, err := key.Hash()
	if err != nil {
		return "", "", err
	}

	path, hit, err := state.Cache.GetOrCreate(ctx, "voice_mix", key, "wav",
		func(ctx context.Context, tmpPath string) error {
			return state.Runner.Run(ctx, mixArgs(basePath, inputs, state.Script.Audio.SampleRate, tmpPath))
		})
	if err != nil {
		return "", "", err
	}
	state.Report.AddCacheResult(hit)
	return path, hash, nil
}

// mixArgs assembles the transcoder invocation that mixes the base voice with
// the extra inputs. Mix normalization is off so the main voice keeps its
// level regardless of layer count.
func mixArgs(basePath string, inputs []mixInput, sampleRate int, outPath string) []string {
	args := []string{"-y", "-i", basePath}
	for _, in := range inputs {
		args = append(args, "-i", in.path)
	}

	var parts []string
	labels := []string{"[0:a]"}
	for i, in := range inputs {
		label := fmt.Sprintf("[l%d]", i+1)
		var chain []string
		if in.volume != 1 {
			chain = append(chain, "volume="+strconv.FormatFloat(in.volume, 'g', -1, 64))
		}
		if ms := int(in.delay * 1000); ms > 0 {
			chain = append(chain, fmt.Sprintf("adelay=%d:all=1", ms))
		}
		if len(chain) == 0 {
			chain = append(chain, "anull")
		}
		parts = append(parts, fmt.Sprintf("[%d:a]%s%s", i+1, strings.Join(chain, ","), label))
		labels = append(labels, label)
	}
	parts = append(parts, fmt.Sprintf("%samix=inputs=%d:duration=longest:normalize=0[mix]",
		strings.Join(labels, ""), len(labels)))

	args = append(args,
		"-filter_complex", strings.Join(parts, ";"),
		"-map", "[mix]",
		"-c:a", "pcm_s16le",
		"-ar", strconv.Itoa(sampleRate),
		outPath,
	)
	return args
}

func defaultVolume(v float64) float64 {
	if v == 0 {
		return 1
	}
	return v
}
