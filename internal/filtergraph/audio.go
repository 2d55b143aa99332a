package filtergraph

import (
	"fmt"

	"github.com/zundamotion/zundamotion/internal/models"
)

// AudioChainSpec describes the audio sources of a clip.
type AudioChainSpec struct {
	SpeechInput int     // graph input index of the speech WAV, -1 = none
	InsertInput int     // input index of insert media with audio, -1 = none
	PreDelay    float64 // enter padding in seconds, speech starts late
	Duration    float64 // total clip duration
	Params      models.AudioParams
}

// BuildAudioChain appends the audio filter chains and returns the final
// audio label. No speech and no insert audio yields synthesized silence so
// every clip carries a uniform audio stream for concatenation.
func BuildAudioChain(g *Graph, spec AudioChainSpec) string {
	out := g.Label("a")

	var filters []string
	delayMS := int(spec.PreDelay * 1000)
	if delayMS > 0 {
		filters = append(filters, fmt.Sprintf("adelay=%d:all=1", delayMS))
	}
	filters = append(filters,
		fmt.Sprintf("apad=pad_dur=%s", ff(spec.Duration)),
		fmt.Sprintf("aresample=%d", spec.Params.SampleRate),
	)

	switch {
	case spec.SpeechInput >= 0 && spec.InsertInput >= 0:
		mixed := g.Label("a")
		g.AddChain(
			[]string{fmt.Sprintf("%d:a", spec.SpeechInput), fmt.Sprintf("%d:a", spec.InsertInput)},
			[]string{"amix=inputs=2:duration=longest"},
			mixed,
		)
		g.AddChain([]string{mixed}, filters, out)
	case spec.SpeechInput >= 0:
		g.AddChain([]string{fmt.Sprintf("%d:a", spec.SpeechInput)}, filters, out)
	case spec.InsertInput >= 0:
		g.AddChain([]string{fmt.Sprintf("%d:a", spec.InsertInput)}, filters, out)
	default:
		g.AddChain(nil,
			[]string{fmt.Sprintf("anullsrc=r=%d:cl=%s:d=%s",
				spec.Params.SampleRate, channelLayout(spec.Params.Channels), ff(spec.Duration))},
			out,
		)
	}
	return out
}

func channelLayout(channels int) string {
	if channels == 1 {
		return "mono"
	}
	return "stereo"
}
