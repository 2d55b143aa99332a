// Package faceanim derives mouth and blink animation timelines for a
// speaking character from its synthesized voice audio.
package faceanim

import (
	"encoding/binary"
	"fmt"
	"os"
)

// PCM holds decoded mono samples normalized to [-1, 1].
type PCM struct {
	Samples    []float64
	SampleRate int
}

// Duration returns the clip length in seconds.
func (p *PCM) Duration() float64 {
	if p.SampleRate == 0 {
		return 0
	}
	return float64(len(p.Samples)) / float64(p.SampleRate)
}

// DecodeWAVFile reads a PCM WAV file and downmixes it to mono.
func DecodeWAVFile(path string) (*PCM, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	pcm, err := DecodeWAV(data)
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", path, err)
	}
	return pcm, nil
}

// DecodeWAV parses a RIFF/WAVE container with 8, 16, 24, or 32-bit PCM
// samples. Unknown chunks are skipped.
func DecodeWAV(data []byte) (*PCM, error) {
	if len(data) < 12 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return nil, fmt.Errorf("not a RIFF/WAVE file")
	}

	var (
		audioFormat   uint16
		channels      uint16
		sampleRate    uint32
		bitsPerSample uint16
		haveFmt       bool
		raw           []byte
	)

	// Walk the chunk list. Chunks are word-aligned.
	off := 12
	for off+8 <= len(data) {
		id := string(data[off : off+4])
		size := int(binary.LittleEndian.Uint32(data[off+4 : off+8]))
		body := off + 8
		if body+size > len(data) {
			size = len(data) - body
		}

		switch id {
		case "fmt ":
			if size < 16 {
				return nil, fmt.Errorf("fmt chunk too short (%d bytes)", size)
			}
			audioFormat = binary.LittleEndian.Uint16(data[body : body+2])
			channels = binary.LittleEndian.Uint16(data[body+2 : body+4])
			sampleRate = binary.LittleEndian.Uint32(data[body+4 : body+8])
			bitsPerSample = binary.LittleEndian.Uint16(data[body+14 : body+16])
			haveFmt = true
		case "data":
			raw = data[body : body+size]
		}

		off = body + size
		if size%2 == 1 {
			off++
		}
	}

	if !haveFmt {
		return nil, fmt.Errorf("missing fmt chunk")
	}
	if raw == nil {
		return nil, fmt.Errorf("missing data chunk")
	}
	// 1 = integer PCM, 0xFFFE = extensible (assumed PCM)
	if audioFormat != 1 && audioFormat != 0xFFFE {
		return nil, fmt.Errorf("unsupported audio format %d, need PCM", audioFormat)
	}
	if channels == 0 {
		return nil, fmt.Errorf("zero channels")
	}

	bytesPerSample := int(bitsPerSample) / 8
	switch bitsPerSample {
	case 8, 16, 24, 32:
	default:
		return nil, fmt.Errorf("unsupported bit depth %d", bitsPerSample)
	}

	frameSize := bytesPerSample * int(channels)
	frames := len(raw) / frameSize
	samples := make([]float64, frames)

	for i := 0; i < frames; i++ {
		var sum float64
		for ch := 0; ch < int(channels); ch++ {
			p := i*frameSize + ch*bytesPerSample
			sum += decodeSample(raw[p:p+bytesPerSample], bitsPerSample)
		}
		samples[i] = sum / float64(channels)
	}

	return &PCM{Samples: samples, SampleRate: int(sampleRate)}, nil
}

// decodeSample converts one little-endian PCM sample to [-1, 1]. 8-bit is
// unsigned per the WAV format; wider depths are signed.
func decodeSample(b []byte, bits uint16) float64 {
	switch bits {
	case 8:
		return (float64(b[0]) - 128) / 128
	case 16:
		v := int16(binary.LittleEndian.Uint16(b))
		return float64(v) / 32768
	case 24:
		v := int32(b[0]) | int32(b[1])<<8 | int32(b[2])<<16
		if v&0x800000 != 0 {
			v -= 0x1000000
		}
		return float64(v) / 8388608
	case 32:
		v := int32(binary.LittleEndian.Uint32(b))
		return float64(v) / 2147483648
	}
	return 0
}
