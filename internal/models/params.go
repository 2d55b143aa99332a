// Package models defines the shared data types that flow between the
// rendering pipeline phases: encode parameters, per-line render data,
// face-animation segments, and overlay placements.
package models

import "fmt"

// HWEncoderKind identifies a hardware encoder family.
type HWEncoderKind string

const (
	HWEncoderNVENC        HWEncoderKind = "nvenc"
	HWEncoderQSV          HWEncoderKind = "qsv"
	HWEncoderVAAPI        HWEncoderKind = "vaapi"
	HWEncoderAMF          HWEncoderKind = "amf"
	HWEncoderVideoToolbox HWEncoderKind = "videotoolbox"
	HWEncoderNone         HWEncoderKind = "none"
)

// VideoParams describes the target video encode for every produced clip.
type VideoParams struct {
	Width   int     `json:"width"`
	Height  int     `json:"height"`
	FPS     int     `json:"fps"`
	PixFmt  string  `json:"pix_fmt"`
	Profile string  `json:"profile,omitempty"`
	Level   string  `json:"level,omitempty"`
	CRF     int     `json:"crf,omitempty"`     // CPU encode quality
	CQ      int     `json:"cq,omitempty"`      // Hardware encode quality
	Bitrate string  `json:"bitrate,omitempty"` // Overrides CRF/CQ when set
	Quality float64 `json:"-"`
}

// DefaultVideoParams returns 1080p30 yuv420p defaults.
func DefaultVideoParams() VideoParams {
	return VideoParams{
		Width:  1920,
		Height: 1080,
		FPS:    30,
		PixFmt: "yuv420p",
		CRF:    23,
		CQ:     23,
	}
}

// Resolution returns the WxH string form used in cache keys and filters.
func (p VideoParams) Resolution() string {
	return fmt.Sprintf("%dx%d", p.Width, p.Height)
}

// AudioParams describes the target audio encode.
type AudioParams struct {
	SampleRate int    `json:"sample_rate"`
	Channels   int    `json:"channels"`
	Codec      string `json:"codec"`
	Bitrate    string `json:"bitrate,omitempty"`
}

// DefaultAudioParams returns 48kHz stereo AAC defaults.
func DefaultAudioParams() AudioParams {
	return AudioParams{
		SampleRate: 48000,
		Channels:   2,
		Codec:      "aac",
		Bitrate:    "192k",
	}
}
