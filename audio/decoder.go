package audio

import (
	"errors"
	"fmt"

	"github.com/pion/opus"
	"github.com/sirupsen/logrus"
)

const (
	// SampleRate is the output rate of every decoded frame. The decoder
	// upsamples all bandwidths to 48kHz.
	SampleRate = 48000

	// maxFrameSamples holds 60ms of stereo audio at 48kHz.
	maxFrameSamples = 2880 * 2
)

// ErrEmptyPayload indicates an RTP packet without audio.
var ErrEmptyPayload = errors.New("empty audio payload")

// Frame is one decoded Opus packet.
type Frame struct {
	PCM        []int16
	SampleRate uint32
	Channels   int
}

// Decoder turns Opus packets into PCM. It is not safe for concurrent use.
type Decoder struct {
	dec *opus.Decoder
	buf []byte
}

// NewDecoder creates a decoder.
func NewDecoder() *Decoder {
	d := opus.NewDecoder()
	return &Decoder{dec: &d, buf: make([]byte, maxFrameSamples*2)}
}

// Decode decodes a single Opus packet.
func (d *Decoder) Decode(payload []byte) (Frame, error) {
	if len(payload) == 0 {
		return Frame{}, ErrEmptyPayload
	}
	_, stereo, err := d.dec.Decode(payload, d.buf)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function":     "Decoder.Decode",
			"payload_size": len(payload),
			"error":        err.Error(),
		}).Debug("Opus decode failed")
		return Frame{}, fmt.Errorf("opus decode: %w", err)
	}

	channels := 1
	if stereo {
		channels = 2
	}
	n := FrameSamples(payload[0]) * channels
	if n > len(d.buf)/2 {
		n = len(d.buf) / 2
	}
	pcm := make([]int16, n)
	for i := range pcm {
		pcm[i] = int16(d.buf[i*2]) | int16(d.buf[i*2+1])<<8
	}
	return Frame{PCM: pcm, SampleRate: SampleRate, Channels: channels}, nil
}

// FrameSamples returns the per-channel sample count at 48kHz of one frame
// described by an Opus TOC byte (RFC 6716 section 3.1).
func FrameSamples(toc byte) int {
	config := toc >> 3
	switch {
	case config < 12:
		// SILK: 10, 20, 40, 60ms
		return [4]int{480, 960, 1920, 2880}[config%4]
	case config < 16:
		// Hybrid: 10, 20ms
		return [2]int{480, 960}[config%2]
	default:
		// CELT: 2.5, 5, 10, 20ms
		return [4]int{120, 240, 480, 960}[config%4]
	}
}
