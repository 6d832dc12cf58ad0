// Package audio decodes and meters the remote voice streams of a call.
//
// Decoding uses pion/opus, a pure Go Opus decoder. Decoded frames are 16-bit
// little-endian PCM interleaved by channel. Playback itself is left to the
// caller: a sink hands each decoded frame to a PCM callback together with its
// sample rate and channel count.
//
// Basic usage:
//
//	dec := audio.NewDecoder()
//	frame, err := dec.Decode(payload)
//	if err == nil {
//	    level := audio.Peak(frame.PCM)
//	}
package audio
