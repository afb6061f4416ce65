// Package audio decodes compressed waveform bytes and normalizes them for
// batching: resampling, fixed-length windowing, channel reduction.
package audio

import (
	"bytes"
	"fmt"
	"io"

	"github.com/go-audio/wav"
	"github.com/mewkiz/flac"
)

// PCM is decoded audio: frame-major interleaved float32 samples in
// [-1, 1], with the native channel count and sample rate.
type PCM struct {
	Samples  []float32
	Channels int
	Rate     int
}

// Frames returns the number of sample frames (per-channel length).
func (p *PCM) Frames() int {
	if p.Channels == 0 {
		return 0
	}
	return len(p.Samples) / p.Channels
}

// Decode parses audio bytes into PCM, detecting the container from its
// magic bytes. FLAC and WAV are supported; anything else is an error the
// caller classifies as a record-level decode failure.
func Decode(b []byte) (*PCM, error) {
	switch {
	case bytes.HasPrefix(b, []byte("fLaC")):
		return decodeFLAC(b)
	case bytes.HasPrefix(b, []byte("RIFF")):
		return decodeWAV(b)
	default:
		return nil, fmt.Errorf("unrecognized audio container (%d bytes)", len(b))
	}
}

func decodeFLAC(b []byte) (*PCM, error) {
	stream, err := flac.Parse(bytes.NewReader(b))
	if err != nil {
		return nil, fmt.Errorf("parsing flac: %w", err)
	}

	var (
		channels = int(stream.Info.NChannels)
		rate     = int(stream.Info.SampleRate)
		scale    = float32(int64(1) << (stream.Info.BitsPerSample - 1))
		samples  []float32
	)
	if total := stream.Info.NSamples; total > 0 {
		samples = make([]float32, 0, int(total)*channels)
	}

	for {
		frame, err := stream.ParseNext()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parsing flac frame: %w", err)
		}
		n := len(frame.Subframes[0].Samples)
		for i := 0; i < n; i++ {
			for ch := 0; ch < channels; ch++ {
				samples = append(samples, float32(frame.Subframes[ch].Samples[i])/scale)
			}
		}
	}

	return &PCM{Samples: samples, Channels: channels, Rate: rate}, nil
}

func decodeWAV(b []byte) (*PCM, error) {
	dec := wav.NewDecoder(bytes.NewReader(b))
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("parsing wav: %w", err)
	}
	if buf.Format == nil || buf.Format.NumChannels == 0 {
		return nil, fmt.Errorf("parsing wav: missing format chunk")
	}

	bitDepth := int(dec.BitDepth)
	if bitDepth == 0 {
		bitDepth = buf.SourceBitDepth
	}
	if bitDepth == 0 {
		bitDepth = 16
	}
	scale := float32(int64(1) << (bitDepth - 1))

	samples := make([]float32, len(buf.Data))
	for i, v := range buf.Data {
		samples[i] = float32(v) / scale
	}

	return &PCM{
		Samples:  samples,
		Channels: buf.Format.NumChannels,
		Rate:     buf.Format.SampleRate,
	}, nil
}
