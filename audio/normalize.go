package audio

import "math/rand/v2"

// FitLength normalizes p to exactly target frames. Longer waveforms keep
// a contiguous window of target frames, chosen by an unbiased coin flip
// between two equally likely strategies: a window at a uniformly random
// offset from the start, or the mirrored window measured from the end.
// Shorter waveforms are right-padded with zeros.
func FitLength(p *PCM, target int, rng *rand.Rand) *PCM {
	frames := p.Frames()
	if frames == target {
		return p
	}

	out := &PCM{Channels: p.Channels, Rate: p.Rate}
	if frames > target {
		overflow := frames - target
		offset := rng.IntN(overflow + 1)
		start := offset
		if rng.Float64() <= 0.5 {
			start = frames - target - offset
		}
		// Copied, not re-sliced: a batched sample must not keep the full
		// decoded buffer alive.
		window := p.Samples[start*p.Channels : (start+target)*p.Channels]
		out.Samples = make([]float32, len(window))
		copy(out.Samples, window)
		return out
	}

	out.Samples = make([]float32, target*p.Channels)
	copy(out.Samples, p.Samples)
	return out
}

// ToMono collapses multi-channel audio to one channel by averaging.
func ToMono(p *PCM) *PCM {
	if p.Channels <= 1 {
		return p
	}
	frames := p.Frames()
	mono := make([]float32, frames)
	inv := 1 / float32(p.Channels)
	for i := 0; i < frames; i++ {
		var sum float32
		base := i * p.Channels
		for c := 0; c < p.Channels; c++ {
			sum += p.Samples[base+c]
		}
		mono[i] = sum * inv
	}
	return &PCM{Samples: mono, Channels: 1, Rate: p.Rate}
}
