package audio

import (
	"math/rand/v2"
	"testing"
)

func rampPCM(frames, channels int) *PCM {
	p := &PCM{Channels: channels, Rate: 16000}
	p.Samples = make([]float32, frames*channels)
	for i := 0; i < frames; i++ {
		for c := 0; c < channels; c++ {
			p.Samples[i*channels+c] = float32(i)
		}
	}
	return p
}

func TestFitLengthExact(t *testing.T) {
	p := rampPCM(10, 1)
	out := FitLength(p, 10, rand.New(rand.NewPCG(1, 0)))
	if out != p {
		t.Fatalf("exact length should pass through unchanged")
	}
}

func TestFitLengthWindowIsContiguous(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 0))
	for i := 0; i < 50; i++ {
		out := FitLength(rampPCM(10, 2), 4, rng)
		if out.Frames() != 4 {
			t.Fatalf("got %d frames, want 4", out.Frames())
		}
		start := out.Samples[0]
		if start < 0 || start > 6 {
			t.Fatalf("window start %v out of range", start)
		}
		for f := 0; f < 4; f++ {
			for c := 0; c < 2; c++ {
				if out.Samples[f*2+c] != start+float32(f) {
					t.Fatalf("window not contiguous at frame %d: %v", f, out.Samples)
				}
			}
		}
	}
}

func TestFitLengthWindowCoversBothEnds(t *testing.T) {
	// Over many draws both clipping strategies must appear: windows
	// starting at 0 and windows ending at the last frame.
	rng := rand.New(rand.NewPCG(2, 0))
	var sawStart, sawEnd bool
	for i := 0; i < 200; i++ {
		out := FitLength(rampPCM(10, 1), 4, rng)
		switch out.Samples[0] {
		case 0:
			sawStart = true
		case 6:
			sawEnd = true
		}
	}
	if !sawStart || !sawEnd {
		t.Fatalf("clip windows never reached an end: start=%t end=%t", sawStart, sawEnd)
	}
}

func TestFitLengthWindowDoesNotAliasInput(t *testing.T) {
	p := rampPCM(10, 1)
	out := FitLength(p, 4, rand.New(rand.NewPCG(3, 0)))
	before := make([]float32, len(out.Samples))
	copy(before, out.Samples)

	for i := range p.Samples {
		p.Samples[i] = -1
	}
	for i, v := range before {
		if out.Samples[i] != v {
			t.Fatalf("clipped window aliases the input buffer at %d", i)
		}
	}
}

func TestFitLengthZeroPads(t *testing.T) {
	p := rampPCM(3, 2)
	p.Samples = []float32{1, 1, 2, 2, 3, 3}
	out := FitLength(p, 5, rand.New(rand.NewPCG(1, 0)))
	if out.Frames() != 5 {
		t.Fatalf("got %d frames, want 5", out.Frames())
	}
	want := []float32{1, 1, 2, 2, 3, 3, 0, 0, 0, 0}
	for i, v := range want {
		if out.Samples[i] != v {
			t.Fatalf("sample %d: got %v, want %v", i, out.Samples[i], v)
		}
	}
}

func TestToMono(t *testing.T) {
	p := &PCM{Samples: []float32{1, 3, 2, 4}, Channels: 2, Rate: 8000}
	out := ToMono(p)
	if out.Channels != 1 || out.Frames() != 2 {
		t.Fatalf("got %d channels, %d frames", out.Channels, out.Frames())
	}
	if out.Samples[0] != 2 || out.Samples[1] != 3 {
		t.Fatalf("averaging wrong: %v", out.Samples)
	}
}

func TestToMonoPassthrough(t *testing.T) {
	p := &PCM{Samples: []float32{1, 2}, Channels: 1, Rate: 8000}
	if ToMono(p) != p {
		t.Fatalf("mono input should pass through unchanged")
	}
}
