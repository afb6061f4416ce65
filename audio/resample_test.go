package audio

import (
	"math"
	"testing"
)

func TestResampleSameRateNoop(t *testing.T) {
	p := &PCM{Samples: []float32{1, 2, 3}, Channels: 1, Rate: 16000}
	out, err := Resample(p, 16000, Linear)
	if err != nil {
		t.Fatalf("resample: %v", err)
	}
	if out != p {
		t.Fatalf("matching rate should pass through unchanged")
	}
	out, err = Resample(p, 0, Linear)
	if err != nil {
		t.Fatalf("resample: %v", err)
	}
	if out != p {
		t.Fatalf("target 0 should keep the native rate")
	}
}

func TestResampleLinearUpsample(t *testing.T) {
	p := &PCM{Samples: []float32{0, 1, 2, 3}, Channels: 1, Rate: 4000}
	out, err := Resample(p, 8000, Linear)
	if err != nil {
		t.Fatalf("resample: %v", err)
	}
	if out.Rate != 8000 || out.Frames() != 8 {
		t.Fatalf("got rate=%d frames=%d", out.Rate, out.Frames())
	}
	if out.Samples[0] != 0 {
		t.Fatalf("first sample %v, want 0", out.Samples[0])
	}
	if out.Samples[7] != 3 {
		t.Fatalf("last sample %v, want 3", out.Samples[7])
	}
	for i := 1; i < 8; i++ {
		if out.Samples[i] < out.Samples[i-1] {
			t.Fatalf("monotone ramp broken at %d: %v", i, out.Samples)
		}
	}
}

func TestResampleFourierPreservesDC(t *testing.T) {
	p := &PCM{Channels: 2, Rate: 16000}
	p.Samples = make([]float32, 64*2)
	for i := range p.Samples {
		p.Samples[i] = 0.5
	}
	out, err := Resample(p, 8000, Fourier)
	if err != nil {
		t.Fatalf("resample: %v", err)
	}
	if out.Frames() != 32 || out.Channels != 2 {
		t.Fatalf("got frames=%d channels=%d", out.Frames(), out.Channels)
	}
	for i, v := range out.Samples {
		if math.Abs(float64(v)-0.5) > 1e-5 {
			t.Fatalf("sample %d: %v, want 0.5", i, v)
		}
	}
}

func TestResampleUnknownQuality(t *testing.T) {
	p := &PCM{Samples: []float32{1}, Channels: 1, Rate: 8000}
	if _, err := Resample(p, 16000, "nearest"); err == nil {
		t.Fatalf("expect error for unknown quality")
	}
}
