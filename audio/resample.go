package audio

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/dsp/fourier"
)

// Quality selects the resampling algorithm.
type Quality string

const (
	// Linear interpolation: cheap, adequate for speech-scale content.
	Linear Quality = "linear"
	// Fourier resampling: FFT, spectrum truncation/padding, inverse FFT.
	Fourier Quality = "fourier"
)

// Resample converts p to the target sample rate, processing each channel
// independently. Returns p unchanged when the rate already matches or
// target is zero ("keep original").
func Resample(p *PCM, target int, q Quality) (*PCM, error) {
	if target == 0 || target == p.Rate {
		return p, nil
	}
	if p.Rate <= 0 {
		return nil, fmt.Errorf("resample: invalid source rate %d", p.Rate)
	}

	var fn func([]float64, int) []float64
	switch q {
	case Linear:
		fn = resampleLinear
	case Fourier, "":
		fn = resampleFourier
	default:
		return nil, fmt.Errorf("resample: unknown quality %q", q)
	}

	frames := p.Frames()
	outFrames := int(math.Round(float64(frames) * float64(target) / float64(p.Rate)))
	out := &PCM{
		Samples:  make([]float32, outFrames*p.Channels),
		Channels: p.Channels,
		Rate:     target,
	}

	ch := make([]float64, frames)
	for c := 0; c < p.Channels; c++ {
		for i := 0; i < frames; i++ {
			ch[i] = float64(p.Samples[i*p.Channels+c])
		}
		res := fn(ch, outFrames)
		for i := 0; i < outFrames; i++ {
			out.Samples[i*p.Channels+c] = float32(res[i])
		}
	}
	return out, nil
}

func resampleLinear(in []float64, m int) []float64 {
	out := make([]float64, m)
	if len(in) == 0 || m == 0 {
		return out
	}
	if len(in) == 1 {
		for i := range out {
			out[i] = in[0]
		}
		return out
	}
	step := float64(len(in)-1) / float64(max(m-1, 1))
	for i := 0; i < m; i++ {
		pos := float64(i) * step
		j := int(pos)
		if j >= len(in)-1 {
			out[i] = in[len(in)-1]
			continue
		}
		frac := pos - float64(j)
		out[i] = in[j]*(1-frac) + in[j+1]*frac
	}
	return out
}

// resampleFourier maps the signal into the frequency domain, truncates or
// zero-pads the spectrum to the new length, and transforms back.
func resampleFourier(in []float64, m int) []float64 {
	n := len(in)
	if n == 0 || m == 0 {
		return make([]float64, m)
	}

	fft := fourier.NewFFT(n)
	coeff := fft.Coefficients(nil, in)

	resized := make([]complex128, m/2+1)
	copy(resized, coeff[:min(len(coeff), len(resized))])

	inv := fourier.NewFFT(m)
	out := inv.Sequence(nil, resized)

	// Coefficients followed by Sequence scales by the analysis length.
	scale := 1 / float64(n)
	for i := range out {
		out[i] *= scale
	}
	return out
}
