// Package synth generates synthetic ECG-like signals for simulations and
// tests. The waveforms are shaped like a PQRST complex but carry no clinical
// meaning.
package synth

import (
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"
)

// Wave is one gaussian component of a beat. Center is a fraction of the
// beat period and Width is in seconds.
type Wave struct {
	Amplitude float64
	Center    float64
	Width     float64
}

// DefaultBeat is a P wave, QRS complex and T wave at rest.
var DefaultBeat = []Wave{
	{Amplitude: 0.08, Center: 0.18, Width: 0.025},
	{Amplitude: -0.12, Center: 0.30, Width: 0.008},
	{Amplitude: 1.00, Center: 0.32, Width: 0.010},
	{Amplitude: -0.25, Center: 0.35, Width: 0.010},
	{Amplitude: 0.25, Center: 0.60, Width: 0.050},
}

// Params describes a synthetic lead.
type Params struct {
	FS          float64 // sampling rate, Hz
	DurationSec float64
	HeartRate   float64 // bpm
	Beat        []Wave  // DefaultBeat when nil
	Gain        float64 // scales the beat; negative inverts it. 1 when zero
	NoiseStd    float64 // white gaussian noise
	BaselineAmp float64 // sinusoidal baseline wander amplitude
	BaselineHz  float64
	Seed        uint64
}

// Samples returns the number of samples p produces.
func (p Params) Samples() int {
	if !(p.FS > 0) || !(p.DurationSec > 0) {
		return 0
	}
	return int(math.Round(p.FS * p.DurationSec))
}

// Lead renders one lead.
func Lead(p Params) []float64 {
	n := p.Samples()
	x := make([]float64, n)
	if n == 0 || !(p.HeartRate > 0) {
		return x
	}
	beat := p.Beat
	if beat == nil {
		beat = DefaultBeat
	}
	gain := p.Gain
	if gain == 0 {
		gain = 1
	}
	period := 60 / p.HeartRate
	beats := int(math.Ceil(p.DurationSec/period)) + 1
	for k := 0; k < beats; k++ {
		t0 := float64(k) * period
		for _, w := range beat {
			addGaussian(x, p.FS, t0+w.Center*period, w.Width, gain*w.Amplitude)
		}
	}
	if p.BaselineAmp != 0 && p.BaselineHz > 0 {
		for i := range x {
			x[i] += p.BaselineAmp * math.Sin(2*math.Pi*p.BaselineHz*float64(i)/p.FS)
		}
	}
	if p.NoiseStd > 0 {
		AddNoise(x, p.NoiseStd, p.Seed)
	}
	return x
}

// Impulses renders narrow gaussian pulses of amplitude amp and width sigma
// seconds at first, first+period, ... up to durSec.
func Impulses(fs, durSec, first, period, amp, sigma float64) []float64 {
	n := int(math.Round(fs * durSec))
	if n <= 0 {
		return []float64{}
	}
	x := make([]float64, n)
	if !(period > 0) {
		return x
	}
	for k := 0; first+float64(k)*period < durSec; k++ {
		addGaussian(x, fs, first+float64(k)*period, sigma, amp)
	}
	return x
}

// ImpulseIndices returns the sample indices Impulses centres its pulses on.
func ImpulseIndices(fs, durSec, first, period float64) []int {
	var idx []int
	n := int(math.Round(fs * durSec))
	if !(period > 0) {
		return idx
	}
	for k := 0; first+float64(k)*period < durSec; k++ {
		if i := int(math.Round((first + float64(k)*period) * fs)); i < n {
			idx = append(idx, i)
		}
	}
	return idx
}

// AddNoise adds zero-mean gaussian noise of standard deviation std to x in
// place. The same seed always produces the same noise.
func AddNoise(x []float64, std float64, seed uint64) {
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	for i := range x {
		x[i] += std * rng.NormFloat64()
	}
}

// Noise returns n samples of gaussian noise.
func Noise(n int, std float64, seed uint64) []float64 {
	x := make([]float64, n)
	AddNoise(x, std, seed)
	return x
}

// Record stacks leads as the columns of a samples × leads matrix. Leads
// shorter than the longest are zero padded.
func Record(leads ...[]float64) *mat.Dense {
	rows := 0
	for _, l := range leads {
		rows = max(rows, len(l))
	}
	if rows == 0 || len(leads) == 0 {
		return &mat.Dense{}
	}
	m := mat.NewDense(rows, len(leads), nil)
	for j, l := range leads {
		for i, v := range l {
			m.Set(i, j, v)
		}
	}
	return m
}

func addGaussian(x []float64, fs, center, sigma, amp float64) {
	if sigma <= 0 {
		return
	}
	// 5σ covers everything above float noise for unit amplitudes.
	lo := int(math.Floor((center - 5*sigma) * fs))
	hi := int(math.Ceil((center + 5*sigma) * fs))
	lo = max(lo, 0)
	hi = min(hi, len(x)-1)
	for i := lo; i <= hi; i++ {
		z := (float64(i)/fs - center) / sigma
		x[i] += amp * math.Exp(-0.5*z*z)
	}
}
