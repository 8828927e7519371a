package ecg

import (
	"errors"
	"fmt"
	"math"

	"github.com/jfcg/butter"
	"gonum.org/v1/gonum/floats"
)

var (
	// ErrSignalTooShort is returned when a window cannot hold one averaging kernel.
	ErrSignalTooShort = errors.New("signal too short")
	// ErrNoQRS is returned when the gradient envelope never crosses its threshold.
	ErrNoQRS = errors.New("no QRS complex found")
)

// AdaptiveDetector locates QRS complexes where the smoothed absolute
// gradient rises above a multiple of its slower running average, then takes
// the most prominent maximum inside each complex as the R-peak.
type AdaptiveDetector struct {
	HighPassHz      float64 // baseline wander removal cutoff
	PowerlineHz     float64 // moving-average notch frequency, applied when fs >= 2·PowerlineHz
	SmoothWindowSec float64
	AvgWindowSec    float64
	GradThreshold   float64 // multiple of the averaged envelope marking a QRS
	MinLenWeight    float64 // complexes shorter than this fraction of the mean are dropped
	MinDelaySec     float64 // minimum spacing between accepted peaks
	MinAmplitude    float64 // minimum peak-to-peak amplitude of an accepted complex
}

// NewAdaptiveDetector returns the detector with its cardiac defaults.
func NewAdaptiveDetector() *AdaptiveDetector {
	return &AdaptiveDetector{
		HighPassHz:      0.5,
		PowerlineHz:     50,
		SmoothWindowSec: 0.1,
		AvgWindowSec:    0.75,
		GradThreshold:   1.5,
		MinLenWeight:    0.4,
		MinDelaySec:     0.3,
		MinAmplitude:    ProminenceFloor,
	}
}

// Kind implements Detector.
func (d *AdaptiveDetector) Kind() DetectorKind { return DetectorAdaptive }

// Clean removes residual baseline wander and mains interference.
func (d *AdaptiveDetector) Clean(x []float64, fs float64) []float64 {
	y := neutralise(x)
	if d.HighPassHz > 0 {
		if hp, ok := highPassZeroPhase(y, d.HighPassHz, fs); ok {
			y = hp
		} else {
			Diagf("adaptive: high-pass %g Hz skipped at %g Hz", d.HighPassHz, fs)
		}
	}
	if d.PowerlineHz > 0 && fs >= 2*d.PowerlineHz {
		taps := int(fs / d.PowerlineHz)
		b := make([]float64, taps)
		for i := range b {
			b[i] = 1 / float64(taps)
		}
		y = newIIRFilter(b, []float64{1}).filtfilt(y)
	}
	return y
}

// highPassZeroPhase runs a first-order Butterworth high-pass at fc forward
// and then backward over x. Both ends are odd-extended by up to one second
// and each pass starts from the first extended sample, so no start-up step
// reaches x. ok is false when fc is outside the filter's range at fs.
func highPassZeroPhase(x []float64, fc, fs float64) (y []float64, ok bool) {
	wc := 2 * math.Pi * fc / fs
	if butter.NewHighPass1(wc) == nil {
		return x, false
	}
	if len(x) < 2 {
		return append([]float64(nil), x...), true
	}
	pad := min(len(x)-1, int(fs))
	y = oddExtend(x, pad)
	for range 2 {
		f := butter.NewHighPass1(wc)
		y0 := y[0]
		for i, v := range y {
			y[i] = f.Next(v - y0)
		}
		floats.Reverse(y)
	}
	return y[pad : len(y)-pad], true
}

// Detect implements Detector.
func (d *AdaptiveDetector) Detect(x []float64, fs float64) ([]int, error) {
	if !(fs > 0) {
		return nil, fmt.Errorf("adaptive: invalid sampling rate %g", fs)
	}
	avgKernel := int(math.Round(d.AvgWindowSec * fs))
	if len(x) < 3 || len(x) <= avgKernel {
		return nil, fmt.Errorf("adaptive: %d samples: %w", len(x), ErrSignalTooShort)
	}

	clean := d.Clean(x, fs)
	absGrad := gradient(clean)
	for i, v := range absGrad {
		absGrad[i] = math.Abs(v)
	}
	smooth := boxcar(absGrad, int(math.Round(d.SmoothWindowSec*fs)))
	avg := boxcar(smooth, avgKernel)

	begins, ends := qrsSegments(smooth, avg, d.GradThreshold)
	if len(begins) == 0 || len(ends) == 0 {
		return nil, fmt.Errorf("adaptive: %w", ErrNoQRS)
	}

	lengths := make([]float64, len(begins))
	for i := range begins {
		lengths[i] = float64(ends[i] - begins[i])
	}
	minLen := floats.Sum(lengths) / float64(len(lengths)) * d.MinLenWeight
	minDelay := int(math.Round(d.MinDelaySec * fs))

	var peaks []int
	for i := range begins {
		if lengths[i] < minLen {
			continue
		}
		seg := clean[begins[i]:ends[i]]
		if floats.Max(seg)-floats.Min(seg) < d.MinAmplitude {
			continue
		}
		p, ok := mostProminent(seg)
		if !ok {
			continue
		}
		p += begins[i]
		if len(peaks) > 0 && p-peaks[len(peaks)-1] <= minDelay {
			continue
		}
		peaks = append(peaks, p)
	}
	return peaks, nil
}

// qrsSegments pairs every rising crossing of smooth above thresh·avg with the
// next falling crossing. Ends that precede the first start are discarded and
// an unterminated final complex is dropped.
func qrsSegments(smooth, avg []float64, thresh float64) (begins, ends []int) {
	above := func(i int) bool { return smooth[i] > thresh*avg[i] }
	for i := 0; i+1 < len(smooth); i++ {
		now, next := above(i), above(i+1)
		switch {
		case !now && next:
			begins = append(begins, i)
		case now && !next && len(begins) > len(ends):
			ends = append(ends, i)
		}
	}
	if len(begins) > len(ends) {
		begins = begins[:len(ends)]
	}
	return begins, ends
}

// mostProminent returns the local maximum of seg with the greatest
// prominence; the first wins ties.
func mostProminent(seg []float64) (int, bool) {
	best, bestProm := -1, math.Inf(-1)
	for _, p := range localMaxima(seg) {
		if prom := Prominence(seg, p); prom > bestProm {
			best, bestProm = p, prom
		}
	}
	return best, best >= 0
}
