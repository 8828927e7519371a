package ecg

// QRS band-pass design. These are fixed and not part of Config.
const (
	qrsLowHz      = 5.0
	qrsHighHz     = 25.0
	qrsOrder      = 2
	minNormCutoff = 1e-6
	maxNormCutoff = 0.99
)

// BandPassCutoffs returns the QRS band-pass cutoffs normalised to the
// Nyquist frequency of fs, each clipped into [1e-6, 0.99]. ok is false when
// the clipped band is empty (lo >= hi) and no band-pass can be applied.
func BandPassCutoffs(fs float64) (lo, hi float64, ok bool) {
	if !(fs > 0) {
		return 0, 0, false
	}
	nyq := fs / 2
	lo = clip(qrsLowHz/nyq, minNormCutoff, maxNormCutoff)
	hi = clip(qrsHighHz/nyq, minNormCutoff, maxNormCutoff)
	return lo, hi, lo < hi
}

func clip(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Condition prepares one lead for R-peak detection: the median of the finite
// samples is removed as a robust baseline, non-finite samples are zeroed
// before that subtraction, and a zero-phase 5–25 Hz
// Butterworth band-pass isolates the QRS band. Cutoffs that fall outside
// the valid range for fs are clipped rather than rejected, and the function
// never fails. x is not modified.
func Condition(x []float64, fs float64) []float64 {
	y := neutralise(x)
	if len(y) == 0 {
		return y
	}

	base := finiteMedian(x)
	for i := range y {
		y[i] -= base
	}

	lo, hi, ok := BandPassCutoffs(fs)
	if !ok {
		Diagf("band-pass skipped: fs=%.3g Hz leaves no pass band (lo=%.3g hi=%.3g)", fs, lo, hi)
		return y
	}
	if hi == maxNormCutoff || lo == minNormCutoff {
		Diagf("band-pass cutoffs clipped for fs=%.3g Hz: lo=%.4f hi=%.4f (x Nyquist)", fs, lo, hi)
	}

	return butterBandPass(qrsOrder, lo, hi).filtfilt(y)
}
