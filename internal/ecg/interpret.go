package ecg

import "math"

// RateBand is an informative heart-rate bucket. It is not a diagnosis.
type RateBand string

const (
	BandUndetermined RateBand = "not determinable"
	BandBradycardia  RateBand = "bradycardia"
	BandResting      RateBand = "resting"
	BandTachycardia  RateBand = "tachycardia"
	BandHigh         RateBand = "high"
)

// Interpret buckets a summary: below 60 bpm, up to 100, up to 150, above.
func Interpret(s HRSummary) RateBand {
	switch {
	case !s.Defined || math.IsNaN(s.BPM):
		return BandUndetermined
	case s.BPM < 60:
		return BandBradycardia
	case s.BPM <= 100:
		return BandResting
	case s.BPM <= 150:
		return BandTachycardia
	default:
		return BandHigh
	}
}

// Check compares the median RR heart rate with the rate implied by the
// number of detected beats over the window duration.
type Check struct {
	CountBPM float64 `json:"count_bpm"`
	Artifact bool    `json:"possible_artifact"`
}

// CrossCheck flags a window whose summary disagrees with the beat count by
// more than tolerance, a relative fraction of the count rate. Missed or
// doubled beats show up here before they show up in the median.
func CrossCheck(peaks []int, nSamples int, fs float64, s HRSummary, tolerance float64) Check {
	if !(fs > 0) {
		return Check{CountBPM: math.NaN()}
	}
	dur := math.Max(float64(nSamples)/fs, 1e-6)
	c := Check{CountBPM: 60 * float64(len(peaks)) / dur}
	if s.Defined && c.CountBPM > 0 {
		c.Artifact = math.Abs(s.BPM-c.CountBPM) > tolerance*c.CountBPM
	}
	return c
}
