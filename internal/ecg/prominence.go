package ecg

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// Prominence threshold is max(ProminenceStdFactor·σ, ProminenceFloor).
const (
	ProminenceStdFactor = 0.1
	ProminenceFloor     = 0.02
)

// ProminenceDetector is a generic local-maximum finder. Peaks closer than
// the refractory spacing are thinned with taller peaks taking priority, then
// peaks whose prominence is below the threshold are dropped.
type ProminenceDetector struct {
	RRMinSec float64
}

// NewProminenceDetector returns a detector whose minimum peak spacing is
// rrMinSec seconds.
func NewProminenceDetector(rrMinSec float64) *ProminenceDetector {
	return &ProminenceDetector{RRMinSec: rrMinSec}
}

// Kind implements Detector.
func (d *ProminenceDetector) Kind() DetectorKind { return DetectorProminence }

// Detect implements Detector. It never fails.
func (d *ProminenceDetector) Detect(x []float64, fs float64) ([]int, error) {
	if len(x) < 3 {
		return nil, nil
	}
	minProm := math.Max(ProminenceStdFactor*stat.PopStdDev(x, nil), ProminenceFloor)
	return FindPeaks(x, MinDistance(d.RRMinSec, fs), minProm), nil
}

// MinDistance converts a minimum RR interval to a sample count, at least 1.
func MinDistance(rrMinSec, fs float64) int {
	n := int(math.Round(rrMinSec * fs))
	if n < 1 {
		return 1
	}
	return n
}

// FindPeaks returns the indices of local maxima of x that are at least
// distance samples apart and have a prominence of at least minProminence.
// Flat-topped maxima report their middle sample. Spacing is enforced before
// prominence; when two peaks of equal height compete the earlier one wins.
func FindPeaks(x []float64, distance int, minProminence float64) []int {
	peaks := localMaxima(x)
	if distance > 1 && len(peaks) > 1 {
		peaks = selectByDistance(x, peaks, distance)
	}
	out := peaks[:0]
	for _, p := range peaks {
		if Prominence(x, p) >= minProminence {
			out = append(out, p)
		}
	}
	return out
}

// localMaxima finds samples strictly higher than both neighbours, treating
// a plateau as a single maximum located at its middle.
func localMaxima(x []float64) []int {
	var peaks []int
	last := len(x) - 1
	for i := 1; i < last; i++ {
		if !(x[i-1] < x[i]) {
			continue
		}
		ahead := i + 1
		for ahead < last && x[ahead] == x[i] {
			ahead++
		}
		if x[ahead] < x[i] {
			peaks = append(peaks, (i+ahead-1)/2)
			i = ahead
		}
	}
	return peaks
}

// selectByDistance visits peaks from tallest to shortest and removes every
// neighbour closer than distance samples to a peak that is still kept.
func selectByDistance(x []float64, peaks []int, distance int) []int {
	order := make([]int, len(peaks))
	for i := range order {
		order[i] = i
	}
	// Tallest first; equal heights resolve to the earlier peak.
	sort.SliceStable(order, func(a, b int) bool {
		return x[peaks[order[a]]] > x[peaks[order[b]]]
	})

	keep := make([]bool, len(peaks))
	for i := range keep {
		keep[i] = true
	}
	for _, j := range order {
		if !keep[j] {
			continue
		}
		for k := j - 1; k >= 0 && peaks[j]-peaks[k] < distance; k-- {
			keep[k] = false
		}
		for k := j + 1; k < len(peaks) && peaks[k]-peaks[j] < distance; k++ {
			keep[k] = false
		}
	}

	out := make([]int, 0, len(peaks))
	for i, p := range peaks {
		if keep[i] {
			out = append(out, p)
		}
	}
	return out
}

// Prominence returns how far the peak at index p rises above the higher of
// the lowest points reached on each side before the signal exceeds it.
func Prominence(x []float64, p int) float64 {
	top := x[p]

	leftMin := top
	for i := p; i >= 0 && x[i] <= top; i-- {
		if x[i] < leftMin {
			leftMin = x[i]
		}
	}
	rightMin := top
	for i := p; i < len(x) && x[i] <= top; i++ {
		if x[i] < rightMin {
			rightMin = x[i]
		}
	}
	return top - math.Max(leftMin, rightMin)
}
