package ecg

import (
	"math"
	"sort"
)

// Median returns the median of xs, averaging the two middle values for even
// lengths. It returns NaN for an empty slice. xs is not modified.
func Median(xs []float64) float64 {
	if len(xs) == 0 {
		return math.NaN()
	}
	sorted := make([]float64, len(xs))
	copy(sorted, xs)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}

// finiteMedian returns the median of the finite values of x, or 0 when
// there are none.
func finiteMedian(x []float64) float64 {
	finite := make([]float64, 0, len(x))
	for _, v := range x {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			finite = append(finite, v)
		}
	}
	if len(finite) == 0 {
		return 0
	}
	return Median(finite)
}

// neutralise returns a copy of x with NaN and ±Inf replaced by 0.
func neutralise(x []float64) []float64 {
	out := make([]float64, len(x))
	for i, v := range x {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		out[i] = v
	}
	return out
}

// gradient returns the numerical derivative of x using central differences
// in the interior and one-sided differences at the ends.
func gradient(x []float64) []float64 {
	n := len(x)
	g := make([]float64, n)
	if n < 2 {
		return g
	}
	g[0] = x[1] - x[0]
	g[n-1] = x[n-1] - x[n-2]
	for i := 1; i < n-1; i++ {
		g[i] = (x[i+1] - x[i-1]) / 2
	}
	return g
}

// boxcar smooths x with a moving average of size samples. The signal is
// padded with its edge values so the output has the same length and no
// droop at the ends. The window for output i covers
// [i-size/2, i+(size-1)/2].
func boxcar(x []float64, size int) []float64 {
	n := len(x)
	out := make([]float64, n)
	if n == 0 {
		return out
	}
	if size <= 1 {
		copy(out, x)
		return out
	}

	padded := make([]float64, 0, n+2*size)
	for i := 0; i < size; i++ {
		padded = append(padded, x[0])
	}
	padded = append(padded, x...)
	for i := 0; i < size; i++ {
		padded = append(padded, x[n-1])
	}

	prefix := make([]float64, len(padded)+1)
	for i, v := range padded {
		prefix[i+1] = prefix[i] + v
	}

	w := float64(size)
	for i := 0; i < n; i++ {
		lo := i + size - size/2
		hi := lo + size
		out[i] = (prefix[hi] - prefix[lo]) / w
	}
	return out
}
