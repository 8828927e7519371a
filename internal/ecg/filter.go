package ecg

import (
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// iirFilter is a transfer-function filter b(z)/a(z) with a[0] normalised to 1.
// b and a always have the same length.
type iirFilter struct {
	b []float64
	a []float64
}

// butterworthPrototype returns the poles of an order-n analog Butterworth
// low-pass prototype with unit cutoff.
func butterworthPrototype(n int) []complex128 {
	p := make([]complex128, 0, n)
	for m := -n + 1; m < n; m += 2 {
		p = append(p, -cmplx.Exp(complex(0, math.Pi*float64(m)/float64(2*n))))
	}
	return p
}

// prewarp maps a normalised digital frequency (1 = Nyquist) to the analog
// frequency used by the bilinear transform with fs = 2.
func prewarp(wn float64) float64 {
	return 4 * math.Tan(math.Pi*wn/2)
}

// butterBandPass designs an order-n Butterworth band-pass filter. lo and hi
// are normalised to Nyquist and must satisfy 0 < lo < hi < 1. The resulting
// transfer function has order 2n.
func butterBandPass(n int, lo, hi float64) iirFilter {
	w1, w2 := prewarp(lo), prewarp(hi)
	bw := w2 - w1
	wo := math.Sqrt(w1 * w2)

	proto := butterworthPrototype(n)
	poles := make([]complex128, 0, 2*n)
	for _, p := range proto {
		plp := p * complex(bw/2, 0)
		d := cmplx.Sqrt(plp*plp - complex(wo*wo, 0))
		poles = append(poles, plp+d)
	}
	for _, p := range proto {
		plp := p * complex(bw/2, 0)
		d := cmplx.Sqrt(plp*plp - complex(wo*wo, 0))
		poles = append(poles, plp-d)
	}
	zeros := make([]complex128, n)
	gain := math.Pow(bw, float64(n))

	return bilinear(zeros, poles, gain)
}

// bilinear converts an analog zero/pole/gain system to a digital transfer
// function using the bilinear transform with fs = 2.
func bilinear(zeros, poles []complex128, gain float64) iirFilter {
	const fs2 = 4.0
	degree := len(poles) - len(zeros)

	zz := make([]complex128, 0, len(poles))
	num := complex(1, 0)
	for _, z := range zeros {
		zz = append(zz, (fs2+z)/(fs2-z))
		num *= fs2 - z
	}
	for i := 0; i < degree; i++ {
		zz = append(zz, -1)
	}

	pz := make([]complex128, len(poles))
	den := complex(1, 0)
	for i, p := range poles {
		pz[i] = (fs2 + p) / (fs2 - p)
		den *= fs2 - p
	}

	k := gain * real(num/den)
	b := polyFromRoots(zz)
	floats.Scale(k, b)
	return newIIRFilter(b, polyFromRoots(pz))
}

// polyFromRoots expands prod(x - r) and returns the real coefficients,
// highest power first.
func polyFromRoots(roots []complex128) []float64 {
	c := []complex128{1}
	for _, r := range roots {
		next := make([]complex128, len(c)+1)
		for i, v := range c {
			next[i] += v
			next[i+1] -= v * r
		}
		c = next
	}
	out := make([]float64, len(c))
	for i, v := range c {
		out[i] = real(v)
	}
	return out
}

// newIIRFilter pads b and a to a common length and normalises by a[0].
func newIIRFilter(b, a []float64) iirFilter {
	n := len(a)
	if len(b) > n {
		n = len(b)
	}
	bb := make([]float64, n)
	aa := make([]float64, n)
	copy(bb, b)
	copy(aa, a)
	if aa[0] != 1 && aa[0] != 0 {
		a0 := aa[0]
		floats.Scale(1/a0, bb)
		floats.Scale(1/a0, aa)
	}
	return iirFilter{b: bb, a: aa}
}

// order returns the number of delay elements in the filter state.
func (f iirFilter) order() int {
	return len(f.a) - 1
}

// lfilter runs the filter over x in direct form II transposed, starting from
// state zi (nil means zero state).
func (f iirFilter) lfilter(x, zi []float64) []float64 {
	m := f.order()
	z := make([]float64, m)
	copy(z, zi)
	y := make([]float64, len(x))
	if m == 0 {
		for i, v := range x {
			y[i] = f.b[0] * v
		}
		return y
	}
	for i, v := range x {
		out := f.b[0]*v + z[0]
		for j := 0; j < m-1; j++ {
			z[j] = f.b[j+1]*v + z[j+1] - f.a[j+1]*out
		}
		z[m-1] = f.b[m]*v - f.a[m]*out
		y[i] = out
	}
	return y
}

// steadyState returns the initial filter state for a unit step input, so a
// signal that starts at a constant level produces no start-up transient.
// It solves (I - Aᵀ) zi = b[1:] - a[1:]·b[0] where A is the companion matrix
// of a. A singular system falls back to the zero state.
func (f iirFilter) steadyState() []float64 {
	m := f.order()
	if m == 0 {
		return nil
	}
	lhs := mat.NewDense(m, m, nil)
	rhs := mat.NewVecDense(m, nil)
	for i := 0; i < m; i++ {
		lhs.Set(i, i, 1)
		lhs.Set(i, 0, lhs.At(i, 0)+f.a[i+1])
		if i+1 < m {
			lhs.Set(i, i+1, -1)
		}
		rhs.SetVec(i, f.b[i+1]-f.a[i+1]*f.b[0])
	}
	var zi mat.VecDense
	if err := zi.SolveVec(lhs, rhs); err != nil {
		Diagf("filter steady state unavailable, using zero state: %v", err)
		return make([]float64, m)
	}
	return mat.Col(nil, 0, &zi)
}

// oddExtend reflects n samples about each end point of x.
func oddExtend(x []float64, n int) []float64 {
	last := len(x) - 1
	ext := make([]float64, 0, len(x)+2*n)
	for i := n; i >= 1; i-- {
		ext = append(ext, 2*x[0]-x[i])
	}
	ext = append(ext, x...)
	for i := 1; i <= n; i++ {
		ext = append(ext, 2*x[last]-x[last-i])
	}
	return ext
}

// filtfilt applies the filter forward and backward for zero phase shift.
// Edges are padded by odd extension of 3×(filter length) samples, shortened
// when x is too short to supply them. Inputs of fewer than 2 samples are
// returned as a copy.
func (f iirFilter) filtfilt(x []float64) []float64 {
	if len(x) < 2 {
		out := make([]float64, len(x))
		copy(out, x)
		return out
	}
	pad := 3 * len(f.a)
	if pad > len(x)-1 {
		pad = len(x) - 1
	}

	ext := oddExtend(x, pad)
	zi := f.steadyState()
	state := make([]float64, len(zi))

	floats.ScaleTo(state, ext[0], zi)
	y := f.lfilter(ext, state)

	floats.Reverse(y)
	floats.ScaleTo(state, y[0], zi)
	y = f.lfilter(y, state)
	floats.Reverse(y)

	return y[pad : len(y)-pad]
}
