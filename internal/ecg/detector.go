package ecg

import (
	"errors"
	"fmt"
	"strings"
)

// DetectorKind enumerates the R-peak detection strategies.
type DetectorKind int

const (
	// DetectorAdaptive cleans the signal and finds QRS complexes from the
	// smoothed gradient envelope.
	DetectorAdaptive DetectorKind = iota
	// DetectorProminence finds local maxima subject to spacing and
	// prominence constraints.
	DetectorProminence
)

// DefaultDetectorOrder is the evaluation order used for each polarity pass.
var DefaultDetectorOrder = []DetectorKind{DetectorAdaptive, DetectorProminence}

func (k DetectorKind) String() string {
	switch k {
	case DetectorAdaptive:
		return "adaptive"
	case DetectorProminence:
		return "prominence"
	default:
		return fmt.Sprintf("detector(%d)", int(k))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (k DetectorKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// ParseDetectorKind parses a detector name as produced by String.
func ParseDetectorKind(s string) (DetectorKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "adaptive":
		return DetectorAdaptive, nil
	case "prominence":
		return DetectorProminence, nil
	default:
		return 0, fmt.Errorf("unknown detector %q", s)
	}
}

// ErrDetectorPanic is wrapped by errors for detectors that panicked.
var ErrDetectorPanic = errors.New("detector panicked")

// Detector finds raw R-peak candidates in a conditioned signal. The returned
// indices are in ascending order and may violate the refractory spacing.
type Detector interface {
	Kind() DetectorKind
	Detect(x []float64, fs float64) ([]int, error)
}

// NewDetector builds the detector for kind. rrMinSec sets the minimum peak
// spacing for detectors that use one.
func NewDetector(kind DetectorKind, rrMinSec float64) (Detector, error) {
	switch kind {
	case DetectorAdaptive:
		return NewAdaptiveDetector(), nil
	case DetectorProminence:
		return NewProminenceDetector(rrMinSec), nil
	default:
		return nil, fmt.Errorf("unknown detector kind %d", int(kind))
	}
}

// safeDetect runs d and converts a panic into an error, so one failing
// detector never takes down the candidate pass.
func safeDetect(d Detector, x []float64, fs float64) (idx []int, err error) {
	defer func() {
		if r := recover(); r != nil {
			idx = nil
			err = fmt.Errorf("%s: %w: %v", d.Kind(), ErrDetectorPanic, r)
			Opsf("detector %s panicked on %d samples at %g Hz: %v", d.Kind(), len(x), fs, r)
		}
	}()
	return d.Detect(x, fs)
}
