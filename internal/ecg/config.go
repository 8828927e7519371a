// Package ecg locates R-peaks in ECG leads and derives heart-rate estimates.
//
// Each lead is band-pass conditioned, run through every configured detector
// in both polarities, thinned to a refractory spacing and scored by its
// number of physiologically valid RR intervals. The best candidate wins, and
// across leads the lead with the best candidate wins. Everything here is a
// pure function of (signal, sampling rate, Config); results are intended for
// exploratory review and carry no diagnostic meaning.
package ecg

import (
	"fmt"
	"strings"
)

// Defaults for Config.
const (
	DefaultMaxExpectedHR = 200.0
	DefaultRRMaxSec      = 2.0
	DefaultWorkers       = 4
)

// DefaultPreferredLeads is the clinical priority used by SelectLead.
var DefaultPreferredLeads = []string{"II", "V2", "V5"}

// Config controls candidate evaluation.
type Config struct {
	RRMinSec       float64        // refractory spacing and lower RR validity bound
	RRMaxSec       float64        // upper RR validity bound
	Detectors      []DetectorKind // evaluated in this order for each polarity
	PreferredLeads []string       // lead labels tried first, in priority order
	Workers        int            // bound on concurrent evaluations; <= 1 runs serially
}

// DefaultConfig returns the configuration used when none is supplied.
func DefaultConfig() Config {
	return Config{
		RRMinSec:       RRMinFromMaxHR(DefaultMaxExpectedHR),
		RRMaxSec:       DefaultRRMaxSec,
		Detectors:      append([]DetectorKind(nil), DefaultDetectorOrder...),
		PreferredLeads: append([]string(nil), DefaultPreferredLeads...),
		Workers:        DefaultWorkers,
	}
}

// RRMinFromMaxHR converts a maximum expected heart rate to the shortest
// accepted RR interval in seconds.
func RRMinFromMaxHR(maxHR float64) float64 {
	if !(maxHR > 0) {
		maxHR = DefaultMaxExpectedHR
	}
	return 60 / maxHR
}

// Validate reports configuration values the engine cannot work with.
func (c Config) Validate() error {
	if !(c.RRMinSec > 0) {
		return fmt.Errorf("rr_min_sec must be positive, got %g", c.RRMinSec)
	}
	if !(c.RRMaxSec > c.RRMinSec) {
		return fmt.Errorf("rr_max_sec (%g) must exceed rr_min_sec (%g)", c.RRMaxSec, c.RRMinSec)
	}
	if len(c.Detectors) == 0 {
		return fmt.Errorf("at least one detector is required")
	}
	seen := make(map[DetectorKind]bool, len(c.Detectors))
	for _, k := range c.Detectors {
		if _, err := NewDetector(k, c.RRMinSec); err != nil {
			return err
		}
		if seen[k] {
			return fmt.Errorf("detector %s listed twice", k)
		}
		seen[k] = true
	}
	return nil
}

// Fingerprint identifies the result-affecting settings for cache keys.
// Workers is excluded because it never changes the selected result.
func (c Config) Fingerprint() string {
	names := make([]string, len(c.Detectors))
	for i, k := range c.Detectors {
		names[i] = k.String()
	}
	return fmt.Sprintf("rr=%g:%g det=%s lead=%s",
		c.RRMinSec, c.RRMaxSec, strings.Join(names, ","), strings.Join(c.PreferredLeads, ","))
}
