package ecg

import (
	"encoding/json"
	"fmt"
	"math"
)

// HRSummary is the median instantaneous heart rate of a window. Defined is
// false when no RR interval was valid; BPM is then NaN.
type HRSummary struct {
	BPM     float64
	Defined bool
}

// UndefinedHR is the summary for windows whose heart rate cannot be determined.
var UndefinedHR = HRSummary{BPM: math.NaN()}

func (s HRSummary) String() string {
	if !s.Defined {
		return "undefined"
	}
	return fmt.Sprintf("%.1f bpm", s.BPM)
}

// MarshalJSON encodes an undefined summary as null.
func (s HRSummary) MarshalJSON() ([]byte, error) {
	if !s.Defined {
		return []byte("null"), nil
	}
	return json.Marshal(s.BPM)
}

// UnmarshalJSON accepts the encoding produced by MarshalJSON.
func (s *HRSummary) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*s = UndefinedHR
		return nil
	}
	var bpm float64
	if err := json.Unmarshal(b, &bpm); err != nil {
		return fmt.Errorf("heart rate: %w", err)
	}
	*s = HRSummary{BPM: bpm, Defined: true}
	return nil
}

// RRScore is the outcome of scoring one peak set.
type RRScore struct {
	RR         []float64 // valid RR intervals, seconds
	HR         []float64 // 60/RR for each valid interval, bpm
	Summary    HRSummary
	ValidCount int
}

// ScoreRR converts peak indices into RR intervals, keeps those strictly
// inside (rrMin, rrMax) seconds and summarises them as the median of 60/RR.
// ValidCount is the number of surviving intervals and is the only quantity
// used to rank candidates.
func ScoreRR(peaks []int, fs, rrMin, rrMax float64) RRScore {
	score := RRScore{RR: []float64{}, HR: []float64{}, Summary: UndefinedHR}
	if len(peaks) < 2 || !(fs > 0) {
		return score
	}
	for i := 1; i < len(peaks); i++ {
		rr := float64(peaks[i]-peaks[i-1]) / fs
		if rr > rrMin && rr < rrMax {
			score.RR = append(score.RR, rr)
			score.HR = append(score.HR, 60/rr)
		}
	}
	score.ValidCount = len(score.RR)
	if score.ValidCount > 0 {
		score.Summary = HRSummary{BPM: Median(score.HR), Defined: true}
	}
	return score
}
