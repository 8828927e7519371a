// Package report renders analysed ECG windows for review: static ECG-paper
// PNGs with gonum/plot and interactive HTML pages with go-echarts.
package report

import (
	"fmt"

	"github.com/banshee-data/ecg.report/internal/ecg"
)

// View is one analysed window ready for rendering.
type View struct {
	Title    string
	Lead     string
	FS       float64
	StartSec float64 // time of Signal[0] within the record
	Signal   []float64
	Peaks    []int // indices into Signal
	HR       []float64
	Summary  ecg.HRSummary
	Band     ecg.RateBand
	Check    ecg.Check
}

// Times returns the time axis of the window in seconds.
func (v View) Times() []float64 {
	t := make([]float64, len(v.Signal))
	if !(v.FS > 0) {
		return t
	}
	for i := range t {
		t[i] = v.StartSec + float64(i)/v.FS
	}
	return t
}

// Subtitle is the one-line heart-rate caption shared by both renderers.
func (v View) Subtitle() string {
	s := fmt.Sprintf("lead %s | HR %s | %s", v.Lead, v.Summary, v.Band)
	if v.Check.Artifact {
		s += " | possible artifact"
	}
	return s
}
