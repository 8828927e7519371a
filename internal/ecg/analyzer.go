package ecg

import (
	"fmt"

	"golang.org/x/sync/errgroup"
)

// Polarity is the sign applied to a lead before conditioning. R-waves are
// negative in some leads, so every lead is searched both ways.
type Polarity int

const (
	Positive Polarity = 1
	Negative Polarity = -1
)

func (p Polarity) String() string {
	if p == Negative {
		return "-"
	}
	return "+"
}

// Candidate is one (detector, polarity) evaluation of a lead.
type Candidate struct {
	Kind     DetectorKind `json:"detector"`
	Polarity Polarity     `json:"polarity"`
	Peaks    []int        `json:"peaks"`
	RRScore
	Err error `json:"-"`
}

// Result is the outcome of candidate selection on one lead. Best indexes
// Candidates and is -1 when no candidate produced a valid RR interval, in
// which case Peaks is empty and Summary is undefined.
type Result struct {
	Candidates []Candidate
	Best       int
	Peaks      []int
	HR         []float64
	Summary    HRSummary
	ValidCount int
}

// Selected returns the winning candidate.
func (r Result) Selected() (Candidate, bool) {
	if r.Best < 0 || r.Best >= len(r.Candidates) {
		return Candidate{}, false
	}
	return r.Candidates[r.Best], true
}

// Analyzer runs candidate and lead selection for a fixed Config. It holds no
// mutable state and is safe for concurrent use.
type Analyzer struct {
	cfg       Config
	detectors []Detector

	// ranker scores leads during selection with the default RR bounds.
	// Nil means a itself.
	ranker *Analyzer

	// condition is swapped in tests to count conditioning passes.
	condition func(x []float64, fs float64) []float64
}

// NewAnalyzer validates cfg and builds its detectors.
func NewAnalyzer(cfg Config) (*Analyzer, error) {
	a, err := newAnalyzer(cfg)
	if err != nil {
		return nil, err
	}
	def := DefaultConfig()
	if cfg.RRMinSec != def.RRMinSec || cfg.RRMaxSec != def.RRMaxSec {
		rc := cfg
		rc.RRMinSec, rc.RRMaxSec = def.RRMinSec, def.RRMaxSec
		if a.ranker, err = newAnalyzer(rc); err != nil {
			return nil, fmt.Errorf("lead ranking: %w", err)
		}
	}
	return a, nil
}

func newAnalyzer(cfg Config) (*Analyzer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	a := &Analyzer{cfg: cfg, condition: Condition}
	for _, k := range cfg.Detectors {
		d, err := NewDetector(k, cfg.RRMinSec)
		if err != nil {
			return nil, err
		}
		a.detectors = append(a.detectors, d)
	}
	return a, nil
}

func (a *Analyzer) ranking() *Analyzer {
	if a.ranker == nil {
		return a
	}
	return a.ranker
}

// Config returns the analyzer configuration.
func (a *Analyzer) Config() Config { return a.cfg }

// Analyze evaluates every detector on both polarities of one lead and
// selects the candidate with the most valid RR intervals. Candidates are
// ranked in the fixed order (detectors in Config order, positive polarity
// first, then negative) and the first one seen wins ties, so the result does
// not depend on scheduling. Ranking ignores signal quality: a noisy lead
// whose spurious peaks happen to be evenly spaced can outscore a clean one.
func (a *Analyzer) Analyze(x []float64, fs float64) Result {
	return a.analyze(x, fs, a.cfg.Workers)
}

func (a *Analyzer) analyze(x []float64, fs float64, workers int) Result {
	polarities := []Polarity{Positive, Negative}
	passes := make([][]Candidate, len(polarities))

	run := func(i int) {
		passes[i] = a.polarityPass(x, fs, polarities[i])
	}
	if workers > 1 {
		var g errgroup.Group
		g.SetLimit(workers)
		for i := range polarities {
			g.Go(func() error {
				run(i)
				return nil
			})
		}
		_ = g.Wait()
	} else {
		for i := range polarities {
			run(i)
		}
	}

	var cands []Candidate
	for _, p := range passes {
		cands = append(cands, p...)
	}
	return a.selectCandidate(cands)
}

// polarityPass conditions the signed lead once and runs every detector on it.
func (a *Analyzer) polarityPass(x []float64, fs float64, pol Polarity) []Candidate {
	signed := make([]float64, len(x))
	for i, v := range x {
		signed[i] = float64(pol) * v
	}
	y := a.condition(signed, fs)

	minDist := MinDistance(a.cfg.RRMinSec, fs)
	cands := make([]Candidate, 0, len(a.detectors))
	for _, d := range a.detectors {
		c := Candidate{Kind: d.Kind(), Polarity: pol}
		raw, err := safeDetect(d, y, fs)
		if err != nil {
			Diagf("detector %s%s failed, scoring zero: %v", d.Kind(), pol, err)
			c.Err = err
			c.Peaks = []int{}
			c.RRScore = ScoreRR(nil, fs, a.cfg.RRMinSec, a.cfg.RRMaxSec)
		} else {
			c.Peaks = EnforceRefractory(raw, minDist)
			c.RRScore = ScoreRR(c.Peaks, fs, a.cfg.RRMinSec, a.cfg.RRMaxSec)
		}
		Tracef("candidate %s%s raw=%d kept=%d valid=%d hr=%s",
			d.Kind(), pol, len(raw), len(c.Peaks), c.ValidCount, c.Summary)
		cands = append(cands, c)
	}
	return cands
}

// selectCandidate picks the strictly greatest ValidCount in slice order.
func (a *Analyzer) selectCandidate(cands []Candidate) Result {
	res := Result{
		Candidates: cands,
		Best:       -1,
		Peaks:      []int{},
		HR:         []float64{},
		Summary:    UndefinedHR,
	}
	bestCount := 0
	for i, c := range cands {
		if c.ValidCount > bestCount {
			res.Best, bestCount = i, c.ValidCount
		}
	}
	if res.Best < 0 {
		return res
	}
	best := cands[res.Best]
	res.Peaks = best.Peaks
	res.HR = best.HR
	res.Summary = best.Summary
	res.ValidCount = best.ValidCount
	Diagf("selected %s%s valid=%d hr=%s", best.Kind, best.Polarity, best.ValidCount, best.Summary)
	return res
}
