package ecg

import (
	"fmt"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"
)

// LeadResult is the outcome of lead selection. Index is -1 when the signal
// has no columns.
type LeadResult struct {
	Index int
	Label string
	Result
}

// Options override automatic behaviour for a single evaluation.
type Options struct {
	Lead   string  // evaluate only this lead label; empty selects automatically
	Invert bool    // negate the signal before analysis
	FS     float64 // sampling rate override, used when > 0
}

// LeadOrder returns the column indices evaluated by SelectLead: the preferred
// labels present in leads, in preference order, or every column when none
// of them is present.
func LeadOrder(leads, preferred []string) []int {
	var order []int
	for _, p := range preferred {
		if i := leadIndex(leads, p); i >= 0 {
			order = append(order, i)
		}
	}
	if len(order) > 0 {
		return order
	}
	order = make([]int, len(leads))
	for i := range leads {
		order[i] = i
	}
	return order
}

func leadIndex(leads []string, label string) int {
	for i, l := range leads {
		if l == label {
			return i
		}
	}
	return -1
}

// SelectLead ranks the candidate leads of sig by the valid RR interval count
// of their best candidate under the default RR bounds, then analyses the
// winner with the configured bounds. Ties go to the lead evaluated first.
// leads labels the columns of sig; when its length does not match, generic
// labels are assumed.
func (a *Analyzer) SelectLead(sig *mat.Dense, fs float64, leads []string) LeadResult {
	none := LeadResult{Index: -1, Result: a.selectCandidate(nil)}
	if sig == nil || sig.IsEmpty() {
		return none
	}
	_, cols := sig.Dims()
	if cols == 0 {
		return none
	}
	if len(leads) != cols {
		leads = genericLeads(cols)
	}

	order := LeadOrder(leads, a.cfg.PreferredLeads)
	ranker := a.ranking()
	results := make([]Result, len(order))
	eval := func(i int) {
		results[i] = ranker.analyze(mat.Col(nil, order[i], sig), fs, 1)
	}
	if a.cfg.Workers > 1 && len(order) > 1 {
		var g errgroup.Group
		g.SetLimit(a.cfg.Workers)
		for i := range order {
			g.Go(func() error {
				eval(i)
				return nil
			})
		}
		_ = g.Wait()
	} else {
		for i := range order {
			eval(i)
		}
	}

	best := -1
	bestCount := -1
	for i, r := range results {
		Tracef("lead %s valid=%d hr=%s", leads[order[i]], r.ValidCount, r.Summary)
		if r.ValidCount > bestCount {
			best, bestCount = i, r.ValidCount
		}
	}
	col := order[best]
	Diagf("selected lead %s (%d of %d evaluated)", leads[col], best+1, len(order))
	res := results[best]
	if ranker != a {
		res = a.Analyze(mat.Col(nil, col, sig), fs)
	}
	return LeadResult{Index: col, Label: leads[col], Result: res}
}

// AnalyzeLead runs candidate selection on column col only.
func (a *Analyzer) AnalyzeLead(sig *mat.Dense, fs float64, leads []string, col int) (LeadResult, error) {
	if sig == nil || sig.IsEmpty() {
		return LeadResult{Index: -1, Result: a.selectCandidate(nil)}, fmt.Errorf("no signal columns")
	}
	_, cols := sig.Dims()
	if col < 0 || col >= cols {
		return LeadResult{}, fmt.Errorf("lead index %d out of range [0,%d)", col, cols)
	}
	if len(leads) != cols {
		leads = genericLeads(cols)
	}
	return LeadResult{
		Index:  col,
		Label:  leads[col],
		Result: a.Analyze(mat.Col(nil, col, sig), fs),
	}, nil
}

// Evaluate applies opts and then selects a lead, or analyses the requested
// one.
func (a *Analyzer) Evaluate(sig *mat.Dense, fs float64, leads []string, opts Options) (LeadResult, error) {
	if opts.FS > 0 {
		fs = opts.FS
	}
	if !(fs > 0) {
		return LeadResult{}, fmt.Errorf("invalid sampling rate %g", fs)
	}
	if opts.Invert && sig != nil && !sig.IsEmpty() {
		var neg mat.Dense
		neg.Scale(-1, sig)
		sig = &neg
	}
	if opts.Lead == "" {
		return a.SelectLead(sig, fs, leads), nil
	}
	col := leadIndex(leads, opts.Lead)
	if col < 0 {
		return LeadResult{}, fmt.Errorf("lead %q not in %v", opts.Lead, leads)
	}
	return a.AnalyzeLead(sig, fs, leads, col)
}

func genericLeads(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("L%d", i+1)
	}
	return out
}
