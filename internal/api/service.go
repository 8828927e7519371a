package api

import (
	"errors"
	"fmt"
	"net/url"
	"sync"

	"github.com/banshee-data/ecg.report/internal/catalog"
	"github.com/banshee-data/ecg.report/internal/config"
	"github.com/banshee-data/ecg.report/internal/ecg"
	"github.com/banshee-data/ecg.report/internal/httputil"
	"github.com/banshee-data/ecg.report/internal/record"
	"github.com/banshee-data/ecg.report/internal/report"
)

// ErrBadParams is wrapped by errors caused by request parameters.
var ErrBadParams = errors.New("bad parameters")

// Disclaimer accompanies every analysis result.
const Disclaimer = "Exploratory heart-rate estimate for review only; not a diagnosis."

// Params selects a segment and the per-request analysis overrides. Zero
// values mean "use the configured default".
type Params struct {
	Segment   string
	MaxHR     float64 // maximum expected heart rate, bpm
	Lead      string  // manual lead; empty selects automatically
	Invert    bool
	FS        float64 // forced sampling rate, Hz
	WindowSec float64 // display window, seconds
}

// ParseParams reads Params from the query of an analysis request.
func ParseParams(q url.Values) (Params, error) {
	p := Params{Segment: q.Get("segment"), Lead: q.Get("lead")}
	if p.Segment == "" {
		return p, fmt.Errorf("%w: missing 'segment' parameter", ErrBadParams)
	}
	var err error
	if p.MaxHR, err = httputil.QueryFloat(q, "max_hr", 0); err != nil {
		return p, fmt.Errorf("%w: %v", ErrBadParams, err)
	}
	if p.FS, err = httputil.QueryFloat(q, "fs", 0); err != nil {
		return p, fmt.Errorf("%w: %v", ErrBadParams, err)
	}
	if p.WindowSec, err = httputil.QueryFloat(q, "window", 0); err != nil {
		return p, fmt.Errorf("%w: %v", ErrBadParams, err)
	}
	if p.Invert, err = httputil.QueryBool(q, "invert"); err != nil {
		return p, fmt.Errorf("%w: %v", ErrBadParams, err)
	}
	return p, p.validate()
}

func (p Params) validate() error {
	if p.MaxHR < 0 {
		return fmt.Errorf("%w: max_hr must be positive, got %g", ErrBadParams, p.MaxHR)
	}
	if p.FS < 0 {
		return fmt.Errorf("%w: fs must be positive, got %g", ErrBadParams, p.FS)
	}
	if p.WindowSec != 0 && (p.WindowSec < config.MinDisplayWindowSec || p.WindowSec > config.MaxDisplayWindowSec) {
		return fmt.Errorf("%w: window must be between %g and %g seconds, got %g",
			ErrBadParams, config.MinDisplayWindowSec, config.MaxDisplayWindowSec, p.WindowSec)
	}
	return nil
}

// Values encodes p as query parameters, omitting defaults.
func (p Params) Values() url.Values {
	q := url.Values{}
	q.Set("segment", p.Segment)
	if p.MaxHR > 0 {
		q.Set("max_hr", fmt.Sprint(p.MaxHR))
	}
	if p.Lead != "" {
		q.Set("lead", p.Lead)
	}
	if p.Invert {
		q.Set("invert", "1")
	}
	if p.FS > 0 {
		q.Set("fs", fmt.Sprint(p.FS))
	}
	if p.WindowSec > 0 {
		q.Set("window", fmt.Sprint(p.WindowSec))
	}
	return q
}

// Service evaluates catalog segments. Results are memoised in an ecg.Cache,
// so repeated requests for the same window and settings are served without
// re-running the detectors.
type Service struct {
	src   catalog.Source
	cfg   *config.AnalysisConfig
	cache *ecg.Cache
	load  func(catalog.Segment) (*record.Record, error)

	mu        sync.Mutex
	analyzers map[string]*ecg.Analyzer
}

// NewService returns a Service over src. A nil cfg uses the defaults.
func NewService(src catalog.Source, cfg *config.AnalysisConfig) *Service {
	if cfg == nil {
		cfg = config.DefaultAnalysisConfig()
	}
	return &Service{
		src:       src,
		cfg:       cfg,
		cache:     ecg.NewCache(cfg.GetCacheMaxEntries()),
		load:      catalog.LoadSegment,
		analyzers: make(map[string]*ecg.Analyzer),
	}
}

// Config returns the service configuration.
func (s *Service) Config() *config.AnalysisConfig { return s.cfg }

// Segments lists the catalog.
func (s *Service) Segments() ([]catalog.Segment, error) { return s.src.Segments() }

// CacheStats reports result cache counters.
func (s *Service) CacheStats() ecg.CacheStats { return s.cache.Stats() }

// Invalidate drops cached results for a record, e.g. after its file changed.
func (s *Service) Invalidate(recordID string) int { return s.cache.Invalidate(recordID) }

// analyzer returns the shared analyzer for the effective configuration.
func (s *Service) analyzer(maxHR float64) (*ecg.Analyzer, error) {
	cfg := s.cfg
	if maxHR > 0 {
		cfg = cfg.WithMaxExpectedHR(maxHR)
	}
	engine, err := cfg.ToEngineConfig()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadParams, err)
	}
	key := engine.Fingerprint()

	s.mu.Lock()
	defer s.mu.Unlock()
	if a, ok := s.analyzers[key]; ok {
		return a, nil
	}
	a, err := ecg.NewAnalyzer(engine)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadParams, err)
	}
	s.analyzers[key] = a
	return a, nil
}

// Analysis is one evaluated display window.
type Analysis struct {
	Segment catalog.Segment
	Window  *record.Record
	Params  Params
	Result  ecg.LeadResult
	Band    ecg.RateBand
	Check   ecg.Check
}

// Analyze loads the segment, takes its display window and selects a lead.
func (s *Service) Analyze(p Params) (*Analysis, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}
	seg, err := s.src.Segment(p.Segment)
	if err != nil {
		return nil, err
	}
	rec, err := s.load(seg)
	if err != nil {
		return nil, fmt.Errorf("load segment %s: %w", seg.ID, err)
	}
	if p.FS > 0 {
		forced := *rec
		forced.FS = p.FS
		rec = &forced
	}
	windowSec := p.WindowSec
	if windowSec == 0 {
		windowSec = s.cfg.GetDisplayWindowSec()
	}
	win := rec.Tail(windowSec)

	a, err := s.analyzer(p.MaxHR)
	if err != nil {
		return nil, err
	}
	key := ecg.CacheKey{
		Window: win.WindowID(),
		FS:     win.FS,
		Config: a.Config().Fingerprint(),
		Lead:   p.Lead,
		Invert: p.Invert,
	}
	res, err := s.cache.Get(key, func() (ecg.LeadResult, error) {
		r, err := a.Evaluate(win.Samples, win.FS, win.Leads, ecg.Options{Lead: p.Lead, Invert: p.Invert})
		if err != nil {
			return r, fmt.Errorf("%w: %v", ErrBadParams, err)
		}
		return r, nil
	})
	if err != nil {
		return nil, err
	}

	return &Analysis{
		Segment: seg,
		Window:  win,
		Params:  p,
		Result:  res,
		Band:    ecg.Interpret(res.Summary),
		Check:   ecg.CrossCheck(res.Peaks, win.Len(), win.FS, res.Summary, s.cfg.GetArtifactTolerance()),
	}, nil
}

// CandidateInfo summarises one (detector, polarity) evaluation.
type CandidateInfo struct {
	Detector string        `json:"detector"`
	Polarity string        `json:"polarity"`
	Peaks    int           `json:"n_peaks"`
	ValidRR  int           `json:"valid_rr"`
	HR       ecg.HRSummary `json:"hr_bpm"`
	Error    string        `json:"error,omitempty"`
}

// AnalyzeResponse is the JSON form of an Analysis.
type AnalyzeResponse struct {
	SegmentID  string          `json:"segment_id"`
	RecordID   string          `json:"record_id"`
	FS         float64         `json:"fs"`
	StartS     float64         `json:"start_s"`
	EndS       float64         `json:"end_s"`
	Lead       string          `json:"lead"`
	LeadIndex  int             `json:"lead_index"`
	Detector   string          `json:"detector,omitempty"`
	Polarity   string          `json:"polarity,omitempty"`
	Peaks      []int           `json:"peaks"`
	PeakTimes  []float64       `json:"peak_times_s"`
	HR         []float64       `json:"hr_series_bpm"`
	Summary    ecg.HRSummary   `json:"hr_bpm"`
	ValidRR    int             `json:"valid_rr"`
	Band       ecg.RateBand    `json:"band"`
	Check      ecg.Check       `json:"check"`
	Candidates []CandidateInfo `json:"candidates"`
	Note       string          `json:"note"`
}

// Response converts a to its JSON form. Peaks are indices into the window;
// peak times are seconds from the start of the record.
func (a *Analysis) Response() AnalyzeResponse {
	w := a.Window
	r := a.Result
	resp := AnalyzeResponse{
		SegmentID:  a.Segment.ID,
		RecordID:   w.ID,
		FS:         w.FS,
		StartS:     float64(w.Offset) / w.FS,
		EndS:       float64(w.Offset+w.Len()) / w.FS,
		Lead:       r.Label,
		LeadIndex:  r.Index,
		Peaks:      r.Peaks,
		PeakTimes:  make([]float64, len(r.Peaks)),
		HR:         r.HR,
		Summary:    r.Summary,
		ValidRR:    r.ValidCount,
		Band:       a.Band,
		Check:      a.Check,
		Candidates: make([]CandidateInfo, len(r.Candidates)),
		Note:       Disclaimer,
	}
	for i, p := range r.Peaks {
		resp.PeakTimes[i] = float64(w.Offset+p) / w.FS
	}
	if c, ok := r.Selected(); ok {
		resp.Detector = c.Kind.String()
		resp.Polarity = c.Polarity.String()
	}
	for i, c := range r.Candidates {
		info := CandidateInfo{
			Detector: c.Kind.String(),
			Polarity: c.Polarity.String(),
			Peaks:    len(c.Peaks),
			ValidRR:  c.ValidCount,
			HR:       c.Summary,
		}
		if c.Err != nil {
			info.Error = c.Err.Error()
		}
		resp.Candidates[i] = info
	}
	return resp
}

// View prepares a for rendering. The signal is shown as analysed, after any
// manual inversion.
func (a *Analysis) View() report.View {
	w := a.Window
	r := a.Result
	v := report.View{
		Title:    a.Segment.ID,
		Lead:     r.Label,
		FS:       w.FS,
		StartSec: float64(w.Offset) / w.FS,
		Peaks:    r.Peaks,
		HR:       r.HR,
		Summary:  r.Summary,
		Band:     a.Band,
		Check:    a.Check,
	}
	if r.Index >= 0 && r.Index < w.NumLeads() {
		v.Signal = w.Lead(r.Index)
		if a.Params.Invert {
			for i := range v.Signal {
				v.Signal[i] = -v.Signal[i]
			}
		}
	}
	return v
}
