// Command ecg-sweep evaluates one segment across a range of maximum expected
// heart rates and writes one CSV row per setting. It runs the analysis
// locally, or against a running server with -server so repeated sweeps share
// the server's result cache.
package main

import (
	"encoding/csv"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/banshee-data/ecg.report/internal/api"
	"github.com/banshee-data/ecg.report/internal/catalog"
	"github.com/banshee-data/ecg.report/internal/config"
	"github.com/banshee-data/ecg.report/internal/ecg"
	"github.com/banshee-data/ecg.report/internal/httputil"
	"github.com/banshee-data/ecg.report/internal/security"
)

var (
	dbPath     = flag.String("db", "", "Catalog database built by ecg-index")
	indexPath  = flag.String("index", "", "Catalog CSV built by ecg-index")
	segmentID  = flag.String("segment", "", "Segment ID to sweep (required)")
	maxHRList  = flag.String("max-hr", "120:220:20", "Comma-separated max HR values (e.g. 150,180,200) or range start:end:step")
	lead       = flag.String("lead", "", "Analyse this lead only (empty = automatic selection)")
	invert     = flag.Bool("invert", false, "Invert the signal before analysis")
	windowSec  = flag.Float64("window", 0, "Display window in seconds (0 = config default)")
	configPath = flag.String("config", "", "Analysis config JSON (local mode only)")
	serverURL  = flag.String("server", "", "Base URL of a running server (enables remote mode)")
	output     = flag.String("output", "", "Output CSV filename (defaults to sweep-<segment>-<timestamp>.csv)")
	repeat     = flag.Int("repeat", 1, "Evaluations per setting; repeats are served from the cache")
)

// analyzer is the part of api.Service and api.Client the sweep needs.
type analyzer interface {
	Analyze(p api.Params) (api.AnalyzeResponse, error)
	CacheStats() (ecg.CacheStats, error)
}

// localAnalyzer runs the analysis in process.
type localAnalyzer struct {
	svc *api.Service
}

func (l localAnalyzer) Analyze(p api.Params) (api.AnalyzeResponse, error) {
	a, err := l.svc.Analyze(p)
	if err != nil {
		return api.AnalyzeResponse{}, err
	}
	return a.Response(), nil
}

func (l localAnalyzer) CacheStats() (ecg.CacheStats, error) {
	return l.svc.CacheStats(), nil
}

// parseCSVFloatSlice parses a comma-separated list of floats
func parseCSVFloatSlice(s string) ([]float64, error) {
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	out := make([]float64, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		v, err := strconv.ParseFloat(p, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid float '%s': %w", p, err)
		}
		out = append(out, v)
	}
	return out, nil
}

func generateRange(start, end, step float64) []float64 {
	if step <= 0 {
		step = 10
	}
	var result []float64
	for v := start; v <= end+1e-9; v += step {
		result = append(result, v)
	}
	return result
}

// parseParamList parses a comma-separated list or a start:end:step range.
// Every value must be a positive heart rate.
func parseParamList(s string) ([]float64, error) {
	var vals []float64
	if parts := strings.Split(s, ":"); len(parts) == 3 {
		r, err := parseCSVFloatSlice(strings.Join(parts, ","))
		if err != nil {
			return nil, err
		}
		if r[0] > r[1] {
			return nil, fmt.Errorf("range start %g exceeds end %g", r[0], r[1])
		}
		vals = generateRange(r[0], r[1], r[2])
	} else {
		var err error
		if vals, err = parseCSVFloatSlice(s); err != nil {
			return nil, err
		}
	}
	if len(vals) == 0 {
		return nil, fmt.Errorf("no values in %q", s)
	}
	for _, v := range vals {
		if !(v > 0) {
			return nil, fmt.Errorf("max HR must be positive, got %g", v)
		}
	}
	return vals, nil
}

func writeHeaders(w *csv.Writer) {
	w.Write([]string{
		"max_hr_bpm", "rr_min_s", "lead", "detector", "polarity",
		"valid_rr", "hr_bpm", "band", "possible_artifact",
	})
}

func writeRow(w *csv.Writer, maxHR float64, r api.AnalyzeResponse) {
	hr := ""
	if r.Summary.Defined {
		hr = fmt.Sprintf("%.2f", r.Summary.BPM)
	}
	w.Write([]string{
		fmt.Sprintf("%g", maxHR),
		fmt.Sprintf("%.4f", ecg.RRMinFromMaxHR(maxHR)),
		r.Lead,
		r.Detector,
		r.Polarity,
		strconv.Itoa(r.ValidRR),
		hr,
		string(r.Band),
		strconv.FormatBool(r.Check.Artifact),
	})
}

// sweep evaluates base at every max HR and writes one row per setting.
func sweep(an analyzer, base api.Params, maxHRs []float64, repeat int, out io.Writer) error {
	w := csv.NewWriter(out)
	writeHeaders(w)
	for _, hr := range maxHRs {
		p := base
		p.MaxHR = hr
		var resp api.AnalyzeResponse
		for i := 0; i < max(repeat, 1); i++ {
			var err error
			if resp, err = an.Analyze(p); err != nil {
				return fmt.Errorf("max_hr %g: %w", hr, err)
			}
		}
		writeRow(w, hr, resp)
		log.Printf("max_hr=%g lead=%s valid=%d hr=%s", hr, resp.Lead, resp.ValidRR, resp.Summary)
	}
	w.Flush()
	return w.Error()
}

func newAnalyzer(server, db, index, cfgPath string) (analyzer, func() error, error) {
	if server != "" {
		return api.NewClient(server, httputil.NewStandardClient(&http.Client{Timeout: 30 * time.Second})), func() error { return nil }, nil
	}
	cfg := config.DefaultAnalysisConfig()
	if cfgPath != "" {
		var err error
		if cfg, err = config.LoadAnalysisConfig(cfgPath); err != nil {
			return nil, nil, err
		}
	}
	src, closeSrc, err := catalog.OpenSource(db, index)
	if err != nil {
		return nil, nil, err
	}
	return localAnalyzer{svc: api.NewService(src, cfg)}, closeSrc, nil
}

func main() {
	flag.Parse()

	if *segmentID == "" {
		log.Fatal("-segment is required")
	}
	maxHRs, err := parseParamList(*maxHRList)
	if err != nil {
		log.Fatalf("Invalid parameter list: %v", err)
	}

	an, closeSrc, err := newAnalyzer(*serverURL, *dbPath, *indexPath, *configPath)
	if err != nil {
		log.Fatalf("Failed to set up analysis: %v", err)
	}
	defer closeSrc()

	filename := *output
	if filename == "" {
		filename = fmt.Sprintf("sweep-%s-%s.csv",
			security.SanitizeFilename(*segmentID), time.Now().Format("20060102-150405"))
	}
	f, err := os.Create(filename)
	if err != nil {
		log.Fatalf("Failed to create output file: %v", err)
	}
	defer f.Close()

	base := api.Params{Segment: *segmentID, Lead: *lead, Invert: *invert, WindowSec: *windowSec}
	if err := sweep(an, base, maxHRs, *repeat, f); err != nil {
		log.Fatalf("Sweep failed: %v", err)
	}

	if st, err := an.CacheStats(); err != nil {
		log.Printf("cache stats unavailable: %v", err)
	} else {
		log.Printf("cache: %d entries, %d hits, %d misses, %d evictions", st.Entries, st.Hits, st.Misses, st.Evictions)
	}
	log.Printf("Sweep complete. Results written to %s", filename)
}
