// Command ecg-analyze evaluates one catalog segment, or one .npz record, and
// prints the analysis as JSON. It can also write the interactive chart page
// and the paper-style plot for the same window.
package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/banshee-data/ecg.report/internal/api"
	"github.com/banshee-data/ecg.report/internal/catalog"
	"github.com/banshee-data/ecg.report/internal/config"
	"github.com/banshee-data/ecg.report/internal/ecg"
	"github.com/banshee-data/ecg.report/internal/record"
	"github.com/banshee-data/ecg.report/internal/report"
	"github.com/banshee-data/ecg.report/internal/security"
)

var (
	npzPath    = flag.String("npz", "", "Analyse this .npz record directly (no catalog)")
	dbPath     = flag.String("db", "", "Catalog database built by ecg-index")
	indexPath  = flag.String("index", "", "Catalog CSV built by ecg-index")
	segmentID  = flag.String("segment", "", "Segment ID (defaults to the first segment)")
	maxHR      = flag.Float64("max-hr", 0, "Maximum expected heart rate in bpm (0 = config default)")
	lead       = flag.String("lead", "", "Analyse this lead only (empty = automatic selection)")
	invert     = flag.Bool("invert", false, "Invert the signal before analysis")
	forcedFS   = flag.Float64("fs", 0, "Override the sampling rate in Hz")
	windowSec  = flag.Float64("window", 0, "Display window in seconds (0 = config default)")
	configPath = flag.String("config", "", "Analysis config JSON (defaults when empty)")
	htmlOut    = flag.String("html", "", "Write the interactive chart page to this file")
	pngOut     = flag.String("png", "", "Write the paper-style plot to this file")
	verbose    = flag.Bool("v", false, "Log engine decisions to stderr")
)

// openSource returns the catalog to analyse from. A record given directly
// becomes a one-segment in-memory catalog.
func openSource(npz, db, index string) (catalog.Source, func() error, error) {
	if npz == "" {
		return catalog.OpenSource(db, index)
	}
	rec, err := record.LoadNPZ(npz)
	if err != nil {
		return nil, nil, err
	}
	idx := catalog.NewIndex(catalog.Segments(rec, catalog.SegmentOptions{}))
	return idx, func() error { return nil }, nil
}

// firstSegment returns id, or the first catalog segment when id is empty.
func firstSegment(src catalog.Source, id string) (string, error) {
	if id != "" {
		return id, nil
	}
	segs, err := src.Segments()
	if err != nil {
		return "", err
	}
	if len(segs) == 0 {
		return "", errors.New("catalog is empty")
	}
	return segs[0].ID, nil
}

// run analyses one segment and writes the requested outputs.
func run(w io.Writer, src catalog.Source, cfg *config.AnalysisConfig, p api.Params, htmlPath, pngPath string) (*api.Analysis, error) {
	var err error
	if p.Segment, err = firstSegment(src, p.Segment); err != nil {
		return nil, err
	}
	svc := api.NewService(src, cfg)
	a, err := svc.Analyze(p)
	if err != nil {
		return nil, err
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(a.Response()); err != nil {
		return nil, err
	}

	if htmlPath != "" {
		if err := writeFile(htmlPath, func(f io.Writer) error { return report.EChartsPage(f, a.View()) }); err != nil {
			return nil, fmt.Errorf("chart page: %w", err)
		}
	}
	if pngPath != "" {
		if err := writeFile(pngPath, func(f io.Writer) error { return report.WritePaperPNG(f, a.View()) }); err != nil {
			return nil, fmt.Errorf("paper plot: %w", err)
		}
	}
	return a, nil
}

func writeFile(path string, render func(io.Writer) error) (err error) {
	if err := security.ValidateExportPath(path); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	return render(f)
}

func main() {
	flag.Parse()

	if *verbose {
		ecg.SetLogWriters(ecg.LogWriters{Ops: os.Stderr, Diag: os.Stderr})
	} else {
		ecg.SetLogWriters(ecg.LogWriters{Ops: os.Stderr})
	}

	cfg := config.DefaultAnalysisConfig()
	if *configPath != "" {
		var err error
		if cfg, err = config.LoadAnalysisConfig(*configPath); err != nil {
			log.Fatalf("failed to load config: %v", err)
		}
	}

	src, closeSrc, err := openSource(*npzPath, *dbPath, *indexPath)
	if err != nil {
		log.Fatalf("failed to open catalog: %v", err)
	}
	defer closeSrc()

	p := api.Params{
		Segment:   *segmentID,
		MaxHR:     *maxHR,
		Lead:      *lead,
		Invert:    *invert,
		FS:        *forcedFS,
		WindowSec: *windowSec,
	}
	a, err := run(os.Stdout, src, cfg, p, *htmlOut, *pngOut)
	if err != nil {
		log.Fatalf("analysis failed: %v", err)
	}
	log.Printf("%s: lead %s, %s (%s)", a.Segment.ID, a.Result.Label, a.Result.Summary, a.Band)
}
