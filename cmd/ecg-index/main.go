// Command ecg-index walks a directory of .npz records and writes the segment
// catalog as CSV and, optionally, into a catalog database.
package main

import (
	"flag"
	"fmt"
	"log"

	"github.com/banshee-data/ecg.report/internal/catalog"
)

var (
	src       = flag.String("src", "data", "Directory of .npz records")
	out       = flag.String("out", "index/segments.csv", "Output CSV (empty to skip)")
	dbPath    = flag.String("db", "", "Catalog database to record the build in (optional)")
	segWindow = flag.Float64("seg-window", 0, "Segment length in seconds (0 = one segment per record)")
	segStep   = flag.Float64("seg-step", 0, "Segment step in seconds (0 = seg-window)")
)

// buildIndex builds the catalog and writes it to the requested outputs.
func buildIndex(src, out, dbPath string, opts catalog.SegmentOptions) ([]catalog.Segment, error) {
	segs, err := catalog.Build(src, opts)
	if err != nil {
		return nil, err
	}
	if out != "" {
		if err := catalog.SaveCSV(out, segs); err != nil {
			return nil, err
		}
		log.Printf("wrote %d segments to %s", len(segs), out)
	}
	if dbPath != "" {
		st, err := catalog.OpenStore(dbPath)
		if err != nil {
			return nil, err
		}
		defer st.Close()
		id, err := st.SaveBuild(src, opts, segs)
		if err != nil {
			return nil, fmt.Errorf("save build: %w", err)
		}
		log.Printf("recorded build %s (%d segments) in %s", id, len(segs), dbPath)
	}
	return segs, nil
}

func main() {
	flag.Parse()

	if *out == "" && *dbPath == "" {
		log.Fatal("nothing to write: set -out and/or -db")
	}
	opts := catalog.SegmentOptions{WindowSec: *segWindow, StepSec: *segStep}
	segs, err := buildIndex(*src, *out, *dbPath, opts)
	if err != nil {
		log.Fatalf("index failed: %v", err)
	}
	records := make(map[string]bool)
	for _, s := range segs {
		records[s.RecordID] = true
	}
	fmt.Printf("Indexed %d segments from %d records.\n", len(segs), len(records))
}
