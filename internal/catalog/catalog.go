// Package catalog indexes ECG records into analysis segments. A segment is a
// virtual window of a record file; building a catalog never copies samples.
package catalog

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"math"
	"path/filepath"
	"strings"

	"github.com/banshee-data/ecg.report/internal/record"
)

// ErrSegmentNotFound is returned when a segment id is not in the catalog.
var ErrSegmentNotFound = errors.New("segment not found")

// Segment is one catalog row: a time range of a record file.
type Segment struct {
	ID       string   `json:"segment_id"`
	RecordID string   `json:"record_id"`
	Path     string   `json:"npz_path"`
	FS       float64  `json:"fs"`
	NSamples int      `json:"n_samples"`
	NLeads   int      `json:"n_leads"`
	Leads    []string `json:"leads"`
	StartS   float64  `json:"start_s"`
	EndS     float64  `json:"end_s"`
}

// Duration returns the segment length in seconds.
func (s Segment) Duration() float64 { return s.EndS - s.StartS }

// SegmentOptions controls how records are split. A zero WindowSec produces
// one segment per record. StepSec defaults to WindowSec (no overlap).
type SegmentOptions struct {
	WindowSec float64
	StepSec   float64
}

// Source is a read-only view of a catalog.
type Source interface {
	Segments() ([]Segment, error)
	Segment(id string) (Segment, error)
}

// Build walks root for .npz files and returns their segments in path order.
// Files that cannot be read are logged and skipped.
func Build(root string, opts SegmentOptions) ([]Segment, error) {
	if opts.WindowSec < 0 || opts.StepSec < 0 {
		return nil, fmt.Errorf("invalid segment window %g s / step %g s", opts.WindowSec, opts.StepSec)
	}
	var segs []Segment
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.EqualFold(filepath.Ext(path), ".npz") {
			return nil
		}
		rec, err := record.LoadNPZ(path)
		if err != nil {
			log.Printf("skipping %s: %v", path, err)
			return nil
		}
		segs = append(segs, Segments(rec, opts)...)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", root, err)
	}
	return segs, nil
}

// Segments splits one record. Only complete windows are produced; a record
// shorter than one window yields none.
func Segments(rec *record.Record, opts SegmentOptions) []Segment {
	n := rec.Len()
	base := Segment{
		RecordID: rec.ID,
		Path:     rec.Path,
		FS:       rec.FS,
		NSamples: n,
		NLeads:   rec.NumLeads(),
		Leads:    rec.Leads,
	}
	if opts.WindowSec == 0 {
		s := base
		s.ID = rec.ID
		s.EndS = rec.Duration()
		return []Segment{s}
	}

	win := int(math.RoundToEven(opts.WindowSec * rec.FS))
	stepSec := opts.StepSec
	if stepSec == 0 {
		stepSec = opts.WindowSec
	}
	step := int(math.RoundToEven(stepSec * rec.FS))
	if win <= 0 || step <= 0 {
		log.Printf("skipping %s: window %d / step %d samples at %g Hz", rec.ID, win, step, rec.FS)
		return nil
	}

	var out []Segment
	for start := 0; start+win <= n; start += step {
		s := base
		s.StartS = float64(start) / rec.FS
		s.EndS = float64(start+win) / rec.FS
		s.ID = fmt.Sprintf("%s_t%d-%d", rec.ID, int(s.StartS), int(s.EndS))
		out = append(out, s)
	}
	return out
}

// LoadSegment reads the segment's record and cuts out its window.
func LoadSegment(seg Segment) (*record.Record, error) {
	rec, err := record.LoadNPZ(seg.Path)
	if err != nil {
		return nil, err
	}
	if seg.EndS <= seg.StartS {
		return rec, nil
	}
	return rec.Window(seg.StartS, seg.EndS)
}

// Index is an in-memory catalog, typically read from a CSV file.
type Index struct {
	segs []Segment
	byID map[string]int
}

// NewIndex indexes segs by id. Later duplicates are ignored.
func NewIndex(segs []Segment) *Index {
	idx := &Index{segs: segs, byID: make(map[string]int, len(segs))}
	for i, s := range segs {
		if _, dup := idx.byID[s.ID]; dup {
			log.Printf("duplicate segment id %s ignored", s.ID)
			continue
		}
		idx.byID[s.ID] = i
	}
	return idx
}

// Segments implements Source.
func (idx *Index) Segments() ([]Segment, error) {
	return idx.segs, nil
}

// Segment implements Source.
func (idx *Index) Segment(id string) (Segment, error) {
	i, ok := idx.byID[id]
	if !ok {
		return Segment{}, fmt.Errorf("%w: %s", ErrSegmentNotFound, id)
	}
	return idx.segs[i], nil
}

// OpenSource opens a catalog database when dbPath is set, otherwise a CSV
// index. The returned closer is never nil on success.
func OpenSource(dbPath, indexPath string) (Source, func() error, error) {
	switch {
	case dbPath != "":
		st, err := OpenStore(dbPath)
		if err != nil {
			return nil, nil, err
		}
		return st, st.Close, nil
	case indexPath != "":
		idx, err := LoadCSV(indexPath)
		if err != nil {
			return nil, nil, err
		}
		return idx, func() error { return nil }, nil
	default:
		return nil, nil, errors.New("a catalog database or CSV index is required")
	}
}
