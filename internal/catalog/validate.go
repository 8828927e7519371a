package catalog

import (
	"fmt"
	"io"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/banshee-data/ecg.report/internal/record"
)

// FileReport is the validation outcome for one .npz file.
type FileReport struct {
	Path  string
	Rows  int
	Cols  int
	FS    float64
	Leads []string
	Err   error
}

// OK reports whether the file loaded.
func (r FileReport) OK() bool { return r.Err == nil }

func (r FileReport) String() string {
	name := filepath.Base(r.Path)
	if r.Err != nil {
		return fmt.Sprintf("ERROR: %s -> %v", name, r.Err)
	}
	return fmt.Sprintf("OK: %s | shape: (%d, %d) | fs: %g | leads: %s",
		name, r.Rows, r.Cols, r.FS, strings.Join(r.Leads, ","))
}

// Validate loads every .npz file under root and reports its shape,
// sampling rate and leads, or why it failed. Files are visited in lexical
// path order.
func Validate(root string) ([]FileReport, error) {
	var reports []FileReport
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.EqualFold(filepath.Ext(path), ".npz") {
			return nil
		}
		rep := FileReport{Path: path}
		rec, err := record.LoadNPZ(path)
		switch {
		case err != nil:
			rep.Err = err
		case !(rec.FS > 0):
			rep.Err = fmt.Errorf("invalid sampling rate %g", rec.FS)
		default:
			rep.Rows, rep.Cols = rec.Len(), rec.NumLeads()
			rep.FS = rec.FS
			rep.Leads = rec.Leads
		}
		reports = append(reports, rep)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", root, err)
	}
	return reports, nil
}

// WriteReport prints one line per file and a summary, returning the number
// of failures.
func WriteReport(w io.Writer, reports []FileReport) (int, error) {
	bad := 0
	for _, r := range reports {
		if !r.OK() {
			bad++
		}
		if _, err := fmt.Fprintln(w, r); err != nil {
			return bad, err
		}
	}
	_, err := fmt.Fprintf(w, "Summary: %d OK, %d with errors.\n", len(reports)-bad, bad)
	return bad, err
}
