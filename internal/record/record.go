// Package record loads multi-lead ECG recordings stored as NumPy .npz
// archives and cuts them into analysis windows.
package record

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"log"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/sbinet/npyio"
	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/ecg.report/internal/ecg"
)

var (
	// ErrMissingData is returned when an archive lacks the signal or fs array.
	ErrMissingData = errors.New("missing required array")
	// ErrEmptyWindow is returned when a requested window holds no samples.
	ErrEmptyWindow = errors.New("empty window")
)

// Record is a multi-lead recording or a window into one. Samples has one
// row per sample and one column per lead. A window shares its parent's
// backing storage and Offset is the index of its first sample in the parent.
type Record struct {
	ID      string
	Path    string
	Samples *mat.Dense
	FS      float64
	Leads   []string
	Offset  int
}

// Len returns the number of samples.
func (r *Record) Len() int {
	if r.Samples == nil || r.Samples.IsEmpty() {
		return 0
	}
	n, _ := r.Samples.Dims()
	return n
}

// NumLeads returns the number of leads.
func (r *Record) NumLeads() int {
	if r.Samples == nil || r.Samples.IsEmpty() {
		return 0
	}
	_, c := r.Samples.Dims()
	return c
}

// Duration returns the length of the record in seconds.
func (r *Record) Duration() float64 {
	if !(r.FS > 0) {
		return 0
	}
	return float64(r.Len()) / r.FS
}

// Lead returns a copy of lead i.
func (r *Record) Lead(i int) []float64 {
	return mat.Col(nil, i, r.Samples)
}

// WindowID identifies this window for caching.
func (r *Record) WindowID() ecg.WindowID {
	return ecg.WindowID{Record: r.ID, Start: r.Offset, End: r.Offset + r.Len()}
}

// Window returns the samples between startS and endS seconds, rounded to
// the nearest sample (halves to even) and clamped to the record. The window is a view and
// shares storage with r.
func (r *Record) Window(startS, endS float64) (*Record, error) {
	n := r.Len()
	i0 := max(0, int(math.RoundToEven(startS*r.FS)))
	i1 := min(n, int(math.RoundToEven(endS*r.FS)))
	if i1 <= i0 {
		return nil, fmt.Errorf("%w: [%g, %g) s of %s (%d samples at %g Hz)",
			ErrEmptyWindow, startS, endS, r.ID, n, r.FS)
	}
	return r.slice(i0, i1), nil
}

// Tail returns the last seconds of the record, or the whole record when it
// is shorter.
func (r *Record) Tail(seconds float64) *Record {
	n := r.Len()
	k := int(math.Round(seconds * r.FS))
	if k <= 0 || k >= n {
		return r
	}
	return r.slice(n-k, n)
}

func (r *Record) slice(i0, i1 int) *Record {
	return &Record{
		ID:      r.ID,
		Path:    r.Path,
		Samples: r.Samples.Slice(i0, i1, 0, r.NumLeads()).(*mat.Dense),
		FS:      r.FS,
		Leads:   r.Leads,
		Offset:  r.Offset + i0,
	}
}

// ResolveLeads returns labels when it names exactly n leads, otherwise
// generic labels L1..Ln.
func ResolveLeads(labels []string, n int) []string {
	if len(labels) == n {
		out := make([]string, n)
		for i, l := range labels {
			out[i] = strings.TrimSpace(l)
		}
		return out
	}
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("L%d", i+1)
	}
	return out
}

// IDFromPath derives a record identifier from its file name.
func IDFromPath(path string) string {
	return strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
}

// LoadNPZ reads a record from a .npz archive with arrays signal (samples,
// or samples × leads), fs (scalar) and optionally leads (strings).
func LoadNPZ(path string) (*Record, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer zr.Close()

	rec, err := readNPZ(&zr.Reader, IDFromPath(path))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	rec.Path = path
	return rec, nil
}

func readNPZ(zr *zip.Reader, id string) (*Record, error) {
	arrays := make(map[string]*zip.File, len(zr.File))
	for _, f := range zr.File {
		arrays[strings.TrimSuffix(f.Name, ".npy")] = f
	}

	sigFile, ok := arrays["signal"]
	if !ok {
		return nil, fmt.Errorf("%w: signal", ErrMissingData)
	}
	fsFile, ok := arrays["fs"]
	if !ok {
		return nil, fmt.Errorf("%w: fs", ErrMissingData)
	}

	sig, err := readZipNPY(sigFile, readNPYNumeric)
	if err != nil {
		return nil, fmt.Errorf("signal: %w", err)
	}
	fsArr, err := readZipNPY(fsFile, readNPYNumeric)
	if err != nil {
		return nil, fmt.Errorf("fs: %w", err)
	}
	if len(fsArr.data) != 1 {
		return nil, fmt.Errorf("fs: expected a scalar, got shape %v", fsArr.shape)
	}

	rows, cols := 0, 0
	switch len(sig.shape) {
	case 1:
		rows, cols = sig.shape[0], 1
	case 2:
		rows, cols = sig.shape[0], sig.shape[1]
	default:
		return nil, fmt.Errorf("signal: expected 1 or 2 dimensions, got shape %v", sig.shape)
	}

	rec := &Record{ID: id, FS: fsArr.data[0]}
	if rows > 0 && cols > 0 {
		rec.Samples = mat.NewDense(rows, cols, sig.data)
	} else {
		rec.Samples = &mat.Dense{}
	}

	var labels []string
	if f, ok := arrays["leads"]; ok {
		arr, err := readZipNPY(f, readNPYStrings)
		if err != nil {
			log.Printf("%s: leads unreadable, using generic labels: %v", id, err)
		} else {
			labels = arr.strs
		}
	}
	rec.Leads = ResolveLeads(labels, cols)
	return rec, nil
}

func readZipNPY(f *zip.File, decode func(io.Reader) (*npyArray, error)) (*npyArray, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return decode(rc)
}

// WriteNPZ writes rec as a .npz archive readable by LoadNPZ and numpy.load.
func WriteNPZ(path string, rec *Record) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()

	zw := zip.NewWriter(f)
	cols := rec.NumLeads()
	var signal interface{} = []float64{}
	if rec.Len() > 0 {
		// Windows are views with a parent stride; npyio needs a packed matrix.
		signal = mat.DenseCopyOf(rec.Samples)
	}

	entries := []struct {
		name  string
		write func(io.Writer) error
	}{
		{"signal.npy", func(w io.Writer) error { return npyio.Write(w, signal) }},
		{"fs.npy", func(w io.Writer) error { return npyio.Write(w, []float64{rec.FS}) }},
		{"leads.npy", func(w io.Writer) error { return writeNPYStrings(w, ResolveLeads(rec.Leads, cols)) }},
	}
	for _, e := range entries {
		w, err := zw.Create(e.name)
		if err != nil {
			return fmt.Errorf("%s: %w", e.name, err)
		}
		if err := e.write(w); err != nil {
			return fmt.Errorf("%s: %w", e.name, err)
		}
	}
	return zw.Close()
}
