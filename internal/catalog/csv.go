package catalog

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

var csvHeader = []string{
	"segment_id", "record_id", "npz_path", "fs", "n_samples", "n_leads", "leads", "start_s", "end_s",
}

// WriteCSV writes segs with a header row. Lead labels are joined with commas.
func WriteCSV(w io.Writer, segs []Segment) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, s := range segs {
		row := []string{
			s.ID,
			s.RecordID,
			s.Path,
			strconv.FormatFloat(s.FS, 'g', -1, 64),
			strconv.Itoa(s.NSamples),
			strconv.Itoa(s.NLeads),
			strings.Join(s.Leads, ","),
			strconv.FormatFloat(s.StartS, 'f', -1, 64),
			strconv.FormatFloat(s.EndS, 'f', -1, 64),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadCSV parses an index. Columns are matched by name. Indexes without
// segment_id use the record id, and indexes without start_s/end_s describe
// whole records.
func ReadCSV(r io.Reader) ([]Segment, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("empty index")
		}
		return nil, err
	}
	col := make(map[string]int, len(header))
	for i, h := range header {
		col[strings.TrimSpace(h)] = i
	}
	for _, req := range []string{"record_id", "npz_path", "fs", "n_samples"} {
		if _, ok := col[req]; !ok {
			return nil, fmt.Errorf("index missing column %q", req)
		}
	}

	var segs []Segment
	line := 1
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		line++
		get := func(name string) string {
			if i, ok := col[name]; ok && i < len(row) {
				return strings.TrimSpace(row[i])
			}
			return ""
		}

		s := Segment{ID: get("segment_id"), RecordID: get("record_id"), Path: get("npz_path")}
		if s.FS, err = strconv.ParseFloat(get("fs"), 64); err != nil {
			return nil, fmt.Errorf("line %d: fs: %w", line, err)
		}
		if s.NSamples, err = strconv.Atoi(get("n_samples")); err != nil {
			return nil, fmt.Errorf("line %d: n_samples: %w", line, err)
		}
		if v := get("n_leads"); v != "" {
			if s.NLeads, err = strconv.Atoi(v); err != nil {
				return nil, fmt.Errorf("line %d: n_leads: %w", line, err)
			}
		}
		if v := get("leads"); v != "" {
			s.Leads = strings.Split(v, ",")
		}
		if s.ID == "" {
			s.ID = s.RecordID
		}
		if v := get("start_s"); v != "" {
			if s.StartS, err = strconv.ParseFloat(v, 64); err != nil {
				return nil, fmt.Errorf("line %d: start_s: %w", line, err)
			}
		}
		if v := get("end_s"); v != "" {
			if s.EndS, err = strconv.ParseFloat(v, 64); err != nil {
				return nil, fmt.Errorf("line %d: end_s: %w", line, err)
			}
		} else if s.FS > 0 {
			s.EndS = float64(s.NSamples) / s.FS
		}
		segs = append(segs, s)
	}
	return segs, nil
}

// SaveCSV writes segs to path, creating parent directories.
func SaveCSV(path string, segs []Segment) (err error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
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
	return WriteCSV(f, segs)
}

// LoadCSV reads an index file into an Index.
func LoadCSV(path string) (*Index, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	segs, err := ReadCSV(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return NewIndex(segs), nil
}
