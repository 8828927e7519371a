// Package testutil provides shared test utilities and fixtures.
//
// This package centralises common test helpers to reduce code duplication
// across test files and improve test maintainability.
package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/banshee-data/ecg.report/internal/record"
	"github.com/banshee-data/ecg.report/internal/synth"
)

// AssertStatusCode checks that the response status code matches expected.
func AssertStatusCode(t *testing.T, got, want int) {
	t.Helper()
	if got != want {
		t.Errorf("status code = %d, want %d", got, want)
	}
}

// AssertNoError fails the test if err is not nil.
func AssertNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// AssertError fails the test if err is nil.
func AssertError(t *testing.T, err error) {
	t.Helper()
	if err == nil {
		t.Fatal("expected error, got nil")
	}
}

// NewTestRequest creates a test HTTP request.
func NewTestRequest(method, path string) *http.Request {
	return httptest.NewRequest(method, path, nil)
}

// NewTestRecorder creates a test response recorder.
func NewTestRecorder() *httptest.ResponseRecorder {
	return httptest.NewRecorder()
}

// DecodeJSON unmarshals the recorder body into v.
func DecodeJSON(t *testing.T, rr *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(rr.Body.Bytes(), v); err != nil {
		t.Fatalf("decode response %q: %v", rr.Body.String(), err)
	}
}

// WriteRecord writes an .npz fixture named id.npz into dir and returns its path.
func WriteRecord(t *testing.T, dir, id string, fs float64, leads []string, cols ...[]float64) string {
	t.Helper()
	path := filepath.Join(dir, id+".npz")
	rec := &record.Record{ID: id, Samples: synth.Record(cols...), FS: fs, Leads: leads}
	if err := record.WriteNPZ(path, rec); err != nil {
		t.Fatalf("write fixture %s: %v", path, err)
	}
	return path
}

// WriteSinusRecord writes a three-lead (II, V2, V5) synthetic sinus rhythm
// at the given rate. V2 is inverted and V5 attenuated so lead selection has
// something to choose between.
func WriteSinusRecord(t *testing.T, dir, id string, fs, durSec, bpm float64) string {
	t.Helper()
	p := synth.Params{FS: fs, DurationSec: durSec, HeartRate: bpm, Gain: 1, Seed: 1}
	ii := synth.Lead(p)
	p.Gain, p.Seed = -0.8, 2
	v2 := synth.Lead(p)
	p.Gain, p.Seed = 0.5, 3
	v5 := synth.Lead(p)
	return WriteRecord(t, dir, id, fs, []string{"II", "V2", "V5"}, ii, v2, v5)
}
