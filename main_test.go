package main

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/ecg.report/internal/api"
	"github.com/banshee-data/ecg.report/internal/catalog"
	"github.com/banshee-data/ecg.report/internal/testutil"
)

func TestLoadConfig(t *testing.T) {
	cfg, err := loadConfig("")
	require.NoError(t, err)
	assert.Equal(t, 200.0, cfg.GetMaxExpectedHRBPM())

	cfg, err = loadConfig(filepath.Join("config", "analysis.defaults.json"))
	require.NoError(t, err)
	assert.Equal(t, 256, cfg.GetCacheMaxEntries())

	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"display_window_sec": 30}`), 0o644))
	_, err = loadConfig(path)
	assert.Error(t, err)
}

func TestNewHandler(t *testing.T) {
	idx := catalog.NewIndex(nil)
	h := newHandler(api.NewService(idx, nil), false)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	testutil.AssertStatusCode(t, rr.Code, http.StatusOK)
	assert.Contains(t, rr.Body.String(), "ECG segments")

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/segments", nil))
	testutil.AssertStatusCode(t, rr.Code, http.StatusOK)
	assert.Equal(t, "[]\n", rr.Body.String())
}
