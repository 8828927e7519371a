package api

import (
	"bytes"
	"image/png"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/ecg.report/internal/catalog"
	"github.com/banshee-data/ecg.report/internal/config"
	"github.com/banshee-data/ecg.report/internal/ecg"
	"github.com/banshee-data/ecg.report/internal/testutil"
	"github.com/banshee-data/ecg.report/internal/version"
)

func setupTestServer(t *testing.T) (*Server, *http.ServeMux) {
	t.Helper()
	srv := NewServer(NewService(fixtureStore, config.DefaultAnalysisConfig()))
	return srv, srv.ServeMux()
}

func serve(mux http.Handler, method, target string) *httptest.ResponseRecorder {
	rr := testutil.NewTestRecorder()
	mux.ServeHTTP(rr, testutil.NewTestRequest(method, target))
	return rr
}

// ----------------------------------------------------------------------------
// /api/segments
// ----------------------------------------------------------------------------

func TestListSegments(t *testing.T) {
	_, mux := setupTestServer(t)

	rr := serve(mux, http.MethodGet, "/api/segments")
	testutil.AssertStatusCode(t, rr.Code, http.StatusOK)

	var segs []catalog.Segment
	testutil.DecodeJSON(t, rr, &segs)
	ids := make([]string, len(segs))
	for i, s := range segs {
		ids[i] = s.ID
	}
	assert.Equal(t, []string{"flat_t0-10", "sinus72_t0-10", "sinus72_t10-20"}, ids)
}

func TestListSegments_FilterByRecord(t *testing.T) {
	_, mux := setupTestServer(t)

	rr := serve(mux, http.MethodGet, "/api/segments?record=sinus72")
	testutil.AssertStatusCode(t, rr.Code, http.StatusOK)
	var segs []catalog.Segment
	testutil.DecodeJSON(t, rr, &segs)
	assert.Len(t, segs, 2)

	rr = serve(mux, http.MethodGet, "/api/segments?record=nope")
	testutil.AssertStatusCode(t, rr.Code, http.StatusOK)
	assert.Equal(t, "[]\n", rr.Body.String())
}

// ----------------------------------------------------------------------------
// /api/analyze
// ----------------------------------------------------------------------------

func TestAnalyze(t *testing.T) {
	_, mux := setupTestServer(t)

	rr := serve(mux, http.MethodGet, "/api/analyze?segment=sinus72_t10-20")
	testutil.AssertStatusCode(t, rr.Code, http.StatusOK)

	var resp AnalyzeResponse
	testutil.DecodeJSON(t, rr, &resp)
	assert.Equal(t, "sinus72_t10-20", resp.SegmentID)
	assert.Equal(t, "sinus72", resp.RecordID)
	assert.Equal(t, "II", resp.Lead)
	assert.Equal(t, 0, resp.LeadIndex)
	assert.Equal(t, 10.0, resp.StartS)
	assert.Equal(t, 20.0, resp.EndS)
	require.True(t, resp.Summary.Defined)
	assert.InDelta(t, 72, resp.Summary.BPM, 2)
	assert.Equal(t, ecg.BandResting, resp.Band)
	assert.False(t, resp.Check.Artifact)
	assert.Len(t, resp.Candidates, 4)
	assert.Equal(t, Disclaimer, resp.Note)

	require.Len(t, resp.PeakTimes, len(resp.Peaks))
	for i, p := range resp.Peaks {
		assert.InDelta(t, 10+float64(p)/500, resp.PeakTimes[i], 1e-9)
	}
}

func TestAnalyze_DisplayWindow(t *testing.T) {
	_, mux := setupTestServer(t)

	rr := serve(mux, http.MethodGet, "/api/analyze?segment=sinus72_t10-20&window=8")
	testutil.AssertStatusCode(t, rr.Code, http.StatusOK)

	var resp AnalyzeResponse
	testutil.DecodeJSON(t, rr, &resp)
	assert.Equal(t, 12.0, resp.StartS)
	assert.Equal(t, 20.0, resp.EndS)
}

func TestAnalyze_Overrides(t *testing.T) {
	_, mux := setupTestServer(t)

	testCases := []struct {
		name  string
		query string
		check func(t *testing.T, resp AnalyzeResponse)
	}{
		{
			name:  "manual inverted lead",
			query: "segment=sinus72_t0-10&lead=V2",
			check: func(t *testing.T, resp AnalyzeResponse) {
				assert.Equal(t, "V2", resp.Lead)
				assert.Equal(t, 1, resp.LeadIndex)
				assert.InDelta(t, 72, resp.Summary.BPM, 2)
			},
		},
		{
			name:  "manual inversion",
			query: "segment=sinus72_t0-10&lead=II&invert=1",
			check: func(t *testing.T, resp AnalyzeResponse) {
				assert.InDelta(t, 72, resp.Summary.BPM, 2)
			},
		},
		{
			name:  "forced sampling rate",
			query: "segment=sinus72_t0-10&fs=250&window=12",
			check: func(t *testing.T, resp AnalyzeResponse) {
				// The window is cut at the forced rate: 12 s is 3000 samples.
				assert.Equal(t, 250.0, resp.FS)
				assert.Equal(t, 8.0, resp.StartS)
				assert.Equal(t, 20.0, resp.EndS)
			},
		},
		{
			name:  "undeterminable window",
			query: "segment=flat_t0-10",
			check: func(t *testing.T, resp AnalyzeResponse) {
				assert.False(t, resp.Summary.Defined)
				assert.Equal(t, ecg.BandUndetermined, resp.Band)
				assert.Empty(t, resp.Peaks)
				assert.Empty(t, resp.Detector)
			},
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			rr := serve(mux, http.MethodGet, "/api/analyze?"+tc.query)
			testutil.AssertStatusCode(t, rr.Code, http.StatusOK)
			var resp AnalyzeResponse
			testutil.DecodeJSON(t, rr, &resp)
			tc.check(t, resp)
		})
	}
}

func TestAnalyze_Errors(t *testing.T) {
	_, mux := setupTestServer(t)

	testCases := []struct {
		name   string
		method string
		target string
		want   int
	}{
		{"missing segment", http.MethodGet, "/api/analyze", http.StatusBadRequest},
		{"unknown segment", http.MethodGet, "/api/analyze?segment=nope", http.StatusNotFound},
		{"bad max_hr", http.MethodGet, "/api/analyze?segment=flat_t0-10&max_hr=fast", http.StatusBadRequest},
		{"negative max_hr", http.MethodGet, "/api/analyze?segment=flat_t0-10&max_hr=-5", http.StatusBadRequest},
		{"max_hr below rr_max", http.MethodGet, "/api/analyze?segment=flat_t0-10&max_hr=20", http.StatusBadRequest},
		{"window too short", http.MethodGet, "/api/analyze?segment=flat_t0-10&window=5", http.StatusBadRequest},
		{"bad invert", http.MethodGet, "/api/analyze?segment=flat_t0-10&invert=maybe", http.StatusBadRequest},
		{"unknown lead", http.MethodGet, "/api/analyze?segment=flat_t0-10&lead=aVF", http.StatusBadRequest},
		{"wrong method", http.MethodPost, "/api/analyze?segment=flat_t0-10", http.StatusMethodNotAllowed},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			rr := serve(mux, tc.method, tc.target)
			testutil.AssertStatusCode(t, rr.Code, tc.want)
			var body map[string]string
			testutil.DecodeJSON(t, rr, &body)
			assert.NotEmpty(t, body["error"])
		})
	}
}

// ----------------------------------------------------------------------------
// Rendered views
// ----------------------------------------------------------------------------

func TestSegmentChart(t *testing.T) {
	_, mux := setupTestServer(t)

	rr := serve(mux, http.MethodGet, "/charts/segment?segment=sinus72_t0-10")
	testutil.AssertStatusCode(t, rr.Code, http.StatusOK)
	assert.True(t, strings.HasPrefix(rr.Header().Get("Content-Type"), "text/html"))
	assert.Contains(t, rr.Body.String(), "sinus72_t0-10")
	assert.Contains(t, rr.Body.String(), "R-peaks")

	rr = serve(mux, http.MethodGet, "/charts/segment?segment=nope")
	testutil.AssertStatusCode(t, rr.Code, http.StatusNotFound)
}

func TestSegmentPlot(t *testing.T) {
	_, mux := setupTestServer(t)

	rr := serve(mux, http.MethodGet, "/plots/segment.png?segment=sinus72_t0-10&window=8")
	testutil.AssertStatusCode(t, rr.Code, http.StatusOK)
	assert.Equal(t, "image/png", rr.Header().Get("Content-Type"))
	assert.Equal(t, `inline; filename="sinus72_t0-10.png"`, rr.Header().Get("Content-Disposition"))
	_, err := png.Decode(bytes.NewReader(rr.Body.Bytes()))
	require.NoError(t, err)
}

// ----------------------------------------------------------------------------
// /api/cache and /api/config
// ----------------------------------------------------------------------------

func TestCacheReuse(t *testing.T) {
	_, mux := setupTestServer(t)

	for range 2 {
		rr := serve(mux, http.MethodGet, "/api/analyze?segment=sinus72_t0-10")
		testutil.AssertStatusCode(t, rr.Code, http.StatusOK)
	}
	// A different maximum heart rate is a different configuration.
	rr := serve(mux, http.MethodGet, "/api/analyze?segment=sinus72_t0-10&max_hr=150")
	testutil.AssertStatusCode(t, rr.Code, http.StatusOK)

	rr = serve(mux, http.MethodGet, "/api/cache")
	testutil.AssertStatusCode(t, rr.Code, http.StatusOK)
	var st ecg.CacheStats
	testutil.DecodeJSON(t, rr, &st)
	assert.Equal(t, ecg.CacheStats{Entries: 2, Hits: 1, Misses: 2}, st)

	rr = serve(mux, http.MethodDelete, "/api/cache?record=sinus72")
	testutil.AssertStatusCode(t, rr.Code, http.StatusOK)
	var del struct {
		Record  string `json:"record"`
		Removed int    `json:"removed"`
	}
	testutil.DecodeJSON(t, rr, &del)
	assert.Equal(t, 2, del.Removed)

	rr = serve(mux, http.MethodDelete, "/api/cache")
	testutil.AssertStatusCode(t, rr.Code, http.StatusBadRequest)
	rr = serve(mux, http.MethodPut, "/api/cache")
	testutil.AssertStatusCode(t, rr.Code, http.StatusMethodNotAllowed)
}

func TestShowVersion(t *testing.T) {
	_, mux := setupTestServer(t)

	rr := serve(mux, http.MethodGet, "/api/version")
	testutil.AssertStatusCode(t, rr.Code, http.StatusOK)
	var info version.Info
	testutil.DecodeJSON(t, rr, &info)
	assert.Equal(t, version.Get(), info)

	rr = serve(mux, http.MethodPost, "/api/version")
	testutil.AssertStatusCode(t, rr.Code, http.StatusMethodNotAllowed)
}

func TestShowConfig(t *testing.T) {
	_, mux := setupTestServer(t)

	rr := serve(mux, http.MethodGet, "/api/config")
	testutil.AssertStatusCode(t, rr.Code, http.StatusOK)
	var cfg config.AnalysisConfig
	testutil.DecodeJSON(t, rr, &cfg)
	assert.Equal(t, 200.0, cfg.GetMaxExpectedHRBPM())
	assert.Equal(t, 10.0, cfg.GetDisplayWindowSec())
	require.NotNil(t, cfg.CacheMaxEntries)
}

// ----------------------------------------------------------------------------
// Middleware
// ----------------------------------------------------------------------------

func TestLoggingMiddleware(t *testing.T) {
	h := LoggingMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	rr := serve(h, http.MethodGet, "/anything")
	testutil.AssertStatusCode(t, rr.Code, http.StatusTeapot)
}

func TestStatusCodeColor(t *testing.T) {
	testCases := []struct {
		code int
		want string
	}{
		{200, colorBoldGreen},
		{304, colorYellow},
		{404, colorBoldRed},
		{500, colorBoldRed},
		{100, "100"},
	}
	for _, tc := range testCases {
		got := statusCodeColor(tc.code)
		assert.True(t, strings.HasPrefix(got, tc.want), "code %d: %q", tc.code, got)
	}
}
