// Package api serves catalog segments and their heart-rate analysis over
// HTTP: JSON for clients, go-echarts pages and ECG-paper PNGs for review.
package api

import (
	"bytes"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/banshee-data/ecg.report/internal/catalog"
	"github.com/banshee-data/ecg.report/internal/httputil"
	"github.com/banshee-data/ecg.report/internal/report"
	"github.com/banshee-data/ecg.report/internal/security"
	"github.com/banshee-data/ecg.report/internal/version"
)

// ANSI escape codes for cyan and reset
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

type Server struct {
	svc *Service
}

func NewServer(svc *Service) *Server {
	return &Server{svc: svc}
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, query, status, and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		log.Printf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/segments", s.listSegments)
	mux.HandleFunc("/api/analyze", s.analyze)
	mux.HandleFunc("/api/cache", s.cache)
	mux.HandleFunc("/api/config", s.showConfig)
	mux.HandleFunc("/api/version", s.showVersion)
	mux.HandleFunc("/charts/segment", s.segmentChart)
	mux.HandleFunc("/plots/segment.png", s.segmentPlot)
	return mux
}

// writeAnalysisError maps service errors to status codes.
func (s *Server) writeAnalysisError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrBadParams):
		httputil.BadRequest(w, err.Error())
	case errors.Is(err, catalog.ErrSegmentNotFound):
		httputil.NotFound(w, err.Error())
	default:
		httputil.InternalServerError(w, err.Error())
	}
}

func (s *Server) listSegments(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	segs, err := s.svc.Segments()
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("Failed to list segments: %v", err))
		return
	}
	if rec := r.URL.Query().Get("record"); rec != "" {
		filtered := segs[:0:0]
		for _, seg := range segs {
			if seg.RecordID == rec {
				filtered = append(filtered, seg)
			}
		}
		segs = filtered
	}
	if segs == nil {
		segs = []catalog.Segment{}
	}
	httputil.WriteJSONOK(w, segs)
}

// runAnalysis handles the shared GET and parameter steps of the analysis
// endpoints. It writes the error response itself and returns nil on failure.
func (s *Server) runAnalysis(w http.ResponseWriter, r *http.Request) *Analysis {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return nil
	}
	p, err := ParseParams(r.URL.Query())
	if err != nil {
		s.writeAnalysisError(w, err)
		return nil
	}
	a, err := s.svc.Analyze(p)
	if err != nil {
		s.writeAnalysisError(w, err)
		return nil
	}
	return a
}

func (s *Server) analyze(w http.ResponseWriter, r *http.Request) {
	if a := s.runAnalysis(w, r); a != nil {
		httputil.WriteJSONOK(w, a.Response())
	}
}

func (s *Server) segmentChart(w http.ResponseWriter, r *http.Request) {
	a := s.runAnalysis(w, r)
	if a == nil {
		return
	}
	var buf bytes.Buffer
	if err := report.EChartsPage(&buf, a.View()); err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	httputil.WriteContent(w, "text/html; charset=utf-8", buf.Bytes())
}

func (s *Server) segmentPlot(w http.ResponseWriter, r *http.Request) {
	a := s.runAnalysis(w, r)
	if a == nil {
		return
	}
	var buf bytes.Buffer
	if err := report.WritePaperPNG(&buf, a.View()); err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	w.Header().Set("Content-Disposition",
		fmt.Sprintf("inline; filename=%q", security.SanitizeFilename(a.Segment.ID)+".png"))
	httputil.WriteContent(w, "image/png", buf.Bytes())
}

// cache reports result cache counters; DELETE ?record= drops a record's entries.
func (s *Server) cache(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		httputil.WriteJSONOK(w, s.svc.CacheStats())
	case http.MethodDelete:
		rec := r.URL.Query().Get("record")
		if rec == "" {
			httputil.BadRequest(w, "missing 'record' parameter")
			return
		}
		httputil.WriteJSONOK(w, map[string]interface{}{
			"record":  rec,
			"removed": s.svc.Invalidate(rec),
		})
	default:
		httputil.MethodNotAllowed(w)
	}
}

func (s *Server) showConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	httputil.WriteJSONOK(w, s.svc.Config().Resolved())
}

func (s *Server) showVersion(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	httputil.WriteJSONOK(w, version.Get())
}
