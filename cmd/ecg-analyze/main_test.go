package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/ecg.report/internal/api"
	"github.com/banshee-data/ecg.report/internal/catalog"
	"github.com/banshee-data/ecg.report/internal/testutil"
)

func TestOpenSource_NPZ(t *testing.T) {
	dir := t.TempDir()
	path := testutil.WriteSinusRecord(t, dir, "rec1", 250, 12, 75)

	src, closeSrc, err := openSource(path, "", "")
	require.NoError(t, err)
	defer closeSrc()

	segs, err := src.Segments()
	require.NoError(t, err)
	require.Len(t, segs, 1)
	assert.Equal(t, "rec1", segs[0].ID)
	assert.Equal(t, 12.0, segs[0].EndS)
}

func TestOpenSource_Errors(t *testing.T) {
	_, _, err := openSource(filepath.Join(t.TempDir(), "missing.npz"), "", "")
	assert.Error(t, err)

	_, _, err = openSource("", "", "")
	assert.Error(t, err)
}

func TestFirstSegment(t *testing.T) {
	idx := catalog.NewIndex([]catalog.Segment{{ID: "a"}, {ID: "b"}})

	id, err := firstSegment(idx, "")
	require.NoError(t, err)
	assert.Equal(t, "a", id)

	id, err = firstSegment(idx, "b")
	require.NoError(t, err)
	assert.Equal(t, "b", id)

	_, err = firstSegment(catalog.NewIndex(nil), "")
	assert.Error(t, err)
}

func TestRun(t *testing.T) {
	dir := t.TempDir()
	path := testutil.WriteSinusRecord(t, dir, "rec1", 250, 12, 75)
	src, closeSrc, err := openSource(path, "", "")
	require.NoError(t, err)
	defer closeSrc()

	htmlPath := filepath.Join(dir, "rec1.html")
	pngPath := filepath.Join(dir, "rec1.png")

	var buf bytes.Buffer
	a, err := run(&buf, src, nil, api.Params{}, htmlPath, pngPath)
	require.NoError(t, err)
	assert.Equal(t, "rec1", a.Segment.ID)

	var resp api.AnalyzeResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "rec1", resp.SegmentID)
	assert.Equal(t, 2.0, resp.StartS)
	assert.Equal(t, 12.0, resp.EndS)
	require.True(t, resp.Summary.Defined)
	assert.InDelta(t, 75, resp.Summary.BPM, 2)
	assert.Equal(t, api.Disclaimer, resp.Note)

	html, err := os.ReadFile(htmlPath)
	require.NoError(t, err)
	assert.Contains(t, string(html), "R-peaks")

	png, err := os.ReadFile(pngPath)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(png, []byte("\x89PNG")))
}

func TestRun_RejectsExportOutsideWorkingDirs(t *testing.T) {
	dir := t.TempDir()
	path := testutil.WriteSinusRecord(t, dir, "rec1", 250, 12, 75)
	src, closeSrc, err := openSource(path, "", "")
	require.NoError(t, err)
	defer closeSrc()

	var buf bytes.Buffer
	_, err = run(&buf, src, nil, api.Params{}, "/etc/rec1.html", "")
	assert.ErrorContains(t, err, "allowed directories")
}

func TestRun_BadParams(t *testing.T) {
	dir := t.TempDir()
	path := testutil.WriteSinusRecord(t, dir, "rec1", 250, 12, 75)
	src, closeSrc, err := openSource(path, "", "")
	require.NoError(t, err)
	defer closeSrc()

	var buf bytes.Buffer
	_, err = run(&buf, src, nil, api.Params{WindowSec: 30}, "", "")
	assert.ErrorIs(t, err, api.ErrBadParams)

	_, err = run(&buf, src, nil, api.Params{Segment: "nope"}, "", "")
	assert.ErrorIs(t, err, catalog.ErrSegmentNotFound)
	assert.Zero(t, buf.Len())
}
