package main

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"

	"github.com/banshee-data/ecg.report/internal/ecg"
	"github.com/banshee-data/ecg.report/internal/record"
)

func TestLeadGain(t *testing.T) {
	testCases := []struct {
		i    int
		want float64
	}{
		{0, 1},
		{1, 0.8},
		{2, 0.6},
		{4, 0.2},
		{9, 0.2},
	}
	for _, tc := range testCases {
		assert.InDelta(t, tc.want, leadGain(tc.i), 1e-12, "lead %d", tc.i)
	}
}

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"II", "V2"}, splitList(" II, ,V2 "))
	assert.Nil(t, splitList(""))
}

func TestSimulate_Invalid(t *testing.T) {
	testCases := []struct {
		name string
		opts simOptions
	}{
		{"zero fs", simOptions{DurationSec: 10, HeartRate: 60, Leads: []string{"II"}}},
		{"zero duration", simOptions{FS: 250, HeartRate: 60, Leads: []string{"II"}}},
		{"zero rate", simOptions{FS: 250, DurationSec: 10, Leads: []string{"II"}}},
		{"no leads", simOptions{FS: 250, DurationSec: 10, HeartRate: 60}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := simulate(tc.opts)
			assert.Error(t, err)
		})
	}
}

func TestSimulate_RoundTripAndDetect(t *testing.T) {
	rec, err := simulate(simOptions{
		ID:          "sim",
		FS:          500,
		DurationSec: 12,
		HeartRate:   72,
		Leads:       []string{"II", "V2", "V5"},
		Invert:      []string{"v2"},
		NoiseStd:    0.01,
		BaselineAmp: 0.1,
		Seed:        7,
	})
	require.NoError(t, err)
	assert.Equal(t, 6000, rec.Len())
	assert.Equal(t, 3, rec.NumLeads())

	// V2 is inverted, so its largest excursion is negative.
	v2 := rec.Lead(1)
	assert.Greater(t, -floats.Min(v2), floats.Max(v2))

	path := filepath.Join(t.TempDir(), "sim.npz")
	require.NoError(t, record.WriteNPZ(path, rec))
	got, err := record.LoadNPZ(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"II", "V2", "V5"}, got.Leads)
	assert.Equal(t, 500.0, got.FS)

	a, err := ecg.NewAnalyzer(ecg.DefaultConfig())
	require.NoError(t, err)
	res := a.SelectLead(got.Samples, got.FS, got.Leads)
	require.True(t, res.Summary.Defined)
	assert.InDelta(t, 72, res.Summary.BPM, 2)
}
