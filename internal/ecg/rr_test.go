package ecg

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScoreRR_Bounds(t *testing.T) {
	// Intervals: 0.3 s (at the lower bound), 0.8 s, 2.0 s (at the upper
	// bound), 0.802 s. Both bounds are exclusive.
	peaks := []int{0, 150, 550, 1550, 1951}
	s := ScoreRR(peaks, 500, 0.3, 2.0)

	require.Equal(t, 2, s.ValidCount)
	assert.InDeltaSlice(t, []float64{0.8, 0.802}, s.RR, 1e-12)
	assert.InDeltaSlice(t, []float64{75, 60 / 0.802}, s.HR, 1e-9)
	assert.True(t, s.Summary.Defined)
	assert.InDelta(t, (75+60/0.802)/2, s.Summary.BPM, 1e-9)
}

func TestScoreRR_Undefined(t *testing.T) {
	testCases := []struct {
		name  string
		peaks []int
		fs    float64
	}{
		{"no peaks", nil, 500},
		{"one peak", []int{100}, 500},
		{"all intervals too short", []int{0, 10, 20}, 500},
		{"all intervals too long", []int{0, 5000}, 500},
		{"invalid rate", []int{0, 400, 800}, 0},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			s := ScoreRR(tc.peaks, tc.fs, 0.3, 2.0)
			assert.Equal(t, 0, s.ValidCount)
			assert.False(t, s.Summary.Defined)
			assert.True(t, math.IsNaN(s.Summary.BPM))
			assert.NotNil(t, s.RR)
			assert.Empty(t, s.RR)
			assert.Empty(t, s.HR)
		})
	}
}

func TestScoreRR_Median(t *testing.T) {
	// RR 0.5, 1.0, 0.6 s -> HR 120, 60, 100; median 100.
	s := ScoreRR([]int{0, 250, 750, 1050}, 500, 0.3, 2.0)
	require.Equal(t, 3, s.ValidCount)
	assert.InDelta(t, 100, s.Summary.BPM, 1e-9)
}

func TestHRSummary_JSONAndString(t *testing.T) {
	b, err := json.Marshal(struct {
		HR HRSummary `json:"hr"`
	}{UndefinedHR})
	require.NoError(t, err)
	assert.JSONEq(t, `{"hr":null}`, string(b))
	assert.Equal(t, "undefined", UndefinedHR.String())

	s := HRSummary{BPM: 75, Defined: true}
	b, err = json.Marshal(s)
	require.NoError(t, err)
	assert.Equal(t, "75", string(b))
	assert.Equal(t, "75.0 bpm", s.String())

	var back struct {
		A HRSummary `json:"a"`
		B HRSummary `json:"b"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"a":null,"b":72.5}`), &back))
	assert.False(t, back.A.Defined)
	assert.True(t, math.IsNaN(back.A.BPM))
	assert.Equal(t, HRSummary{BPM: 72.5, Defined: true}, back.B)

	assert.Error(t, json.Unmarshal([]byte(`{"a":"fast"}`), &back))
}
