package ecg

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKey(record string, start int) CacheKey {
	return CacheKey{
		Window: WindowID{Record: record, Start: start, End: start + 5000},
		FS:     500,
		Config: DefaultConfig().Fingerprint(),
	}
}

func TestCache_HitAndMiss(t *testing.T) {
	c := NewCache(0)
	calls := 0
	compute := func() (LeadResult, error) {
		calls++
		return LeadResult{Index: 1, Label: "II"}, nil
	}

	r, err := c.Get(testKey("rec", 0), compute)
	require.NoError(t, err)
	assert.Equal(t, "II", r.Label)

	r, err = c.Get(testKey("rec", 0), compute)
	require.NoError(t, err)
	assert.Equal(t, "II", r.Label)
	assert.Equal(t, 1, calls)

	_, err = c.Get(testKey("rec", 5000), compute)
	require.NoError(t, err)
	assert.Equal(t, 2, calls)

	assert.Equal(t, CacheStats{Entries: 2, Hits: 1, Misses: 2}, c.Stats())
}

func TestCache_KeyIncludesParameters(t *testing.T) {
	base := testKey("rec", 0)
	inverted := base
	inverted.Invert = true
	manual := base
	manual.Lead = "V2"
	other := base
	cfg := DefaultConfig()
	cfg.RRMinSec = 0.4
	other.Config = cfg.Fingerprint()

	c := NewCache(0)
	for _, k := range []CacheKey{base, inverted, manual, other} {
		_, err := c.Get(k, func() (LeadResult, error) { return LeadResult{}, nil })
		require.NoError(t, err)
	}
	assert.Equal(t, 4, c.Stats().Entries)
	assert.Equal(t, int64(0), c.Stats().Hits)
}

func TestCache_ErrorsAreNotCached(t *testing.T) {
	c := NewCache(0)
	boom := errors.New("load failed")
	_, err := c.Get(testKey("rec", 0), func() (LeadResult, error) { return LeadResult{}, boom })
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, c.Stats().Entries)

	r, err := c.Get(testKey("rec", 0), func() (LeadResult, error) { return LeadResult{Index: 2}, nil })
	require.NoError(t, err)
	assert.Equal(t, 2, r.Index)
}

func TestCache_EvictsOldestFirst(t *testing.T) {
	c := NewCache(2)
	for i := 0; i < 3; i++ {
		_, err := c.Get(testKey("rec", i), func() (LeadResult, error) { return LeadResult{Index: i}, nil })
		require.NoError(t, err)
	}
	s := c.Stats()
	assert.Equal(t, 2, s.Entries)
	assert.Equal(t, int64(1), s.Evictions)

	calls := 0
	_, err := c.Get(testKey("rec", 0), func() (LeadResult, error) { calls++; return LeadResult{}, nil })
	require.NoError(t, err)
	assert.Equal(t, 1, calls, "oldest entry should have been evicted")

	_, err = c.Get(testKey("rec", 2), func() (LeadResult, error) { calls++; return LeadResult{}, nil })
	require.NoError(t, err)
	assert.Equal(t, 1, calls, "newest entry should still be cached")
}

func TestCache_Invalidate(t *testing.T) {
	c := NewCache(0)
	for _, k := range []CacheKey{testKey("a", 0), testKey("a", 5000), testKey("b", 0)} {
		_, err := c.Get(k, func() (LeadResult, error) { return LeadResult{}, nil })
		require.NoError(t, err)
	}
	assert.Equal(t, 2, c.Invalidate("a"))
	assert.Equal(t, 0, c.Invalidate("missing"))
	assert.Equal(t, 1, c.Stats().Entries)
}

func TestCache_CoalescesConcurrentMisses(t *testing.T) {
	c := NewCache(0)
	var calls atomic.Int32
	release := make(chan struct{})

	var wg sync.WaitGroup
	results := make([]LeadResult, 8)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r, err := c.Get(testKey("rec", 0), func() (LeadResult, error) {
				calls.Add(1)
				<-release
				return LeadResult{Index: 7}, nil
			})
			assert.NoError(t, err)
			results[i] = r
		}()
	}
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	for _, r := range results {
		assert.Equal(t, 7, r.Index)
	}
}
