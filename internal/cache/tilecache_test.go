package cache

import (
	"errors"
	"fmt"
	"image"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"globe-viewer/internal/fetch"
	"globe-viewer/internal/tiling"
	"globe-viewer/pkg/logger"
)

// fakeFetcher records enqueued tiles and lets tests hand-feed completions.
type fakeFetcher struct {
	mu       sync.Mutex
	enqueued []tiling.TileID
	reject   bool
	results  chan fetch.Result
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{results: make(chan fetch.Result, 256)}
}

func (f *fakeFetcher) Enqueue(id tiling.TileID) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.reject {
		return false
	}
	f.enqueued = append(f.enqueued, id)
	return true
}

func (f *fakeFetcher) Results() <-chan fetch.Result {
	return f.results
}

func (f *fakeFetcher) setReject(reject bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reject = reject
}

func (f *fakeFetcher) enqueueCount(id tiling.TileID) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, e := range f.enqueued {
		if e == id {
			n++
		}
	}
	return n
}

func (f *fakeFetcher) succeed(id tiling.TileID) {
	f.results <- fetch.Result{ID: id, Image: image.NewRGBA(image.Rect(0, 0, 1, 1))}
}

func (f *fakeFetcher) fail(id tiling.TileID, err error) {
	f.results <- fetch.Result{ID: id, Err: err}
}

func newTestCache(t *testing.T, cfg Config) (*TileCache, *fakeFetcher) {
	t.Helper()
	ff := newFakeFetcher()
	c, err := New(ff, cfg, logger.NewNop())
	require.NoError(t, err)
	return c, ff
}

func testConfig() Config {
	return Config{Capacity: 100, MaxRetries: 2, CooldownFrames: 10}
}

func TestNewValidation(t *testing.T) {
	_, err := New(newFakeFetcher(), Config{Capacity: 0}, logger.NewNop())
	assert.Error(t, err)

	_, err = New(newFakeFetcher(), Config{Capacity: 1, MaxRetries: -1}, logger.NewNop())
	assert.Error(t, err)
}

func TestRequestCreatesPendingEntry(t *testing.T) {
	c, ff := newTestCache(t, testConfig())
	c.BeginFrame(1)

	id := tiling.TileID{Level: 3, Row: 1, Col: 2}
	snap := c.Request(id, 0)
	assert.Equal(t, StatePending, snap.State)
	assert.Equal(t, 1, ff.enqueueCount(id))
}

func TestRequestDeduplicatesInFlightFetch(t *testing.T) {
	c, ff := newTestCache(t, testConfig())
	c.BeginFrame(1)

	id := tiling.TileID{Level: 3, Row: 1, Col: 2}
	for i := 0; i < 10; i++ {
		snap := c.Request(id, i)
		assert.Equal(t, StatePending, snap.State)
	}
	assert.Equal(t, 1, ff.enqueueCount(id), "at most one fetch per tile may be in flight")
}

func TestRequestDeduplicatesAcrossGoroutines(t *testing.T) {
	c, ff := newTestCache(t, testConfig())
	c.BeginFrame(1)

	id := tiling.TileID{Level: 5, Row: 3, Col: 7}
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Request(id, 0)
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, ff.enqueueCount(id))
}

func TestCompletionMakesTileReady(t *testing.T) {
	c, ff := newTestCache(t, testConfig())
	c.BeginFrame(1)

	id := tiling.TileID{Level: 3, Row: 1, Col: 2}
	c.Request(id, 0)
	ff.succeed(id)

	c.BeginFrame(2)
	snap := c.Request(id, 0)
	assert.Equal(t, StateReady, snap.State)
	assert.NotNil(t, snap.Image)
	assert.NoError(t, snap.Err)
}

func TestTransientFailureRetriedAfterCooldown(t *testing.T) {
	c, ff := newTestCache(t, testConfig())
	c.BeginFrame(1)

	id := tiling.TileID{Level: 3, Row: 1, Col: 2}
	c.Request(id, 0)
	ff.fail(id, fmt.Errorf("connection reset"))

	c.BeginFrame(2)
	snap := c.Request(id, 0)
	assert.Equal(t, StateFailed, snap.State)
	assert.Equal(t, 1, ff.enqueueCount(id), "no re-fetch inside the cooldown window")

	// Still cooling down.
	c.BeginFrame(5)
	snap = c.Request(id, 0)
	assert.Equal(t, StateFailed, snap.State)
	assert.Equal(t, 1, ff.enqueueCount(id))

	// Cooldown elapsed: the request triggers a new attempt.
	c.BeginFrame(12)
	snap = c.Request(id, 0)
	assert.Equal(t, StatePending, snap.State)
	assert.Equal(t, 2, ff.enqueueCount(id))
}

func TestNotFoundRetriedLikeTransportFailure(t *testing.T) {
	c, ff := newTestCache(t, testConfig())
	c.BeginFrame(1)

	id := tiling.TileID{Level: 3, Row: 0, Col: 0}
	c.Request(id, 0)
	ff.fail(id, fmt.Errorf("%w: %s", fetch.ErrNotFound, id))

	c.BeginFrame(2)
	snap := c.Request(id, 0)
	assert.Equal(t, StateFailed, snap.State, "a missing tile may appear later; it is retried")
	assert.True(t, errors.Is(snap.Err, fetch.ErrNotFound))
}

func TestRetriesExhaustedGoesUnavailable(t *testing.T) {
	cfg := testConfig() // MaxRetries: 2, so 3 attempts in total
	c, ff := newTestCache(t, cfg)

	id := tiling.TileID{Level: 3, Row: 1, Col: 2}
	frame := uint64(1)
	c.BeginFrame(frame)
	c.Request(id, 0)

	for attempt := 1; attempt <= cfg.MaxRetries+1; attempt++ {
		ff.fail(id, fmt.Errorf("transport down"))
		frame++
		c.BeginFrame(frame) // failure applied here, cooldown starts
		frame += cfg.CooldownFrames
		c.BeginFrame(frame)
		c.Request(id, 0)
	}

	snap, ok := c.Get(id)
	require.True(t, ok)
	assert.Equal(t, StateUnavailable, snap.State)
	assert.Equal(t, cfg.MaxRetries+1, ff.enqueueCount(id), "attempts are bounded")

	// Unavailable is permanent: later requests never re-fetch.
	frame += 10 * cfg.CooldownFrames
	c.BeginFrame(frame)
	snap = c.Request(id, 0)
	assert.Equal(t, StateUnavailable, snap.State)
	assert.Equal(t, cfg.MaxRetries+1, ff.enqueueCount(id))
}

func TestDecodeFailureImmediatelyUnavailable(t *testing.T) {
	c, ff := newTestCache(t, testConfig())
	c.BeginFrame(1)

	id := tiling.TileID{Level: 3, Row: 1, Col: 2}
	c.Request(id, 0)
	ff.fail(id, &fetch.DecodeError{Err: fmt.Errorf("corrupt payload")})

	c.BeginFrame(2)
	snap := c.Request(id, 0)
	assert.Equal(t, StateUnavailable, snap.State, "re-fetching the same bytes cannot fix a decode failure")
	assert.Equal(t, 1, ff.enqueueCount(id))
}

func TestBackpressureCreatesNoEntry(t *testing.T) {
	c, ff := newTestCache(t, testConfig())
	c.BeginFrame(1)
	ff.setReject(true)

	id := tiling.TileID{Level: 3, Row: 1, Col: 2}
	snap := c.Request(id, 0)
	assert.Equal(t, StateFailed, snap.State)
	assert.True(t, errors.Is(snap.Err, ErrBackpressure))

	_, ok := c.Get(id)
	assert.False(t, ok, "a rejected request must leave no entry behind")

	// Once the queue drains the same request goes through untouched by any
	// cooldown or retry accounting.
	ff.setReject(false)
	snap = c.Request(id, 0)
	assert.Equal(t, StatePending, snap.State)
}

// makeReady drives a tile to Ready with the given last-used frame.
func makeReady(c *TileCache, ff *fakeFetcher, id tiling.TileID, frame uint64) {
	c.BeginFrame(frame)
	c.Request(id, 0)
	ff.succeed(id)
	c.BeginFrame(frame)
	c.MarkUsed(id, frame)
}

func TestEvictionKeepsRecentlyUsedTiles(t *testing.T) {
	c, ff := newTestCache(t, Config{Capacity: 100, MaxRetries: 2, CooldownFrames: 10})

	ids := make([]tiling.TileID, 150)
	for i := range ids {
		ids[i] = tiling.TileID{Level: 10, Row: i / 32, Col: i % 32}
		makeReady(c, ff, ids[i], 1)
	}

	// Frame 2 uses only the first hundred tiles.
	c.BeginFrame(2)
	for _, id := range ids[:100] {
		c.Request(id, 0)
		c.MarkUsed(id, 2)
	}

	evicted := c.EvictIfNeeded()
	assert.Equal(t, 50, evicted)

	for _, id := range ids[:100] {
		snap, ok := c.Get(id)
		require.True(t, ok, "tile %s used this frame must survive", id)
		assert.Equal(t, StateReady, snap.State)
	}
	ready, _, _, _ := c.Stats()
	assert.Equal(t, 100, ready)
}

func TestEvictionPrefersLeastRecentlyUsed(t *testing.T) {
	c, ff := newTestCache(t, Config{Capacity: 2, MaxRetries: 2, CooldownFrames: 10})

	old := tiling.TileID{Level: 4, Row: 0, Col: 0}
	mid := tiling.TileID{Level: 4, Row: 0, Col: 1}
	fresh := tiling.TileID{Level: 4, Row: 0, Col: 2}
	makeReady(c, ff, old, 1)
	makeReady(c, ff, mid, 2)
	makeReady(c, ff, fresh, 3)

	c.BeginFrame(4)
	assert.Equal(t, 1, c.EvictIfNeeded())

	_, ok := c.Get(old)
	assert.False(t, ok, "the least recently used tile is evicted first")
	_, ok = c.Get(mid)
	assert.True(t, ok)
	_, ok = c.Get(fresh)
	assert.True(t, ok)
}

func TestEvictionSkipsCurrentFrameAndPending(t *testing.T) {
	c, ff := newTestCache(t, Config{Capacity: 1, MaxRetries: 2, CooldownFrames: 10})

	a := tiling.TileID{Level: 4, Row: 1, Col: 0}
	b := tiling.TileID{Level: 4, Row: 1, Col: 1}
	makeReady(c, ff, a, 1)
	makeReady(c, ff, b, 2)

	// Both tiles used in the current frame: over capacity, nothing evictable.
	c.BeginFrame(3)
	c.MarkUsed(a, 3)
	c.MarkUsed(b, 3)
	assert.Equal(t, 0, c.EvictIfNeeded())

	// A Pending entry never counts as resident and is never evicted.
	p := tiling.TileID{Level: 4, Row: 1, Col: 2}
	c.Request(p, 0)
	c.BeginFrame(4)
	c.EvictIfNeeded()
	snap, ok := c.Get(p)
	require.True(t, ok)
	assert.Equal(t, StatePending, snap.State)
}

func TestCompletionForEvictedTileDiscarded(t *testing.T) {
	c, ff := newTestCache(t, Config{Capacity: 1, MaxRetries: 2, CooldownFrames: 10})

	a := tiling.TileID{Level: 4, Row: 2, Col: 0}
	b := tiling.TileID{Level: 4, Row: 2, Col: 1}
	makeReady(c, ff, a, 1)
	makeReady(c, ff, b, 2)

	c.BeginFrame(3)
	require.Equal(t, 1, c.EvictIfNeeded())
	_, ok := c.Get(a)
	require.False(t, ok)

	// A completion for the evicted tile arrives late; it must not resurrect
	// the entry.
	ff.succeed(a)
	c.BeginFrame(4)
	_, ok = c.Get(a)
	assert.False(t, ok)
}

func TestStats(t *testing.T) {
	c, ff := newTestCache(t, testConfig())
	c.BeginFrame(1)

	readyID := tiling.TileID{Level: 2, Row: 0, Col: 0}
	pendingID := tiling.TileID{Level: 2, Row: 0, Col: 1}
	failedID := tiling.TileID{Level: 2, Row: 0, Col: 2}

	c.Request(readyID, 0)
	c.Request(pendingID, 0)
	c.Request(failedID, 0)
	ff.succeed(readyID)
	ff.fail(failedID, fmt.Errorf("transport down"))

	c.BeginFrame(2)
	ready, pending, failed, unavailable := c.Stats()
	assert.Equal(t, 1, ready)
	assert.Equal(t, 1, pending)
	assert.Equal(t, 1, failed)
	assert.Equal(t, 0, unavailable)
}
