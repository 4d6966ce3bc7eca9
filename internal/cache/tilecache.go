package cache

import (
	"errors"
	"fmt"
	"image"
	"sync"

	"globe-viewer/internal/fetch"
	"globe-viewer/internal/tiling"
	"globe-viewer/pkg/logger"
	"globe-viewer/pkg/metrics"
)

// State is the lifecycle state of a cache entry.
type State string

const (
	// StatePending means a fetch is queued or in flight for the tile.
	StatePending State = "pending"
	// StateReady means the tile's decoded image is resident.
	StateReady State = "ready"
	// StateFailed means the last fetch attempt failed; the tile may be
	// retried after a cooldown.
	StateFailed State = "failed"
	// StateUnavailable means the tile is permanently unavailable for the
	// session and will never be fetched again.
	StateUnavailable State = "unavailable"
)

// ErrBackpressure is reported when the fetch queue is full and a request
// could not be accepted this frame. The tile is re-requested next frame.
var ErrBackpressure = errors.New("fetch queue full")

// entry is the cache-owned record for one tile. Entries are created on
// first request, transition Pending -> Ready|Failed exactly once per fetch
// attempt, and are destroyed only by eviction.
type entry struct {
	id            tiling.TileID
	state         State
	img           image.Image
	err           error
	lastUsedFrame uint64
	failedFrame   uint64
	retries       int
	priority      int
}

// Snapshot is a read-only copy of an entry's state handed to callers. The
// renderer only ever sees snapshots, never the live entry.
type Snapshot struct {
	ID            tiling.TileID
	State         State
	Image         image.Image
	Err           error
	LastUsedFrame uint64
	Retries       int
}

// Fetcher is the cache's view of the fetch/decode pipeline.
type Fetcher interface {
	Enqueue(id tiling.TileID) bool
	Results() <-chan fetch.Result
}

// Config bounds the cache.
type Config struct {
	// Capacity is the maximum number of resident (Ready) tiles.
	Capacity int
	// MaxRetries is the number of re-fetches allowed after the first
	// failed attempt before a tile goes permanently unavailable.
	MaxRetries int
	// CooldownFrames is how many frames a Failed tile waits before it may
	// be re-fetched.
	CooldownFrames uint64
}

// TileCache owns the bounded set of resident decoded tiles. Fetch
// completions are routed through the pipeline's channel and applied on the
// frame thread in BeginFrame, so entry state transitions have a single
// writer; a mutex additionally makes Request safe from any goroutine.
type TileCache struct {
	mu      sync.Mutex
	entries map[tiling.TileID]*entry

	fetcher Fetcher
	cfg     Config
	log     logger.Logger

	currentFrame uint64
}

// New creates a tile cache backed by the given fetcher.
func New(fetcher Fetcher, cfg Config, log logger.Logger) (*TileCache, error) {
	if cfg.Capacity < 1 {
		return nil, fmt.Errorf("cache capacity must be positive, got %d", cfg.Capacity)
	}
	if cfg.MaxRetries < 0 {
		return nil, fmt.Errorf("max retries must not be negative, got %d", cfg.MaxRetries)
	}
	return &TileCache{
		entries: make(map[tiling.TileID]*entry),
		fetcher: fetcher,
		cfg:     cfg,
		log:     log,
	}, nil
}

// BeginFrame advances the frame counter and applies all completions that
// arrived since the previous frame. It never blocks on the pipeline.
func (c *TileCache) BeginFrame(frame uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.currentFrame = frame

	for {
		select {
		case res := <-c.fetcher.Results():
			c.applyResult(res)
		default:
			return
		}
	}
}

// applyResult transitions an entry out of Pending. Results for tiles whose
// entry no longer exists (evicted in the interim) are discarded; the match
// is by tile identity, not by reference. Caller holds the lock.
func (c *TileCache) applyResult(res fetch.Result) {
	e, ok := c.entries[res.ID]
	if !ok {
		c.log.Debug("discarding completion for evicted tile", "tile", res.ID.String())
		return
	}
	if e.state != StatePending {
		// Stale completion from a superseded attempt; the dedup invariant
		// makes this unreachable, kept as a guard.
		return
	}

	if !res.Failed() {
		e.state = StateReady
		e.img = res.Image
		e.err = nil
		return
	}

	e.err = res.Err
	e.retries++

	if res.DecodeFailure() || e.retries > c.cfg.MaxRetries {
		e.state = StateUnavailable
		e.img = nil
		metrics.TilesUnavailable.Inc()
		c.log.Warn("tile permanently unavailable", "tile", res.ID.String(), "attempts", e.retries, "error", res.Err)
		return
	}

	e.state = StateFailed
	e.failedFrame = c.currentFrame
}

// Request returns the current state of a tile, creating a Pending entry
// and enqueueing a fetch if the tile is absent. A second request for a
// Pending tile attaches to the in-flight fetch rather than starting a new
// one; at most one fetch per tile is ever in flight.
func (c *TileCache) Request(id tiling.TileID, priority int) Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[id]
	if !ok {
		metrics.CacheMisses.Inc()
		if !c.fetcher.Enqueue(id) {
			// Queue full: no entry is created, the caller re-requests on a
			// later frame once the pipeline drains.
			return Snapshot{ID: id, State: StateFailed, Err: ErrBackpressure}
		}
		e = &entry{
			id:            id,
			state:         StatePending,
			lastUsedFrame: c.currentFrame,
			priority:      priority,
		}
		c.entries[id] = e
		return e.snapshot()
	}

	e.priority = priority

	switch e.state {
	case StateReady:
		metrics.CacheHits.Inc()
	case StateFailed:
		if c.currentFrame-e.failedFrame >= c.cfg.CooldownFrames {
			if c.fetcher.Enqueue(id) {
				e.state = StatePending
				e.err = nil
			}
		}
	}

	return e.snapshot()
}

// MarkUsed records that a tile was part of the indexed set this frame, for
// eviction recency. It is called for every indexed tile, Ready or not.
func (c *TileCache) MarkUsed(id tiling.TileID, frame uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[id]; ok {
		e.lastUsedFrame = frame
	}
}

// EvictIfNeeded evicts least-recently-used Ready tiles until the resident
// count is within capacity, releasing their decoded images. Entries with a
// fetch in flight and entries used in the current frame are never evicted.
// Returns the number of evicted tiles.
func (c *TileCache) EvictIfNeeded() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	evicted := 0
	for c.residentCount() > c.cfg.Capacity {
		victim := c.oldestEvictable()
		if victim == nil {
			break
		}
		victim.img = nil
		delete(c.entries, victim.id)
		metrics.CacheEvictions.Inc()
		evicted++
	}

	if evicted > 0 {
		c.log.Debug("evicted tiles", "count", evicted, "resident", c.residentCount())
	}
	return evicted
}

// residentCount counts entries holding a decoded image. Pending, Failed
// and Unavailable entries carry no image and do not count against the
// capacity. Caller holds the lock.
func (c *TileCache) residentCount() int {
	n := 0
	for _, e := range c.entries {
		if e.state == StateReady {
			n++
		}
	}
	return n
}

// oldestEvictable returns the Ready entry with the oldest lastUsedFrame
// that was not used in the current frame, or nil. Caller holds the lock.
func (c *TileCache) oldestEvictable() *entry {
	var victim *entry
	for _, e := range c.entries {
		if e.state != StateReady || e.lastUsedFrame == c.currentFrame {
			continue
		}
		if victim == nil || e.lastUsedFrame < victim.lastUsedFrame {
			victim = e
		}
	}
	return victim
}

// Get returns a snapshot of a tile's entry if one exists.
func (c *TileCache) Get(id tiling.TileID) (Snapshot, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[id]
	if !ok {
		return Snapshot{}, false
	}
	return e.snapshot(), true
}

// Stats reports entry counts by state.
func (c *TileCache) Stats() (ready, pending, failed, unavailable int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, e := range c.entries {
		switch e.state {
		case StateReady:
			ready++
		case StatePending:
			pending++
		case StateFailed:
			failed++
		case StateUnavailable:
			unavailable++
		}
	}
	return
}

func (e *entry) snapshot() Snapshot {
	return Snapshot{
		ID:            e.id,
		State:         e.state,
		Image:         e.img,
		Err:           e.err,
		LastUsedFrame: e.lastUsedFrame,
		Retries:       e.retries,
	}
}
