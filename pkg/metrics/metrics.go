package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	CacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tile_cache_hits_total",
		Help: "Total number of tile cache hits (entry already resident)",
	})

	CacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tile_cache_misses_total",
		Help: "Total number of tile cache misses (fetch enqueued)",
	})

	CacheEvictions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tile_cache_evictions_total",
		Help: "Total number of tiles evicted from the resident cache",
	})

	TilesFetched = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tile_fetches_total",
		Help: "Total number of tile fetch attempts started",
	})

	FetchFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tile_fetch_failures_total",
		Help: "Total number of failed tile fetch attempts",
	}, []string{"reason"})

	FetchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "tile_fetch_duration_seconds",
		Help:    "Duration of tile fetch+decode in seconds",
		Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
	})

	TilesUnavailable = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tiles_unavailable_total",
		Help: "Total number of tiles permanently marked unavailable for the session",
	})
)
