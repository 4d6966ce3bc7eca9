package main

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"globe-viewer/internal/cache"
	"globe-viewer/internal/config"
	"globe-viewer/internal/engine"
	"globe-viewer/internal/fetch"
	"globe-viewer/internal/geo"
	"globe-viewer/internal/tiling"
	"globe-viewer/pkg/logger"
)

// App wires the tile streaming engine together: configuration, tile
// source, fetch pipeline, cache and frame orchestrator.
type App struct {
	cfg *config.Config
	log logger.Logger

	sphere   geo.Sphere
	source   fetch.TileSource
	pipeline *fetch.Pipeline
	cache    *cache.TileCache
	engine   *engine.Engine
}

// NewApp builds the application from configuration.
func NewApp(cfg *config.Config, log logger.Logger) (*App, error) {
	sphere := geo.Sphere{Radius: cfg.Engine.SphereRadius}

	source, err := newSource(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create tile source: %w", err)
	}

	thresholds, err := cfg.ParseLODThresholds()
	if err != nil {
		return nil, err
	}
	lod, err := tiling.NewLODSelector(thresholds, cfg.Engine.MaxDetailLevel)
	if err != nil {
		return nil, fmt.Errorf("invalid LOD configuration: %w", err)
	}

	pipeline := fetch.NewPipeline(source, cfg.Fetch.MaxConcurrent, cfg.Fetch.QueueSize, cfg.Fetch.Timeout, log)

	tileCache, err := cache.New(pipeline, cache.Config{
		Capacity:       cfg.Cache.Capacity,
		MaxRetries:     cfg.Cache.MaxRetries,
		CooldownFrames: cfg.Cache.CooldownFrames,
	}, log)
	if err != nil {
		pipeline.Close()
		return nil, fmt.Errorf("failed to create tile cache: %w", err)
	}

	eng := engine.New(engine.Config{
		Sphere:           sphere,
		MaxTilesPerFrame: cfg.Engine.MaxTilesPerFrame,
	}, lod, tileCache, log)

	app := &App{
		cfg:      cfg,
		log:      log,
		sphere:   sphere,
		source:   source,
		pipeline: pipeline,
		cache:    tileCache,
		engine:   eng,
	}

	if cfg.Metrics.Addr != "" {
		go app.serveMetrics(cfg.Metrics.Addr)
	}

	log.Info("engine initialized",
		"source", source.Name(),
		"maxLevel", cfg.Engine.MaxDetailLevel,
		"cacheCapacity", cfg.Cache.Capacity,
		"maxConcurrentFetches", cfg.Fetch.MaxConcurrent,
	)

	return app, nil
}

// newSource selects the tile source variant from configuration.
func newSource(cfg *config.Config) (fetch.TileSource, error) {
	switch cfg.Source.Type {
	case "local":
		return fetch.NewLocalSource(cfg.Source.LocalDir, cfg.Source.LocalExt)
	case "remote":
		return fetch.NewRemoteSource(fetch.RemoteConfig{
			URLTemplate:    cfg.Source.RemoteURLTemplate,
			Timeout:        cfg.Fetch.Timeout,
			RequestsPerSec: cfg.Source.RequestsPerSec,
			UseHTTP2:       cfg.Source.UseHTTP2,
		})
	default:
		return nil, fmt.Errorf("unknown source type: %s", cfg.Source.Type)
	}
}

// Engine returns the frame orchestrator.
func (a *App) Engine() *engine.Engine {
	return a.engine
}

// Sphere returns the globe sphere.
func (a *App) Sphere() geo.Sphere {
	return a.sphere
}

// Cache returns the tile cache.
func (a *App) Cache() *cache.TileCache {
	return a.cache
}

// Close shuts down the fetch pipeline and waits for workers to exit.
func (a *App) Close() {
	a.pipeline.Close()
}

func (a *App) serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	a.log.Info("serving metrics", "addr", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		a.log.Error("metrics server stopped", "error", err)
	}
}
