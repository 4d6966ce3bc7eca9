// Package engine runs the per-frame pass that decides which imagery tiles
// to display: probe the globe with the camera's corner rays, accumulate the
// visible bounds, select a detail level, index the covering tiles and drive
// the tile cache. The pass is strictly sequential and never blocks on I/O;
// everything asynchronous lives behind the cache's pipeline.
package engine

import (
	"image"

	"globe-viewer/internal/cache"
	"globe-viewer/internal/geo"
	"globe-viewer/internal/tiling"
	"globe-viewer/pkg/logger"
)

// FrameInput is what the renderer collaborator supplies once per frame.
type FrameInput struct {
	// Rays are the camera's four corner rays in world space.
	Rays [4]geo.Ray
	// SurfaceDistance is the camera's distance to the nearest point of the
	// globe surface. Negative values are clamped to zero.
	SurfaceDistance float64
}

// ReadyTile pairs a tile identifier with its decoded image for rendering.
type ReadyTile struct {
	ID    tiling.TileID
	Image image.Image
}

// FrameOutput is handed back to the renderer after each pass. Ready tiles
// are ordered by priority (nearest the visible-region center first);
// Pending lists tiles still being fetched, for placeholder rendering.
type FrameOutput struct {
	Frame  uint64
	Bounds geo.BoundingBox
	Level  int

	Ready       []ReadyTile
	Pending     []tiling.TileID
	Unavailable []tiling.TileID

	RequestedTiles int
	EvictedTiles   int
}

// Config bounds the per-frame work.
type Config struct {
	Sphere           geo.Sphere
	MaxTilesPerFrame int
}

// Engine is the frame orchestrator. It carries no state beyond the cache
// and the frame counter, so it is restartable every frame and tolerant of
// the previous frame's fetches still being in flight.
type Engine struct {
	sphere geo.Sphere
	lod    *tiling.LODSelector
	cache  *cache.TileCache

	maxTilesPerFrame int
	frame            uint64
	log              logger.Logger
}

// New creates an engine around an LOD selector and a tile cache.
func New(cfg Config, lod *tiling.LODSelector, tileCache *cache.TileCache, log logger.Logger) *Engine {
	return &Engine{
		sphere:           cfg.Sphere,
		lod:              lod,
		cache:            tileCache,
		maxTilesPerFrame: cfg.MaxTilesPerFrame,
		log:              log,
	}
}

// Frame runs one synchronous pass: probe, accumulate, select, index, drive
// the cache, collect ready textures, evict.
func (e *Engine) Frame(in FrameInput) FrameOutput {
	e.frame++
	e.cache.BeginFrame(e.frame)

	var acc geo.Accumulator
	for _, ray := range in.Rays {
		if coord, ok := e.sphere.IntersectCoordinate(ray); ok {
			acc.Add(coord)
		}
	}
	bounds := acc.Bounds()

	distance := in.SurfaceDistance
	if distance < 0 {
		distance = 0
	}
	level := e.lod.Select(distance)

	tiles := tiling.Cover(bounds, level, e.maxTilesPerFrame)

	out := FrameOutput{
		Frame:          e.frame,
		Bounds:         bounds,
		Level:          level,
		RequestedTiles: len(tiles),
	}

	for priority, id := range tiles {
		snap := e.cache.Request(id, priority)
		e.cache.MarkUsed(id, e.frame)

		switch snap.State {
		case cache.StateReady:
			out.Ready = append(out.Ready, ReadyTile{ID: id, Image: snap.Image})
		case cache.StatePending:
			out.Pending = append(out.Pending, id)
		case cache.StateUnavailable:
			out.Unavailable = append(out.Unavailable, id)
		}
	}

	out.EvictedTiles = e.cache.EvictIfNeeded()

	e.log.Debug("frame complete",
		"frame", e.frame,
		"level", level,
		"requested", out.RequestedTiles,
		"ready", len(out.Ready),
		"pending", len(out.Pending),
		"evicted", out.EvictedTiles,
	)

	return out
}

// FrameCount returns the number of frames run so far.
func (e *Engine) FrameCount() uint64 {
	return e.frame
}
