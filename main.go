package main

import (
	"context"
	"log"
	"math"
	"os/signal"
	"syscall"
	"time"

	"globe-viewer/internal/config"
	"globe-viewer/internal/engine"
	"globe-viewer/internal/geo"
	"globe-viewer/pkg/logger"
)

const (
	frameInterval = time.Second / 60

	// Simulated flight: spiral in from high orbit toward the surface
	startAltitudeKm = 20000.0
	endAltitudeKm   = 150.0
	orbitPeriodSec  = 90.0
)

func main() {
	cfg, err := config.New()
	if err != nil {
		log.Fatal("failed to load configuration: ", err)
	}

	zl := logger.NewZapLogger(cfg.Logger.Level)
	defer zl.Sync()

	app, err := NewApp(cfg, zl)
	if err != nil {
		log.Fatal("failed to initialize: ", err)
	}
	defer app.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	runOrbit(ctx, app, zl)
}

// runOrbit drives the engine with a simulated camera spiraling around the
// globe, standing in for the renderer collaborator until one is attached.
func runOrbit(ctx context.Context, app *App, log logger.Logger) {
	sphere := app.Sphere()
	ticker := time.NewTicker(frameInterval)
	defer ticker.Stop()

	start := time.Now()
	for {
		select {
		case <-ctx.Done():
			ready, pending, failed, unavailable := app.Cache().Stats()
			log.Info("shutting down",
				"frames", app.Engine().FrameCount(),
				"ready", ready, "pending", pending,
				"failed", failed, "unavailable", unavailable,
			)
			return
		case <-ticker.C:
		}

		elapsed := time.Since(start).Seconds()

		// Descend exponentially while circling the equator.
		progress := math.Min(elapsed/300.0, 1.0)
		altitude := startAltitudeKm * math.Pow(endAltitudeKm/startAltitudeKm, progress)
		lon := math.Mod(elapsed/orbitPeriodSec*360.0, 360.0) - 180.0
		lat := 25.0 * math.Sin(elapsed/orbitPeriodSec*2*math.Pi)

		camera := geo.LookAtGlobe(sphere, lat, lon, altitude, 45.0, 16.0/9.0)

		out := app.Engine().Frame(engine.FrameInput{
			Rays:            camera.CornerRays(),
			SurfaceDistance: sphere.SurfaceDistance(camera.Position),
		})

		if out.Frame%60 == 0 {
			log.Info("frame",
				"n", out.Frame,
				"altitudeKm", int(altitude),
				"level", out.Level,
				"requested", out.RequestedTiles,
				"ready", len(out.Ready),
				"pending", len(out.Pending),
			)
		}
	}
}
