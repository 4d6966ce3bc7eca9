package config

import (
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"globe-viewer/internal/tiling"
)

type (
	// Config is the full application configuration, read from the
	// environment (optionally seeded from a .env file).
	Config struct {
		Logger  Logger  `envPrefix:"LOGGER_"`
		Engine  Engine  `envPrefix:"ENGINE_"`
		Cache   Cache   `envPrefix:"CACHE_"`
		Fetch   Fetch   `envPrefix:"FETCH_"`
		Source  Source  `envPrefix:"SOURCE_"`
		Metrics Metrics `envPrefix:"METRICS_"`
	}

	Logger struct {
		Level string `env:"LEVEL" envDefault:"info"`
	}

	Engine struct {
		MaxDetailLevel   int `env:"MAX_DETAIL_LEVEL" envDefault:"14"`
		MaxTilesPerFrame int `env:"MAX_TILES_PER_FRAME" envDefault:"64"`

		// LODThresholds is a comma-separated "distance:level" list, e.g.
		// "20000:1,8000:3,2000:6,500:9,100:12". Distances are in world
		// units (kilometers for the default globe).
		LODThresholds string `env:"LOD_THRESHOLDS" envDefault:"20000:1,8000:3,2000:6,500:9,100:12"`

		// SphereRadius is the globe radius in world units.
		SphereRadius float64 `env:"SPHERE_RADIUS" envDefault:"6378"`
	}

	Cache struct {
		Capacity       int    `env:"CAPACITY" envDefault:"512"`
		MaxRetries     int    `env:"MAX_RETRIES" envDefault:"3"`
		CooldownFrames uint64 `env:"COOLDOWN_FRAMES" envDefault:"120"`
	}

	Fetch struct {
		MaxConcurrent int           `env:"MAX_CONCURRENT" envDefault:"8"`
		QueueSize     int           `env:"QUEUE_SIZE" envDefault:"128"`
		Timeout       time.Duration `env:"TIMEOUT" envDefault:"15s"`
	}

	Source struct {
		// Type selects the tile source variant: "local" or "remote".
		Type string `env:"TYPE" envDefault:"remote"`

		LocalDir string `env:"LOCAL_DIR"`
		LocalExt string `env:"LOCAL_EXT" envDefault:".jpg"`

		RemoteURLTemplate string  `env:"REMOTE_URL_TEMPLATE" envDefault:"https://tile.openstreetmap.org/{level}/{col}/{row}.png"`
		RequestsPerSec    float64 `env:"REQUESTS_PER_SEC" envDefault:"16"`
		UseHTTP2          bool    `env:"USE_HTTP2" envDefault:"true"`
	}

	Metrics struct {
		// Addr enables a Prometheus /metrics endpoint when non-empty.
		Addr string `env:"ADDR"`
	}
)

// New loads configuration from the environment, seeding it from a .env
// file when one is present.
func New() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Printf("NOTICE: .env file not found or cannot be loaded: %v", err)
	}

	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks cross-field constraints the env tags cannot express.
func (c *Config) Validate() error {
	if c.Engine.MaxDetailLevel < 0 || c.Engine.MaxDetailLevel > tiling.MaxLevel {
		return fmt.Errorf("max detail level %d out of range [0, %d]", c.Engine.MaxDetailLevel, tiling.MaxLevel)
	}
	if c.Engine.MaxTilesPerFrame < 1 {
		return fmt.Errorf("max tiles per frame must be positive, got %d", c.Engine.MaxTilesPerFrame)
	}
	if c.Engine.SphereRadius <= 0 {
		return fmt.Errorf("sphere radius must be positive, got %f", c.Engine.SphereRadius)
	}
	if c.Cache.Capacity < 1 {
		return fmt.Errorf("cache capacity must be positive, got %d", c.Cache.Capacity)
	}
	if c.Fetch.MaxConcurrent < 1 {
		return fmt.Errorf("max concurrent fetches must be positive, got %d", c.Fetch.MaxConcurrent)
	}

	switch c.Source.Type {
	case "local":
		if c.Source.LocalDir == "" {
			return fmt.Errorf("source type is local but SOURCE_LOCAL_DIR is empty")
		}
	case "remote":
		if c.Source.RemoteURLTemplate == "" {
			return fmt.Errorf("source type is remote but SOURCE_REMOTE_URL_TEMPLATE is empty")
		}
	default:
		return fmt.Errorf("unknown source type: %s", c.Source.Type)
	}

	if _, err := c.ParseLODThresholds(); err != nil {
		return err
	}

	return nil
}

// ParseLODThresholds parses the "distance:level" threshold list.
func (c *Config) ParseLODThresholds() ([]tiling.LODThreshold, error) {
	parts := strings.Split(c.Engine.LODThresholds, ",")
	thresholds := make([]tiling.LODThreshold, 0, len(parts))

	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		fields := strings.SplitN(part, ":", 2)
		if len(fields) != 2 {
			return nil, fmt.Errorf("invalid LOD threshold %q, want distance:level", part)
		}

		distance, err := strconv.ParseFloat(strings.TrimSpace(fields[0]), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid LOD threshold distance %q: %w", fields[0], err)
		}
		level, err := strconv.Atoi(strings.TrimSpace(fields[1]))
		if err != nil {
			return nil, fmt.Errorf("invalid LOD threshold level %q: %w", fields[1], err)
		}

		thresholds = append(thresholds, tiling.LODThreshold{Distance: distance, Level: level})
	}

	if len(thresholds) == 0 {
		return nil, fmt.Errorf("no LOD thresholds configured")
	}
	return thresholds, nil
}
