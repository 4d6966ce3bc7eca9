package fetch

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/net/http2"
	"golang.org/x/time/rate"

	"globe-viewer/internal/tiling"
)

const (
	// UserAgent sent with every tile request
	UserAgent = "globe-viewer/1.0"

	// Connection pool tuning for bursty tile traffic
	maxIdleConns        = 100
	maxIdleConnsPerHost = 32
	idleConnTimeout     = 30 * time.Second

	// Encoded tiles fetched recently, kept so a tile evicted from the
	// resident cache and re-requested soon after does not hit the network
	recentTileCapacity = 256
)

// RemoteSource fetches tiles over HTTP from a URL template containing
// {level}, {row} and {col} placeholders.
type RemoteSource struct {
	client      *http.Client
	urlTemplate string
	limiter     *rate.Limiter
	recent      *lru.Cache[tiling.TileID, []byte]
}

// RemoteConfig configures a RemoteSource.
type RemoteConfig struct {
	URLTemplate    string
	Timeout        time.Duration
	RequestsPerSec float64 // <= 0 disables rate limiting
	UseHTTP2       bool
}

// NewRemoteSource creates an HTTP tile source.
func NewRemoteSource(cfg RemoteConfig) (*RemoteSource, error) {
	if !strings.Contains(cfg.URLTemplate, "{level}") ||
		!strings.Contains(cfg.URLTemplate, "{row}") ||
		!strings.Contains(cfg.URLTemplate, "{col}") {
		return nil, fmt.Errorf("url template must contain {level}, {row} and {col}: %s", cfg.URLTemplate)
	}

	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:   cfg.UseHTTP2,
		MaxIdleConns:        maxIdleConns,
		MaxIdleConnsPerHost: maxIdleConnsPerHost,
		IdleConnTimeout:     idleConnTimeout,
		TLSHandshakeTimeout: 15 * time.Second,
	}
	if cfg.UseHTTP2 {
		if err := http2.ConfigureTransport(transport); err != nil {
			return nil, fmt.Errorf("failed to configure http2 transport: %w", err)
		}
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.RequestsPerSec > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSec), int(cfg.RequestsPerSec)+1)
	}

	recent, err := lru.New[tiling.TileID, []byte](recentTileCapacity)
	if err != nil {
		return nil, fmt.Errorf("failed to create recent tile cache: %w", err)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &RemoteSource{
		client: &http.Client{
			Transport: transport,
			Timeout:   timeout,
		},
		urlTemplate: cfg.URLTemplate,
		limiter:     limiter,
		recent:      recent,
	}, nil
}

func (s *RemoteSource) Name() string {
	return "remote"
}

// TileURL resolves the template for a tile.
func (s *RemoteSource) TileURL(id tiling.TileID) string {
	r := strings.NewReplacer(
		"{level}", strconv.Itoa(id.Level),
		"{row}", strconv.Itoa(id.Row),
		"{col}", strconv.Itoa(id.Col),
	)
	return r.Replace(s.urlTemplate)
}

// Fetch downloads the encoded tile bytes. 404 maps to ErrNotFound; any
// other non-200 status is a transport error.
func (s *RemoteSource) Fetch(ctx context.Context, id tiling.TileID) ([]byte, error) {
	if data, ok := s.recent.Get(id); ok {
		return data, nil
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.TileURL(id), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", UserAgent)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("tile request failed: %w", err)
	}
	defer safeCloseResponse(resp)

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	default:
		return nil, fmt.Errorf("tile request failed with status: %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read tile body: %w", err)
	}

	s.recent.Add(id, data)
	return data, nil
}

// safeCloseResponse drains and closes a response body so the underlying
// connection can be reused.
func safeCloseResponse(resp *http.Response) {
	if resp != nil && resp.Body != nil {
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}
}
