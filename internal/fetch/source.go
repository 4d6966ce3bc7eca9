package fetch

import (
	"context"
	"errors"

	"globe-viewer/internal/tiling"
)

var (
	// ErrNotFound means the source has no imagery for the requested tile.
	ErrNotFound = errors.New("tile not found")
)

// TileSource resolves a tile identifier to raw encoded image bytes.
// Implementations are selected at configuration time; the engine never
// inspects which variant it is talking to.
type TileSource interface {
	// Fetch returns the encoded bytes for a tile, ErrNotFound if the
	// source has no such tile, or a transport error.
	Fetch(ctx context.Context, id tiling.TileID) ([]byte, error)

	// Name identifies the source in logs.
	Name() string
}
