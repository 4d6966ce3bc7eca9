package fetch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"globe-viewer/internal/tiling"
)

// LocalSource serves tiles from a directory laid out as
// {baseDir}/{level}/{col}/{row}{ext}.
type LocalSource struct {
	baseDir string
	ext     string
}

// NewLocalSource creates a filesystem tile source. ext defaults to ".jpg".
func NewLocalSource(baseDir, ext string) (*LocalSource, error) {
	if baseDir == "" {
		return nil, fmt.Errorf("local source directory is empty")
	}
	if ext == "" {
		ext = ".jpg"
	}
	info, err := os.Stat(baseDir)
	if err != nil {
		return nil, fmt.Errorf("failed to stat local source directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("local source path %s is not a directory", baseDir)
	}
	return &LocalSource{baseDir: baseDir, ext: ext}, nil
}

func (s *LocalSource) Name() string {
	return "local"
}

// Fetch reads the tile file from disk. A missing file maps to ErrNotFound.
func (s *LocalSource) Fetch(ctx context.Context, id tiling.TileID) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	path := filepath.Join(s.baseDir,
		strconv.Itoa(id.Level), strconv.Itoa(id.Col), strconv.Itoa(id.Row)+s.ext)

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to read tile file: %w", err)
	}
	return data, nil
}
