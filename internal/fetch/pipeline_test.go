package fetch

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"globe-viewer/internal/tiling"
	"globe-viewer/pkg/logger"
)

// stubSource serves canned payloads keyed by tile, failing for tiles it
// does not know.
type stubSource struct {
	mu    sync.Mutex
	tiles map[tiling.TileID][]byte
}

func newStubSource() *stubSource {
	return &stubSource{tiles: make(map[tiling.TileID][]byte)}
}

func (s *stubSource) put(id tiling.TileID, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tiles[id] = data
}

func (s *stubSource) Name() string { return "stub" }

func (s *stubSource) Fetch(_ context.Context, id tiling.TileID) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.tiles[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return data, nil
}

// blockingSource parks every Fetch until released, signalling each start.
type blockingSource struct {
	started chan struct{}
	release chan struct{}
}

func (s *blockingSource) Name() string { return "blocking" }

func (s *blockingSource) Fetch(ctx context.Context, _ tiling.TileID) ([]byte, error) {
	s.started <- struct{}{}
	select {
	case <-s.release:
		return nil, fmt.Errorf("%w: released", ErrNotFound)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func awaitResult(t *testing.T, p *Pipeline) Result {
	t.Helper()
	select {
	case res := <-p.Results():
		return res
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for a pipeline result")
		return Result{}
	}
}

func TestPipelineFetchAndDecode(t *testing.T) {
	src := newStubSource()
	id := tiling.TileID{Level: 4, Row: 2, Col: 6}
	src.put(id, encodePNG(t, 4, 4))

	p := NewPipeline(src, 2, 8, time.Second, logger.NewNop())
	defer p.Close()

	require.True(t, p.Enqueue(id))
	res := awaitResult(t, p)
	assert.Equal(t, id, res.ID)
	assert.False(t, res.Failed())
	require.NotNil(t, res.Image)
	assert.Equal(t, 4, res.Image.Bounds().Dx())
}

func TestPipelineNotFound(t *testing.T) {
	p := NewPipeline(newStubSource(), 1, 4, time.Second, logger.NewNop())
	defer p.Close()

	id := tiling.TileID{Level: 2, Row: 0, Col: 3}
	require.True(t, p.Enqueue(id))
	res := awaitResult(t, p)
	assert.True(t, res.Failed())
	assert.True(t, res.NotFound())
	assert.False(t, res.DecodeFailure())
	assert.Nil(t, res.Image)
}

func TestPipelineDecodeFailure(t *testing.T) {
	src := newStubSource()
	id := tiling.TileID{Level: 2, Row: 1, Col: 0}
	src.put(id, []byte("not an image"))

	p := NewPipeline(src, 1, 4, time.Second, logger.NewNop())
	defer p.Close()

	require.True(t, p.Enqueue(id))
	res := awaitResult(t, p)
	assert.True(t, res.Failed())
	assert.True(t, res.DecodeFailure())
	assert.False(t, res.NotFound())
}

func TestPipelineBackpressure(t *testing.T) {
	src := &blockingSource{
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
	p := NewPipeline(src, 1, 1, time.Second, logger.NewNop())
	defer p.Close()

	// First task occupies the single worker.
	require.True(t, p.Enqueue(tiling.TileID{Level: 3, Row: 0, Col: 0}))
	<-src.started

	// Second task fills the queue; the third must be rejected, not block.
	require.True(t, p.Enqueue(tiling.TileID{Level: 3, Row: 0, Col: 1}))
	assert.False(t, p.Enqueue(tiling.TileID{Level: 3, Row: 0, Col: 2}))

	close(src.release)
	awaitResult(t, p)
	<-src.started
	awaitResult(t, p)
}

func TestPipelineCloseStopsWorkers(t *testing.T) {
	src := &blockingSource{
		started: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
	p := NewPipeline(src, 1, 2, time.Second, logger.NewNop())

	require.True(t, p.Enqueue(tiling.TileID{Level: 1, Row: 0, Col: 0}))
	<-src.started

	done := make(chan struct{})
	go func() {
		p.Close()
		p.Close() // idempotent
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Close did not stop the in-flight fetch")
	}
}
