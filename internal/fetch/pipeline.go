package fetch

import (
	"context"
	"errors"
	"image"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"globe-viewer/internal/tiling"
	"globe-viewer/pkg/logger"
	"globe-viewer/pkg/metrics"
)

// Result is the outcome of one fetch+decode attempt, delivered on the
// pipeline's results channel. Exactly one of Image and Err is set.
type Result struct {
	ID    tiling.TileID
	Image image.Image
	Err   error
}

// Failed reports whether the attempt failed.
func (r Result) Failed() bool {
	return r.Err != nil
}

// DecodeFailure reports whether the failure came from decoding rather than
// fetching. Decode failures are permanent for the session.
func (r Result) DecodeFailure() bool {
	var de *DecodeError
	return errors.As(r.Err, &de)
}

// NotFound reports whether the source has no imagery for the tile.
func (r Result) NotFound() bool {
	return errors.Is(r.Err, ErrNotFound)
}

// Pipeline resolves tile identifiers to decoded images on a bounded worker
// pool, decoupled from the frame cadence. Requests beyond the queue
// capacity are rejected rather than blocking the caller; completions are
// delivered on a buffered channel that the frame thread drains.
type Pipeline struct {
	source  TileSource
	timeout time.Duration

	tasks   chan tiling.TileID
	results chan Result

	group  *errgroup.Group
	ctx    context.Context
	cancel context.CancelFunc

	closeOnce sync.Once
	log       logger.Logger
}

// NewPipeline starts a pipeline with the given number of fetch workers.
// queueSize bounds the number of accepted-but-not-started fetches.
func NewPipeline(source TileSource, workers, queueSize int, timeout time.Duration, log logger.Logger) *Pipeline {
	if workers < 1 {
		workers = 1
	}
	if queueSize < workers {
		queueSize = workers * 4
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())
	group, gctx := errgroup.WithContext(ctx)

	p := &Pipeline{
		source:  source,
		timeout: timeout,
		tasks:   make(chan tiling.TileID, queueSize),
		results: make(chan Result, queueSize+workers),
		group:   group,
		ctx:     gctx,
		cancel:  cancel,
		log:     log,
	}

	for i := 0; i < workers; i++ {
		group.Go(p.worker)
	}

	return p
}

// Enqueue submits a tile for fetching. It never blocks: when the queue is
// full the request is rejected and the caller re-requests on a later frame.
func (p *Pipeline) Enqueue(id tiling.TileID) bool {
	select {
	case p.tasks <- id:
		return true
	default:
		return false
	}
}

// Results returns the completion channel. Consumers must drain it without
// blocking the workers for long; the channel is buffered to cover a full
// queue of in-flight work.
func (p *Pipeline) Results() <-chan Result {
	return p.results
}

// Close stops the workers and waits for them to exit. In-flight fetches are
// cancelled; their results are discarded.
func (p *Pipeline) Close() {
	p.closeOnce.Do(func() {
		p.cancel()
		p.group.Wait()
	})
}

func (p *Pipeline) worker() error {
	for {
		select {
		case <-p.ctx.Done():
			return nil
		case id := <-p.tasks:
			p.process(id)
		}
	}
}

// process runs one fetch+decode attempt and reports the result.
func (p *Pipeline) process(id tiling.TileID) {
	metrics.TilesFetched.Inc()
	start := time.Now()

	ctx, cancel := context.WithTimeout(p.ctx, p.timeout)
	defer cancel()

	res := Result{ID: id}
	data, err := p.source.Fetch(ctx, id)
	if err != nil {
		res.Err = err
	} else if img, decErr := Decode(data); decErr != nil {
		res.Err = decErr
	} else {
		res.Image = img
	}

	if res.Failed() {
		metrics.FetchFailures.WithLabelValues(failureReason(res)).Inc()
		p.log.Debug("tile fetch failed", "tile", id.String(), "source", p.source.Name(), "error", res.Err)
	} else {
		metrics.FetchDuration.Observe(time.Since(start).Seconds())
	}

	select {
	case p.results <- res:
	case <-p.ctx.Done():
	}
}

func failureReason(res Result) string {
	switch {
	case res.NotFound():
		return "not_found"
	case res.DecodeFailure():
		return "decode"
	case errors.Is(res.Err, context.DeadlineExceeded):
		return "timeout"
	default:
		return "transport"
	}
}
