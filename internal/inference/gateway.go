// Package inference adapts inpainting requests from the compositor to an
// external generative model. The Gateway owns the model backend for the life
// of the process and feeds it one request at a time.
package inference

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"log"
	"sync"
	"sync/atomic"

	"github.com/dyluth/terrain/internal/raster"
)

var (
	// ErrGatewayClosed is returned for requests made after Close.
	ErrGatewayClosed = errors.New("inference gateway closed")

	// ErrGatewayNotStarted is returned for requests made before Start.
	ErrGatewayNotStarted = errors.New("inference gateway not started")

	// ErrBackendPanic wraps a panic raised inside the model backend.
	ErrBackendPanic = errors.New("inference backend panicked")

	// ErrInvalidRequest is returned for requests missing an image or mask.
	ErrInvalidRequest = errors.New("invalid inference request")
)

// Request is one inpainting call: fill the white pixels of Mask in Image
// with content matching Prompt.
type Request struct {
	Prompt   string
	Image    *image.RGBA
	Mask     *image.Gray
	Steps    int
	Guidance float64
}

// Validate checks that the image and mask are present and the same size.
func (r Request) Validate() error {
	if r.Image == nil || r.Mask == nil {
		return fmt.Errorf("%w: image and mask are required", ErrInvalidRequest)
	}
	if r.Image.Bounds().Size() != r.Mask.Bounds().Size() {
		return fmt.Errorf("%w: image is %v but mask is %v", ErrInvalidRequest, r.Image.Bounds().Size(), r.Mask.Bounds().Size())
	}
	return nil
}

// Inpainter is the capability the model backend provides.
type Inpainter interface {
	Inpaint(ctx context.Context, req Request) (image.Image, error)
}

// Loader is implemented by backends that need one-off initialisation
// (connecting, loading weights) before the first request.
type Loader interface {
	Load(ctx context.Context) error
}

type job struct {
	ctx   context.Context
	req   Request
	reply chan jobResult
}

type jobResult struct {
	img *image.RGBA
	err error
}

// Gateway serialises inference onto a single worker goroutine so that one
// model instance serves one request at a time; further requests queue.
// Backend panics are recovered and reported as ErrBackendPanic.
type Gateway struct {
	backend  Inpainter
	tileSize int

	jobs    chan *job
	done    chan struct{}
	started atomic.Bool
	wg      sync.WaitGroup

	startOnce sync.Once
	closeOnce sync.Once
}

// NewGateway creates a gateway in front of backend. Outputs are normalised to
// opaque tileSize×tileSize rasters. queueSize bounds the number of requests
// waiting for the worker (minimum 1).
func NewGateway(backend Inpainter, tileSize, queueSize int) *Gateway {
	if queueSize < 1 {
		queueSize = 1
	}
	return &Gateway{
		backend:  backend,
		tileSize: tileSize,
		jobs:     make(chan *job, queueSize),
		done:     make(chan struct{}),
	}
}

// Start initialises the backend (if it implements Loader) and launches the
// worker. Calling Start more than once is a no-op.
func (g *Gateway) Start(ctx context.Context) error {
	var err error
	g.startOnce.Do(func() {
		if loader, ok := g.backend.(Loader); ok {
			if err = loader.Load(ctx); err != nil {
				err = fmt.Errorf("failed to load inference backend: %w", err)
				return
			}
		}

		g.wg.Add(1)
		go g.worker()
		g.started.Store(true)
		log.Printf("[Inference] Gateway started (backend=%T, tile_size=%d)", g.backend, g.tileSize)
	})
	return err
}

// Close stops the worker after the request in flight (if any) and closes the
// backend if it implements io.Closer. Queued requests fail with ErrGatewayClosed.
func (g *Gateway) Close() error {
	var err error
	g.closeOnce.Do(func() {
		close(g.done)
		g.wg.Wait()
		if closer, ok := g.backend.(io.Closer); ok {
			err = closer.Close()
		}
		log.Printf("[Inference] Gateway stopped")
	})
	return err
}

// Infer queues req and waits for the worker to process it.
func (g *Gateway) Infer(ctx context.Context, req Request) (*image.RGBA, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if !g.started.Load() {
		return nil, ErrGatewayNotStarted
	}

	j := &job{ctx: ctx, req: req, reply: make(chan jobResult, 1)}

	select {
	case g.jobs <- j:
	case <-g.done:
		return nil, ErrGatewayClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case res := <-j.reply:
		return res.img, res.err
	case <-g.done:
		// The worker may have finished this job just before stopping.
		select {
		case res := <-j.reply:
			return res.img, res.err
		default:
			return nil, ErrGatewayClosed
		}
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (g *Gateway) worker() {
	defer g.wg.Done()

	for {
		select {
		case <-g.done:
			return
		case j := <-g.jobs:
			if err := j.ctx.Err(); err != nil {
				j.reply <- jobResult{err: err}
				continue
			}
			img, err := g.process(j.ctx, j.req)
			j.reply <- jobResult{img: img, err: err}
		}
	}
}

func (g *Gateway) process(ctx context.Context, req Request) (img *image.RGBA, err error) {
	defer func() {
		if r := recover(); r != nil {
			img = nil
			err = fmt.Errorf("%w: %v", ErrBackendPanic, r)
			log.Printf("[Inference] Recovered backend panic: %v", r)
		}
	}()

	out, err := g.backend.Inpaint(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("inpainting failed: %w", err)
	}
	if out == nil {
		return nil, fmt.Errorf("inpainting failed: backend returned no image")
	}

	return raster.Fit(out, g.tileSize), nil
}
