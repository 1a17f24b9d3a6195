package inference

import (
	"context"
	"errors"
	"image"
	"image/color"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dyluth/terrain/internal/raster"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testTileSize = 8

func fullMask(size int) *image.Gray {
	m := image.NewGray(image.Rect(0, 0, size, size))
	for i := range m.Pix {
		m.Pix[i] = 0xff
	}
	return m
}

func testRequest() Request {
	return Request{
		Prompt:   "a satellite image of a mountain",
		Image:    raster.Blank(testTileSize),
		Mask:     fullMask(testTileSize),
		Steps:    50,
		Guidance: 7.5,
	}
}

func startGateway(t *testing.T, backend Inpainter) *Gateway {
	g := NewGateway(backend, testTileSize, 4)
	require.NoError(t, g.Start(context.Background()))
	t.Cleanup(func() { g.Close() })
	return g
}

type panicBackend struct{}

func (panicBackend) Inpaint(context.Context, Request) (image.Image, error) {
	panic("CUDA out of memory")
}

type funcBackend func(context.Context, Request) (image.Image, error)

func (f funcBackend) Inpaint(ctx context.Context, r Request) (image.Image, error) { return f(ctx, r) }

// lifecycleBackend records Load/Close calls
type lifecycleBackend struct {
	FillInpainter
	loadErr error
	loaded  atomic.Int32
	closed  atomic.Int32
}

func (b *lifecycleBackend) Load(context.Context) error {
	b.loaded.Add(1)
	return b.loadErr
}

func (b *lifecycleBackend) Close() error {
	b.closed.Add(1)
	return nil
}

func TestGatewayInfer(t *testing.T) {
	t.Run("returns the backend output", func(t *testing.T) {
		g := startGateway(t, NewFillInpainter(color.RGBA{R: 10, G: 200, B: 30}))

		out, err := g.Infer(context.Background(), testRequest())
		require.NoError(t, err)
		assert.Equal(t, image.Rect(0, 0, testTileSize, testTileSize), out.Bounds())
		assert.Equal(t, color.RGBA{R: 10, G: 200, B: 30, A: 0xff}, out.RGBAAt(3, 3))
	})

	t.Run("normalises backend output size", func(t *testing.T) {
		g := startGateway(t, funcBackend(func(context.Context, Request) (image.Image, error) {
			img := image.NewNRGBA(image.Rect(0, 0, testTileSize*4, testTileSize*4))
			for i := 0; i < len(img.Pix); i += 4 {
				img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = 100, 100, 100, 0xff
			}
			return img, nil
		}))

		out, err := g.Infer(context.Background(), testRequest())
		require.NoError(t, err)
		assert.Equal(t, image.Rect(0, 0, testTileSize, testTileSize), out.Bounds())
		assert.Equal(t, uint8(0xff), out.RGBAAt(0, 0).A)
	})

	t.Run("recovers backend panics", func(t *testing.T) {
		g := startGateway(t, panicBackend{})

		_, err := g.Infer(context.Background(), testRequest())
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrBackendPanic))

		// the worker survives and keeps serving
		_, err = g.Infer(context.Background(), testRequest())
		assert.True(t, errors.Is(err, ErrBackendPanic))
	})

	t.Run("surfaces backend errors", func(t *testing.T) {
		g := startGateway(t, funcBackend(func(context.Context, Request) (image.Image, error) {
			return nil, errors.New("model exploded")
		}))

		_, err := g.Infer(context.Background(), testRequest())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "model exploded")
	})

	t.Run("rejects nil output", func(t *testing.T) {
		g := startGateway(t, funcBackend(func(context.Context, Request) (image.Image, error) {
			return nil, nil
		}))

		_, err := g.Infer(context.Background(), testRequest())
		assert.Error(t, err)
	})

	t.Run("rejects invalid requests", func(t *testing.T) {
		g := startGateway(t, NewFillInpainter(color.RGBA{}))

		req := testRequest()
		req.Mask = fullMask(testTileSize + 1)
		_, err := g.Infer(context.Background(), req)
		assert.True(t, errors.Is(err, ErrInvalidRequest))

		req = testRequest()
		req.Image = nil
		_, err = g.Infer(context.Background(), req)
		assert.True(t, errors.Is(err, ErrInvalidRequest))
	})
}

func TestGatewaySerialisesRequests(t *testing.T) {
	var active, maxActive atomic.Int32
	g := startGateway(t, funcBackend(func(_ context.Context, r Request) (image.Image, error) {
		n := active.Add(1)
		defer active.Add(-1)
		for {
			m := maxActive.Load()
			if n <= m || maxActive.CompareAndSwap(m, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		return raster.Clone(r.Image), nil
	}))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := g.Infer(context.Background(), testRequest())
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxActive.Load())
}

func TestGatewayLifecycle(t *testing.T) {
	t.Run("infer before start fails", func(t *testing.T) {
		g := NewGateway(NewFillInpainter(color.RGBA{}), testTileSize, 1)
		_, err := g.Infer(context.Background(), testRequest())
		assert.True(t, errors.Is(err, ErrGatewayNotStarted))
	})

	t.Run("loads once and closes backend", func(t *testing.T) {
		backend := &lifecycleBackend{FillInpainter: *NewFillInpainter(color.RGBA{})}
		g := NewGateway(backend, testTileSize, 1)

		require.NoError(t, g.Start(context.Background()))
		require.NoError(t, g.Start(context.Background()))
		assert.Equal(t, int32(1), backend.loaded.Load())

		require.NoError(t, g.Close())
		require.NoError(t, g.Close())
		assert.Equal(t, int32(1), backend.closed.Load())
	})

	t.Run("load failure prevents start", func(t *testing.T) {
		backend := &lifecycleBackend{loadErr: errors.New("weights missing")}
		g := NewGateway(backend, testTileSize, 1)

		err := g.Start(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "weights missing")

		_, err = g.Infer(context.Background(), testRequest())
		assert.True(t, errors.Is(err, ErrGatewayNotStarted))
	})

	t.Run("infer after close fails", func(t *testing.T) {
		g := NewGateway(NewFillInpainter(color.RGBA{}), testTileSize, 1)
		require.NoError(t, g.Start(context.Background()))
		require.NoError(t, g.Close())

		_, err := g.Infer(context.Background(), testRequest())
		assert.True(t, errors.Is(err, ErrGatewayClosed))
	})

	t.Run("cancelled caller stops waiting", func(t *testing.T) {
		release := make(chan struct{})
		g := startGateway(t, funcBackend(func(_ context.Context, r Request) (image.Image, error) {
			<-release
			return raster.Clone(r.Image), nil
		}))
		defer close(release)

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()

		_, err := g.Infer(ctx, testRequest())
		assert.True(t, errors.Is(err, context.DeadlineExceeded))
	})
}

func TestFillInpainter(t *testing.T) {
	t.Run("paints only masked pixels", func(t *testing.T) {
		img := raster.Blank(4)
		painted := color.RGBA{R: 1, G: 2, B: 3, A: 0xff}
		img.SetRGBA(0, 0, painted)

		mask := image.NewGray(image.Rect(0, 0, 4, 4))
		mask.SetGray(1, 0, color.Gray{Y: 0xff})

		fill := NewFillInpainter(color.RGBA{R: 9, G: 9, B: 9})
		out, err := fill.Inpaint(context.Background(), Request{Image: img, Mask: mask})
		require.NoError(t, err)

		rgba := out.(*image.RGBA)
		assert.Equal(t, painted, rgba.RGBAAt(0, 0))
		assert.Equal(t, color.RGBA{R: 9, G: 9, B: 9, A: 0xff}, rgba.RGBAAt(1, 0))
		assert.True(t, raster.IsUnpainted(rgba.RGBAAt(2, 0)))
		assert.True(t, raster.IsUnpainted(img.RGBAAt(1, 0)), "input must not be mutated")
	})

	t.Run("black fill colour is replaced", func(t *testing.T) {
		fill := NewFillInpainter(color.RGBA{A: 0xff})
		assert.Equal(t, DefaultFillColor, fill.Color)
	})
}
