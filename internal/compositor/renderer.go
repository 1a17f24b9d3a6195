// Package compositor turns a render request into tile writes: it aligns the
// request window, composes the affected tiles, inpaints the unpainted
// pixels and splits the result back into tiles.
package compositor

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log"
	"sync"
	"time"

	"github.com/dyluth/terrain/internal/inference"
	"github.com/dyluth/terrain/internal/raster"
	"github.com/dyluth/terrain/internal/tilestore"
	"github.com/dyluth/terrain/pkg/canvas"
)

// Defaults for generation parameters.
const (
	DefaultSteps       = 50
	DefaultGuidance    = 7.5
	DefaultClearRadius = 1
)

// Sanitizer maps a user caption to the prompt actually sent to the model.
type Sanitizer interface {
	Sanitize(ctx context.Context, caption string) string
}

// Generator fills the masked pixels of an image.
type Generator interface {
	Infer(ctx context.Context, req inference.Request) (*image.RGBA, error)
}

// IndexUpdater records tiles that were written.
type IndexUpdater interface {
	Update(ctx context.Context, space string, written []canvas.Coord) ([]canvas.Coord, error)
}

// Options tunes a Renderer. Zero Steps or Guidance select the defaults; a
// negative ClearRadius selects DefaultClearRadius.
type Options struct {
	Steps    int
	Guidance float64

	// ClearRadius is how many tiles around the cleared quad are also reset.
	ClearRadius int
}

// Request is a render of the tile-sized window whose top-left is (X, Y).
type Request struct {
	X, Y    int
	Caption string
	Space   string
}

// ClearRequest resets the tiles around (X, Y) to blank.
type ClearRequest struct {
	X, Y  int
	Space string
}

// Result describes a completed render.
type Result struct {
	// Tiles are the coordinates written, in row-major order.
	Tiles []canvas.Coord
	// Alignment records the shift and the tiles the window was loaded from.
	Alignment canvas.Alignment
	// Generated is false when the window was fully painted and inference skipped.
	Generated bool
	// Prompt is the sanitized caption sent to the model (empty if not generated).
	Prompt string
}

// Renderer owns the render and clear pipelines.
type Renderer struct {
	store     *tilestore.Store
	index     IndexUpdater
	sanitizer Sanitizer
	generator Generator

	steps       int
	guidance    float64
	clearRadius int
}

// NewRenderer wires a renderer. store may be for any space; requests select
// their own space through it.
func NewRenderer(store *tilestore.Store, index IndexUpdater, sanitizer Sanitizer, generator Generator, opts Options) *Renderer {
	if opts.Steps <= 0 {
		opts.Steps = DefaultSteps
	}
	if opts.Guidance <= 0 {
		opts.Guidance = DefaultGuidance
	}
	if opts.ClearRadius < 0 {
		opts.ClearRadius = DefaultClearRadius
	}
	return &Renderer{
		store:       store,
		index:       index,
		sanitizer:   sanitizer,
		generator:   generator,
		steps:       opts.Steps,
		guidance:    opts.Guidance,
		clearRadius: opts.ClearRadius,
	}
}

// TileSize returns the tile side length in pixels.
func (r *Renderer) TileSize() int {
	return r.store.TileSize()
}

// Render fills the unpainted pixels of the requested window and persists the
// affected tiles. The model is only invoked if the window has unpainted
// pixels. On an inference failure nothing is written. On a store failure the
// tiles written so far are still indexed and an error is returned.
func (r *Renderer) Render(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()
	size := r.TileSize()
	store := r.store.ForSpace(req.Space)

	a, err := canvas.Align(req.X, req.Y, size)
	if err != nil {
		return nil, err
	}

	tiles := r.loadTiles(ctx, store, a.Tiles)
	full, err := Compose(tiles, size)
	if err != nil {
		return nil, err
	}

	offset := a.Offset(size)
	window, err := Crop(full, offset, size)
	if err != nil {
		return nil, err
	}

	result := &Result{Alignment: a}
	mask := DeriveMask(window)
	if !MaskEmpty(mask) {
		prompt := r.sanitizer.Sanitize(ctx, req.Caption)
		generated, err := r.generator.Infer(ctx, inference.Request{
			Prompt:   prompt,
			Image:    window,
			Mask:     mask,
			Steps:    r.steps,
			Guidance: r.guidance,
		})
		if err != nil {
			return nil, fmt.Errorf("inference failed: %w", err)
		}
		window = generated
		result.Generated = true
		result.Prompt = prompt
	}

	Splice(full, window, offset)
	parts, err := Split(full, len(a.Tiles), size)
	if err != nil {
		return nil, err
	}

	written, err := r.persistTiles(ctx, store, a.Tiles, parts)
	r.updateIndex(ctx, store.Space(), written)
	if err != nil {
		return nil, fmt.Errorf("failed to persist tiles: %w", err)
	}

	result.Tiles = written
	log.Printf("[Compositor] Rendered (%d, %d) in space %q at (%d, %d): %d tile(s), generated=%t, took %s",
		req.X, req.Y, store.Space(), a.X, a.Y, len(written), result.Generated, time.Since(start).Round(time.Millisecond))
	return result, nil
}

// Clear resets the four tiles under the quad-aligned window at (X, Y), plus
// ClearRadius tiles around them, to blank. It returns the tiles reset.
func (r *Renderer) Clear(ctx context.Context, req ClearRequest) ([]canvas.Coord, error) {
	size := r.TileSize()
	store := r.store.ForSpace(req.Space)

	a, err := canvas.AlignQuad(req.X, req.Y, size)
	if err != nil {
		return nil, err
	}

	coords := canvas.Neighborhood(a.Tiles, r.clearRadius)
	blank := raster.Blank(size)
	blanks := make([]*image.RGBA, len(coords))
	for i := range blanks {
		blanks[i] = blank
	}

	written, err := r.persistTiles(ctx, store, coords, blanks)
	r.updateIndex(ctx, store.Space(), written)
	if err != nil {
		return nil, fmt.Errorf("failed to clear tiles: %w", err)
	}

	log.Printf("[Compositor] Cleared %d tile(s) around (%d, %d) in space %q", len(written), req.X, req.Y, store.Space())
	return written, nil
}

// loadTiles fetches tiles concurrently. Get never fails; missing tiles are blank.
func (r *Renderer) loadTiles(ctx context.Context, store *tilestore.Store, coords []canvas.Coord) []*image.RGBA {
	tiles := make([]*image.RGBA, len(coords))

	var wg sync.WaitGroup
	for i, c := range coords {
		wg.Add(1)
		go func(i int, c canvas.Coord) {
			defer wg.Done()
			tiles[i] = store.Get(ctx, c)
		}(i, c)
	}
	wg.Wait()

	return tiles
}

// persistTiles writes tiles concurrently and returns the coordinates that
// were stored successfully along with the joined errors of the rest.
func (r *Renderer) persistTiles(ctx context.Context, store *tilestore.Store, coords []canvas.Coord, tiles []*image.RGBA) ([]canvas.Coord, error) {
	errs := make([]error, len(coords))

	var wg sync.WaitGroup
	for i, c := range coords {
		wg.Add(1)
		go func(i int, c canvas.Coord) {
			defer wg.Done()
			errs[i] = store.Put(ctx, c, tiles[i])
		}(i, c)
	}
	wg.Wait()

	written := make([]canvas.Coord, 0, len(coords))
	for i, c := range coords {
		if errs[i] == nil {
			written = append(written, c)
		}
	}
	return written, errors.Join(errs...)
}

func (r *Renderer) updateIndex(ctx context.Context, space string, written []canvas.Coord) {
	if r.index == nil || len(written) == 0 {
		return
	}
	if _, err := r.index.Update(ctx, space, written); err != nil {
		log.Printf("[Compositor] Failed to update tile index for space %q: %v", space, err)
	}
}
