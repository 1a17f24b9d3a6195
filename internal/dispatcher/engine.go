// Package dispatcher connects the canvas event channel to the renderer: it
// decodes inbound requests, runs each on its own goroutine and publishes the
// outcome back on the channel.
package dispatcher

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"runtime/debug"
	"sync"
	"time"

	"github.com/dyluth/terrain/internal/compositor"
	"github.com/dyluth/terrain/pkg/canvas"
)

// DefaultMaxConcurrent bounds in-flight handlers when Options leaves it unset.
const DefaultMaxConcurrent = 8

// Renderer is the work the dispatcher hands requests to.
type Renderer interface {
	Render(ctx context.Context, req compositor.Request) (*compositor.Result, error)
	Clear(ctx context.Context, req compositor.ClearRequest) ([]canvas.Coord, error)
}

// IndexReader serves the tile index of a space.
type IndexReader interface {
	Current(ctx context.Context, space string) ([]canvas.Coord, error)
}

// Options configures an Engine.
type Options struct {
	// MaxConcurrent bounds handlers in flight; further events wait.
	MaxConcurrent int
	// AllowClear enables clearTiles handling.
	AllowClear bool
	// DefaultSpace replaces an empty space in requests.
	DefaultSpace string
	// HealthAddr is the listen address of the health server; empty disables it.
	HealthAddr string
}

// Engine is the request dispatcher.
type Engine struct {
	client       *canvas.Client
	renderer     Renderer
	index        IndexReader
	healthServer *HealthServer
	opts         Options

	slots chan struct{}
	wg    sync.WaitGroup
}

// NewEngine creates a dispatcher for the canvas behind client.
func NewEngine(client *canvas.Client, renderer Renderer, index IndexReader, opts Options) *Engine {
	if opts.MaxConcurrent < 1 {
		opts.MaxConcurrent = DefaultMaxConcurrent
	}
	if opts.DefaultSpace == "" {
		opts.DefaultSpace = canvas.DefaultSpace
	}

	e := &Engine{
		client:   client,
		renderer: renderer,
		index:    index,
		opts:     opts,
		slots:    make(chan struct{}, opts.MaxConcurrent),
	}
	if opts.HealthAddr != "" {
		e.healthServer = NewHealthServer(client, opts.HealthAddr)
	}
	return e
}

// Run processes canvas events until ctx is cancelled, then waits for
// in-flight handlers to finish. Handlers are not cancelled by ctx.
func (e *Engine) Run(ctx context.Context) error {
	if e.healthServer != nil {
		if err := e.healthServer.Start(); err != nil {
			return fmt.Errorf("failed to start health server: %w", err)
		}
		defer e.healthServer.Shutdown(context.Background())
	}

	log.Printf("[Dispatcher] Starting for canvas '%s' (max_concurrent=%d, allow_clear=%t)",
		e.client.CanvasName(), e.opts.MaxConcurrent, e.opts.AllowClear)

	subscription, err := e.client.Subscribe(ctx)
	if err != nil {
		return fmt.Errorf("failed to subscribe to canvas events: %w", err)
	}
	defer subscription.Close()
	defer e.wg.Wait()

	log.Printf("[Dispatcher] Subscribed to %s", canvas.EventsChannel(e.client.CanvasName()))

	for {
		select {
		case <-ctx.Done():
			log.Printf("[Dispatcher] Shutting down, waiting for in-flight requests...")
			return nil

		case env, ok := <-subscription.Events():
			if !ok {
				log.Printf("[Dispatcher] Subscription closed")
				return nil
			}
			e.dispatch(ctx, env)

		case err, ok := <-subscription.Errors():
			if !ok {
				log.Printf("[Dispatcher] Error channel closed")
				return nil
			}
			log.Printf("[Dispatcher] Subscription error: %v", err)
		}
	}
}

// dispatch hands env to a handler goroutine once a slot is free.
func (e *Engine) dispatch(ctx context.Context, env *canvas.Envelope) {
	if !env.Name.Inbound() {
		return
	}

	select {
	case e.slots <- struct{}{}:
	case <-ctx.Done():
		log.Printf("[Dispatcher] Dropping %s received during shutdown", env.Name)
		return
	}

	e.wg.Add(1)
	go func() {
		defer func() {
			<-e.slots
			e.wg.Done()
		}()
		e.handle(context.WithoutCancel(ctx), env)
	}()
}

func (e *Engine) handle(ctx context.Context, env *canvas.Envelope) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[Dispatcher] Recovered panic handling %s: %v\n%s", env.Name, r, debug.Stack())
		}
	}()

	switch env.Name {
	case canvas.EventRenderTile:
		e.handleRender(ctx, env)
	case canvas.EventClearTiles:
		e.handleClear(ctx, env)
	case canvas.EventIndexTiles:
		e.handleIndex(ctx, env)
	}
}

func (e *Engine) space(s string) string {
	if s == "" {
		return e.opts.DefaultSpace
	}
	return s
}

func (e *Engine) handleRender(ctx context.Context, env *canvas.Envelope) {
	var req canvas.RenderTile
	if err := env.Decode(&req); err != nil {
		log.Printf("[Dispatcher] Dropping malformed renderTile: %v", err)
		return
	}
	if err := req.Validate(); err != nil {
		log.Printf("[Dispatcher] Dropping invalid renderTile: %v", err)
		return
	}

	e.logEvent("render_received", map[string]interface{}{
		"request_id": req.ID,
		"x":          req.X,
		"y":          req.Y,
		"space":      e.space(req.Space),
	})

	start := time.Now()
	tiles, err := e.render(ctx, req)
	if err != nil {
		log.Printf("[Dispatcher] Error rendering tile for request %s: %v", req.ID, err)
		e.logEvent("render_failed", map[string]interface{}{
			"request_id": req.ID,
			"error":      err.Error(),
		})
		tiles = nil
	}

	if err := e.client.Publish(ctx, canvas.EventTilesUpdated, canvas.NewTilesUpdated(tiles, req.ID, req.Space)); err != nil {
		log.Printf("[Dispatcher] Failed to publish tilesUpdated for request %s: %v", req.ID, err)
		return
	}

	e.logEvent("tiles_updated", map[string]interface{}{
		"request_id": req.ID,
		"tiles":      len(tiles),
		"latency_ms": time.Since(start).Milliseconds(),
	})
}

// render runs one render, turning a panic into an error so the request
// still gets its (empty) tilesUpdated reply.
func (e *Engine) render(ctx context.Context, req canvas.RenderTile) (tiles []canvas.Coord, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("render panicked: %v", r)
		}
	}()

	res, err := e.renderer.Render(ctx, compositor.Request{
		X:       req.X,
		Y:       req.Y,
		Caption: req.Caption,
		Space:   e.space(req.Space),
	})
	if err != nil {
		return nil, err
	}
	return res.Tiles, nil
}

func (e *Engine) handleClear(ctx context.Context, env *canvas.Envelope) {
	if !e.opts.AllowClear {
		log.Printf("[Dispatcher] Ignoring clearTiles: clearing is disabled")
		return
	}

	var req canvas.ClearTiles
	if err := env.Decode(&req); err != nil {
		log.Printf("[Dispatcher] Dropping malformed clearTiles: %v", err)
		return
	}

	tiles, err := e.renderer.Clear(ctx, compositor.ClearRequest{X: req.X, Y: req.Y, Space: e.space(req.Space)})
	if err != nil {
		log.Printf("[Dispatcher] Error clearing tiles around (%d, %d): %v", req.X, req.Y, err)
		tiles = nil
	}

	if err := e.client.Publish(ctx, canvas.EventTilesUpdated, canvas.NewTilesUpdated(tiles, "", req.Space)); err != nil {
		log.Printf("[Dispatcher] Failed to publish tilesUpdated after clear: %v", err)
		return
	}

	e.logEvent("tiles_cleared", map[string]interface{}{
		"x":     req.X,
		"y":     req.Y,
		"tiles": len(tiles),
	})
}

func (e *Engine) handleIndex(ctx context.Context, env *canvas.Envelope) {
	var req canvas.IndexTiles
	if err := env.Decode(&req); err != nil {
		log.Printf("[Dispatcher] Dropping malformed indexTiles: %v", err)
		return
	}

	tiles, err := e.index.Current(ctx, e.space(req.Space))
	if err != nil {
		log.Printf("[Dispatcher] Error reading tile index: %v", err)
		return
	}

	if err := e.client.Publish(ctx, canvas.EventTilesIndex, canvas.NewTilesIndex(tiles, req.Space)); err != nil {
		log.Printf("[Dispatcher] Failed to publish tilesIndex: %v", err)
		return
	}

	e.logEvent("index_published", map[string]interface{}{
		"space": e.space(req.Space),
		"tiles": len(tiles),
	})
}

// logEvent writes one structured JSON log line.
func (e *Engine) logEvent(eventType string, data map[string]interface{}) {
	data["timestamp"] = time.Now().UTC().Format(time.RFC3339)
	data["level"] = "info"
	data["component"] = "dispatcher"
	data["event_type"] = eventType
	data["canvas"] = e.client.CanvasName()

	jsonData, err := json.Marshal(data)
	if err != nil {
		log.Printf("[Dispatcher] Failed to marshal log event: %v", err)
		return
	}

	log.Println(string(jsonData))
}
