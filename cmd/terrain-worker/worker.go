package main

import (
	"context"
	"fmt"
	"image/color"
	"log"
	"sync"

	"github.com/dyluth/terrain/internal/compositor"
	"github.com/dyluth/terrain/internal/config"
	"github.com/dyluth/terrain/internal/dispatcher"
	"github.com/dyluth/terrain/internal/index"
	"github.com/dyluth/terrain/internal/inference"
	"github.com/dyluth/terrain/internal/moderation"
	"github.com/dyluth/terrain/internal/tilestore"
	"github.com/dyluth/terrain/pkg/canvas"
	"github.com/redis/go-redis/v9"
)

// worker owns every long-lived component of a terrain worker process.
type worker struct {
	cfg        *config.TerrainConfig
	client     *canvas.Client
	blobs      *tilestore.RedisBlobs
	gateway    *inference.Gateway
	maintainer *index.Maintainer
	engine     *dispatcher.Engine

	closeOnce sync.Once
}

// newWorker connects to Redis, starts the inference gateway and assembles
// the render pipeline. Anything already opened is closed on failure.
func newWorker(ctx context.Context, cfg *config.TerrainConfig) (_ *worker, err error) {
	redisOpts, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	w := &worker{cfg: cfg}
	defer func() {
		if err != nil {
			w.Close()
		}
	}()

	w.client, err = canvas.NewClient(redisOpts, cfg.Canvas.Name)
	if err != nil {
		return nil, fmt.Errorf("failed to create canvas client: %w", err)
	}
	if err := w.client.Ping(ctx); err != nil {
		return nil, fmt.Errorf("redis not accessible: %w", err)
	}

	w.blobs = tilestore.NewRedisBlobs(redisOpts)
	store := tilestore.New(w.blobs, cfg.Canvas.PrefixRoot, cfg.Canvas.TileSize)
	w.maintainer = index.NewMaintainer(store)

	backend, err := newInpainter(cfg.Inference)
	if err != nil {
		return nil, err
	}
	w.gateway = inference.NewGateway(backend, cfg.Canvas.TileSize, cfg.Inference.QueueSize)
	if err := w.gateway.Start(ctx); err != nil {
		return nil, err
	}

	renderer := compositor.NewRenderer(store, w.maintainer, newSanitizer(cfg.Moderation), w.gateway, compositor.Options{
		Steps:       cfg.Inference.Steps,
		Guidance:    cfg.Inference.Guidance,
		ClearRadius: cfg.Dispatcher.ClearRadius,
	})

	w.engine = dispatcher.NewEngine(w.client, renderer, w.maintainer, dispatcher.Options{
		MaxConcurrent: cfg.Dispatcher.MaxConcurrent,
		AllowClear:    cfg.Dispatcher.AllowClear,
		DefaultSpace:  cfg.Canvas.DefaultSpace,
		HealthAddr:    cfg.Dispatcher.HealthAddr,
	})

	return w, nil
}

func newInpainter(cfg config.InferenceConfig) (inference.Inpainter, error) {
	switch cfg.Backend {
	case config.BackendFill:
		var c color.RGBA
		if cfg.FillColor != "" {
			var err error
			if c, err = config.ParseHexColor(cfg.FillColor); err != nil {
				return nil, err
			}
		}
		return inference.NewFillInpainter(c), nil
	case config.BackendHTTP:
		return inference.NewHTTPInpainter(cfg.Endpoint, cfg.Timeout), nil
	}
	return nil, fmt.Errorf("unknown inference backend '%s'", cfg.Backend)
}

func newSanitizer(cfg config.ModerationConfig) *moderation.Sanitizer {
	opts := moderation.Options{
		DefaultCaption: cfg.DefaultCaption,
		RequiredPrefix: cfg.RequiredPrefix,
		Denylist:       cfg.Denylist,
	}
	if !cfg.Profanity {
		opts.Profanity = moderation.NoProfanity{}
	}
	if cfg.Oracle != nil {
		chat := moderation.NewChatOracle(cfg.Oracle.Endpoint, cfg.Oracle.Model, cfg.Oracle.Timeout)
		opts.Oracle = moderation.NewCachedOracle(chat, moderation.NewMapCache())
		log.Printf("[Moderation] Oracle enabled at %s", cfg.Oracle.Endpoint)
	}
	return moderation.NewSanitizer(opts)
}

// Run starts periodic index reconciliation and dispatches canvas events
// until ctx is cancelled.
func (w *worker) Run(ctx context.Context) error {
	if interval := w.cfg.Index.RescanInterval; interval > 0 {
		go w.maintainer.RunPeriodic(ctx, interval)
	}
	return w.engine.Run(ctx)
}

// Close releases the gateway and Redis connections. Safe to call more than once.
func (w *worker) Close() {
	w.closeOnce.Do(func() {
		if w.gateway != nil {
			w.gateway.Close()
		}
		if w.blobs != nil {
			w.blobs.Close()
		}
		if w.client != nil {
			w.client.Close()
		}
	})
}
