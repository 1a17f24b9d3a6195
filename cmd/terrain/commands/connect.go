package commands

import (
	"context"
	"fmt"

	"github.com/dyluth/terrain/internal/config"
	"github.com/dyluth/terrain/internal/printer"
	"github.com/dyluth/terrain/internal/tilestore"
	"github.com/dyluth/terrain/pkg/canvas"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
)

// loadConfig resolves configuration from file, environment and flags.
func loadConfig() (*config.TerrainConfig, error) {
	// .env is optional
	_ = godotenv.Load()

	cfg, err := config.LoadOrDefault(configPath)
	if err != nil {
		return nil, printer.Error(
			"invalid configuration",
			err.Error(),
			[]string{"Check terrain.yml, or pass --config with the right path"},
		)
	}

	if redisURL != "" {
		cfg.Redis.URL = redisURL
	}
	if canvasName != "" {
		cfg.Canvas.Name = canvasName
	}
	return cfg, nil
}

// session holds the Redis-backed handles a command works with.
type session struct {
	cfg    *config.TerrainConfig
	client *canvas.Client
	blobs  *tilestore.RedisBlobs
}

// connect loads configuration and opens a verified connection to Redis.
func connect(ctx context.Context) (*session, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	redisOpts, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		return nil, printer.Error(
			"invalid Redis URL",
			fmt.Sprintf("Could not parse %q: %v", cfg.Redis.URL, err),
			[]string{"Use the form redis://host:port[/db]"},
		)
	}

	client, err := canvas.NewClient(redisOpts, cfg.Canvas.Name)
	if err != nil {
		return nil, fmt.Errorf("failed to create canvas client: %w", err)
	}

	if err := client.Ping(ctx); err != nil {
		client.Close()
		return nil, printer.ErrorWithContext(
			"Redis connection failed",
			fmt.Sprintf("Could not connect to Redis: %v", err),
			map[string]string{"Redis": cfg.Redis.URL, "Canvas": cfg.Canvas.Name},
			[]string{
				"Check that Redis is running and reachable",
				"Point at another server:\n  terrain --redis-url redis://host:6379 ...",
			},
		)
	}

	return &session{cfg: cfg, client: client, blobs: tilestore.NewRedisBlobs(redisOpts)}, nil
}

// store returns the tile store for the selected space.
func (s *session) store() *tilestore.Store {
	return tilestore.New(s.blobs, s.cfg.Canvas.PrefixRoot, s.cfg.Canvas.TileSize).ForSpace(s.space())
}

// space is --space, else the configured default.
func (s *session) space() string {
	if spaceName != "" {
		return spaceName
	}
	return s.cfg.Canvas.DefaultSpace
}

func (s *session) Close() {
	s.blobs.Close()
	s.client.Close()
}
