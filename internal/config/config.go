package config

import (
	"errors"
	"fmt"
	"image/color"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is read when no path is given.
const DefaultConfigFile = "terrain.yml"

// Inference backends
const (
	BackendHTTP = "http"
	BackendFill = "fill"
)

// TerrainConfig represents the top-level terrain.yml configuration
type TerrainConfig struct {
	Version    string           `yaml:"version"`
	Canvas     CanvasConfig     `yaml:"canvas"`
	Redis      RedisConfig      `yaml:"redis"`
	Moderation ModerationConfig `yaml:"moderation"`
	Inference  InferenceConfig  `yaml:"inference"`
	Dispatcher DispatcherConfig `yaml:"dispatcher"`
	Index      IndexConfig      `yaml:"index"`
}

// CanvasConfig describes the canvas geometry and storage layout
type CanvasConfig struct {
	Name         string `yaml:"name"`          // Names the events channel
	TileSize     int    `yaml:"tile_size"`     // Tile side in pixels
	PrefixRoot   string `yaml:"prefix_root"`   // Blob prefix above the space
	DefaultSpace string `yaml:"default_space"` // Space used when a request names none
}

// RedisConfig locates the Redis server backing events and blobs
type RedisConfig struct {
	URL string `yaml:"url"`
}

// ModerationConfig tunes the caption sanitizer
type ModerationConfig struct {
	RequiredPrefix string        `yaml:"required_prefix"`
	DefaultCaption string        `yaml:"default_caption"`
	Denylist       []string      `yaml:"denylist"`
	Profanity      bool          `yaml:"profanity"`
	Oracle         *OracleConfig `yaml:"oracle,omitempty"` // Omit to approve everything the local rules accept
}

// OracleConfig points at an Ollama-compatible chat endpoint
type OracleConfig struct {
	Endpoint string        `yaml:"endpoint"`
	Model    string        `yaml:"model"`
	Timeout  time.Duration `yaml:"timeout"`
}

// InferenceConfig selects and tunes the inpainting backend
type InferenceConfig struct {
	Backend   string        `yaml:"backend"` // "http" or "fill"
	Endpoint  string        `yaml:"endpoint"`
	Steps     int           `yaml:"steps"`
	Guidance  float64       `yaml:"guidance"`
	Timeout   time.Duration `yaml:"timeout"`
	QueueSize int           `yaml:"queue_size"`
	FillColor string        `yaml:"fill_color,omitempty"` // "#rrggbb", fill backend only
}

// DispatcherConfig tunes request handling
type DispatcherConfig struct {
	MaxConcurrent int    `yaml:"max_concurrent"`
	HealthAddr    string `yaml:"health_addr"`
	AllowClear    bool   `yaml:"allow_clear"`
	ClearRadius   int    `yaml:"clear_radius"`
}

// IndexConfig tunes index reconciliation
type IndexConfig struct {
	RescanInterval time.Duration `yaml:"rescan_interval"` // 0 disables periodic rescans
}

// Default returns the configuration used for any field terrain.yml omits.
func Default() *TerrainConfig {
	return &TerrainConfig{
		Version: "1.0",
		Canvas: CanvasConfig{
			Name:         "global",
			TileSize:     512,
			PrefixRoot:   "public/tiles",
			DefaultSpace: "global",
		},
		Redis: RedisConfig{URL: "redis://localhost:6379"},
		Moderation: ModerationConfig{
			RequiredPrefix: "a satellite image",
			DefaultCaption: "a satellite image",
			Denylist:       []string{"trump"},
			Profanity:      true,
		},
		Inference: InferenceConfig{
			Backend:   BackendHTTP,
			Endpoint:  "http://localhost:7860",
			Steps:     50,
			Guidance:  7.5,
			Timeout:   5 * time.Minute,
			QueueSize: 16,
		},
		Dispatcher: DispatcherConfig{
			MaxConcurrent: 8,
			HealthAddr:    ":8080",
			AllowClear:    false,
			ClearRadius:   1,
		},
		Index: IndexConfig{RescanInterval: 10 * time.Minute},
	}
}

// Validate performs strict validation on the configuration
func (c *TerrainConfig) Validate() error {
	if c.Version != "1.0" {
		return fmt.Errorf("unsupported version: %s (expected: 1.0)", c.Version)
	}

	if c.Canvas.Name == "" {
		return fmt.Errorf("canvas.name is required")
	}
	if c.Canvas.TileSize < 8 {
		return fmt.Errorf("canvas.tile_size must be at least 8, got %d", c.Canvas.TileSize)
	}
	if c.Canvas.PrefixRoot == "" {
		return fmt.Errorf("canvas.prefix_root is required")
	}
	if c.Canvas.DefaultSpace == "" || strings.Contains(c.Canvas.DefaultSpace, "/") {
		return fmt.Errorf("canvas.default_space must be a non-empty name without '/', got %q", c.Canvas.DefaultSpace)
	}

	if c.Redis.URL == "" {
		return fmt.Errorf("redis.url is required")
	}
	if _, err := redis.ParseURL(c.Redis.URL); err != nil {
		return fmt.Errorf("redis.url is invalid: %w", err)
	}

	if c.Moderation.Oracle != nil && c.Moderation.Oracle.Endpoint == "" {
		return fmt.Errorf("moderation.oracle.endpoint is required when an oracle is configured")
	}

	if err := c.Inference.Validate(); err != nil {
		return err
	}

	if c.Dispatcher.MaxConcurrent < 1 {
		return fmt.Errorf("dispatcher.max_concurrent must be at least 1, got %d", c.Dispatcher.MaxConcurrent)
	}
	if c.Dispatcher.ClearRadius < 0 {
		return fmt.Errorf("dispatcher.clear_radius cannot be negative, got %d", c.Dispatcher.ClearRadius)
	}

	if c.Index.RescanInterval < 0 {
		return fmt.Errorf("index.rescan_interval cannot be negative")
	}

	return nil
}

// Validate checks the inference section
func (i *InferenceConfig) Validate() error {
	switch i.Backend {
	case BackendHTTP:
		if i.Endpoint == "" {
			return fmt.Errorf("inference.endpoint is required for the http backend")
		}
	case BackendFill:
		if i.FillColor != "" {
			if _, err := ParseHexColor(i.FillColor); err != nil {
				return fmt.Errorf("inference.fill_color: %w", err)
			}
		}
	default:
		return fmt.Errorf("inference.backend must be '%s' or '%s', got '%s'", BackendHTTP, BackendFill, i.Backend)
	}

	if i.Steps < 1 {
		return fmt.Errorf("inference.steps must be at least 1, got %d", i.Steps)
	}
	if i.Guidance <= 0 {
		return fmt.Errorf("inference.guidance must be positive, got %g", i.Guidance)
	}
	if i.QueueSize < 1 {
		return fmt.Errorf("inference.queue_size must be at least 1, got %d", i.QueueSize)
	}
	if i.Timeout < 0 {
		return fmt.Errorf("inference.timeout cannot be negative")
	}
	return nil
}

// ParseHexColor parses "#rrggbb" (the '#' is optional) into an opaque colour.
func ParseHexColor(s string) (color.RGBA, error) {
	s = strings.TrimPrefix(s, "#")
	var c color.RGBA
	if len(s) != 6 {
		return c, fmt.Errorf("invalid colour %q (expected #rrggbb)", s)
	}
	if _, err := fmt.Sscanf(s, "%02x%02x%02x", &c.R, &c.G, &c.B); err != nil {
		return c, fmt.Errorf("invalid colour %q: %w", s, err)
	}
	c.A = 0xff
	return c, nil
}

// ApplyEnv overrides fields from the environment:
// REDIS_URL, TERRAIN_CANVAS, TERRAIN_INFERENCE_BACKEND,
// TERRAIN_INFERENCE_ENDPOINT, TERRAIN_MODERATION_ENDPOINT.
func (c *TerrainConfig) ApplyEnv() {
	if v := os.Getenv("REDIS_URL"); v != "" {
		c.Redis.URL = v
	}
	if v := os.Getenv("TERRAIN_CANVAS"); v != "" {
		c.Canvas.Name = v
	}
	if v := os.Getenv("TERRAIN_INFERENCE_BACKEND"); v != "" {
		c.Inference.Backend = v
	}
	if v := os.Getenv("TERRAIN_INFERENCE_ENDPOINT"); v != "" {
		c.Inference.Endpoint = v
	}
	if v := os.Getenv("TERRAIN_MODERATION_ENDPOINT"); v != "" {
		if c.Moderation.Oracle == nil {
			c.Moderation.Oracle = &OracleConfig{}
		}
		c.Moderation.Oracle.Endpoint = v
	}
}

// Load reads terrain.yml from path over the defaults, applies environment
// overrides and validates the result.
func Load(path string) (*TerrainConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	config.ApplyEnv()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// LoadOrDefault is Load, except that a missing file yields the defaults
// (with environment overrides) instead of an error. An empty path selects
// TERRAIN_CONFIG, then DefaultConfigFile.
func LoadOrDefault(path string) (*TerrainConfig, error) {
	if path == "" {
		path = os.Getenv("TERRAIN_CONFIG")
	}
	if path == "" {
		path = DefaultConfigFile
	}

	config, err := Load(path)
	if err == nil || !errors.Is(err, fs.ErrNotExist) {
		return config, err
	}

	config = Default()
	config.ApplyEnv()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return config, nil
}
