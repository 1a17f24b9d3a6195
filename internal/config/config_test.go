package config

import (
	"image/color"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	path := filepath.Join(t.TempDir(), "terrain.yml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad_ValidConfig(t *testing.T) {
	path := writeConfig(t, `version: "1.0"
canvas:
  name: "world"
  tile_size: 256
redis:
  url: "redis://cache:6379/2"
moderation:
  denylist: ["castle", "moat"]
  oracle:
    endpoint: "http://ollama:11434"
    model: "llama3.2:1b"
    timeout: 15s
inference:
  backend: fill
  fill_color: "#c2b280"
  steps: 25
dispatcher:
  allow_clear: true
  clear_radius: 0
index:
  rescan_interval: 30s
`)

	config, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "world", config.Canvas.Name)
	assert.Equal(t, 256, config.Canvas.TileSize)
	assert.Equal(t, "public/tiles", config.Canvas.PrefixRoot, "unset fields keep defaults")
	assert.Equal(t, "redis://cache:6379/2", config.Redis.URL)
	assert.Equal(t, []string{"castle", "moat"}, config.Moderation.Denylist)
	assert.True(t, config.Moderation.Profanity)
	require.NotNil(t, config.Moderation.Oracle)
	assert.Equal(t, 15*time.Second, config.Moderation.Oracle.Timeout)
	assert.Equal(t, BackendFill, config.Inference.Backend)
	assert.Equal(t, 25, config.Inference.Steps)
	assert.Equal(t, 7.5, config.Inference.Guidance)
	assert.True(t, config.Dispatcher.AllowClear)
	assert.Equal(t, 0, config.Dispatcher.ClearRadius)
	assert.Equal(t, 30*time.Second, config.Index.RescanInterval)
}

func TestLoad_FileNotFound(t *testing.T) {
	config, err := Load("/nonexistent/terrain.yml")
	assert.Error(t, err)
	assert.Nil(t, config)
	assert.Contains(t, err.Error(), "failed to read config")
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeConfig(t, `version: "1.0"
canvas:
  - this is invalid
    yaml syntax
`)

	config, err := Load(path)
	assert.Error(t, err)
	assert.Nil(t, config)
	assert.Contains(t, err.Error(), "failed to parse YAML")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *TerrainConfig)
		wantErr string
	}{
		{"defaults are valid", func(c *TerrainConfig) {}, ""},
		{"wrong version", func(c *TerrainConfig) { c.Version = "2.0" }, "unsupported version"},
		{"empty canvas name", func(c *TerrainConfig) { c.Canvas.Name = "" }, "canvas.name"},
		{"tiny tiles", func(c *TerrainConfig) { c.Canvas.TileSize = 2 }, "canvas.tile_size"},
		{"nested default space", func(c *TerrainConfig) { c.Canvas.DefaultSpace = "a/b" }, "canvas.default_space"},
		{"bad redis url", func(c *TerrainConfig) { c.Redis.URL = "http://nope" }, "redis.url"},
		{"oracle without endpoint", func(c *TerrainConfig) { c.Moderation.Oracle = &OracleConfig{} }, "moderation.oracle.endpoint"},
		{"unknown backend", func(c *TerrainConfig) { c.Inference.Backend = "gpu" }, "inference.backend"},
		{"http backend without endpoint", func(c *TerrainConfig) { c.Inference.Endpoint = "" }, "inference.endpoint"},
		{"fill backend without endpoint", func(c *TerrainConfig) { c.Inference.Backend = BackendFill; c.Inference.Endpoint = "" }, ""},
		{"bad fill colour", func(c *TerrainConfig) { c.Inference.Backend = BackendFill; c.Inference.FillColor = "sand" }, "fill_color"},
		{"zero steps", func(c *TerrainConfig) { c.Inference.Steps = 0 }, "inference.steps"},
		{"negative guidance", func(c *TerrainConfig) { c.Inference.Guidance = -1 }, "inference.guidance"},
		{"zero queue", func(c *TerrainConfig) { c.Inference.QueueSize = 0 }, "inference.queue_size"},
		{"zero concurrency", func(c *TerrainConfig) { c.Dispatcher.MaxConcurrent = 0 }, "dispatcher.max_concurrent"},
		{"negative clear radius", func(c *TerrainConfig) { c.Dispatcher.ClearRadius = -1 }, "dispatcher.clear_radius"},
		{"negative rescan interval", func(c *TerrainConfig) { c.Index.RescanInterval = -time.Second }, "index.rescan_interval"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Default()
			tt.mutate(c)
			err := c.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("REDIS_URL", "redis://env:6379")
	t.Setenv("TERRAIN_CANVAS", "env-canvas")
	t.Setenv("TERRAIN_INFERENCE_BACKEND", BackendFill)
	t.Setenv("TERRAIN_INFERENCE_ENDPOINT", "http://gpu:9000")
	t.Setenv("TERRAIN_MODERATION_ENDPOINT", "http://ollama:11434")

	c := Default()
	c.ApplyEnv()

	assert.Equal(t, "redis://env:6379", c.Redis.URL)
	assert.Equal(t, "env-canvas", c.Canvas.Name)
	assert.Equal(t, BackendFill, c.Inference.Backend)
	assert.Equal(t, "http://gpu:9000", c.Inference.Endpoint)
	require.NotNil(t, c.Moderation.Oracle)
	assert.Equal(t, "http://ollama:11434", c.Moderation.Oracle.Endpoint)
}

func TestLoadOrDefault(t *testing.T) {
	t.Run("missing file yields defaults", func(t *testing.T) {
		t.Setenv("TERRAIN_CANVAS", "from-env")
		config, err := LoadOrDefault(filepath.Join(t.TempDir(), "absent.yml"))
		require.NoError(t, err)
		assert.Equal(t, "from-env", config.Canvas.Name)
		assert.Equal(t, 512, config.Canvas.TileSize)
	})

	t.Run("TERRAIN_CONFIG selects the file", func(t *testing.T) {
		path := writeConfig(t, "version: \"1.0\"\ncanvas:\n  name: picked\n")
		t.Setenv("TERRAIN_CONFIG", path)
		config, err := LoadOrDefault("")
		require.NoError(t, err)
		assert.Equal(t, "picked", config.Canvas.Name)
	})

	t.Run("invalid file is still an error", func(t *testing.T) {
		path := writeConfig(t, "version: \"0.1\"\n")
		_, err := LoadOrDefault(path)
		assert.Error(t, err)
	})
}

func TestParseHexColor(t *testing.T) {
	c, err := ParseHexColor("#c2b280")
	require.NoError(t, err)
	assert.Equal(t, color.RGBA{R: 0xc2, G: 0xb2, B: 0x80, A: 0xff}, c)

	c, err = ParseHexColor("0a0B0c")
	require.NoError(t, err)
	assert.Equal(t, color.RGBA{R: 0x0a, G: 0x0b, B: 0x0c, A: 0xff}, c)

	_, err = ParseHexColor("#fff")
	assert.Error(t, err)
	_, err = ParseHexColor("#gggggg")
	assert.Error(t, err)
}
