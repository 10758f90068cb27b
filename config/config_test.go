package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartshopper/visearch/catalog"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	assert.NoError(t, cfg.Validate())
}

func TestLoadConfigFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "visearch.yml")

	content := []byte(`
server:
  port: 9090
encoder:
  engine: mock
cache:
  type: none
catalog:
  type: bolt
  path: data/test.db
attributes:
  endpoint: http://localhost:9999/extract
`)
	require.NoError(t, os.WriteFile(path, content, 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "mock", cfg.Encoder.Engine)
	assert.Equal(t, "none", cfg.Cache.Type)
	assert.Equal(t, catalog.StoreBolt, cfg.Catalog.Type)
	assert.Equal(t, "http://localhost:9999/extract", cfg.Attributes.Endpoint)

	// untouched sections keep their defaults
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.InDelta(t, 0.6, cfg.Pipeline.Weights.Similarity, 1e-9)
}

func TestLoadConfigEnvOverride(t *testing.T) {
	t.Setenv("VISEARCH_PORT", "7070")
	t.Setenv("VISEARCH_ATTRIBUTES_ENDPOINT", "http://attrs.internal/v1")

	dir := t.TempDir()
	cfg, err := LoadConfig(filepath.Join(dir, "missing.yml"))
	require.NoError(t, err)

	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, "http://attrs.internal/v1", cfg.Attributes.Endpoint)
}

func TestValidateRejectsBadConfig(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad port", func(c *Config) { c.Server.Port = 0 }},
		{"unknown engine", func(c *Config) { c.Encoder.Engine = "tensorflow" }},
		{"onnx without model", func(c *Config) { c.Encoder.ONNX.ImageModelPath = "" }},
		{"redis without addr", func(c *Config) {
			c.Cache.Type = "redis"
			c.Cache.Redis.Addr = ""
		}},
		{"bolt without path", func(c *Config) {
			c.Catalog.Type = catalog.StoreBolt
			c.Catalog.Path = ""
		}},
		{"negative weight", func(c *Config) { c.Pipeline.Weights.Text = -0.1 }},
		{"all-zero weights", func(c *Config) {
			c.Pipeline.Weights.Similarity = 0
			c.Pipeline.Weights.Text = 0
			c.Pipeline.Weights.Attribute = 0
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
