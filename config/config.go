package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/smartshopper/visearch/api"
	"github.com/smartshopper/visearch/attributes"
	"github.com/smartshopper/visearch/catalog"
	"github.com/smartshopper/visearch/encoder"
	"github.com/smartshopper/visearch/search"
)

// Config represents the complete visearch configuration
type Config struct {
	// Server configuration
	Server ServerConfig `yaml:"server" json:"server"`

	// Encoder configuration
	Encoder EncoderConfig `yaml:"encoder" json:"encoder"`

	// Search pipeline configuration: timeouts, TTLs and fusion weights
	Pipeline search.Config `yaml:"pipeline" json:"pipeline"`

	// Cache configuration
	Cache CacheConfig `yaml:"cache" json:"cache"`

	// Catalog store configuration
	Catalog catalog.StoreConfig `yaml:"catalog" json:"catalog"`

	// Attribute extraction service configuration
	Attributes attributes.Config `yaml:"attributes" json:"attributes"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Host            string        `yaml:"host" json:"host"`
	Port            int           `yaml:"port" json:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout" json:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout" json:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" json:"shutdown_timeout"`

	// MaxUploadBytes caps uploaded image size
	MaxUploadBytes int64 `yaml:"max_upload_bytes" json:"max_upload_bytes"`
}

// EncoderConfig contains embedding engine configuration
type EncoderConfig struct {
	// Engine type: "onnx" or "mock"
	Engine string `yaml:"engine" json:"engine"`

	// ONNX-specific configuration
	ONNX encoder.ONNXConfig `yaml:"onnx" json:"onnx"`

	// Gate controls batching and backpressure in front of the engine
	Gate encoder.GateConfig `yaml:"gate" json:"gate"`
}

// CacheConfig contains cache backend configuration
type CacheConfig struct {
	// Type: "memory", "redis" or "none"
	Type string `yaml:"type" json:"type"`

	// Capacity is the entry limit for the memory backend
	Capacity int `yaml:"capacity" json:"capacity"`

	// CleanupInterval is how often the memory backend sweeps expired entries
	CleanupInterval time.Duration `yaml:"cleanup_interval" json:"cleanup_interval"`

	// Redis-specific configuration
	Redis RedisConfig `yaml:"redis" json:"redis"`
}

// RedisConfig contains Redis connection configuration
type RedisConfig struct {
	Addr     string `yaml:"addr" json:"addr"`
	Password string `yaml:"password" json:"password"`
	DB       int    `yaml:"db" json:"db"`
}

// LoadConfig loads configuration with the following precedence:
// 1. Environment variables
// 2. Configuration file (~/.visearch.yml or specified path)
// 3. Default values
func LoadConfig(configPath string) (*Config, error) {
	config := DefaultConfig()

	if configPath == "" {
		homeDir, err := os.UserHomeDir()
		if err == nil {
			configPath = filepath.Join(homeDir, ".visearch.yml")
		}
	}

	if configPath != "" {
		if err := loadConfigFromFile(configPath, config); err != nil {
			// Only return error if file exists but can't be read
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to load config from %s: %w", configPath, err)
			}
		}
	}

	loadConfigFromEnv(config)

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// loadConfigFromFile loads configuration from a YAML file
func loadConfigFromFile(path string, config *Config) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return err
	}

	return yaml.Unmarshal(data, config)
}

// loadConfigFromEnv loads configuration from environment variables
func loadConfigFromEnv(config *Config) {
	if host := os.Getenv("VISEARCH_HOST"); host != "" {
		config.Server.Host = host
	}
	if port := os.Getenv("VISEARCH_PORT"); port != "" {
		if p, err := parsePort(port); err == nil {
			config.Server.Port = p
		}
	}

	if endpoint := os.Getenv("VISEARCH_ATTRIBUTES_ENDPOINT"); endpoint != "" {
		config.Attributes.Endpoint = endpoint
	}
	if apiKey := os.Getenv("VISEARCH_ATTRIBUTES_API_KEY"); apiKey != "" {
		config.Attributes.APIKey = apiKey
	}

	if addr := os.Getenv("VISEARCH_REDIS_ADDR"); addr != "" {
		config.Cache.Type = "redis"
		config.Cache.Redis.Addr = addr
	}

	if storeType := os.Getenv("VISEARCH_CATALOG_TYPE"); storeType != "" {
		config.Catalog.Type = catalog.StoreType(storeType)
	}
	if path := os.Getenv("VISEARCH_CATALOG_PATH"); path != "" {
		config.Catalog.Path = path
	}
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			MaxUploadBytes:  10 << 20,
		},
		Encoder: EncoderConfig{
			Engine: "onnx",
			ONNX: encoder.ONNXConfig{
				ImageModelPath: "models/clip-vision.onnx",
				TextModelPath:  "models/clip-text.onnx",
				ModelVersion:   "clip-vit-b32-v1",
				Dimension:      512,
				UseGPU:         true,
			},
			Gate: encoder.DefaultGateConfig(),
		},
		Pipeline: search.DefaultConfig(),
		Cache: CacheConfig{
			Type:            "memory",
			Capacity:        4096,
			CleanupInterval: time.Minute,
			Redis: RedisConfig{
				Addr: "localhost:6379",
			},
		},
		Catalog: catalog.StoreConfig{
			Type: catalog.StoreMemory,
			Path: "data/catalog.db",
		},
		Attributes: attributes.Config{
			Timeout: 2 * time.Second,
		},
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port number: %d", c.Server.Port)
	}

	switch c.Encoder.Engine {
	case "onnx":
		if c.Encoder.ONNX.ImageModelPath == "" {
			return fmt.Errorf("onnx image model path is required when using onnx engine")
		}
		if c.Encoder.ONNX.Dimension <= 0 {
			return fmt.Errorf("onnx embedding dimension must be positive")
		}
	case "mock":
	default:
		return fmt.Errorf("unknown encoder engine: %s", c.Encoder.Engine)
	}

	switch c.Cache.Type {
	case "memory", "none":
	case "redis":
		if c.Cache.Redis.Addr == "" {
			return fmt.Errorf("redis address is required when using redis cache")
		}
	default:
		return fmt.Errorf("unknown cache type: %s", c.Cache.Type)
	}

	switch c.Catalog.Type {
	case catalog.StoreMemory:
	case catalog.StoreBolt, catalog.StoreBadger:
		if c.Catalog.Path == "" {
			return fmt.Errorf("catalog path is required for %s store", c.Catalog.Type)
		}
	default:
		return fmt.Errorf("unknown catalog store type: %s", c.Catalog.Type)
	}

	w := c.Pipeline.Weights
	if w.Similarity < 0 || w.Text < 0 || w.Attribute < 0 {
		return fmt.Errorf("fusion weights must be non-negative")
	}
	if w.Similarity == 0 && w.Text == 0 && w.Attribute == 0 {
		return fmt.Errorf("at least one fusion weight must be positive")
	}

	return nil
}

// ToServerConfig converts to api.ServerConfig
func (s *ServerConfig) ToServerConfig() api.ServerConfig {
	return api.ServerConfig{
		Host:            s.Host,
		Port:            s.Port,
		ReadTimeout:     s.ReadTimeout,
		WriteTimeout:    s.WriteTimeout,
		IdleTimeout:     60 * time.Second,
		ShutdownTimeout: s.ShutdownTimeout,
		MaxUploadBytes:  s.MaxUploadBytes,
	}
}

// parsePort parses a port string to int
func parsePort(s string) (int, error) {
	var port int
	_, err := fmt.Sscanf(s, "%d", &port)
	return port, err
}
