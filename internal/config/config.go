// Package config loads the registry configuration from file, environment
// and defaults, in that order of increasing precedence for overrides.
package config

import (
	"fmt"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config represents the top-level configuration for the registry server.
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Store    StoreConfig    `koanf:"store"`
	Registry RegistryConfig `koanf:"registry"`
}

// ServerConfig holds the HTTP server configuration.
type ServerConfig struct {
	Port int    `koanf:"port"`
	Host string `koanf:"host"`
	Mode string `koanf:"mode"` // "debug" or "release"
}

// StoreConfig selects and configures the persistence backend.
type StoreConfig struct {
	// Type is one of "memory", "file" or "postgres".
	Type string `koanf:"type"`

	// Dir is the log directory for the file backend.
	Dir string `koanf:"dir"`

	// DSN and pool settings apply to the postgres backend.
	DSN          string `koanf:"dsn"`
	MaxOpenConns int    `koanf:"max_open_conns"`
	MaxIdleConns int    `koanf:"max_idle_conns"`
	AutoMigrate  bool   `koanf:"auto_migrate"`
}

// RegistryConfig holds core registry settings.
type RegistryConfig struct {
	// DefaultCompatibility seeds the global default mode on first start.
	DefaultCompatibility string `koanf:"default_compatibility"`

	// CacheCapacity bounds the schema-by-id LRU cache.
	CacheCapacity int `koanf:"cache_capacity"`

	// Metrics toggles the Prometheus /metrics endpoint.
	Metrics bool `koanf:"metrics"`
}

// Load loads the configuration from the given file path and environment
// variables. REGISTRY_SERVER__PORT=9090 overrides server.port.
func Load(configPath string) (*Config, error) {
	k := koanf.New(".")

	// 1. Defaults
	defaults := map[string]interface{}{
		"server.port":                    8081,
		"server.host":                    "0.0.0.0",
		"server.mode":                    "release",
		"store.type":                     "memory",
		"store.dir":                      "./data",
		"store.dsn":                      "",
		"store.max_open_conns":           25,
		"store.max_idle_conns":           25,
		"store.auto_migrate":             true,
		"registry.default_compatibility": "BACKWARD",
		"registry.cache_capacity":        1000,
		"registry.metrics":               true,
	}
	for key, value := range defaults {
		k.Set(key, value)
	}

	// 2. Load from file
	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	// 3. Load from environment variables
	if err := k.Load(env.Provider("REGISTRY_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(
			strings.TrimPrefix(s, "REGISTRY_")), "__", ".", -1)
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}
