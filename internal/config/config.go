// Package config loads the bindbd configuration from an optional TOML file
// with environment overrides.
package config

import (
	"os"

	"github.com/BurntSushi/toml"

	"github.com/reajuria/bindb/internal/apperr"
)

// StoragePathEnv selects the base storage directory, overriding the config
// file.
const StoragePathEnv = "BINDB_STORAGE_PATH"

// Config is the full bindbd configuration.
type Config struct {
	Server  Server  `toml:"server"`
	Storage Storage `toml:"storage"`
	Table   Table   `toml:"table"`
	Logging Logging `toml:"logging"`
}

// Server configures the HTTP listener.
type Server struct {
	Addr string `toml:"addr"`
}

// Storage configures the on-disk layout.
type Storage struct {
	Path string `toml:"path"`
}

// Table configures the per-table runtime.
type Table struct {
	CacheCapacity    int `toml:"cache_capacity"`
	BufferMaxRecords int `toml:"buffer_max_records"`
	BufferMaxBytes   int `toml:"buffer_max_bytes"`
}

// Logging configures the log pipeline.
type Logging struct {
	Level  string `toml:"level"`
	SeqURL string `toml:"seq_url"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Server:  Server{Addr: ":8080"},
		Storage: Storage{Path: "data"},
		Logging: Logging{Level: "info"},
	}
}

// Load reads the configuration from path, applying defaults and environment
// overrides. An empty path skips the file entirely.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return cfg, apperr.Wrap(apperr.KindValidation, "parse config file", err).
				With("path", path)
		}
	}
	if p := os.Getenv(StoragePathEnv); p != "" {
		cfg.Storage.Path = p
	}
	return cfg, nil
}
