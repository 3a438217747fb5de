// Package config loads server configuration from defaults overridden by
// CLIPVAULT_* environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

type Config struct {
	Server  ServerConfig
	Storage StorageConfig
	Index   IndexConfig
	Admin   AdminConfig
	Log     LogConfig
}

type ServerConfig struct {
	Port int
}

type StorageConfig struct {
	DataDir string
}

type IndexConfig struct {
	// Path of the bleve index directory. Defaults to clips.bleve inside
	// the data directory.
	Path string
}

type AdminConfig struct {
	// Token guards the admin endpoints; when empty they are open, which
	// is acceptable for a localhost deployment.
	Token string
}

type LogConfig struct {
	Level string // "info" or "debug"
}

func defaults() Config {
	return Config{
		Server: ServerConfig{Port: 4600},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Log: LogConfig{Level: "info"},
	}
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".clipvault"
	}
	return filepath.Join(home, ".clipvault")
}

// Load builds the configuration from defaults and environment overrides:
// CLIPVAULT_PORT, CLIPVAULT_DATA_DIR, CLIPVAULT_INDEX_PATH,
// CLIPVAULT_ADMIN_TOKEN, CLIPVAULT_LOG_LEVEL.
func Load() (Config, error) {
	cfg := defaults()

	if v := os.Getenv("CLIPVAULT_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil || port <= 0 || port > 65535 {
			return Config{}, fmt.Errorf("invalid CLIPVAULT_PORT %q", v)
		}
		cfg.Server.Port = port
	}
	if v := os.Getenv("CLIPVAULT_DATA_DIR"); v != "" {
		cfg.Storage.DataDir = v
	}
	if v := os.Getenv("CLIPVAULT_INDEX_PATH"); v != "" {
		cfg.Index.Path = v
	}
	if v := os.Getenv("CLIPVAULT_ADMIN_TOKEN"); v != "" {
		cfg.Admin.Token = v
	}
	if v := os.Getenv("CLIPVAULT_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}

	if cfg.Index.Path == "" {
		cfg.Index.Path = filepath.Join(cfg.Storage.DataDir, "clips.bleve")
	}

	return cfg, nil
}
