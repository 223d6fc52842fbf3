// Package config handles the application configuration file.
package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/RyanBlaney/beatwizard/features"
	"github.com/RyanBlaney/beatwizard/logging"
	"github.com/RyanBlaney/beatwizard/server"
	"github.com/RyanBlaney/beatwizard/storage"
	"github.com/RyanBlaney/beatwizard/transcode"
)

// Environment overrides
const (
	EnvDBPath = "BEATWIZARD_DB_PATH"
	EnvFFmpeg = "BEATWIZARD_FFMPEG"
)

// Config represents the application configuration
type Config struct {
	// Loader controls decoding and resampling
	Loader transcode.LoaderConfig `json:"loader"`

	// Features controls extraction
	Features features.Config `json:"features"`

	// Server settings for the HTTP API
	Server server.ServerConfig `json:"server"`

	// DBPath is the SQLite database file
	DBPath string `json:"db_path"`

	// LogLevel is one of debug, info, warn, error
	LogLevel string `json:"log_level"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Loader:   transcode.DefaultLoaderConfig(),
		Features: features.DefaultConfig(),
		Server:   *server.DefaultServerConfig(),
		DBPath:   storage.DefaultDBFile,
		LogLevel: "info",
	}
}

// Load reads the configuration at path on top of the defaults. An empty
// path yields the defaults. Environment overrides apply in both cases.
func Load(path string) (*Config, error) {
	config := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err := json.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	config.applyEnv()

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv(EnvDBPath); v != "" {
		c.DBPath = v
	}
	if v := os.Getenv(EnvFFmpeg); v != "" {
		c.Loader.FFmpegPath = v
	}
}

// Validate checks every section
func (c *Config) Validate() error {
	if err := c.Features.Validate(); err != nil {
		return fmt.Errorf("features: %w", err)
	}
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server: %w", err)
	}
	if c.Loader.DecodeTimeout < 0 || c.Loader.MaxDuration < 0 {
		return fmt.Errorf("loader: durations must not be negative")
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("log_level: %w", err)
	}
	return nil
}

// Save writes the configuration as indented JSON
func (c *Config) Save(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}
