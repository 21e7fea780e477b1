// Package config holds runtime settings for the Anchored client.
//
// Sources are layered: defaults, then an optional JSON file, then
// environment variables. Later sources take precedence.
package config

import (
	"encoding/json"
	"fmt"
	"os"
)

type Config struct {
	// ServerEndpointURL is the base URL of the backend, e.g.
	// "https://api.anchored.site".
	ServerEndpointURL string

	// DatabasePath is the SQLite file backing the local cache and sync
	// queue. ":memory:" keeps everything in-process.
	DatabasePath string
}

// jsonConfig is the DTO for the optional JSON config file.
type jsonConfig struct {
	ServerEndpointURL string `json:"server_endpoint_url"`
	DatabasePath      string `json:"database_path"`
}

func (c *Config) loadDefaults() {
	c.ServerEndpointURL = "http://127.0.0.1:8080"
	c.DatabasePath = "anchored.db"
}

// Load builds the config. path may be empty; ANCHORED_CONFIG is consulted as
// a fallback file location.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	cfg.loadDefaults()

	if path == "" {
		path = os.Getenv("ANCHORED_CONFIG")
	}
	if path != "" {
		if err := overlayJSON(cfg, path); err != nil {
			return nil, err
		}
	}

	if v := os.Getenv("ANCHORED_SERVER_URL"); v != "" {
		cfg.ServerEndpointURL = v
	}
	if v := os.Getenv("ANCHORED_DB_PATH"); v != "" {
		cfg.DatabasePath = v
	}
	return cfg, nil
}

func overlayJSON(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config %s: %w", path, err)
	}
	var jc jsonConfig
	if err := json.Unmarshal(data, &jc); err != nil {
		return fmt.Errorf("parsing config %s: %w", path, err)
	}
	if jc.ServerEndpointURL != "" {
		cfg.ServerEndpointURL = jc.ServerEndpointURL
	}
	if jc.DatabasePath != "" {
		cfg.DatabasePath = jc.DatabasePath
	}
	return nil
}
