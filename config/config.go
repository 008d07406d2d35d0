// Package config loads server configuration from
// ~/.config/pixelflut/config.json, the same layered default/file/flag
// scheme the teacher's server config uses.
package config

import (
	"encoding/json"
	"log"
	"os"
	"path/filepath"
)

// Config holds the server configuration. Command-line flags in
// cmd/pixelflut-server override whatever this loads.
type Config struct {
	// ListenAddr is the TCP address the reactor pool binds, "host:port".
	ListenAddr string `json:"listenAddr"`
	// Width and Height size the shared framebuffer.
	Width  int `json:"width"`
	Height int `json:"height"`
	// Workers is N, the number of reactor worker slots.
	Workers int `json:"workers"`
	// ShutdownGraceMillis bounds how long a worker waits for its connections to
	// drain on shutdown, in milliseconds.
	ShutdownGraceMillis int `json:"shutdownGraceMillis"`

	// Display selects the renderer backend. "termpreview" is the only
	// backend this repository implements; "none" disables the display
	// loop entirely (headless ingest-only operation).
	Display string `json:"display"`

	// WebSocketEnabled turns on the WebSocket ingest gateway alongside the
	// raw TCP listener.
	WebSocketEnabled bool   `json:"webSocketEnabled"`
	WebSocketAddr    string `json:"webSocketAddr"`

	// AuditEnabled turns on the sqlite session/telemetry audit log. This
	// never persists framebuffer pixel state, only connection and
	// telemetry-snapshot events.
	AuditEnabled bool   `json:"auditEnabled"`
	AuditPath    string `json:"auditPath"`
}

// Default returns the out-of-the-box configuration: port 12345, a
// 1920x1080 canvas, and a worker count matching the source's default.
func Default() *Config {
	return &Config{
		ListenAddr:          ":12345",
		Width:               1920,
		Height:              1080,
		Workers:             8,
		ShutdownGraceMillis: 1000,
		Display:             "termpreview",
		WebSocketEnabled:    false,
		WebSocketAddr:       ":12346",
		AuditEnabled:        false,
		AuditPath:           "",
	}
}

// Load reads ~/.config/pixelflut/config.json, falling back to Default
// when the file or the config directory itself is absent.
func Load() (*Config, error) {
	cfg := Default()

	configDir, err := os.UserConfigDir()
	if err != nil {
		log.Printf("config: failed to get user config dir: %v", err)
		return cfg, nil
	}

	path := filepath.Join(configDir, "pixelflut", "config.json")

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			log.Printf("config: no config file at %s, using defaults", path)
			return cfg, nil
		}
		return nil, err
	}

	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	log.Printf("config: loaded from %s", path)
	return cfg, nil
}

// Save writes c to ~/.config/pixelflut/config.json, creating the
// directory if needed.
func (c *Config) Save() error {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return err
	}

	dir := filepath.Join(configDir, "pixelflut")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	path := filepath.Join(dir, "config.json")

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return err
	}

	log.Printf("config: saved to %s", path)
	return nil
}
