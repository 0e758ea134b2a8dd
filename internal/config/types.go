package config

// Config is the process configuration. YAML and JSON are accepted; both
// are decoded strictly so typos surface at load time instead of being
// silently ignored.
//
// All duration fields are Go duration strings (e.g. "500ms", "10s", "5m").
type Config struct {
	Logging   LoggingConfig   `json:"logging"`
	HTTP      HTTPConfig      `json:"http,omitempty"`
	Transport TransportConfig `json:"transport,omitempty"`
	Sessions  SessionsConfig  `json:"sessions,omitempty"`
	Engine    EngineConfig    `json:"engine,omitempty"`
	Storage   *StorageConfig  `json:"storage,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// HTTPConfig controls the campaign submission/observer API.
type HTTPConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr,omitempty"` // default: "127.0.0.1:8080"
}

// TransportConfig controls the chat transport adapter.
type TransportConfig struct {
	RatePerSec  int    `json:"rate_per_sec,omitempty"`
	HTTPTimeout string `json:"http_timeout,omitempty"`
}

// SessionsConfig controls session artifact placement and eviction.
//
// Defaults (when fields are omitted/zero):
//   - dir: "./sessions"
//   - retention: "1h"
//   - sweep_interval: "5m"
type SessionsConfig struct {
	Dir           string `json:"dir,omitempty"`
	Retention     string `json:"retention,omitempty"`
	SweepInterval string `json:"sweep_interval,omitempty"`
}

// EngineConfig overrides the delivery engine timing knobs.
//
// Defaults: reconnect_backoff "10s", max_reconnects 15, failure_cooldown "5s".
// The per-message delay is part of each campaign submission, not config.
type EngineConfig struct {
	ReconnectBackoff string `json:"reconnect_backoff,omitempty"`
	MaxReconnects    int    `json:"max_reconnects,omitempty"`
	FailureCooldown  string `json:"failure_cooldown,omitempty"`
}

// StorageConfig controls the optional audit persistence layer.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./blastd.db" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // sqlite only
}
