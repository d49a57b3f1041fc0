// Package config defines the YAML-driven server configuration, covering
// transport selection, concurrency/rate-limit tuning, and optional
// encryption, per §6 of the specification.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Transport selects which frontends the server exposes.
type Transport string

const (
	TransportStdio     Transport = "stdio"
	TransportWebSocket Transport = "websocket"
	TransportBoth      Transport = "both"
)

// MCPConfig groups every setting under the spec's `mcp.*` namespace.
type MCPConfig struct {
	Transport  Transport        `yaml:"transport"`
	WebSocket  WebSocketConfig  `yaml:"websocket"`
	Concurrent ConcurrentConfig `yaml:"concurrent"`
	RateLimit  RateLimitConfig  `yaml:"rate-limit"`
	Encryption EncryptionConfig `yaml:"encryption"`
}

// WebSocketConfig configures the WebSocket transport adapter.
type WebSocketConfig struct {
	Port int `yaml:"port"`
}

// ConcurrentConfig fixes the cardinality limits enforced synchronously by
// AgentRegistry and SessionManager.
type ConcurrentConfig struct {
	MaxAgents           int `yaml:"max-agents"`
	MaxSessionsPerAgent int `yaml:"max-sessions-per-agent"`
	MaxTotalSessions    int `yaml:"max-total-sessions"`
}

// RateLimitConfig fixes the sliding-window thresholds the RateLimiter
// enforces.
type RateLimitConfig struct {
	RequestsPerMinute int `yaml:"requests-per-minute"`
	MovesPerMinute    int `yaml:"moves-per-minute"`
	BurstLimit        int `yaml:"burst-limit"`
}

// EncryptionConfig toggles the optional Double Ratchet overlay.
type EncryptionConfig struct {
	Enabled               bool   `yaml:"enabled"`
	Algorithm             string `yaml:"algorithm"`
	SessionTimeoutMinutes int    `yaml:"session-timeout-minutes"`
}

// LoggingConfig mirrors the flags cmd/chessmcp exposes for logging.Init.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	File   string `yaml:"file"`
}

// MetricsConfig toggles Prometheus metrics collection and its namespace.
type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Namespace string `yaml:"namespace"`
	Addr      string `yaml:"addr"`
}

// Config is the top-level document loaded from the server's YAML file.
type Config struct {
	MCP     MCPConfig     `yaml:"mcp"`
	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// SetDefaults fills in every value the spec fixes when the document omits
// it, so a minimal or empty config file still produces a compliant server.
func (c *Config) SetDefaults() {
	if c.MCP.Transport == "" {
		c.MCP.Transport = TransportStdio
	}
	if c.MCP.WebSocket.Port == 0 {
		c.MCP.WebSocket.Port = 8082
	}
	if c.MCP.Concurrent.MaxAgents == 0 {
		c.MCP.Concurrent.MaxAgents = 100
	}
	if c.MCP.Concurrent.MaxSessionsPerAgent == 0 {
		c.MCP.Concurrent.MaxSessionsPerAgent = 10
	}
	if c.MCP.Concurrent.MaxTotalSessions == 0 {
		c.MCP.Concurrent.MaxTotalSessions = 1000
	}
	if c.MCP.RateLimit.RequestsPerMinute == 0 {
		c.MCP.RateLimit.RequestsPerMinute = 100
	}
	if c.MCP.RateLimit.MovesPerMinute == 0 {
		c.MCP.RateLimit.MovesPerMinute = 60
	}
	if c.MCP.RateLimit.BurstLimit == 0 {
		c.MCP.RateLimit.BurstLimit = 10
	}
	if c.MCP.Encryption.Algorithm == "" {
		c.MCP.Encryption.Algorithm = "AES-256-GCM"
	}
	if c.MCP.Encryption.SessionTimeoutMinutes == 0 {
		c.MCP.Encryption.SessionTimeoutMinutes = 30
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "simple"
	}
	if c.Metrics.Namespace == "" {
		c.Metrics.Namespace = "chessmcp"
	}
}

// EncryptionTimeout returns the configured encryption session timeout as a
// time.Duration.
func (c Config) EncryptionTimeout() time.Duration {
	return time.Duration(c.MCP.Encryption.SessionTimeoutMinutes) * time.Minute
}

// Load reads and parses a YAML config file, applying defaults for any
// field the document omits.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	cfg.SetDefaults()
	return &cfg, nil
}

// Default returns a Config with every field at its spec-mandated default,
// used when no config file is supplied.
func Default() *Config {
	cfg := &Config{}
	cfg.SetDefaults()
	return cfg
}
