package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetDefaultsFillsEveryField(t *testing.T) {
	cfg := Default()

	assert.Equal(t, TransportStdio, cfg.MCP.Transport)
	assert.Equal(t, 8082, cfg.MCP.WebSocket.Port)
	assert.Equal(t, 100, cfg.MCP.Concurrent.MaxAgents)
	assert.Equal(t, 10, cfg.MCP.Concurrent.MaxSessionsPerAgent)
	assert.Equal(t, 1000, cfg.MCP.Concurrent.MaxTotalSessions)
	assert.Equal(t, 100, cfg.MCP.RateLimit.RequestsPerMinute)
	assert.Equal(t, 60, cfg.MCP.RateLimit.MovesPerMinute)
	assert.Equal(t, 10, cfg.MCP.RateLimit.BurstLimit)
	assert.Equal(t, "AES-256-GCM", cfg.MCP.Encryption.Algorithm)
	assert.Equal(t, 30, cfg.MCP.Encryption.SessionTimeoutMinutes)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "simple", cfg.Logging.Format)
	assert.Equal(t, "chessmcp", cfg.Metrics.Namespace)
}

func TestSetDefaultsPreservesExplicitValues(t *testing.T) {
	cfg := &Config{}
	cfg.MCP.Transport = TransportWebSocket
	cfg.MCP.WebSocket.Port = 9999
	cfg.Logging.Level = "debug"

	cfg.SetDefaults()

	assert.Equal(t, TransportWebSocket, cfg.MCP.Transport)
	assert.Equal(t, 9999, cfg.MCP.WebSocket.Port)
	assert.Equal(t, "debug", cfg.Logging.Level)
	// Untouched fields still get defaulted.
	assert.Equal(t, 100, cfg.MCP.Concurrent.MaxAgents)
}

func TestEncryptionTimeoutConvertsMinutesToDuration(t *testing.T) {
	cfg := Config{}
	cfg.MCP.Encryption.SessionTimeoutMinutes = 5
	assert.Equal(t, 5*time.Minute, cfg.EncryptionTimeout())
}

func TestLoadParsesYAMLAndAppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "chessmcp.yaml")
	yamlDoc := `
mcp:
  transport: both
  websocket:
    port: 7000
  rate-limit:
    burst-limit: 20
logging:
  level: warn
`
	require.NoError(t, os.WriteFile(path, []byte(yamlDoc), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, TransportBoth, cfg.MCP.Transport)
	assert.Equal(t, 7000, cfg.MCP.WebSocket.Port)
	assert.Equal(t, 20, cfg.MCP.RateLimit.BurstLimit)
	assert.Equal(t, "warn", cfg.Logging.Level)
	// Defaults still fill in everything the document didn't mention.
	assert.Equal(t, 100, cfg.MCP.Concurrent.MaxAgents)
	assert.Equal(t, "AES-256-GCM", cfg.MCP.Encryption.Algorithm)
}

func TestLoadMissingFileReturnsError(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
