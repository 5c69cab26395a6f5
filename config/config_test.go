package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/opd-ai/audiocore/limits"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "audiocore.yml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadValidConfig(t *testing.T) {
	path := writeConfig(t, `
audiocore:
  mode: client
  datagram:
    bind_address: "127.0.0.1"
    port: 22134
    qos: 46
    port_retry_count: 20
    max_datagram_size: 1500
    reinit_on_send_failure: false
  stream:
    enabled: true
    write_timeout: 2s
    websocket:
      enabled: true
      listen: "127.0.0.1:8081"
      path: "/stream"
  dispatch:
    queue_size: 64
  health:
    poll_interval: 250ms
  metrics:
    enabled: true
    listen: "127.0.0.1:9100"
  log:
    level: debug
    format: json
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ModeClient, cfg.Mode)
	assert.Equal(t, "127.0.0.1", cfg.Datagram.BindAddress)
	assert.Equal(t, 22134, cfg.Datagram.Port)
	assert.Equal(t, 46, cfg.Datagram.QoS)
	assert.Equal(t, 20, cfg.Datagram.PortRetryCount)
	assert.Equal(t, 1500, cfg.Datagram.MaxDatagramSize)
	assert.False(t, cfg.Datagram.ReinitOnSendFailure)

	assert.True(t, cfg.Stream.Enabled)
	assert.Equal(t, "127.0.0.1", cfg.Stream.BindAddress, "stream inherits the datagram bind address")
	assert.Equal(t, 22134, cfg.Stream.Port, "stream inherits the datagram port")
	assert.Equal(t, 2*time.Second, cfg.Stream.WriteTimeout)
	assert.True(t, cfg.Stream.WebSocket.Enabled)
	assert.Equal(t, "/stream", cfg.Stream.WebSocket.Path)

	assert.Equal(t, 64, cfg.Dispatch.QueueSize)
	assert.Equal(t, 250*time.Millisecond, cfg.Health.PollInterval)
	assert.Equal(t, "/metrics", cfg.Metrics.Path)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoadEnvOverride(t *testing.T) {
	path := writeConfig(t, `
audiocore:
  datagram:
    port: 22200
`)
	t.Setenv("AUDIOCORE_DATAGRAM_PORT", "30000")
	t.Setenv("AUDIOCORE_LOG_LEVEL", "warn")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 30000, cfg.Datagram.Port)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yml"))
	assert.Error(t, err)
}

func TestLoadEmptyPathUsesDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, ModeServer, cfg.Mode)
	assert.Equal(t, limits.DefaultPort, cfg.Datagram.Port)
	assert.Equal(t, limits.DefaultQoS, cfg.Datagram.QoS)
	assert.Equal(t, limits.NumSocketPortsToTry, cfg.Datagram.PortRetryCount)
	assert.Equal(t, limits.MaxDatagramSize, cfg.Datagram.MaxDatagramSize)
	assert.True(t, cfg.Datagram.ReinitOnSendFailure)
	assert.False(t, cfg.Datagram.EnableIPv6)

	assert.False(t, cfg.Stream.Enabled)
	assert.Equal(t, limits.DefaultPort, cfg.Stream.Port)
	assert.Equal(t, 5*time.Second, cfg.Stream.WriteTimeout)

	assert.Equal(t, limits.DefaultDispatchQueueSize, cfg.Dispatch.QueueSize)
	assert.Equal(t, time.Second, cfg.Health.PollInterval)
	assert.Equal(t, 10, cfg.Server.MaxClients)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
}

func TestValidateAndApplyDefaults_Rejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{"unknown mode", func(c *Config) { c.Mode = "peer" }, "invalid mode"},
		{"log level", func(c *Config) { c.Log.Level = "trace" }, "invalid log level"},
		{"log format", func(c *Config) { c.Log.Format = "xml" }, "invalid log format"},
		{"log file without path", func(c *Config) { c.Log.File.Enabled = true; c.Log.File.Path = "" }, "log.file.path"},
		{"port range", func(c *Config) { c.Datagram.Port = 70000 }, "invalid datagram.port"},
		{"bind address", func(c *Config) { c.Datagram.BindAddress = "localhost" }, "invalid datagram.bind_address"},
		{"qos range", func(c *Config) { c.Datagram.QoS = 256 }, "invalid datagram.qos"},
		{"negative retry", func(c *Config) { c.Datagram.PortRetryCount = -1 }, "invalid datagram.port_retry_count"},
		{"datagram too small", func(c *Config) { c.Datagram.MaxDatagramSize = 4 }, "invalid datagram.max_datagram_size"},
		{"datagram too large", func(c *Config) { c.Datagram.MaxDatagramSize = 65536 }, "invalid datagram.max_datagram_size"},
		{"websocket without stream", func(c *Config) { c.Stream.WebSocket.Enabled = true }, "requires stream.enabled"},
		{"websocket path", func(c *Config) {
			c.Stream.Enabled = true
			c.Stream.WebSocket.Enabled = true
			c.Stream.WebSocket.Path = "ws"
		}, "invalid stream.websocket.path"},
		{"no clients", func(c *Config) { c.Server.MaxClients = 0 }, "invalid server.max_clients"},
		{"too many clients", func(c *Config) { c.Server.MaxClients = MaxChannels + 1 }, "invalid server.max_clients"},
		{"metrics without listen", func(c *Config) { c.Metrics.Enabled = true; c.Metrics.Listen = "" }, "metrics.listen"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)

			err := cfg.ValidateAndApplyDefaults()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestValidateAndApplyDefaults_FillsZeroValues(t *testing.T) {
	cfg := Default()
	cfg.Mode = "CLIENT"
	cfg.Datagram.MaxDatagramSize = 0
	cfg.Dispatch.QueueSize = 0
	cfg.Health.PollInterval = 0
	cfg.Stream.WriteTimeout = 0

	require.NoError(t, cfg.ValidateAndApplyDefaults())

	assert.Equal(t, ModeClient, cfg.Mode)
	assert.Equal(t, limits.MaxDatagramSize, cfg.Datagram.MaxDatagramSize)
	assert.Equal(t, limits.DefaultDispatchQueueSize, cfg.Dispatch.QueueSize)
	assert.Equal(t, time.Second, cfg.Health.PollInterval)
	assert.Equal(t, 5*time.Second, cfg.Stream.WriteTimeout)
}
