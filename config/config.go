// Package config handles configuration loading using viper.
package config

import (
	"fmt"
	"net/netip"
	"strings"
	"time"

	"github.com/opd-ai/audiocore/limits"
	"github.com/spf13/viper"
)

// Modes accepted by the mode key.
const (
	ModeClient = "client"
	ModeServer = "server"
)

// MaxChannels is the upper bound for server.max_clients.
const MaxChannels = 150

// Config represents the top-level configuration.
// Maps to the `audiocore:` root key in YAML.
type Config struct {
	Mode     string         `mapstructure:"mode"` // client | server
	Datagram DatagramConfig `mapstructure:"datagram"`
	Stream   StreamConfig   `mapstructure:"stream"`
	Dispatch DispatchConfig `mapstructure:"dispatch"`
	Health   HealthConfig   `mapstructure:"health"`
	Server   ServerConfig   `mapstructure:"server"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Log      LogConfig      `mapstructure:"log"`
}

// ─── Transports ───

// DatagramConfig configures the UDP socket carrying audio and control traffic.
type DatagramConfig struct {
	BindAddress         string `mapstructure:"bind_address"` // Empty = any interface; ignored with IPv6
	Port                int    `mapstructure:"port"`
	QoS                 int    `mapstructure:"qos"` // Type-of-service byte
	EnableIPv6          bool   `mapstructure:"enable_ipv6"`
	PortRetryCount      int    `mapstructure:"port_retry_count"` // Client port window
	MaxDatagramSize     int    `mapstructure:"max_datagram_size"`
	ReinitOnSendFailure bool   `mapstructure:"reinit_on_send_failure"`
}

// StreamConfig configures the reliable fallback transport for control traffic.
type StreamConfig struct {
	Enabled      bool            `mapstructure:"enabled"`
	BindAddress  string          `mapstructure:"bind_address"` // Empty = datagram.bind_address
	Port         int             `mapstructure:"port"`         // 0 = datagram.port
	MaxFrameSize int             `mapstructure:"max_frame_size"`
	WriteTimeout time.Duration   `mapstructure:"write_timeout"`
	WebSocket    WebSocketConfig `mapstructure:"websocket"`
}

// WebSocketConfig configures the HTTP endpoint tunneling stream connections.
type WebSocketConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Listen  string `mapstructure:"listen"`
	Path    string `mapstructure:"path"`
}

// ─── Runtime ───

// DispatchConfig configures the control event hand-off.
type DispatchConfig struct {
	QueueSize int `mapstructure:"queue_size"`
}

// HealthConfig configures the jitter health poll.
type HealthConfig struct {
	PollInterval time.Duration `mapstructure:"poll_interval"`
}

// ServerConfig configures the server-side channel table.
type ServerConfig struct {
	MaxClients int `mapstructure:"max_clients"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Listen  string `mapstructure:"listen"`
	Path    string `mapstructure:"path"`
}

// ─── Logging ───

// LogConfig configures the process logger.
type LogConfig struct {
	Level  string        `mapstructure:"level"`  // debug | info | warn | error
	Format string        `mapstructure:"format"` // text | json
	File   LogFileConfig `mapstructure:"file"`
}

// LogFileConfig configures the rotated log file.
type LogFileConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	Path       string `mapstructure:"path"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

// ─── Loading ───

// configRoot is the top-level wrapper matching the YAML structure `audiocore: ...`.
type configRoot struct {
	AudioCore Config `mapstructure:"audiocore"`
}

// Load loads configuration from file. An empty path loads the defaults.
// The YAML file uses `audiocore:` as root key; env vars use the AUDIOCORE_
// prefix (e.g., AUDIOCORE_DATAGRAM_PORT).
func Load(path string) (*Config, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// The `audiocore.` key prefix maps to `AUDIOCORE_` in env vars via the
	// key replacer (e.g., key "audiocore.log.level" → env "AUDIOCORE_LOG_LEVEL").
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	var root configRoot
	if err := v.Unmarshal(&root); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg := root.AudioCore

	if err := cfg.ValidateAndApplyDefaults(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// Default returns the default configuration without reading files or the
// environment.
func Default() *Config {
	v := viper.New()
	setDefaults(v)

	var root configRoot
	if err := v.Unmarshal(&root); err != nil {
		panic(fmt.Sprintf("config: defaults do not unmarshal: %v", err))
	}
	cfg := root.AudioCore
	if err := cfg.ValidateAndApplyDefaults(); err != nil {
		panic(fmt.Sprintf("config: defaults are invalid: %v", err))
	}
	return &cfg
}

// setDefaults sets default values for configuration.
// All keys use "audiocore." prefix to match the YAML root wrapper.
func setDefaults(v *viper.Viper) {
	v.SetDefault("audiocore.mode", ModeServer)

	// Datagram defaults
	v.SetDefault("audiocore.datagram.bind_address", "")
	v.SetDefault("audiocore.datagram.port", limits.DefaultPort)
	v.SetDefault("audiocore.datagram.qos", limits.DefaultQoS)
	v.SetDefault("audiocore.datagram.enable_ipv6", false)
	v.SetDefault("audiocore.datagram.port_retry_count", limits.NumSocketPortsToTry)
	v.SetDefault("audiocore.datagram.max_datagram_size", limits.MaxDatagramSize)
	v.SetDefault("audiocore.datagram.reinit_on_send_failure", true)

	// Stream defaults
	v.SetDefault("audiocore.stream.enabled", false)
	v.SetDefault("audiocore.stream.bind_address", "")
	v.SetDefault("audiocore.stream.port", 0)
	v.SetDefault("audiocore.stream.max_frame_size", 0)
	v.SetDefault("audiocore.stream.write_timeout", "5s")
	v.SetDefault("audiocore.stream.websocket.enabled", false)
	v.SetDefault("audiocore.stream.websocket.listen", ":8080")
	v.SetDefault("audiocore.stream.websocket.path", "/ws")

	// Runtime defaults
	v.SetDefault("audiocore.dispatch.queue_size", limits.DefaultDispatchQueueSize)
	v.SetDefault("audiocore.health.poll_interval", "1s")
	v.SetDefault("audiocore.server.max_clients", 10)

	// Metrics defaults
	v.SetDefault("audiocore.metrics.enabled", false)
	v.SetDefault("audiocore.metrics.listen", ":9090")
	v.SetDefault("audiocore.metrics.path", "/metrics")

	// Log defaults
	v.SetDefault("audiocore.log.level", "info")
	v.SetDefault("audiocore.log.format", "text")
	v.SetDefault("audiocore.log.file.enabled", false)
	v.SetDefault("audiocore.log.file.path", "audiocore.log")
	v.SetDefault("audiocore.log.file.max_size_mb", 100)
	v.SetDefault("audiocore.log.file.max_backups", 5)
	v.SetDefault("audiocore.log.file.max_age_days", 30)
	v.SetDefault("audiocore.log.file.compress", true)
}

// ValidateAndApplyDefaults validates configuration and applies runtime defaults.
func (cfg *Config) ValidateAndApplyDefaults() error {
	// ── Mode ──
	cfg.Mode = strings.ToLower(cfg.Mode)
	if cfg.Mode != ModeClient && cfg.Mode != ModeServer {
		return fmt.Errorf("invalid mode: %s (must be client/server)", cfg.Mode)
	}

	// ── Log validation ──
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[cfg.Log.Level] {
		return fmt.Errorf("invalid log level: %s (must be debug/info/warn/error)", cfg.Log.Level)
	}
	if cfg.Log.Format != "json" && cfg.Log.Format != "text" {
		return fmt.Errorf("invalid log format: %s (must be json/text)", cfg.Log.Format)
	}
	if cfg.Log.File.Enabled && cfg.Log.File.Path == "" {
		return fmt.Errorf("log.file.path is required when log.file.enabled=true")
	}

	// ── Datagram ──
	if err := validatePort("datagram.port", cfg.Datagram.Port); err != nil {
		return err
	}
	if err := validateBindAddress("datagram.bind_address", cfg.Datagram.BindAddress); err != nil {
		return err
	}
	if cfg.Datagram.QoS < 0 || cfg.Datagram.QoS > 255 {
		return fmt.Errorf("invalid datagram.qos: %d (must be 0-255)", cfg.Datagram.QoS)
	}
	if cfg.Datagram.PortRetryCount < 0 {
		return fmt.Errorf("invalid datagram.port_retry_count: %d (must be >= 0)", cfg.Datagram.PortRetryCount)
	}
	if cfg.Datagram.MaxDatagramSize == 0 {
		cfg.Datagram.MaxDatagramSize = limits.MaxDatagramSize
	}
	if cfg.Datagram.MaxDatagramSize < limits.MinDatagramSize || cfg.Datagram.MaxDatagramSize > limits.MaxDatagramSize {
		return fmt.Errorf("invalid datagram.max_datagram_size: %d (must be %d-%d)",
			cfg.Datagram.MaxDatagramSize, limits.MinDatagramSize, limits.MaxDatagramSize)
	}

	// ── Stream ──
	if cfg.Stream.BindAddress == "" {
		cfg.Stream.BindAddress = cfg.Datagram.BindAddress
	}
	if err := validateBindAddress("stream.bind_address", cfg.Stream.BindAddress); err != nil {
		return err
	}
	if cfg.Stream.Port == 0 {
		cfg.Stream.Port = cfg.Datagram.Port
	}
	if err := validatePort("stream.port", cfg.Stream.Port); err != nil {
		return err
	}
	if cfg.Stream.MaxFrameSize < 0 {
		return fmt.Errorf("invalid stream.max_frame_size: %d (must be >= 0)", cfg.Stream.MaxFrameSize)
	}
	if cfg.Stream.WriteTimeout <= 0 {
		cfg.Stream.WriteTimeout = 5 * time.Second
	}
	if cfg.Stream.WebSocket.Enabled {
		if !cfg.Stream.Enabled {
			return fmt.Errorf("stream.websocket.enabled requires stream.enabled=true")
		}
		if cfg.Stream.WebSocket.Listen == "" {
			return fmt.Errorf("stream.websocket.listen is required when stream.websocket.enabled=true")
		}
		if !strings.HasPrefix(cfg.Stream.WebSocket.Path, "/") {
			return fmt.Errorf("invalid stream.websocket.path: %q (must start with /)", cfg.Stream.WebSocket.Path)
		}
	}

	// ── Runtime ──
	if cfg.Dispatch.QueueSize <= 0 {
		cfg.Dispatch.QueueSize = limits.DefaultDispatchQueueSize
	}
	if cfg.Health.PollInterval <= 0 {
		cfg.Health.PollInterval = time.Second
	}
	if cfg.Server.MaxClients < 1 || cfg.Server.MaxClients > MaxChannels {
		return fmt.Errorf("invalid server.max_clients: %d (must be 1-%d)", cfg.Server.MaxClients, MaxChannels)
	}

	// ── Metrics ──
	if cfg.Metrics.Enabled && cfg.Metrics.Listen == "" {
		return fmt.Errorf("metrics.listen is required when metrics.enabled=true")
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}

	return nil
}

// validatePort checks that a port fits in 16 bits.
func validatePort(key string, port int) error {
	if port < 0 || port > 0xFFFF {
		return fmt.Errorf("invalid %s: %d (must be 0-65535)", key, port)
	}
	return nil
}

// validateBindAddress checks that a non-empty bind address is a literal IP.
func validateBindAddress(key, addr string) error {
	if addr == "" {
		return nil
	}
	if _, err := netip.ParseAddr(addr); err != nil {
		return fmt.Errorf("invalid %s: %q: %w", key, addr, err)
	}
	return nil
}
