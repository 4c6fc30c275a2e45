package config

import (
	"time"

	"github.com/rickgao/stocksync/internal/backend"
	"github.com/rickgao/stocksync/internal/poller"
	"github.com/rickgao/stocksync/internal/stock"
)

// Default values for optional configuration fields.
const (
	DefaultWSURL              = "ws://127.0.0.1:8765/ws"
	DefaultCommandTimeout     = 10 * time.Second
	DefaultPingInterval       = 30 * time.Second
	DefaultPingTimeout        = 90 * time.Second
	DefaultWriteTimeout       = 5 * time.Second
	DefaultBufferSize         = 1000
	DefaultReconnectBaseDelay = 1 * time.Second
	DefaultReconnectMaxDelay  = 60 * time.Second
	DefaultResyncInterval     = 15 * time.Minute
	DefaultQueueSize          = 256
	DefaultHTTPPort           = 8080
	DefaultLogLevel           = "info"
	DefaultLogFormat          = "text"
)

func (c *Config) applyDefaults() {
	// Backend defaults
	if c.Backend.WSURL == "" {
		c.Backend.WSURL = DefaultWSURL
	}
	if c.Backend.CommandTimeout == 0 {
		c.Backend.CommandTimeout = DefaultCommandTimeout
	}
	if c.Backend.PingInterval == 0 {
		c.Backend.PingInterval = DefaultPingInterval
	}
	if c.Backend.PingTimeout == 0 {
		c.Backend.PingTimeout = DefaultPingTimeout
	}
	if c.Backend.WriteTimeout == 0 {
		c.Backend.WriteTimeout = DefaultWriteTimeout
	}
	if c.Backend.BufferSize == 0 {
		c.Backend.BufferSize = DefaultBufferSize
	}
	if c.Backend.ReconnectBaseDelay == 0 {
		c.Backend.ReconnectBaseDelay = DefaultReconnectBaseDelay
	}
	if c.Backend.ReconnectMaxDelay == 0 {
		c.Backend.ReconnectMaxDelay = DefaultReconnectMaxDelay
	}
	if c.Backend.ResyncInterval == 0 {
		c.Backend.ResyncInterval = DefaultResyncInterval
	}

	// Trading has no defaults: a zero threshold disables its check.

	if c.Dispatch.QueueSize == 0 {
		c.Dispatch.QueueSize = DefaultQueueSize
	}

	if c.HTTP.Port == 0 {
		c.HTTP.Port = DefaultHTTPPort
	}

	if c.Logging.Level == "" {
		c.Logging.Level = DefaultLogLevel
	}
	if c.Logging.Format == "" {
		c.Logging.Format = DefaultLogFormat
	}
}

// SessionConfig converts the backend section for backend.NewSession.
func (c *Config) SessionConfig() backend.SessionConfig {
	return backend.SessionConfig{
		Client: backend.ClientConfig{
			URL:          c.Backend.WSURL,
			AuthToken:    c.Backend.AuthToken,
			PingInterval: c.Backend.PingInterval,
			PingTimeout:  c.Backend.PingTimeout,
			WriteTimeout: c.Backend.WriteTimeout,
			BufferSize:   c.Backend.BufferSize,
		},
		CommandTimeout:    c.Backend.CommandTimeout,
		ReconnectBaseWait: c.Backend.ReconnectBaseDelay,
		ReconnectMaxWait:  c.Backend.ReconnectMaxDelay,
	}
}

// PollerConfig returns the resync poller settings. ok is false when
// periodic resync is disabled.
func (c *Config) PollerConfig() (cfg poller.Config, ok bool) {
	if c.Backend.ResyncInterval < 0 {
		return poller.Config{}, false
	}
	return poller.Config{
		Interval: c.Backend.ResyncInterval,
		Timeout:  c.Backend.CommandTimeout,
	}, true
}

// Thresholds returns the status thresholds from the trading section.
func (c *Config) Thresholds() stock.Thresholds {
	return c.Trading.Thresholds
}
