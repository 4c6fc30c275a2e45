package config

import (
	"time"

	"github.com/rickgao/stocksync/internal/stock"
)

// Config is the root configuration for a stocksync instance.
type Config struct {
	Backend  BackendConfig  `yaml:"backend"`
	Trading  TradingConfig  `yaml:"trading"`
	Dispatch DispatchConfig `yaml:"dispatch"`
	HTTP     HTTPConfig     `yaml:"http"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// BackendConfig holds the websocket session settings.
type BackendConfig struct {
	WSURL              string        `yaml:"ws_url"`
	AuthToken          string        `yaml:"auth_token"` // sent on the websocket handshake
	CommandTimeout     time.Duration `yaml:"command_timeout"`
	PingInterval       time.Duration `yaml:"ping_interval"`
	PingTimeout        time.Duration `yaml:"ping_timeout"`
	WriteTimeout       time.Duration `yaml:"write_timeout"`
	BufferSize         int           `yaml:"buffer_size"`
	ReconnectBaseDelay time.Duration `yaml:"reconnect_base_delay"`
	ReconnectMaxDelay  time.Duration `yaml:"reconnect_max_delay"`
	ResyncInterval     time.Duration `yaml:"resync_interval"` // negative disables periodic resync
}

// TradingConfig holds the live trading token and the status thresholds.
type TradingConfig struct {
	AuthToken        string `yaml:"auth_token"`
	stock.Thresholds `yaml:",inline"`
}

// DispatchConfig holds event bus settings.
type DispatchConfig struct {
	QueueSize int `yaml:"queue_size"`
}

// HTTPConfig holds the debug HTTP server settings.
type HTTPConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// LoggingConfig selects the slog handler.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
}
