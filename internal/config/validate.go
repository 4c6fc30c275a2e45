package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
)

// Validate checks that all required fields are set and values are valid.
func (c *Config) Validate() error {
	u, err := url.Parse(c.Backend.WSURL)
	if err != nil || c.Backend.WSURL == "" {
		return errors.New("backend.ws_url is required")
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("backend.ws_url must use ws or wss, got %q", u.Scheme)
	}
	if c.Backend.CommandTimeout <= 0 {
		return errors.New("backend.command_timeout must be > 0")
	}
	if c.Backend.PingTimeout < c.Backend.PingInterval {
		return fmt.Errorf("backend.ping_timeout (%v) cannot be shorter than ping_interval (%v)",
			c.Backend.PingTimeout, c.Backend.PingInterval)
	}
	if c.Backend.BufferSize < 1 {
		return errors.New("backend.buffer_size must be >= 1")
	}
	if c.Backend.ReconnectMaxDelay < c.Backend.ReconnectBaseDelay {
		return fmt.Errorf("backend.reconnect_max_delay (%v) cannot be shorter than reconnect_base_delay (%v)",
			c.Backend.ReconnectMaxDelay, c.Backend.ReconnectBaseDelay)
	}

	if err := c.Trading.validate(); err != nil {
		return err
	}

	if c.Dispatch.QueueSize < 1 {
		return errors.New("dispatch.queue_size must be >= 1")
	}

	if c.HTTP.Port < 1 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}

	if _, err := ParseLevel(c.Logging.Level); err != nil {
		return err
	}
	if c.Logging.Format != "text" && c.Logging.Format != "json" {
		return fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format)
	}

	return nil
}

func (t *TradingConfig) validate() error {
	if t.ProfitFloor < 0 {
		return errors.New("trading.profit_floor must be >= 0")
	}
	if t.SMAThreshold < 0 {
		return errors.New("trading.sma_threshold must be >= 0")
	}
	if t.SMAWindow < 0 {
		return errors.New("trading.sma_window must be >= 0")
	}
	if t.OrderCap < 0 {
		return errors.New("trading.order_cap must be >= 0")
	}
	if t.PriceBand < 0 || t.PriceBand >= 1 {
		return fmt.Errorf("trading.price_band must be in [0, 1), got %v", t.PriceBand)
	}
	return nil
}

// ParseLevel maps a logging.level value to a slog level.
func ParseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("logging.level %q is not one of debug, info, warn, error", s)
	}
	return l, nil
}
