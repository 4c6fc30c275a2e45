package backend

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Errors
var (
	ErrNotConnected    = errors.New("not connected to backend")
	ErrStaleConnection = errors.New("connection stale (no ping)")
	ErrTimeout         = errors.New("command timeout")
	ErrAlreadyClosed   = errors.New("already closed")
)

// Command names understood by the backend.
const (
	CmdInit             = "app_init"
	CmdLiveTradingStart = "live_trading_start"
	CmdLiveTradingStop  = "live_trading_stop"
	CmdStockCreate      = "stock_create"
	CmdStockUpdate      = "stock_update"
	CmdStockSell        = "stock_sell"
	CmdStockDelete      = "stock_delete"
)

// TimestampedMessage wraps a raw frame with its local receive time.
type TimestampedMessage struct {
	Data       []byte
	ReceivedAt time.Time
}

// Command is a request sent to the backend.
type Command struct {
	ID     string `json:"id"`
	Cmd    string `json:"cmd"`
	Params any    `json:"params,omitempty"`
}

// Response is the backend's reply to a Command.
type Response struct {
	ID   string          `json:"id"`
	Type string          `json:"type"` // "ok" or "error"
	Msg  json.RawMessage `json:"msg,omitempty"`
}

// ErrorMsg is the msg body of an "error" response.
type ErrorMsg struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// CommandError is returned when the backend rejects a command.
type CommandError struct {
	Cmd     string
	Code    string
	Message string
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("%s rejected: %s: %s", e.Cmd, e.Code, e.Message)
}

// ClientConfig configures a single websocket connection.
type ClientConfig struct {
	URL          string
	AuthToken    string        // sent as a bearer token on the handshake
	PingInterval time.Duration // how often a keepalive ping is sent
	PingTimeout  time.Duration // max time without ping/pong before the connection is stale
	WriteTimeout time.Duration
	BufferSize   int // inbound frame buffer
}

// SessionConfig configures a Session.
type SessionConfig struct {
	Client            ClientConfig
	CommandTimeout    time.Duration
	ReconnectBaseWait time.Duration
	ReconnectMaxWait  time.Duration
}

// DefaultSessionConfig returns sensible defaults.
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		Client: ClientConfig{
			PingInterval: 30 * time.Second,
			PingTimeout:  90 * time.Second,
			WriteTimeout: 5 * time.Second,
			BufferSize:   1000,
		},
		CommandTimeout:    10 * time.Second,
		ReconnectBaseWait: time.Second,
		ReconnectMaxWait:  time.Minute,
	}
}

// SessionStats contains runtime statistics.
type SessionStats struct {
	Connected       bool
	FramesReceived  int64
	EventsPublished int64
	DecodeErrors    int64
	PublishErrors   int64
	Responses       int64
	Reconnects      int64
	PendingCommands int
}
