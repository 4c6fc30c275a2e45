package event

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rickgao/stocksync/internal/market"
	"github.com/rickgao/stocksync/internal/stock"
)

// Errors
var (
	ErrUnknownEvent     = errors.New("unknown event")
	ErrMalformedPayload = errors.New("malformed payload")
)

// Name is a wire event name such as "Stock:UpdateStockItems".
type Name string

// Operation tells the receiver how to apply a payload to its collection.
type Operation string

const (
	OpCreateOrUpdate Operation = "CREATE_OR_UPDATE"
	OpDelete         Operation = "DELETE"
	OpSet            Operation = "SET"
)

// StockOp maps the wire operation onto a collection mutation.
func (o Operation) StockOp() (stock.Op, bool) {
	switch o {
	case OpCreateOrUpdate:
		return stock.OpUpsert, true
	case OpDelete:
		return stock.OpDelete, true
	case OpSet:
		return stock.OpSet, true
	}
	return 0, false
}

// Event is a decoded backend notification.
type Event struct {
	Name       Name
	Operation  Operation
	Payload    Payload
	ReceivedAt time.Time
}

// Payload is implemented by every payload type in the catalog. The concrete
// type is fixed by the event name.
type Payload interface {
	eventName() Name
}

// Change carries one collection mutation: Value for CREATE_OR_UPDATE, ID for
// DELETE and All for SET.
type Change[T any, K comparable] struct {
	Op    stock.Op
	Value T
	ID    K
	All   []T
}

// stockChange converts c into a stock book change.
func stockChange[T any](c Change[T, int64]) stock.Change[T] {
	return stock.Change[T]{Op: c.Op, Value: c.Value, ID: c.ID, All: c.All}
}

type (
	StockItemsPayload   struct{ Change[stock.Item, int64] }
	StockRivensPayload  struct{ Change[stock.Riven, int64] }
	OrdersPayload       struct{ Change[market.Order, string] }
	AuctionsPayload     struct{ Change[market.Auction, string] }
	TransactionsPayload struct{ Change[market.Transaction, int64] }
	ChatsPayload        struct{ Change[market.Chat, string] }
	ChatMessagesPayload struct{ Change[market.ChatMessage, string] }
)

// StockChange returns the payload as an item book change.
func (p StockItemsPayload) StockChange() stock.Change[stock.Item] { return stockChange(p.Change) }

// StockChange returns the payload as a riven book change.
func (p StockRivensPayload) StockChange() stock.Change[stock.Riven] { return stockChange(p.Change) }

// InitializePayload is the full state snapshot sent when the backend finishes
// starting up or a client (re)connects.
type InitializePayload struct {
	Settings     stock.Thresholds     `json:"settings"`
	StockItems   []stock.Item         `json:"stock_items"`
	StockRivens  []stock.Riven        `json:"stock_rivens"`
	Orders       []market.Order       `json:"orders"`
	Auctions     []market.Auction     `json:"auctions"`
	Transactions []market.Transaction `json:"transactions"`
	Chats        []market.Chat        `json:"chats"`
	User         *market.User         `json:"user"`
	Running      bool                 `json:"live_trading_running"`
}

// SettingsPayload replaces the user's trading thresholds.
type SettingsPayload struct {
	Thresholds stock.Thresholds `json:"live_trading"`
}

// PriceUpdatePayload is a fresh valuation for one stock entry.
type PriceUpdatePayload struct {
	Kind  stock.Kind `json:"kind"`
	ID    int64      `json:"id"`
	Price int64      `json:"price"`
}

// UserPayload replaces the signed-in profile; User is nil after sign out.
type UserPayload struct {
	User *market.User
}

// RunningStatePayload acknowledges the live-trading running state.
type RunningStatePayload struct {
	Running bool `json:"running"`
}

// UnmarshalJSON accepts either a bare boolean or {"running": bool}.
func (p *RunningStatePayload) UnmarshalJSON(data []byte) error {
	var b bool
	if err := json.Unmarshal(data, &b); err == nil {
		p.Running = b
		return nil
	}
	var obj struct {
		Running *bool `json:"running"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	if obj.Running == nil {
		return fmt.Errorf("missing running flag")
	}
	p.Running = *obj.Running
	return nil
}

// ErrorPayload reports a failure inside the live trading loop.
type ErrorPayload struct {
	Component string `json:"component"`
	Message   string `json:"message"`
	Critical  bool   `json:"critical"`
	Cause     string `json:"cause,omitempty"`
}

func (p ErrorPayload) Error() string {
	if p.Component == "" {
		return p.Message
	}
	return p.Component + ": " + p.Message
}

// MessagePayload is an informational message from the live trading loop.
type MessagePayload struct {
	Component string `json:"component"`
	Message   string `json:"message"`
	Level     string `json:"level,omitempty"`
}

func (StockItemsPayload) eventName() Name   { return StockUpdateItems }
func (StockRivensPayload) eventName() Name  { return StockUpdateRivens }
func (OrdersPayload) eventName() Name       { return WFMUpdateOrders }
func (AuctionsPayload) eventName() Name     { return WFMUpdateAuction }
func (TransactionsPayload) eventName() Name { return WFMUpdateTransaction }
func (ChatsPayload) eventName() Name        { return WFMUpdateChats }
func (ChatMessagesPayload) eventName() Name { return WFMUpdateChatMessages }
func (InitializePayload) eventName() Name   { return AppOnInitialize }
func (SettingsPayload) eventName() Name     { return AppUpdateSettings }
func (PriceUpdatePayload) eventName() Name  { return StockUpdatePrice }
func (UserPayload) eventName() Name         { return UserUpdate }
func (RunningStatePayload) eventName() Name { return LiveTradingUpdateRunningState }
func (ErrorPayload) eventName() Name        { return LiveTradingOnError }
func (MessagePayload) eventName() Name      { return LiveTradingOnMessage }
