package event

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"github.com/rickgao/stocksync/internal/market"
	"github.com/rickgao/stocksync/internal/stock"
)

// CatalogVersion identifies this set of names and payload schemas. It is
// bumped whenever a name is added or a payload changes shape.
const CatalogVersion = 3

// Event names.
const (
	AppOnInitialize   Name = "App:OnInitialize"
	AppUpdateSettings Name = "App:UpdateSettings"

	WFMUpdateOrders       Name = "WFM:UpdateOrders"
	WFMUpdateTransaction  Name = "WFM:UpdateTransaction"
	WFMUpdateAuction      Name = "WFM:UpdateAuction"
	WFMUpdateChats        Name = "WFM:UpdateChats"
	WFMUpdateChatMessages Name = "WFM:UpdateChatMessages"

	StockUpdateItems  Name = "Stock:UpdateStockItems"
	StockUpdateRivens Name = "Stock:UpdateStockRivens"
	StockUpdatePrice  Name = "Stock:UpdatePrice"

	UserUpdate Name = "User:Update"

	LiveTradingUpdateRunningState Name = "LiveTrading:UpdateRunningState"
	LiveTradingOnError            Name = "LiveTrading:OnError"
	LiveTradingOnMessage          Name = "LiveTrading:OnMessage"
)

type decoder func(op Operation, data json.RawMessage) (Payload, error)

// catalog pairs every name with the decoder for its payload.
var catalog = map[Name]decoder{
	AppOnInitialize:   decodeValue[InitializePayload],
	AppUpdateSettings: decodeValue[SettingsPayload],

	WFMUpdateOrders: func(op Operation, data json.RawMessage) (Payload, error) {
		c, err := decodeChange[market.Order, string](op, data)
		return OrdersPayload{c}, err
	},
	WFMUpdateTransaction: func(op Operation, data json.RawMessage) (Payload, error) {
		c, err := decodeChange[market.Transaction, int64](op, data)
		return TransactionsPayload{c}, err
	},
	WFMUpdateAuction: func(op Operation, data json.RawMessage) (Payload, error) {
		c, err := decodeChange[market.Auction, string](op, data)
		return AuctionsPayload{c}, err
	},
	WFMUpdateChats: func(op Operation, data json.RawMessage) (Payload, error) {
		c, err := decodeChange[market.Chat, string](op, data)
		return ChatsPayload{c}, err
	},
	WFMUpdateChatMessages: func(op Operation, data json.RawMessage) (Payload, error) {
		c, err := decodeChange[market.ChatMessage, string](op, data)
		return ChatMessagesPayload{c}, err
	},

	StockUpdateItems: func(op Operation, data json.RawMessage) (Payload, error) {
		c, err := decodeChange[stock.Item, int64](op, data)
		return StockItemsPayload{c}, err
	},
	StockUpdateRivens: func(op Operation, data json.RawMessage) (Payload, error) {
		c, err := decodeChange[stock.Riven, int64](op, data)
		return StockRivensPayload{c}, err
	},
	StockUpdatePrice: decodePrice,

	UserUpdate: decodeUser,

	LiveTradingUpdateRunningState: decodeValue[RunningStatePayload],
	LiveTradingOnError:            decodeValue[ErrorPayload],
	LiveTradingOnMessage:          decodeValue[MessagePayload],
}

// Known reports whether name is part of the catalog.
func Known(name Name) bool {
	_, ok := catalog[name]
	return ok
}

// Names returns every catalog name, sorted.
func Names() []Name {
	names := make([]Name, 0, len(catalog))
	for n := range catalog {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

// envelope is the wire frame of a backend event.
type envelope struct {
	Event     Name            `json:"event"`
	Operation Operation       `json:"operation,omitempty"`
	Data      json.RawMessage `json:"data"`
}

// Decode parses a wire frame into an Event.
func Decode(raw []byte) (Event, error) {
	return DecodeAt(raw, time.Now())
}

// DecodeAt is Decode with an explicit receive time.
func DecodeAt(raw []byte, receivedAt time.Time) (Event, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Event{}, fmt.Errorf("%w: envelope: %v", ErrMalformedPayload, err)
	}
	dec, ok := catalog[env.Event]
	if !ok {
		return Event{}, fmt.Errorf("%w: %q", ErrUnknownEvent, env.Event)
	}

	op := env.Operation
	if op == "" {
		op = OpSet
	}
	if _, ok := op.StockOp(); !ok {
		return Event{}, fmt.Errorf("%w: %s: operation %q", ErrMalformedPayload, env.Event, env.Operation)
	}

	payload, err := dec(op, env.Data)
	if err != nil {
		return Event{}, fmt.Errorf("%w: %s: %v", ErrMalformedPayload, env.Event, err)
	}
	return Event{
		Name:       env.Event,
		Operation:  op,
		Payload:    payload,
		ReceivedAt: receivedAt,
	}, nil
}

// Encode builds a wire frame. It is the inverse of Decode for tests, replay
// files and the debug surface.
func Encode(name Name, op Operation, data any) ([]byte, error) {
	if !Known(name) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, name)
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(envelope{Event: name, Operation: op, Data: raw})
}

func isNull(data json.RawMessage) bool {
	return len(bytes.TrimSpace(data)) == 0 || bytes.Equal(bytes.TrimSpace(data), []byte("null"))
}

func decodeValue[T Payload](_ Operation, data json.RawMessage) (Payload, error) {
	var v T
	if isNull(data) {
		return nil, fmt.Errorf("missing data")
	}
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	return v, nil
}

func decodeChange[T any, K comparable](op Operation, data json.RawMessage) (Change[T, K], error) {
	sop, _ := op.StockOp()
	c := Change[T, K]{Op: sop}
	if isNull(data) {
		return c, fmt.Errorf("missing data")
	}

	switch op {
	case OpSet:
		if err := json.Unmarshal(data, &c.All); err != nil {
			return c, err
		}
		if c.All == nil {
			c.All = []T{}
		}
	case OpCreateOrUpdate:
		if err := json.Unmarshal(data, &c.Value); err != nil {
			return c, err
		}
	case OpDelete:
		id, err := decodeID[K](data)
		if err != nil {
			return c, err
		}
		c.ID = id
	}
	return c, nil
}

// decodeID accepts a bare id or an object carrying "id".
func decodeID[K comparable](data json.RawMessage) (K, error) {
	var id K
	if err := json.Unmarshal(data, &id); err == nil {
		return id, nil
	}
	var obj struct {
		ID *K `json:"id"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return id, err
	}
	if obj.ID == nil {
		return id, fmt.Errorf("missing id")
	}
	return *obj.ID, nil
}

func decodePrice(op Operation, data json.RawMessage) (Payload, error) {
	v, err := decodeValue[PriceUpdatePayload](op, data)
	if err != nil {
		return nil, err
	}
	p := v.(PriceUpdatePayload)
	if _, err := stock.ParseKind(string(p.Kind)); err != nil {
		return nil, err
	}
	if p.ID <= 0 {
		return nil, fmt.Errorf("invalid id %d", p.ID)
	}
	return p, nil
}

func decodeUser(op Operation, data json.RawMessage) (Payload, error) {
	if op == OpDelete || isNull(data) {
		return UserPayload{}, nil
	}
	var u market.User
	if err := json.Unmarshal(data, &u); err != nil {
		return nil, err
	}
	return UserPayload{User: &u}, nil
}
