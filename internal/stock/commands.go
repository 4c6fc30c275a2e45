package stock

import (
	"context"
	"encoding/json"
)

// Commands are the stock mutations the backend performs on the user's
// behalf. Results come back as Stock:UpdateStock* events, not as return
// values, so the books stay the single source of truth.
type Commands interface {
	CreateStockEntry(ctx context.Context, kind Kind, data any) (json.RawMessage, error)
	UpdateStockEntry(ctx context.Context, kind Kind, id int64, patch map[string]any) error
	SellStockEntry(ctx context.Context, kind Kind, id, price int64) error
	DeleteStockEntry(ctx context.Context, kind Kind, id int64) error
}
