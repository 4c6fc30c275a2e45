package market

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/rickgao/stocksync/internal/stock"
)

// Registry mirrors the user's marketplace state as pushed by the backend:
// orders, auctions, transactions, chats and the signed-in profile.
type Registry struct {
	Orders       *stock.Collection[Order, string]
	Auctions     *stock.Collection[Auction, string]
	Transactions *stock.Collection[Transaction, int64]
	Chats        *stock.Collection[Chat, string]
	ChatMessages *stock.Collection[ChatMessage, string]

	mu   sync.RWMutex
	user *User

	changes chan Change
	logger  *slog.Logger
}

// NewRegistry creates an empty registry. Change notifications are buffered
// up to bufferSize; further notifications are dropped until drained.
func NewRegistry(bufferSize int, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	if bufferSize <= 0 {
		bufferSize = 100
	}
	return &Registry{
		Orders:       stock.NewCollection(func(o Order) string { return o.ID }),
		Auctions:     stock.NewCollection(func(a Auction) string { return a.ID }),
		Transactions: stock.NewCollection(func(t Transaction) int64 { return t.ID }),
		Chats:        stock.NewCollection(func(c Chat) string { return c.ID }),
		ChatMessages: stock.NewCollection(func(m ChatMessage) string { return m.ID }),
		changes:      make(chan Change, bufferSize),
		logger:       logger,
	}
}

// Changes returns the channel of applied mutations.
func (r *Registry) Changes() <-chan Change {
	return r.changes
}

// notifyChange sends without blocking; slow consumers miss notifications.
func (r *Registry) notifyChange(c Change) {
	select {
	case r.changes <- c:
	default:
		r.logger.Warn("market change channel full, dropping notification",
			"table", c.Table,
			"op", c.Op,
		)
	}
}

// Apply performs op on a collection. value is used by upserts, id by deletes
// and all by bulk sets.
func Apply[T any, K comparable](r *Registry, table Table, c *stock.Collection[T, K], op stock.Op, value T, id K, all []T) error {
	switch op {
	case stock.OpUpsert:
		c.Upsert(value)
	case stock.OpDelete:
		c.Delete(id)
	case stock.OpSet:
		c.Set(all)
	default:
		return fmt.Errorf("%s: unsupported op %v", table, op)
	}
	r.notifyChange(Change{Table: table, Op: op.String(), Count: c.Len()})
	return nil
}

// SetUser replaces the signed-in profile. A nil user signs out.
func (r *Registry) SetUser(u *User) {
	r.mu.Lock()
	if u != nil {
		cp := *u
		u = &cp
	}
	r.user = u
	r.mu.Unlock()

	count := 0
	if u != nil {
		count = 1
	}
	r.notifyChange(Change{Table: TableUser, Op: stock.OpSet.String(), Count: count})
}

// User returns the signed-in profile.
func (r *Registry) User() (User, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.user == nil {
		return User{}, false
	}
	return *r.user, true
}

// MessagesFor returns the messages of one chat in arrival order.
func (r *Registry) MessagesFor(chatID string) []ChatMessage {
	out := []ChatMessage{}
	for _, m := range r.ChatMessages.Snapshot() {
		if m.ChatID == chatID {
			out = append(out, m)
		}
	}
	return out
}

// Summary aggregates the current tables.
func (r *Registry) Summary() Summary {
	var s Summary
	for _, o := range r.Orders.Snapshot() {
		switch o.OrderType {
		case "buy":
			s.BuyOrders++
		case "sell":
			s.SellOrders++
		}
	}
	for _, a := range r.Auctions.Snapshot() {
		if !a.Closed {
			s.OpenAuctions++
		}
	}
	for _, t := range r.Transactions.Snapshot() {
		s.Transactions++
		switch t.TransactionType {
		case "sell":
			s.Revenue += t.Price
		case "buy":
			s.Expenses += t.Price
		}
	}
	for _, c := range r.Chats.Snapshot() {
		if c.UnreadCount > 0 {
			s.UnreadChats++
		}
	}
	s.ChatMessages = r.ChatMessages.Len()
	if u, ok := r.User(); ok {
		s.SignedInAs = u.IngameName
	}
	return s
}
