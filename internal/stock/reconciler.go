package stock

import (
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"
)

// Op is the kind of change applied to a book.
type Op int

const (
	OpUpsert Op = iota + 1
	OpDelete
	OpSet
)

func (o Op) String() string {
	switch o {
	case OpUpsert:
		return "upsert"
	case OpDelete:
		return "delete"
	case OpSet:
		return "set"
	}
	return fmt.Sprintf("Op(%d)", int(o))
}

// Change is one mutation of a book. Value is used by OpUpsert, ID by OpDelete
// and All by OpSet.
type Change[T any] struct {
	Op    Op
	Value T
	ID    int64
	All   []T
}

// Totals aggregates a book.
type Totals struct {
	Count         int   `json:"count"`
	TotalPurchase int64 `json:"total_purchase"`
	TotalListed   int64 `json:"total_listed"`
}

// Book is the collection of one stock kind with derived statuses.
type Book[T any, P entryPtr[T]] struct {
	coll       *Collection[T, int64]
	thresholds func() Thresholds
}

func newBook[T any, P entryPtr[T]](thresholds func() Thresholds) *Book[T, P] {
	b := &Book[T, P]{
		coll:       NewCollection(func(v T) int64 { return P(&v).base().ID }),
		thresholds: thresholds,
	}
	b.coll.OnPublish(b.recompute)
	return b
}

// recompute derives every status in collection order.
func (b *Book[T, P]) recompute(items []T) {
	th := b.thresholds()
	listed := make(map[string]int)
	for i := range items {
		p := P(&items[i])
		e := p.base()
		key := p.groupKey()
		e.Status, e.ListPrice = DeriveStatus(Input{
			Bought:         e.Bought,
			MinimumPrice:   e.MinimumPrice,
			PriceHistory:   e.PriceHistory,
			Disabled:       e.Disabled,
			Probe:          e.Probe,
			ListedSiblings: listed[key],
		}, th)
		if e.Status.Listed() {
			listed[key]++
		}
	}
}

// Upsert inserts or replaces an entry. Status and ListPrice on v are ignored.
func (b *Book[T, P]) Upsert(v T) (bool, error) {
	if id := P(&v).base().ID; id <= 0 {
		return false, fmt.Errorf("%w: id %d", ErrInvalidEntry, id)
	}
	return b.coll.Upsert(v), nil
}

// Delete removes an entry; unknown ids are a no-op.
func (b *Book[T, P]) Delete(id int64) bool {
	return b.coll.Delete(id)
}

// Set replaces the whole book. Entries with an invalid id are skipped and
// counted in the returned value.
func (b *Book[T, P]) Set(all []T) int {
	valid := make([]T, 0, len(all))
	for _, v := range all {
		if P(&v).base().ID > 0 {
			valid = append(valid, v)
		}
	}
	b.coll.Set(valid)
	return len(all) - len(valid)
}

// Apply dispatches a Change to Upsert, Delete or Set.
func (b *Book[T, P]) Apply(c Change[T]) error {
	switch c.Op {
	case OpUpsert:
		_, err := b.Upsert(c.Value)
		return err
	case OpDelete:
		b.Delete(c.ID)
		return nil
	case OpSet:
		if skipped := b.Set(c.All); skipped > 0 {
			return fmt.Errorf("%w: %d entries without id", ErrInvalidEntry, skipped)
		}
		return nil
	}
	return fmt.Errorf("unsupported op %v", c.Op)
}

// AppendPrice records a new valuation for the entry with the given id.
func (b *Book[T, P]) AppendPrice(id int64, point PricePoint) error {
	ok := b.coll.Update(id, func(v *T) {
		e := P(v).base()
		e.PriceHistory = append(slices.Clip(e.PriceHistory), point)
		e.UpdatedAt = point.CreatedAt
	})
	if !ok {
		return fmt.Errorf("%w: id %d", ErrUnknownEntry, id)
	}
	return nil
}

// Get returns the entry with the given id.
func (b *Book[T, P]) Get(id int64) (T, bool) {
	return b.coll.Get(id)
}

// Snapshot returns every entry in insertion order.
func (b *Book[T, P]) Snapshot() []T {
	return b.coll.Snapshot()
}

// Len returns the number of entries.
func (b *Book[T, P]) Len() int {
	return b.coll.Len()
}

// Totals sums purchase prices and effective listing prices.
func (b *Book[T, P]) Totals() Totals {
	items := b.coll.load()
	t := Totals{Count: len(items)}
	for i := range items {
		e := P(&items[i]).base()
		t.TotalPurchase += e.Bought
		if e.ListPrice != nil {
			t.TotalListed += *e.ListPrice
		}
	}
	return t
}

// Reconciler owns the item and riven books and the thresholds their statuses
// are derived with.
type Reconciler struct {
	Items  *Book[Item, *Item]
	Rivens *Book[Riven, *Riven]

	mu         sync.RWMutex
	thresholds Thresholds

	logger *slog.Logger
	now    func() time.Time
}

// NewReconciler creates empty books using th for status derivation.
func NewReconciler(th Thresholds, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Reconciler{
		thresholds: th,
		logger:     logger,
		now:        time.Now,
	}
	r.Items = newBook[Item](r.Thresholds)
	r.Rivens = newBook[Riven](r.Thresholds)
	return r
}

// Thresholds returns the current thresholds.
func (r *Reconciler) Thresholds() Thresholds {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.thresholds
}

// SetThresholds replaces the thresholds and recomputes both books.
func (r *Reconciler) SetThresholds(th Thresholds) {
	r.mu.Lock()
	r.thresholds = th
	r.mu.Unlock()

	r.Items.coll.Refresh()
	r.Rivens.coll.Refresh()
	r.logger.Info("Stock thresholds updated",
		"profit_floor", th.ProfitFloor,
		"sma_threshold", th.SMAThreshold,
		"sma_window", th.SMAWindow,
		"order_cap", th.OrderCap,
		"price_band", th.PriceBand,
	)
}

// ApplyItem applies a change to the item book.
func (r *Reconciler) ApplyItem(c Change[Item]) error {
	if err := r.Items.Apply(c); err != nil {
		r.logger.Warn("Stock item change rejected", "op", c.Op, "error", err)
		return err
	}
	return nil
}

// ApplyRiven applies a change to the riven book.
func (r *Reconciler) ApplyRiven(c Change[Riven]) error {
	if err := r.Rivens.Apply(c); err != nil {
		r.logger.Warn("Stock riven change rejected", "op", c.Op, "error", err)
		return err
	}
	return nil
}

// UpdatePriceByID appends a price point to the entry of the given kind.
// Unknown ids are logged and dropped.
func (r *Reconciler) UpdatePriceByID(kind Kind, id, price int64) error {
	point := PricePoint{Price: price, CreatedAt: r.now()}

	var err error
	switch kind {
	case KindItem:
		err = r.Items.AppendPrice(id, point)
	case KindRiven:
		err = r.Rivens.AppendPrice(id, point)
	default:
		err = fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	if err != nil {
		r.logger.Warn("Price update dropped", "kind", kind, "id", id, "price", price, "error", err)
	}
	return err
}
