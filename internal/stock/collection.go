package stock

import (
	"slices"
	"sync"
	"sync/atomic"
)

// Collection is an ordered set of values keyed by ID.
//
// Writers are serialized by a mutex and build a fresh slice for every
// mutation; readers load the current slice without locking. A published
// slice is never modified again.
type Collection[T any, K comparable] struct {
	mu       sync.Mutex
	items    atomic.Pointer[[]T]
	id       func(T) K
	finalize func([]T)
}

// NewCollection creates an empty collection. id extracts the key of a value.
func NewCollection[T any, K comparable](id func(T) K) *Collection[T, K] {
	c := &Collection[T, K]{id: id}
	empty := []T{}
	c.items.Store(&empty)
	return c
}

// OnPublish registers fn to run on every new slice before it becomes visible.
// fn may modify elements in place; it runs under the writer lock.
func (c *Collection[T, K]) OnPublish(fn func([]T)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.finalize = fn
}

func (c *Collection[T, K]) load() []T {
	return *c.items.Load()
}

// publishLocked stores next as the current slice. Caller holds c.mu.
func (c *Collection[T, K]) publishLocked(next []T) {
	if c.finalize != nil {
		c.finalize(next)
	}
	c.items.Store(&next)
}

// Snapshot returns a copy of the current contents in insertion order.
func (c *Collection[T, K]) Snapshot() []T {
	return slices.Clone(c.load())
}

// Len returns the number of values.
func (c *Collection[T, K]) Len() int {
	return len(c.load())
}

// Get returns the value with the given key.
func (c *Collection[T, K]) Get(id K) (T, bool) {
	for _, v := range c.load() {
		if c.id(v) == id {
			return v, true
		}
	}
	var zero T
	return zero, false
}

func (c *Collection[T, K]) indexOf(items []T, id K) int {
	return slices.IndexFunc(items, func(v T) bool { return c.id(v) == id })
}

// Upsert replaces the value with the same key in place, or appends it.
// It reports whether the value was newly added.
func (c *Collection[T, K]) Upsert(v T) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	next := slices.Clone(c.load())
	created := false
	if i := c.indexOf(next, c.id(v)); i >= 0 {
		next[i] = v
	} else {
		next = append(next, v)
		created = true
	}
	c.publishLocked(next)
	return created
}

// Delete removes the value with the given key. Deleting an unknown key is a
// no-op and reports false.
func (c *Collection[T, K]) Delete(id K) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	cur := c.load()
	i := c.indexOf(cur, id)
	if i < 0 {
		return false
	}
	next := make([]T, 0, len(cur)-1)
	next = append(next, cur[:i]...)
	next = append(next, cur[i+1:]...)
	c.publishLocked(next)
	return true
}

// Set replaces the whole contents. When all holds duplicate keys the later
// value wins and keeps the position of the first occurrence.
func (c *Collection[T, K]) Set(all []T) {
	c.mu.Lock()
	defer c.mu.Unlock()

	pos := make(map[K]int, len(all))
	next := make([]T, 0, len(all))
	for _, v := range all {
		k := c.id(v)
		if i, dup := pos[k]; dup {
			next[i] = v
			continue
		}
		pos[k] = len(next)
		next = append(next, v)
	}
	c.publishLocked(next)
}

// Update applies fn to a copy of the value with the given key and publishes
// the result. It reports false when the key is unknown.
func (c *Collection[T, K]) Update(id K, fn func(*T)) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	cur := c.load()
	i := c.indexOf(cur, id)
	if i < 0 {
		return false
	}
	next := slices.Clone(cur)
	fn(&next[i])
	c.publishLocked(next)
	return true
}

// Refresh republishes the current contents, re-running the publish hook.
func (c *Collection[T, K]) Refresh() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.publishLocked(slices.Clone(c.load()))
}
