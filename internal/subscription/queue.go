package subscription

import "sync"

// queue is an unbounded FIFO drained in batches. Producers append to the
// pending slice; the consumer swaps it for its spent batch, so a burst of
// events costs one wakeup and no per-item copying.
type queue[T any] struct {
	mu      sync.Mutex
	cond    *sync.Cond
	pending []T
	closed  bool

	batches  int64
	maxDepth int
}

func newQueue[T any](initialCapacity int) *queue[T] {
	if initialCapacity < 1 {
		initialCapacity = 1
	}
	q := &queue[T]{pending: make([]T, 0, initialCapacity)}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// push appends an item. It returns false once the queue is closed.
func (q *queue[T]) push(item T) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}
	q.pending = append(q.pending, item)
	q.maxDepth = max(q.maxDepth, len(q.pending))
	q.cond.Signal()
	return true
}

// drain blocks until items are pending and returns all of them in arrival
// order. spare is the caller's previous batch; the queue reuses its backing
// array, so the caller must not touch spare afterwards. ok is false when the
// queue is closed and empty.
func (q *queue[T]) drain(spare []T) (batch []T, ok bool) {
	clear(spare)

	q.mu.Lock()
	defer q.mu.Unlock()

	for len(q.pending) == 0 && !q.closed {
		q.cond.Wait()
	}
	if len(q.pending) == 0 {
		return spare[:0], false
	}

	batch = q.pending
	q.pending = spare[:0]
	q.batches++
	return batch, true
}

// close stops further pushes and wakes a blocked drain. Items already queued
// are still delivered.
func (q *queue[T]) close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.cond.Broadcast()
}

type queueStats struct {
	depth    int
	maxDepth int
	batches  int64
}

func (q *queue[T]) stats() queueStats {
	q.mu.Lock()
	defer q.mu.Unlock()
	return queueStats{depth: len(q.pending), maxDepth: q.maxDepth, batches: q.batches}
}
