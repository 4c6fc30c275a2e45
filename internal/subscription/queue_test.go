package subscription

import (
	"slices"
	"sync"
	"testing"
	"time"
)

func TestQueue_DrainReturnsBatchInOrder(t *testing.T) {
	q := newQueue[int](4)
	for i := 0; i < 100; i++ {
		if !q.push(i) {
			t.Fatalf("push(%d) = false", i)
		}
	}

	batch, ok := q.drain(nil)
	if !ok || len(batch) != 100 {
		t.Fatalf("drain() = %d items, %v; want 100, true", len(batch), ok)
	}
	for i, v := range batch {
		if v != i {
			t.Fatalf("batch[%d] = %d, want %d", i, v, i)
		}
	}

	st := q.stats()
	if st.depth != 0 || st.maxDepth != 100 || st.batches != 1 {
		t.Errorf("stats() = %+v, want depth 0, maxDepth 100, batches 1", st)
	}
}

func TestQueue_SpareIsReused(t *testing.T) {
	q := newQueue[int](2)
	var got []int
	var batch []int
	next := 0
	for round := 0; round < 20; round++ {
		for i := 0; i < round%4+1; i++ {
			q.push(next)
			next++
		}
		var ok bool
		batch, ok = q.drain(batch)
		if !ok {
			t.Fatalf("round %d: drain() ok = false", round)
		}
		got = append(got, batch...)
	}

	want := make([]int, next)
	for i := range want {
		want[i] = i
	}
	if !slices.Equal(got, want) {
		t.Errorf("drained %v, want %v", got, want)
	}
}

func TestQueue_CloseDrainsThenStops(t *testing.T) {
	q := newQueue[string](2)
	q.push("a")
	q.push("b")
	q.close()

	if q.push("c") {
		t.Error("push after close = true")
	}
	batch, ok := q.drain(nil)
	if !ok || !slices.Equal(batch, []string{"a", "b"}) {
		t.Errorf("drain() = %v, %v; want [a b], true", batch, ok)
	}
	if _, ok := q.drain(batch); ok {
		t.Error("drain() on closed empty queue ok = true")
	}
}

func TestQueue_DrainBlocksUntilPush(t *testing.T) {
	q := newQueue[int](1)
	var wg sync.WaitGroup
	wg.Add(1)
	var got []int
	go func() {
		defer wg.Done()
		got, _ = q.drain(nil)
	}()

	time.Sleep(10 * time.Millisecond)
	q.push(42)
	wg.Wait()
	if !slices.Equal(got, []int{42}) {
		t.Errorf("drain() = %v, want [42]", got)
	}
}
