package stream

import (
	"sync"
	"testing"
	"time"
)

func TestQueue_PushPop(t *testing.T) {
	q := NewQueue[int](10)

	for i := 0; i < 5; i++ {
		if !q.Push(i) {
			t.Fatalf("Push(%d) returned false", i)
		}
	}

	if q.Len() != 5 {
		t.Errorf("Len = %d, want 5", q.Len())
	}

	for i := 0; i < 5; i++ {
		v, ok := q.Pop()
		if !ok {
			t.Fatalf("Pop %d returned closed", i)
		}
		if v != i {
			t.Errorf("Pop = %d, want %d", v, i)
		}
	}
}

func TestQueue_GrowsBeforeFull(t *testing.T) {
	q := NewQueue[int](10)

	// 70% of 10 is 7; pushing the 7th item trips the threshold.
	for i := 0; i < 8; i++ {
		q.Push(i)
	}

	if q.Cap() <= 10 {
		t.Errorf("Cap = %d, want > 10 after growth", q.Cap())
	}

	stats := q.Stats()
	if stats.ResizeCount == 0 {
		t.Error("ResizeCount = 0, want at least one resize")
	}

	// Order survives the resize.
	for i := 0; i < 8; i++ {
		v, _ := q.Pop()
		if v != i {
			t.Errorf("Pop = %d, want %d", v, i)
		}
	}
}

func TestQueue_GrowPreservesWrappedOrder(t *testing.T) {
	q := NewQueue[int](8)

	// Wrap the ring: fill partway, drain, refill past the physical end.
	for i := 0; i < 4; i++ {
		q.Push(i)
	}
	for i := 0; i < 4; i++ {
		q.Pop()
	}
	for i := 10; i < 20; i++ {
		q.Push(i)
	}

	for i := 10; i < 20; i++ {
		v, ok := q.Pop()
		if !ok || v != i {
			t.Errorf("Pop = %d (%v), want %d", v, ok, i)
		}
	}
}

func TestQueue_TryPopEmpty(t *testing.T) {
	q := NewQueue[string](4)

	if _, ok := q.TryPop(); ok {
		t.Error("TryPop on empty queue returned ok")
	}

	q.Push("a")
	v, ok := q.TryPop()
	if !ok || v != "a" {
		t.Errorf("TryPop = %q (%v), want a", v, ok)
	}
}

func TestQueue_CloseDrains(t *testing.T) {
	q := NewQueue[int](4)
	q.Push(1)
	q.Push(2)
	q.Close()

	if q.Push(3) {
		t.Error("Push after Close returned true")
	}

	if v, ok := q.Pop(); !ok || v != 1 {
		t.Errorf("Pop = %d (%v), want 1", v, ok)
	}
	if v, ok := q.Pop(); !ok || v != 2 {
		t.Errorf("Pop = %d (%v), want 2", v, ok)
	}
	if _, ok := q.Pop(); ok {
		t.Error("Pop after drain returned ok, want closed")
	}
}

func TestQueue_PopBlocksUntilPush(t *testing.T) {
	q := NewQueue[int](4)

	var wg sync.WaitGroup
	wg.Add(1)
	var got int
	go func() {
		defer wg.Done()
		got, _ = q.Pop()
	}()

	time.Sleep(20 * time.Millisecond)
	q.Push(42)
	wg.Wait()

	if got != 42 {
		t.Errorf("Pop = %d, want 42", got)
	}
}

func TestQueue_Drain(t *testing.T) {
	q := NewQueue[int](16)
	for i := 0; i < 10; i++ {
		q.Push(i)
	}

	batch := q.Drain(4)
	if len(batch) != 4 {
		t.Fatalf("Drain(4) returned %d items", len(batch))
	}
	for i, v := range batch {
		if v != i {
			t.Errorf("batch[%d] = %d, want %d", i, v, i)
		}
	}

	rest := q.Drain(0)
	if len(rest) != 6 {
		t.Errorf("Drain(0) returned %d items, want 6", len(rest))
	}

	if q.Drain(0) != nil {
		t.Error("Drain on empty queue should return nil")
	}
}

func TestQueue_Stats(t *testing.T) {
	q := NewQueue[int](32)
	for i := 0; i < 6; i++ {
		q.Push(i)
	}
	q.Pop()
	q.Pop()

	stats := q.Stats()
	if stats.TotalEnqueued != 6 {
		t.Errorf("TotalEnqueued = %d, want 6", stats.TotalEnqueued)
	}
	if stats.TotalDequeued != 2 {
		t.Errorf("TotalDequeued = %d, want 2", stats.TotalDequeued)
	}
	if stats.Count != 4 {
		t.Errorf("Count = %d, want 4", stats.Count)
	}
}
