package queue

import (
	"testing"
	"time"
)

func TestPopOrdersByPriorityThenFIFO(t *testing.T) {
	q := New()
	q.Push(Item{ID: 1, Priority: PriorityLow, CreatedAt: 1})
	q.Push(Item{ID: 2, Priority: PriorityHigh, CreatedAt: 2})
	q.Push(Item{ID: 3, Priority: PriorityHigh, CreatedAt: 1})
	q.Push(Item{ID: 4, Priority: PriorityNormal, CreatedAt: 3})

	want := []uint64{3, 2, 4, 1}
	for _, id := range want {
		item, ok := q.Pop()
		if !ok {
			t.Fatalf("expected item, queue empty")
		}
		if item.ID != id {
			t.Errorf("got ID %d, want %d", item.ID, id)
		}
	}
}

func TestPopSkipsCancelledItems(t *testing.T) {
	q := New()
	q.Push(Item{ID: 1, Priority: PriorityNormal})
	q.Push(Item{ID: 2, Priority: PriorityNormal, CreatedAt: 1})
	q.Cancel(1)

	item, ok := q.Pop()
	if !ok || item.ID != 2 {
		t.Fatalf("expected item 2, got %+v ok=%v", item, ok)
	}
}

func TestPopReturnsFalseWhenStopped(t *testing.T) {
	q := New()
	q.Push(Item{ID: 1})
	q.Stop()

	_, ok := q.Pop()
	if ok {
		t.Error("expected Pop to return false after Stop, even with items remaining")
	}
}

func TestPopBlocksUntilPush(t *testing.T) {
	q := New()
	done := make(chan Item, 1)
	go func() {
		item, ok := q.Pop()
		if ok {
			done <- item
		}
	}()

	time.Sleep(20 * time.Millisecond)
	q.Push(Item{ID: 42})

	select {
	case item := <-done:
		if item.ID != 42 {
			t.Errorf("got ID %d, want 42", item.ID)
		}
	case <-time.After(time.Second):
		t.Fatal("Pop did not unblock after Push")
	}
}

func TestTryPopNonBlocking(t *testing.T) {
	q := New()
	if _, ok := q.TryPop(); ok {
		t.Error("expected empty queue to return false")
	}
	q.Push(Item{ID: 1})
	if item, ok := q.TryPop(); !ok || item.ID != 1 {
		t.Errorf("TryPop = %+v, %v", item, ok)
	}
}

func TestCancelIsIdempotentReturn(t *testing.T) {
	q := New()
	if !q.Cancel(1) {
		t.Error("first cancel should return true")
	}
	if q.Cancel(1) {
		t.Error("second cancel of same id should return false")
	}
}

func TestCancelByPath(t *testing.T) {
	q := New()
	q.Push(Item{ID: 1, Payload: "a"})
	q.Push(Item{ID: 2, Payload: "b"})
	q.Push(Item{ID: 3, Payload: "a"})

	count := q.CancelByPath(func(p any) bool { return p.(string) == "a" })
	if count != 2 {
		t.Errorf("CancelByPath count = %d, want 2", count)
	}
	if q.Len() != 1 {
		t.Errorf("Len = %d, want 1", q.Len())
	}
	if !q.IsCancelled(1) || !q.IsCancelled(3) {
		t.Error("expected ids 1 and 3 in cancellation set")
	}
}

func TestCancelAllDrainsQueue(t *testing.T) {
	q := New()
	q.Push(Item{ID: 1})
	q.Push(Item{ID: 2})
	count := q.CancelAll()
	if count != 2 {
		t.Errorf("CancelAll count = %d, want 2", count)
	}
	if q.Len() != 0 {
		t.Errorf("Len = %d, want 0", q.Len())
	}
}

func TestUpdatePriorityReordersQueue(t *testing.T) {
	q := New()
	q.Push(Item{ID: 1, Priority: PriorityLow, CreatedAt: 1})
	q.Push(Item{ID: 2, Priority: PriorityLow, CreatedAt: 2})

	if !q.UpdatePriority(2, PriorityImmediate) {
		t.Fatal("expected UpdatePriority to find item")
	}
	item, ok := q.Pop()
	if !ok || item.ID != 2 {
		t.Errorf("expected item 2 first after priority bump, got %+v", item)
	}
}

func TestRestartClearsCancelledAndStopped(t *testing.T) {
	q := New()
	q.Cancel(1)
	q.Stop()
	q.Restart()

	if q.IsCancelled(1) {
		t.Error("expected cancellation set cleared on restart")
	}
	q.Push(Item{ID: 2})
	item, ok := q.Pop()
	if !ok || item.ID != 2 {
		t.Error("expected queue operational after restart")
	}
}
