package queue

import (
	"container/heap"
	"sync"
)

// Queue is the C4 priority request queue: a container/heap-ordered
// buffer guarded by a mutex/cond, plus a cancellation set workers
// consult between dequeuing and processing (spec §4.4).
type Queue struct {
	mu        sync.Mutex
	cond      *sync.Cond
	items     itemHeap
	cancelled map[uint64]struct{}
	stopped   bool
}

// New returns a running (not stopped) queue.
func New() *Queue {
	q := &Queue{
		items:     itemHeap{},
		cancelled: make(map[uint64]struct{}),
	}
	q.cond = sync.NewCond(&q.mu)
	heap.Init(&q.items)
	return q
}

// Push inserts an item by priority, waking one waiter. Silently ignored
// if the queue is stopped.
func (q *Queue) Push(item Item) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.stopped {
		return
	}
	heap.Push(&q.items, item)
	q.cond.Signal()
}

// Pop blocks until an item is available or the queue stops, skipping
// (and consuming) any items whose IDs are in the cancellation set along
// the way. Returns ok=false once stopped, even if items remain.
func (q *Queue) Pop() (Item, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for {
		if q.stopped {
			return Item{}, false
		}
		for q.items.Len() > 0 {
			item := heap.Pop(&q.items).(Item)
			if _, cancelled := q.cancelled[item.ID]; cancelled {
				delete(q.cancelled, item.ID)
				continue
			}
			return item, true
		}
		q.cond.Wait()
	}
}

// TryPop is the non-blocking variant of Pop.
func (q *Queue) TryPop() (Item, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.stopped {
		return Item{}, false
	}
	for q.items.Len() > 0 {
		item := heap.Pop(&q.items).(Item)
		if _, cancelled := q.cancelled[item.ID]; cancelled {
			delete(q.cancelled, item.ID)
			continue
		}
		return item, true
	}
	return Item{}, false
}

// Cancel adds id to the cancellation set. Returns whether it was newly
// added. The matching request is not physically removed until a worker
// encounters it (spec §4.4).
func (q *Queue) Cancel(id uint64) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, ok := q.cancelled[id]; ok {
		return false
	}
	q.cancelled[id] = struct{}{}
	return true
}

// CancelByPath physically filters the queue for items whose Payload
// matches matchFn, adding their IDs to the cancellation set. Returns the
// count removed. matchFn is supplied by the caller since the queue
// itself is payload-agnostic.
func (q *Queue) CancelByPath(matchFn func(payload any) bool) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	kept := q.items[:0]
	count := 0
	for _, item := range q.items {
		if matchFn(item.Payload) {
			q.cancelled[item.ID] = struct{}{}
			count++
			continue
		}
		kept = append(kept, item)
	}
	q.items = kept
	heap.Init(&q.items)
	return count
}

// CancelAll drains the queue into the cancellation set and returns the
// count.
func (q *Queue) CancelAll() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	count := len(q.items)
	for _, item := range q.items {
		q.cancelled[item.ID] = struct{}{}
	}
	q.items = q.items[:0]
	heap.Init(&q.items)
	return count
}

// UpdatePriority rebuilds the queue with item id's priority changed to
// newPriority. Returns whether the item was found.
func (q *Queue) UpdatePriority(id uint64, newPriority Priority) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i := range q.items {
		if q.items[i].ID == id {
			q.items[i].Priority = newPriority
			heap.Init(&q.items)
			return true
		}
	}
	return false
}

// IsCancelled reports whether id is in the cancellation set, without
// consuming it.
func (q *Queue) IsCancelled(id uint64) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, ok := q.cancelled[id]
	return ok
}

// ClearCancelled removes id from the cancellation set.
func (q *Queue) ClearCancelled(id uint64) {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.cancelled, id)
}

// Stop wakes all waiters and makes Pop return false permanently until
// Restart.
func (q *Queue) Stop() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.stopped = true
	q.cond.Broadcast()
}

// Restart clears the stopped flag and the cancellation set.
func (q *Queue) Restart() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.stopped = false
	q.cancelled = make(map[uint64]struct{})
}

// Len reports the number of items currently queued (not counting those
// only present in the cancellation set).
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.items.Len()
}

// Stopped reports whether the queue is currently in the stopped state.
func (q *Queue) Stopped() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.stopped
}
