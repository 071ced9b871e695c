// Package queue implements C4: a thread-safe priority request queue with
// a parallel cancellation set, built on container/heap and
// sync.Mutex/sync.Cond the same way the rest of the corpus reaches for
// stdlib when no example repo implements the same structure (no repo in
// the pack needs a priority queue).
package queue

// Priority orders requests; higher values are serviced first.
type Priority int

const (
	PriorityLow Priority = iota
	PriorityNormal
	PriorityHigh
	PriorityImmediate
)

// Item is the minimal shape the queue needs from a caller's request
// type: a unique, monotonically increasing ID, a priority, and an
// insertion key for FIFO tie-breaking. Callers carry their own request
// alongside it in Payload.
type Item struct {
	ID        uint64
	Priority  Priority
	CreatedAt int64 // increasing insertion key (the generator uses a per-process counter); only used for ordering
	Payload   any
}
