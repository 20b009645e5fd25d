package queue

import (
	"sync"
)

// Unbounded disables a MemoryQueue budget.
const Unbounded = -1

// MemoryQueue is a FIFO kept on the heap, bounded by total payload bytes and
// by entry count. When a budget would be exceeded the incoming record is
// rejected; nothing already queued is evicted. Contents are lost on exit.
type MemoryQueue struct {
	name       string
	mu         sync.Mutex
	entries    [][]byte
	bytes      int64
	maxBytes   int64
	maxEntries int
	closed     bool
}

// NewMemoryQueue creates a bounded in-memory queue. Pass Unbounded (-1) for
// either limit to disable it.
func NewMemoryQueue(name string, maxBytes int64, maxEntries int) *MemoryQueue {
	q := &MemoryQueue{
		name:       name,
		entries:    make([][]byte, 0, 64),
		maxBytes:   maxBytes,
		maxEntries: maxEntries,
	}
	updateMetrics(name, 0, 0)
	return q
}

// Fits reports whether a record of size bytes would currently be accepted.
func (q *MemoryQueue) Fits(size int) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.fitsLocked(size)
}

func (q *MemoryQueue) fitsLocked(size int) bool {
	if q.maxBytes >= 0 && q.bytes+int64(size) > q.maxBytes {
		return false
	}
	if q.maxEntries >= 0 && len(q.entries)+1 > q.maxEntries {
		return false
	}
	return true
}

// Enqueue appends data, or returns ErrQueueFull without side effects.
func (q *MemoryQueue) Enqueue(data []byte) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrQueueClosed
	}
	if !q.fitsLocked(len(data)) {
		return ErrQueueFull
	}

	q.entries = append(q.entries, data)
	q.bytes += int64(len(data))
	queueEnqueuedTotal.WithLabelValues(q.name).Inc()
	updateMetrics(q.name, len(q.entries), q.bytes)
	return nil
}

// Dequeue removes and returns the oldest record.
func (q *MemoryQueue) Dequeue() ([]byte, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil, ErrQueueClosed
	}
	if len(q.entries) == 0 {
		return nil, ErrEmptyQueue
	}

	entry := q.entries[0]
	q.entries[0] = nil // allow GC to collect the entry
	q.entries = q.entries[1:]
	q.bytes -= int64(len(entry))
	q.maybeCompact()

	updateMetrics(q.name, len(q.entries), q.bytes)
	return entry, nil
}

// PushFront puts batch back at the head. Budgets are not checked: these
// records were admitted once already.
func (q *MemoryQueue) PushFront(batch [][]byte) error {
	if len(batch) == 0 {
		return nil
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrQueueClosed
	}

	merged := make([][]byte, 0, len(batch)+len(q.entries))
	merged = append(merged, batch...)
	merged = append(merged, q.entries...)
	q.entries = merged
	for _, e := range batch {
		q.bytes += int64(len(e))
	}

	updateMetrics(q.name, len(q.entries), q.bytes)
	return nil
}

// Commit is a no-op: dequeued records are already gone from memory.
func (q *MemoryQueue) Commit() error {
	return nil
}

// Len returns the number of pending records.
func (q *MemoryQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// IsEmpty reports whether no record is pending.
func (q *MemoryQueue) IsEmpty() bool {
	return q.Len() == 0
}

// Bytes returns the payload size of pending records.
func (q *MemoryQueue) Bytes() int64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.bytes
}

// Close drops all pending records.
func (q *MemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.entries = nil
	q.bytes = 0
	updateMetrics(q.name, 0, 0)
	return nil
}

// maybeCompact compacts the slice if capacity is significantly larger than length.
// Must be called with q.mu held.
func (q *MemoryQueue) maybeCompact() {
	if cap(q.entries) > 256 && cap(q.entries) > 2*len(q.entries)+64 {
		compacted := make([][]byte, len(q.entries))
		copy(compacted, q.entries)
		q.entries = compacted
	}
}
