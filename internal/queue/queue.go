// Package queue holds the ordered record stores a sender drains from.
//
// Two implementations share the Queue interface: DiskQueue persists every
// record to chunk files and survives restarts, MemoryQueue keeps records on
// the heap and is bounded by byte and entry budgets.
//
// Records move through three states. Enqueue makes a record pending. Dequeue
// hands it out (in flight). Commit acknowledges everything handed out so far;
// PushFront returns an unacknowledged batch to the head instead.
package queue

import "errors"

var (
	// ErrEmptyQueue is returned by Dequeue when nothing is pending.
	ErrEmptyQueue = errors.New("queue is empty")
	// ErrQueueClosed is returned when operations are attempted on a closed queue.
	ErrQueueClosed = errors.New("queue is closed")
	// ErrQueueFull is returned when accepting a record would exceed a budget.
	ErrQueueFull = errors.New("queue is full")
	// ErrDiskFull is returned when the filesystem rejects a write with ENOSPC.
	ErrDiskFull = errors.New("disk is full")
	// ErrLocked is returned when another process or queue owns the directory.
	ErrLocked = errors.New("queue directory is locked by another owner")
	// ErrCorrupt is returned when a stored frame fails its checksum.
	ErrCorrupt = errors.New("corrupt queue frame")
)

// Queue is an ordered FIFO of opaque records.
type Queue interface {
	// Enqueue appends data to the tail. It never blocks on I/O beyond a
	// single write.
	Enqueue(data []byte) error
	// Dequeue removes the head and returns it, or ErrEmptyQueue.
	Dequeue() ([]byte, error)
	// PushFront returns an unacknowledged batch to the head in its
	// original order.
	PushFront(batch [][]byte) error
	// Commit acknowledges every record dequeued so far.
	Commit() error
	// Len returns the number of pending records. In-flight records are not
	// counted.
	Len() int
	IsEmpty() bool
	// Bytes returns the payload size of pending records.
	Bytes() int64
	Close() error
}

// Compactor is implemented by queues that reclaim storage in the background.
type Compactor interface {
	Compact() error
}

var (
	_ Queue     = (*DiskQueue)(nil)
	_ Queue     = (*MemoryQueue)(nil)
	_ Compactor = (*DiskQueue)(nil)
)
