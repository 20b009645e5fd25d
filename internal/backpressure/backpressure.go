// Package backpressure decides whether a record may enter a sender's queue.
package backpressure

import (
	"fmt"
	"math"

	"golang.org/x/sys/unix"
)

// Disabled turns the filesystem usage check off.
const Disabled = -1

// Gate is consulted before every enqueue.
type Gate interface {
	// Admit returns nil when a record of size bytes may be enqueued, or a
	// *DropError explaining why it must be dropped.
	Admit(size int) error
}

// Reason values carried by DropError.
const (
	ReasonDiskThreshold = "disk_threshold"
	ReasonCapacity      = "capacity"
)

// DropError reports a record rejected by a Gate.
type DropError struct {
	Reason      string
	Path        string
	UsedPercent int
	Threshold   int
	MaxBytes    int64
	MaxEntries  int
}

func (e *DropError) Error() string {
	if e.Reason == ReasonCapacity {
		return fmt.Sprintf("Dropping logs, as the in-memory queue reached its capacity (max bytes %d, max logs %d)",
			e.MaxBytes, e.MaxEntries)
	}
	return fmt.Sprintf("Dropping logs, as FS used space on %s is %d percent, and the drop threshold is %d percent",
		e.Path, e.UsedPercent, e.Threshold)
}

// ValidateThreshold accepts Disabled or a percentage in 1..100.
func ValidateThreshold(threshold int) error {
	if threshold == Disabled || (threshold >= 1 && threshold <= 100) {
		return nil
	}
	return fmt.Errorf("fs_percent_threshold should be a number between 1 and 100, or -1, got %d", threshold)
}

// Nop admits everything.
type Nop struct{}

// Admit always returns nil.
func (Nop) Admit(int) error { return nil }

// UsageFunc returns total and usable bytes of the filesystem holding path.
type UsageFunc func(path string) (total, usable uint64, err error)

// Statfs reports filesystem usage through statfs(2).
func Statfs(path string) (uint64, uint64, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return 0, 0, err
	}
	return st.Blocks * uint64(st.Bsize), st.Bavail * uint64(st.Bsize), nil
}

// DiskGate drops records while the queue's filesystem is at or above
// Threshold percent used. Usage is measured on every call.
type DiskGate struct {
	Path      string
	Threshold int
	Usage     UsageFunc
}

// NewDiskGate returns a DiskGate measuring path with statfs, or Nop when
// threshold is Disabled.
func NewDiskGate(path string, threshold int) Gate {
	if threshold == Disabled {
		return Nop{}
	}
	return &DiskGate{Path: path, Threshold: threshold, Usage: Statfs}
}

// Admit measures usage and compares it to the threshold. A failed
// measurement admits the record; the write itself will surface a full disk.
func (g *DiskGate) Admit(int) error {
	if g.Threshold == Disabled {
		return nil
	}
	usage := g.Usage
	if usage == nil {
		usage = Statfs
	}
	total, usable, err := usage(g.Path)
	if err != nil || total == 0 {
		return nil
	}

	used := UsedPercent(total, usable)
	if used >= g.Threshold {
		diskGateRejectedTotal.Inc()
		return &DropError{
			Reason:      ReasonDiskThreshold,
			Path:        g.Path,
			UsedPercent: used,
			Threshold:   g.Threshold,
		}
	}
	return nil
}

// UsedPercent is 100 minus the truncated usable percentage.
func UsedPercent(total, usable uint64) int {
	if usable > math.MaxUint64/100 {
		return 100 - int(float64(usable)/float64(total)*100)
	}
	return 100 - int(usable*100/total)
}

// Capacity is the view of a bounded queue a CapacityGate needs.
type Capacity interface {
	Fits(size int) bool
}

// CapacityGate drops records that would push an in-memory queue past either
// of its budgets.
type CapacityGate struct {
	Queue      Capacity
	MaxBytes   int64
	MaxEntries int
}

// Admit rejects when the record does not fit.
func (g *CapacityGate) Admit(size int) error {
	if g.Queue.Fits(size) {
		return nil
	}
	capacityGateRejectedTotal.Inc()
	return &DropError{
		Reason:     ReasonCapacity,
		MaxBytes:   g.MaxBytes,
		MaxEntries: g.MaxEntries,
	}
}
