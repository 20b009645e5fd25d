package sender

import (
	"context"
	"errors"

	"github.com/szibis/logship/internal/queue"
)

// MaxBatchSizeBytes is the soft ceiling of one delivery batch. The size is
// checked after each record is added, so a batch may exceed it by one record.
const MaxBatchSizeBytes = 3 * 1024 * 1024

// Record is one formatted log line.
type Record struct {
	Payload []byte
}

// Size returns the payload length in bytes.
func (r Record) Size() int { return len(r.Payload) }

// batch is a run of records dequeued together and delivered as one request.
type batch struct {
	records [][]byte
	bytes   int
}

func (b *batch) len() int { return len(b.records) }

func (b *batch) add(data []byte) {
	b.records = append(b.records, data)
	b.bytes += len(data)
}

// collectBatch dequeues from q until it is empty or maxBytes is reached. A
// cancelled context stops accumulation but the partial batch is returned.
// Corrupt frames are skipped and passed to onCorrupt.
func collectBatch(ctx context.Context, q queue.Queue, maxBytes int, onCorrupt func(error)) (*batch, error) {
	b := &batch{}
	for b.bytes < maxBytes {
		if ctx.Err() != nil {
			break
		}
		data, err := q.Dequeue()
		if err != nil {
			if errors.Is(err, queue.ErrEmptyQueue) {
				break
			}
			if errors.Is(err, queue.ErrCorrupt) {
				if onCorrupt != nil {
					onCorrupt(err)
				}
				continue
			}
			return b, err
		}
		b.add(data)
	}
	return b, nil
}
