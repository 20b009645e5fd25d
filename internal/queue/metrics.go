package queue

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	queueEntries = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "logship_queue_entries",
		Help: "Pending records in the queue",
	}, []string{"queue"})

	queueBytes = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "logship_queue_bytes",
		Help: "Payload bytes of pending records in the queue",
	}, []string{"queue"})

	queueEnqueuedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "logship_queue_enqueued_total",
		Help: "Records accepted by the queue",
	}, []string{"queue"})

	queueDroppedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "logship_queue_dropped_total",
		Help: "Records that never entered the queue, by reason",
	}, []string{"queue", "reason"})

	queueCompactionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "logship_queue_compactions_total",
		Help: "Compaction passes over the disk queue",
	}, []string{"queue"})

	queueChunksRemovedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "logship_queue_chunk_removed_total",
		Help: "Consumed chunk files removed by compaction",
	}, []string{"queue"})

	queueCorruptFramesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "logship_queue_corrupt_frames_total",
		Help: "Frames discarded because of a checksum or length mismatch",
	}, []string{"queue"})

	queueRecoveredEntries = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "logship_queue_recovered_entries",
		Help: "Records found on disk when the queue was opened",
	}, []string{"queue"})
)

func init() {
	prometheus.MustRegister(queueEntries)
	prometheus.MustRegister(queueBytes)
	prometheus.MustRegister(queueEnqueuedTotal)
	prometheus.MustRegister(queueDroppedTotal)
	prometheus.MustRegister(queueCompactionsTotal)
	prometheus.MustRegister(queueChunksRemovedTotal)
	prometheus.MustRegister(queueCorruptFramesTotal)
	prometheus.MustRegister(queueRecoveredEntries)
}

// IncrementDropped counts a record rejected before it reached the queue.
func IncrementDropped(name, reason string) {
	queueDroppedTotal.WithLabelValues(name, reason).Inc()
}

func updateMetrics(name string, entries int, bytes int64) {
	queueEntries.WithLabelValues(name).Set(float64(entries))
	queueBytes.WithLabelValues(name).Set(float64(bytes))
}
