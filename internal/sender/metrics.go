package sender

import "github.com/prometheus/client_golang/prometheus"

var (
	senderDrainsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "logship_sender_drains_total",
		Help: "Drain cycles that ran to completion or interruption",
	}, []string{"type"})

	senderDrainSkippedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "logship_sender_drain_skipped_total",
		Help: "Drain triggers ignored because a drain was already running",
	}, []string{"type"})

	senderDrainDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "logship_sender_drain_duration_seconds",
		Help:    "Duration of drain cycles",
		Buckets: []float64{.005, .05, .25, 1, 2.5, 5, 10, 20, 60},
	}, []string{"type"})

	senderRecordsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "logship_sender_records_total",
		Help: "Records leaving a sender by outcome (sent, dropped, requeued)",
	}, []string{"type", "outcome"})
)

func init() {
	prometheus.MustRegister(senderDrainsTotal)
	prometheus.MustRegister(senderDrainSkippedTotal)
	prometheus.MustRegister(senderDrainDuration)
	prometheus.MustRegister(senderRecordsTotal)
}
