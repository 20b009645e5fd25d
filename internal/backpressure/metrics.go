package backpressure

import "github.com/prometheus/client_golang/prometheus"

var (
	diskGateRejectedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "logship_backpressure_disk_rejected_total",
		Help: "Records rejected because filesystem usage reached the threshold",
	})

	capacityGateRejectedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "logship_backpressure_capacity_rejected_total",
		Help: "Records rejected because the in-memory queue budget was exhausted",
	})
)

func init() {
	prometheus.MustRegister(diskGateRejectedTotal)
	prometheus.MustRegister(capacityGateRejectedTotal)
}
