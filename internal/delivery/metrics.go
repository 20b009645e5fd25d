package delivery

import "github.com/prometheus/client_golang/prometheus"

var (
	deliveryRequestsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "logship_delivery_requests_total",
		Help: "HTTP requests sent to the listener, retries included",
	})

	deliveryErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "logship_delivery_errors_total",
		Help: "Failed delivery attempts by error type",
	}, []string{"error_type"})

	deliveryBytesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "logship_delivery_bytes_total",
		Help: "Bytes delivered to the listener by compression",
	}, []string{"compression"})

	deliveryRetriesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "logship_delivery_retries_total",
		Help: "Backoff sleeps taken between attempts",
	})

	deliveryBatchesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "logship_delivery_batches_total",
		Help: "Batches handled by the delivery client by outcome",
	}, []string{"outcome"})
)

func init() {
	prometheus.MustRegister(deliveryRequestsTotal)
	prometheus.MustRegister(deliveryErrorsTotal)
	prometheus.MustRegister(deliveryBytesTotal)
	prometheus.MustRegister(deliveryRetriesTotal)
	prometheus.MustRegister(deliveryBatchesTotal)
}

func recordError(errType ErrorType) {
	deliveryErrorsTotal.WithLabelValues(string(errType)).Inc()
}
