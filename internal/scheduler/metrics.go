package scheduler

import "github.com/prometheus/client_golang/prometheus"

var (
	taskRunsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "logship_scheduler_task_runs_total",
		Help: "Completed runs of scheduled tasks",
	}, []string{"task"})

	taskPanicsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "logship_scheduler_task_panics_total",
		Help: "Scheduled task runs that panicked",
	}, []string{"task"})

	taskDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "logship_scheduler_task_duration_seconds",
		Help:    "Duration of scheduled task runs",
		Buckets: []float64{.001, .01, .1, .5, 1, 5, 10, 30},
	}, []string{"task"})
)

func init() {
	prometheus.MustRegister(taskRunsTotal)
	prometheus.MustRegister(taskPanicsTotal)
	prometheus.MustRegister(taskDuration)
}
