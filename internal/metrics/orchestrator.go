package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	BackupJobsCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "safehouse_backup_jobs_created_total",
		Help: "Backup jobs created, by job type.",
	}, []string{"type"})

	ExecutorRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "safehouse_executor_requests_total",
		Help: "Calls to the backup executor and security scanner, by action and outcome.",
	}, []string{"action", "outcome"})

	ExecutorRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "safehouse_executor_request_duration_seconds",
		Help:    "Latency of backup executor and security scanner calls.",
		Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120, 300},
	}, []string{"action"})

	StatsDegraded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "safehouse_stats_degraded_total",
		Help: "Statistics reads that fell back to zero values, by part.",
	}, []string{"part"})

	StaleJobsFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "safehouse_stale_jobs_failed_total",
		Help: "Backup jobs failed by the stale job reaper.",
	})
)

// ObserveExecutorCall records the outcome and latency of one external call.
func ObserveExecutorCall(action string, start time.Time, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	ExecutorRequests.WithLabelValues(action, outcome).Inc()
	ExecutorRequestDuration.WithLabelValues(action).Observe(time.Since(start).Seconds())
}
