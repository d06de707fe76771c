// Package observability exposes Prometheus instrumentation for the job
// pipeline.
package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	jobsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "listing_jobs_processed_total",
		Help: "Jobs processed by the dispatcher, by type and outcome.",
	}, []string{"job_type", "outcome"})

	jobDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "listing_job_duration_seconds",
		Help:    "Wall-clock duration of one job attempt.",
		Buckets: prometheus.DefBuckets,
	}, []string{"job_type"})

	jobsReclaimed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "listing_jobs_reclaimed_total",
		Help: "Jobs swept back to pending after exceeding the processing timeout.",
	})
)

// ObserveJob records the outcome and duration of one job attempt.
func ObserveJob(jobType, outcome string, elapsed time.Duration) {
	jobsProcessed.WithLabelValues(jobType, outcome).Inc()
	jobDuration.WithLabelValues(jobType).Observe(elapsed.Seconds())
}

// AddReclaimed records jobs requeued by the stuck-processing sweep.
func AddReclaimed(n int) {
	jobsReclaimed.Add(float64(n))
}

// Handler returns the /metrics endpoint handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
