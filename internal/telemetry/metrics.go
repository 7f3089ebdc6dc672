package telemetry

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	once sync.Once

	JobsCreated        = prometheus.NewCounter(prometheus.CounterOpts{Name: "claimease_jobs_created_total", Help: "Jobs accepted for processing"})
	PipelinesCompleted = prometheus.NewCounter(prometheus.CounterOpts{Name: "claimease_pipelines_completed_total", Help: "Pipeline runs that finished all four stages"})
	PipelinesFailed    = prometheus.NewCounter(prometheus.CounterOpts{Name: "claimease_pipelines_failed_total", Help: "Pipeline runs ended by a stage failure"})
	StageFailures      = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "claimease_stage_failures_total", Help: "Stage failures by stage name"}, []string{"stage"})
	RateLimitRejects   = prometheus.NewCounter(prometheus.CounterOpts{Name: "claimease_rate_limit_rejects_total", Help: "Job creations rejected by the rate limiter"})
	InFlightGauge      = prometheus.NewGauge(prometheus.GaugeOpts{Name: "claimease_runs_inflight", Help: "Pipeline runs currently executing"})
	QueueDepthGauge    = prometheus.NewGauge(prometheus.GaugeOpts{Name: "claimease_queue_depth", Help: "Job IDs waiting in the intake queue"})
)

// Handler exposes the /metrics HTTP handler with a singleton registry.
func Handler() http.Handler {
	once.Do(func() {
		prometheus.MustRegister(
			JobsCreated,
			PipelinesCompleted,
			PipelinesFailed,
			StageFailures,
			RateLimitRejects,
			InFlightGauge,
			QueueDepthGauge,
		)
	})
	return promhttp.Handler()
}
