package telemetry

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Step outcomes recorded by the scheduler.
const (
	OutcomeAdvance = "advance"
	OutcomeRetry   = "retry"
	OutcomeStop    = "stop"
	OutcomeGiveUp  = "give_up"
	OutcomePanic   = "panic"
)

var (
	once sync.Once

	JobsEnqueued = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "registry_import_jobs_enqueued_total",
		Help: "Import jobs created, by starting step",
	}, []string{"step"})
	StepOutcomes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "registry_import_step_outcomes_total",
		Help: "Results of executed pipeline steps",
	}, []string{"step", "outcome"})
	StepDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "registry_import_step_duration_seconds",
		Help:    "Time spent executing a pipeline step",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
	}, []string{"step"})
	JobsReaped       = prometheus.NewCounter(prometheus.CounterOpts{Name: "registry_import_jobs_reaped_total", Help: "Finished jobs deleted by the reaper"})
	InFlightGauge    = prometheus.NewGauge(prometheus.GaugeOpts{Name: "registry_import_jobs_inflight", Help: "Steps currently executing"})
	RateLimitRejects = prometheus.NewCounter(prometheus.CounterOpts{Name: "registry_rate_limit_rejects_total", Help: "Requests rejected by rate limiter"})
	Notifications    = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "registry_notifications_total",
		Help: "Release notifications sent, by channel and result",
	}, []string{"channel", "result"})
)

// Register adds every collector to the default registry. Safe to call more
// than once.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			JobsEnqueued,
			StepOutcomes,
			StepDuration,
			JobsReaped,
			InFlightGauge,
			RateLimitRejects,
			Notifications,
		)
	})
}

// Handler exposes /metrics HTTP handler with a singleton registry.
func Handler() http.Handler {
	Register()
	return promhttp.Handler()
}

// NotificationResult counts one delivery attempt on a channel.
func NotificationResult(channel string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	Notifications.WithLabelValues(channel, result).Inc()
}
