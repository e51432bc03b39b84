package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the application's Prometheus collectors.
type Metrics struct {
	registry *prometheus.Registry

	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	WorkflowTransitions *prometheus.CounterVec
	NotificationsSent   prometheus.Counter
	SchedulerRuns       *prometheus.CounterVec
}

// New creates the application metric set on a fresh registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,
		HTTPRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "isms_http_requests_total",
			Help: "Total HTTP requests by method, route pattern and status code.",
		}, []string{"method", "route", "status"}),
		HTTPRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "isms_http_request_duration_seconds",
			Help:    "HTTP request latency by method and route pattern.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		WorkflowTransitions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "isms_workflow_transitions_total",
			Help: "Approval workflow transitions by entity kind and action.",
		}, []string{"kind", "action"}),
		NotificationsSent: factory.NewCounter(prometheus.CounterOpts{
			Name: "isms_notifications_delivered_total",
			Help: "Notifications delivered by email.",
		}),
		SchedulerRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "isms_scheduler_runs_total",
			Help: "Scheduler job executions by job name and outcome.",
		}, []string{"job", "outcome"}),
	}
}

// ObserveTransition is the workflow engine observer hook.
func (m *Metrics) ObserveTransition(kind, action string) {
	m.WorkflowTransitions.WithLabelValues(kind, action).Inc()
}

// Handler serves the metrics endpoint for this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
