// Package metrics holds the Prometheus collectors for the HTTP surface and
// the deployment workflow. Every method is safe on a nil *Metrics.
package metrics

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "sitedrop"

var histogramBuckets = []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10}

// stageBuckets cover the multi-second provider waits.
var stageBuckets = []float64{0.1, 0.5, 1, 2, 5, 10, 20, 30, 60, 120}

type Metrics struct {
	registry *prometheus.Registry

	requestTotal   *prometheus.CounterVec
	requestLatency *prometheus.HistogramVec
	rateLimitHits  *prometheus.CounterVec

	stageLatency *prometheus.HistogramVec
	deployments  *prometheus.CounterVec
	jobsActive   prometheus.Gauge
}

// New builds the collectors on a fresh registry, so separate instances (and
// tests) never collide.
func New() *Metrics {
	return NewWithRegistry(prometheus.NewRegistry())
}

// NewWithRegistry registers the collectors on reg. Collectors that are
// already registered there are reused.
func NewWithRegistry(reg *prometheus.Registry) *Metrics {
	m := &Metrics{registry: reg}

	m.requestTotal = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Count of processed HTTP requests",
	}, []string{"method", "route", "status"}))

	m.requestLatency = register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "Latency distribution of HTTP handlers",
		Buckets:   histogramBuckets,
	}, []string{"method", "route", "status"}))

	m.rateLimitHits = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "rate_limit_hits_total",
		Help:      "Number of rate-limited responses",
	}, []string{"route"}))

	m.stageLatency = register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "deploy",
		Name:      "stage_duration_seconds",
		Help:      "Duration of each deployment stage",
		Buckets:   stageBuckets,
	}, []string{"stage", "outcome"}))

	m.deployments = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "deploy",
		Name:      "deployments_total",
		Help:      "Finished deployments by outcome and failing stage",
	}, []string{"outcome", "stage"}))

	m.jobsActive = register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "deploy",
		Name:      "jobs_active",
		Help:      "Deployment jobs currently running",
	}))

	return m
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) C {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing
			}
		}
	}
	return c
}

// Registry exposes the underlying registry, e.g. for Go runtime collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveRequest(method, route string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labels := prometheus.Labels{
		"method": method,
		"route":  route,
		"status": strconv.Itoa(status),
	}
	m.requestTotal.With(labels).Inc()
	m.requestLatency.With(labels).Observe(duration.Seconds())
}

func (m *Metrics) RateLimitHit(route string) {
	if m == nil {
		return
	}
	m.rateLimitHits.With(prometheus.Labels{"route": route}).Inc()
}

// ObserveStage records one workflow stage. outcome is "ok" or "error".
func (m *Metrics) ObserveStage(stage, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.stageLatency.With(prometheus.Labels{"stage": stage, "outcome": outcome}).Observe(duration.Seconds())
}

// DeploymentFinished counts a finished workflow. stage is the failing stage,
// empty on success.
func (m *Metrics) DeploymentFinished(outcome, stage string) {
	if m == nil {
		return
	}
	m.deployments.With(prometheus.Labels{"outcome": outcome, "stage": stage}).Inc()
}

func (m *Metrics) JobStarted() {
	if m == nil {
		return
	}
	m.jobsActive.Inc()
}

func (m *Metrics) JobFinished() {
	if m == nil {
		return
	}
	m.jobsActive.Dec()
}
