// Package metrics exposes Prometheus collectors for sweeps, events and
// penalties. A nil *Collector is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector holds the engine's Prometheus metrics
type Collector struct {
	registry *prometheus.Registry

	sweepRuns      *prometheus.CounterVec
	sweepDuration  *prometheus.HistogramVec
	sweepItems     *prometheus.CounterVec
	eventsHandled  *prometheus.CounterVec
	penalties      *prometheus.CounterVec
	reports        *prometheus.CounterVec
	txConflicts    prometheus.Counter
	requestLatency *prometheus.HistogramVec
}

// NewCollector creates a collector with its own registry
func NewCollector(namespace string) *Collector {
	if namespace == "" {
		namespace = "kiddoquest"
	}

	c := &Collector{registry: prometheus.NewRegistry()}

	c.sweepRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sweep",
			Name:      "runs_total",
			Help:      "Scheduled sweep runs by job and result",
		},
		[]string{"job", "result"},
	)

	c.sweepDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "sweep",
			Name:      "duration_seconds",
			Help:      "Time taken by a sweep run",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 16), // 10ms to ~5m
		},
		[]string{"job"},
	)

	c.sweepItems = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sweep",
			Name:      "items_total",
			Help:      "Entities processed by sweeps, by outcome",
		},
		[]string{"job", "outcome"},
	)

	c.eventsHandled = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "handled_total",
			Help:      "Behavioral events handled by kind and result",
		},
		[]string{"kind", "result"},
	)

	c.penalties = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "penalties",
			Name:      "transitions_total",
			Help:      "Penalty lifecycle transitions",
		},
		[]string{"transition"},
	)

	c.reports = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reports",
			Name:      "generated_total",
			Help:      "Analytics reports generated by type and result",
		},
		[]string{"type", "result"},
	)

	c.txConflicts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "db",
			Name:      "retries_exhausted_total",
			Help:      "Transactions that kept conflicting until retries ran out",
		},
	)

	c.requestLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Latency of API calls by route and status",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"route", "status"},
	)

	c.registry.MustRegister(
		c.sweepRuns,
		c.sweepDuration,
		c.sweepItems,
		c.eventsHandled,
		c.penalties,
		c.reports,
		c.txConflicts,
		c.requestLatency,
	)

	return c
}

// Registry returns the underlying registry
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus text format
func (c *Collector) Handler() http.Handler {
	if c == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// RecordSweep records one sweep run and its per-entity outcomes
func (c *Collector) RecordSweep(job string, duration time.Duration, processed, applied, failed int, err error) {
	if c == nil {
		return
	}
	c.sweepRuns.WithLabelValues(job, result(err)).Inc()
	c.sweepDuration.WithLabelValues(job).Observe(duration.Seconds())
	c.sweepItems.WithLabelValues(job, "processed").Add(float64(processed))
	c.sweepItems.WithLabelValues(job, "applied").Add(float64(applied))
	c.sweepItems.WithLabelValues(job, "failed").Add(float64(failed))
}

// RecordEvent records one handled event
func (c *Collector) RecordEvent(kind string, err error) {
	if c == nil {
		return
	}
	c.eventsHandled.WithLabelValues(kind, result(err)).Inc()
}

// RecordPenalty records a penalty transition such as "applied" or "expired"
func (c *Collector) RecordPenalty(transition string) {
	if c == nil {
		return
	}
	c.penalties.WithLabelValues(transition).Inc()
}

// RecordReport records one report generation
func (c *Collector) RecordReport(reportType string, err error) {
	if c == nil {
		return
	}
	c.reports.WithLabelValues(reportType, result(err)).Inc()
}

// RecordRetryExhausted counts a transaction that gave up on conflicts
func (c *Collector) RecordRetryExhausted() {
	if c == nil {
		return
	}
	c.txConflicts.Inc()
}

// RecordRequest records an API call
func (c *Collector) RecordRequest(route string, status int, duration time.Duration) {
	if c == nil {
		return
	}
	c.requestLatency.WithLabelValues(route, http.StatusText(status)).Observe(duration.Seconds())
}
