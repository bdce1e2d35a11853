// Package metrics exposes prometheus instrumentation for the engine.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Collector struct {
	registry            *prometheus.Registry
	transactionsTotal   *prometheus.CounterVec
	flagsTotal          *prometheus.CounterVec
	submissionDuration  prometheus.Histogram
	aggregationDuration prometheus.Histogram
	aggregationFailures prometheus.Counter
}

func NewCollector() *Collector {
	registry := prometheus.NewRegistry()

	return &Collector{
		registry: registry,
		transactionsTotal: promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
			Name: "cardguard_transactions_total",
			Help: "Processed transactions by final status",
		}, []string{"status"}),
		flagsTotal: promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
			Name: "cardguard_flags_total",
			Help: "Rule-violation flags written, by severity",
		}, []string{"severity"}),
		submissionDuration: promauto.With(registry).NewHistogram(prometheus.HistogramOpts{
			Name:    "cardguard_submission_duration_seconds",
			Help:    "Time taken to run one submission through the pipeline",
			Buckets: prometheus.DefBuckets,
		}),
		aggregationDuration: promauto.With(registry).NewHistogram(prometheus.HistogramOpts{
			Name:    "cardguard_aggregation_duration_seconds",
			Help:    "Time taken by one monthly recompute run",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 60, 300},
		}),
		aggregationFailures: promauto.With(registry).NewCounter(prometheus.CounterOpts{
			Name: "cardguard_aggregation_key_failures_total",
			Help: "Aggregate keys that failed during recompute",
		}),
	}
}

func (c *Collector) RecordSubmission(status string, duration time.Duration) {
	c.transactionsTotal.WithLabelValues(status).Inc()
	c.submissionDuration.Observe(duration.Seconds())
}

func (c *Collector) RecordFlag(severity string) {
	c.flagsTotal.WithLabelValues(severity).Inc()
}

func (c *Collector) RecordAggregation(duration time.Duration, keyFailures int) {
	c.aggregationDuration.Observe(duration.Seconds())
	c.aggregationFailures.Add(float64(keyFailures))
}

func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
