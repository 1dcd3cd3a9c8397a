// Package metrics exposes Prometheus counters and histograms for the scoring path.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "cxqa"

type Metrics struct {
	registry *prometheus.Registry

	ConversationsScored *prometheus.CounterVec
	ScoringFailures     *prometheus.CounterVec
	ScoringLatency      *prometheus.HistogramVec
	Fallbacks           prometheus.Counter
	DegradedResults     prometheus.Counter
	Redactions          *prometheus.CounterVec

	RecordsProcessed *prometheus.CounterVec

	KafkaPublishTotal  prometheus.Counter
	KafkaPublishErrors prometheus.Counter
}

// Default is the process-wide instance served at /metrics.
var Default = New()

// New creates a Metrics with its own registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		ConversationsScored: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "conversations_scored_total",
			Help:      "Conversations scored, by model version",
		}, []string{"model_version"}),
		ScoringFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scoring_failures_total",
			Help:      "Scoring failures, by error kind",
		}, []string{"kind"}),
		ScoringLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "scoring_latency_seconds",
			Help:      "Time spent scoring one transcript",
			Buckets:   []float64{0.001, 0.01, 0.1, 0.5, 1, 2, 5, 10, 30},
		}, []string{"model_version"}),
		Fallbacks: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scoring_fallbacks_total",
			Help:      "Results produced by the fallback scorer after a provider failure",
		}),
		DegradedResults: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scoring_degraded_total",
			Help:      "LLM results with fields defaulted to neutral",
		}),
		Redactions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "redactions_total",
			Help:      "PII spans replaced, by category",
		}, []string{"category"}),
		RecordsProcessed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_processed_total",
			Help:      "Ingest records handled, by outcome",
		}, []string{"outcome"}),
		KafkaPublishTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kafka_publish_total",
			Help:      "Scored events published",
		}),
		KafkaPublishErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kafka_publish_errors_total",
			Help:      "Scored events that failed to publish",
		}),
	}
}

// Handler serves this instance's registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordScore records a successful scoring call.
func (m *Metrics) RecordScore(modelVersion string, seconds float64, degraded, fallback bool) {
	m.ConversationsScored.WithLabelValues(modelVersion).Inc()
	m.ScoringLatency.WithLabelValues(modelVersion).Observe(seconds)
	if degraded {
		m.DegradedResults.Inc()
	}
	if fallback {
		m.Fallbacks.Inc()
	}
}

func (m *Metrics) RecordFailure(kind string) {
	m.ScoringFailures.WithLabelValues(kind).Inc()
}

func (m *Metrics) RecordRedactions(byCategory map[string]int) {
	for category, n := range byCategory {
		m.Redactions.WithLabelValues(category).Add(float64(n))
	}
}

func (m *Metrics) RecordOutcome(outcome string) {
	m.RecordsProcessed.WithLabelValues(outcome).Inc()
}

func (m *Metrics) RecordKafkaPublish(err error) {
	m.KafkaPublishTotal.Inc()
	if err != nil {
		m.KafkaPublishErrors.Inc()
	}
}
