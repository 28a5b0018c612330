package services

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/mediabud/recsys/pkg/models"
)

// Metrics exposes the engine's operational counters. One instance is shared
// by the trainer, server and cache.
type Metrics struct {
	trainingRuns     *prometheus.CounterVec
	trainingDuration *prometheus.HistogramVec
	serveDuration    *prometheus.HistogramVec
	cacheOutcomes    *prometheus.CounterVec
}

func NewMetrics(registerer prometheus.Registerer) *Metrics {
	m := &Metrics{
		trainingRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "recsys_training_runs_total",
			Help: "Training runs by content type and result.",
		}, []string{"content_type", "result"}),
		trainingDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "recsys_training_duration_seconds",
			Help:    "Wall-clock duration of training runs.",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		}, []string{"content_type"}),
		serveDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "recsys_serve_duration_seconds",
			Help:    "Latency of scoring operations.",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
		cacheOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "recsys_result_cache_total",
			Help: "Result cache lookups by outcome.",
		}, []string{"outcome"}),
	}
	registerer.MustRegister(m.trainingRuns, m.trainingDuration, m.serveDuration, m.cacheOutcomes)
	return m
}

func (m *Metrics) ObserveTraining(contentType models.ContentType, result string, d time.Duration) {
	m.trainingRuns.WithLabelValues(string(contentType), result).Inc()
	m.trainingDuration.WithLabelValues(string(contentType)).Observe(d.Seconds())
}

func (m *Metrics) ObserveServe(operation string, d time.Duration) {
	m.serveDuration.WithLabelValues(operation).Observe(d.Seconds())
}

func (m *Metrics) ObserveCache(outcome string) {
	m.cacheOutcomes.WithLabelValues(outcome).Inc()
}
