// Package metrics defines the Prometheus collectors exported on /metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "veritube"

// Metrics groups every collector the agent updates.
type Metrics struct {
	registry *prometheus.Registry

	StageRuns      *prometheus.CounterVec
	StageDuration  *prometheus.HistogramVec
	CacheLookups   *prometheus.CounterVec
	SummarizerCall *prometheus.CounterVec
	AIRequests     *prometheus.CounterVec
	HTTPRequests   *prometheus.CounterVec
}

// New creates the collectors on a private registry that also carries the Go
// runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,
		StageRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stage_runs_total",
			Help:      "Pipeline stage executions by outcome.",
		}, []string{"stage", "outcome"}),
		StageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Pipeline stage wall time.",
			Buckets:   []float64{0.05, 0.25, 1, 5, 15, 60, 300, 900},
		}, []string{"stage"}),
		CacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_lookups_total",
			Help:      "Cache reads by result (hit, miss, error).",
		}, []string{"result"}),
		SummarizerCall: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "summarizer_calls_total",
			Help:      "Per-segment summarizer calls by outcome (ok, fallback).",
		}, []string{"outcome"}),
		AIRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ai_requests_total",
			Help:      "Model requests by provider and outcome.",
		}, []string{"provider", "outcome"}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route pattern and status code.",
		}, []string{"route", "code"}),
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.StageRuns,
		m.StageDuration,
		m.CacheLookups,
		m.SummarizerCall,
		m.AIRequests,
		m.HTTPRequests,
	)
	return m
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveStage records one stage execution. A nil receiver is a no-op so
// components can run without metrics.
func (m *Metrics) ObserveStage(stage, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.StageRuns.WithLabelValues(stage, outcome).Inc()
	m.StageDuration.WithLabelValues(stage).Observe(elapsed.Seconds())
}

func (m *Metrics) ObserveCache(result string) {
	if m == nil {
		return
	}
	m.CacheLookups.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveSummarizer(outcome string) {
	if m == nil {
		return
	}
	m.SummarizerCall.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveAI(provider, outcome string) {
	if m == nil {
		return
	}
	m.AIRequests.WithLabelValues(provider, outcome).Inc()
}

func (m *Metrics) ObserveHTTP(route, code string) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(route, code).Inc()
}
