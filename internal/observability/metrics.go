// Package observability collects Prometheus metrics for the rendering
// engine, plugins, trust gate, cache, and export pipeline.
package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every Prometheus metric the service exports. All methods
// are safe on a nil receiver so components can run unmetered in tests.
type Metrics struct {
	registry *prometheus.Registry

	RendersTotal          *prometheus.CounterVec
	RenderDuration        prometheus.Histogram
	PluginFailuresTotal   *prometheus.CounterVec
	CodeBlockHandledTotal *prometheus.CounterVec
	CacheHitsTotal        prometheus.Counter
	CacheMissesTotal      prometheus.Counter
	TrustDecisionsTotal   *prometheus.CounterVec
	ExportJobsTotal       *prometheus.CounterVec
	SettingsReloadsTotal  *prometheus.CounterVec
}

// NewMetrics creates and registers all metrics on a private registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		RendersTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "docrender_renders_total",
				Help: "Total number of document renders by script status",
			},
			[]string{"status"},
		),
		RenderDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "docrender_render_duration_seconds",
				Help:    "Document render duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
		),
		PluginFailuresTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "docrender_plugin_failures_total",
				Help: "Total number of recovered plugin failures",
			},
			[]string{"plugin", "stage"},
		),
		CodeBlockHandledTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "docrender_code_block_handled_total",
				Help: "Total number of code blocks claimed by a plugin handler",
			},
			[]string{"plugin"},
		),
		CacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "docrender_cache_hits_total",
				Help: "Total number of render cache hits",
			},
		),
		CacheMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "docrender_cache_misses_total",
				Help: "Total number of render cache misses",
			},
		),
		TrustDecisionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "docrender_trust_decisions_total",
				Help: "Total number of recorded trust decisions",
			},
			[]string{"decision", "persistent"},
		),
		ExportJobsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "docrender_export_jobs_total",
				Help: "Total number of finished export jobs by status",
			},
			[]string{"status"},
		),
		SettingsReloadsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "docrender_settings_reloads_total",
				Help: "Total number of settings reload attempts",
			},
			[]string{"outcome"},
		),
	}

	m.registry.MustRegister(
		m.RendersTotal,
		m.RenderDuration,
		m.PluginFailuresTotal,
		m.CodeBlockHandledTotal,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.TrustDecisionsTotal,
		m.ExportJobsTotal,
		m.SettingsReloadsTotal,
	)
	return m
}

// Handler serves the metrics exposition endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveRender records one finished render and its duration.
func (m *Metrics) ObserveRender(status string, d time.Duration) {
	if m == nil {
		return
	}
	m.RendersTotal.WithLabelValues(status).Inc()
	m.RenderDuration.Observe(d.Seconds())
}

// RecordPluginFailure counts a recovered transform or handler failure.
func (m *Metrics) RecordPluginFailure(plugin, stage string) {
	if m == nil {
		return
	}
	m.PluginFailuresTotal.WithLabelValues(plugin, stage).Inc()
}

// RecordCodeBlock counts a code block claimed by a plugin.
func (m *Metrics) RecordCodeBlock(plugin string) {
	if m == nil {
		return
	}
	m.CodeBlockHandledTotal.WithLabelValues(plugin).Inc()
}

// RecordCacheLookup counts a render cache probe.
func (m *Metrics) RecordCacheLookup(hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.CacheHitsTotal.Inc()
	} else {
		m.CacheMissesTotal.Inc()
	}
}

// RecordTrustDecision counts a recorded trust decision.
func (m *Metrics) RecordTrustDecision(decision string, persistent bool) {
	if m == nil {
		return
	}
	m.TrustDecisionsTotal.WithLabelValues(decision, strconv.FormatBool(persistent)).Inc()
}

// RecordExportJob counts a finished export job.
func (m *Metrics) RecordExportJob(status string) {
	if m == nil {
		return
	}
	m.ExportJobsTotal.WithLabelValues(status).Inc()
}

// RecordSettingsReload counts a settings reload attempt.
func (m *Metrics) RecordSettingsReload(outcome string) {
	if m == nil {
		return
	}
	m.SettingsReloadsTotal.WithLabelValues(outcome).Inc()
}
