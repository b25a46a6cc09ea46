// Package metrics holds the Prometheus collectors exported by the service.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Config controls metric naming and runtime collectors.
type Config struct {
	Enabled          bool   `yaml:"enabled"`
	Path             string `yaml:"path"`
	Namespace        string `yaml:"namespace"`
	CollectGoMetrics bool   `yaml:"collect_go_metrics"`
	CollectProcess   bool   `yaml:"collect_process"`
}

// DefaultConfig exposes metrics on /metrics under the admin_search namespace.
func DefaultConfig() Config {
	return Config{
		Enabled:          true,
		Path:             "/metrics",
		Namespace:        "admin_search",
		CollectGoMetrics: true,
	}
}

// Metrics is a private registry with the search, refresher and report
// collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	searches       *prometheus.CounterVec
	searchDuration *prometheus.HistogramVec
	refreshes      *prometheus.CounterVec
	refreshLatency *prometheus.HistogramVec
	reports        *prometheus.CounterVec
}

// New registers the collectors on a fresh registry.
func New(cfg Config) *Metrics {
	reg := prometheus.NewRegistry()
	if cfg.CollectGoMetrics {
		reg.MustRegister(collectors.NewGoCollector())
	}
	if cfg.CollectProcess {
		reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	}

	m := &Metrics{
		registry: reg,
		searches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Name:      "searches_total",
			Help:      "Admin searches by kind and outcome.",
		}, []string{"kind", "outcome"}),
		searchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: cfg.Namespace,
			Name:      "search_duration_seconds",
			Help:      "Admin search latency.",
			Buckets:   []float64{.005, .01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		}, []string{"kind"}),
		refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Name:      "snapshot_refreshes_total",
			Help:      "Snapshot refresher runs by job and outcome.",
		}, []string{"job", "outcome"}),
		refreshLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: cfg.Namespace,
			Name:      "snapshot_refresh_duration_seconds",
			Help:      "Snapshot computation time.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		}, []string{"job"}),
		reports: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Name:      "sales_reports_total",
			Help:      "Sales report jobs by final state.",
		}, []string{"state"}),
	}
	reg.MustRegister(m.searches, m.searchDuration, m.refreshes, m.refreshLatency, m.reports)
	return m
}

// ObserveSearch records one search.
func (m *Metrics) ObserveSearch(kind, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.searches.WithLabelValues(kind, outcome).Inc()
	m.searchDuration.WithLabelValues(kind).Observe(elapsed.Seconds())
}

// ObserveRefresh records one refresher run. Skipped runs carry no duration.
func (m *Metrics) ObserveRefresh(job, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.refreshes.WithLabelValues(job, outcome).Inc()
	if elapsed > 0 {
		m.refreshLatency.WithLabelValues(job).Observe(elapsed.Seconds())
	}
}

// ObserveReport records a finished sales report job.
func (m *Metrics) ObserveReport(state string) {
	if m == nil {
		return
	}
	m.reports.WithLabelValues(state).Inc()
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
