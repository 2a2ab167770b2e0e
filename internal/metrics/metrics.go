// Package metrics records reconciliation telemetry.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics defines the interface for engine telemetry.
type Metrics interface {
	// Events
	IncEventReceived(topic string)
	IncEventDropped(topic, reason string)

	// Fetches; result is one of applied, removed, stale, not_found, transient, error.
	IncFetch(trigger, result string)
	ObserveFetchLatency(trigger string, duration time.Duration)

	// Search
	IncRebuild(status string)

	// Cache
	IncPruned(count int)
	SetCacheSize(n int)
	IncCorrelationMiss(topic string)
}

// NoopMetrics is a no-op implementation of Metrics.
type NoopMetrics struct{}

func (NoopMetrics) IncEventReceived(topic string)             {}
func (NoopMetrics) IncEventDropped(topic, reason string)      {}
func (NoopMetrics) IncFetch(trigger, result string)           {}
func (NoopMetrics) ObserveFetchLatency(string, time.Duration) {}
func (NoopMetrics) IncRebuild(status string)                  {}
func (NoopMetrics) IncPruned(count int)                       {}
func (NoopMetrics) SetCacheSize(n int)                        {}
func (NoopMetrics) IncCorrelationMiss(topic string)           {}

// Prometheus implements Metrics with client_golang collectors.
type Prometheus struct {
	eventsReceived  *prometheus.CounterVec
	eventsDropped   *prometheus.CounterVec
	fetches         *prometheus.CounterVec
	fetchLatency    *prometheus.HistogramVec
	rebuilds        *prometheus.CounterVec
	pruned          prometheus.Counter
	cacheSize       prometheus.Gauge
	correlationMiss *prometheus.CounterVec
}

// NewPrometheus creates the collectors and registers them with reg.
func NewPrometheus(reg prometheus.Registerer) (*Prometheus, error) {
	m := &Prometheus{
		eventsReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bundlesync_events_received_total",
			Help: "The total number of stream events received",
		}, []string{"topic"}),
		eventsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bundlesync_events_dropped_total",
			Help: "The total number of stream events dropped",
		}, []string{"topic", "reason"}),
		fetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bundlesync_fetches_total",
			Help: "The total number of bundle fetches by outcome",
		}, []string{"trigger", "result"}),
		fetchLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name: "bundlesync_fetch_latency_seconds",
			Help: "The latency of bundle fetches",
		}, []string{"trigger"}),
		rebuilds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bundlesync_search_rebuilds_total",
			Help: "The total number of search rebuilds by final status",
		}, []string{"status"}),
		pruned: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bundlesync_pruned_total",
			Help: "The total number of cached revisions evicted",
		}),
		cacheSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "bundlesync_cache_size",
			Help: "The current number of cached bundles",
		}),
		correlationMiss: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bundlesync_correlation_miss_total",
			Help: "The total number of job events without a known bundle",
		}, []string{"topic"}),
	}

	for _, c := range []prometheus.Collector{
		m.eventsReceived, m.eventsDropped, m.fetches, m.fetchLatency,
		m.rebuilds, m.pruned, m.cacheSize, m.correlationMiss,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Prometheus) IncEventReceived(topic string) {
	m.eventsReceived.WithLabelValues(topic).Inc()
}

func (m *Prometheus) IncEventDropped(topic, reason string) {
	m.eventsDropped.WithLabelValues(topic, reason).Inc()
}

func (m *Prometheus) IncFetch(trigger, result string) {
	m.fetches.WithLabelValues(trigger, result).Inc()
}

func (m *Prometheus) ObserveFetchLatency(trigger string, duration time.Duration) {
	m.fetchLatency.WithLabelValues(trigger).Observe(duration.Seconds())
}

func (m *Prometheus) IncRebuild(status string) {
	m.rebuilds.WithLabelValues(status).Inc()
}

func (m *Prometheus) IncPruned(count int) {
	m.pruned.Add(float64(count))
}

func (m *Prometheus) SetCacheSize(n int) {
	m.cacheSize.Set(float64(n))
}

func (m *Prometheus) IncCorrelationMiss(topic string) {
	m.correlationMiss.WithLabelValues(topic).Inc()
}
