// Package metrics exposes engine and HTTP activity as Prometheus metrics.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hay-kot/orderbell/internal/core/eventbus"
	"github.com/hay-kot/orderbell/internal/core/subscriber"
)

const namespace = "orderbell"

// Metrics holds the collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	appended  *prometheus.CounterVec
	dropped   *prometheus.CounterVec
	evictions prometheus.Counter
	persist   prometheus.Counter
	unread    prometheus.Gauge
	toasts    prometheus.Gauge
	feedState *prometheus.GaugeVec

	requests *prometheus.CounterVec
	latency  *prometheus.HistogramVec
}

var _ eventbus.Recorder = (*Metrics)(nil)

// New registers every collector on a fresh registry, together with the Go
// runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		appended: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_appended_total",
			Help:      "Notifications appended to the log, by type.",
		}, []string{"type"}),
		dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "changes_dropped_total",
			Help:      "Feed changes that produced no notification, by reason.",
		}, []string{"reason"}),
		evictions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "log_evictions_total",
			Help:      "Notifications evicted from the log at capacity.",
		}),
		persist: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "persist_failures_total",
			Help:      "Failed writes of the notification log.",
		}),
		unread: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "unread",
			Help:      "Unread notifications in the log.",
		}),
		toasts: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_toasts",
			Help:      "Toasts currently on screen.",
		}),
		feedState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "feed_state",
			Help:      "1 for the current feed connection state, 0 otherwise.",
		}, []string{"state"}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests.",
		}, []string{"handler", "status"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_ms",
			Help:      "HTTP request latency in milliseconds.",
			Buckets:   []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		}, []string{"handler"}),
	}

	m.registry.MustRegister(
		m.appended, m.dropped, m.evictions, m.persist,
		m.unread, m.toasts, m.feedState,
		m.requests, m.latency,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	for _, s := range subscriber.States() {
		m.feedState.WithLabelValues(string(s)).Set(0)
	}
	m.feedState.WithLabelValues(string(subscriber.StateIdle)).Set(1)

	return m
}

// Registry returns the registry the collectors live on.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) NotificationAppended(kind string, evicted int) {
	m.appended.WithLabelValues(kind).Inc()
	if evicted > 0 {
		m.evictions.Add(float64(evicted))
	}
}

func (m *Metrics) ChangeDropped(reason string) {
	m.dropped.WithLabelValues(reason).Inc()
}

func (m *Metrics) PersistFailed() {
	m.persist.Inc()
}

func (m *Metrics) SnapshotPublished(unread, activeToasts int, connection string) {
	m.unread.Set(float64(unread))
	m.toasts.Set(float64(activeToasts))
	for _, s := range subscriber.States() {
		v := 0.0
		if string(s) == connection {
			v = 1
		}
		m.feedState.WithLabelValues(string(s)).Set(v)
	}
}

// ObserveRequest records one HTTP request against handler.
func (m *Metrics) ObserveRequest(handler string, status int, took time.Duration) {
	m.requests.WithLabelValues(handler, strconv.Itoa(status)).Inc()
	m.latency.WithLabelValues(handler).Observe(float64(took) / float64(time.Millisecond))
}
