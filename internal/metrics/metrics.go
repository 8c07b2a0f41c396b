// Package metrics exposes the proxy's prometheus collectors.
//
// All recording methods are safe to call on a nil *Metrics so components can
// be constructed without instrumentation in tests.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "playerstats"

// Fetch outcomes recorded by ObserveFetch.
const (
	OutcomeOK        = "ok"
	OutcomeTransport = "transport_error"
	OutcomePayload   = "payload_error"
)

// Metrics holds the collectors registered on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	cacheLookups    *prometheus.CounterVec
	upstreamFetches *prometheus.CounterVec
	fetchDuration   prometheus.Histogram
	proxyRequests   *prometheus.CounterVec
	invalidations   prometheus.Counter
	liveClients     prometheus.Gauge
	snapshotPlayers prometheus.Gauge
}

// New creates the collectors and registers them, together with the Go and
// process collectors, on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "lookups_total",
			Help:      "Cache slot lookups by slot and result (hit or miss).",
		}, []string{"slot", "result"}),
		upstreamFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "upstream",
			Name:      "fetches_total",
			Help:      "Upstream player list fetches by outcome.",
		}, []string{"outcome"}),
		fetchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "upstream",
			Name:      "fetch_duration_seconds",
			Help:      "Duration of upstream player list fetches.",
			Buckets:   prometheus.DefBuckets,
		}),
		proxyRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "proxy",
			Name:      "requests_total",
			Help:      "Passthrough requests by method and upstream status code (0 on transport failure).",
		}, []string{"method", "code"}),
		invalidations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "invalidations_total",
			Help:      "Explicit cache invalidations received from the message bus.",
		}),
		liveClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "live",
			Name:      "clients",
			Help:      "Connected live feed websocket clients.",
		}),
		snapshotPlayers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "snapshot",
			Name:      "players",
			Help:      "Number of players in the most recently fetched snapshot.",
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.cacheLookups,
		m.upstreamFetches,
		m.fetchDuration,
		m.proxyRequests,
		m.invalidations,
		m.liveClients,
		m.snapshotPlayers,
	)
	return m
}

// Registry returns the underlying prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

// CacheLookup records a hit or miss on the named slot.
func (m *Metrics) CacheLookup(slot string, hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.WithLabelValues(slot, result).Inc()
}

// ObserveFetch records one upstream fetch.
func (m *Metrics) ObserveFetch(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.upstreamFetches.WithLabelValues(outcome).Inc()
	m.fetchDuration.Observe(d.Seconds())
}

// ProxyRequest records one passthrough request.
func (m *Metrics) ProxyRequest(method string, status int) {
	if m == nil {
		return
	}
	m.proxyRequests.WithLabelValues(method, strconv.Itoa(status)).Inc()
}

// Invalidation records an explicit cache invalidation.
func (m *Metrics) Invalidation() {
	if m == nil {
		return
	}
	m.invalidations.Inc()
}

// SetLiveClients updates the live feed client gauge.
func (m *Metrics) SetLiveClients(n int) {
	if m == nil {
		return
	}
	m.liveClients.Set(float64(n))
}

// SetSnapshotPlayers updates the snapshot size gauge.
func (m *Metrics) SetSnapshotPlayers(n int) {
	if m == nil {
		return
	}
	m.snapshotPlayers.Set(float64(n))
}
