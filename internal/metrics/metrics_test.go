package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCacheLookup(t *testing.T) {
	m := New()

	m.CacheLookup("snapshot", true)
	m.CacheLookup("snapshot", true)
	m.CacheLookup("snapshot", false)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.cacheLookups.WithLabelValues("snapshot", "hit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.cacheLookups.WithLabelValues("snapshot", "miss")))
}

func TestObserveFetchAndProxy(t *testing.T) {
	m := New()

	m.ObserveFetch(OutcomeOK, 20*time.Millisecond)
	m.ObserveFetch(OutcomeTransport, time.Second)
	m.ProxyRequest(http.MethodGet, 200)
	m.ProxyRequest(http.MethodGet, 0)
	m.Invalidation()
	m.SetLiveClients(3)
	m.SetSnapshotPlayers(12)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.upstreamFetches.WithLabelValues(OutcomeOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.upstreamFetches.WithLabelValues(OutcomeTransport)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.proxyRequests.WithLabelValues("GET", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.proxyRequests.WithLabelValues("GET", "0")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.invalidations))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.liveClients))
	assert.Equal(t, 12.0, testutil.ToFloat64(m.snapshotPlayers))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.CacheLookup("aggregate", false)
		m.ObserveFetch(OutcomePayload, time.Millisecond)
		m.ProxyRequest(http.MethodPost, 502)
		m.Invalidation()
		m.SetLiveClients(1)
		m.SetSnapshotPlayers(1)
	})
}

func TestHandlerExposesCollectors(t *testing.T) {
	m := New()
	m.CacheLookup("maxima", true)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `playerstats_cache_lookups_total{result="hit",slot="maxima"} 1`)
}
