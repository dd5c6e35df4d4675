package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Counters(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.CacheHit("search")
	m.CacheHit("search")
	m.CacheMiss("tracklist")
	m.CacheError("set")
	m.CacheInvalidated()
	m.OrderPlaced("success")
	m.MetadataFetched("empty")
	m.ObserveHTTP("GET", "/api/catalog", 200, 15*time.Millisecond)

	require.Equal(t, 2.0, testutil.ToFloat64(m.cacheRequests.WithLabelValues("search", "hit")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.cacheRequests.WithLabelValues("tracklist", "miss")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.cacheErrors.WithLabelValues("set")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.cacheInvalidations))
	require.Equal(t, 1.0, testutil.ToFloat64(m.orders.WithLabelValues("success")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.metadataFetches.WithLabelValues("empty")))
}

func TestMetrics_RegisterTwiceReusesCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	first := New(reg)
	second := New(reg)

	first.OrderPlaced("conflict")
	second.OrderPlaced("conflict")

	require.Equal(t, 2.0, testutil.ToFloat64(first.orders.WithLabelValues("conflict")))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	require.NotPanics(t, func() {
		m.CacheHit("search")
		m.CacheInvalidated()
		m.ObserveHTTP("GET", "/", 200, time.Second)
	})
}
