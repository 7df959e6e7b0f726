package metrics

import (
	"net/http"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPMetricsObserve(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewHTTPMetrics(reg)

	m.Observe(http.MethodGet, "/api/v1/wallet", http.StatusOK, 20*time.Millisecond)
	m.Observe(http.MethodGet, "/api/v1/wallet", http.StatusOK, 10*time.Millisecond)
	m.Observe(http.MethodGet, "", http.StatusNotFound, time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.requests.WithLabelValues("GET", "/api/v1/wallet", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.requests.WithLabelValues("GET", "unmatched", "404")))

	mfs, err := reg.Gather()
	require.NoError(t, err)
	sum, err := fetchHistogramSum(mfs, "points_http_request_duration_seconds", "route", "/api/v1/wallet")
	require.NoError(t, err)
	assert.InDelta(t, 0.03, sum, 1e-9)
}

func TestHTTPMetricsNilIsNoop(t *testing.T) {
	var m *HTTPMetrics
	m.Observe(http.MethodGet, "/", http.StatusOK, time.Second)
	NewHTTPMetrics(nil).Observe(http.MethodGet, "/", http.StatusOK, time.Second)
}
