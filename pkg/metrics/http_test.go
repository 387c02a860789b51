package metrics

import (
	"net/http"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestHTTPMetricsLabelsByRouteAndClass(t *testing.T) {
	m := NewHTTPMetrics(prometheus.NewRegistry())

	done := m.Start()
	assert.Equal(t, 1.0, testutil.ToFloat64(m.inflight))
	done("/api/v1/payouts/{payoutID}/approve", http.MethodPost, http.StatusConflict)
	m.Start()("", http.MethodGet, http.StatusOK)

	assert.Zero(t, testutil.ToFloat64(m.inflight))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.requests.WithLabelValues("/api/v1/payouts/{payoutID}/approve", http.MethodPost, "4xx")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.requests.WithLabelValues("unknown", http.MethodGet, "2xx")))
	assert.Equal(t, 2, testutil.CollectAndCount(m.latency))
}

func TestStatusClass(t *testing.T) {
	assert.Equal(t, "5xx", statusClass(503))
	assert.Equal(t, "unknown", statusClass(0))
	assert.Equal(t, "unknown", statusClass(700))
}

func TestHTTPMetricsNilSafe(t *testing.T) {
	var m *HTTPMetrics
	assert.NotPanics(t, func() { m.Start()("r", http.MethodGet, 200) })
}
