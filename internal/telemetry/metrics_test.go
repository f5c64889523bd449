package telemetry

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, c.Write(&m))
	return m.GetCounter().GetValue()
}

func TestInstrumentCountsStatusClass(t *testing.T) {
	h := Instrument("test_teapot", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, 1.0, counterValue(t, RequestsTotal.WithLabelValues("test_teapot", "4xx")))
}

func TestObserveDispatch(t *testing.T) {
	ObserveDispatch("test_op", "ALL_SUCCESS", time.Now())
	assert.Equal(t, 1.0, counterValue(t, DispatchTotal.WithLabelValues("test_op", "ALL_SUCCESS")))
}

func TestMetricsHandlerServes(t *testing.T) {
	rec := httptest.NewRecorder()
	MetricsHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "zephyrgrid_uptime_seconds")
}
