package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/looma/see-practice-api/internal/service"
	"github.com/looma/see-practice-api/internal/service/maintenance"
)

var (
	_ service.OTPMetrics       = (*Metrics)(nil)
	_ maintenance.SweepMetrics = (*Metrics)(nil)
)

func TestMetricsCounters(t *testing.T) {
	m := New()

	m.ObserveIssuance(service.IssuanceIssued)
	m.ObserveIssuance(service.IssuanceIssued)
	m.ObserveIssuance(service.IssuanceRateLimited)
	m.ObserveVerification(service.VerificationSuccess)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.CodeIssuance.WithLabelValues(service.IssuanceIssued)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CodeIssuance.WithLabelValues(service.IssuanceRateLimited)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CodeVerification.WithLabelValues(service.VerificationSuccess)))

	m.ObserveSweep(maintenance.SweepStats{ExpiredCodes: 3, PrunedEvents: 2}, nil)
	m.ObserveSweep(maintenance.SweepStats{}, errors.New("db down"))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.SweepRuns.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SweepRuns.WithLabelValues("error")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.SweptRecords.WithLabelValues("code_records")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.SweptRecords.WithLabelValues("issuance_events")))
}

func TestMetricsHandlerAndMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := New()

	router := gin.New()
	router.Use(m.Middleware())
	router.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })
	router.GET("/metrics", gin.WrapH(m.Handler()))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
	require.Equal(t, http.StatusOK, w.Code)

	m.ObserveIssuance(service.IssuanceIssued)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, `see_practice_otp_issuance_total{outcome="issued"} 1`)
	assert.Contains(t, body, `see_practice_api_latency_seconds_count{method="GET",path="/ping",status="200"} 1`)
}
