package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/looma/see-practice-api/internal/service/maintenance"
)

const namespace = "see_practice"

// Metrics владеет отдельным реестром с метриками OTP
type Metrics struct {
	registry *prometheus.Registry

	// CodeIssuance считает запросы кода по результату
	CodeIssuance *prometheus.CounterVec
	// CodeVerification считает попытки проверки по результату
	CodeVerification *prometheus.CounterVec
	// SweepRuns считает очистки по результату (ok|error)
	SweepRuns *prometheus.CounterVec
	// SweptRecords считает удаленные очисткой записи по типу
	SweptRecords *prometheus.CounterVec
	// APILatency измеряет задержки HTTP запросов
	APILatency *prometheus.HistogramVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		CodeIssuance: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "otp_issuance_total",
				Help:      "Total number of login code requests",
			},
			[]string{"outcome"},
		),
		CodeVerification: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "otp_verification_total",
				Help:      "Total number of login code verifications",
			},
			[]string{"outcome"},
		),
		SweepRuns: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "otp_sweep_runs_total",
				Help:      "Total number of expiry sweeps",
			},
			[]string{"result"},
		),
		SweptRecords: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "otp_swept_records_total",
				Help:      "Records removed by expiry sweeps",
			},
			[]string{"kind"},
		),
		APILatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "api_latency_seconds",
				Help:      "API endpoint latency",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path", "status"},
		),
	}
}

func (m *Metrics) ObserveIssuance(outcome string) {
	m.CodeIssuance.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveVerification(outcome string) {
	m.CodeVerification.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveSweep(stats maintenance.SweepStats, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.SweepRuns.WithLabelValues(result).Inc()
	m.SweptRecords.WithLabelValues("code_records").Add(float64(stats.ExpiredCodes))
	m.SweptRecords.WithLabelValues("issuance_events").Add(float64(stats.PrunedEvents))
}

// Handler отдает реестр в формате Prometheus
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry возвращает реестр, в основном для тестов
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Middleware записывает задержку запроса с меткой шаблона маршрута
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		m.APILatency.
			WithLabelValues(c.Request.Method, path, strconv.Itoa(c.Writer.Status())).
			Observe(time.Since(start).Seconds())
	}
}
