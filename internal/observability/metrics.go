package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics набор коллекторов сервиса
type Metrics struct {
	UsecaseRequests   *prometheus.CounterVec
	UsecaseDuration   *prometheus.HistogramVec
	HTTPRequests      *prometheus.CounterVec
	HTTPDuration      *prometheus.HistogramVec
	PaymentAttempts   *prometheus.CounterVec
	StockConflicts    prometheus.Counter
	IdempotentReplays prometheus.Counter
	Compensations     *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer, namespace string) *Metrics {
	m := &Metrics{
		UsecaseRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "usecase_requests_total", Help: "Use case invocations by outcome.",
		}, []string{"usecase", "outcome"}),
		UsecaseDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "usecase_duration_seconds", Help: "Use case latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"usecase"}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "http_requests_total", Help: "HTTP requests by route and status class.",
		}, []string{"method", "route", "status"}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "http_request_duration_seconds", Help: "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		PaymentAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "payment_attempts_total", Help: "Gateway authorization attempts by outcome.",
		}, []string{"outcome"}),
		StockConflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "inventory_version_conflicts_total", Help: "Lost optimistic stock updates.",
		}),
		IdempotentReplays: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "idempotent_replays_total", Help: "Responses served from idempotency records.",
		}),
		Compensations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "compensations_total", Help: "Compensating actions executed.",
		}, []string{"action", "outcome"}),
	}
	reg.MustRegister(
		m.UsecaseRequests, m.UsecaseDuration,
		m.HTTPRequests, m.HTTPDuration,
		m.PaymentAttempts, m.StockConflicts, m.IdempotentReplays, m.Compensations,
	)
	return m
}

// NopMetrics коллекторы на отдельном реестре, для тестов
func NopMetrics() *Metrics {
	return NewMetrics(prometheus.NewRegistry(), "")
}

// ObserveUsecase RED-метрики одного вызова
func (m *Metrics) ObserveUsecase(usecase string, start time.Time, err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	m.UsecaseRequests.WithLabelValues(usecase, outcome).Inc()
	m.UsecaseDuration.WithLabelValues(usecase).Observe(time.Since(start).Seconds())
}

// StatusClass 2xx/3xx/4xx/5xx
func StatusClass(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	case code >= 300:
		return "3xx"
	case code >= 200:
		return "2xx"
	default:
		return "unknown"
	}
}
