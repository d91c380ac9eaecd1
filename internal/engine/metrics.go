package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	// Latency: сколько времени заняла генерация (включая повторы)
	GenerationDuration *prometheus.HistogramVec

	// Traffic: общее кол-во запросов на генерацию
	GenerationsTotal *prometheus.CounterVec

	// Errors: классификация отказов
	ErrorTotal *prometheus.CounterVec

	// Retries: повторные попытки к провайдеру
	RetriesTotal *prometheus.CounterVec

	// Saturation: состояние Circuit Breaker (0 - closed, 1 - half-open, 2 - open)
	CircuitBreakerState *prometheus.GaugeVec

	// Wizard: ответы, отброшенные как устаревшие
	StaleDiscarded prometheus.Counter

	// Audit: заполненность буфера (backpressure)
	AuditBufferFill prometheus.Gauge
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	// Null Object Pattern - Если рег не передан, используем локальный, который никуда не подключен
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	return &Metrics{
		GenerationDuration: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Name:    "policyweb_generation_duration_seconds",
			Help:    "Histogram of policy generation latencies.",
			Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 20, 40},
		}, []string{"mode", "policy_type", "status"}),

		GenerationsTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "policyweb_generations_total",
			Help: "Total number of generation requests.",
		}, []string{"mode", "policy_type"}),

		ErrorTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "policyweb_errors_total",
			Help: "Total number of errors by type.",
		}, []string{"type"}), // типы: validation, not_allowed, rate_limited, server_error, auth_error, ...

		RetriesTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "policyweb_generation_retries_total",
			Help: "Total number of retried provider calls.",
		}, []string{"kind"}),

		CircuitBreakerState: promauto.With(reg).NewGaugeVec(prometheus.GaugeOpts{
			Name: "policyweb_circuit_breaker_state",
			Help: "Current state of the circuit breaker (0=closed, 1=half-open, 2=open).",
		}, []string{"provider"}),

		StaleDiscarded: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "policyweb_wizard_stale_responses_total",
			Help: "Generation responses discarded because a newer request was issued.",
		}),

		AuditBufferFill: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "policyweb_audit_buffer_utilization",
			Help: "Current number of events in audit buffer.",
		}),
	}
}
