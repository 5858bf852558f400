// metrics — счётчики Prometheus для решений AuthGate и выпуска сессий.
// Все методы безопасны для nil-получателя: сервис работает и без метрик.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "shop_auth"

// Metrics — набор метрик подсистемы аутентификации.
type Metrics struct {
	gateOutcomes   *prometheus.CounterVec
	gateDuration   prometheus.Histogram
	sessionsIssued *prometheus.CounterVec
}

// New регистрирует метрики в reg (prometheus.DefaultRegisterer, если nil).
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	factory := promauto.With(reg)

	return &Metrics{
		gateOutcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auth_gate_outcomes_total",
			Help:      "AuthGate decisions by outcome",
		}, []string{"outcome"}),

		gateDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "auth_gate_duration_seconds",
			Help:      "Time spent in AuthGate per request",
			Buckets:   prometheus.DefBuckets,
		}),

		sessionsIssued: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_issued_total",
			Help:      "Issued token pairs by reason",
		}, []string{"reason"}),
	}
}

// GateOutcome учитывает решение AuthGate (authenticated, refreshed, rejected_*).
func (m *Metrics) GateOutcome(outcome string, took time.Duration) {
	if m == nil {
		return
	}

	m.gateOutcomes.WithLabelValues(outcome).Inc()
	m.gateDuration.Observe(took.Seconds())
}

// SessionIssued учитывает выпуск пары токенов (login, register, refresh, gate_rotation).
func (m *Metrics) SessionIssued(reason string) {
	if m == nil {
		return
	}

	m.sessionsIssued.WithLabelValues(reason).Inc()
}
