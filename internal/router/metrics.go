package router

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/xela07ax/xchain-router/internal/codec"
	"github.com/xela07ax/xchain-router/internal/domain"
	"github.com/xela07ax/xchain-router/internal/transport"
)

type Metrics struct {
	// Latency: quote + send, включая транспорт
	DispatchDuration *prometheus.HistogramVec

	// Traffic: отправленные действия (батч считается по записям)
	ActionsSent *prometheus.CounterVec

	// Исходы входящих действий: executed, failed, duplicate, rejected, skipped
	ActionsReceived *prometheus.CounterVec

	// Errors: классификация отказов
	ErrorTotal *prometheus.CounterVec

	// Saturation: состояние Circuit Breaker транспорта (0 - ок, 1 - выбило)
	CircuitBreakerState *prometheus.GaugeVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	// Null Object Pattern - Если рег не передан, используем локальный, который никуда не подключен
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	return &Metrics{
		DispatchDuration: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Name:    "xrouter_dispatch_duration_seconds",
			Help:    "Histogram of outbound dispatch latencies.",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"kind", "status"}),

		ActionsSent: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "xrouter_actions_sent_total",
			Help: "Total number of dispatched actions.",
		}, []string{"kind", "dst_chain"}),

		ActionsReceived: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "xrouter_actions_received_total",
			Help: "Total number of inbound and local actions by outcome.",
		}, []string{"src_chain", "outcome"}),

		ErrorTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "xrouter_errors_total",
			Help: "Total number of errors by type.",
		}, []string{"type"}),

		CircuitBreakerState: promauto.With(reg).NewGaugeVec(prometheus.GaugeOpts{
			Name: "xrouter_circuit_breaker_state",
			Help: "Current state of the transport circuit breaker (0=closed, 1=open).",
		}, []string{"name"}),
	}
}

// BreakerObserver подключается к transport.Reliable.OnStateChange.
func (m *Metrics) BreakerObserver(name string, open bool) {
	v := 0.0
	if open {
		v = 1
	}
	m.CircuitBreakerState.WithLabelValues(name).Set(v)
}

func (m *Metrics) countError(err error) {
	if err == nil {
		return
	}
	m.ErrorTotal.WithLabelValues(errorType(err)).Inc()
}

func errorType(err error) string {
	switch {
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrAlreadyExecuted):
		return "already_executed"
	case errors.Is(err, ErrUntrustedTarget):
		return "untrusted_target"
	case errors.Is(err, ErrInsufficientFee):
		return "insufficient_fee"
	case errors.Is(err, domain.ErrEmptyAccount), errors.Is(err, domain.ErrEmptyTarget), errors.Is(err, domain.ErrEmptyActionID):
		return "invalid_action"
	case errors.Is(err, ErrEmptyBatch), errors.Is(err, ErrBatchTooLarge), errors.Is(err, ErrDuplicateInBatch):
		return "invalid_batch"
	case errors.Is(err, ErrUnknownChain), errors.Is(err, ErrEmptyRoute):
		return "invalid_route"
	case errors.Is(err, ErrConditionUnverified), errors.Is(err, ErrConditionNotMet):
		return "condition"
	case errors.Is(err, ErrForwardingUnsupported):
		return "forwarding"
	case errors.Is(err, codec.ErrMalformed), errors.Is(err, codec.ErrUnknownKind), errors.Is(err, codec.ErrUnsupportedVersion):
		return "malformed_message"
	case errors.Is(err, transport.ErrUnavailable):
		return "transport_unavailable"
	case errors.Is(err, ErrLedgerUnavailable):
		return "ledger_unavailable"
	default:
		return "internal"
	}
}
