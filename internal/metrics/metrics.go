// Package metrics — Prometheus-метрики бота.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics хранит коллекторы, общие для всего сервиса.
type Metrics struct {
	IncomingUpdates  *prometheus.CounterVec
	OutgoingMessages *prometheus.CounterVec
	LedgerOps        *prometheus.CounterVec
	LedgerLatency    *prometheus.HistogramVec
	FlowSteps        *prometheus.CounterVec
	Errors           *prometheus.CounterVec
}

var (
	regOnce         sync.Once
	metricsInstance *Metrics
)

// Registry создаёт и регистрирует синглтон метрик с пространством имён namespace.
func Registry(namespace string) *Metrics {
	regOnce.Do(func() {
		metricsInstance = &Metrics{
			IncomingUpdates: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "incoming_updates_total",
				Help:      "Входящие события Telegram по типу.",
			}, []string{"kind"}),
			OutgoingMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "outgoing_messages_total",
				Help:      "Исходящие сообщения по результату отправки.",
			}, []string{"status"}),
			LedgerOps: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "ledger_operations_total",
				Help:      "Операции с балансами по типу и результату.",
			}, []string{"op", "status"}),
			LedgerLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "ledger_operation_duration_seconds",
				Help:      "Длительность операций с балансами.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"op"}),
			FlowSteps: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "conversation_steps_total",
				Help:      "Шаги диалогов по сценарию и исходу.",
			}, []string{"flow", "outcome"}),
			Errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_total",
				Help:      "Ошибки по компонентам.",
			}, []string{"component"}),
		}

		prometheus.MustRegister(
			metricsInstance.IncomingUpdates,
			metricsInstance.OutgoingMessages,
			metricsInstance.LedgerOps,
			metricsInstance.LedgerLatency,
			metricsInstance.FlowSteps,
			metricsInstance.Errors,
		)
	})
	return metricsInstance
}

// ObserveLedger учитывает операцию с балансом. Безопасен для nil.
func (m *Metrics) ObserveLedger(op string, err error, started time.Time) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.LedgerOps.WithLabelValues(op, status).Inc()
	m.LedgerLatency.WithLabelValues(op).Observe(time.Since(started).Seconds())
}

// Update учитывает входящее событие.
func (m *Metrics) Update(kind string) {
	if m == nil {
		return
	}
	m.IncomingUpdates.WithLabelValues(kind).Inc()
}

// Outgoing учитывает отправку сообщения.
func (m *Metrics) Outgoing(err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.OutgoingMessages.WithLabelValues(status).Inc()
}

// Step учитывает шаг диалога.
func (m *Metrics) Step(flow, outcome string) {
	if m == nil {
		return
	}
	m.FlowSteps.WithLabelValues(flow, outcome).Inc()
}

// Error учитывает ошибку компонента.
func (m *Metrics) Error(component string) {
	if m == nil {
		return
	}
	m.Errors.WithLabelValues(component).Inc()
}
