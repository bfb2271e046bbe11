// Package metrics содержит метрики Prometheus биллинга.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Результаты обработки события вебхука.
const (
	OutcomeApplied   = "applied"
	OutcomeDuplicate = "duplicate"
	OutcomeStale     = "stale"
	OutcomeUnknown   = "unknown_subscription"
	OutcomeIgnored   = "ignored"
	OutcomeRejected  = "rejected"
	OutcomeError     = "error"
)

var (
	// WebhookEvents счётчик событий вебхуков по типу и результату.
	WebhookEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "billing_webhook_events_total",
			Help: "Total number of payment provider webhook events",
		},
		[]string{"type", "outcome"},
	)

	// ProviderCalls счётчик вызовов платёжных провайдеров.
	ProviderCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "billing_provider_calls_total",
			Help: "Total number of calls to payment providers",
		},
		[]string{"provider", "operation", "result"},
	)

	// Transitions счётчик переходов статуса подписки.
	Transitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "billing_subscription_transitions_total",
			Help: "Total number of committed subscription status transitions",
		},
		[]string{"source", "status"},
	)
)

// ObserveProviderCall учитывает вызов провайдера.
func ObserveProviderCall(provider, operation string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	ProviderCalls.WithLabelValues(provider, operation, result).Inc()
}
