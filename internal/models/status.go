package models

// Status каноническое состояние подписки.
type Status string

// Значения Status в том виде, в котором они хранятся в subscriptions.payment_status.
const (
	StatusTrialing  Status = "Trial"
	StatusActive    Status = "Active"
	StatusPastDue   Status = "PastDue"
	StatusCancelled Status = "Cancelled"
)

// Типы событий провайдера, которые обрабатывает сверка.
const (
	EventSubscriptionCreated = "customer.subscription.created"
	EventSubscriptionUpdated = "customer.subscription.updated"
	EventSubscriptionDeleted = "customer.subscription.deleted"
	EventPaymentSucceeded    = "invoice.payment_succeeded"
	EventPaymentFailed       = "invoice.payment_failed"
)

// Entitled сообщает, даёт ли статус доступ к платному контенту.
func (s Status) Entitled() bool {
	switch s {
	case StatusTrialing, StatusActive, StatusPastDue:
		return true
	default:
		return false
	}
}

// Flag значение users.subscription_status для статуса.
func (s Status) Flag() int {
	if s.Entitled() {
		return 1
	}
	return 0
}

// Valid проверяет, что статус входит в закрытый набор.
func (s Status) Valid() bool {
	switch s {
	case StatusTrialing, StatusActive, StatusPastDue, StatusCancelled:
		return true
	}
	return false
}

// StatusFromProvider переводит статус подписки Stripe в канонический.
// Неизвестные значения считаются активной подпиской.
func StatusFromProvider(providerStatus string) Status {
	switch providerStatus {
	case "trialing":
		return StatusTrialing
	case "past_due", "unpaid", "incomplete", "paused":
		return StatusPastDue
	case "canceled", "incomplete_expired":
		return StatusCancelled
	default:
		return StatusActive
	}
}

// StatusForEvent возвращает статус, в который переводит подписку событие провайдера.
// Второе значение false для событий, которые сверка не обрабатывает.
func StatusForEvent(eventType, providerStatus string) (Status, bool) {
	switch eventType {
	case EventSubscriptionCreated:
		if providerStatus == "trialing" {
			return StatusTrialing, true
		}
		return StatusActive, true
	case EventSubscriptionUpdated:
		return StatusFromProvider(providerStatus), true
	case EventSubscriptionDeleted:
		return StatusCancelled, true
	case EventPaymentSucceeded:
		return StatusActive, true
	case EventPaymentFailed:
		return StatusCancelled, true
	}
	return "", false
}

// Terminal сообщает, что событие окончательно закрывает подписку.
func Terminal(eventType string) bool {
	return eventType == EventSubscriptionDeleted
}
