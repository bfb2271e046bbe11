package models

import "time"

// Виды уведомлений о биллинге.
const (
	NotificationActivated = "subscription_activated"
	NotificationCancelled = "subscription_cancelled"
	NotificationUpdated   = "subscription_updated"
)

// BillingNotification сообщение в очередь уведомлений после изменения подписки.
type BillingNotification struct {
	Kind      string     `json:"kind"`
	UserID    int64      `json:"user_id"`
	Email     string     `json:"email"`
	FullName  string     `json:"full_name"`
	Status    Status     `json:"status"`
	Type      string     `json:"type"`
	PeriodEnd *time.Time `json:"period_end,omitempty"`
	Comment   string     `json:"comment,omitempty"`
	At        time.Time  `json:"at"`
}
