// Package models содержит доменные структуры биллинга: подписку пользователя,
// ответы платёжных провайдеров, события вебхуков и уведомления.
package models

import "time"

// Типы провайдеров, записываемые в subscriptions.type.
const (
	TypeStripe   = "stripe"
	TypeWaafiPay = "wafipay"
)

// Subscription строка таблицы subscriptions. Одна на пользователя.
type Subscription struct {
	ID                int64
	UserID            int64
	SubscriptionID    *string // идентификатор подписки у провайдера
	Customer          string  // идентификатор клиента у провайдера
	PlanID            string
	PlanAmount        float64
	Currency          string
	Interval          string
	SubscriptionStart *time.Time
	SubscriptionEnd   *time.Time
	PaymentStatus     *Status
	Type              string
	Comments          string
	CancelledAt       *time.Time
	LastEventAt       *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Status возвращает статус подписки или пустую строку, если подписки у провайдера ещё нет.
func (s *Subscription) Status() Status {
	if s == nil || s.PaymentStatus == nil {
		return ""
	}
	return *s.PaymentStatus
}

// ExternalID возвращает идентификатор подписки у провайдера.
func (s *Subscription) ExternalID() string {
	if s == nil || s.SubscriptionID == nil {
		return ""
	}
	return *s.SubscriptionID
}

// Live сообщает, что у пользователя есть действующая подписка с доступом.
func (s *Subscription) Live() bool {
	return s != nil && s.SubscriptionID != nil && s.CancelledAt == nil && s.Status().Entitled()
}

// Activation описывает подписку, подтверждённую одним из провайдеров.
// Оба пути оплаты сводятся к ней перед записью в хранилище.
type Activation struct {
	UserID            int64
	SubscriptionID    string
	Customer          string
	PlanID            string
	PlanAmount        float64
	Currency          string
	Interval          string
	SubscriptionStart time.Time
	SubscriptionEnd   time.Time
	Status            Status
	Type              string
	Comments          string
	TrialStart        *time.Time
	TrialEnd          *time.Time
	GrantTrial        bool
}

// SubscriptionView ответ GET /api/subscription.
type SubscriptionView struct {
	ID                int64      `json:"id"`
	SubscriptionID    string     `json:"subscription_id,omitempty"`
	Customer          string     `json:"customer,omitempty"`
	PlanID            string     `json:"plan_id,omitempty"`
	PlanAmount        float64    `json:"plan_amount"`
	Currency          string     `json:"currency,omitempty"`
	Interval          string     `json:"interval,omitempty"`
	SubscriptionStart *time.Time `json:"subscription_start,omitempty"`
	SubscriptionEnd   *time.Time `json:"subscription_end,omitempty"`
	PaymentStatus     Status     `json:"payment_status,omitempty"`
	Type              string     `json:"type"`
	Comments          string     `json:"comments,omitempty"`
	CancelledAt       *time.Time `json:"cancelled_at,omitempty"`
	Entitled          bool       `json:"entitled"`
}

// View строит представление подписки. Доступ вычисляется из статуса в момент чтения.
func (s *Subscription) View() *SubscriptionView {
	return &SubscriptionView{
		ID:                s.ID,
		SubscriptionID:    s.ExternalID(),
		Customer:          s.Customer,
		PlanID:            s.PlanID,
		PlanAmount:        s.PlanAmount,
		Currency:          s.Currency,
		Interval:          s.Interval,
		SubscriptionStart: s.SubscriptionStart,
		SubscriptionEnd:   s.SubscriptionEnd,
		PaymentStatus:     s.Status(),
		Type:              s.Type,
		Comments:          s.Comments,
		CancelledAt:       s.CancelledAt,
		Entitled:          s.CancelledAt == nil && s.Status().Entitled(),
	}
}
