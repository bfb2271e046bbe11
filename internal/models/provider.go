package models

import "time"

// SetupIntent намерение сохранить платёжный метод.
type SetupIntent struct {
	ID           string
	ClientSecret string
}

// ProviderSubscription подписка, созданная у провайдера.
type ProviderSubscription struct {
	ID                 string
	Status             string // статус в терминах провайдера: trialing, active, incomplete...
	PlanID             string
	PlanAmount         float64
	Currency           string
	Interval           string
	CurrentPeriodStart time.Time
	CurrentPeriodEnd   time.Time
	TrialStart         *time.Time
	TrialEnd           *time.Time
}

// ProviderEvent проверенное событие вебхука.
type ProviderEvent struct {
	ID             string
	Type           string
	Created        time.Time
	SubscriptionID string
	ProviderStatus string
	PeriodStart    *time.Time
	PeriodEnd      *time.Time
}

// DirectPayment результат подтверждённого прямого платежа.
type DirectPayment struct {
	TransactionID string
	ReferenceID   string
	Amount        float64
	Currency      string
}
