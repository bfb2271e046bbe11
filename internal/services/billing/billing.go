// Package billing содержит бизнес-логику подписок: создание через SetupIntent,
// прямую оплату, отмену и чтение текущей подписки пользователя.
package billing

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/magabrotheeeer/kitab-billing/internal/models"
	"github.com/magabrotheeeer/kitab-billing/internal/storage/repository"
)

// Ошибки, которые обработчики переводят в коды ответа.
var (
	ErrNotFound             = errors.New("subscription not found")
	ErrProvider             = errors.New("payment provider error")
	ErrAlreadySubscribed    = errors.New("user already has an active subscription")
	ErrActivationIncomplete = errors.New("subscription could not be activated")
	ErrInProgress           = errors.New("subscription operation already in progress")
)

// Repository методы хранилища, которые использует сервис.
type Repository interface {
	GetUser(ctx context.Context, userID int64) (*models.User, error)
	GetSubscriptionByUser(ctx context.Context, userID int64) (*models.Subscription, error)
	EnsureCustomer(ctx context.Context, userID int64, customer string) (*models.Subscription, error)
	CancelTrial(ctx context.Context, userID int64) error
	WithTx(ctx context.Context, fn func(tx repository.Tx) error) error
}

// Provider платёжный провайдер подписок (Stripe).
type Provider interface {
	CreateCustomer(ctx context.Context, email, name string) (string, error)
	CreateSetupIntent(ctx context.Context, customerID string) (*models.SetupIntent, error)
	AttachPaymentMethod(ctx context.Context, intentID, customerID string) error
	CreateSubscription(ctx context.Context, customerID string, trialDays int64) (*models.ProviderSubscription, error)
	CancelSubscription(ctx context.Context, subscriptionID, reason string) error
}

// DirectProvider провайдер прямой оплаты (WaafiPay).
type DirectProvider interface {
	Charge(ctx context.Context, accountNo string, amount float64, currency, description string) (*models.DirectPayment, error)
}

// Cache описывает методы для кэширования данных.
type Cache interface {
	Get(ctx context.Context, key string, result any) (bool, error)
	Set(ctx context.Context, key string, value any, expiration time.Duration) error
	Invalidate(ctx context.Context, key string) error
}

// Notifier публикует уведомления об изменении подписки.
type Notifier interface {
	Publish(ctx context.Context, message any) error
}

// Plan параметры тарифа.
type Plan struct {
	TrialDays      int64
	DirectAmount   float64
	DirectCurrency string
	DirectDays     int
}

// Service реализует операции биллинга.
type Service struct {
	repo     Repository
	provider Provider
	direct   DirectProvider
	cache    Cache
	notifier Notifier
	plan     Plan
	log      *slog.Logger
	now      func() time.Time

	mu       sync.Mutex
	inflight map[int64]struct{}
}

// New создает новый экземпляр Service.
func New(log *slog.Logger, repo Repository, provider Provider, direct DirectProvider,
	cache Cache, notifier Notifier, plan Plan) *Service {
	return &Service{
		repo:     repo,
		provider: provider,
		direct:   direct,
		cache:    cache,
		notifier: notifier,
		plan:     plan,
		log:      log,
		now:      func() time.Time { return time.Now().UTC() },
		inflight: make(map[int64]struct{}),
	}
}

// acquire отмечает начало оплаты пользователя. Возвращает false, если оплата
// этого пользователя уже идёт в этом процессе.
func (s *Service) acquire(userID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.inflight[userID]; busy {
		return false
	}
	s.inflight[userID] = struct{}{}
	return true
}

func (s *Service) release(userID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inflight, userID)
}

func mapNotFound(err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return ErrNotFound
	}
	return err
}
