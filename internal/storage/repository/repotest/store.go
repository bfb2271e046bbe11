// Package repotest содержит хранилище в памяти с семантикой repository.Storage
// для тестов сервисов. Транзакции выполняются последовательно, при ошибке
// состояние откатывается к снимку.
package repotest

import (
	"context"
	"sync"
	"time"

	"github.com/magabrotheeeer/kitab-billing/internal/models"
	"github.com/magabrotheeeer/kitab-billing/internal/storage/repository"
)

// Store хранилище в памяти.
type Store struct {
	mu     sync.Mutex
	users  map[int64]models.User
	subs   map[int64]models.Subscription
	events map[string]struct{}
	nextID int64

	// Commits число успешно завершённых транзакций
	Commits int
}

// New создает пустое хранилище.
func New() *Store {
	return &Store{
		users:  make(map[int64]models.User),
		subs:   make(map[int64]models.Subscription),
		events: make(map[string]struct{}),
	}
}

// AddUser добавляет пользователя.
func (s *Store) AddUser(u models.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.ID] = u
}

// AddSubscription добавляет строку подписки и возвращает её ID.
func (s *Store) AddSubscription(sub models.Subscription) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	sub.ID = s.nextID
	s.subs[sub.ID] = sub
	return sub.ID
}

// User возвращает копию пользователя.
func (s *Store) User(id int64) models.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.users[id]
}

// SubscriptionOf возвращает копию строки подписки пользователя.
func (s *Store) SubscriptionOf(userID int64) (models.Subscription, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.byUser(userID)
	return sub, ok
}

// SubscriptionCount число строк подписок.
func (s *Store) SubscriptionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

func (s *Store) byUser(userID int64) (models.Subscription, bool) {
	for _, sub := range s.subs {
		if sub.UserID == userID {
			return sub, true
		}
	}
	return models.Subscription{}, false
}

// GetUser см. repository.Storage.GetUser.
func (s *Store) GetUser(_ context.Context, userID int64) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &u, nil
}

// GetSubscriptionByUser см. repository.Storage.GetSubscriptionByUser.
func (s *Store) GetSubscriptionByUser(_ context.Context, userID int64) (*models.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.byUser(userID)
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &sub, nil
}

// EnsureCustomer см. repository.Storage.EnsureCustomer.
func (s *Store) EnsureCustomer(_ context.Context, userID int64, customer string) (*models.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.byUser(userID)
	if !ok {
		s.nextID++
		sub = models.Subscription{ID: s.nextID, UserID: userID, Customer: customer, Type: models.TypeStripe}
	} else if sub.Customer == "" {
		sub.Customer = customer
	}
	s.subs[sub.ID] = sub
	return &sub, nil
}

// CancelTrial см. repository.Storage.CancelTrial.
func (s *Store) CancelTrial(_ context.Context, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return repository.ErrNotFound
	}
	cancelled := models.TrialCancelled
	u.TrialStatus = &cancelled
	s.users[userID] = u
	return nil
}

// WithTx выполняет fn под блокировкой хранилища и откатывает изменения при ошибке.
func (s *Store) WithTx(_ context.Context, fn func(tx repository.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	users, subs, events, nextID := s.snapshot()
	if err := fn(&tx{s: s}); err != nil {
		s.users, s.subs, s.events, s.nextID = users, subs, events, nextID
		return err
	}
	s.Commits++
	return nil
}

func (s *Store) snapshot() (map[int64]models.User, map[int64]models.Subscription, map[string]struct{}, int64) {
	users := make(map[int64]models.User, len(s.users))
	for k, v := range s.users {
		users[k] = v
	}
	subs := make(map[int64]models.Subscription, len(s.subs))
	for k, v := range s.subs {
		subs[k] = v
	}
	events := make(map[string]struct{}, len(s.events))
	for k := range s.events {
		events[k] = struct{}{}
	}
	return users, subs, events, s.nextID
}

type tx struct {
	s *Store
}

var _ repository.Tx = (*tx)(nil)

func (t *tx) LockSubscriptionByID(_ context.Context, id int64) (*models.Subscription, error) {
	sub, ok := t.s.subs[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &sub, nil
}

func (t *tx) LockSubscriptionByUser(_ context.Context, userID int64) (*models.Subscription, error) {
	sub, ok := t.s.byUser(userID)
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &sub, nil
}

func (t *tx) LockSubscriptionByExternalID(_ context.Context, externalID string) (*models.Subscription, error) {
	for _, sub := range t.s.subs {
		if sub.ExternalID() == externalID {
			return &sub, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (t *tx) UpsertSubscription(_ context.Context, a *models.Activation) (*models.Subscription, error) {
	sub, ok := t.s.byUser(a.UserID)
	if !ok {
		t.s.nextID++
		sub = models.Subscription{ID: t.s.nextID, UserID: a.UserID, CreatedAt: time.Now()}
	}
	extID := a.SubscriptionID
	status := a.Status
	start, end := a.SubscriptionStart, a.SubscriptionEnd
	sub.SubscriptionID = &extID
	if a.Customer != "" {
		sub.Customer = a.Customer
	}
	sub.PlanID = a.PlanID
	sub.PlanAmount = a.PlanAmount
	sub.Currency = a.Currency
	sub.Interval = a.Interval
	sub.SubscriptionStart = &start
	sub.SubscriptionEnd = &end
	sub.PaymentStatus = &status
	sub.Type = a.Type
	sub.Comments = a.Comments
	sub.CancelledAt = nil
	sub.LastEventAt = nil
	sub.UpdatedAt = time.Now()
	t.s.subs[sub.ID] = sub
	return &sub, nil
}

func (t *tx) UpdateSubscriptionStatus(_ context.Context, id int64, u repository.StatusUpdate) error {
	sub, ok := t.s.subs[id]
	if !ok {
		return repository.ErrNotFound
	}
	status := u.Status
	sub.PaymentStatus = &status
	sub.Comments = u.Comments
	if u.CancelledAt != nil {
		sub.CancelledAt = u.CancelledAt
	}
	if u.LastEventAt != nil {
		sub.LastEventAt = u.LastEventAt
	}
	if u.PeriodStart != nil {
		sub.SubscriptionStart = u.PeriodStart
	}
	if u.PeriodEnd != nil {
		sub.SubscriptionEnd = u.PeriodEnd
	}
	sub.UpdatedAt = time.Now()
	t.s.subs[id] = sub
	return nil
}

func (t *tx) GetUserForUpdate(_ context.Context, userID int64) (*models.User, error) {
	u, ok := t.s.users[userID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &u, nil
}

func (t *tx) SetUserSubscriptionStatus(_ context.Context, userID int64, flag int) error {
	u, ok := t.s.users[userID]
	if !ok {
		return repository.ErrNotFound
	}
	u.SubscriptionStatus = flag
	t.s.users[userID] = u
	return nil
}

func (t *tx) SetUserTrial(_ context.Context, userID int64, start, end *time.Time, grant bool) error {
	u, ok := t.s.users[userID]
	if !ok {
		return nil
	}
	u.TrialStart, u.TrialEnd = start, end
	if grant {
		active := models.TrialActive
		u.TrialStatus = &active
	}
	t.s.users[userID] = u
	return nil
}

func (t *tx) RecordWebhookEvent(_ context.Context, provider string, ev *models.ProviderEvent) (bool, error) {
	key := provider + ":" + ev.ID
	if _, ok := t.s.events[key]; ok {
		return false, nil
	}
	t.s.events[key] = struct{}{}
	return true, nil
}
