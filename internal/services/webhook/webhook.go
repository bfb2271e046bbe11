// Package webhook сверяет локальные подписки с событиями платёжного провайдера.
// Доставка событий "хотя бы один раз" и в произвольном порядке, поэтому каждое
// событие применяется в транзакции вместе с записью в журнал webhook_events.
package webhook

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/magabrotheeeer/kitab-billing/internal/cache"
	"github.com/magabrotheeeer/kitab-billing/internal/lib/metrics"
	"github.com/magabrotheeeer/kitab-billing/internal/lib/sl"
	"github.com/magabrotheeeer/kitab-billing/internal/models"
	"github.com/magabrotheeeer/kitab-billing/internal/storage/repository"
)

// ErrInvalidSignature подпись события не прошла проверку.
var ErrInvalidSignature = errors.New("invalid webhook signature")

const statusComment = "Status updated due to Stripe event"

// EventVerifier проверяет подпись и разбирает событие провайдера.
type EventVerifier interface {
	ConstructEvent(payload []byte, signatureHeader string) (*models.ProviderEvent, error)
}

// Repository транзакции хранилища.
type Repository interface {
	WithTx(ctx context.Context, fn func(tx repository.Tx) error) error
}

// Cache сброс кэшированного представления подписки.
type Cache interface {
	Invalidate(ctx context.Context, key string) error
}

// Notifier публикует уведомления об изменении подписки.
type Notifier interface {
	Publish(ctx context.Context, message any) error
}

// Reconciler применяет события провайдера к подпискам.
type Reconciler struct {
	verifier EventVerifier
	repo     Repository
	cache    Cache
	notifier Notifier
	provider string
	log      *slog.Logger
}

// New создает Reconciler для событий провайдера provider.
func New(log *slog.Logger, provider string, verifier EventVerifier, repo Repository, cache Cache, notifier Notifier) *Reconciler {
	return &Reconciler{
		verifier: verifier,
		repo:     repo,
		cache:    cache,
		notifier: notifier,
		provider: provider,
		log:      log,
	}
}

type result struct {
	outcome string
	sub     *models.Subscription
	user    *models.User
	status  models.Status
}

// HandleEvent проверяет подпись и применяет событие. Неизвестная подписка,
// повтор и устаревшее событие не считаются ошибкой.
func (r *Reconciler) HandleEvent(ctx context.Context, rawBody []byte, signature string) error {
	const op = "webhook.HandleEvent"
	log := r.log.With(slog.String("op", op))

	ev, err := r.verifier.ConstructEvent(rawBody, signature)
	if err != nil {
		metrics.WebhookEvents.WithLabelValues("", metrics.OutcomeRejected).Inc()
		log.Warn("webhook rejected", sl.Err(err))
		return fmt.Errorf("%s: %w: %w", op, ErrInvalidSignature, err)
	}
	log = log.With(slog.String("event_id", ev.ID), slog.String("type", ev.Type))

	status, ok := models.StatusForEvent(ev.Type, ev.ProviderStatus)
	if !ok {
		metrics.WebhookEvents.WithLabelValues(ev.Type, metrics.OutcomeIgnored).Inc()
		log.Debug("event type not handled")
		return nil
	}
	if ev.SubscriptionID == "" {
		metrics.WebhookEvents.WithLabelValues(ev.Type, metrics.OutcomeUnknown).Inc()
		log.Info("event without subscription id")
		return nil
	}
	log = log.With(slog.String("subscription", ev.SubscriptionID))

	var res result
	err = r.repo.WithTx(ctx, func(tx repository.Tx) error {
		var err error
		res, err = r.apply(ctx, tx, ev, status)
		return err
	})
	if err != nil {
		metrics.WebhookEvents.WithLabelValues(ev.Type, metrics.OutcomeError).Inc()
		log.Error("failed to apply event", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}
	metrics.WebhookEvents.WithLabelValues(ev.Type, res.outcome).Inc()

	if res.outcome != metrics.OutcomeApplied {
		log.Info("event skipped", slog.String("outcome", res.outcome))
		return nil
	}
	metrics.Transitions.WithLabelValues("webhook", string(res.status)).Inc()
	log.Info("subscription status updated", slog.String("status", string(res.status)))

	r.afterCommit(ctx, log, res)
	return nil
}

// apply выполняется внутри транзакции. Строка подписки блокируется до записи
// события в журнал, поэтому конкурирующая отмена и повтор события упорядочиваются.
func (r *Reconciler) apply(ctx context.Context, tx repository.Tx, ev *models.ProviderEvent, status models.Status) (result, error) {
	sub, err := tx.LockSubscriptionByExternalID(ctx, ev.SubscriptionID)
	if errors.Is(err, repository.ErrNotFound) {
		// событие не записывается: после появления строки провайдер может доставить его снова
		return result{outcome: metrics.OutcomeUnknown}, nil
	}
	if err != nil {
		return result{}, err
	}

	fresh, err := tx.RecordWebhookEvent(ctx, r.provider, ev)
	if err != nil {
		return result{}, err
	}
	if !fresh {
		return result{outcome: metrics.OutcomeDuplicate}, nil
	}
	if sub.CancelledAt != nil {
		return result{outcome: metrics.OutcomeStale}, nil
	}
	if sub.LastEventAt != nil && ev.Created.Before(*sub.LastEventAt) {
		return result{outcome: metrics.OutcomeStale}, nil
	}

	created := ev.Created
	upd := repository.StatusUpdate{
		Status:      status,
		Comments:    statusComment,
		LastEventAt: &created,
	}
	if models.Terminal(ev.Type) {
		upd.CancelledAt = &created
	}
	if status.Entitled() {
		upd.PeriodStart, upd.PeriodEnd = ev.PeriodStart, ev.PeriodEnd
	}
	if err := tx.UpdateSubscriptionStatus(ctx, sub.ID, upd); err != nil {
		return result{}, err
	}
	if err := tx.SetUserSubscriptionStatus(ctx, sub.UserID, status.Flag()); err != nil {
		return result{}, err
	}
	user, err := tx.GetUserForUpdate(ctx, sub.UserID)
	if err != nil {
		return result{}, err
	}

	sub.PaymentStatus = &status
	sub.Comments = statusComment
	sub.LastEventAt = &created
	sub.CancelledAt = upd.CancelledAt
	if upd.PeriodEnd != nil {
		sub.SubscriptionEnd = upd.PeriodEnd
	}
	return result{outcome: metrics.OutcomeApplied, sub: sub, user: user, status: status}, nil
}

func (r *Reconciler) afterCommit(ctx context.Context, log *slog.Logger, res result) {
	if r.cache != nil {
		if err := r.cache.Invalidate(ctx, cache.SubscriptionKey(res.sub.UserID)); err != nil {
			log.Warn("failed to invalidate cache", sl.Err(err))
		}
	}
	if r.notifier == nil {
		return
	}
	kind := models.NotificationUpdated
	if res.status == models.StatusCancelled {
		kind = models.NotificationCancelled
	}
	n := models.BillingNotification{
		Kind:      kind,
		UserID:    res.sub.UserID,
		Email:     res.user.Email,
		FullName:  res.user.FullName,
		Status:    res.status,
		Type:      res.sub.Type,
		PeriodEnd: res.sub.SubscriptionEnd,
		Comment:   statusComment,
		At:        time.Now().UTC(),
	}
	if err := r.notifier.Publish(ctx, n); err != nil {
		log.Warn("failed to publish notification", sl.Err(err))
	}
}
