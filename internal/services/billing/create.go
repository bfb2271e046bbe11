package billing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/magabrotheeeer/kitab-billing/internal/lib/sl"
	"github.com/magabrotheeeer/kitab-billing/internal/models"
	"github.com/magabrotheeeer/kitab-billing/internal/storage/repository"
)

// SetupIntentResult ответ на запрос SetupIntent.
type SetupIntentResult struct {
	ClientSecret string
	IntentID     string
	Customer     string
}

// Причина отмены подписки у провайдера, если её не удалось записать локально.
const unrecordedCancelReason = "Subscription could not be recorded"

// CreateResult результат создания подписки. ProviderStatus статус в терминах
// провайдера (trialing, active), его ждут клиенты.
type CreateResult struct {
	Status         models.Status
	ProviderStatus string
	Message        string
}

// CreateSetupIntent выдаёт SetupIntent для сохранения карты. Клиент провайдера
// создаётся один раз на пользователя и дальше переиспользуется.
func (s *Service) CreateSetupIntent(ctx context.Context, userID int64) (*SetupIntentResult, error) {
	const op = "billing.CreateSetupIntent"
	log := s.log.With(slog.String("op", op), slog.Int64("user_id", userID))

	user, err := s.repo.GetUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, mapNotFound(err))
	}

	customer := ""
	sub, err := s.repo.GetSubscriptionByUser(ctx, userID)
	switch {
	case err == nil:
		customer = sub.Customer
	case !errors.Is(err, repository.ErrNotFound):
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if customer == "" {
		created, err := s.provider.CreateCustomer(ctx, user.Email, user.FullName)
		if err != nil {
			return nil, fmt.Errorf("%s: %w: %w", op, ErrProvider, err)
		}
		sub, err = s.repo.EnsureCustomer(ctx, userID, created)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		customer = sub.Customer
		if customer != created {
			log.Warn("customer created concurrently, keeping stored one",
				slog.String("stored", customer), slog.String("orphan", created))
		} else {
			log.Info("provider customer created", slog.String("customer", customer))
		}
	}

	si, err := s.provider.CreateSetupIntent(ctx, customer)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %w", op, ErrProvider, err)
	}

	return &SetupIntentResult{
		ClientSecret: si.ClientSecret,
		IntentID:     si.ID,
		Customer:     customer,
	}, nil
}

// CreateSubscription привязывает карту из SetupIntent и подписывает пользователя.
// Пробный период выдаётся только пользователю, который его ещё не получал.
func (s *Service) CreateSubscription(ctx context.Context, userID int64, intentID, customerID string) (*CreateResult, error) {
	const op = "billing.CreateSubscription"
	log := s.log.With(slog.String("op", op), slog.Int64("user_id", userID))

	if !s.acquire(userID) {
		return nil, fmt.Errorf("%s: %w", op, ErrInProgress)
	}
	defer s.release(userID)

	user, err := s.repo.GetUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, mapNotFound(err))
	}
	sub, err := s.repo.GetSubscriptionByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, mapNotFound(err))
	}
	if sub.Customer == "" || sub.Customer != customerID {
		return nil, fmt.Errorf("%s: customer does not belong to user: %w", op, ErrNotFound)
	}
	if sub.Live() {
		return nil, fmt.Errorf("%s: %w", op, ErrAlreadySubscribed)
	}

	if err := s.provider.AttachPaymentMethod(ctx, intentID, customerID); err != nil {
		return nil, fmt.Errorf("%s: %w: %w", op, ErrProvider, err)
	}

	var trialDays int64
	if user.TrialEligible() {
		trialDays = s.plan.TrialDays
	}
	ps, err := s.provider.CreateSubscription(ctx, customerID, trialDays)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %w", op, ErrProvider, err)
	}

	a := &models.Activation{
		UserID:            userID,
		SubscriptionID:    ps.ID,
		Customer:          customerID,
		PlanID:            ps.PlanID,
		PlanAmount:        ps.PlanAmount,
		Currency:          ps.Currency,
		Interval:          ps.Interval,
		SubscriptionStart: ps.CurrentPeriodStart,
		SubscriptionEnd:   ps.CurrentPeriodEnd,
		Type:              models.TypeStripe,
	}
	switch ps.Status {
	case "trialing":
		a.Status = models.StatusTrialing
		a.Comments = fmt.Sprintf("Subscription in %d-day trial", trialDays)
		a.GrantTrial = trialDays > 0
	case "active":
		a.Status = models.StatusActive
		a.Comments = "Subscription created"
	default:
		log.Warn("provider subscription not active", slog.String("subscription", ps.ID), slog.String("status", ps.Status))
		return nil, fmt.Errorf("%s: provider status %q: %w", op, ps.Status, ErrActivationIncomplete)
	}

	// окно пробного периода у пользователя повторяет границы подписки, если провайдер их не прислал
	a.TrialStart, a.TrialEnd = ps.TrialStart, ps.TrialEnd
	if a.TrialStart == nil {
		a.TrialStart = &a.SubscriptionStart
	}
	if a.TrialEnd == nil {
		a.TrialEnd = &a.SubscriptionEnd
	}

	if _, err := s.activate(ctx, user, a, "create_subscription"); err != nil {
		// подписка у провайдера не должна остаться без локальной строки
		cancelCtx := context.WithoutCancel(ctx)
		if cerr := s.provider.CancelSubscription(cancelCtx, ps.ID, unrecordedCancelReason); cerr != nil {
			log.Error("failed to cancel unrecorded provider subscription",
				slog.String("subscription", ps.ID), sl.Err(cerr))
		} else {
			log.Warn("unrecorded provider subscription cancelled", slog.String("subscription", ps.ID), sl.Err(err))
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	log.Info("subscription activated", slog.String("subscription", ps.ID), slog.String("status", string(a.Status)))

	return &CreateResult{Status: a.Status, ProviderStatus: ps.Status, Message: a.Comments}, nil
}

// activate записывает подтверждённую подписку и флаг доступа пользователя в одной транзакции.
// Оба пути оплаты проходят через него. Проверки подписки и пробного периода
// повторяются под блокировкой строк: их могла изменить параллельная оплата.
func (s *Service) activate(ctx context.Context, user *models.User, a *models.Activation, source string) (*models.Subscription, error) {
	const op = "billing.activate"

	var stored *models.Subscription
	err := s.repo.WithTx(ctx, func(tx repository.Tx) error {
		current, err := lockCurrent(ctx, tx, a.UserID)
		if err != nil {
			return err
		}
		locked, err := tx.GetUserForUpdate(ctx, a.UserID)
		if err != nil {
			return mapNotFound(err)
		}
		if current == nil {
			// строки не было: параллельная оплата могла вставить её, пока ждали пользователя
			if current, err = lockCurrent(ctx, tx, a.UserID); err != nil {
				return err
			}
		}
		if current.Live() && current.ExternalID() != a.SubscriptionID {
			return ErrAlreadySubscribed
		}
		if a.GrantTrial && !locked.TrialEligible() {
			return fmt.Errorf("trial already used: %w", ErrActivationIncomplete)
		}

		stored, err = tx.UpsertSubscription(ctx, a)
		if err != nil {
			return err
		}
		if err = tx.SetUserSubscriptionStatus(ctx, a.UserID, a.Status.Flag()); err != nil {
			return err
		}
		return tx.SetUserTrial(ctx, a.UserID, a.TrialStart, a.TrialEnd, a.GrantTrial)
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	s.afterCommit(ctx, user, stored, source, models.NotificationActivated)
	return stored, nil
}

// lockCurrent блокирует строку подписки пользователя. nil без ошибки, если строки нет.
func lockCurrent(ctx context.Context, tx repository.Tx, userID int64) (*models.Subscription, error) {
	sub, err := tx.LockSubscriptionByUser(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	return sub, err
}

// afterCommit сбрасывает кэш и публикует уведомление. Ошибки не отменяют переход.
func (s *Service) afterCommit(ctx context.Context, user *models.User, sub *models.Subscription, source, kind string) {
	recordTransition(source, sub.Status())

	if s.cache != nil {
		if err := s.cache.Invalidate(ctx, cacheKey(sub.UserID)); err != nil {
			s.log.Warn("failed to invalidate cache", slog.Int64("user_id", sub.UserID), sl.Err(err))
		}
	}
	if s.notifier == nil || user == nil {
		return
	}
	n := models.BillingNotification{
		Kind:      kind,
		UserID:    sub.UserID,
		Email:     user.Email,
		FullName:  user.FullName,
		Status:    sub.Status(),
		Type:      sub.Type,
		PeriodEnd: sub.SubscriptionEnd,
		Comment:   sub.Comments,
		At:        s.now(),
	}
	if err := s.notifier.Publish(ctx, n); err != nil {
		s.log.Warn("failed to publish notification", slog.Int64("user_id", sub.UserID), sl.Err(err))
	}
}
