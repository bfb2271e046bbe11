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

const directDescription = "Kitab subscription"

// PayDirect оплачивает подписку кошельком WaafiPay: предавторизация,
// подтверждение и запись подписки на фиксированный срок.
func (s *Service) PayDirect(ctx context.Context, userID int64, accountNo string) (*models.Subscription, error) {
	const op = "billing.PayDirect"
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
	switch {
	case err == nil:
		if sub.Live() {
			return nil, fmt.Errorf("%s: %w", op, ErrAlreadySubscribed)
		}
	case !errors.Is(err, repository.ErrNotFound):
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	payment, err := s.direct.Charge(ctx, accountNo, s.plan.DirectAmount, s.plan.DirectCurrency, directDescription)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %w", op, ErrProvider, err)
	}

	now := s.now()
	end := now.AddDate(0, 0, s.plan.DirectDays)
	a := &models.Activation{
		UserID:            userID,
		SubscriptionID:    payment.TransactionID,
		PlanAmount:        payment.Amount,
		Currency:          payment.Currency,
		SubscriptionStart: now,
		SubscriptionEnd:   end,
		Status:            models.StatusActive,
		Type:              models.TypeWaafiPay,
		Comments:          "Ok",
		TrialStart:        &now,
		TrialEnd:          &end,
	}
	stored, err := s.activate(ctx, user, a, "direct_payment")
	if err != nil {
		// деньги списаны, но подписка не записана: нужен ручной разбор по transaction id
		log.Error("direct payment committed but not stored",
			slog.String("transaction_id", payment.TransactionID), sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	log.Info("direct payment subscription activated", slog.String("transaction_id", payment.TransactionID))
	return stored, nil
}
