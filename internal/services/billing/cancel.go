package billing

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/magabrotheeeer/kitab-billing/internal/lib/sl"
	"github.com/magabrotheeeer/kitab-billing/internal/models"
	"github.com/magabrotheeeer/kitab-billing/internal/storage/repository"
)

const defaultCancelComment = "User requested cancellation"

// Cancel отменяет подписку пользователя. Подписка у провайдера отменяется первой,
// локальный статус меняется только после её подтверждения.
func (s *Service) Cancel(ctx context.Context, userID, subscriptionID int64, reason string) (time.Time, error) {
	const op = "billing.Cancel"
	log := s.log.With(slog.String("op", op), slog.Int64("user_id", userID), slog.Int64("subscription_id", subscriptionID))

	sub, err := s.repo.GetSubscriptionByUser(ctx, userID)
	if err != nil {
		return time.Time{}, fmt.Errorf("%s: %w", op, mapNotFound(err))
	}
	if sub.ID != subscriptionID {
		return time.Time{}, fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	if sub.CancelledAt != nil {
		return *sub.CancelledAt, nil
	}

	if sub.Type == models.TypeStripe && sub.ExternalID() != "" {
		if err := s.provider.CancelSubscription(ctx, sub.ExternalID(), reason); err != nil {
			log.Error("provider cancellation failed", slog.String("external_id", sub.ExternalID()), sl.Err(err))
			return time.Time{}, fmt.Errorf("%s: %w: %w", op, ErrProvider, err)
		}
	}

	comment := reason
	if comment == "" {
		comment = defaultCancelComment
	}
	cancelledAt := s.now()
	var updated *models.Subscription
	err = s.repo.WithTx(ctx, func(tx repository.Tx) error {
		locked, err := tx.LockSubscriptionByID(ctx, subscriptionID)
		if err != nil {
			return mapNotFound(err)
		}
		if locked.UserID != userID {
			return ErrNotFound
		}
		if locked.CancelledAt != nil {
			// вебхук об удалении успел раньше
			cancelledAt = *locked.CancelledAt
		} else {
			if err := tx.UpdateSubscriptionStatus(ctx, locked.ID, repository.StatusUpdate{
				Status:      models.StatusCancelled,
				Comments:    comment,
				CancelledAt: &cancelledAt,
			}); err != nil {
				return err
			}
		}
		if err := tx.SetUserSubscriptionStatus(ctx, userID, models.StatusCancelled.Flag()); err != nil {
			return err
		}
		cancelled := models.StatusCancelled
		locked.PaymentStatus = &cancelled
		locked.CancelledAt = &cancelledAt
		locked.Comments = comment
		updated = locked
		return nil
	})
	if err != nil {
		return time.Time{}, fmt.Errorf("%s: %w", op, err)
	}

	user, err := s.repo.GetUser(ctx, userID)
	if err != nil {
		log.Warn("user not loaded for notification", sl.Err(err))
	}
	s.afterCommit(ctx, user, updated, "cancel", models.NotificationCancelled)
	log.Info("subscription cancelled")

	return cancelledAt, nil
}
