package billing

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/magabrotheeeer/kitab-billing/internal/cache"
	"github.com/magabrotheeeer/kitab-billing/internal/lib/metrics"
	"github.com/magabrotheeeer/kitab-billing/internal/lib/sl"
	"github.com/magabrotheeeer/kitab-billing/internal/models"
)

func cacheKey(userID int64) string {
	return cache.SubscriptionKey(userID)
}

func recordTransition(source string, status models.Status) {
	metrics.Transitions.WithLabelValues(source, string(status)).Inc()
}

// Current возвращает подписку пользователя. Доступ вычисляется из статуса при чтении.
func (s *Service) Current(ctx context.Context, userID int64) (*models.SubscriptionView, error) {
	const op = "billing.Current"

	key := cacheKey(userID)
	if s.cache != nil {
		var cached models.SubscriptionView
		found, err := s.cache.Get(ctx, key, &cached)
		if err != nil {
			s.log.Warn("cache read failed", slog.String("key", key), sl.Err(err))
		}
		if found {
			return &cached, nil
		}
	}

	sub, err := s.repo.GetSubscriptionByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, mapNotFound(err))
	}
	view := sub.View()

	if s.cache != nil {
		if err := s.cache.Set(ctx, key, view, cache.SubscriptionTTL); err != nil {
			s.log.Warn("failed to cache subscription", slog.String("key", key), sl.Err(err))
		}
	}
	return view, nil
}

// CancelTrial отменяет пробный период пользователя.
func (s *Service) CancelTrial(ctx context.Context, userID int64) error {
	const op = "billing.CancelTrial"

	if err := s.repo.CancelTrial(ctx, userID); err != nil {
		return fmt.Errorf("%s: %w", op, mapNotFound(err))
	}
	s.log.Info("trial cancelled", slog.Int64("user_id", userID))
	return nil
}
