package repository

import (
	"context"
	"fmt"

	"github.com/magabrotheeeer/kitab-billing/internal/models"
)

// RecordWebhookEvent записывает событие в журнал. Возвращает false, если событие уже было.
func (t *txStore) RecordWebhookEvent(ctx context.Context, provider string, ev *models.ProviderEvent) (bool, error) {
	const op = "storage.RecordWebhookEvent"

	query := `INSERT INTO webhook_events (provider, event_id, event_type, subscription_id)
			  VALUES ($1, $2, $3, $4)
			  ON CONFLICT (provider, event_id) DO NOTHING`
	res, err := t.q.ExecContext(ctx, query, provider, ev.ID, ev.Type, ev.SubscriptionID)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return n == 1, nil
}
