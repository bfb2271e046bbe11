package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/magabrotheeeer/kitab-billing/internal/models"
)

const subscriptionColumns = `id, user_id, subscription_id, customer, plan_id, plan_amount, currency, interval,
	subscription_start, subscription_end, payment_status, type, comments, cancelled_at, last_event_at,
	created_at, updated_at`

// StatusUpdate изменение статуса подписки.
type StatusUpdate struct {
	Status      models.Status
	Comments    string
	CancelledAt *time.Time
	LastEventAt *time.Time
	PeriodStart *time.Time
	PeriodEnd   *time.Time
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSubscription(row rowScanner) (*models.Subscription, error) {
	var (
		sub                        models.Subscription
		externalID, paymentStatus  sql.NullString
		start, end, cancelled, evt sql.NullTime
	)
	if err := row.Scan(&sub.ID, &sub.UserID, &externalID, &sub.Customer, &sub.PlanID, &sub.PlanAmount,
		&sub.Currency, &sub.Interval, &start, &end, &paymentStatus, &sub.Type, &sub.Comments,
		&cancelled, &evt, &sub.CreatedAt, &sub.UpdatedAt); err != nil {
		return nil, err
	}
	if externalID.Valid {
		sub.SubscriptionID = &externalID.String
	}
	if paymentStatus.Valid {
		st := models.Status(paymentStatus.String)
		sub.PaymentStatus = &st
	}
	sub.SubscriptionStart = nullTime(start)
	sub.SubscriptionEnd = nullTime(end)
	sub.CancelledAt = nullTime(cancelled)
	sub.LastEventAt = nullTime(evt)
	return &sub, nil
}

func nullTime(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

func getSubscription(ctx context.Context, q querier, where string, arg any) (*models.Subscription, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE ` + where
	sub, err := scanSubscription(q.QueryRowContext(ctx, query, arg))
	if err != nil {
		return nil, notFound(err)
	}
	return sub, nil
}

// GetSubscriptionByUser возвращает подписку пользователя.
func (s *Storage) GetSubscriptionByUser(ctx context.Context, userID int64) (*models.Subscription, error) {
	const op = "storage.GetSubscriptionByUser"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	sub, err := getSubscription(ctx, s.DB, "user_id = $1", userID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return sub, nil
}

// EnsureCustomer закрепляет клиента провайдера за пользователем и возвращает строку подписки.
// Если у пользователя уже есть клиент, он не перезаписывается и возвращается в строке.
func (s *Storage) EnsureCustomer(ctx context.Context, userID int64, customer string) (*models.Subscription, error) {
	const op = "storage.EnsureCustomer"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `INSERT INTO subscriptions (user_id, customer, type)
			  VALUES ($1, $2, 'stripe')
			  ON CONFLICT (user_id) DO UPDATE
			      SET customer = EXCLUDED.customer, updated_at = NOW()
			      WHERE subscriptions.customer = ''
			  RETURNING ` + subscriptionColumns
	sub, err := scanSubscription(s.DB.QueryRowContext(ctx, query, userID, customer))
	if err == nil {
		return sub, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	// конфликт без обновления: клиент уже закреплён
	sub, err = getSubscription(ctx, s.DB, "user_id = $1", userID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return sub, nil
}

// LockSubscriptionByID блокирует строку подписки по её ID до конца транзакции.
func (t *txStore) LockSubscriptionByID(ctx context.Context, id int64) (*models.Subscription, error) {
	const op = "storage.LockSubscriptionByID"
	sub, err := getSubscription(ctx, t.q, "id = $1 FOR UPDATE", id)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return sub, nil
}

// LockSubscriptionByUser блокирует строку подписки пользователя.
func (t *txStore) LockSubscriptionByUser(ctx context.Context, userID int64) (*models.Subscription, error) {
	const op = "storage.LockSubscriptionByUser"
	sub, err := getSubscription(ctx, t.q, "user_id = $1 FOR UPDATE", userID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return sub, nil
}

// LockSubscriptionByExternalID блокирует строку подписки по идентификатору у провайдера.
func (t *txStore) LockSubscriptionByExternalID(ctx context.Context, externalID string) (*models.Subscription, error) {
	const op = "storage.LockSubscriptionByExternalID"
	sub, err := getSubscription(ctx, t.q, "subscription_id = $1 FOR UPDATE", externalID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return sub, nil
}

// UpsertSubscription записывает подтверждённую подписку. Строка пользователя
// обновляется на месте, отметка об отмене и время последнего события сбрасываются.
func (t *txStore) UpsertSubscription(ctx context.Context, a *models.Activation) (*models.Subscription, error) {
	const op = "storage.UpsertSubscription"

	query := `INSERT INTO subscriptions (user_id, subscription_id, customer, plan_id, plan_amount, currency,
			      interval, subscription_start, subscription_end, payment_status, type, comments)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
			  ON CONFLICT (user_id) DO UPDATE SET
			      subscription_id = EXCLUDED.subscription_id,
			      customer = CASE WHEN EXCLUDED.customer <> '' THEN EXCLUDED.customer ELSE subscriptions.customer END,
			      plan_id = EXCLUDED.plan_id,
			      plan_amount = EXCLUDED.plan_amount,
			      currency = EXCLUDED.currency,
			      interval = EXCLUDED.interval,
			      subscription_start = EXCLUDED.subscription_start,
			      subscription_end = EXCLUDED.subscription_end,
			      payment_status = EXCLUDED.payment_status,
			      type = EXCLUDED.type,
			      comments = EXCLUDED.comments,
			      cancelled_at = NULL,
			      last_event_at = NULL,
			      updated_at = NOW()
			  RETURNING ` + subscriptionColumns
	sub, err := scanSubscription(t.q.QueryRowContext(ctx, query,
		a.UserID, a.SubscriptionID, a.Customer, a.PlanID, a.PlanAmount, a.Currency, a.Interval,
		a.SubscriptionStart, a.SubscriptionEnd, string(a.Status), a.Type, a.Comments))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return sub, nil
}

// UpdateSubscriptionStatus меняет статус подписки. Пустые поля периода и отметок не трогаются.
func (t *txStore) UpdateSubscriptionStatus(ctx context.Context, id int64, u StatusUpdate) error {
	const op = "storage.UpdateSubscriptionStatus"

	query := `UPDATE subscriptions
			  SET payment_status = $2,
			      comments = $3,
			      cancelled_at = COALESCE($4, cancelled_at),
			      last_event_at = COALESCE($5, last_event_at),
			      subscription_start = COALESCE($6, subscription_start),
			      subscription_end = COALESCE($7, subscription_end),
			      updated_at = NOW()
			  WHERE id = $1`
	res, err := t.q.ExecContext(ctx, query, id, string(u.Status), u.Comments,
		u.CancelledAt, u.LastEventAt, u.PeriodStart, u.PeriodEnd)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	return nil
}
