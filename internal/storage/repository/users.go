package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/magabrotheeeer/kitab-billing/internal/models"
)

func getUser(ctx context.Context, q querier, id int64, lock bool) (*models.User, error) {
	query := `SELECT id, email, full_name, subscription_status, trial_status, trial_start, trial_end
			  FROM users
			  WHERE id = $1`
	if lock {
		query += ` FOR UPDATE`
	}
	u := &models.User{}
	var (
		trialStatus          sql.NullString
		trialStart, trialEnd sql.NullTime
	)
	if err := q.QueryRowContext(ctx, query, id).Scan(&u.ID, &u.Email, &u.FullName,
		&u.SubscriptionStatus, &trialStatus, &trialStart, &trialEnd); err != nil {
		return nil, notFound(err)
	}
	if trialStatus.Valid {
		u.TrialStatus = &trialStatus.String
	}
	u.TrialStart = nullTime(trialStart)
	u.TrialEnd = nullTime(trialEnd)
	return u, nil
}

// GetUser возвращает пользователя по его ID.
func (s *Storage) GetUser(ctx context.Context, userID int64) (*models.User, error) {
	const op = "storage.GetUser"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	u, err := getUser(ctx, s.DB, userID, false)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return u, nil
}

// CancelTrial отмечает пробный период пользователя отменённым. Повторно он не выдаётся.
func (s *Storage) CancelTrial(ctx context.Context, userID int64) error {
	const op = "storage.CancelTrial"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `UPDATE users
			  SET trial_status = 'cancelled', updated_at = NOW()
			  WHERE id = $1`
	res, err := s.DB.ExecContext(ctx, query, userID)
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

// GetUserForUpdate блокирует запись пользователя до конца транзакции.
func (t *txStore) GetUserForUpdate(ctx context.Context, userID int64) (*models.User, error) {
	const op = "storage.GetUserForUpdate"
	u, err := getUser(ctx, t.q, userID, true)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return u, nil
}

// SetUserSubscriptionStatus записывает флаг доступа пользователя.
func (t *txStore) SetUserSubscriptionStatus(ctx context.Context, userID int64, flag int) error {
	const op = "storage.SetUserSubscriptionStatus"

	query := `UPDATE users
			  SET subscription_status = $2, updated_at = NOW()
			  WHERE id = $1`
	res, err := t.q.ExecContext(ctx, query, userID, flag)
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

// SetUserTrial записывает окно пробного периода. При grant пробный период
// помечается выданным, после чего пользователь больше не может его получить.
func (t *txStore) SetUserTrial(ctx context.Context, userID int64, start, end *time.Time, grant bool) error {
	const op = "storage.SetUserTrial"

	query := `UPDATE users
			  SET trial_start = $2,
			      trial_end = $3,
			      trial_status = CASE WHEN $4 THEN 'active' ELSE trial_status END,
			      updated_at = NOW()
			  WHERE id = $1`
	if _, err := t.q.ExecContext(ctx, query, userID, start, end, grant); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
