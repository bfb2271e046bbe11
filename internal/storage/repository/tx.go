package repository

import (
	"context"
	"time"

	"github.com/magabrotheeeer/kitab-billing/internal/models"
)

// Tx операции, доступные внутри транзакции Storage.WithTx.
// Чтения с блокировкой держат строку до коммита.
type Tx interface {
	LockSubscriptionByID(ctx context.Context, id int64) (*models.Subscription, error)
	LockSubscriptionByUser(ctx context.Context, userID int64) (*models.Subscription, error)
	LockSubscriptionByExternalID(ctx context.Context, externalID string) (*models.Subscription, error)
	UpsertSubscription(ctx context.Context, a *models.Activation) (*models.Subscription, error)
	UpdateSubscriptionStatus(ctx context.Context, id int64, u StatusUpdate) error
	GetUserForUpdate(ctx context.Context, userID int64) (*models.User, error)
	SetUserSubscriptionStatus(ctx context.Context, userID int64, flag int) error
	SetUserTrial(ctx context.Context, userID int64, start, end *time.Time, grant bool) error
	RecordWebhookEvent(ctx context.Context, provider string, ev *models.ProviderEvent) (bool, error)
}

type txStore struct {
	q querier
}

var _ Tx = (*txStore)(nil)
