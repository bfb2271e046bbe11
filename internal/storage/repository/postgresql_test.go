package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/kitab-billing/internal/models"
)

func activation(userID int64, externalID string, status models.Status) *models.Activation {
	now := time.Now().UTC().Truncate(time.Second)
	return &models.Activation{
		UserID:            userID,
		SubscriptionID:    externalID,
		Customer:          "cus_1",
		PlanID:            "price_1",
		PlanAmount:        4.99,
		Currency:          "usd",
		Interval:          "month",
		SubscriptionStart: now,
		SubscriptionEnd:   now.AddDate(0, 1, 0),
		Status:            status,
		Type:              models.TypeStripe,
		Comments:          "Subscription created",
	}
}

func TestStorage_EnsureCustomer(t *testing.T) {
	storage, cleanup := setupTestDatabase(t)
	defer cleanup()
	ctx := context.Background()
	factory := NewTestDataFactory(storage)

	userID := factory.CreateUser(t, "reader@kitab.so", nil)

	sub, err := storage.EnsureCustomer(ctx, userID, "cus_first")
	require.NoError(t, err)
	assert.Equal(t, "cus_first", sub.Customer)
	assert.Nil(t, sub.PaymentStatus)

	sub, err = storage.EnsureCustomer(ctx, userID, "cus_second")
	require.NoError(t, err)
	assert.Equal(t, "cus_first", sub.Customer, "existing customer must be kept")
	assert.Equal(t, 1, factory.CountSubscriptions(t, userID))
}

func TestStorage_GetSubscriptionByUser_NotFound(t *testing.T) {
	storage, cleanup := setupTestDatabase(t)
	defer cleanup()

	_, err := storage.GetSubscriptionByUser(context.Background(), 404)
	assert.True(t, errors.Is(err, ErrNotFound))

	_, err = storage.GetUser(context.Background(), 404)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestStorage_UpsertSubscription(t *testing.T) {
	storage, cleanup := setupTestDatabase(t)
	defer cleanup()
	ctx := context.Background()
	factory := NewTestDataFactory(storage)

	userID := factory.CreateUser(t, "listener@kitab.so", nil)
	_, err := storage.EnsureCustomer(ctx, userID, "cus_1")
	require.NoError(t, err)

	err = storage.WithTx(ctx, func(tx Tx) error {
		sub, err := tx.UpsertSubscription(ctx, activation(userID, "sub_1", models.StatusTrialing))
		if err != nil {
			return err
		}
		assert.Equal(t, models.StatusTrialing, sub.Status())
		return tx.SetUserSubscriptionStatus(ctx, userID, 1)
	})
	require.NoError(t, err)

	sub, err := storage.GetSubscriptionByUser(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, "sub_1", sub.ExternalID())
	assert.Equal(t, "cus_1", sub.Customer)
	assert.InDelta(t, 4.99, sub.PlanAmount, 0.001)
	assert.Equal(t, 1, factory.UserFlag(t, userID))

	// повторная подписка после отмены обновляет ту же строку
	now := time.Now()
	err = storage.WithTx(ctx, func(tx Tx) error {
		return tx.UpdateSubscriptionStatus(ctx, sub.ID, StatusUpdate{
			Status: models.StatusCancelled, Comments: "bye", CancelledAt: &now,
		})
	})
	require.NoError(t, err)

	err = storage.WithTx(ctx, func(tx Tx) error {
		_, err := tx.UpsertSubscription(ctx, activation(userID, "sub_2", models.StatusActive))
		return err
	})
	require.NoError(t, err)

	sub, err = storage.GetSubscriptionByUser(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, "sub_2", sub.ExternalID())
	assert.Nil(t, sub.CancelledAt)
	assert.Equal(t, 1, factory.CountSubscriptions(t, userID))
}

func TestStorage_WithTx_Rollback(t *testing.T) {
	storage, cleanup := setupTestDatabase(t)
	defer cleanup()
	ctx := context.Background()
	factory := NewTestDataFactory(storage)

	userID := factory.CreateUser(t, "rollback@kitab.so", nil)
	errBoom := errors.New("boom")

	err := storage.WithTx(ctx, func(tx Tx) error {
		if err := tx.SetUserSubscriptionStatus(ctx, userID, 1); err != nil {
			return err
		}
		return errBoom
	})
	require.ErrorIs(t, err, errBoom)
	assert.Equal(t, 0, factory.UserFlag(t, userID))
}

func TestStorage_LockSubscriptionByExternalID(t *testing.T) {
	storage, cleanup := setupTestDatabase(t)
	defer cleanup()
	ctx := context.Background()
	factory := NewTestDataFactory(storage)

	userID := factory.CreateUser(t, "lock@kitab.so", nil)
	require.NoError(t, storage.WithTx(ctx, func(tx Tx) error {
		_, err := tx.UpsertSubscription(ctx, activation(userID, "sub_lock", models.StatusActive))
		return err
	}))

	err := storage.WithTx(ctx, func(tx Tx) error {
		sub, err := tx.LockSubscriptionByExternalID(ctx, "sub_lock")
		require.NoError(t, err)
		assert.Equal(t, userID, sub.UserID)

		_, err = tx.LockSubscriptionByExternalID(ctx, "sub_missing")
		assert.ErrorIs(t, err, ErrNotFound)
		return nil
	})
	require.NoError(t, err)
}

func TestStorage_RecordWebhookEvent(t *testing.T) {
	storage, cleanup := setupTestDatabase(t)
	defer cleanup()
	ctx := context.Background()

	ev := &models.ProviderEvent{ID: "evt_1", Type: models.EventPaymentFailed, SubscriptionID: "sub_1"}

	var first, second bool
	require.NoError(t, storage.WithTx(ctx, func(tx Tx) error {
		var err error
		first, err = tx.RecordWebhookEvent(ctx, "stripe", ev)
		return err
	}))
	require.NoError(t, storage.WithTx(ctx, func(tx Tx) error {
		var err error
		second, err = tx.RecordWebhookEvent(ctx, "stripe", ev)
		return err
	}))

	assert.True(t, first)
	assert.False(t, second)
}

func TestStorage_Trial(t *testing.T) {
	storage, cleanup := setupTestDatabase(t)
	defer cleanup()
	ctx := context.Background()
	factory := NewTestDataFactory(storage)

	userID := factory.CreateUser(t, "trial@kitab.so", nil)
	start := time.Now().UTC().Truncate(time.Second)
	end := start.Add(24 * time.Hour)

	require.NoError(t, storage.WithTx(ctx, func(tx Tx) error {
		return tx.SetUserTrial(ctx, userID, &start, &end, true)
	}))

	u, err := storage.GetUser(ctx, userID)
	require.NoError(t, err)
	require.NotNil(t, u.TrialStatus)
	assert.Equal(t, models.TrialActive, *u.TrialStatus)
	assert.False(t, u.TrialEligible())
	assert.WithinDuration(t, end, *u.TrialEnd, time.Second)

	require.NoError(t, storage.CancelTrial(ctx, userID))
	u, err = storage.GetUser(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, models.TrialCancelled, *u.TrialStatus)

	assert.ErrorIs(t, storage.CancelTrial(ctx, 9999), ErrNotFound)
}
