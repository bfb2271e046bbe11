package repository

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/magabrotheeeer/kitab-billing/internal/migrations"
)

// setupTestDatabase поднимает PostgreSQL в контейнере и применяет миграции.
func setupTestDatabase(t *testing.T) (*Storage, func()) {
	t.Helper()
	if testing.Short() {
		t.Skip("integration test")
	}
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:15-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err, "failed to start container")

	dsn, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	storage, err := New(dsn)
	require.NoError(t, err)

	migrationsPath, err := filepath.Abs("../../../migrations")
	require.NoError(t, err)
	require.NoError(t, migrations.Run(storage.DB, migrationsPath))

	cleanup := func() {
		_ = storage.Close()
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %s", err)
		}
	}
	return storage, cleanup
}

// TestDataFactory содержит методы для создания тестовых данных
type TestDataFactory struct {
	storage *Storage
}

// NewTestDataFactory создает новую фабрику тестовых данных
func NewTestDataFactory(storage *Storage) *TestDataFactory {
	return &TestDataFactory{storage: storage}
}

// CreateUser создает тестового пользователя и возвращает его ID
func (f *TestDataFactory) CreateUser(t *testing.T, email string, trialStatus *string) int64 {
	var id int64
	err := f.storage.DB.QueryRow(`INSERT INTO users (email, full_name, trial_status)
		VALUES ($1, $2, $3) RETURNING id`, email, "Test Reader", trialStatus).Scan(&id)
	require.NoError(t, err)
	return id
}

// UserFlag возвращает users.subscription_status
func (f *TestDataFactory) UserFlag(t *testing.T, userID int64) int {
	var flag int
	err := f.storage.DB.QueryRow(`SELECT subscription_status FROM users WHERE id = $1`, userID).Scan(&flag)
	require.NoError(t, err)
	return flag
}

// CountSubscriptions возвращает число строк подписок пользователя
func (f *TestDataFactory) CountSubscriptions(t *testing.T, userID int64) int {
	var n int
	err := f.storage.DB.QueryRow(`SELECT COUNT(*) FROM subscriptions WHERE user_id = $1`, userID).Scan(&n)
	require.NoError(t, err)
	return n
}
