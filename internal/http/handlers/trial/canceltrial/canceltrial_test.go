package canceltrial

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/magabrotheeeer/kitab-billing/internal/http/middlewarectx"
	"github.com/magabrotheeeer/kitab-billing/internal/services/billing"
)

type MockService struct {
	mock.Mock
}

func (m *MockService) CancelTrial(ctx context.Context, userID int64) error {
	return m.Called(ctx, userID).Error(0)
}

func TestCancelTrialHandler(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	t.Run("успешно", func(t *testing.T) {
		svc := new(MockService)
		svc.On("CancelTrial", mock.Anything, int64(2)).Return(nil)

		req := httptest.NewRequest(http.MethodPost, "/api/cancel-trial", nil)
		req = req.WithContext(middlewarectx.WithUserID(req.Context(), 2))
		w := httptest.NewRecorder()
		New(logger, svc).ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"message":"Trial cancelled"}`, w.Body.String())
	})

	t.Run("пользователь не найден", func(t *testing.T) {
		svc := new(MockService)
		svc.On("CancelTrial", mock.Anything, int64(2)).Return(billing.ErrNotFound)

		req := httptest.NewRequest(http.MethodPost, "/api/cancel-trial", nil)
		req = req.WithContext(middlewarectx.WithUserID(req.Context(), 2))
		w := httptest.NewRecorder()
		New(logger, svc).ServeHTTP(w, req)

		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}
