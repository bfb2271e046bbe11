package cancelsubscription

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/magabrotheeeer/kitab-billing/internal/http/middlewarectx"
	"github.com/magabrotheeeer/kitab-billing/internal/services/billing"
)

type MockService struct {
	mock.Mock
}

func (m *MockService) Cancel(ctx context.Context, userID, subscriptionID int64, reason string) (time.Time, error) {
	args := m.Called(ctx, userID, subscriptionID, reason)
	return args.Get(0).(time.Time), args.Error(1)
}

func TestCancelSubscriptionHandler(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cancelledAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name           string
		body           string
		setupMock      func(*MockService)
		expectedStatus int
		expectedBody   string
	}{
		{
			name: "успешная отмена",
			body: `{"subscription_id":12,"reason":"moving"}`,
			setupMock: func(m *MockService) {
				m.On("Cancel", mock.Anything, int64(3), int64(12), "moving").Return(cancelledAt, nil)
			},
			expectedStatus: http.StatusOK,
			expectedBody:   `{"success":true,"message":"Subscription cancelled successfully","cancelled_at":"2026-03-01T12:00:00Z"}`,
		},
		{
			name: "чужая подписка",
			body: `{"subscription_id":99}`,
			setupMock: func(m *MockService) {
				m.On("Cancel", mock.Anything, int64(3), int64(99), "").
					Return(time.Time{}, fmt.Errorf("billing.Cancel: %w", billing.ErrNotFound))
			},
			expectedStatus: http.StatusNotFound,
			expectedBody:   `{"status":"Error","error":"subscription not found"}`,
		},
		{
			name: "ошибка провайдера",
			body: `{"subscription_id":12}`,
			setupMock: func(m *MockService) {
				m.On("Cancel", mock.Anything, int64(3), int64(12), "").
					Return(time.Time{}, fmt.Errorf("billing.Cancel: %w: %w", billing.ErrProvider, errors.New("stripe 500")))
			},
			expectedStatus: http.StatusBadGateway,
			expectedBody:   `{"status":"Error","error":"payment provider error"}`,
		},
		{
			name:           "нет subscription_id",
			body:           `{"reason":"x"}`,
			setupMock:      func(_ *MockService) {},
			expectedStatus: http.StatusUnprocessableEntity,
			expectedBody:   `{"status":"Error","error":"field SubscriptionID is a required field"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(MockService)
			tt.setupMock(svc)

			req := httptest.NewRequest(http.MethodPost, "/api/cancel-subscription", strings.NewReader(tt.body))
			req = req.WithContext(middlewarectx.WithUserID(req.Context(), 3))
			w := httptest.NewRecorder()

			New(logger, svc).ServeHTTP(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)
			assert.JSONEq(t, tt.expectedBody, w.Body.String())
			svc.AssertExpectations(t)
		})
	}
}
