package createsubscription

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/magabrotheeeer/kitab-billing/internal/http/middlewarectx"
	"github.com/magabrotheeeer/kitab-billing/internal/models"
	"github.com/magabrotheeeer/kitab-billing/internal/services/billing"
)

type MockService struct {
	mock.Mock
}

func (m *MockService) CreateSubscription(ctx context.Context, userID int64, intentID, customerID string) (*billing.CreateResult, error) {
	args := m.Called(ctx, userID, intentID, customerID)
	if res := args.Get(0); res != nil {
		return res.(*billing.CreateResult), args.Error(1)
	}
	return nil, args.Error(1)
}

func TestCreateSubscriptionHandler(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	validBody := `{"intent":"seti_1","customer":"cus_1"}`

	tests := []struct {
		name           string
		body           string
		setupMock      func(*MockService)
		expectedStatus int
		expectedBody   string
	}{
		{
			name: "пробный период",
			body: validBody,
			setupMock: func(m *MockService) {
				m.On("CreateSubscription", mock.Anything, int64(5), "seti_1", "cus_1").
					Return(&billing.CreateResult{
						Status:         models.StatusTrialing,
						ProviderStatus: "trialing",
						Message:        "Subscription in 1-day trial",
					}, nil)
			},
			expectedStatus: http.StatusOK,
			expectedBody:   `{"success":true,"status":"trialing","message":"Subscription in 1-day trial"}`,
		},
		{
			name: "активная подписка",
			body: validBody,
			setupMock: func(m *MockService) {
				m.On("CreateSubscription", mock.Anything, int64(5), "seti_1", "cus_1").
					Return(&billing.CreateResult{
						Status:         models.StatusActive,
						ProviderStatus: "active",
						Message:        "Subscription created",
					}, nil)
			},
			expectedStatus: http.StatusOK,
			expectedBody:   `{"success":true,"status":"active","message":"Subscription created"}`,
		},
		{
			name: "оплата уже идёт",
			body: validBody,
			setupMock: func(m *MockService) {
				m.On("CreateSubscription", mock.Anything, int64(5), "seti_1", "cus_1").
					Return(nil, fmt.Errorf("op: %w", billing.ErrInProgress))
			},
			expectedStatus: http.StatusConflict,
			expectedBody:   `{"status":"Error","error":"subscription operation already in progress"}`,
		},
		{
			name: "подписка не активирована",
			body: validBody,
			setupMock: func(m *MockService) {
				m.On("CreateSubscription", mock.Anything, int64(5), "seti_1", "cus_1").
					Return(nil, fmt.Errorf("op: %w", billing.ErrActivationIncomplete))
			},
			expectedStatus: http.StatusBadRequest,
			expectedBody:   `{"success":false,"message":"subscription could not be activated"}`,
		},
		{
			name: "уже подписан",
			body: validBody,
			setupMock: func(m *MockService) {
				m.On("CreateSubscription", mock.Anything, int64(5), "seti_1", "cus_1").
					Return(nil, billing.ErrAlreadySubscribed)
			},
			expectedStatus: http.StatusConflict,
			expectedBody:   `{"status":"Error","error":"user already has an active subscription"}`,
		},
		{
			name:           "некорректный JSON",
			body:           `{"intent":`,
			setupMock:      func(_ *MockService) {},
			expectedStatus: http.StatusBadRequest,
			expectedBody:   `{"status":"Error","error":"invalid request body"}`,
		},
		{
			name:           "ошибка валидации",
			body:           `{"intent":"pi_1","customer":""}`,
			setupMock:      func(_ *MockService) {},
			expectedStatus: http.StatusUnprocessableEntity,
			expectedBody:   `{"status":"Error","error":"field Intent has an invalid prefix, field Customer is a required field"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(MockService)
			tt.setupMock(svc)

			req := httptest.NewRequest(http.MethodPost, "/api/create-subscription", strings.NewReader(tt.body))
			req = req.WithContext(middlewarectx.WithUserID(req.Context(), 5))
			w := httptest.NewRecorder()

			New(logger, svc).ServeHTTP(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)
			assert.JSONEq(t, tt.expectedBody, w.Body.String())
			svc.AssertExpectations(t)
		})
	}
}
