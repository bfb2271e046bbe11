package directpayment

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

func (m *MockService) PayDirect(ctx context.Context, userID int64, accountNo string) (*models.Subscription, error) {
	args := m.Called(ctx, userID, accountNo)
	if res := args.Get(0); res != nil {
		return res.(*models.Subscription), args.Error(1)
	}
	return nil, args.Error(1)
}

func TestDirectPaymentHandler(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	txID := "tx_1"

	tests := []struct {
		name           string
		body           string
		setupMock      func(*MockService)
		expectedStatus int
		expectedBody   string
	}{
		{
			name: "успешная оплата",
			body: `{"account_no":"252615000000"}`,
			setupMock: func(m *MockService) {
				m.On("PayDirect", mock.Anything, int64(4), "252615000000").
					Return(&models.Subscription{SubscriptionID: &txID}, nil)
			},
			expectedStatus: http.StatusOK,
			expectedBody:   `{"status":true,"message":"Payment successful, subscription active"}`,
		},
		{
			name: "платёж отклонён",
			body: `{"account_no":"252615000000"}`,
			setupMock: func(m *MockService) {
				m.On("PayDirect", mock.Anything, int64(4), "252615000000").
					Return(nil, fmt.Errorf("billing.PayDirect: %w", billing.ErrProvider))
			},
			expectedStatus: http.StatusBadGateway,
			expectedBody:   `{"status":"Error","error":"payment provider error"}`,
		},
		{
			name:           "номер не из цифр",
			body:           `{"account_no":"25261abc0000"}`,
			setupMock:      func(_ *MockService) {},
			expectedStatus: http.StatusUnprocessableEntity,
			expectedBody:   `{"status":"Error","error":"field AccountNo can contain only numbers"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(MockService)
			tt.setupMock(svc)

			req := httptest.NewRequest(http.MethodPost, "/api/payment", strings.NewReader(tt.body))
			req = req.WithContext(middlewarectx.WithUserID(req.Context(), 4))
			w := httptest.NewRecorder()

			New(logger, svc).ServeHTTP(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)
			assert.JSONEq(t, tt.expectedBody, w.Body.String())
			svc.AssertExpectations(t)
		})
	}
}
