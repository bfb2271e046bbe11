// Package waafipay реализует прямую оплату через WaafiPay:
// предавторизация средств кошелька и её подтверждение.
package waafipay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/magabrotheeeer/kitab-billing/internal/lib/metrics"
	"github.com/magabrotheeeer/kitab-billing/internal/models"
)

const providerName = "waafipay"

// ErrDeclined провайдер ответил кодом, отличным от 2001.
var ErrDeclined = errors.New("payment declined")

// Config параметры клиента WaafiPay.
type Config struct {
	URL         string
	MerchantUID string
	APIUserID   string
	APIKey      string
	Timeout     time.Duration
}

// Client клиент WaafiPay. Запросы идут через предохранитель: при серии
// сетевых ошибок вызовы отклоняются сразу, без обращения к провайдеру.
type Client struct {
	cfg        Config
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker[*response]
	log        *slog.Logger
}

// NewClient создаёт клиента WaafiPay.
func NewClient(cfg Config, log *slog.Logger) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}
	c := &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		log:        log,
	}
	c.breaker = gobreaker.NewCircuitBreaker[*response](gobreaker.Settings{
		Name:        providerName,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("circuit breaker state changed",
				slog.String("name", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()))
		},
	})
	return c
}

func (c *Client) newRequest(ctx context.Context, body *request) (*http.Request, error) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL, &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

func (c *Client) envelope(service string, params serviceParams) *request {
	params.MerchantUID = c.cfg.MerchantUID
	params.APIUserID = c.cfg.APIUserID
	params.APIKey = c.cfg.APIKey
	params.PaymentMethod = paymentMethodWallet
	return &request{
		SchemaVersion: schemaVersion,
		RequestID:     uuid.NewString(),
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		ChannelName:   channelName,
		ServiceName:   service,
		ServiceParams: params,
	}
}

func (c *Client) call(ctx context.Context, body *request) (*response, error) {
	return c.breaker.Execute(func() (*response, error) {
		req, err := c.newRequest(ctx, body)
		if err != nil {
			return nil, err
		}
		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, err
		}
		defer func() {
			_ = resp.Body.Close()
		}()

		if resp.StatusCode != http.StatusOK {
			return nil, errors.New("unexpected status: " + resp.Status)
		}

		var out response
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return nil, err
		}
		return &out, nil
	})
}

// Preauthorize блокирует сумму на кошельке плательщика и возвращает идентификатор транзакции.
func (c *Client) Preauthorize(ctx context.Context, accountNo, referenceID string, amount float64, currency, description string) (string, error) {
	const op = "waafipay.Preauthorize"

	body := c.envelope(serviceAuthorize, serviceParams{
		PayerInfo: &payerInfo{AccountNo: accountNo},
		TransactionInfo: &transactionInfo{
			ReferenceID: referenceID,
			InvoiceID:   "INV-" + referenceID,
			Amount:      strconv.FormatFloat(amount, 'f', -1, 64),
			Currency:    currency,
			Description: description,
		},
	})
	resp, err := c.call(ctx, body)
	if err == nil && resp.ResponseCode != codeApproved {
		err = fmt.Errorf("%w: %s %s", ErrDeclined, resp.ResponseCode, resp.ResponseMsg)
	}
	metrics.ObserveProviderCall(providerName, "preauthorize", err)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	if resp.Params.TransactionID == "" {
		return "", fmt.Errorf("%s: missing transactionId", op)
	}
	return resp.Params.TransactionID, nil
}

// Commit подтверждает ранее выполненную предавторизацию.
func (c *Client) Commit(ctx context.Context, transactionID, referenceID string) error {
	const op = "waafipay.Commit"

	body := c.envelope(serviceCommit, serviceParams{
		TransactionID: transactionID,
		Description:   commitDescription,
		ReferenceID:   referenceID,
	})
	resp, err := c.call(ctx, body)
	if err == nil && resp.ResponseCode != codeApproved {
		err = fmt.Errorf("%w: %s %s", ErrDeclined, resp.ResponseCode, resp.ResponseMsg)
	}
	metrics.ObserveProviderCall(providerName, "commit", err)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// Charge выполняет предавторизацию и подтверждение одной операцией.
func (c *Client) Charge(ctx context.Context, accountNo string, amount float64, currency, description string) (*models.DirectPayment, error) {
	const op = "waafipay.Charge"

	referenceID := uuid.NewString()
	transactionID, err := c.Preauthorize(ctx, accountNo, referenceID, amount, currency, description)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err := c.Commit(ctx, transactionID, referenceID); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &models.DirectPayment{
		TransactionID: transactionID,
		ReferenceID:   referenceID,
		Amount:        amount,
		Currency:      currency,
	}, nil
}
