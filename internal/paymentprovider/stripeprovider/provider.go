// Package stripeprovider реализует клиента Stripe для биллинга: клиенты,
// SetupIntent, подписки и проверку подписанных событий вебхуков.
package stripeprovider

import (
	"context"
	"errors"
	"fmt"
	"time"

	stripe "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"

	"github.com/magabrotheeeer/kitab-billing/internal/lib/metrics"
	"github.com/magabrotheeeer/kitab-billing/internal/models"
)

const providerName = "stripe"

// Параметры создания подписки.
const (
	paymentBehavior          = "default_incomplete"
	saveDefaultPaymentMethod = "on_subscription"
	defaultCancelReason      = "User requested cancellation"
	cancelFeedback           = "other"
)

// ErrNoPaymentMethod SetupIntent ещё не содержит платёжного метода.
var ErrNoPaymentMethod = errors.New("setup intent has no payment method")

// Config параметры клиента Stripe.
type Config struct {
	SecretKey     string
	WebhookSecret string
	PriceID       string
	// BaseURL переопределяет адрес API, пустое значение означает api.stripe.com.
	BaseURL string
}

// Provider клиент Stripe. Хранит собственный экземпляр API и не трогает stripe.Key.
type Provider struct {
	api           *client.API
	webhookSecret string
	priceID       string
}

// New создаёт клиента Stripe. Сетевые повторы отключены: ошибка сразу возвращается вызывающему.
func New(cfg Config) *Provider {
	backendCfg := &stripe.BackendConfig{
		MaxNetworkRetries: stripe.Int64(0),
	}
	if cfg.BaseURL != "" {
		backendCfg.URL = stripe.String(cfg.BaseURL)
	}
	backends := &stripe.Backends{
		API:     stripe.GetBackendWithConfig(stripe.APIBackend, backendCfg),
		Connect: stripe.GetBackendWithConfig(stripe.ConnectBackend, backendCfg),
		Uploads: stripe.GetBackendWithConfig(stripe.UploadsBackend, backendCfg),
	}
	return &Provider{
		api:           client.New(cfg.SecretKey, backends),
		webhookSecret: cfg.WebhookSecret,
		priceID:       cfg.PriceID,
	}
}

// CreateCustomer создаёт клиента Stripe и возвращает его идентификатор.
func (p *Provider) CreateCustomer(ctx context.Context, email, name string) (string, error) {
	const op = "stripeprovider.CreateCustomer"

	params := &stripe.CustomerParams{
		Email: stripe.String(email),
		Name:  stripe.String(name),
	}
	params.Context = ctx
	c, err := p.api.Customers.New(params)
	metrics.ObserveProviderCall(providerName, "create_customer", err)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return c.ID, nil
}

// CreateSetupIntent выпускает SetupIntent для сохранения платёжного метода клиента.
func (p *Provider) CreateSetupIntent(ctx context.Context, customerID string) (*models.SetupIntent, error) {
	const op = "stripeprovider.CreateSetupIntent"

	params := &stripe.SetupIntentParams{
		Customer: stripe.String(customerID),
	}
	params.Context = ctx
	si, err := p.api.SetupIntents.New(params)
	metrics.ObserveProviderCall(providerName, "create_setup_intent", err)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &models.SetupIntent{ID: si.ID, ClientSecret: si.ClientSecret}, nil
}

// AttachPaymentMethod привязывает платёжный метод из SetupIntent к клиенту
// и делает его методом по умолчанию для счетов.
func (p *Provider) AttachPaymentMethod(ctx context.Context, intentID, customerID string) error {
	const op = "stripeprovider.AttachPaymentMethod"

	getParams := &stripe.SetupIntentParams{}
	getParams.Context = ctx
	si, err := p.api.SetupIntents.Get(intentID, getParams)
	metrics.ObserveProviderCall(providerName, "get_setup_intent", err)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if si.PaymentMethod == nil || si.PaymentMethod.ID == "" {
		return fmt.Errorf("%s: %w", op, ErrNoPaymentMethod)
	}
	if si.Customer != nil && si.Customer.ID != "" && si.Customer.ID != customerID {
		return fmt.Errorf("%s: setup intent belongs to another customer", op)
	}
	pmID := si.PaymentMethod.ID

	attachParams := &stripe.PaymentMethodAttachParams{
		Customer: stripe.String(customerID),
	}
	attachParams.Context = ctx
	_, err = p.api.PaymentMethods.Attach(pmID, attachParams)
	metrics.ObserveProviderCall(providerName, "attach_payment_method", err)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	customerParams := &stripe.CustomerParams{
		InvoiceSettings: &stripe.CustomerInvoiceSettingsParams{
			DefaultPaymentMethod: stripe.String(pmID),
		},
	}
	customerParams.Context = ctx
	_, err = p.api.Customers.Update(customerID, customerParams)
	metrics.ObserveProviderCall(providerName, "update_customer", err)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// CreateSubscription подписывает клиента на тариф из конфига.
// При trialDays == 0 пробный период не запрашивается.
func (p *Provider) CreateSubscription(ctx context.Context, customerID string, trialDays int64) (*models.ProviderSubscription, error) {
	const op = "stripeprovider.CreateSubscription"

	params := &stripe.SubscriptionParams{
		Customer: stripe.String(customerID),
		Items: []*stripe.SubscriptionItemsParams{
			{Price: stripe.String(p.priceID)},
		},
		PaymentBehavior: stripe.String(paymentBehavior),
		PaymentSettings: &stripe.SubscriptionPaymentSettingsParams{
			SaveDefaultPaymentMethod: stripe.String(saveDefaultPaymentMethod),
		},
	}
	if trialDays > 0 {
		params.TrialPeriodDays = stripe.Int64(trialDays)
	}
	params.Context = ctx
	sub, err := p.api.Subscriptions.New(params)
	metrics.ObserveProviderCall(providerName, "create_subscription", err)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return toProviderSubscription(sub), nil
}

// CancelSubscription немедленно отменяет подписку у провайдера.
func (p *Provider) CancelSubscription(ctx context.Context, subscriptionID, reason string) error {
	const op = "stripeprovider.CancelSubscription"

	if reason == "" {
		reason = defaultCancelReason
	}
	params := &stripe.SubscriptionCancelParams{
		CancellationDetails: &stripe.SubscriptionCancelCancellationDetailsParams{
			Comment:  stripe.String(reason),
			Feedback: stripe.String(cancelFeedback),
		},
	}
	params.Context = ctx
	_, err := p.api.Subscriptions.Cancel(subscriptionID, params)
	metrics.ObserveProviderCall(providerName, "cancel_subscription", err)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func toProviderSubscription(sub *stripe.Subscription) *models.ProviderSubscription {
	ps := &models.ProviderSubscription{
		ID:     sub.ID,
		Status: string(sub.Status),
	}
	if sub.Items != nil && len(sub.Items.Data) > 0 {
		item := sub.Items.Data[0]
		ps.CurrentPeriodStart = time.Unix(item.CurrentPeriodStart, 0).UTC()
		ps.CurrentPeriodEnd = time.Unix(item.CurrentPeriodEnd, 0).UTC()
		if item.Price != nil {
			ps.PlanID = item.Price.ID
			ps.PlanAmount = float64(item.Price.UnitAmount) / 100
			ps.Currency = string(item.Price.Currency)
			if item.Price.Recurring != nil {
				ps.Interval = string(item.Price.Recurring.Interval)
			}
		}
	}
	if sub.TrialStart > 0 {
		t := time.Unix(sub.TrialStart, 0).UTC()
		ps.TrialStart = &t
	}
	if sub.TrialEnd > 0 {
		t := time.Unix(sub.TrialEnd, 0).UTC()
		ps.TrialEnd = &t
	}
	return ps
}
