package stripeprovider

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	stripe "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"

	"github.com/magabrotheeeer/kitab-billing/internal/models"
)

// invoicePayload поля счёта, нужные сверке. Идентификатор подписки лежит
// в parent.subscription_details.subscription, в старых версиях API в subscription.
type invoicePayload struct {
	Subscription json.RawMessage `json:"subscription"`
	Parent       *struct {
		SubscriptionDetails *struct {
			Subscription json.RawMessage `json:"subscription"`
		} `json:"subscription_details"`
	} `json:"parent"`
	Lines struct {
		Data []struct {
			Period struct {
				Start int64 `json:"start"`
				End   int64 `json:"end"`
			} `json:"period"`
		} `json:"data"`
	} `json:"lines"`
}

func (inv *invoicePayload) subscriptionID() string {
	if inv.Parent != nil && inv.Parent.SubscriptionDetails != nil {
		if id := expandableID(inv.Parent.SubscriptionDetails.Subscription); id != "" {
			return id
		}
	}
	return expandableID(inv.Subscription)
}

// expandableID достаёт id из строки или из развёрнутого объекта.
func expandableID(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	var id string
	if err := json.Unmarshal(raw, &id); err == nil {
		return id
	}
	var obj struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil {
		return obj.ID
	}
	return ""
}

// ConstructEvent проверяет заголовок Stripe-Signature и разбирает событие.
// События неизвестных типов возвращаются без идентификатора подписки.
func (p *Provider) ConstructEvent(payload []byte, signatureHeader string) (*models.ProviderEvent, error) {
	const op = "stripeprovider.ConstructEvent"

	event, err := webhook.ConstructEventWithOptions(payload, signatureHeader, p.webhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	ev := &models.ProviderEvent{
		ID:      event.ID,
		Type:    string(event.Type),
		Created: time.Unix(event.Created, 0).UTC(),
	}
	if event.Data == nil {
		return ev, nil
	}

	switch ev.Type {
	case models.EventSubscriptionCreated, models.EventSubscriptionUpdated, models.EventSubscriptionDeleted:
		var sub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return nil, fmt.Errorf("%s: parse subscription: %w", op, err)
		}
		ev.SubscriptionID = sub.ID
		ev.ProviderStatus = string(sub.Status)
		ps := toProviderSubscription(&sub)
		if !ps.CurrentPeriodEnd.IsZero() && ps.CurrentPeriodEnd.Unix() > 0 {
			ev.PeriodStart = &ps.CurrentPeriodStart
			ev.PeriodEnd = &ps.CurrentPeriodEnd
		}
	case models.EventPaymentSucceeded, models.EventPaymentFailed:
		var inv invoicePayload
		if err := json.Unmarshal(event.Data.Raw, &inv); err != nil {
			return nil, fmt.Errorf("%s: parse invoice: %w", op, err)
		}
		ev.SubscriptionID = inv.subscriptionID()
		if ev.Type == models.EventPaymentSucceeded {
			var start, end int64
			for _, line := range inv.Lines.Data {
				if line.Period.End > end {
					start, end = line.Period.Start, line.Period.End
				}
			}
			if end > 0 {
				s, e := time.Unix(start, 0).UTC(), time.Unix(end, 0).UTC()
				ev.PeriodStart, ev.PeriodEnd = &s, &e
			}
		}
	}
	return ev, nil
}
