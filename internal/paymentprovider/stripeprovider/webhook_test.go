package stripeprovider

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v82/webhook"

	"github.com/magabrotheeeer/kitab-billing/internal/models"
)

func signedPayload(t *testing.T, secret, payload string) string {
	t.Helper()
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   []byte(payload),
		Secret:    secret,
		Timestamp: time.Now(),
	})
	return signed.Header
}

func eventJSON(id, eventType string, created int64, object string) string {
	return fmt.Sprintf(`{"id":%q,"object":"event","type":%q,"created":%d,"data":{"object":%s}}`,
		id, eventType, created, object)
}

func TestProvider_ConstructEvent(t *testing.T) {
	p := New(Config{SecretKey: "sk_test_123", WebhookSecret: "whsec_test"})
	created := int64(1700000500)

	tests := []struct {
		name       string
		payload    string
		wantType   string
		wantSubID  string
		wantStatus string
		wantPeriod bool
	}{
		{
			name:       "subscription updated",
			payload:    eventJSON("evt_1", models.EventSubscriptionUpdated, created, subscriptionJSON),
			wantType:   models.EventSubscriptionUpdated,
			wantSubID:  "sub_123",
			wantStatus: "trialing",
			wantPeriod: true,
		},
		{
			name: "invoice with parent details",
			payload: eventJSON("evt_2", models.EventPaymentFailed, created,
				`{"id":"in_1","object":"invoice","parent":{"subscription_details":{"subscription":"sub_new"}}}`),
			wantType:  models.EventPaymentFailed,
			wantSubID: "sub_new",
		},
		{
			name: "legacy invoice subscription field",
			payload: eventJSON("evt_3", models.EventPaymentSucceeded, created,
				`{"id":"in_2","object":"invoice","subscription":"sub_legacy","lines":{"data":[{"period":{"start":1700000000,"end":1702592000}}]}}`),
			wantType:   models.EventPaymentSucceeded,
			wantSubID:  "sub_legacy",
			wantPeriod: true,
		},
		{
			name:     "unhandled type",
			payload:  eventJSON("evt_4", "charge.refunded", created, `{"id":"ch_1","object":"charge"}`),
			wantType: "charge.refunded",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			header := signedPayload(t, "whsec_test", tt.payload)

			ev, err := p.ConstructEvent([]byte(tt.payload), header)
			require.NoError(t, err)
			assert.Equal(t, tt.wantType, ev.Type)
			assert.Equal(t, tt.wantSubID, ev.SubscriptionID)
			assert.Equal(t, tt.wantStatus, ev.ProviderStatus)
			assert.Equal(t, time.Unix(created, 0).UTC(), ev.Created)
			assert.Equal(t, tt.wantPeriod, ev.PeriodEnd != nil)
		})
	}
}

func TestProvider_ConstructEvent_InvalidSignature(t *testing.T) {
	p := New(Config{SecretKey: "sk_test_123", WebhookSecret: "whsec_test"})
	payload := eventJSON("evt_1", models.EventPaymentFailed, time.Now().Unix(), `{"id":"in_1","object":"invoice"}`)

	tests := []struct {
		name   string
		header string
	}{
		{name: "empty header", header: ""},
		{name: "wrong secret", header: signedPayload(t, "whsec_other", payload)},
		{name: "garbage", header: "t=1,v1=deadbeef"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, err := p.ConstructEvent([]byte(payload), tt.header)
			assert.Error(t, err)
			assert.Nil(t, ev)
		})
	}
}

func TestExpandableID(t *testing.T) {
	assert.Equal(t, "sub_1", expandableID([]byte(`"sub_1"`)))
	assert.Equal(t, "sub_2", expandableID([]byte(`{"id":"sub_2","object":"subscription"}`)))
	assert.Equal(t, "", expandableID([]byte(`null`)))
	assert.Equal(t, "", expandableID(nil))
}
