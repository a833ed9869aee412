package billing

import (
	"encoding/hex"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"

	"github.com/datagaffer/billing-api/internal/types"
)

const testWebhookSecret = "whsec_test_secret"

// signedHeader builds a Stripe-Signature header for payload using the
// official signing scheme.
func signedHeader(payload []byte, secret string) string {
	now := time.Now()
	sig := webhook.ComputeSignature(now, payload, secret)
	return fmt.Sprintf("t=%d,v1=%s", now.Unix(), hex.EncodeToString(sig))
}

func eventPayload(eventType string, object string) []byte {
	return []byte(fmt.Sprintf(`{"id":"evt_123","type":%q,"data":{"object":%s}}`, eventType, object))
}

func TestVerifyAndClassify_ValidSignature(t *testing.T) {
	payload := eventPayload("checkout.session.completed",
		`{"id":"cs_123","customer":"cus_123","customer_details":{"email":"USER@Example.com"}}`)

	event, err := VerifyAndClassify(payload, signedHeader(payload, testWebhookSecret), testWebhookSecret)
	require.NoError(t, err)

	checkout, ok := event.(CheckoutCompleted)
	require.True(t, ok, "expected CheckoutCompleted, got %T", event)
	assert.Equal(t, "cs_123", checkout.Session.ID)
	assert.Equal(t, "cus_123", checkout.Session.Customer.ID)
	assert.Equal(t, "USER@Example.com", checkout.Session.CustomerDetails.Email)
}

func TestVerifyAndClassify_MutatedPayloadFails(t *testing.T) {
	payload := eventPayload("checkout.session.completed", `{"id":"cs_123"}`)
	header := signedHeader(payload, testWebhookSecret)

	// Every single-byte mutation must fail verification.
	for i := 0; i < len(payload); i += 7 {
		mutated := make([]byte, len(payload))
		copy(mutated, payload)
		mutated[i] ^= 0x01

		_, err := VerifyAndClassify(mutated, header, testWebhookSecret)
		assert.ErrorIs(t, err, types.ErrAuthentication, "mutation at byte %d should fail", i)
	}
}

func TestVerifyAndClassify_MissingSignature(t *testing.T) {
	payload := eventPayload("checkout.session.completed", `{"id":"cs_123"}`)

	_, err := VerifyAndClassify(payload, "", testWebhookSecret)
	assert.ErrorIs(t, err, types.ErrAuthentication)
}

func TestVerifyAndClassify_WrongSecret(t *testing.T) {
	payload := eventPayload("checkout.session.completed", `{"id":"cs_123"}`)
	header := signedHeader(payload, "whsec_other")

	_, err := VerifyAndClassify(payload, header, testWebhookSecret)
	assert.ErrorIs(t, err, types.ErrAuthentication)
}

func TestVerifyAndClassify_SubscriptionEvents(t *testing.T) {
	tests := []struct {
		eventType string
		want      func(t *testing.T, event Event)
	}{
		{
			eventType: "customer.subscription.created",
			want: func(t *testing.T, event Event) {
				changed, ok := event.(SubscriptionChanged)
				require.True(t, ok, "expected SubscriptionChanged, got %T", event)
				assert.Equal(t, "sub_123", changed.Subscription.ID)
			},
		},
		{
			eventType: "customer.subscription.updated",
			want: func(t *testing.T, event Event) {
				_, ok := event.(SubscriptionChanged)
				require.True(t, ok, "expected SubscriptionChanged, got %T", event)
			},
		},
		{
			eventType: "customer.subscription.deleted",
			want: func(t *testing.T, event Event) {
				deleted, ok := event.(SubscriptionDeleted)
				require.True(t, ok, "expected SubscriptionDeleted, got %T", event)
				assert.Equal(t, stripe.SubscriptionStatusCanceled, deleted.Subscription.Status)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.eventType, func(t *testing.T) {
			payload := eventPayload(tt.eventType,
				`{"id":"sub_123","customer":"cus_123","status":"canceled"}`)
			event, err := VerifyAndClassify(payload, signedHeader(payload, testWebhookSecret), testWebhookSecret)
			require.NoError(t, err)
			tt.want(t, event)
			assert.Equal(t, tt.eventType, event.EventType(),
				"variant must report the delivered event type")
		})
	}
}

func TestVerifyAndClassify_UnrecognizedTypeIsIgnored(t *testing.T) {
	payload := eventPayload("invoice.payment_succeeded", `{"id":"in_123"}`)

	event, err := VerifyAndClassify(payload, signedHeader(payload, testWebhookSecret), testWebhookSecret)
	require.NoError(t, err)

	ignored, ok := event.(Ignored)
	require.True(t, ok, "expected Ignored, got %T", event)
	assert.Equal(t, "invoice.payment_succeeded", ignored.Type)
}

func TestIsActiveEquivalent(t *testing.T) {
	active := []stripe.SubscriptionStatus{
		stripe.SubscriptionStatusActive,
		stripe.SubscriptionStatusTrialing,
		stripe.SubscriptionStatusPastDue,
	}
	inactive := []stripe.SubscriptionStatus{
		stripe.SubscriptionStatusCanceled,
		stripe.SubscriptionStatusIncomplete,
		stripe.SubscriptionStatusIncompleteExpired,
		stripe.SubscriptionStatusUnpaid,
		stripe.SubscriptionStatusPaused,
	}

	for _, status := range active {
		assert.True(t, isActiveEquivalent(status), "status %s should count as subscribed", status)
	}
	for _, status := range inactive {
		assert.False(t, isActiveEquivalent(status), "status %s should not count as subscribed", status)
	}
}

func TestUsedTrial(t *testing.T) {
	assert.False(t, usedTrial(nil))
	assert.False(t, usedTrial(&stripe.Subscription{Status: stripe.SubscriptionStatusActive}))
	assert.True(t, usedTrial(&stripe.Subscription{Status: stripe.SubscriptionStatusTrialing}))
	assert.True(t, usedTrial(&stripe.Subscription{
		Status:   stripe.SubscriptionStatusActive,
		TrialEnd: time.Now().Add(-24 * time.Hour).Unix(),
	}))
}

func TestPriceIDOf(t *testing.T) {
	assert.Empty(t, priceIDOf(nil))
	assert.Empty(t, priceIDOf(&stripe.Subscription{}))
	assert.Empty(t, priceIDOf(&stripe.Subscription{Items: &stripe.SubscriptionItemList{}}))

	sub := &stripe.Subscription{
		Items: &stripe.SubscriptionItemList{
			Data: []*stripe.SubscriptionItem{
				{Price: &stripe.Price{ID: "price_monthly_123"}},
			},
		},
	}
	assert.Equal(t, "price_monthly_123", priceIDOf(sub))
}
