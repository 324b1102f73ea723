package payment

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v79/webhook"
)

const testWebhookSecret = "whsec_test_secret"

// signedHeader builds a Stripe-Signature header for payload the way
// Stripe signs real deliveries.
func signedHeader(payload []byte, secret string, at time.Time) string {
	sig := webhook.ComputeSignature(at, payload, secret)
	return fmt.Sprintf("t=%d,v1=%x", at.Unix(), sig)
}

func succeededEventPayload(intentID string) []byte {
	return []byte(fmt.Sprintf(`{
		"id": "evt_test_1",
		"type": "payment_intent.succeeded",
		"data": {
			"object": {
				"id": %q,
				"object": "payment_intent",
				"status": "succeeded",
				"metadata": {"activity_id": "7", "user_id": "42", "quantity": "3"}
			}
		}
	}`, intentID))
}

func TestVerifyWebhookValidSignature(t *testing.T) {
	g := NewStripeGateway("sk_test_x", testWebhookSecret)
	payload := succeededEventPayload("pi_123")

	ev, err := g.VerifyWebhook(payload, signedHeader(payload, testWebhookSecret, time.Now()))
	require.NoError(t, err)

	assert.Equal(t, "evt_test_1", ev.ID)
	assert.Equal(t, "payment_intent.succeeded", ev.Type)
	require.NotNil(t, ev.Intent)
	assert.Equal(t, "pi_123", ev.Intent.ID)
	assert.True(t, ev.Intent.Succeeded)
	assert.Equal(t, "succeeded", ev.Intent.Status)
	assert.Equal(t, "7", ev.Intent.Metadata[MetaActivityID])
	assert.Equal(t, "42", ev.Intent.Metadata[MetaUserID])
	assert.Equal(t, "3", ev.Intent.Metadata[MetaQuantity])
}

func TestVerifyWebhookRejectsForgery(t *testing.T) {
	g := NewStripeGateway("sk_test_x", testWebhookSecret)
	payload := succeededEventPayload("pi_123")

	cases := []struct {
		name   string
		header string
	}{
		{"empty header", ""},
		{"garbage header", "t=123,v1=deadbeef"},
		{"wrong secret", signedHeader(payload, "whsec_other", time.Now())},
		{"stale timestamp", signedHeader(payload, testWebhookSecret, time.Now().Add(-time.Hour))},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := g.VerifyWebhook(payload, tc.header)
			assert.ErrorIs(t, err, ErrSignatureInvalid)
		})
	}
}

func TestVerifyWebhookRejectsTamperedPayload(t *testing.T) {
	g := NewStripeGateway("sk_test_x", testWebhookSecret)
	payload := succeededEventPayload("pi_123")
	header := signedHeader(payload, testWebhookSecret, time.Now())

	tampered := succeededEventPayload("pi_attacker")
	_, err := g.VerifyWebhook(tampered, header)
	assert.ErrorIs(t, err, ErrSignatureInvalid)
}

func TestVerifyWebhookNonIntentEvent(t *testing.T) {
	g := NewStripeGateway("sk_test_x", testWebhookSecret)
	payload := []byte(`{"id": "evt_test_2", "type": "charge.refunded", "data": {"object": {"id": "ch_1"}}}`)

	ev, err := g.VerifyWebhook(payload, signedHeader(payload, testWebhookSecret, time.Now()))
	require.NoError(t, err)
	assert.Equal(t, "charge.refunded", ev.Type)
	assert.Nil(t, ev.Intent)
}

func TestParseIntentMetadata(t *testing.T) {
	activityID, userID, quantity, err := ParseIntentMetadata(map[string]string{
		MetaActivityID: "7",
		MetaUserID:     "42",
		MetaQuantity:   "3",
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(7), activityID)
	assert.Equal(t, uint64(42), userID)
	assert.Equal(t, int64(3), quantity)

	bad := []map[string]string{
		{},
		{MetaActivityID: "7", MetaUserID: "42"},
		{MetaActivityID: "0", MetaUserID: "42", MetaQuantity: "3"},
		{MetaActivityID: "7", MetaUserID: "42", MetaQuantity: "0"},
		{MetaActivityID: "x", MetaUserID: "42", MetaQuantity: "3"},
	}
	for _, meta := range bad {
		_, _, _, err := ParseIntentMetadata(meta)
		assert.Error(t, err, "metadata %v", meta)
	}
}
