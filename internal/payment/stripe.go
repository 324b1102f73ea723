package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	stripe "github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/client"
	"github.com/stripe/stripe-go/v79/webhook"
)

// StripeGateway implements Gateway over the official Stripe SDK. One
// configured instance is constructed at process start and injected into
// the handlers; there is no package-level client.
type StripeGateway struct {
	api           *client.API
	webhookSecret string
}

// NewStripeGateway builds a Stripe client with the same settings the
// platform has always used: two network retries and an app identifier.
// webhookSecret is the endpoint signing secret configured out-of-band.
func NewStripeGateway(secretKey, webhookSecret string) *StripeGateway {
	cfg := &stripe.BackendConfig{MaxNetworkRetries: stripe.Int64(2)}
	backends := &stripe.Backends{
		API:     stripe.GetBackendWithConfig(stripe.APIBackend, cfg),
		Uploads: stripe.GetBackendWithConfig(stripe.UploadsBackend, cfg),
	}
	stripe.SetAppInfo(&stripe.AppInfo{Name: "joinspot", Version: "1.0.0"})
	api := &client.API{}
	api.Init(secretKey, backends)
	return &StripeGateway{api: api, webhookSecret: webhookSecret}
}

// CreateIntent creates a payment intent for the exact charge amount and
// embeds {activity_id, user_id, quantity} in the intent metadata. The
// metadata is what the confirmation paths trust when the intent later
// reports success.
func (g *StripeGateway) CreateIntent(ctx context.Context, req IntentRequest) (IntentSnapshot, error) {
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(req.AmountCents),
		Currency: stripe.String(strings.ToLower(req.Currency)),
	}
	params.Context = ctx
	params.AddMetadata(MetaActivityID, strconv.FormatUint(req.ActivityID, 10))
	params.AddMetadata(MetaUserID, strconv.FormatUint(req.UserID, 10))
	params.AddMetadata(MetaQuantity, strconv.FormatInt(req.Quantity, 10))
	if req.CardholderName != "" {
		params.AddMetadata("cardholder_name", req.CardholderName)
	}
	if req.Country != "" {
		params.AddMetadata("country", req.Country)
	}
	if req.Email != "" {
		params.ReceiptEmail = stripe.String(req.Email)
	}
	pi, err := g.api.PaymentIntents.New(params)
	if err != nil {
		return IntentSnapshot{}, fmt.Errorf("stripe: create intent: %w", err)
	}
	return snapshotOf(pi), nil
}

// RetrieveIntent fetches the current state of a payment intent.
func (g *StripeGateway) RetrieveIntent(ctx context.Context, intentID string) (IntentSnapshot, error) {
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx
	pi, err := g.api.PaymentIntents.Get(intentID, params)
	if err != nil {
		return IntentSnapshot{}, fmt.Errorf("stripe: retrieve intent %s: %w", intentID, err)
	}
	return snapshotOf(pi), nil
}

// VerifyWebhook checks the Stripe-Signature header against the shared
// endpoint secret. Any mismatch, malformed header or stale timestamp
// is collapsed into ErrSignatureInvalid; the payload must not be
// processed in that case.
func (g *StripeGateway) VerifyWebhook(payload []byte, signatureHeader string) (Event, error) {
	ev, err := webhook.ConstructEvent(payload, signatureHeader, g.webhookSecret)
	if err != nil {
		return Event{}, ErrSignatureInvalid
	}
	out := Event{ID: ev.ID, Type: string(ev.Type)}
	if strings.HasPrefix(out.Type, "payment_intent.") {
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(ev.Data.Raw, &pi); err != nil {
			return Event{}, fmt.Errorf("stripe: decode event %s: %w", ev.ID, err)
		}
		snap := snapshotOf(&pi)
		out.Intent = &snap
	}
	return out, nil
}

func snapshotOf(pi *stripe.PaymentIntent) IntentSnapshot {
	return IntentSnapshot{
		ID:           pi.ID,
		ClientSecret: pi.ClientSecret,
		Status:       string(pi.Status),
		Succeeded:    pi.Status == stripe.PaymentIntentStatusSucceeded,
		Metadata:     pi.Metadata,
	}
}

// ParseIntentMetadata extracts the reservation fields embedded at
// intent creation. An intent missing any field did not come from this
// service and is rejected.
func ParseIntentMetadata(meta map[string]string) (activityID, userID uint64, quantity int64, err error) {
	activityID, err = strconv.ParseUint(meta[MetaActivityID], 10, 64)
	if err != nil || activityID == 0 {
		return 0, 0, 0, fmt.Errorf("payment: intent metadata missing %s", MetaActivityID)
	}
	userID, err = strconv.ParseUint(meta[MetaUserID], 10, 64)
	if err != nil || userID == 0 {
		return 0, 0, 0, fmt.Errorf("payment: intent metadata missing %s", MetaUserID)
	}
	quantity, err = strconv.ParseInt(meta[MetaQuantity], 10, 64)
	if err != nil || quantity < 1 {
		return 0, 0, 0, fmt.Errorf("payment: intent metadata missing %s", MetaQuantity)
	}
	return activityID, userID, quantity, nil
}
