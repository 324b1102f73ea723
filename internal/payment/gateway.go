// Package payment brokers all communication with the external payment
// processor. It never touches local inventory or tickets; its only
// job is to create payment intents carrying the reservation metadata,
// read their status back, and authenticate webhook deliveries.
package payment

import (
	"context"
	"errors"
)

// Metadata keys attached to every payment intent. The intent metadata
// is the sole carrier of reservation state across the external round
// trip: nothing about a pending reservation is stored locally between
// intent creation and confirmation.
const (
	MetaActivityID = "activity_id"
	MetaUserID     = "user_id"
	MetaQuantity   = "quantity"
)

// ErrSignatureInvalid is returned when a webhook payload fails the
// signature check. Handlers must reject the request with 400 before
// any business logic runs; a forged payment-succeeded event would
// otherwise mint free tickets.
var ErrSignatureInvalid = errors.New("webhook signature invalid")

// IntentRequest describes the charge to create. Amount is computed by
// the caller as price_cents * quantity, already in the processor's
// minor currency unit.
type IntentRequest struct {
	AmountCents    int64
	Currency       string
	ActivityID     uint64
	UserID         uint64
	Quantity       int64
	CardholderName string
	Email          string
	Country        string
}

// IntentSnapshot is a read-only view of a payment intent as reported
// by the processor.
type IntentSnapshot struct {
	ID           string
	ClientSecret string
	Status       string
	Succeeded    bool
	Metadata     map[string]string
}

// Event is a verified webhook event. Type follows the processor's
// naming; Intent is populated for payment intent events.
type Event struct {
	ID     string
	Type   string
	Intent *IntentSnapshot
}

// Gateway is the processor-facing port of the reservation core. The
// production implementation talks to Stripe; tests substitute fakes.
type Gateway interface {
	// CreateIntent registers a charge attempt with the processor and
	// returns the intent snapshot including the client secret the
	// frontend needs to complete payment.
	CreateIntent(ctx context.Context, req IntentRequest) (IntentSnapshot, error)
	// RetrieveIntent is a read-only passthrough used by the polling
	// confirmation path.
	RetrieveIntent(ctx context.Context, intentID string) (IntentSnapshot, error)
	// VerifyWebhook authenticates a raw webhook delivery against the
	// shared endpoint secret and returns the decoded event. Signature
	// mismatches return ErrSignatureInvalid.
	VerifyWebhook(payload []byte, signatureHeader string) (Event, error)
}
