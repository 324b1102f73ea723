package model

import "time"

// Ticket is the proof-of-reservation record in the `tickets` table. A
// ticket ties a user to a quantity of seats on an activity. Rows are
// never deleted; reservations are permanent history. Only the Used
// flag changes after creation, via the check-in flow.
//
// PaymentIntentID is the idempotency key for paid reservations: the
// column carries a unique index so at most one ticket can ever exist
// for a given payment intent, no matter how many times the processor
// reports success. It is nil for free reservations.
//
// Fields:
//  ID              – primary key identifier.
//  UserID          – buyer.
//  ActivityID      – activity reserved.
//  Quantity        – seats purchased (>= 1).
//  Code            – human-presentable confirmation code, unique.
//  PaymentIntentID – external payment reference (nullable).
//  Used            – redemption flag set at check-in.
//  CreatedAt       – creation timestamp.
type Ticket struct {
	ID              uint64    `json:"id"`                          // tickets.id
	UserID          uint64    `json:"user_id"`                     // tickets.user_id
	ActivityID      uint64    `json:"activity_id"`                 // tickets.activity_id
	Quantity        int64     `json:"quantity"`                    // tickets.quantity
	Code            string    `json:"code"`                        // tickets.code
	PaymentIntentID *string   `json:"payment_intent_id,omitempty"` // tickets.payment_intent_id (nullable)
	Used            bool      `json:"used"`                        // tickets.used
	CreatedAt       time.Time `json:"created_at"`                  // tickets.created_at
}
