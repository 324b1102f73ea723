// Package repository defines error types that are reused across multiple
// repositories. These sentinel values allow higher layers such as the
// ticket issuer and the handlers to distinguish between different
// failure scenarios without string matching. For example,
// ErrInsufficientSeats signals that a conditional seat decrement did
// not go through, while ErrDuplicateIntent reports that a ticket for
// the same payment intent already exists.
package repository

import "errors"

// ErrActivityNotFound is returned when a referenced activity does not
// exist. Handlers should translate this into an HTTP 404 response.
var ErrActivityNotFound = errors.New("activity not found")

// ErrTicketNotFound is returned when no ticket matches the requested
// identifier or payment intent. Handlers should translate this into
// an HTTP 404 response; the issuer uses it to detect a first-time
// payment confirmation.
var ErrTicketNotFound = errors.New("ticket not found")

// ErrInsufficientSeats is returned when the requested quantity exceeds
// the activity's remaining seats. The ledger is left unchanged.
// Handlers should translate this into an HTTP 409 response.
var ErrInsufficientSeats = errors.New("not enough seats available")

// ErrDuplicateIntent is returned when a ticket insert collides with the
// unique index on tickets.payment_intent_id, meaning a concurrent
// confirmation path already issued a ticket for the same payment.
var ErrDuplicateIntent = errors.New("ticket already exists for payment intent")

// ErrDuplicateCode is returned when a generated confirmation code
// collides with an existing one. Callers regenerate and retry.
var ErrDuplicateCode = errors.New("ticket code already exists")

// ErrTicketUsed is returned when a ticket is checked in a second time.
// Handlers should translate this into an HTTP 409 response.
var ErrTicketUsed = errors.New("ticket already used")

// ErrForbidden is returned when the caller attempts an operation
// on a resource they do not own. Handlers should translate this
// into an HTTP 403 response.
var ErrForbidden = errors.New("forbidden")
