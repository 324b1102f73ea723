// Package queue defines message payloads exchanged over the message
// broker plus the publisher and background consumer for them.
package queue

// ReservationConfirmedEvent is published after a ticket has been
// committed. It carries enough information for downstream consumers to
// log, notify, or trigger analytics without querying the primary
// database. Publishing is best-effort: the reservation stands even if
// the broker is down.
type ReservationConfirmedEvent struct {
	TicketID      uint64 `json:"ticket_id"`
	Code          string `json:"code"`
	UserID        uint64 `json:"user_id"`
	UserName      string `json:"user_name"`
	ActivityID    uint64 `json:"activity_id"`
	ActivityTitle string `json:"activity_title"`
	OwnerID       uint64 `json:"owner_id"`
	Quantity      int64  `json:"quantity"`
	AmountCents   int64  `json:"amount_cents"`
	PaymentIntent string `json:"payment_intent,omitempty"`
	ConfirmedAt   string `json:"confirmed_at"`
}
