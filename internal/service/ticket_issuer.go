// Package service holds the business operations that sit between the
// HTTP handlers and the repositories. The central one is the
// TicketIssuer: the single choke point that converts a confirmed
// payment (or a free reservation request) into a durable ticket plus
// an inventory decrement, exactly once.
package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/joinspot/reservation-api/internal/model"
	"github.com/joinspot/reservation-api/internal/repository"
	"github.com/joinspot/reservation-api/internal/utils"
)

// ErrInvalidQuantity is returned when a reservation asks for fewer
// than one seat.
var ErrInvalidQuantity = errors.New("quantity must be at least 1")

// codeAttempts bounds how many confirmation codes the issuer tries
// before giving up. Collisions on an 8-character code are rare enough
// that hitting the bound indicates something else is wrong.
const codeAttempts = 5

// Store is the persistence port the issuer needs. The production
// implementation is repository.ReservationStore; tests use in-memory
// fakes. CreateTicket must apply the seat decrement and the ticket
// insert as one atomic unit and report unique-key collisions with the
// repository sentinel errors.
type Store interface {
	GetActivity(ctx context.Context, activityID uint64) (model.Activity, error)
	TicketByPaymentIntent(ctx context.Context, intentID string) (model.Ticket, error)
	CreateTicket(ctx context.Context, t *model.Ticket) error
}

// Notifier receives the fire-and-forget side effect after issuance.
// Implementations must never panic and must swallow their own errors;
// a failed notification cannot make a committed reservation look
// failed.
type Notifier interface {
	ReservationConfirmed(ctx context.Context, activity model.Activity, ticket model.Ticket)
}

// IssueInput describes one issuance request. PaymentIntentID is the
// idempotency key for paid flows and nil for free reservations, where
// the caller itself is the sole trigger and no dedup lookup is needed.
type IssueInput struct {
	UserID          uint64
	ActivityID      uint64
	Quantity        int64
	PaymentIntentID *string
}

// IssueResult carries the ticket plus whether it already existed.
// AlreadyIssued is not an error: the idempotency guard absorbed a
// duplicate confirmation and the existing ticket is returned as-is.
type IssueResult struct {
	Ticket        model.Ticket
	AlreadyIssued bool
}

// TicketIssuer issues tickets. Construct with NewTicketIssuer.
type TicketIssuer struct {
	store    Store
	notifier Notifier
}

// NewTicketIssuer constructs a TicketIssuer. notifier may be nil to
// disable notifications (tests).
func NewTicketIssuer(store Store, notifier Notifier) *TicketIssuer {
	if store == nil {
		panic("nil store passed to NewTicketIssuer")
	}
	return &TicketIssuer{store: store, notifier: notifier}
}

// Issue guarantees at-most-once ticket creation per payment intent.
//
// For paid flows the issuer first looks for an existing ticket under
// the intent id: both the client polling path and the webhook path
// race to confirm the same payment, and whichever loses must get the
// winner's ticket back with no further mutation. The lookup is backed
// by a unique index, so a race that slips past it is caught again at
// insert time and resolved the same way.
//
// The seat decrement and ticket insert happen atomically in the store.
// ErrInsufficientSeats propagates without creating anything. Payment
// succeeded but seats vanished in the interim is a business edge case
// handled by a refund workflow elsewhere; the issuer must never
// silently oversell.
func (s *TicketIssuer) Issue(ctx context.Context, in IssueInput) (IssueResult, error) {
	if in.Quantity < 1 {
		return IssueResult{}, ErrInvalidQuantity
	}
	if in.PaymentIntentID != nil {
		existing, err := s.store.TicketByPaymentIntent(ctx, *in.PaymentIntentID)
		if err == nil {
			return IssueResult{Ticket: existing, AlreadyIssued: true}, nil
		}
		if !errors.Is(err, repository.ErrTicketNotFound) {
			return IssueResult{}, err
		}
	}

	activity, err := s.store.GetActivity(ctx, in.ActivityID)
	if err != nil {
		return IssueResult{}, err
	}

	for attempt := 0; attempt < codeAttempts; attempt++ {
		code, err := utils.NewTicketCode()
		if err != nil {
			return IssueResult{}, err
		}
		ticket := model.Ticket{
			UserID:          in.UserID,
			ActivityID:      in.ActivityID,
			Quantity:        in.Quantity,
			Code:            code,
			PaymentIntentID: in.PaymentIntentID,
		}
		err = s.store.CreateTicket(ctx, &ticket)
		switch {
		case err == nil:
			if s.notifier != nil {
				go s.notifier.ReservationConfirmed(context.WithoutCancel(ctx), activity, ticket)
			}
			return IssueResult{Ticket: ticket}, nil
		case errors.Is(err, repository.ErrDuplicateCode):
			continue // regenerate and retry
		case errors.Is(err, repository.ErrDuplicateIntent):
			// A concurrent confirmation won between our lookup and the
			// insert. Return its ticket.
			existing, lookupErr := s.store.TicketByPaymentIntent(ctx, *in.PaymentIntentID)
			if lookupErr != nil {
				return IssueResult{}, lookupErr
			}
			return IssueResult{Ticket: existing, AlreadyIssued: true}, nil
		default:
			return IssueResult{}, err
		}
	}
	return IssueResult{}, fmt.Errorf("could not generate a unique ticket code after %d attempts", codeAttempts)
}
