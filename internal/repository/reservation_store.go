package repository

import (
	"context"
	"database/sql"

	"github.com/joinspot/reservation-api/internal/model"
)

// ReservationStore is the transactional choke point for ticket
// issuance. It combines the activity ledger and the ticket table so
// that the seat decrement and the ticket insert commit as a single
// atomic unit: a ticket can never exist without its decrement and a
// decrement is rolled back whenever the insert fails.
type ReservationStore struct {
	db       *sql.DB
	activity *ActivityRepo
	tickets  *TicketRepo
}

// NewReservationStore constructs a ReservationStore. All dependencies
// must be non-nil and bound to the same database handle.
func NewReservationStore(db *sql.DB, activity *ActivityRepo, tickets *TicketRepo) *ReservationStore {
	if db == nil || activity == nil || tickets == nil {
		panic("nil dependency passed to NewReservationStore")
	}
	return &ReservationStore{db: db, activity: activity, tickets: tickets}
}

// GetActivity returns the activity or ErrActivityNotFound.
func (s *ReservationStore) GetActivity(ctx context.Context, activityID uint64) (model.Activity, error) {
	return s.activity.GetByID(ctx, activityID)
}

// TicketByPaymentIntent returns the ticket already issued for the
// payment intent, or ErrTicketNotFound.
func (s *ReservationStore) TicketByPaymentIntent(ctx context.Context, intentID string) (model.Ticket, error) {
	return s.tickets.GetByPaymentIntent(ctx, intentID)
}

// CreateTicket decrements the activity's seats and inserts the ticket
// inside one transaction. On any error nothing is committed; the seat
// count observable from outside never moves without a matching ticket
// row. Unique-index collisions surface as ErrDuplicateIntent or
// ErrDuplicateCode for the caller to resolve.
func (s *ReservationStore) CreateTicket(ctx context.Context, t *model.Ticket) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	if _, err := s.activity.ReserveSeatsTx(ctx, tx, t.ActivityID, t.Quantity); err != nil {
		return err
	}
	if err := s.tickets.CreateTx(ctx, tx, t); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}
