package repository

import (
	"context"
	"database/sql"
	"strings"

	"github.com/joinspot/reservation-api/internal/model"
)

// TicketRepo provides data access to the `tickets` table. Tickets are
// append-only: rows are inserted by the issuer and never updated except
// for the `used` flag at check-in, and never deleted.
type TicketRepo struct {
	db *sql.DB
}

// NewTicketRepo returns a new TicketRepo bound to the given database.
func NewTicketRepo(db *sql.DB) *TicketRepo { return &TicketRepo{db: db} }

const ticketColumns = `id, user_id, activity_id, quantity, code, payment_intent_id, used, created_at`

func scanTicket(row *sql.Row) (model.Ticket, error) {
	var (
		t      model.Ticket
		intent sql.NullString
	)
	err := row.Scan(&t.ID, &t.UserID, &t.ActivityID, &t.Quantity, &t.Code, &intent, &t.Used, &t.CreatedAt)
	if err == sql.ErrNoRows {
		return model.Ticket{}, ErrTicketNotFound
	}
	if err != nil {
		return model.Ticket{}, err
	}
	if intent.Valid {
		v := intent.String
		t.PaymentIntentID = &v
	}
	return t, nil
}

// CreateTx inserts a ticket within the scope of an existing transaction
// and populates the generated ID and timestamps on the record. Unique
// index violations are mapped to sentinel errors: ErrDuplicateIntent
// for the payment_intent_id index (a concurrent confirmation path won
// the race) and ErrDuplicateCode for the code index (regenerate and
// retry). MySQL reports both as error 1062; the index name in the
// message tells them apart.
func (r *TicketRepo) CreateTx(ctx context.Context, tx *sql.Tx, t *model.Ticket) error {
	var intent interface{}
	if t.PaymentIntentID != nil {
		intent = *t.PaymentIntentID
	}
	res, err := tx.ExecContext(ctx,
		`INSERT INTO tickets (user_id, activity_id, quantity, code, payment_intent_id) VALUES (?, ?, ?, ?, ?)`,
		t.UserID, t.ActivityID, t.Quantity, t.Code, intent)
	if err != nil {
		msg := strings.ToLower(err.Error())
		if strings.Contains(msg, "1062") {
			if strings.Contains(msg, "payment_intent") {
				return ErrDuplicateIntent
			}
			return ErrDuplicateCode
		}
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	t.ID = uint64(id)
	const sel = `SELECT ` + ticketColumns + ` FROM tickets WHERE id = ?`
	full, err := scanTicket(tx.QueryRowContext(ctx, sel, t.ID))
	if err != nil {
		return err
	}
	*t = full
	return nil
}

// GetByPaymentIntent returns the ticket issued for a payment intent, or
// ErrTicketNotFound when the intent has not produced a ticket yet. This
// is the idempotency lookup used before issuance.
func (r *TicketRepo) GetByPaymentIntent(ctx context.Context, intentID string) (model.Ticket, error) {
	const q = `SELECT ` + ticketColumns + ` FROM tickets WHERE payment_intent_id = ?`
	return scanTicket(r.db.QueryRowContext(ctx, q, intentID))
}

// GetByID returns a single ticket by primary key.
func (r *TicketRepo) GetByID(ctx context.Context, ticketID uint64) (model.Ticket, error) {
	const q = `SELECT ` + ticketColumns + ` FROM tickets WHERE id = ?`
	return scanTicket(r.db.QueryRowContext(ctx, q, ticketID))
}

// MarkUsed flips the used flag at check-in. The guard in the statement
// makes a second check-in report ErrTicketUsed instead of silently
// succeeding.
func (r *TicketRepo) MarkUsed(ctx context.Context, ticketID uint64) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE tickets SET used = 1 WHERE id = ? AND used = 0`, ticketID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		var used bool
		err := r.db.QueryRowContext(ctx, `SELECT used FROM tickets WHERE id = ?`, ticketID).Scan(&used)
		if err == sql.ErrNoRows {
			return ErrTicketNotFound
		}
		if err != nil {
			return err
		}
		return ErrTicketUsed
	}
	return nil
}

// ListByUser returns all tickets belonging to a user, newest first.
func (r *TicketRepo) ListByUser(ctx context.Context, userID uint64) ([]model.Ticket, error) {
	const q = `SELECT ` + ticketColumns + ` FROM tickets WHERE user_id = ? ORDER BY created_at DESC`
	rows, err := r.db.QueryContext(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Ticket
	for rows.Next() {
		var (
			t      model.Ticket
			intent sql.NullString
		)
		if err := rows.Scan(&t.ID, &t.UserID, &t.ActivityID, &t.Quantity, &t.Code, &intent, &t.Used, &t.CreatedAt); err != nil {
			return nil, err
		}
		if intent.Valid {
			v := intent.String
			t.PaymentIntentID = &v
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
