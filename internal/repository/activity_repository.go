package repository

import (
	"context"
	"database/sql"

	"github.com/joinspot/reservation-api/internal/model"
)

// ActivityRepo provides data access to the `activities` table. It owns
// the inventory ledger: the seat column is only ever decremented here,
// through ReserveSeatsTx, so that every mutation goes through the same
// conditional statement.
type ActivityRepo struct {
	db *sql.DB
}

// NewActivityRepo returns a new ActivityRepo bound to the given database.
func NewActivityRepo(db *sql.DB) *ActivityRepo { return &ActivityRepo{db: db} }

const activityColumns = `id, owner_id, title, description, location, price_cents, seat, starts_at, ends_at, created_at, updated_at`

func scanActivity(row *sql.Row) (model.Activity, error) {
	var a model.Activity
	err := row.Scan(&a.ID, &a.OwnerID, &a.Title, &a.Description, &a.Location,
		&a.PriceCents, &a.Seat, &a.StartsAt, &a.EndsAt, &a.CreatedAt, &a.UpdatedAt)
	if err == sql.ErrNoRows {
		return model.Activity{}, ErrActivityNotFound
	}
	return a, err
}

// GetByID fetches a single activity. ErrActivityNotFound is returned
// when no row matches.
func (r *ActivityRepo) GetByID(ctx context.Context, activityID uint64) (model.Activity, error) {
	const q = `SELECT ` + activityColumns + ` FROM activities WHERE id = ?`
	return scanActivity(r.db.QueryRowContext(ctx, q, activityID))
}

// ReserveSeatsTx atomically decrements an activity's remaining seats by
// quantity within the provided transaction. The precondition (enough
// seats left) is expressed in the same statement as the mutation, so
// concurrent reservations on the same row can never interleave between
// a read and a write: the row lock taken by the UPDATE serializes them
// and the `seat >= ?` guard rejects the loser. When zero rows are
// affected the activity is re-read inside the same transaction to
// distinguish a missing activity from a sold-out one.
//
// On success it returns the number of seats remaining after the
// decrement. The caller must commit or roll back the transaction; the
// ticket insert belongs in the same transaction so that a decrement is
// never observable without its ticket.
func (r *ActivityRepo) ReserveSeatsTx(ctx context.Context, tx *sql.Tx, activityID uint64, quantity int64) (int64, error) {
	res, err := tx.ExecContext(ctx,
		`UPDATE activities SET seat = seat - ? WHERE id = ? AND seat >= ?`,
		quantity, activityID, quantity)
	if err != nil {
		return 0, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if affected == 0 {
		// Either the activity is gone or it has fewer seats than requested.
		var seat int64
		err := tx.QueryRowContext(ctx, `SELECT seat FROM activities WHERE id = ?`, activityID).Scan(&seat)
		if err == sql.ErrNoRows {
			return 0, ErrActivityNotFound
		}
		if err != nil {
			return 0, err
		}
		return seat, ErrInsufficientSeats
	}
	var remaining int64
	if err := tx.QueryRowContext(ctx, `SELECT seat FROM activities WHERE id = ?`, activityID).Scan(&remaining); err != nil {
		return 0, err
	}
	return remaining, nil
}

// Create inserts a new activity and populates the generated ID on the
// provided record. Seat is the total capacity at creation time.
func (r *ActivityRepo) Create(ctx context.Context, a *model.Activity) error {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO activities (owner_id, title, description, location, price_cents, seat, starts_at, ends_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		a.OwnerID, a.Title, a.Description, a.Location, a.PriceCents, a.Seat, a.StartsAt.UTC(), a.EndsAt.UTC())
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	a.ID = uint64(id)
	// Query back the full row to populate timestamps and defaults.
	full, err := r.GetByID(ctx, a.ID)
	if err != nil {
		return err
	}
	*a = full
	return nil
}

// List returns all activities ordered by start time. Listing and
// filtering beyond this belong to the surrounding platform, not the
// reservation core.
func (r *ActivityRepo) List(ctx context.Context) ([]model.Activity, error) {
	const q = `SELECT ` + activityColumns + ` FROM activities ORDER BY starts_at`
	rows, err := r.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Activity
	for rows.Next() {
		var a model.Activity
		if err := rows.Scan(&a.ID, &a.OwnerID, &a.Title, &a.Description, &a.Location,
			&a.PriceCents, &a.Seat, &a.StartsAt, &a.EndsAt, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
