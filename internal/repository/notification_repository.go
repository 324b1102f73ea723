package repository

import (
	"context"
	"database/sql"

	"github.com/joinspot/reservation-api/internal/model"
)

// NotificationRepo persists notifications. Inserts are fire-and-forget
// from the caller's point of view: the issuer logs failures and keeps
// the reservation.
type NotificationRepo struct{ DB *sql.DB }

func NewNotificationRepo(db *sql.DB) *NotificationRepo { return &NotificationRepo{DB: db} }

// Create inserts a notification row and populates the generated ID.
func (r *NotificationRepo) Create(ctx context.Context, n *model.Notification) error {
	res, err := r.DB.ExecContext(ctx,
		"INSERT INTO notifications (from_id, to_id, content) VALUES (?,?,?)",
		n.FromID, n.ToID, n.Content)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	n.ID = uint64(id)
	return nil
}

// ListForUser returns notifications addressed to a user, newest first.
func (r *NotificationRepo) ListForUser(ctx context.Context, userID uint64) ([]model.Notification, error) {
	rows, err := r.DB.QueryContext(ctx,
		"SELECT id, from_id, to_id, content, created_at FROM notifications WHERE to_id=? ORDER BY created_at DESC",
		userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Notification
	for rows.Next() {
		var n model.Notification
		if err := rows.Scan(&n.ID, &n.FromID, &n.ToID, &n.Content, &n.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}
