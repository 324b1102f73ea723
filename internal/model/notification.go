package model

import "time"

// Notification is a row in the `notifications` table. Reservation
// notifications are written best-effort when a ticket is issued; a
// failed insert is logged and never fails the reservation.
type Notification struct {
	ID        uint64    `json:"id"`         // notifications.id
	FromID    uint64    `json:"from_id"`    // notifications.from_id (the buyer)
	ToID      uint64    `json:"to_id"`      // notifications.to_id (the activity owner)
	Content   string    `json:"content"`    // notifications.content
	CreatedAt time.Time `json:"created_at"` // notifications.created_at
}
