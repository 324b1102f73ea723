package model

import "time"

// Activity represents a bookable event as stored in the `activities`
// table. The seat column tracks remaining capacity and is the only
// field mutated after creation: it is decremented exactly once per
// issued ticket, inside the same transaction that inserts the ticket,
// and may never go below zero.
//
// Fields:
//  ID          – primary key identifier.
//  OwnerID     – user who organizes the activity.
//  Title       – display title shown to buyers.
//  Description – free-form description.
//  Location    – where the activity takes place.
//  PriceCents  – price per seat in minor currency units; zero means free.
//  Seat        – remaining seats (>= 0).
//  StartsAt    – when the activity begins.
//  EndsAt      – when the activity ends.
//  CreatedAt   – creation timestamp.
//  UpdatedAt   – last update timestamp.
type Activity struct {
	ID          uint64    `json:"id"`           // activities.id
	OwnerID     uint64    `json:"owner_id"`     // activities.owner_id
	Title       string    `json:"title"`        // activities.title
	Description string    `json:"description"`  // activities.description
	Location    string    `json:"location"`     // activities.location
	PriceCents  int64     `json:"price_cents"`  // activities.price_cents
	Seat        int64     `json:"seat"`         // activities.seat
	StartsAt    time.Time `json:"starts_at"`    // activities.starts_at
	EndsAt      time.Time `json:"ends_at"`      // activities.ends_at
	CreatedAt   time.Time `json:"created_at"`   // activities.created_at
	UpdatedAt   time.Time `json:"updated_at"`   // activities.updated_at
}
