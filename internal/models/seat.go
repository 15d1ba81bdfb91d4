package models

import "github.com/uptrace/bun"

// Seat is free when BookingID is nil and held otherwise. IsHeld mirrors
// BookingID and the two are always written together.
type Seat struct {
	bun.BaseModel `bun:"table:seats,alias:s"`

	ID        int64  `bun:"id,pk,autoincrement" json:"id"`
	EventID   int64  `bun:"event_id,notnull,unique:seats_event_number" json:"event_id"`
	Number    int    `bun:"number,notnull,unique:seats_event_number" json:"number"`
	Label     string `bun:"label,notnull" json:"label"`
	IsHeld    bool   `bun:"is_held,notnull" json:"is_held"`
	BookingID *int64 `bun:"booking_id" json:"booking_id,omitempty"`
}
