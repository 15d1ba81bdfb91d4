package models

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

type BookingStatus string

const (
	BookingPending   BookingStatus = "Pending"
	BookingConfirmed BookingStatus = "Confirmed"
	BookingCancelled BookingStatus = "Cancelled"
)

// Active bookings hold seats.
func (s BookingStatus) Active() bool {
	return s == BookingPending || s == BookingConfirmed
}

type Booking struct {
	bun.BaseModel `bun:"table:bookings,alias:b"`

	ID         int64           `bun:"id,pk,autoincrement" json:"id"`
	EventID    int64           `bun:"event_id,notnull" json:"event_id"`
	CustomerID int64           `bun:"customer_id,notnull" json:"customer_id"`
	Quantity   int             `bun:"quantity,notnull" json:"quantity"`
	TotalPrice decimal.Decimal `bun:"total_price,type:numeric(10,2),notnull" json:"total_price"`
	Code       string          `bun:"code,notnull,unique" json:"code"`
	Status     BookingStatus   `bun:"status,notnull,type:varchar(16)" json:"status"`
	CreatedAt  time.Time       `bun:"created_at,notnull,default:current_timestamp" json:"created_at"`
	UpdatedAt  time.Time       `bun:"updated_at,notnull,default:current_timestamp" json:"updated_at"`

	Seats []*Seat `bun:"rel:has-many,join:id=booking_id" json:"seats,omitempty"`
}
