package models

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

// Event is soft deleted so cancelled bookings and refunded payments keep
// a valid foreign key after the event is removed.
type Event struct {
	bun.BaseModel `bun:"table:events,alias:e"`

	ID          int64           `bun:"id,pk,autoincrement" json:"id"`
	AdminID     int64           `bun:"admin_id,notnull" json:"admin_id"`
	Name        string          `bun:"name,notnull" json:"name"`
	Description string          `bun:"description" json:"description,omitempty"`
	Date        time.Time       `bun:"date,notnull" json:"date"`
	Venue       string          `bun:"venue,notnull" json:"venue"`
	Capacity    int             `bun:"capacity,notnull" json:"capacity"`
	TicketPrice decimal.Decimal `bun:"ticket_price,type:numeric(10,2),notnull" json:"ticket_price"`
	CreatedAt   time.Time       `bun:"created_at,notnull,default:current_timestamp" json:"created_at"`
	UpdatedAt   time.Time       `bun:"updated_at,notnull,default:current_timestamp" json:"updated_at"`
	DeletedAt   time.Time       `bun:"deleted_at,soft_delete,nullzero" json:"-"`
}
