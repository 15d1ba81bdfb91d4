package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// BookingMessage is the payload published for booking lifecycle changes.
type BookingMessage struct {
	Type       string          `json:"type"`
	Code       string          `json:"code"`
	BookingID  int64           `json:"booking_id"`
	EventID    int64           `json:"event_id"`
	CustomerID int64           `json:"customer_id"`
	Quantity   int             `json:"quantity"`
	TotalPrice decimal.Decimal `json:"total_price"`
	Status     BookingStatus   `json:"status"`
	SeatLabels []string        `json:"seat_labels,omitempty"`
	OccurredAt time.Time       `json:"occurred_at"`
}

// PaymentMessage is published when a payment changes status.
type PaymentMessage struct {
	Type        string          `json:"type"`
	PaymentID   int64           `json:"payment_id"`
	BookingID   int64           `json:"booking_id"`
	BookingCode string          `json:"booking_code"`
	Amount      decimal.Decimal `json:"amount"`
	Status      PaymentStatus   `json:"status"`
	OccurredAt  time.Time       `json:"occurred_at"`
}

func NewBookingMessage(kind string, b *Booking, seats []*Seat) BookingMessage {
	labels := make([]string, 0, len(seats))
	for _, s := range seats {
		labels = append(labels, s.Label)
	}
	return BookingMessage{
		Type:       kind,
		Code:       b.Code,
		BookingID:  b.ID,
		EventID:    b.EventID,
		CustomerID: b.CustomerID,
		Quantity:   b.Quantity,
		TotalPrice: b.TotalPrice,
		Status:     b.Status,
		SeatLabels: labels,
		OccurredAt: time.Now().UTC(),
	}
}
