package api

import (
	"time"

	"github.com/shopspring/decimal"

	"ms-reservation/internal/models"
)

type registerRequest struct {
	Name     string `json:"name" validate:"required,max=100"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8,max=72"`
	Role     string `json:"role" validate:"omitempty,oneof=Customer Admin"`
	Phone    string `json:"phone" validate:"omitempty,max=32"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type loginResponse struct {
	Token string       `json:"token"`
	User  *models.User `json:"user"`
}

type updateMeRequest struct {
	Name     *string `json:"name" validate:"omitempty,min=1,max=100"`
	Phone    *string `json:"phone" validate:"omitempty,max=32"`
	Password *string `json:"password" validate:"omitempty,min=8,max=72"`
}

type createEventRequest struct {
	Name        string          `json:"name" validate:"required,max=200"`
	Description string          `json:"description" validate:"max=2000"`
	Date        time.Time       `json:"date" validate:"required"`
	Venue       string          `json:"venue" validate:"required,max=200"`
	Capacity    int             `json:"capacity" validate:"required,min=1,max=100000"`
	TicketPrice decimal.Decimal `json:"ticket_price"`
}

type updateEventRequest struct {
	Name        *string          `json:"name" validate:"omitempty,min=1,max=200"`
	Description *string          `json:"description" validate:"omitempty,max=2000"`
	Date        *time.Time       `json:"date"`
	Venue       *string          `json:"venue" validate:"omitempty,min=1,max=200"`
	TicketPrice *decimal.Decimal `json:"ticket_price"`
}

type generateSeatsRequest struct {
	Count int `json:"count" validate:"required,min=1,max=10000"`
}

type createBookingRequest struct {
	EventID  int64 `json:"event_id" validate:"required,min=1"`
	Quantity int   `json:"quantity" validate:"required,min=1"`
}

type payRequest struct {
	Amount decimal.Decimal `json:"amount"`
	Method string          `json:"method" validate:"required"`
}

type verifyTicketRequest struct {
	Token string `json:"token" validate:"required"`
}

type eventView struct {
	*models.Event
	Free int `json:"free"`
	Held int `json:"held"`
}

type bookingView struct {
	*models.Booking
	Payment *models.Payment `json:"payment,omitempty"`
}

type paymentResult struct {
	Payment *models.Payment `json:"payment"`
	Booking *models.Booking `json:"booking"`
}
