package qr

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ms-reservation/internal/apperrors"
	"ms-reservation/internal/models"
)

var pngMagic = []byte{0x89, 'P', 'N', 'G'}

func confirmed() *models.Booking {
	return &models.Booking{
		ID:         7,
		EventID:    3,
		CustomerID: 11,
		Quantity:   2,
		Code:       "TKT-ABC123",
		Status:     models.BookingConfirmed,
		Seats:      []*models.Seat{{Label: "S-0001"}, {Label: "S-0002"}},
	}
}

func TestPNGForConfirmedBooking(t *testing.T) {
	g, err := NewGenerator("qr-secret")
	require.NoError(t, err)

	png, err := g.PNG(confirmed())
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(png, pngMagic))
}

func TestPNGRefusesUnconfirmed(t *testing.T) {
	g, err := NewGenerator("qr-secret")
	require.NoError(t, err)

	for _, status := range []models.BookingStatus{models.BookingPending, models.BookingCancelled} {
		b := confirmed()
		b.Status = status
		_, err := g.PNG(b)
		assert.ErrorIs(t, err, apperrors.ErrInvalidState, string(status))
	}
}

func TestSealOpen(t *testing.T) {
	g, err := NewGenerator("qr-secret")
	require.NoError(t, err)

	ticket, err := TicketFor(confirmed())
	require.NoError(t, err)
	token, err := g.Seal(ticket)
	require.NoError(t, err)

	got, err := g.Open(token)
	require.NoError(t, err)
	assert.Equal(t, ticket.Code, got.Code)
	assert.Equal(t, []string{"S-0001", "S-0002"}, got.Seats)
	assert.True(t, ticket.IssuedAt.Equal(got.IssuedAt))

	other, err := NewGenerator("another-secret")
	require.NoError(t, err)
	_, err = other.Open(token)
	assert.ErrorIs(t, err, apperrors.ErrValidation)

	_, err = g.Open("not base64 !")
	assert.ErrorIs(t, err, apperrors.ErrValidation)
}

func TestNewGeneratorNeedsSecret(t *testing.T) {
	_, err := NewGenerator("")
	assert.ErrorIs(t, err, apperrors.ErrValidation)
}
