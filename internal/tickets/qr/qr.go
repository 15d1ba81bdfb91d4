// Package qr renders e-tickets for confirmed bookings as QR codes whose
// payload is encrypted so a scanner holding the key can trust it.
package qr

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"io"
	"time"

	"github.com/skip2/go-qrcode"

	"ms-reservation/internal/apperrors"
	"ms-reservation/internal/models"
)

// Ticket is the encrypted QR payload.
type Ticket struct {
	Code       string    `json:"code"`
	CustomerID int64     `json:"customer_id"`
	EventID    int64     `json:"event_id"`
	Quantity   int       `json:"quantity"`
	Seats      []string  `json:"seats,omitempty"`
	IssuedAt   time.Time `json:"issued_at"`
}

type Generator struct {
	aead cipher.AEAD
	size int
}

// NewGenerator derives a 32 byte AES key from secret.
func NewGenerator(secret string) (*Generator, error) {
	if secret == "" {
		return nil, apperrors.Validation("qr.NewGenerator", "QR secret key is empty")
	}
	key := sha256.Sum256([]byte(secret))
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &Generator{aead: aead, size: 256}, nil
}

// TicketFor builds the payload of a Confirmed booking.
func TicketFor(b *models.Booking) (Ticket, error) {
	if b.Status != models.BookingConfirmed {
		return Ticket{}, apperrors.InvalidState("qr.TicketFor", "booking %s is %s, tickets are issued for Confirmed bookings only", b.Code, b.Status)
	}
	t := Ticket{
		Code:       b.Code,
		CustomerID: b.CustomerID,
		EventID:    b.EventID,
		Quantity:   b.Quantity,
		IssuedAt:   time.Now().UTC().Truncate(time.Second),
	}
	for _, s := range b.Seats {
		t.Seats = append(t.Seats, s.Label)
	}
	return t, nil
}

// PNG returns the QR image for a Confirmed booking.
func (g *Generator) PNG(b *models.Booking) ([]byte, error) {
	t, err := TicketFor(b)
	if err != nil {
		return nil, err
	}
	token, err := g.Seal(t)
	if err != nil {
		return nil, err
	}
	png, err := qrcode.Encode(token, qrcode.Medium, g.size)
	if err != nil {
		return nil, apperrors.Internal("qr.PNG", err)
	}
	return png, nil
}

// Seal encrypts a ticket into the URL-safe string carried by the QR code.
func (g *Generator) Seal(t Ticket) (string, error) {
	data, err := json.Marshal(t)
	if err != nil {
		return "", apperrors.Internal("qr.Seal", err)
	}
	nonce := make([]byte, g.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", apperrors.Internal("qr.Seal", err)
	}
	sealed := g.aead.Seal(nonce, nonce, data, nil)
	return base64.URLEncoding.EncodeToString(sealed), nil
}

// Open decrypts a scanned token. Tampered or foreign tokens are a
// ValidationError.
func (g *Generator) Open(token string) (Ticket, error) {
	const op = "qr.Open"
	raw, err := base64.URLEncoding.DecodeString(token)
	if err != nil {
		return Ticket{}, apperrors.Validation(op, "ticket token is not valid base64")
	}
	n := g.aead.NonceSize()
	if len(raw) < n {
		return Ticket{}, apperrors.Validation(op, "ticket token is too short")
	}
	data, err := g.aead.Open(nil, raw[:n], raw[n:], nil)
	if err != nil {
		return Ticket{}, apperrors.Validation(op, "ticket token failed verification")
	}
	var t Ticket
	if err := json.Unmarshal(data, &t); err != nil {
		return Ticket{}, apperrors.Validation(op, "ticket payload is malformed: %v", err)
	}
	return t, nil
}
