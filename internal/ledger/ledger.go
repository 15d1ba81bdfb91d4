// Package ledger keeps booking records and their lifecycle:
// Pending -> Confirmed on payment, Pending -> Cancelled on cancel and
// Confirmed -> Cancelled on refund. Nothing leaves Cancelled.
//
// Every mutating method runs on the caller's transaction. Status changes
// are conditional updates on the expected current status, so of two racing
// transitions exactly one succeeds and the other sees InvalidState.
package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"ms-reservation/internal/apperrors"
	"ms-reservation/internal/database"
	"ms-reservation/internal/inventory"
	"ms-reservation/internal/logger"
	"ms-reservation/internal/models"
)

const codeAttempts = 5

type Ledger struct {
	pool  *inventory.Pool
	codes CodeSource
	log   *logger.Logger
}

func New(pool *inventory.Pool, codes CodeSource, log *logger.Logger) *Ledger {
	return &Ledger{pool: pool, codes: codes, log: log}
}

// CreateBooking holds quantity seats of the event for the customer and
// records a Pending booking priced at the event's current ticket price.
// A DuplicateKey error means the minted code collided at insert time; the
// caller retries the whole transaction.
func (l *Ledger) CreateBooking(ctx context.Context, tx bun.IDB, customer *models.User, eventID int64, quantity int) (*models.Booking, []*models.Seat, error) {
	const op = "ledger.CreateBooking"
	if customer == nil || customer.Role != models.RoleCustomer {
		return nil, nil, apperrors.Validation(op, "only customers can book tickets")
	}
	if quantity <= 0 {
		return nil, nil, apperrors.Validation(op, "quantity must be positive, got %d", quantity)
	}

	ev := new(models.Event)
	if err := tx.NewSelect().Model(ev).Where("e.id = ?", eventID).Scan(ctx); err != nil {
		err = database.Translate(op, err)
		if apperrors.KindOf(err) == apperrors.KindNotFound {
			return nil, nil, apperrors.NotFound(op, "event %d not found", eventID)
		}
		return nil, nil, err
	}

	code, err := l.mintCode(ctx, tx)
	if err != nil {
		return nil, nil, err
	}

	now := time.Now().UTC()
	b := &models.Booking{
		EventID:    ev.ID,
		CustomerID: customer.ID,
		Quantity:   quantity,
		TotalPrice: ev.TicketPrice.Mul(decimalInt(quantity)),
		Code:       code,
		Status:     models.BookingPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if _, err := tx.NewInsert().Model(b).Exec(ctx); err != nil {
		return nil, nil, database.Translate(op, err)
	}

	seats, err := l.pool.Allocate(ctx, tx, ev.ID, b.ID, quantity)
	if err != nil {
		return nil, nil, err
	}
	b.Seats = seats
	return b, seats, nil
}

// mintCode draws codes until one is not in use yet.
func (l *Ledger) mintCode(ctx context.Context, db bun.IDB) (string, error) {
	const op = "ledger.mintCode"
	for i := 0; i < codeAttempts; i++ {
		code, err := l.codes.Generate()
		if err != nil {
			return "", apperrors.Internal(op, err)
		}
		exists, err := db.NewSelect().Model((*models.Booking)(nil)).Where("code = ?", code).Exists(ctx)
		if err != nil {
			return "", database.Translate(op, err)
		}
		if !exists {
			return code, nil
		}
		l.log.Warn("BOOKING", fmt.Sprintf("Booking code %s already taken, drawing again", code))
	}
	return "", apperrors.DuplicateKey(op, "no free booking code after %d attempts", codeAttempts)
}

// Cancel moves a Pending booking to Cancelled and frees its seats.
func (l *Ledger) Cancel(ctx context.Context, tx bun.IDB, code string) (*models.Booking, error) {
	const op = "ledger.Cancel"
	b, err := l.lockByCode(ctx, tx, op, code)
	if err != nil {
		return nil, err
	}
	switch b.Status {
	case models.BookingPending:
	case models.BookingConfirmed:
		return nil, apperrors.InvalidState(op, "booking %s is confirmed; request a refund instead", code)
	default:
		return nil, apperrors.InvalidState(op, "booking %s is already %s", code, b.Status)
	}

	if err := l.transition(ctx, tx, op, b, models.BookingPending, models.BookingCancelled); err != nil {
		return nil, err
	}
	if _, err := l.pool.Release(ctx, tx, b.ID); err != nil {
		return nil, err
	}
	return b, nil
}

// Confirm moves a Pending booking to Confirmed. Only the payment flow calls it.
func (l *Ledger) Confirm(ctx context.Context, tx bun.IDB, code string) (*models.Booking, error) {
	const op = "ledger.Confirm"
	b, err := l.lockByCode(ctx, tx, op, code)
	if err != nil {
		return nil, err
	}
	if b.Status != models.BookingPending {
		return nil, apperrors.InvalidState(op, "booking %s is %s, only pending bookings can be confirmed", code, b.Status)
	}
	if err := l.transition(ctx, tx, op, b, models.BookingPending, models.BookingConfirmed); err != nil {
		return nil, err
	}
	return b, nil
}

// Revoke cancels a Confirmed booking and frees its seats. Used by refunds.
func (l *Ledger) Revoke(ctx context.Context, tx bun.IDB, bookingID int64) (*models.Booking, error) {
	const op = "ledger.Revoke"
	b := new(models.Booking)
	q := tx.NewSelect().Model(b).Where("b.id = ?", bookingID)
	if err := database.ForUpdate(tx, q).Scan(ctx); err != nil {
		return nil, notFound(op, err, "booking %d not found", bookingID)
	}
	if b.Status != models.BookingConfirmed {
		return nil, apperrors.InvalidState(op, "booking %s is %s, only confirmed bookings can be revoked", b.Code, b.Status)
	}
	if err := l.transition(ctx, tx, op, b, models.BookingConfirmed, models.BookingCancelled); err != nil {
		return nil, err
	}
	if _, err := l.pool.Release(ctx, tx, b.ID); err != nil {
		return nil, err
	}
	return b, nil
}

// transition applies from -> to only if the row is still in from.
func (l *Ledger) transition(ctx context.Context, tx bun.IDB, op string, b *models.Booking, from, to models.BookingStatus) error {
	now := time.Now().UTC()
	res, err := tx.NewUpdate().Model((*models.Booking)(nil)).
		Set("status = ?", to).
		Set("updated_at = ?", now).
		Where("id = ?", b.ID).
		Where("status = ?", from).
		Exec(ctx)
	if err != nil {
		return database.Translate(op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return apperrors.Internal(op, err)
	}
	if n != 1 {
		return apperrors.InvalidState(op, "booking %s is no longer %s", b.Code, from)
	}
	b.Status = to
	b.UpdatedAt = now
	l.log.LogBooking(string(to), b.Code, fmt.Sprintf("%s -> %s", from, to))
	return nil
}

// LockByCode loads a booking by code, row locked where supported.
func (l *Ledger) LockByCode(ctx context.Context, tx bun.IDB, code string) (*models.Booking, error) {
	return l.lockByCode(ctx, tx, "ledger.LockByCode", code)
}

func (l *Ledger) lockByCode(ctx context.Context, tx bun.IDB, op, code string) (*models.Booking, error) {
	b := new(models.Booking)
	q := tx.NewSelect().Model(b).Where("b.code = ?", code)
	if err := database.ForUpdate(tx, q).Scan(ctx); err != nil {
		return nil, notFound(op, err, "booking %s not found", code)
	}
	return b, nil
}

func notFound(op string, err error, format string, args ...any) error {
	err = database.Translate(op, err)
	if apperrors.KindOf(err) == apperrors.KindNotFound {
		return apperrors.NotFound(op, format, args...)
	}
	return err
}
