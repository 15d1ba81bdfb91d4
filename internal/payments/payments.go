// Package payments stores at most one payment per booking. A payment is
// Success when recorded and may later become Refunded; it is never deleted.
package payments

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"

	"ms-reservation/internal/apperrors"
	"ms-reservation/internal/database"
	"ms-reservation/internal/logger"
	"ms-reservation/internal/models"
)

type Recorder struct {
	log *logger.Logger
}

func NewRecorder(log *logger.Logger) *Recorder {
	return &Recorder{log: log}
}

// Record stores a successful payment for the booking. The amount must
// cover the booking total.
func (r *Recorder) Record(ctx context.Context, tx bun.IDB, booking *models.Booking, amount decimal.Decimal, method models.PaymentMethod) (*models.Payment, error) {
	const op = "payments.Record"
	if amount.IsNegative() {
		return nil, apperrors.Validation(op, "amount cannot be negative")
	}
	if amount.LessThan(booking.TotalPrice) {
		return nil, apperrors.InsufficientPayment(op, "amount %s is below the booking total %s", amount.StringFixed(2), booking.TotalPrice.StringFixed(2))
	}
	if _, err := models.ParsePaymentMethod(string(method)); err != nil {
		return nil, err
	}

	p := &models.Payment{
		BookingID:      booking.ID,
		Amount:         amount,
		Method:         method,
		TransactionRef: transactionRef(),
		Status:         models.PaymentSuccess,
		PaidAt:         time.Now().UTC(),
	}
	if _, err := tx.NewInsert().Model(p).Exec(ctx); err != nil {
		err = database.Translate(op, err)
		if apperrors.KindOf(err) == apperrors.KindDuplicateKey {
			return nil, apperrors.InvalidState(op, "booking %s already has a payment", booking.Code)
		}
		return nil, err
	}

	r.log.LogPayment("RECORD", p.ID, fmt.Sprintf("%s via %s for booking %s", amount.StringFixed(2), method, booking.Code))
	return p, nil
}

// MarkRefunded moves a Success payment to Refunded.
func (r *Recorder) MarkRefunded(ctx context.Context, tx bun.IDB, paymentID int64) (*models.Payment, error) {
	const op = "payments.MarkRefunded"
	p := new(models.Payment)
	q := tx.NewSelect().Model(p).Where("p.id = ?", paymentID)
	if err := database.ForUpdate(tx, q).Scan(ctx); err != nil {
		return nil, notFound(op, err, paymentID)
	}
	if p.Status != models.PaymentSuccess {
		return nil, apperrors.InvalidState(op, "payment %d is already %s", paymentID, p.Status)
	}

	now := time.Now().UTC()
	res, err := tx.NewUpdate().Model((*models.Payment)(nil)).
		Set("status = ?", models.PaymentRefunded).
		Set("refunded_at = ?", now).
		Where("id = ?", paymentID).
		Where("status = ?", models.PaymentSuccess).
		Exec(ctx)
	if err != nil {
		return nil, database.Translate(op, err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return nil, apperrors.Internal(op, err)
	} else if n != 1 {
		return nil, apperrors.InvalidState(op, "payment %d was refunded concurrently", paymentID)
	}

	p.Status = models.PaymentRefunded
	p.RefundedAt = now
	r.log.LogPayment("REFUND", p.ID, "marked refunded")
	return p, nil
}

func (r *Recorder) Get(ctx context.Context, db bun.IDB, id int64) (*models.Payment, error) {
	const op = "payments.Get"
	p := new(models.Payment)
	if err := db.NewSelect().Model(p).Where("p.id = ?", id).Scan(ctx); err != nil {
		return nil, notFound(op, err, id)
	}
	return p, nil
}

func (r *Recorder) GetByBooking(ctx context.Context, db bun.IDB, bookingID int64) (*models.Payment, error) {
	const op = "payments.GetByBooking"
	p := new(models.Payment)
	if err := db.NewSelect().Model(p).Where("p.booking_id = ?", bookingID).Scan(ctx); err != nil {
		err = database.Translate(op, err)
		if apperrors.KindOf(err) == apperrors.KindNotFound {
			return nil, apperrors.NotFound(op, "booking %d has no payment", bookingID)
		}
		return nil, err
	}
	return p, nil
}

func transactionRef() string {
	return "TXN-" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
}

func notFound(op string, err error, id int64) error {
	err = database.Translate(op, err)
	if apperrors.KindOf(err) == apperrors.KindNotFound {
		return apperrors.NotFound(op, "payment %d not found", id)
	}
	return err
}
