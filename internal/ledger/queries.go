package ledger

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"

	"ms-reservation/internal/database"
	"ms-reservation/internal/models"
)

func decimalInt(n int) decimal.Decimal {
	return decimal.NewFromInt(int64(n))
}

// GetByCode loads a booking with the seats it currently holds.
func (l *Ledger) GetByCode(ctx context.Context, db bun.IDB, code string) (*models.Booking, error) {
	const op = "ledger.GetByCode"
	b := new(models.Booking)
	err := db.NewSelect().Model(b).
		Relation("Seats", func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.OrderExpr("s.number ASC")
		}).
		Where("b.code = ?", code).
		Scan(ctx)
	if err != nil {
		return nil, notFound(op, err, "booking %s not found", code)
	}
	return b, nil
}

func (l *Ledger) GetByID(ctx context.Context, db bun.IDB, id int64) (*models.Booking, error) {
	const op = "ledger.GetByID"
	b := new(models.Booking)
	if err := db.NewSelect().Model(b).Where("b.id = ?", id).Scan(ctx); err != nil {
		return nil, notFound(op, err, "booking %d not found", id)
	}
	return b, nil
}

func (l *Ledger) ListByCustomer(ctx context.Context, db bun.IDB, customerID int64) ([]*models.Booking, error) {
	var bookings []*models.Booking
	err := db.NewSelect().Model(&bookings).
		Where("b.customer_id = ?", customerID).
		OrderExpr("b.id DESC").
		Scan(ctx)
	return bookings, database.Translate("ledger.ListByCustomer", err)
}

func (l *Ledger) ListByEvent(ctx context.Context, db bun.IDB, eventID int64) ([]*models.Booking, error) {
	var bookings []*models.Booking
	err := db.NewSelect().Model(&bookings).
		Where("b.event_id = ?", eventID).
		OrderExpr("b.id ASC").
		Scan(ctx)
	return bookings, database.Translate("ledger.ListByEvent", err)
}

// CountActive counts Pending and Confirmed bookings of an event.
func (l *Ledger) CountActive(ctx context.Context, db bun.IDB, eventID int64) (int, error) {
	n, err := db.NewSelect().Model((*models.Booking)(nil)).
		Where("event_id = ?", eventID).
		Where("status IN (?)", bun.In([]models.BookingStatus{models.BookingPending, models.BookingConfirmed})).
		Count(ctx)
	return n, database.Translate("ledger.CountActive", err)
}

// PendingBefore returns codes of Pending bookings created before cutoff.
func (l *Ledger) PendingBefore(ctx context.Context, db bun.IDB, cutoff time.Time, limit int) ([]string, error) {
	var codes []string
	err := db.NewSelect().Model((*models.Booking)(nil)).
		Column("code").
		Where("status = ?", models.BookingPending).
		Where("created_at < ?", cutoff).
		OrderExpr("id ASC").
		Limit(limit).
		Scan(ctx, &codes)
	return codes, database.Translate("ledger.PendingBefore", err)
}
