// Package inventory owns seat state for every event.
//
// Locking contract: Allocate and Generate must run inside the caller's
// transaction while the caller holds the per-event lock (see package lock).
// On PostgreSQL both additionally take row locks with SELECT ... FOR UPDATE
// on the event row and, for Allocate, on the chosen free seat rows, so two
// service instances without a shared lock still cannot hand out the same
// seat. The statement that marks seats held is guarded by is_held = false
// and must touch exactly the requested number of rows.
package inventory

import (
	"context"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"ms-reservation/internal/apperrors"
	"ms-reservation/internal/database"
	"ms-reservation/internal/logger"
	"ms-reservation/internal/models"
)

// Pool is stateless; all state lives in the seats table.
type Pool struct {
	log *logger.Logger
}

func NewPool(log *logger.Logger) *Pool {
	return &Pool{log: log}
}

// SeatLabel formats the label of the n-th seat of an event.
func SeatLabel(n int) string {
	return fmt.Sprintf("S-%04d", n)
}

// lockEvent loads the event, row locked where supported.
func lockEvent(ctx context.Context, tx bun.IDB, op string, eventID int64) (*models.Event, error) {
	ev := new(models.Event)
	q := tx.NewSelect().Model(ev).Where("e.id = ?", eventID)
	if err := database.ForUpdate(tx, q).Scan(ctx); err != nil {
		err = database.Translate(op, err)
		if apperrors.KindOf(err) == apperrors.KindNotFound {
			return nil, apperrors.NotFound(op, "event %d does not exist", eventID)
		}
		return nil, err
	}
	return ev, nil
}

// Allocate holds quantity free seats of the event for bookingID, lowest
// seat number first. It never holds fewer than quantity seats: when not
// enough are free it fails with InsufficientInventory and changes nothing.
func (p *Pool) Allocate(ctx context.Context, tx bun.IDB, eventID, bookingID int64, quantity int) ([]*models.Seat, error) {
	const op = "inventory.Allocate"
	if quantity <= 0 {
		return nil, apperrors.Validation(op, "quantity must be positive, got %d", quantity)
	}
	if _, err := lockEvent(ctx, tx, op, eventID); err != nil {
		return nil, err
	}

	var seats []*models.Seat
	q := tx.NewSelect().Model(&seats).
		Where("s.event_id = ?", eventID).
		Where("s.is_held = ?", false).
		OrderExpr("s.number ASC").
		Limit(quantity)
	if err := database.ForUpdate(tx, q).Scan(ctx); err != nil {
		return nil, database.Translate(op, err)
	}
	if len(seats) < quantity {
		return nil, apperrors.InsufficientInventory(op, "requested %d seats but only %d are free", quantity, len(seats))
	}

	ids := make([]int64, len(seats))
	for i, s := range seats {
		ids[i] = s.ID
	}
	res, err := tx.NewUpdate().Model((*models.Seat)(nil)).
		Set("is_held = ?", true).
		Set("booking_id = ?", bookingID).
		Where("id IN (?)", bun.In(ids)).
		Where("is_held = ?", false).
		Exec(ctx)
	if err != nil {
		return nil, database.Translate(op, err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return nil, apperrors.Internal(op, err)
	} else if int(n) != quantity {
		// another writer claimed a seat between select and update
		return nil, apperrors.InsufficientInventory(op, "seats were claimed concurrently, %d of %d held", n, quantity)
	}

	for _, s := range seats {
		s.IsHeld = true
		id := bookingID
		s.BookingID = &id
	}
	p.log.LogSeat("ALLOCATE", eventID, fmt.Sprintf("%d seats held for booking %d", quantity, bookingID))
	return seats, nil
}

// Release frees every seat held by the booking and returns how many were
// freed. Releasing a booking that holds nothing is a no-op.
func (p *Pool) Release(ctx context.Context, tx bun.IDB, bookingID int64) (int, error) {
	const op = "inventory.Release"
	res, err := tx.NewUpdate().Model((*models.Seat)(nil)).
		Set("is_held = ?", false).
		Set("booking_id = NULL").
		Where("booking_id = ?", bookingID).
		Exec(ctx)
	if err != nil {
		return 0, database.Translate(op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, apperrors.Internal(op, err)
	}
	if n > 0 {
		p.log.Debug("SEAT", fmt.Sprintf("Released %d seats of booking %d", n, bookingID))
	}
	return int(n), nil
}

// Generate appends count seats to the event, numbering on from the highest
// existing seat, and grows the event's capacity to match.
func (p *Pool) Generate(ctx context.Context, tx bun.IDB, eventID int64, count int) ([]*models.Seat, error) {
	const op = "inventory.Generate"
	if count <= 0 {
		return nil, apperrors.Validation(op, "count must be positive, got %d", count)
	}
	if _, err := lockEvent(ctx, tx, op, eventID); err != nil {
		return nil, err
	}

	var highest int
	err := tx.NewSelect().Model((*models.Seat)(nil)).
		ColumnExpr("COALESCE(MAX(number), 0)").
		Where("event_id = ?", eventID).
		Scan(ctx, &highest)
	if err != nil {
		return nil, database.Translate(op, err)
	}

	seats := make([]*models.Seat, 0, count)
	for n := highest + 1; n <= highest+count; n++ {
		seats = append(seats, &models.Seat{EventID: eventID, Number: n, Label: SeatLabel(n)})
	}
	if _, err := tx.NewInsert().Model(&seats).Exec(ctx); err != nil {
		return nil, database.Translate(op, err)
	}

	_, err = tx.NewUpdate().Model((*models.Event)(nil)).
		Set("capacity = capacity + ?", count).
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", eventID).
		Exec(ctx)
	if err != nil {
		return nil, database.Translate(op, err)
	}

	p.log.LogSeat("GENERATE", eventID, fmt.Sprintf("%d seats added (%s..%s)", count, seats[0].Label, seats[len(seats)-1].Label))
	return seats, nil
}

// Counts reports free and held seats of an event.
func (p *Pool) Counts(ctx context.Context, db bun.IDB, eventID int64) (free, held int, err error) {
	const op = "inventory.Counts"
	var rows []struct {
		IsHeld bool `bun:"is_held"`
		N      int  `bun:"n"`
	}
	err = db.NewSelect().Model((*models.Seat)(nil)).
		Column("is_held").
		ColumnExpr("COUNT(*) AS n").
		Where("event_id = ?", eventID).
		Group("is_held").
		Scan(ctx, &rows)
	if err != nil {
		return 0, 0, database.Translate(op, err)
	}
	for _, r := range rows {
		if r.IsHeld {
			held = r.N
		} else {
			free = r.N
		}
	}
	return free, held, nil
}

// Seats lists an event's seats in label order.
func (p *Pool) Seats(ctx context.Context, db bun.IDB, eventID int64) ([]*models.Seat, error) {
	var seats []*models.Seat
	err := db.NewSelect().Model(&seats).
		Where("s.event_id = ?", eventID).
		OrderExpr("s.number ASC").
		Scan(ctx)
	return seats, database.Translate("inventory.Seats", err)
}

// HeldBy lists the seats currently held by a booking.
func (p *Pool) HeldBy(ctx context.Context, db bun.IDB, bookingID int64) ([]*models.Seat, error) {
	var seats []*models.Seat
	err := db.NewSelect().Model(&seats).
		Where("s.booking_id = ?", bookingID).
		OrderExpr("s.number ASC").
		Scan(ctx)
	return seats, database.Translate("inventory.HeldBy", err)
}
