package dbtest

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"

	"ms-reservation/internal/models"
)

var seq int64

// SeedUser inserts a user with a unique email.
func SeedUser(t testing.TB, db bun.IDB, role models.Role) *models.User {
	t.Helper()
	n := atomic.AddInt64(&seq, 1)
	u := &models.User{
		Name:         fmt.Sprintf("%s %d", role, n),
		Email:        fmt.Sprintf("user%d@example.com", n),
		PasswordHash: "not-a-real-hash",
		Role:         role,
	}
	_, err := db.NewInsert().Model(u).Exec(context.Background())
	require.NoError(t, err)
	return u
}

// SeedEvent inserts an event with capacity free seats labelled S-0001 onward.
func SeedEvent(t testing.TB, db bun.IDB, adminID int64, capacity int, price string) *models.Event {
	t.Helper()
	ctx := context.Background()
	ev := &models.Event{
		AdminID:     adminID,
		Name:        "Test Event",
		Date:        time.Date(2026, 12, 31, 20, 0, 0, 0, time.UTC),
		Venue:       "Main Hall",
		Capacity:    capacity,
		TicketPrice: decimal.RequireFromString(price),
	}
	_, err := db.NewInsert().Model(ev).Exec(ctx)
	require.NoError(t, err)

	if capacity > 0 {
		seats := make([]*models.Seat, 0, capacity)
		for i := 1; i <= capacity; i++ {
			seats = append(seats, &models.Seat{EventID: ev.ID, Number: i, Label: fmt.Sprintf("S-%04d", i)})
		}
		_, err = db.NewInsert().Model(&seats).Exec(ctx)
		require.NoError(t, err)
	}
	return ev
}

// SeedBooking inserts a booking row without touching seats.
func SeedBooking(t testing.TB, db bun.IDB, eventID, customerID int64, quantity int, status models.BookingStatus) *models.Booking {
	t.Helper()
	n := atomic.AddInt64(&seq, 1)
	b := &models.Booking{
		EventID:    eventID,
		CustomerID: customerID,
		Quantity:   quantity,
		TotalPrice: decimal.NewFromInt(int64(quantity) * 10),
		Code:       fmt.Sprintf("TST-%06d", n),
		Status:     status,
	}
	_, err := db.NewInsert().Model(b).Exec(context.Background())
	require.NoError(t, err)
	return b
}

// HeldSeats counts held seats for an event.
func HeldSeats(t testing.TB, db bun.IDB, eventID int64) int {
	t.Helper()
	n, err := db.NewSelect().Model((*models.Seat)(nil)).
		Where("event_id = ?", eventID).
		Where("is_held = ?", true).
		Count(context.Background())
	require.NoError(t, err)
	return n
}

// ActiveQuantity sums quantity over Pending and Confirmed bookings of an event.
func ActiveQuantity(t testing.TB, db bun.IDB, eventID int64) int {
	t.Helper()
	var total int
	err := db.NewSelect().Model((*models.Booking)(nil)).
		ColumnExpr("COALESCE(SUM(quantity), 0)").
		Where("event_id = ?", eventID).
		Where("status IN (?)", bun.In([]models.BookingStatus{models.BookingPending, models.BookingConfirmed})).
		Scan(context.Background(), &total)
	require.NoError(t, err)
	return total
}
