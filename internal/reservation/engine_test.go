package reservation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"

	"ms-reservation/internal/apperrors"
	"ms-reservation/internal/config"
	"ms-reservation/internal/database/dbtest"
	"ms-reservation/internal/inventory"
	"ms-reservation/internal/ledger"
	"ms-reservation/internal/logger"
	"ms-reservation/internal/metrics"
	"ms-reservation/internal/models"
	"ms-reservation/internal/payments"
)

type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) Publish(ctx context.Context, topic, key string, value any) error {
	args := m.Called(topic, key, value)
	return args.Error(0)
}

func (m *MockPublisher) Close() error {
	args := m.Called()
	return args.Error(0)
}

var testTopics = config.TopicConfig{
	BookingCreated:   "booking.created",
	BookingConfirmed: "booking.confirmed",
	BookingCancelled: "booking.cancelled",
	PaymentRefunded:  "payment.refunded",
}

type fixture struct {
	db        *bun.DB
	engine    *Engine
	publisher *MockPublisher
	metrics   *metrics.Metrics
	pool      *inventory.Pool
	admin     *models.User
	event     *models.Event
}

func newEngine(db *bun.DB, codes ledger.CodeSource, pub *MockPublisher, m *metrics.Metrics) *Engine {
	log := logger.Discard()
	pool := inventory.NewPool(log)
	return New(db, Options{
		Pool:      pool,
		Ledger:    ledger.New(pool, codes, log),
		Payments:  payments.NewRecorder(log),
		Publisher: pub,
		Topics:    testTopics,
		Metrics:   m,
		Logger:    log,
	})
}

func setup(t *testing.T, capacity int, price string) *fixture {
	db := dbtest.NewSQLite(t)
	pub := new(MockPublisher)
	pub.On("Publish", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	m := metrics.New()
	admin := dbtest.SeedUser(t, db, models.RoleAdmin)

	return &fixture{
		db:        db,
		engine:    newEngine(db, ledger.CodeGenerator{Prefix: "TKT-", Length: 6}, pub, m),
		publisher: pub,
		metrics:   m,
		pool:      inventory.NewPool(logger.Discard()),
		admin:     admin,
		event:     dbtest.SeedEvent(t, db, admin.ID, capacity, price),
	}
}

func (f *fixture) customer(t *testing.T) *models.User {
	return dbtest.SeedUser(t, f.db, models.RoleCustomer)
}

func (f *fixture) freeSeats(t *testing.T) int {
	free, _, err := f.pool.Counts(context.Background(), f.db, f.event.ID)
	require.NoError(t, err)
	return free
}

// assertConsistent checks held seats match the quantity of active bookings.
func (f *fixture) assertConsistent(t *testing.T) {
	t.Helper()
	assert.Equal(t, dbtest.ActiveQuantity(t, f.db, f.event.ID), dbtest.HeldSeats(t, f.db, f.event.ID),
		"held seats must equal the quantity of pending and confirmed bookings")
}

func TestScenario_BookPayRefund(t *testing.T) {
	f := setup(t, 3, "15.00")
	ctx := context.Background()
	alice, bob := f.customer(t), f.customer(t)

	a, err := f.engine.CreateBooking(ctx, alice.ID, f.event.ID, 2)
	require.NoError(t, err)
	assert.Equal(t, models.BookingPending, a.Status)
	assert.Equal(t, 1, f.freeSeats(t))

	_, err = f.engine.CreateBooking(ctx, bob.ID, f.event.ID, 2)
	assert.ErrorIs(t, err, apperrors.ErrInsufficientInventory)
	assert.Equal(t, 1, f.freeSeats(t))

	payment, confirmed, err := f.engine.Pay(ctx, a.Code, a.TotalPrice, models.MethodCreditCard)
	require.NoError(t, err)
	assert.Equal(t, models.BookingConfirmed, confirmed.Status)
	assert.Equal(t, models.PaymentSuccess, payment.Status)
	f.assertConsistent(t)

	refunded, cancelled, err := f.engine.Refund(ctx, payment.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentRefunded, refunded.Status)
	assert.Equal(t, models.BookingCancelled, cancelled.Status)
	assert.Equal(t, 3, f.freeSeats(t))
	f.assertConsistent(t)

	// the refunded payment is kept
	kept, err := f.engine.Payment(ctx, payment.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentRefunded, kept.Status)

	f.publisher.AssertCalled(t, "Publish", "booking.created", a.Code, mock.Anything)
	f.publisher.AssertCalled(t, "Publish", "booking.confirmed", a.Code, mock.Anything)
	f.publisher.AssertCalled(t, "Publish", "payment.refunded", a.Code, mock.Anything)
	f.publisher.AssertCalled(t, "Publish", "booking.cancelled", a.Code, mock.Anything)
}

func TestCreateBooking_Validation(t *testing.T) {
	f := setup(t, 3, "10")
	ctx := context.Background()
	c := f.customer(t)

	_, err := f.engine.CreateBooking(ctx, c.ID, f.event.ID, 0)
	assert.ErrorIs(t, err, apperrors.ErrValidation)

	_, err = f.engine.CreateBooking(ctx, f.admin.ID, f.event.ID, 1)
	assert.ErrorIs(t, err, apperrors.ErrValidation, "admins cannot book")

	_, err = f.engine.CreateBooking(ctx, 9999, f.event.ID, 1)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	_, err = f.engine.CreateBooking(ctx, c.ID, 9999, 1)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	f.engine.maxQuantity = 2
	_, err = f.engine.CreateBooking(ctx, c.ID, f.event.ID, 3)
	assert.ErrorIs(t, err, apperrors.ErrValidation)

	assert.Equal(t, 3, f.freeSeats(t))
}

func TestCreateBooking_InsufficientChangesNothing(t *testing.T) {
	f := setup(t, 2, "10")
	ctx := context.Background()

	_, err := f.engine.CreateBooking(ctx, f.customer(t).ID, f.event.ID, 3)
	assert.ErrorIs(t, err, apperrors.ErrInsufficientInventory)

	n, err := f.db.NewSelect().Model((*models.Booking)(nil)).Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, 2, f.freeSeats(t))
	f.publisher.AssertNotCalled(t, "Publish", "booking.created", mock.Anything, mock.Anything)
}

func TestCreateBooking_ConcurrentRequestsNeverOversell(t *testing.T) {
	f := setup(t, 9, "10")
	ctx := context.Background()

	const workers = 10
	customers := make([]*models.User, workers)
	for i := range customers {
		customers[i] = f.customer(t)
	}

	var (
		wg           sync.WaitGroup
		mu           sync.Mutex
		successCount int
		soldOut      int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(c *models.User) {
			defer wg.Done()
			_, err := f.engine.CreateBooking(ctx, c.ID, f.event.ID, 2)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successCount++
			case errors.Is(err, apperrors.ErrInsufficientInventory):
				soldOut++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(customers[i])
	}
	wg.Wait()

	assert.Equal(t, 4, successCount, "9 seats fit four bookings of two")
	assert.Equal(t, 6, soldOut)
	assert.Equal(t, 1, f.freeSeats(t))
	f.assertConsistent(t)

	var seats []*models.Seat
	require.NoError(t, f.db.NewSelect().Model(&seats).Where("s.is_held = ?", true).Scan(ctx))
	seen := map[int64]bool{}
	for _, s := range seats {
		assert.False(t, seen[s.ID], "seat %s held twice", s.Label)
		seen[s.ID] = true
	}
}

func TestCreateBooking_RetriesCodeCollision(t *testing.T) {
	f := setup(t, 5, "10")
	ctx := context.Background()
	c := f.customer(t)

	first, err := f.engine.CreateBooking(ctx, c.ID, f.event.ID, 1)
	require.NoError(t, err)

	// every draw of the first attempt collides, the second attempt gets a fresh code
	var mu sync.Mutex
	draws := 0
	codes := ledger.CodeFunc(func() (string, error) {
		mu.Lock()
		defer mu.Unlock()
		draws++
		if draws <= 5 {
			return first.Code, nil
		}
		return fmt.Sprintf("TKT-NEW%03d", draws), nil
	})
	f.engine = newEngine(f.db, codes, f.publisher, f.metrics)

	b, err := f.engine.CreateBooking(ctx, c.ID, f.event.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, "TKT-NEW006", b.Code)
	f.assertConsistent(t)
}

func TestCreateBooking_GivesUpAfterRetries(t *testing.T) {
	f := setup(t, 5, "10")
	ctx := context.Background()
	c := f.customer(t)
	first, err := f.engine.CreateBooking(ctx, c.ID, f.event.ID, 1)
	require.NoError(t, err)

	f.engine = newEngine(f.db, ledger.CodeFunc(func() (string, error) { return first.Code, nil }), f.publisher, f.metrics)
	_, err = f.engine.CreateBooking(ctx, c.ID, f.event.ID, 1)
	assert.ErrorIs(t, err, apperrors.ErrInternal, "collisions are never surfaced as DuplicateKey")
	f.assertConsistent(t)
}

func TestCancel(t *testing.T) {
	f := setup(t, 3, "10")
	ctx := context.Background()
	b, err := f.engine.CreateBooking(ctx, f.customer(t).ID, f.event.ID, 2)
	require.NoError(t, err)

	cancelled, err := f.engine.Cancel(ctx, b.Code)
	require.NoError(t, err)
	assert.Equal(t, models.BookingCancelled, cancelled.Status)
	assert.Equal(t, 3, f.freeSeats(t))

	_, err = f.engine.Cancel(ctx, b.Code)
	assert.ErrorIs(t, err, apperrors.ErrInvalidState)
	assert.Equal(t, 3, f.freeSeats(t))

	_, err = f.engine.Cancel(ctx, "TKT-000000")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	f.assertConsistent(t)
}

func TestCancelConfirmedIsRejected(t *testing.T) {
	f := setup(t, 3, "10")
	ctx := context.Background()
	b, err := f.engine.CreateBooking(ctx, f.customer(t).ID, f.event.ID, 1)
	require.NoError(t, err)
	_, _, err = f.engine.Pay(ctx, b.Code, b.TotalPrice, models.MethodCash)
	require.NoError(t, err)

	_, err = f.engine.Cancel(ctx, b.Code)
	assert.ErrorIs(t, err, apperrors.ErrInvalidState)
	assert.Equal(t, 2, f.freeSeats(t))
}

func TestPay_Failures(t *testing.T) {
	f := setup(t, 3, "10")
	ctx := context.Background()
	b, err := f.engine.CreateBooking(ctx, f.customer(t).ID, f.event.ID, 2)
	require.NoError(t, err)

	_, _, err = f.engine.Pay(ctx, "TKT-UNKNWN", decimal.NewFromInt(20), models.MethodCash)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	_, _, err = f.engine.Pay(ctx, b.Code, decimal.RequireFromString("19.99"), models.MethodCash)
	assert.ErrorIs(t, err, apperrors.ErrInsufficientPayment)

	// nothing was written by the failed payment
	_, err = f.engine.PaymentFor(ctx, b.ID)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	got, err := f.engine.Booking(ctx, b.Code)
	require.NoError(t, err)
	assert.Equal(t, models.BookingPending, got.Status)

	_, err = f.engine.Cancel(ctx, b.Code)
	require.NoError(t, err)
	_, _, err = f.engine.Pay(ctx, b.Code, decimal.NewFromInt(20), models.MethodCash)
	assert.ErrorIs(t, err, apperrors.ErrInvalidState)
}

func TestPay_Overpayment(t *testing.T) {
	f := setup(t, 3, "10")
	ctx := context.Background()
	b, err := f.engine.CreateBooking(ctx, f.customer(t).ID, f.event.ID, 1)
	require.NoError(t, err)

	p, _, err := f.engine.Pay(ctx, b.Code, decimal.NewFromInt(50), models.MethodEWallet)
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(50).Equal(p.Amount))

	_, _, err = f.engine.Pay(ctx, b.Code, decimal.NewFromInt(50), models.MethodEWallet)
	assert.ErrorIs(t, err, apperrors.ErrInvalidState)
}

func TestRefund_Failures(t *testing.T) {
	f := setup(t, 3, "10")
	ctx := context.Background()

	_, _, err := f.engine.Refund(ctx, 12345)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	b, err := f.engine.CreateBooking(ctx, f.customer(t).ID, f.event.ID, 1)
	require.NoError(t, err)
	p, _, err := f.engine.Pay(ctx, b.Code, b.TotalPrice, models.MethodTransfer)
	require.NoError(t, err)

	_, _, err = f.engine.Refund(ctx, p.ID)
	require.NoError(t, err)
	_, _, err = f.engine.Refund(ctx, p.ID)
	assert.ErrorIs(t, err, apperrors.ErrInvalidState)
	f.assertConsistent(t)
}

func TestCancelAndPayRace(t *testing.T) {
	for i := 0; i < 10; i++ {
		f := setup(t, 2, "10")
		ctx := context.Background()
		b, err := f.engine.CreateBooking(ctx, f.customer(t).ID, f.event.ID, 1)
		require.NoError(t, err)

		var wg sync.WaitGroup
		var cancelErr, payErr error
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, cancelErr = f.engine.Cancel(ctx, b.Code)
		}()
		go func() {
			defer wg.Done()
			_, _, payErr = f.engine.Pay(ctx, b.Code, b.TotalPrice, models.MethodCash)
		}()
		wg.Wait()

		if cancelErr == nil {
			assert.ErrorIs(t, payErr, apperrors.ErrInvalidState)
		} else {
			assert.NoError(t, payErr)
			assert.ErrorIs(t, cancelErr, apperrors.ErrInvalidState)
		}
		f.assertConsistent(t)
	}
}

func TestPublishFailureKeepsCommittedState(t *testing.T) {
	f := setup(t, 3, "10")
	ctx := context.Background()
	pub := new(MockPublisher)
	pub.On("Publish", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("broker down"))
	f.engine.publisher = pub

	b, err := f.engine.CreateBooking(ctx, f.customer(t).ID, f.event.ID, 2)
	require.NoError(t, err)

	got, err := f.engine.Booking(ctx, b.Code)
	require.NoError(t, err)
	assert.Len(t, got.Seats, 2)
	pub.AssertNumberOfCalls(t, "Publish", 1)
}

func TestTotalPriceFrozen(t *testing.T) {
	f := setup(t, 3, "10.00")
	ctx := context.Background()
	b, err := f.engine.CreateBooking(ctx, f.customer(t).ID, f.event.ID, 2)
	require.NoError(t, err)

	_, err = f.db.NewUpdate().Model((*models.Event)(nil)).
		Set("ticket_price = ?", decimal.NewFromInt(40)).
		Where("id = ?", f.event.ID).
		Exec(ctx)
	require.NoError(t, err)

	got, err := f.engine.Booking(ctx, b.Code)
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(20).Equal(got.TotalPrice))

	// paying the old total is enough
	_, _, err = f.engine.Pay(ctx, b.Code, decimal.NewFromInt(20), models.MethodCash)
	assert.NoError(t, err)
}

func TestGenerateSeats(t *testing.T) {
	f := setup(t, 1, "10")
	ctx := context.Background()
	c := f.customer(t)

	_, err := f.engine.CreateBooking(ctx, c.ID, f.event.ID, 2)
	assert.ErrorIs(t, err, apperrors.ErrInsufficientInventory)

	seats, err := f.engine.GenerateSeats(ctx, f.event.ID, 2)
	require.NoError(t, err)
	assert.Equal(t, "S-0002", seats[0].Label)

	_, err = f.engine.CreateBooking(ctx, c.ID, f.event.ID, 2)
	require.NoError(t, err)
	assert.Equal(t, 1, f.freeSeats(t))

	_, err = f.engine.GenerateSeats(ctx, 404, 1)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestExpirePending(t *testing.T) {
	f := setup(t, 4, "10")
	ctx := context.Background()
	c := f.customer(t)

	stale, err := f.engine.CreateBooking(ctx, c.ID, f.event.ID, 2)
	require.NoError(t, err)
	fresh, err := f.engine.CreateBooking(ctx, c.ID, f.event.ID, 1)
	require.NoError(t, err)
	paid, err := f.engine.CreateBooking(ctx, c.ID, f.event.ID, 1)
	require.NoError(t, err)
	_, _, err = f.engine.Pay(ctx, paid.Code, paid.TotalPrice, models.MethodCash)
	require.NoError(t, err)

	_, err = f.db.NewUpdate().Model((*models.Booking)(nil)).
		Set("created_at = ?", time.Now().UTC().Add(-time.Hour)).
		Where("code IN (?)", bun.In([]string{stale.Code, paid.Code})).
		Exec(ctx)
	require.NoError(t, err)

	n, err := f.engine.ExpirePending(ctx, 30*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	for code, want := range map[string]models.BookingStatus{
		stale.Code: models.BookingCancelled,
		fresh.Code: models.BookingPending,
		paid.Code:  models.BookingConfirmed,
	} {
		got, err := f.engine.Booking(ctx, code)
		require.NoError(t, err)
		assert.Equal(t, want, got.Status, code)
	}
	f.assertConsistent(t)
}

func TestRunExpirySweeperDisabled(t *testing.T) {
	f := setup(t, 1, "10")
	done := make(chan struct{})
	go func() {
		f.engine.RunExpirySweeper(context.Background(), 0, time.Millisecond)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper with zero ttl should return immediately")
	}
}

func TestRunExpirySweeperStopsWithContext(t *testing.T) {
	f := setup(t, 1, "10")
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		f.engine.RunExpirySweeper(ctx, time.Hour, 5*time.Millisecond)
		close(done)
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}
