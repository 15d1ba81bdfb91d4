// Package reservation is the only entry point that mutates seat, booking
// and payment state. Each operation is one transaction: it commits as a
// whole or leaves nothing behind.
package reservation

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"

	"ms-reservation/internal/apperrors"
	"ms-reservation/internal/config"
	"ms-reservation/internal/database"
	"ms-reservation/internal/inventory"
	"ms-reservation/internal/kafka"
	"ms-reservation/internal/ledger"
	"ms-reservation/internal/lock"
	"ms-reservation/internal/logger"
	"ms-reservation/internal/metrics"
	"ms-reservation/internal/models"
	"ms-reservation/internal/payments"
)

type Engine struct {
	db        *bun.DB
	pool      *inventory.Pool
	ledger    *ledger.Ledger
	payments  *payments.Recorder
	locker    lock.Locker
	publisher kafka.Publisher
	topics    config.TopicConfig
	metrics   *metrics.Metrics
	log       *logger.Logger

	codeRetries int
	maxQuantity int
}

type Options struct {
	Pool        *inventory.Pool
	Ledger      *ledger.Ledger
	Payments    *payments.Recorder
	Locker      lock.Locker
	Publisher   kafka.Publisher
	Topics      config.TopicConfig
	Metrics     *metrics.Metrics
	Logger      *logger.Logger
	CodeRetries int
	MaxQuantity int
}

func New(db *bun.DB, opts Options) *Engine {
	e := &Engine{
		db:          db,
		pool:        opts.Pool,
		ledger:      opts.Ledger,
		payments:    opts.Payments,
		locker:      opts.Locker,
		publisher:   opts.Publisher,
		topics:      opts.Topics,
		metrics:     opts.Metrics,
		log:         opts.Logger,
		codeRetries: opts.CodeRetries,
		maxQuantity: opts.MaxQuantity,
	}
	if e.log == nil {
		e.log = logger.Discard()
	}
	if e.locker == nil {
		e.locker = lock.NewKeyedMutex()
	}
	if e.publisher == nil {
		e.publisher = kafka.Nop{Logger: e.log}
	}
	if e.codeRetries < 1 {
		e.codeRetries = 5
	}
	return e
}

// EventLockKey is the Locker key guarding an event's seat pool.
func EventLockKey(eventID int64) string {
	return "event:" + strconv.FormatInt(eventID, 10)
}

// lockEvent takes the per-event lock. It is always acquired before the
// transaction begins so a transaction never waits on it while holding a
// connection.
func (e *Engine) lockEvent(ctx context.Context, op string, eventID int64) (func(), error) {
	started := time.Now()
	release, err := e.locker.Acquire(ctx, EventLockKey(eventID))
	e.metrics.ObserveLockWait(time.Since(started))
	if err != nil {
		return nil, apperrors.Internal(op, fmt.Errorf("lock event %d: %w", eventID, err))
	}
	return release, nil
}

// CreateBooking holds quantity seats of the event for the customer and
// returns the Pending booking with its code.
func (e *Engine) CreateBooking(ctx context.Context, customerID, eventID int64, quantity int) (booking *models.Booking, err error) {
	const op = "reservation.CreateBooking"
	defer e.observe("create_booking", time.Now(), &err)

	if quantity <= 0 {
		return nil, apperrors.Validation(op, "quantity must be positive, got %d", quantity)
	}
	if e.maxQuantity > 0 && quantity > e.maxQuantity {
		return nil, apperrors.Validation(op, "at most %d tickets per booking", e.maxQuantity)
	}
	customer, err := e.user(ctx, customerID)
	if err != nil {
		return nil, err
	}

	release, err := e.lockEvent(ctx, op, eventID)
	if err != nil {
		return nil, err
	}
	defer release()

	var seats []*models.Seat
	for attempt := 1; ; attempt++ {
		err = database.RunInTx(ctx, e.db, func(ctx context.Context, tx bun.Tx) error {
			var err error
			booking, seats, err = e.ledger.CreateBooking(ctx, tx, customer, eventID, quantity)
			return err
		})
		if apperrors.KindOf(err) != apperrors.KindDuplicateKey || attempt >= e.codeRetries {
			break
		}
		// the code collided at insert; the transaction rolled back so retry cleanly
		e.metrics.CodeRetry()
		e.log.Warn("BOOKING", fmt.Sprintf("Booking code collision, retrying (attempt %d/%d)", attempt+1, e.codeRetries))
	}
	if err != nil {
		if apperrors.KindOf(err) == apperrors.KindDuplicateKey {
			return nil, apperrors.Wrap(apperrors.KindInternal, op, err, "could not mint a unique booking code")
		}
		return nil, err
	}

	e.log.LogBooking("CREATE", booking.Code, fmt.Sprintf("%d seats held on event %d for customer %d", quantity, eventID, customerID))
	e.refreshSeatGauge(ctx, eventID)
	e.publish(ctx, e.topics.BookingCreated, booking.Code, models.NewBookingMessage("booking.created", booking, seats))
	return booking, nil
}

// Cancel cancels a Pending booking and frees its seats. Confirmed bookings
// must be refunded instead.
func (e *Engine) Cancel(ctx context.Context, code string) (booking *models.Booking, err error) {
	defer e.observe("cancel", time.Now(), &err)

	err = database.RunInTx(ctx, e.db, func(ctx context.Context, tx bun.Tx) error {
		var err error
		booking, err = e.ledger.Cancel(ctx, tx, code)
		return err
	})
	if err != nil {
		return nil, err
	}

	e.refreshSeatGauge(ctx, booking.EventID)
	e.publish(ctx, e.topics.BookingCancelled, booking.Code, models.NewBookingMessage("booking.cancelled", booking, nil))
	return booking, nil
}

// Pay records a successful payment and confirms the booking together.
func (e *Engine) Pay(ctx context.Context, code string, amount decimal.Decimal, method models.PaymentMethod) (payment *models.Payment, booking *models.Booking, err error) {
	const op = "reservation.Pay"
	defer e.observe("pay", time.Now(), &err)

	err = database.RunInTx(ctx, e.db, func(ctx context.Context, tx bun.Tx) error {
		b, err := e.ledger.LockByCode(ctx, tx, code)
		if err != nil {
			return err
		}
		if b.Status != models.BookingPending {
			return apperrors.InvalidState(op, "booking %s is %s, only pending bookings can be paid", code, b.Status)
		}
		if payment, err = e.payments.Record(ctx, tx, b, amount, method); err != nil {
			return err
		}
		booking, err = e.ledger.Confirm(ctx, tx, code)
		return err
	})
	if err != nil {
		return nil, nil, err
	}

	e.publish(ctx, e.topics.BookingConfirmed, booking.Code, models.NewBookingMessage("booking.confirmed", booking, nil))
	return payment, booking, nil
}

// Refund marks the payment Refunded, cancels its booking and frees the seats.
func (e *Engine) Refund(ctx context.Context, paymentID int64) (payment *models.Payment, booking *models.Booking, err error) {
	defer e.observe("refund", time.Now(), &err)

	err = database.RunInTx(ctx, e.db, func(ctx context.Context, tx bun.Tx) error {
		var err error
		if payment, err = e.payments.MarkRefunded(ctx, tx, paymentID); err != nil {
			return err
		}
		booking, err = e.ledger.Revoke(ctx, tx, payment.BookingID)
		return err
	})
	if err != nil {
		return nil, nil, err
	}

	e.refreshSeatGauge(ctx, booking.EventID)
	e.publish(ctx, e.topics.PaymentRefunded, booking.Code, models.PaymentMessage{
		Type:        "payment.refunded",
		PaymentID:   payment.ID,
		BookingID:   booking.ID,
		BookingCode: booking.Code,
		Amount:      payment.Amount,
		Status:      payment.Status,
		OccurredAt:  time.Now().UTC(),
	})
	e.publish(ctx, e.topics.BookingCancelled, booking.Code, models.NewBookingMessage("booking.cancelled", booking, nil))
	return payment, booking, nil
}

// GenerateSeats appends count seats to the event's pool.
func (e *Engine) GenerateSeats(ctx context.Context, eventID int64, count int) (seats []*models.Seat, err error) {
	const op = "reservation.GenerateSeats"
	defer e.observe("generate_seats", time.Now(), &err)

	release, err := e.lockEvent(ctx, op, eventID)
	if err != nil {
		return nil, err
	}
	defer release()

	err = database.RunInTx(ctx, e.db, func(ctx context.Context, tx bun.Tx) error {
		var err error
		seats, err = e.pool.Generate(ctx, tx, eventID, count)
		return err
	})
	if err != nil {
		return nil, err
	}
	e.refreshSeatGauge(ctx, eventID)
	return seats, nil
}

// Booking loads a booking with its held seats.
func (e *Engine) Booking(ctx context.Context, code string) (*models.Booking, error) {
	return e.ledger.GetByCode(ctx, e.db, code)
}

func (e *Engine) BookingsOf(ctx context.Context, customerID int64) ([]*models.Booking, error) {
	return e.ledger.ListByCustomer(ctx, e.db, customerID)
}

func (e *Engine) EventBookings(ctx context.Context, eventID int64) ([]*models.Booking, error) {
	return e.ledger.ListByEvent(ctx, e.db, eventID)
}

func (e *Engine) Payment(ctx context.Context, id int64) (*models.Payment, error) {
	return e.payments.Get(ctx, e.db, id)
}

func (e *Engine) PaymentFor(ctx context.Context, bookingID int64) (*models.Payment, error) {
	return e.payments.GetByBooking(ctx, e.db, bookingID)
}

func (e *Engine) user(ctx context.Context, id int64) (*models.User, error) {
	const op = "reservation.user"
	u := new(models.User)
	if err := e.db.NewSelect().Model(u).Where("u.id = ?", id).Scan(ctx); err != nil {
		err = database.Translate(op, err)
		if apperrors.KindOf(err) == apperrors.KindNotFound {
			return nil, apperrors.NotFound(op, "user %d not found", id)
		}
		return nil, err
	}
	return u, nil
}

func (e *Engine) observe(op string, started time.Time, err *error) {
	e.metrics.ObserveOperation(op, started, *err)
	if *err != nil && apperrors.KindOf(*err) == apperrors.KindInternal {
		e.log.Error("RESERVATION", fmt.Sprintf("%s failed: %v", op, *err))
	}
}

func (e *Engine) refreshSeatGauge(ctx context.Context, eventID int64) {
	if e.metrics == nil {
		return
	}
	_, held, err := e.pool.Counts(ctx, e.db, eventID)
	if err != nil {
		e.log.Warn("SEAT", fmt.Sprintf("Could not count seats of event %d: %v", eventID, err))
		return
	}
	e.metrics.SetSeatsHeld(eventID, held)
}

// publish runs after commit. A failure is logged and counted; the committed
// state stands.
func (e *Engine) publish(ctx context.Context, topic, key string, msg any) {
	if topic == "" {
		return
	}
	if err := e.publisher.Publish(ctx, topic, key, msg); err != nil {
		e.metrics.PublishFailed(topic)
		e.log.Error("KAFKA", fmt.Sprintf("Failed to publish %s for %s: %v", topic, key, err))
	}
}
