// Package events manages the event catalogue. Seat pools are created and
// removed together with their event.
package events

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"

	"ms-reservation/internal/apperrors"
	"ms-reservation/internal/database"
	"ms-reservation/internal/inventory"
	"ms-reservation/internal/ledger"
	"ms-reservation/internal/lock"
	"ms-reservation/internal/logger"
	"ms-reservation/internal/models"
	"ms-reservation/internal/reservation"
)

type Service struct {
	db     *bun.DB
	pool   *inventory.Pool
	ledger *ledger.Ledger
	locker lock.Locker
	log    *logger.Logger
}

// NewService needs the same Locker as the reservation engine so deletion
// cannot interleave with a booking on the same event.
func NewService(db *bun.DB, pool *inventory.Pool, l *ledger.Ledger, locker lock.Locker, log *logger.Logger) *Service {
	if locker == nil {
		locker = lock.NewKeyedMutex()
	}
	if log == nil {
		log = logger.Discard()
	}
	return &Service{db: db, pool: pool, ledger: l, locker: locker, log: log}
}

type Draft struct {
	Name        string
	Description string
	Date        time.Time
	Venue       string
	Capacity    int
	TicketPrice decimal.Decimal
}

// Availability summarises an event's seat pool.
type Availability struct {
	EventID  int64 `json:"event_id"`
	Capacity int   `json:"capacity"`
	Free     int   `json:"free"`
	Held     int   `json:"held"`
}

func (s *Service) Create(ctx context.Context, adminID int64, d Draft) (*models.Event, error) {
	const op = "events.Create"
	if err := validateDraft(op, &d); err != nil {
		return nil, err
	}
	if d.Capacity < 1 {
		return nil, apperrors.Validation(op, "capacity must be at least 1, got %d", d.Capacity)
	}

	ev := &models.Event{
		AdminID:     adminID,
		Name:        d.Name,
		Description: d.Description,
		Date:        d.Date.UTC(),
		Venue:       d.Venue,
		TicketPrice: d.TicketPrice,
	}
	err := database.RunInTx(ctx, s.db, func(ctx context.Context, tx bun.Tx) error {
		admin := new(models.User)
		if err := tx.NewSelect().Model(admin).Where("u.id = ?", adminID).Scan(ctx); err != nil {
			return notFound(op, err, "user %d not found", adminID)
		}
		if admin.Role != models.RoleAdmin {
			return apperrors.Validation(op, "user %d is a %s, only admins create events", adminID, admin.Role)
		}

		if _, err := tx.NewInsert().Model(ev).Exec(ctx); err != nil {
			return database.Translate(op, err)
		}
		// Generate grows capacity from zero to the requested size.
		if _, err := s.pool.Generate(ctx, tx, ev.ID, d.Capacity); err != nil {
			return err
		}
		ev.Capacity = d.Capacity
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("EVENT", fmt.Sprintf("Event %d %q created by admin %d with %d seats", ev.ID, ev.Name, adminID, ev.Capacity))
	return ev, nil
}

// Changes holds optional event edits; nil fields are left alone. Capacity
// only grows, through seat generation.
type Changes struct {
	Name        *string
	Description *string
	Date        *time.Time
	Venue       *string
	TicketPrice *decimal.Decimal
}

// Update edits event details. Bookings keep the total they were created
// with when the price changes.
func (s *Service) Update(ctx context.Context, id int64, c Changes) (*models.Event, error) {
	const op = "events.Update"
	ev, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	d := Draft{Name: ev.Name, Description: ev.Description, Date: ev.Date, Venue: ev.Venue, TicketPrice: ev.TicketPrice}
	if c.Name != nil {
		d.Name = *c.Name
	}
	if c.Description != nil {
		d.Description = *c.Description
	}
	if c.Date != nil {
		d.Date = *c.Date
	}
	if c.Venue != nil {
		d.Venue = *c.Venue
	}
	if c.TicketPrice != nil {
		d.TicketPrice = *c.TicketPrice
	}
	if err := validateDraft(op, &d); err != nil {
		return nil, err
	}

	ev.Name, ev.Description, ev.Date, ev.Venue, ev.TicketPrice = d.Name, d.Description, d.Date.UTC(), d.Venue, d.TicketPrice
	ev.UpdatedAt = time.Now().UTC()
	_, err = s.db.NewUpdate().Model(ev).
		Column("name", "description", "date", "venue", "ticket_price", "updated_at").
		WherePK().
		Exec(ctx)
	if err != nil {
		return nil, database.Translate(op, err)
	}
	return ev, nil
}

// Delete removes an event with no Pending or Confirmed bookings. Its seats
// are deleted; the event row is soft deleted so past bookings keep it.
func (s *Service) Delete(ctx context.Context, id int64) error {
	const op = "events.Delete"
	release, err := s.locker.Acquire(ctx, reservation.EventLockKey(id))
	if err != nil {
		return apperrors.Internal(op, fmt.Errorf("lock event %d: %w", id, err))
	}
	defer release()

	err = database.RunInTx(ctx, s.db, func(ctx context.Context, tx bun.Tx) error {
		ev := new(models.Event)
		q := tx.NewSelect().Model(ev).Where("e.id = ?", id)
		if err := database.ForUpdate(tx, q).Scan(ctx); err != nil {
			return notFound(op, err, "event %d does not exist", id)
		}

		active, err := s.ledger.CountActive(ctx, tx, id)
		if err != nil {
			return err
		}
		if active > 0 {
			return apperrors.InvalidState(op, "event %d still has %d active bookings", id, active)
		}

		if _, err := tx.NewDelete().Model((*models.Seat)(nil)).Where("event_id = ?", id).Exec(ctx); err != nil {
			return database.Translate(op, err)
		}
		if _, err := tx.NewDelete().Model(ev).WherePK().Exec(ctx); err != nil {
			return database.Translate(op, err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.log.Info("EVENT", fmt.Sprintf("Event %d deleted", id))
	return nil
}

func (s *Service) Get(ctx context.Context, id int64) (*models.Event, error) {
	ev := new(models.Event)
	if err := s.db.NewSelect().Model(ev).Where("e.id = ?", id).Scan(ctx); err != nil {
		return nil, notFound("events.Get", err, "event %d does not exist", id)
	}
	return ev, nil
}

// List returns live events, soonest first.
func (s *Service) List(ctx context.Context) ([]*models.Event, error) {
	var evs []*models.Event
	err := s.db.NewSelect().Model(&evs).OrderExpr("e.date ASC, e.id ASC").Scan(ctx)
	if err != nil {
		return nil, database.Translate("events.List", err)
	}
	return evs, nil
}

func (s *Service) Availability(ctx context.Context, id int64) (*Availability, error) {
	ev, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	free, held, err := s.pool.Counts(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	return &Availability{EventID: id, Capacity: ev.Capacity, Free: free, Held: held}, nil
}

// Seats lists the event's seat pool.
func (s *Service) Seats(ctx context.Context, id int64) ([]*models.Seat, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	return s.pool.Seats(ctx, s.db, id)
}

func validateDraft(op string, d *Draft) error {
	d.Name = strings.TrimSpace(d.Name)
	d.Venue = strings.TrimSpace(d.Venue)
	d.Description = strings.TrimSpace(d.Description)
	switch {
	case d.Name == "":
		return apperrors.Validation(op, "event name is required")
	case d.Venue == "":
		return apperrors.Validation(op, "venue is required")
	case d.Date.IsZero():
		return apperrors.Validation(op, "event date is required")
	case d.TicketPrice.IsNegative():
		return apperrors.Validation(op, "ticket price cannot be negative")
	}
	d.TicketPrice = d.TicketPrice.Round(2)
	return nil
}

func notFound(op string, err error, format string, args ...any) error {
	err = database.Translate(op, err)
	if apperrors.KindOf(err) == apperrors.KindNotFound {
		return apperrors.NotFound(op, format, args...)
	}
	return err
}
