package database

import (
	"context"
	"fmt"

	"github.com/uptrace/bun"

	"ms-reservation/internal/models"
)

type tableSpec struct {
	model       any
	foreignKeys []string
}

// tables in dependency order.
var tables = []tableSpec{
	{model: (*models.User)(nil)},
	{model: (*models.Event)(nil), foreignKeys: []string{
		`("admin_id") REFERENCES "users" ("id")`,
	}},
	{model: (*models.Booking)(nil), foreignKeys: []string{
		`("event_id") REFERENCES "events" ("id")`,
		`("customer_id") REFERENCES "users" ("id")`,
	}},
	{model: (*models.Seat)(nil), foreignKeys: []string{
		`("event_id") REFERENCES "events" ("id") ON DELETE CASCADE`,
		`("booking_id") REFERENCES "bookings" ("id")`,
	}},
	{model: (*models.Payment)(nil), foreignKeys: []string{
		`("booking_id") REFERENCES "bookings" ("id")`,
	}},
}

// CreateSchema creates every table from the bun models. Used for sqlite and
// tests; postgres deployments use the SQL migrations.
func CreateSchema(ctx context.Context, db bun.IDB) error {
	for _, t := range tables {
		q := db.NewCreateTable().Model(t.model).IfNotExists()
		for _, fk := range t.foreignKeys {
			q = q.ForeignKey(fk)
		}
		if _, err := q.Exec(ctx); err != nil {
			return fmt.Errorf("create table for %T: %w", t.model, err)
		}
	}

	indexes := []struct {
		name    string
		model   any
		columns []string
	}{
		{"idx_seats_event_free", (*models.Seat)(nil), []string{"event_id", "is_held", "number"}},
		{"idx_seats_booking", (*models.Seat)(nil), []string{"booking_id"}},
		{"idx_bookings_event_status", (*models.Booking)(nil), []string{"event_id", "status"}},
		{"idx_bookings_customer", (*models.Booking)(nil), []string{"customer_id"}},
	}
	for _, idx := range indexes {
		if _, err := db.NewCreateIndex().Model(idx.model).Index(idx.name).Column(idx.columns...).IfNotExists().Exec(ctx); err != nil {
			return fmt.Errorf("create index %s: %w", idx.name, err)
		}
	}
	return nil
}

// DropSchema drops every table in reverse dependency order.
func DropSchema(ctx context.Context, db bun.IDB) error {
	for i := len(tables) - 1; i >= 0; i-- {
		if _, err := db.NewDropTable().Model(tables[i].model).IfExists().Exec(ctx); err != nil {
			return fmt.Errorf("drop table for %T: %w", tables[i].model, err)
		}
	}
	return nil
}
