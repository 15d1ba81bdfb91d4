// Command migrate prepares the reservation schema and optionally seeds a
// demo admin, customer and event.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"

	"ms-reservation/internal/accounts"
	"ms-reservation/internal/apperrors"
	"ms-reservation/internal/auth"
	"ms-reservation/internal/config"
	"ms-reservation/internal/database"
	"ms-reservation/internal/database/migrations"
	"ms-reservation/internal/events"
	"ms-reservation/internal/inventory"
	"ms-reservation/internal/ledger"
	"ms-reservation/internal/logger"
	"ms-reservation/internal/models"
)

func main() {
	reset := flag.Bool("reset", false, "drop every table before migrating")
	seed := flag.Bool("seed", false, "insert demo users and an event")
	flag.Parse()

	if err := config.LoadEnvFile(); err != nil {
		fmt.Fprintln(os.Stderr, err)
	}
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	log := logger.NewLogger()
	defer log.Close()

	ctx := context.Background()
	db, err := database.Open(ctx, cfg.Database, log)
	if err != nil {
		log.Fatal("DATABASE", fmt.Sprintf("Failed to connect: %v", err))
	}
	defer db.Close()

	if err := migrate(ctx, cfg, db, log, *reset); err != nil {
		log.Fatal("MIGRATION", err.Error())
	}
	if *seed {
		if err := seedData(ctx, cfg, db, log); err != nil {
			log.Fatal("SEED", err.Error())
		}
	}
	log.Info("MIGRATION", "Done")
}

func migrate(ctx context.Context, cfg *config.Config, db *bun.DB, log *logger.Logger, reset bool) error {
	if cfg.Database.Driver == "sqlite" {
		if reset {
			log.Info("MIGRATION", "Dropping tables...")
			if err := database.DropSchema(ctx, db); err != nil {
				return err
			}
		}
		log.Info("MIGRATION", "Creating tables...")
		return database.CreateSchema(ctx, db)
	}

	runner, err := migrations.NewRunner(cfg.Database.DSN(), log)
	if err != nil {
		return err
	}
	defer runner.Close()
	if reset {
		log.Info("MIGRATION", "Rolling back every migration...")
		if err := runner.Down(); err != nil {
			return err
		}
	}
	return runner.Up()
}

// seedData is safe to run twice: existing demo users are reused.
func seedData(ctx context.Context, cfg *config.Config, db *bun.DB, log *logger.Logger) error {
	acc := accounts.NewService(db, auth.NewHasher(cfg.Auth.BcryptCost), log)
	users := []accounts.Registration{
		{Name: "Demo Admin", Email: "admin@example.com", Password: "admin-password", Role: models.RoleAdmin.String()},
		{Name: "Demo Customer", Email: "customer@example.com", Password: "customer-password", Role: models.RoleCustomer.String(), Phone: "555-0100"},
	}
	var admin *models.User
	for _, r := range users {
		u, err := acc.Register(ctx, r)
		if apperrors.KindOf(err) == apperrors.KindDuplicateKey {
			log.Info("SEED", fmt.Sprintf("User %s already exists", r.Email))
			if u, err = acc.GetByEmail(ctx, r.Email); err != nil {
				return err
			}
		} else if err != nil {
			return err
		}
		if u.Role == models.RoleAdmin {
			admin = u
		}
	}

	pool := inventory.NewPool(log)
	svc := events.NewService(db, pool, ledger.New(pool, ledger.CodeGenerator{Prefix: cfg.Booking.CodePrefix, Length: cfg.Booking.CodeLength}, log), nil, log)
	existing, err := svc.List(ctx)
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		log.Info("SEED", "Events already present, skipping demo event")
		return nil
	}
	ev, err := svc.Create(ctx, admin.ID, events.Draft{
		Name:        "Summer Fest",
		Description: "Annual summer music festival.",
		Date:        time.Now().UTC().AddDate(0, 1, 0).Truncate(time.Hour),
		Venue:       "Riverside Park",
		Capacity:    50,
		TicketPrice: decimal.RequireFromString("25.00"),
	})
	if err != nil {
		return err
	}
	log.Info("SEED", fmt.Sprintf("Created demo event %d with %d seats", ev.ID, ev.Capacity))
	return nil
}
