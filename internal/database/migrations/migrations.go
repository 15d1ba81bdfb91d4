package migrations

import (
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"ms-reservation/internal/logger"
)

//go:embed sql/*.sql
var files embed.FS

// Runner applies the embedded postgres migrations.
type Runner struct {
	migrator *migrate.Migrate
	log      *logger.Logger
}

// NewRunner prepares a migrator with its own connection to dsn, so closing
// the runner never touches the service's pool.
func NewRunner(dsn string, log *logger.Logger) (*Runner, error) {
	source, err := iofs.New(files, "sql")
	if err != nil {
		return nil, fmt.Errorf("failed to open embedded migrations: %w", err)
	}

	migrator, err := migrate.NewWithSourceInstance("iofs", source, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrator: %w", err)
	}
	return &Runner{migrator: migrator, log: log}, nil
}

// Up applies every pending migration. A dirty version is forced back and
// retried once.
func (r *Runner) Up() error {
	version, dirty, err := r.migrator.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return fmt.Errorf("failed to get migration version: %w", err)
	}
	if dirty {
		r.log.Warn("MIGRATION", fmt.Sprintf("Detected dirty migration at version %d, forcing", version))
		if err := r.migrator.Force(int(version)); err != nil {
			return fmt.Errorf("failed to fix dirty migration: %w", err)
		}
	}

	if err := r.migrator.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	version, _, err = r.migrator.Version()
	if err != nil {
		return fmt.Errorf("failed to get migration version: %w", err)
	}
	r.log.Info("MIGRATION", fmt.Sprintf("Current schema version: %d", version))
	return nil
}

// Down rolls back every migration.
func (r *Runner) Down() error {
	if err := r.migrator.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to roll back migrations: %w", err)
	}
	return nil
}

func (r *Runner) Close() error {
	srcErr, dbErr := r.migrator.Close()
	return errors.Join(srcErr, dbErr)
}
