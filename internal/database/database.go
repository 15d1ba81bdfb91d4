// Package database opens the relational store and provides the unit of work
// every mutating operation runs in.
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"

	"ms-reservation/internal/apperrors"
	"ms-reservation/internal/config"
	"ms-reservation/internal/logger"
)

// Open connects to the configured store, retrying postgres while it boots.
func Open(ctx context.Context, cfg config.DatabaseConfig, log *logger.Logger) (*bun.DB, error) {
	var db *bun.DB
	switch cfg.Driver {
	case "sqlite":
		sqldb, err := sql.Open(sqliteshim.ShimName, cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		// a single writer keeps sqlite from returning SQLITE_BUSY under load
		sqldb.SetMaxOpenConns(1)
		db = bun.NewDB(sqldb, sqlitedialect.New())
		if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
			return nil, fmt.Errorf("enable sqlite foreign keys: %w", err)
		}
	case "postgres":
		sqldb, err := connectPostgres(ctx, cfg, log)
		if err != nil {
			return nil, err
		}
		db = bun.NewDB(sqldb, pgdialect.New())
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}

	if cfg.Debug {
		db.AddQueryHook(&queryLogger{log: log})
	}
	log.Info("DATABASE", fmt.Sprintf("Connected using %s driver", cfg.Driver))
	return db, nil
}

func connectPostgres(ctx context.Context, cfg config.DatabaseConfig, log *logger.Logger) (*sql.DB, error) {
	retries := cfg.MaxRetries
	if retries < 1 {
		retries = 1
	}

	var lastErr error
	for i := 0; i < retries; i++ {
		log.Info("DATABASE", fmt.Sprintf("Attempting to connect to PostgreSQL (attempt %d/%d)", i+1, retries))
		sqldb, err := sql.Open("postgres", cfg.DSN())
		if err == nil {
			sqldb.SetMaxOpenConns(cfg.MaxOpenConns)
			sqldb.SetMaxIdleConns(cfg.MaxIdleConns)
			sqldb.SetConnMaxLifetime(cfg.MaxLifetime)
			if err = sqldb.PingContext(ctx); err == nil {
				return sqldb, nil
			}
			sqldb.Close()
		}
		lastErr = err
		log.Error("DATABASE", fmt.Sprintf("Failed to connect to PostgreSQL: %v", err))

		if i < retries-1 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(2 * time.Second):
			}
		}
	}
	return nil, fmt.Errorf("connect to postgres after %d attempts: %w", retries, lastErr)
}

// RunInTx runs fn in a transaction. Any error or panic rolls back; a nil
// return commits.
func RunInTx(ctx context.Context, db bun.IDB, fn func(ctx context.Context, tx bun.Tx) error) error {
	return db.RunInTx(ctx, nil, fn)
}

// SupportsRowLocks reports whether SELECT ... FOR UPDATE is available.
// SQLite serialises writers at the connection level instead.
func SupportsRowLocks(db bun.IDB) bool {
	return db.Dialect().Name() == dialect.PG
}

// ForUpdate adds a FOR UPDATE clause when the dialect supports it.
func ForUpdate(db bun.IDB, q *bun.SelectQuery) *bun.SelectQuery {
	if SupportsRowLocks(db) {
		return q.For("UPDATE")
	}
	return q
}

// IsUniqueViolation reports whether err comes from a unique constraint.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// Translate maps driver errors onto the error taxonomy.
func Translate(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, sql.ErrNoRows):
		return apperrors.Wrap(apperrors.KindNotFound, op, err, "record not found")
	case IsUniqueViolation(err):
		return apperrors.Wrap(apperrors.KindDuplicateKey, op, err, "record already exists")
	default:
		return apperrors.Internal(op, err)
	}
}
