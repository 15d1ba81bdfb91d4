package database_test

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"

	"ms-reservation/internal/apperrors"
	"ms-reservation/internal/database"
	"ms-reservation/internal/database/dbtest"
	"ms-reservation/internal/models"
)

func insertAdmin(t *testing.T, db bun.IDB, email string) *models.User {
	t.Helper()
	u := &models.User{Name: "Admin", Email: email, PasswordHash: "x", Role: models.RoleAdmin}
	_, err := db.NewInsert().Model(u).Exec(context.Background())
	require.NoError(t, err)
	return u
}

func TestRunInTxRollsBackOnError(t *testing.T) {
	db := dbtest.NewSQLite(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := database.RunInTx(ctx, db, func(ctx context.Context, tx bun.Tx) error {
		insertAdmin(t, tx, "rollback@example.com")
		return boom
	})
	assert.ErrorIs(t, err, boom)

	count, err := db.NewSelect().Model((*models.User)(nil)).Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)

	require.NoError(t, database.RunInTx(ctx, db, func(ctx context.Context, tx bun.Tx) error {
		insertAdmin(t, tx, "commit@example.com")
		return nil
	}))
	count, err = db.NewSelect().Model((*models.User)(nil)).Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestUniqueViolationIsDuplicateKey(t *testing.T) {
	db := dbtest.NewSQLite(t)
	insertAdmin(t, db, "dup@example.com")

	u := &models.User{Name: "Other", Email: "dup@example.com", PasswordHash: "x", Role: models.RoleCustomer}
	_, err := db.NewInsert().Model(u).Exec(context.Background())
	require.Error(t, err)
	assert.True(t, database.IsUniqueViolation(err))
	assert.ErrorIs(t, database.Translate("insert", err), apperrors.ErrDuplicateKey)
}

func TestTranslate(t *testing.T) {
	assert.NoError(t, database.Translate("op", nil))
	assert.ErrorIs(t, database.Translate("op", sql.ErrNoRows), apperrors.ErrNotFound)
	assert.ErrorIs(t, database.Translate("op", &pq.Error{Code: "23505"}), apperrors.ErrDuplicateKey)
	assert.ErrorIs(t, database.Translate("op", errors.New("disk full")), apperrors.ErrInternal)
}

func TestSchemaRoundTripsDecimalAndRole(t *testing.T) {
	db := dbtest.NewSQLite(t)
	ctx := context.Background()
	admin := insertAdmin(t, db, "money@example.com")

	ev := &models.Event{
		AdminID:     admin.ID,
		Name:        "Jazz Night",
		Date:        time.Date(2026, 12, 1, 20, 0, 0, 0, time.UTC),
		Venue:       "Blue Hall",
		Capacity:    3,
		TicketPrice: decimal.RequireFromString("12.50"),
	}
	_, err := db.NewInsert().Model(ev).Exec(ctx)
	require.NoError(t, err)

	var got models.Event
	require.NoError(t, db.NewSelect().Model(&got).Where("e.id = ?", ev.ID).Scan(ctx))
	assert.True(t, decimal.RequireFromString("12.5").Equal(got.TicketPrice), got.TicketPrice.String())

	var user models.User
	require.NoError(t, db.NewSelect().Model(&user).Where("u.id = ?", admin.ID).Scan(ctx))
	assert.Equal(t, models.RoleAdmin, user.Role)
	assert.False(t, database.SupportsRowLocks(db))
}

func TestSeatsRequireExistingEvent(t *testing.T) {
	db := dbtest.NewSQLite(t)
	_, err := db.NewInsert().Model(&models.Seat{EventID: 999, Number: 1, Label: "S-0001"}).Exec(context.Background())
	assert.Error(t, err)
}
