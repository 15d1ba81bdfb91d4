package accounts

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"ms-reservation/internal/apperrors"
	"ms-reservation/internal/auth"
	"ms-reservation/internal/database/dbtest"
	"ms-reservation/internal/logger"
	"ms-reservation/internal/models"
)

func newService(t *testing.T) *Service {
	db := dbtest.NewSQLite(t)
	return NewService(db, auth.NewHasher(bcrypt.MinCost), logger.Discard())
}

func register(t *testing.T, s *Service, email, role string) *models.User {
	u, err := s.Register(context.Background(), Registration{
		Name: "Dana", Email: email, Password: "correct-horse", Role: role, Phone: " 555-0100 ",
	})
	require.NoError(t, err)
	return u
}

func TestRegister(t *testing.T) {
	s := newService(t)
	u := register(t, s, "Dana@Example.com", "Customer")

	assert.Equal(t, "dana@example.com", u.Email)
	assert.Equal(t, models.RoleCustomer, u.Role)
	assert.Equal(t, "555-0100", u.Phone)
	assert.NotEqual(t, "correct-horse", u.PasswordHash)
}

func TestRegister_Validation(t *testing.T) {
	s := newService(t)
	ctx := context.Background()

	cases := map[string]Registration{
		"bad role":       {Name: "A", Email: "a@example.com", Password: "password1", Role: "Superuser"},
		"empty name":     {Name: " ", Email: "a@example.com", Password: "password1", Role: "Admin"},
		"bad email":      {Name: "A", Email: "not-an-email", Password: "password1", Role: "Admin"},
		"short password": {Name: "A", Email: "a@example.com", Password: "short", Role: "Admin"},
	}
	for name, r := range cases {
		_, err := s.Register(ctx, r)
		assert.ErrorIs(t, err, apperrors.ErrValidation, name)
	}
}

func TestRegister_DuplicateEmail(t *testing.T) {
	s := newService(t)
	register(t, s, "dup@example.com", "Customer")

	_, err := s.Register(context.Background(), Registration{
		Name: "Other", Email: "DUP@example.com", Password: "password1", Role: "Admin",
	})
	assert.ErrorIs(t, err, apperrors.ErrDuplicateKey)
}

func TestAuthenticate(t *testing.T) {
	s := newService(t)
	ctx := context.Background()
	u := register(t, s, "login@example.com", "Admin")

	got, err := s.Authenticate(ctx, "login@example.com", "correct-horse")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)

	_, err = s.Authenticate(ctx, "login@example.com", "wrong-horse")
	assert.ErrorIs(t, err, apperrors.ErrValidation)

	_, err = s.Authenticate(ctx, "nobody@example.com", "correct-horse")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestUpdateKeepsRole(t *testing.T) {
	s := newService(t)
	ctx := context.Background()
	u := register(t, s, "upd@example.com", "Customer")

	name, pw := "Dana Q", "new-password"
	got, err := s.Update(ctx, u.ID, Update{Name: &name, Password: &pw})
	require.NoError(t, err)
	assert.Equal(t, "Dana Q", got.Name)
	assert.Equal(t, models.RoleCustomer, got.Role)

	_, err = s.Authenticate(ctx, "upd@example.com", "new-password")
	assert.NoError(t, err)

	empty := ""
	_, err = s.Update(ctx, u.ID, Update{Name: &empty})
	assert.ErrorIs(t, err, apperrors.ErrValidation)

	_, err = s.Update(ctx, 999, Update{})
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestDelete(t *testing.T) {
	s := newService(t)
	ctx := context.Background()
	admin := register(t, s, "owner@example.com", "Admin")
	loner := register(t, s, "loner@example.com", "Customer")

	dbtest.SeedEvent(t, s.db, admin.ID, 1, "5")
	err := s.Delete(ctx, admin.ID)
	assert.ErrorIs(t, err, apperrors.ErrInvalidState)

	require.NoError(t, s.Delete(ctx, loner.ID))
	_, err = s.Get(ctx, loner.ID)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	assert.ErrorIs(t, s.Delete(ctx, loner.ID), apperrors.ErrNotFound)
}
