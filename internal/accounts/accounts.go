// Package accounts manages users. A user's role is fixed at registration.
package accounts

import (
	"context"
	"fmt"
	"net/mail"
	"strings"

	"github.com/uptrace/bun"

	"ms-reservation/internal/apperrors"
	"ms-reservation/internal/database"
	"ms-reservation/internal/logger"
	"ms-reservation/internal/models"
)

// PasswordHasher is the credential collaborator.
type PasswordHasher interface {
	Hash(raw string) (string, error)
	Verify(raw, hash string) bool
}

type Service struct {
	db     bun.IDB
	hasher PasswordHasher
	log    *logger.Logger
}

func NewService(db bun.IDB, hasher PasswordHasher, log *logger.Logger) *Service {
	return &Service{db: db, hasher: hasher, log: log}
}

type Registration struct {
	Name     string
	Email    string
	Password string
	Role     string
	Phone    string
}

func (s *Service) Register(ctx context.Context, r Registration) (*models.User, error) {
	const op = "accounts.Register"
	role, err := models.ParseRole(r.Role)
	if err != nil {
		return nil, err
	}
	name := strings.TrimSpace(r.Name)
	if name == "" {
		return nil, apperrors.Validation(op, "name is required")
	}
	email, err := normaliseEmail(op, r.Email)
	if err != nil {
		return nil, err
	}
	if len(r.Password) < 8 {
		return nil, apperrors.Validation(op, "password must be at least 8 characters")
	}

	hash, err := s.hasher.Hash(r.Password)
	if err != nil {
		return nil, apperrors.Internal(op, err)
	}

	u := &models.User{
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		Role:         role,
		Phone:        strings.TrimSpace(r.Phone),
	}
	if _, err := s.db.NewInsert().Model(u).Exec(ctx); err != nil {
		err = database.Translate(op, err)
		if apperrors.KindOf(err) == apperrors.KindDuplicateKey {
			return nil, apperrors.DuplicateKey(op, "email %s is already registered", email)
		}
		return nil, err
	}

	s.log.Info("ACCOUNTS", fmt.Sprintf("Registered %s user %d", role, u.ID))
	return u, nil
}

// Authenticate returns the user when the password matches. Unknown email
// is NotFound and a wrong password is a ValidationError.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*models.User, error) {
	const op = "accounts.Authenticate"
	u, err := s.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if !s.hasher.Verify(password, u.PasswordHash) {
		s.log.LogSecurity("LOGIN_FAILED", fmt.Sprintf("wrong password for user %d", u.ID))
		return nil, apperrors.Validation(op, "invalid credentials")
	}
	return u, nil
}

func (s *Service) Get(ctx context.Context, id int64) (*models.User, error) {
	const op = "accounts.Get"
	u := new(models.User)
	if err := s.db.NewSelect().Model(u).Where("u.id = ?", id).Scan(ctx); err != nil {
		return nil, notFound(op, err, "user %d not found", id)
	}
	return u, nil
}

func (s *Service) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	const op = "accounts.GetByEmail"
	normalised, err := normaliseEmail(op, email)
	if err != nil {
		return nil, err
	}
	u := new(models.User)
	if err := s.db.NewSelect().Model(u).Where("u.email = ?", normalised).Scan(ctx); err != nil {
		return nil, notFound(op, err, "no user with email %s", normalised)
	}
	return u, nil
}

// Update carries optional profile changes; nil fields are left alone.
type Update struct {
	Name     *string
	Phone    *string
	Password *string
}

func (s *Service) Update(ctx context.Context, id int64, upd Update) (*models.User, error) {
	const op = "accounts.Update"
	u, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	q := s.db.NewUpdate().Model(u).WherePK()
	changed := false
	if upd.Name != nil {
		name := strings.TrimSpace(*upd.Name)
		if name == "" {
			return nil, apperrors.Validation(op, "name cannot be empty")
		}
		u.Name = name
		q = q.Column("name")
		changed = true
	}
	if upd.Phone != nil {
		u.Phone = strings.TrimSpace(*upd.Phone)
		q = q.Column("phone")
		changed = true
	}
	if upd.Password != nil {
		if len(*upd.Password) < 8 {
			return nil, apperrors.Validation(op, "password must be at least 8 characters")
		}
		hash, err := s.hasher.Hash(*upd.Password)
		if err != nil {
			return nil, apperrors.Internal(op, err)
		}
		u.PasswordHash = hash
		q = q.Column("password_hash")
		changed = true
	}
	if !changed {
		return u, nil
	}
	if _, err := q.Exec(ctx); err != nil {
		return nil, database.Translate(op, err)
	}
	return u, nil
}

// Delete removes a user who owns no events and no bookings.
func (s *Service) Delete(ctx context.Context, id int64) error {
	const op = "accounts.Delete"
	return database.RunInTx(ctx, s.db, func(ctx context.Context, tx bun.Tx) error {
		u := new(models.User)
		if err := database.ForUpdate(tx, tx.NewSelect().Model(u).Where("u.id = ?", id)).Scan(ctx); err != nil {
			return notFound(op, err, "user %d not found", id)
		}

		events, err := tx.NewSelect().Model((*models.Event)(nil)).WhereAllWithDeleted().Where("admin_id = ?", id).Count(ctx)
		if err != nil {
			return database.Translate(op, err)
		}
		bookings, err := tx.NewSelect().Model((*models.Booking)(nil)).Where("customer_id = ?", id).Count(ctx)
		if err != nil {
			return database.Translate(op, err)
		}
		if events > 0 || bookings > 0 {
			return apperrors.InvalidState(op, "user %d still owns %d events and %d bookings", id, events, bookings)
		}

		if _, err := tx.NewDelete().Model(u).WherePK().Exec(ctx); err != nil {
			return database.Translate(op, err)
		}
		s.log.Info("ACCOUNTS", fmt.Sprintf("Deleted user %d", id))
		return nil
	})
}

func normaliseEmail(op, raw string) (string, error) {
	addr, err := mail.ParseAddress(strings.TrimSpace(raw))
	if err != nil || addr.Address != strings.TrimSpace(raw) {
		return "", apperrors.Validation(op, "invalid email address %q", raw)
	}
	return strings.ToLower(addr.Address), nil
}

func notFound(op string, err error, format string, args ...any) error {
	err = database.Translate(op, err)
	if apperrors.KindOf(err) == apperrors.KindNotFound {
		return apperrors.NotFound(op, format, args...)
	}
	return err
}
