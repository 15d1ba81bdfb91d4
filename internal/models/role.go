package models

import (
	"database/sql/driver"
	"fmt"

	"ms-reservation/internal/apperrors"
)

// Role is the closed set of user roles. The zero value is not a valid role.
type Role struct {
	name string
}

var (
	RoleCustomer = Role{name: "Customer"}
	RoleAdmin    = Role{name: "Admin"}
)

// ParseRole accepts exactly "Customer" or "Admin".
func ParseRole(s string) (Role, error) {
	switch s {
	case RoleCustomer.name:
		return RoleCustomer, nil
	case RoleAdmin.name:
		return RoleAdmin, nil
	default:
		return Role{}, apperrors.Validation("models.ParseRole", "role must be Customer or Admin, got %q", s)
	}
}

func (r Role) String() string { return r.name }

func (r Role) IsValid() bool { return r == RoleCustomer || r == RoleAdmin }

func (r Role) Value() (driver.Value, error) {
	if !r.IsValid() {
		return nil, apperrors.Validation("models.Role", "refusing to store invalid role %q", r.name)
	}
	return r.name, nil
}

func (r *Role) Scan(src any) error {
	var s string
	switch v := src.(type) {
	case string:
		s = v
	case []byte:
		s = string(v)
	default:
		return fmt.Errorf("models.Role: unsupported scan type %T", src)
	}
	parsed, err := ParseRole(s)
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

func (r Role) MarshalText() ([]byte, error) {
	if !r.IsValid() {
		return nil, apperrors.Validation("models.Role", "invalid role %q", r.name)
	}
	return []byte(r.name), nil
}

func (r *Role) UnmarshalText(b []byte) error {
	parsed, err := ParseRole(string(b))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}
