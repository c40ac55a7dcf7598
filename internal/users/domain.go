// internal/users/domain.go
package users

import (
	"time"

	"bookswap/internal/errs"
)

// User is a registered account as returned to callers. It never carries the
// password hash.
type User struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"createdAt"`
}

// NewUser holds the registration fields.
type NewUser struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// storedUser is the persisted shape, including the password hash.
type storedUser struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Password  string    `json:"password"`
	CreatedAt time.Time `json:"createdAt"`
}

func (u storedUser) public() *User {
	return &User{
		ID:        u.ID,
		Name:      u.Name,
		Email:     u.Email,
		CreatedAt: u.CreatedAt,
	}
}

var (
	ErrNotFound           = errs.New(errs.NotFound, "User not found")
	ErrDuplicateEmail     = errs.New(errs.Conflict, "User already exists")
	ErrMissingFields      = errs.New(errs.Validation, "Please provide all required fields")
	ErrMissingCredentials = errs.New(errs.Validation, "Please provide email and password")
	ErrInvalidCredentials = errs.New(errs.Validation, "Invalid credentials")
	ErrRateLimited        = errs.New(errs.RateLimited, "Too many requests, please try again later")
)
