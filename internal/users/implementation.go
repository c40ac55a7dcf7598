// internal/users/implementation.go
package users

import (
	"context"
	"fmt"
	"strings"
	"time"

	"bookswap/internal/store"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

// service implements the Service interface.
type service struct {
	users       *store.Collection[storedUser]
	rateLimiter *rate.Limiter
}

// NewService creates a user store over the named collection. Registration and
// authentication share limiter; a nil limiter disables rate limiting.
func NewService(db *store.DB, collection string, limiter *rate.Limiter) Service {
	if limiter == nil {
		limiter = rate.NewLimiter(rate.Inf, 0)
	}
	return &service{
		users:       store.NewCollection[storedUser](db, collection),
		rateLimiter: limiter,
	}
}

// Create registers a new user with a hashed password.
func (s *service) Create(ctx context.Context, input NewUser) (*User, error) {
	if !s.rateLimiter.Allow() {
		return nil, ErrRateLimited
	}

	name := strings.TrimSpace(input.Name)
	email := strings.TrimSpace(input.Email)
	if name == "" || email == "" || input.Password == "" {
		return nil, ErrMissingFields
	}

	passwordHash, err := hashPassword(input.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	created := storedUser{
		ID:        uuid.NewString(),
		Name:      name,
		Email:     email,
		Password:  passwordHash,
		CreatedAt: time.Now().UTC(),
	}

	err = s.users.Mutate(ctx, func(records []storedUser) ([]storedUser, error) {
		if _, ok := findByEmail(records, email); ok {
			return nil, ErrDuplicateEmail
		}
		return append(records, created), nil
	})
	if err != nil {
		return nil, err
	}

	return created.public(), nil
}

// FindByEmail returns the first user whose email matches, ignoring case.
func (s *service) FindByEmail(ctx context.Context, email string) (*User, error) {
	records, err := s.users.Load(ctx)
	if err != nil {
		return nil, err
	}
	u, ok := findByEmail(records, strings.TrimSpace(email))
	if !ok {
		return nil, ErrNotFound
	}
	return u.public(), nil
}

// FindByID returns the user with the given id.
func (s *service) FindByID(ctx context.Context, id string) (*User, error) {
	records, err := s.users.Load(ctx)
	if err != nil {
		return nil, err
	}
	for _, u := range records {
		if u.ID == id {
			return u.public(), nil
		}
	}
	return nil, ErrNotFound
}

// Authenticate verifies a user's credentials and returns the user if successful.
func (s *service) Authenticate(ctx context.Context, email, password string) (*User, error) {
	if !s.rateLimiter.Allow() {
		return nil, ErrRateLimited
	}
	if strings.TrimSpace(email) == "" || password == "" {
		return nil, ErrMissingCredentials
	}

	records, err := s.users.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("authentication failed: %w", err)
	}

	u, ok := findByEmail(records, strings.TrimSpace(email))
	if !ok {
		return nil, ErrInvalidCredentials
	}
	if !ComparePassword(password, u.Password) {
		return nil, ErrInvalidCredentials
	}

	return u.public(), nil
}

// List returns every user in registration order.
func (s *service) List(ctx context.Context) ([]User, error) {
	records, err := s.users.Load(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]User, 0, len(records))
	for _, u := range records {
		out = append(out, *u.public())
	}
	return out, nil
}

// findByEmail matches addresses without regard to case. Stored addresses keep
// the case they were registered with.
func findByEmail(records []storedUser, email string) (storedUser, bool) {
	for _, u := range records {
		if strings.EqualFold(u.Email, email) {
			return u, true
		}
	}
	return storedUser{}, false
}
