// internal/users/service.go
package users

import (
	"context"
)

// Service defines the user store.
type Service interface {
	Create(ctx context.Context, input NewUser) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
	FindByID(ctx context.Context, id string) (*User, error)
	Authenticate(ctx context.Context, email, password string) (*User, error)
	List(ctx context.Context) ([]User, error)
}
