// internal/books/service.go
package books

import (
	"context"

	"bookswap/internal/store"
)

// Service defines the book store.
type Service interface {
	Create(ctx context.Context, input NewBook) (*Book, error)
	FindAll(ctx context.Context) ([]Book, error)
	Search(ctx context.Context, filter Filter) ([]Book, error)
	FindByUserID(ctx context.Context, userID string) ([]Book, error)
	FindByID(ctx context.Context, id string) (*Book, error)
	Update(ctx context.Context, id string, update Update) (*Book, error)
	UpdateStatus(ctx context.Context, id string, status Status) (*Book, error)
	Delete(ctx context.Context, id, userID string) (bool, error)

	// Guard stages a read-only check of one book for store.DB.Apply.
	Guard(id string, check func(Book) error) store.Change
	// StatusChange stages a status update of one book for store.DB.Apply.
	// check, when set, runs against the current record first.
	StatusChange(id string, status Status, check func(Book) error) store.Change
}
