// internal/swaps/service.go
package swaps

import (
	"context"

	"bookswap/internal/store"
)

// Store defines the request store.
type Store interface {
	Create(ctx context.Context, req Request) (*Request, error)
	FindAll(ctx context.Context) ([]Request, error)
	FindByID(ctx context.Context, id string) (*Request, error)
	FindByBookID(ctx context.Context, bookID string) ([]Request, error)
	FindByRequesterID(ctx context.Context, requesterID string) ([]Request, error)
	FindByBookIDs(ctx context.Context, bookIDs []string) ([]Request, error)
	FindByBookAndRequester(ctx context.Context, bookID, requesterID string) (*Request, error)
	UpdateStatus(ctx context.Context, id string, status Status) (*Request, error)

	// Append stages an insert for store.DB.Apply. check sees the current
	// records first and can veto the insert.
	Append(req Request, check func([]Request) error) store.Change
	// StatusChange stages a status update of one request for store.DB.Apply.
	StatusChange(id string, status Status, check func(Request) error, updated *Request) store.Change
}

// Service runs the swap workflow across books and requests.
type Service interface {
	RequestBook(ctx context.Context, requesterID, bookID, message string) (*Request, error)
	Respond(ctx context.Context, ownerID, requestID string, status Status) (*Request, error)
	Incoming(ctx context.Context, ownerID string) ([]Request, error)
	Outgoing(ctx context.Context, requesterID string) ([]Request, error)
}
