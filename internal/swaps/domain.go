// internal/swaps/domain.go
package swaps

import (
	"time"

	"bookswap/internal/errs"
)

// Status is the state of a swap request.
type Status string

const (
	StatusPending  Status = "pending"
	StatusAccepted Status = "accepted"
	StatusDeclined Status = "declined"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusAccepted, StatusDeclined:
		return true
	}
	return false
}

// Request is one user's request to swap for another user's book.
type Request struct {
	ID          string    `json:"id"`
	BookID      string    `json:"bookId"`
	RequesterID string    `json:"requesterId"`
	Message     string    `json:"message"`
	Status      Status    `json:"status"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

var (
	ErrNotFound        = errs.New(errs.NotFound, "Request not found")
	ErrMissingBook     = errs.New(errs.Validation, "Please provide a book to request")
	ErrBookUnavailable = errs.New(errs.Conflict, "Book is not available for swapping")
	ErrOwnBook         = errs.New(errs.Validation, "Cannot request your own book")
	ErrDuplicate       = errs.New(errs.Conflict, "You have already requested this book")
	ErrInvalidStatus   = errs.New(errs.Validation, "Status must be accepted or declined")
	ErrNotPending      = errs.New(errs.Conflict, "Request has already been answered")
	ErrBookTraded      = errs.New(errs.Conflict, "Book has already been traded")
)
