// internal/swaps/implementation.go
package swaps

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"bookswap/internal/books"
	"bookswap/internal/store"
)

// service implements the Service interface.
type service struct {
	db       *store.DB
	requests Store
	books    books.Service
}

// NewService creates the swap workflow over the request and book stores. All
// three must share db.
func NewService(db *store.DB, requests Store, bookService books.Service) Service {
	return &service{
		db:       db,
		requests: requests,
		books:    bookService,
	}
}

// RequestBook records a pending request from requesterID for bookID. The
// book checks, the duplicate check and the insert happen under one lock.
func (s *service) RequestBook(ctx context.Context, requesterID, bookID, message string) (*Request, error) {
	bookID = strings.TrimSpace(bookID)
	if bookID == "" {
		return nil, ErrMissingBook
	}

	req := Request{
		BookID:      bookID,
		RequesterID: requesterID,
		Message:     message,
		Status:      StatusPending,
	}
	stampNew(&req)

	err := s.db.Apply(ctx,
		// Step 1: the book must exist, be available and belong to someone else
		s.books.Guard(bookID, func(b books.Book) error {
			if b.Status != books.StatusAvailable {
				return ErrBookUnavailable
			}
			if b.UserID == requesterID {
				return ErrOwnBook
			}
			return nil
		}),
		// Step 2: one request per book and requester
		s.requests.Append(req, func(existing []Request) error {
			if _, ok := findPair(existing, bookID, requesterID); ok {
				return ErrDuplicate
			}
			return nil
		}),
	)
	if err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "Swap requested",
		slog.String("request_id", req.ID),
		slog.String("book_id", bookID),
		slog.String("requester_id", requesterID))
	return &req, nil
}

// Respond accepts or declines a pending request on one of ownerID's books.
// Accepting marks the book traded in the same Apply as the request update;
// if the second write fails the first is rolled back.
func (s *service) Respond(ctx context.Context, ownerID, requestID string, status Status) (*Request, error) {
	// Step 1: locate the request to learn which book it is for
	current, err := s.requests.FindByID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	bookID := current.BookID

	// Step 2: ownership, then the requested transition
	ownedBy := func(b books.Book) error {
		if b.UserID != ownerID {
			return books.ErrForbidden
		}
		if status != StatusAccepted && status != StatusDeclined {
			return ErrInvalidStatus
		}
		if status == StatusAccepted && b.Status == books.StatusTraded {
			return ErrBookTraded
		}
		return nil
	}
	bookChange := s.books.Guard(bookID, ownedBy)
	if status == StatusAccepted {
		bookChange = s.books.StatusChange(bookID, books.StatusTraded, ownedBy)
	}

	// Step 3: the request itself must still be pending
	var updated Request
	requestChange := s.requests.StatusChange(requestID, status, func(r Request) error {
		if r.Status != StatusPending {
			return ErrNotPending
		}
		return nil
	}, &updated)

	if err := s.db.Apply(ctx, bookChange, requestChange); err != nil {
		if errors.Is(err, books.ErrNotFound) {
			return nil, books.ErrForbidden
		}
		return nil, err
	}

	slog.InfoContext(ctx, "Swap request answered",
		slog.String("request_id", requestID),
		slog.String("book_id", bookID),
		slog.String("status", string(status)))
	return &updated, nil
}

// Incoming returns the requests made for books ownerID owns.
func (s *service) Incoming(ctx context.Context, ownerID string) ([]Request, error) {
	owned, err := s.books.FindByUserID(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(owned))
	for _, b := range owned {
		ids = append(ids, b.ID)
	}
	return s.requests.FindByBookIDs(ctx, ids)
}

// Outgoing returns the requests requesterID has made.
func (s *service) Outgoing(ctx context.Context, requesterID string) ([]Request, error) {
	return s.requests.FindByRequesterID(ctx, requesterID)
}
