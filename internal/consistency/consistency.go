// internal/consistency/consistency.go

// Package consistency finds records that disagree with each other across the
// users, books and requests collections, and repairs the ones that have a
// single correct fix.
package consistency

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"bookswap/internal/books"
	"bookswap/internal/store"
	"bookswap/internal/swaps"
)

// Kind names a class of inconsistency.
type Kind string

const (
	// AcceptedNotTraded is an accepted request whose book is not traded.
	// Older versions wrote the two records separately and could stop between
	// them. Repair marks the book traded.
	AcceptedNotTraded Kind = "accepted_not_traded"
	// MultipleAccepted is a book with more than one accepted request.
	MultipleAccepted Kind = "multiple_accepted"
	// DuplicateRequest is a second request from the same requester for the
	// same book.
	DuplicateRequest Kind = "duplicate_request"
	// DanglingBook is a request for a book that no longer exists.
	DanglingBook Kind = "dangling_book"
	// DanglingRequester is a request from a user that does not exist.
	DanglingRequester Kind = "dangling_requester"
	// DanglingOwner is a book owned by a user that does not exist.
	DanglingOwner Kind = "dangling_owner"
)

// Finding is one inconsistency.
type Finding struct {
	Kind      Kind   `json:"kind"`
	BookID    string `json:"bookId,omitempty"`
	RequestID string `json:"requestId,omitempty"`
	UserID    string `json:"userId,omitempty"`
}

func (f Finding) String() string {
	s := string(f.Kind)
	if f.BookID != "" {
		s += " book=" + f.BookID
	}
	if f.RequestID != "" {
		s += " request=" + f.RequestID
	}
	if f.UserID != "" {
		s += " user=" + f.UserID
	}
	return s
}

// account is the part of a user record the checker reads.
type account struct {
	ID string `json:"id"`
}

type Checker struct {
	db       *store.DB
	users    *store.Collection[account]
	books    *store.Collection[books.Book]
	requests *store.Collection[swaps.Request]
	logger   *slog.Logger
}

func New(db *store.DB, cfg store.Config, logger *slog.Logger) *Checker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Checker{
		db:       db,
		users:    store.NewCollection[account](db, cfg.UsersFile),
		books:    store.NewCollection[books.Book](db, cfg.BooksFile),
		requests: store.NewCollection[swaps.Request](db, cfg.RequestsFile),
		logger:   logger,
	}
}

// Check returns every inconsistency found in a snapshot of the three
// collections. The snapshot is taken under the write lock.
func (c *Checker) Check(ctx context.Context) ([]Finding, error) {
	var (
		userList    []account
		bookList    []books.Book
		requestList []swaps.Request
	)
	err := c.db.Apply(ctx,
		c.users.Check(func(records []account) error { userList = records; return nil }),
		c.books.Check(func(records []books.Book) error { bookList = records; return nil }),
		c.requests.Check(func(records []swaps.Request) error { requestList = records; return nil }),
	)
	if err != nil {
		return nil, fmt.Errorf("snapshot collections: %w", err)
	}
	return inspect(userList, bookList, requestList), nil
}

func inspect(userList []account, bookList []books.Book, requestList []swaps.Request) []Finding {
	var findings []Finding

	userIDs := make(map[string]bool, len(userList))
	for _, u := range userList {
		userIDs[u.ID] = true
	}

	bookByID := make(map[string]books.Book, len(bookList))
	for _, b := range bookList {
		bookByID[b.ID] = b
		if !userIDs[b.UserID] {
			findings = append(findings, Finding{Kind: DanglingOwner, BookID: b.ID, UserID: b.UserID})
		}
	}

	type pair struct{ book, requester string }
	seen := make(map[pair]bool, len(requestList))
	accepted := make(map[string]int)
	for _, r := range requestList {
		p := pair{r.BookID, r.RequesterID}
		if seen[p] {
			findings = append(findings, Finding{Kind: DuplicateRequest, BookID: r.BookID, RequestID: r.ID, UserID: r.RequesterID})
		}
		seen[p] = true

		if !userIDs[r.RequesterID] {
			findings = append(findings, Finding{Kind: DanglingRequester, RequestID: r.ID, UserID: r.RequesterID})
		}

		b, ok := bookByID[r.BookID]
		if !ok {
			findings = append(findings, Finding{Kind: DanglingBook, BookID: r.BookID, RequestID: r.ID})
			continue
		}
		if r.Status != swaps.StatusAccepted {
			continue
		}
		accepted[r.BookID]++
		if accepted[r.BookID] == 2 {
			findings = append(findings, Finding{Kind: MultipleAccepted, BookID: r.BookID})
		}
		if b.Status != books.StatusTraded {
			findings = append(findings, Finding{Kind: AcceptedNotTraded, BookID: r.BookID, RequestID: r.ID})
		}
	}
	return findings
}

// Repair marks traded every existing book that has an accepted request but
// is not traded yet, and returns the repairs made. Other findings need a
// person to decide and are left alone.
func (c *Checker) Repair(ctx context.Context) ([]Finding, error) {
	var (
		pending  map[string]string
		repaired []Finding
	)
	err := c.db.Apply(ctx,
		c.requests.Check(func(records []swaps.Request) error {
			pending = make(map[string]string)
			for _, r := range records {
				if r.Status == swaps.StatusAccepted {
					if _, ok := pending[r.BookID]; !ok {
						pending[r.BookID] = r.ID
					}
				}
			}
			return nil
		}),
		c.books.Change(func(records []books.Book) ([]books.Book, error) {
			now := time.Now().UTC()
			for i := range records {
				requestID, ok := pending[records[i].ID]
				if !ok || records[i].Status == books.StatusTraded {
					continue
				}
				records[i].Status = books.StatusTraded
				records[i].UpdatedAt = &now
				repaired = append(repaired, Finding{
					Kind:      AcceptedNotTraded,
					BookID:    records[i].ID,
					RequestID: requestID,
				})
			}
			if len(repaired) == 0 {
				return nil, errNothingToRepair
			}
			return records, nil
		}),
	)
	if errors.Is(err, errNothingToRepair) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("repair: %w", err)
	}

	for _, f := range repaired {
		c.logger.InfoContext(ctx, "Marked book traded for accepted request",
			slog.String("book_id", f.BookID),
			slog.String("request_id", f.RequestID))
	}
	return repaired, nil
}

// errNothingToRepair aborts Repair without rewriting the books collection.
var errNothingToRepair = errors.New("nothing to repair")
