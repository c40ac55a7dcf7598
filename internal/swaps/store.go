// internal/swaps/store.go
package swaps

import (
	"context"
	"time"

	"bookswap/internal/store"

	"github.com/google/uuid"
)

type requestStore struct {
	requests *store.Collection[Request]
}

// NewStore creates a request store over the named collection.
func NewStore(db *store.DB, collection string) Store {
	return &requestStore{requests: store.NewCollection[Request](db, collection)}
}

// Create persists req, filling in the id, status and timestamps when unset.
func (s *requestStore) Create(ctx context.Context, req Request) (*Request, error) {
	stampNew(&req)
	if err := s.requests.Mutate(ctx, func(records []Request) ([]Request, error) {
		return append(records, req), nil
	}); err != nil {
		return nil, err
	}
	return &req, nil
}

func (s *requestStore) FindAll(ctx context.Context) ([]Request, error) {
	return s.requests.Load(ctx)
}

func (s *requestStore) FindByID(ctx context.Context, id string) (*Request, error) {
	records, err := s.requests.Load(ctx)
	if err != nil {
		return nil, err
	}
	if i := indexOf(records, id); i >= 0 {
		return &records[i], nil
	}
	return nil, ErrNotFound
}

func (s *requestStore) FindByBookID(ctx context.Context, bookID string) ([]Request, error) {
	return s.filter(ctx, func(r Request) bool { return r.BookID == bookID })
}

func (s *requestStore) FindByRequesterID(ctx context.Context, requesterID string) ([]Request, error) {
	return s.filter(ctx, func(r Request) bool { return r.RequesterID == requesterID })
}

func (s *requestStore) FindByBookIDs(ctx context.Context, bookIDs []string) ([]Request, error) {
	set := make(map[string]struct{}, len(bookIDs))
	for _, id := range bookIDs {
		set[id] = struct{}{}
	}
	return s.filter(ctx, func(r Request) bool {
		_, ok := set[r.BookID]
		return ok
	})
}

// FindByBookAndRequester returns the first request for the pair.
func (s *requestStore) FindByBookAndRequester(ctx context.Context, bookID, requesterID string) (*Request, error) {
	records, err := s.requests.Load(ctx)
	if err != nil {
		return nil, err
	}
	if r, ok := findPair(records, bookID, requesterID); ok {
		return &r, nil
	}
	return nil, ErrNotFound
}

func (s *requestStore) UpdateStatus(ctx context.Context, id string, status Status) (*Request, error) {
	if !status.Valid() {
		return nil, ErrInvalidStatus
	}
	var updated Request
	if err := s.requests.Mutate(ctx, s.statusFn(id, status, nil, &updated)); err != nil {
		return nil, err
	}
	return &updated, nil
}

func (s *requestStore) Append(req Request, check func([]Request) error) store.Change {
	stampNew(&req)
	return s.requests.Change(func(records []Request) ([]Request, error) {
		if check != nil {
			if err := check(records); err != nil {
				return nil, err
			}
		}
		return append(records, req), nil
	})
}

func (s *requestStore) StatusChange(id string, status Status, check func(Request) error, updated *Request) store.Change {
	return s.requests.Change(s.statusFn(id, status, check, updated))
}

func (s *requestStore) statusFn(id string, status Status, check func(Request) error, updated *Request) func([]Request) ([]Request, error) {
	return func(records []Request) ([]Request, error) {
		i := indexOf(records, id)
		if i < 0 {
			return nil, ErrNotFound
		}
		if check != nil {
			if err := check(records[i]); err != nil {
				return nil, err
			}
		}
		records[i].Status = status
		records[i].UpdatedAt = time.Now().UTC()
		if updated != nil {
			*updated = records[i]
		}
		return records, nil
	}
}

func (s *requestStore) filter(ctx context.Context, keep func(Request) bool) ([]Request, error) {
	records, err := s.requests.Load(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Request, 0)
	for _, r := range records {
		if keep(r) {
			out = append(out, r)
		}
	}
	return out, nil
}

func indexOf(records []Request, id string) int {
	for i, r := range records {
		if r.ID == id {
			return i
		}
	}
	return -1
}

func findPair(records []Request, bookID, requesterID string) (Request, bool) {
	for _, r := range records {
		if r.BookID == bookID && r.RequesterID == requesterID {
			return r, true
		}
	}
	return Request{}, false
}

func stampNew(r *Request) {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	if r.UpdatedAt.IsZero() {
		r.UpdatedAt = r.CreatedAt
	}
	if r.Status == "" {
		r.Status = StatusPending
	}
}
