// internal/books/implementation.go
package books

import (
	"context"
	"strings"
	"time"

	"bookswap/internal/store"

	"github.com/google/uuid"
	"github.com/sahilm/fuzzy"
)

// service implements the Service interface.
type service struct {
	books *store.Collection[Book]
}

// NewService creates a book store over the named collection.
func NewService(db *store.DB, collection string) Service {
	return &service{
		books: store.NewCollection[Book](db, collection),
	}
}

// Create lists a new available book.
func (s *service) Create(ctx context.Context, input NewBook) (*Book, error) {
	title := strings.TrimSpace(input.Title)
	author := strings.TrimSpace(input.Author)
	if title == "" || author == "" || input.Condition == "" || input.UserID == "" {
		return nil, ErrMissingFields
	}
	if !input.Condition.Valid() {
		return nil, ErrInvalidCondition
	}

	book := Book{
		ID:        uuid.NewString(),
		Title:     title,
		Author:    author,
		Condition: input.Condition,
		UserID:    input.UserID,
		Status:    StatusAvailable,
		CreatedAt: Timestamp{time.Now().UTC()},
	}

	err := s.books.Mutate(ctx, func(records []Book) ([]Book, error) {
		return append(records, book), nil
	})
	if err != nil {
		return nil, err
	}
	return &book, nil
}

// FindAll returns every book in listing order.
func (s *service) FindAll(ctx context.Context) ([]Book, error) {
	return s.books.Load(ctx)
}

// Search filters by condition and matches the query against title and author.
// Books whose title or author contains the query are returned in listing
// order. Only when none do, fuzzy matches are returned ranked best first.
func (s *service) Search(ctx context.Context, filter Filter) ([]Book, error) {
	records, err := s.books.Load(ctx)
	if err != nil {
		return nil, err
	}

	if filter.Condition != "" {
		filtered := records[:0]
		for _, b := range records {
			if strings.EqualFold(string(b.Condition), string(filter.Condition)) {
				filtered = append(filtered, b)
			}
		}
		records = filtered
	}

	query := strings.ToLower(strings.TrimSpace(filter.Query))
	if query == "" {
		return records, nil
	}

	var out []Book
	for _, b := range records {
		if strings.Contains(strings.ToLower(b.Title), query) ||
			strings.Contains(strings.ToLower(b.Author), query) {
			out = append(out, b)
		}
	}
	if len(out) > 0 {
		return out, nil
	}

	matches := fuzzy.FindFrom(query, searchSource(records))
	out = make([]Book, 0, len(matches))
	for _, m := range matches {
		out = append(out, records[m.Index])
	}
	return out, nil
}

// searchSource adapts a book slice for fuzzy matching.
type searchSource []Book

func (s searchSource) String(i int) string {
	return strings.ToLower(s[i].Title + " " + s[i].Author)
}

func (s searchSource) Len() int { return len(s) }

// FindByUserID returns the books owned by userID.
func (s *service) FindByUserID(ctx context.Context, userID string) ([]Book, error) {
	records, err := s.books.Load(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Book, 0)
	for _, b := range records {
		if b.UserID == userID {
			out = append(out, b)
		}
	}
	return out, nil
}

// FindByID returns the book with the given id.
func (s *service) FindByID(ctx context.Context, id string) (*Book, error) {
	records, err := s.books.Load(ctx)
	if err != nil {
		return nil, err
	}
	if i := indexOf(records, id); i >= 0 {
		return &records[i], nil
	}
	return nil, ErrNotFound
}

// Update merges the set fields of update into the book.
func (s *service) Update(ctx context.Context, id string, update Update) (*Book, error) {
	if update.Condition != nil && !update.Condition.Valid() {
		return nil, ErrInvalidCondition
	}
	if (update.Title != nil && strings.TrimSpace(*update.Title) == "") ||
		(update.Author != nil && strings.TrimSpace(*update.Author) == "") {
		return nil, ErrMissingFields
	}

	return s.modify(ctx, id, func(b *Book) error {
		if update.Title != nil {
			b.Title = strings.TrimSpace(*update.Title)
		}
		if update.Author != nil {
			b.Author = strings.TrimSpace(*update.Author)
		}
		if update.Condition != nil {
			b.Condition = *update.Condition
		}
		return nil
	})
}

// UpdateStatus sets the book's status.
func (s *service) UpdateStatus(ctx context.Context, id string, status Status) (*Book, error) {
	if !status.Valid() {
		return nil, ErrInvalidStatus
	}
	return s.modify(ctx, id, func(b *Book) error {
		b.Status = status
		return nil
	})
}

// Delete removes the book only when userID owns it. It reports whether a
// book was removed.
func (s *service) Delete(ctx context.Context, id, userID string) (bool, error) {
	removed := false
	err := s.books.Mutate(ctx, func(records []Book) ([]Book, error) {
		for i, b := range records {
			if b.ID == id && b.UserID == userID {
				removed = true
				return append(records[:i], records[i+1:]...), nil
			}
		}
		return nil, errNothingRemoved
	})
	if err == errNothingRemoved {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return removed, nil
}

// Guard stages a read-only check of one book.
func (s *service) Guard(id string, check func(Book) error) store.Change {
	return s.books.Check(func(records []Book) error {
		i := indexOf(records, id)
		if i < 0 {
			return ErrNotFound
		}
		return check(records[i])
	})
}

// StatusChange stages a status update of one book.
func (s *service) StatusChange(id string, status Status, check func(Book) error) store.Change {
	return s.books.Change(func(records []Book) ([]Book, error) {
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
		stamp(&records[i])
		return records, nil
	})
}

func (s *service) modify(ctx context.Context, id string, fn func(*Book) error) (*Book, error) {
	var updated Book
	err := s.books.Mutate(ctx, func(records []Book) ([]Book, error) {
		i := indexOf(records, id)
		if i < 0 {
			return nil, ErrNotFound
		}
		if err := fn(&records[i]); err != nil {
			return nil, err
		}
		stamp(&records[i])
		updated = records[i]
		return records, nil
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}
