// internal/books/domain.go
package books

import (
	"bytes"
	"encoding/json"
	"time"

	"bookswap/internal/errs"
)

// Condition describes the physical state of a listed book.
type Condition string

const (
	ConditionNew     Condition = "new"
	ConditionLikeNew Condition = "like new"
	ConditionGood    Condition = "good"
	ConditionFair    Condition = "fair"
	ConditionPoor    Condition = "poor"
)

// Valid reports whether c is one of the known conditions.
func (c Condition) Valid() bool {
	switch c {
	case ConditionNew, ConditionLikeNew, ConditionGood, ConditionFair, ConditionPoor:
		return true
	}
	return false
}

// Status is the swap availability of a book.
type Status string

const (
	StatusAvailable Status = "available"
	StatusPending   Status = "pending"
	StatusTraded    Status = "traded"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusAvailable, StatusPending, StatusTraded:
		return true
	}
	return false
}

// Book is a listed book owned by a user.
type Book struct {
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	Author    string     `json:"author"`
	Condition Condition  `json:"condition"`
	UserID    string     `json:"userId"`
	Status    Status     `json:"status"`
	CreatedAt Timestamp  `json:"createdAt"`
	UpdatedAt *time.Time `json:"updatedAt,omitempty"`
}

// Timestamp is a creation time that tolerates the placeholder object older
// data files hold instead of a date. Such records load with a zero time,
// which is written back as null.
type Timestamp struct {
	time.Time
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return t.Time.MarshalJSON()
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || data[0] != '"' {
		var placeholder map[string]json.RawMessage
		if bytes.Equal(data, []byte("null")) || json.Unmarshal(data, &placeholder) == nil {
			t.Time = time.Time{}
			return nil
		}
	}
	return t.Time.UnmarshalJSON(data)
}

// NewBook holds the fields for listing a book.
type NewBook struct {
	Title     string
	Author    string
	Condition Condition
	UserID    string
}

// Update lists the owner-editable fields. Nil fields are left unchanged.
type Update struct {
	Title     *string    `json:"title,omitempty"`
	Author    *string    `json:"author,omitempty"`
	Condition *Condition `json:"condition,omitempty"`
}

// Filter narrows a listing search. Zero values match everything.
type Filter struct {
	Query     string
	Condition Condition
}

// Listing is a book together with its owner's display fields.
type Listing struct {
	Book
	OwnerName  string `json:"userName"`
	OwnerEmail string `json:"userEmail"`
}

var (
	ErrNotFound         = errs.New(errs.NotFound, "Book not found")
	ErrMissingFields    = errs.New(errs.Validation, "Please provide all required fields")
	ErrInvalidCondition = errs.New(errs.Validation, "Invalid condition")
	ErrInvalidStatus    = errs.New(errs.Validation, "Invalid status")
	ErrForbidden        = errs.New(errs.Forbidden, "Not authorized")
)
