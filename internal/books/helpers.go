// internal/books/helpers.go
package books

import (
	"errors"
	"time"
)

// errNothingRemoved aborts a delete without rewriting the collection.
var errNothingRemoved = errors.New("nothing removed")

func indexOf(records []Book, id string) int {
	for i, b := range records {
		if b.ID == id {
			return i
		}
	}
	return -1
}

func stamp(b *Book) {
	now := time.Now().UTC()
	b.UpdatedAt = &now
}
