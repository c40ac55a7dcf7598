// internal/store/collection.go
package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Collection is a homogeneous list of records of type T stored under one name.
type Collection[T any] struct {
	db   *DB
	name string
}

// NewCollection binds name on db to the record type T.
func NewCollection[T any](db *DB, name string) *Collection[T] {
	return &Collection[T]{db: db, name: name}
}

// Name returns the collection's backing name.
func (c *Collection[T]) Name() string { return c.name }

// Load returns every record in stored order. A collection that was never
// written is empty.
func (c *Collection[T]) Load(ctx context.Context) ([]T, error) {
	ctx, span := c.db.tracer.Start(ctx, "store.load",
		trace.WithAttributes(attribute.String("collection", c.name)),
	)
	defer span.End()

	data, err := c.db.backend.Read(ctx, c.name)
	if err != nil && !errors.Is(err, ErrNoData) {
		span.RecordError(err)
		return nil, err
	}
	records, err := c.decode(data)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	c.db.ops.Add(ctx, 1, metric.WithAttributes(
		attribute.String("op", "load"),
		attribute.String("collection", c.name),
	))
	span.SetAttributes(attribute.Int("records", len(records)))
	return records, nil
}

// Save overwrites the collection with records.
func (c *Collection[T]) Save(ctx context.Context, records []T) error {
	return c.db.Apply(ctx, Change{
		name:  c.name,
		write: true,
		apply: func(context.Context, []byte) ([]byte, error) {
			return encode(records)
		},
	})
}

// Mutate loads the collection, passes it to fn and saves what fn returns,
// all under the write lock. Nothing is written when fn fails.
func (c *Collection[T]) Mutate(ctx context.Context, fn func([]T) ([]T, error)) error {
	return c.db.Apply(ctx, c.Change(fn))
}

// Change stages fn for DB.Apply.
func (c *Collection[T]) Change(fn func([]T) ([]T, error)) Change {
	return Change{
		name:  c.name,
		write: true,
		apply: func(_ context.Context, current []byte) ([]byte, error) {
			records, err := c.decode(current)
			if err != nil {
				return nil, err
			}
			out, err := fn(records)
			if err != nil {
				return nil, err
			}
			return encode(out)
		},
	}
}

// Check stages a read-only precondition for DB.Apply. It sees the same state
// the other staged changes see and writes nothing.
func (c *Collection[T]) Check(fn func([]T) error) Change {
	return Change{
		name: c.name,
		apply: func(_ context.Context, current []byte) ([]byte, error) {
			records, err := c.decode(current)
			if err != nil {
				return nil, err
			}
			return nil, fn(records)
		},
	}
}

func (c *Collection[T]) decode(data []byte) ([]T, error) {
	records := []T{}
	if len(bytes.TrimSpace(data)) == 0 {
		return records, nil
	}
	if err := json.Unmarshal(data, &records); err != nil {
		if c.db.resetCorrupt {
			c.db.logger.Warn("Ignoring corrupt collection",
				slog.String("collection", c.name),
				slog.Any("error", err))
			return []T{}, nil
		}
		return nil, fmt.Errorf("%w: %s: %w", ErrCorrupt, c.name, err)
	}
	return records, nil
}

func encode[T any](records []T) ([]byte, error) {
	if records == nil {
		records = []T{}
	}
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode records: %w", err)
	}
	return append(data, '\n'), nil
}
