// internal/store/postgres.go
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/sony/gobreaker"
)

const postgresSchema = `
	CREATE TABLE IF NOT EXISTS bookswap_collections (
		name       TEXT PRIMARY KEY,
		records    JSONB NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)
`

// PostgresBackend keeps each collection as one JSONB row. It is a drop-in
// replacement for FileBackend when several hosts share the same data.
type PostgresBackend struct {
	db      *sqlx.DB
	breaker *gobreaker.CircuitBreaker
}

// OpenPostgres connects to dsn and creates the collections table.
func OpenPostgres(ctx context.Context, dsn string) (*PostgresBackend, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if _, err := db.ExecContext(ctx, postgresSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return NewPostgresBackend(db), nil
}

// NewPostgresBackend wraps an open connection pool.
func NewPostgresBackend(db *sqlx.DB) *PostgresBackend {
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "postgres-store",
		MaxRequests: 1,
		Timeout:     10 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrNoData)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("Circuit breaker state changed",
				slog.String("breaker", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()))
		},
	})
	return &PostgresBackend{db: db, breaker: breaker}
}

func (b *PostgresBackend) Read(ctx context.Context, name string) ([]byte, error) {
	out, err := b.breaker.Execute(func() (interface{}, error) {
		var data []byte
		err := b.db.GetContext(ctx, &data, `
			SELECT records
			FROM bookswap_collections
			WHERE name = $1
		`, name)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNoData
		}
		if err != nil {
			return nil, fmt.Errorf("select %s: %w", name, err)
		}
		return data, nil
	})
	if err != nil {
		return nil, err
	}
	return out.([]byte), nil
}

func (b *PostgresBackend) Write(ctx context.Context, name string, data []byte) error {
	_, err := b.breaker.Execute(func() (interface{}, error) {
		_, err := b.db.ExecContext(ctx, `
			INSERT INTO bookswap_collections (name, records, updated_at)
			VALUES ($1, $2, NOW())
			ON CONFLICT (name) DO UPDATE
			SET records = EXCLUDED.records,
			    updated_at = EXCLUDED.updated_at
		`, name, string(data))
		if err != nil {
			return nil, fmt.Errorf("upsert %s: %w", name, err)
		}
		return nil, nil
	})
	return err
}

func (b *PostgresBackend) Close() error { return b.db.Close() }
