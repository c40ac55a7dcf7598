// internal/store/store.go

// Package store persists each entity collection as a whole JSON array.
//
// Every operation loads the full collection, works on it in memory and
// writes the full collection back. Writes from one process are serialized by
// a single lock on the DB; several collections can be changed together with
// Apply, which runs every staged function before writing anything and
// restores earlier writes if a later one fails.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
)

// Config selects the backend and names the collections. It is built once at
// process start and handed to Open.
type Config struct {
	Driver       string `toml:"driver"`
	Dir          string `toml:"dir"`
	DSN          string `toml:"dsn"`
	UsersFile    string `toml:"users_file"`
	BooksFile    string `toml:"books_file"`
	RequestsFile string `toml:"requests_file"`
	// ResetCorrupt treats an unparseable collection as empty instead of
	// failing. The next write to it replaces the damaged contents.
	ResetCorrupt bool `toml:"reset_corrupt"`
}

// DefaultConfig uses data/{users,books,requests}.json.
func DefaultConfig() Config {
	return Config{
		Driver:       "file",
		Dir:          "data",
		UsersFile:    "users.json",
		BooksFile:    "books.json",
		RequestsFile: "requests.json",
	}
}

// Collections lists the configured collection names.
func (c Config) Collections() []string {
	return []string{c.UsersFile, c.BooksFile, c.RequestsFile}
}

// DB owns the backend and the process-wide write lock.
type DB struct {
	mu           sync.Mutex
	backend      Backend
	resetCorrupt bool
	names        []string
	logger       *slog.Logger
	tracer       trace.Tracer
	ops          metric.Int64Counter
}

// Open builds the configured backend and makes sure every collection exists
// and parses.
func Open(ctx context.Context, cfg Config, logger *slog.Logger) (*DB, error) {
	var (
		backend Backend
		err     error
	)
	switch cfg.Driver {
	case "", "file":
		backend, err = NewFileBackend(cfg.Dir)
	case "postgres":
		backend, err = OpenPostgres(ctx, cfg.DSN)
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, err
	}

	db := New(backend, cfg, logger)
	if err := db.Init(ctx); err != nil {
		backend.Close()
		return nil, err
	}
	return db, nil
}

// New wraps an existing backend without touching its contents.
func New(backend Backend, cfg Config, logger *slog.Logger) *DB {
	if logger == nil {
		logger = slog.Default()
	}
	meter := otel.Meter("bookswap/store")
	ops, err := meter.Int64Counter("bookswap.store.operations",
		metric.WithDescription("Collection loads and saves"))
	if err != nil {
		ops, _ = noop.NewMeterProvider().Meter("bookswap/store").Int64Counter("bookswap.store.operations")
	}
	return &DB{
		backend:      backend,
		resetCorrupt: cfg.ResetCorrupt,
		names:        cfg.Collections(),
		logger:       logger,
		tracer:       otel.Tracer("bookswap/store"),
		ops:          ops,
	}
}

// Init writes an empty array for every missing collection and checks that
// the existing ones parse. A collection that does not parse is an error
// unless ResetCorrupt is set.
func (db *DB) Init(ctx context.Context) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	for _, name := range db.names {
		data, err := db.backend.Read(ctx, name)
		if errors.Is(err, ErrNoData) {
			if err := db.backend.Write(ctx, name, []byte("[]\n")); err != nil {
				return fmt.Errorf("initialize %s: %w", name, err)
			}
			continue
		}
		if err != nil {
			return err
		}

		var raw []json.RawMessage
		if err := json.Unmarshal(data, &raw); err != nil {
			if !db.resetCorrupt {
				return fmt.Errorf("%w: %s: %w", ErrCorrupt, name, err)
			}
			db.logger.Warn("Collection is corrupt and will be treated as empty",
				slog.String("collection", name),
				slog.Any("error", err))
		}
	}
	return nil
}

// Ping reads one collection to confirm the backend answers.
func (db *DB) Ping(ctx context.Context) error {
	if len(db.names) == 0 {
		return nil
	}
	_, err := db.backend.Read(ctx, db.names[0])
	if errors.Is(err, ErrNoData) {
		return nil
	}
	return err
}

// Backend exposes the underlying backend, mainly for tooling.
func (db *DB) Backend() Backend { return db.backend }

func (db *DB) Close() error { return db.backend.Close() }

// Change is one collection's staged mutation for Apply.
type Change struct {
	name  string
	write bool
	apply func(ctx context.Context, current []byte) ([]byte, error)
}

type staged struct {
	name   string
	before []byte
	after  []byte
}

// Apply runs every change under the write lock. All change functions run
// before the first write; if any of them fails nothing is written. If a write
// fails, the collections already written are restored to their previous
// contents.
func (db *DB) Apply(ctx context.Context, changes ...Change) error {
	ctx, span := db.tracer.Start(ctx, "store.apply",
		trace.WithAttributes(attribute.Int("change.count", len(changes))),
	)
	defer span.End()

	db.mu.Lock()
	defer db.mu.Unlock()

	pending := make([]staged, 0, len(changes))
	for _, c := range changes {
		before, err := db.backend.Read(ctx, c.name)
		if err != nil && !errors.Is(err, ErrNoData) {
			span.RecordError(err)
			return err
		}
		after, err := c.apply(ctx, before)
		if err != nil {
			return err
		}
		if c.write {
			pending = append(pending, staged{name: c.name, before: before, after: after})
		}
	}

	for i, s := range pending {
		if err := db.save(ctx, s); err != nil {
			span.RecordError(err)
			db.compensate(ctx, pending[:i])
			return fmt.Errorf("save %s: %w", s.name, err)
		}
		db.ops.Add(ctx, 1, metric.WithAttributes(
			attribute.String("op", "save"),
			attribute.String("collection", s.name),
		))
	}

	span.SetAttributes(attribute.Int("write.count", len(pending)))
	return nil
}

func (db *DB) save(ctx context.Context, s staged) error {
	ctx, span := db.tracer.Start(ctx, "store.save",
		trace.WithAttributes(
			attribute.String("collection", s.name),
			attribute.Int("bytes", len(s.after)),
		),
	)
	defer span.End()

	if err := db.backend.Write(ctx, s.name, s.after); err != nil {
		span.RecordError(err)
		return err
	}
	return nil
}

func (db *DB) compensate(ctx context.Context, written []staged) {
	ctx = context.WithoutCancel(ctx)
	for i := len(written) - 1; i >= 0; i-- {
		s := written[i]
		db.logger.Warn("Compensating partial write",
			slog.String("collection", s.name))
		before := s.before
		if before == nil {
			before = []byte("[]\n")
		}
		if err := db.backend.Write(ctx, s.name, before); err != nil {
			db.logger.Error("Failed to compensate partial write",
				slog.String("collection", s.name),
				slog.Any("error", err))
		}
	}
}
