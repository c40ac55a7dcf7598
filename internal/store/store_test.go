package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

type record struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func tempDB(t *testing.T) (*DB, Config) {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Dir = t.TempDir()
	db, err := Open(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db, cfg
}

func TestOpenInitializesCollections(t *testing.T) {
	_, cfg := tempDB(t)

	for _, name := range cfg.Collections() {
		data, err := os.ReadFile(filepath.Join(cfg.Dir, name))
		require.NoError(t, err)
		assert.JSONEq(t, `[]`, string(data))
	}
}

func TestLoadMissingCollectionIsEmpty(t *testing.T) {
	db, _ := tempDB(t)
	coll := NewCollection[record](db, "never-written.json")

	got, err := coll.Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSaveThenLoadKeepsOrder(t *testing.T) {
	db, cfg := tempDB(t)
	coll := NewCollection[record](db, cfg.BooksFile)
	ctx := context.Background()

	want := []record{{ID: "1", Name: "a"}, {ID: "2", Name: "b"}, {ID: "3", Name: "c"}}
	require.NoError(t, coll.Save(ctx, want))

	got, err := coll.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestSaveNilWritesEmptyArray(t *testing.T) {
	db, cfg := tempDB(t)
	coll := NewCollection[record](db, cfg.BooksFile)

	require.NoError(t, coll.Save(context.Background(), nil))

	data, err := os.ReadFile(filepath.Join(cfg.Dir, cfg.BooksFile))
	require.NoError(t, err)
	assert.JSONEq(t, `[]`, string(data))
}

func TestCorruptCollection(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultConfig()
	cfg.Dir = dir
	require.NoError(t, os.WriteFile(filepath.Join(dir, cfg.UsersFile), []byte("{not json"), 0o644))

	_, err := Open(context.Background(), cfg, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCorrupt)

	cfg.ResetCorrupt = true
	db, err := Open(context.Background(), cfg, nil)
	require.NoError(t, err)
	defer db.Close()

	users := NewCollection[record](db, cfg.UsersFile)
	got, err := users.Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestLoadCorruptWithoutReset(t *testing.T) {
	db, cfg := tempDB(t)
	require.NoError(t, os.WriteFile(filepath.Join(cfg.Dir, cfg.BooksFile), []byte(`{"id":"x"}`), 0o644))

	_, err := NewCollection[record](db, cfg.BooksFile).Load(context.Background())
	assert.ErrorIs(t, err, ErrCorrupt)
}

func TestMutateErrorWritesNothing(t *testing.T) {
	db, cfg := tempDB(t)
	coll := NewCollection[record](db, cfg.BooksFile)
	ctx := context.Background()
	require.NoError(t, coll.Save(ctx, []record{{ID: "1"}}))

	boom := errors.New("boom")
	err := coll.Mutate(ctx, func(rs []record) ([]record, error) {
		return append(rs, record{ID: "2"}), boom
	})
	require.ErrorIs(t, err, boom)

	got, err := coll.Load(ctx)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestConcurrentMutateLosesNothing(t *testing.T) {
	db, cfg := tempDB(t)
	coll := NewCollection[record](db, cfg.RequestsFile)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := coll.Mutate(ctx, func(rs []record) ([]record, error) {
				return append(rs, record{ID: fmt.Sprint(i)}), nil
			})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	got, err := coll.Load(ctx)
	require.NoError(t, err)
	assert.Len(t, got, 50)
}

func TestApplyCheckBlocksWrites(t *testing.T) {
	db, cfg := tempDB(t)
	books := NewCollection[record](db, cfg.BooksFile)
	requests := NewCollection[record](db, cfg.RequestsFile)
	ctx := context.Background()

	denied := errors.New("denied")
	err := db.Apply(ctx,
		books.Check(func([]record) error { return denied }),
		requests.Change(func(rs []record) ([]record, error) {
			return append(rs, record{ID: "r1"}), nil
		}),
	)
	require.ErrorIs(t, err, denied)

	got, err := requests.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, got)
}

// flakyBackend fails writes to one collection.
type flakyBackend struct {
	Backend
	failOn string
}

func (b *flakyBackend) Write(ctx context.Context, name string, data []byte) error {
	if name == b.failOn {
		return errors.New("disk full")
	}
	return b.Backend.Write(ctx, name, data)
}

func TestApplyCompensatesEarlierWrites(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Dir = t.TempDir()
	files, err := NewFileBackend(cfg.Dir)
	require.NoError(t, err)

	ctx := context.Background()
	healthy := New(files, cfg, nil)
	require.NoError(t, healthy.Init(ctx))
	require.NoError(t, NewCollection[record](healthy, cfg.RequestsFile).Save(ctx, []record{{ID: "r1", Name: "pending"}}))

	db := New(&flakyBackend{Backend: files, failOn: cfg.BooksFile}, cfg, nil)
	requests := NewCollection[record](db, cfg.RequestsFile)
	books := NewCollection[record](db, cfg.BooksFile)

	err = db.Apply(ctx,
		requests.Change(func(rs []record) ([]record, error) {
			rs[0].Name = "accepted"
			return rs, nil
		}),
		books.Change(func(rs []record) ([]record, error) {
			return append(rs, record{ID: "b1"}), nil
		}),
	)
	require.Error(t, err)

	got, err := requests.Load(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "pending", got[0].Name)
}

func TestOpenUnknownDriver(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Driver = "cassette"
	_, err := Open(context.Background(), cfg, nil)
	assert.Error(t, err)
}

func TestPing(t *testing.T) {
	db, _ := tempDB(t)
	assert.NoError(t, db.Ping(context.Background()))

	failing := New(&flakyReads{}, DefaultConfig(), nil)
	assert.Error(t, failing.Ping(context.Background()))
}

type flakyReads struct{ Backend }

func (flakyReads) Read(context.Context, string) ([]byte, error) {
	return nil, errors.New("connection refused")
}

func TestApplyTracesEachSave(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	before := otel.GetTracerProvider()
	otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder)))
	t.Cleanup(func() { otel.SetTracerProvider(before) })

	db, cfg := tempDB(t)
	books := NewCollection[record](db, cfg.BooksFile)
	requests := NewCollection[record](db, cfg.RequestsFile)
	ctx := context.Background()

	require.NoError(t, db.Apply(ctx,
		books.Change(func(rs []record) ([]record, error) {
			return append(rs, record{ID: "b1"}), nil
		}),
		requests.Check(func([]record) error { return nil }),
		requests.Change(func(rs []record) ([]record, error) {
			return append(rs, record{ID: "r1"}), nil
		}),
	))

	var apply sdktrace.ReadOnlySpan
	var saved []string
	for _, span := range recorder.Ended() {
		switch span.Name() {
		case "store.apply":
			apply = span
		case "store.save":
			for _, kv := range span.Attributes() {
				if kv.Key == "collection" {
					saved = append(saved, kv.Value.AsString())
				}
			}
		}
	}
	require.NotNil(t, apply)
	assert.Equal(t, []string{cfg.BooksFile, cfg.RequestsFile}, saved)

	for _, span := range recorder.Ended() {
		if span.Name() == "store.save" {
			assert.Equal(t, apply.SpanContext().SpanID(), span.Parent().SpanID())
		}
	}
}
