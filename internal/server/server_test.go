package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"bookswap/internal/config"
	"bookswap/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, logs io.Writer) (*httptest.Server, *Services) {
	t.Helper()
	cfg := config.Default()
	cfg.Store.Dir = t.TempDir()
	cfg.Auth.RateLimit = 0

	db, err := store.Open(context.Background(), cfg.Store, nil)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	if logs == nil {
		logs = io.Discard
	}
	logger := slog.New(slog.NewJSONHandler(logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
	services := NewServices(cfg, db)
	ts := httptest.NewServer(New(cfg.Server, services, logger).Handler())
	t.Cleanup(ts.Close)
	return ts, services
}

type apiClient struct {
	t    *testing.T
	base string
}

func (c apiClient) do(method, path, token string, body interface{}, out interface{}) int {
	c.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(c.t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, c.base+path, &buf)
	require.NoError(c.t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(c.t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(c.t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

type session struct {
	User struct {
		ID    string `json:"id"`
		Name  string `json:"name"`
		Email string `json:"email"`
	} `json:"user"`
	Token string `json:"token"`
}

type message struct {
	Message string `json:"message"`
}

func TestSwapScenario(t *testing.T) {
	ts, _ := newTestServer(t, nil)
	api := apiClient{t: t, base: ts.URL + "/api"}

	// A registers and logs in.
	var a session
	require.Equal(t, http.StatusCreated, api.do(http.MethodPost, "/auth/register", "",
		map[string]string{"name": "Ann", "email": "ann@example.com", "password": "secret"}, &a))
	require.Equal(t, http.StatusOK, api.do(http.MethodPost, "/auth/login", "",
		map[string]string{"email": "ann@example.com", "password": "secret"}, &a))
	require.NotEmpty(t, a.Token)

	// A lists Dune.
	var dune struct {
		ID     string `json:"id"`
		Status string `json:"status"`
		UserID string `json:"userId"`
	}
	require.Equal(t, http.StatusCreated, api.do(http.MethodPost, "/books", a.Token,
		map[string]string{"title": "Dune", "author": "Herbert", "condition": "good"}, &dune))
	assert.Equal(t, "available", dune.Status)
	assert.Equal(t, a.User.ID, dune.UserID)

	// B registers and requests Dune.
	var b session
	require.Equal(t, http.StatusCreated, api.do(http.MethodPost, "/auth/register", "",
		map[string]string{"name": "Ben", "email": "ben@example.com", "password": "secret"}, &b))

	var req struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	require.Equal(t, http.StatusCreated, api.do(http.MethodPost, "/requests", b.Token,
		map[string]string{"bookId": dune.ID, "message": "Trade for Emma?"}, &req))
	assert.Equal(t, "pending", req.Status)

	// A sees the incoming request and accepts it.
	var incoming []map[string]interface{}
	require.Equal(t, http.StatusOK, api.do(http.MethodGet, "/requests/my-books", a.Token, nil, &incoming))
	require.Len(t, incoming, 1)

	var accepted struct {
		Status string `json:"status"`
	}
	require.Equal(t, http.StatusOK, api.do(http.MethodPatch, "/requests/"+req.ID+"/status", a.Token,
		map[string]string{"status": "accepted"}, &accepted))
	assert.Equal(t, "accepted", accepted.Status)

	var listing struct {
		Status    string `json:"status"`
		UserName  string `json:"userName"`
		UserEmail string `json:"userEmail"`
	}
	require.Equal(t, http.StatusOK, api.do(http.MethodGet, "/books/"+dune.ID, "", nil, &listing))
	assert.Equal(t, "traded", listing.Status)
	assert.Equal(t, "Ann", listing.UserName)
	assert.Equal(t, "ann@example.com", listing.UserEmail)

	// B asks again and is turned away.
	var conflict message
	assert.Equal(t, http.StatusConflict, api.do(http.MethodPost, "/requests", b.Token,
		map[string]string{"bookId": dune.ID}, &conflict))
	assert.NotEmpty(t, conflict.Message)
}

func TestAuthMeRequiresToken(t *testing.T) {
	ts, _ := newTestServer(t, nil)
	api := apiClient{t: t, base: ts.URL + "/api"}

	var body message
	assert.Equal(t, http.StatusUnauthorized, api.do(http.MethodGet, "/auth/me", "", nil, &body))
	assert.Equal(t, "No token, authorization denied", body.Message)

	assert.Equal(t, http.StatusUnauthorized, api.do(http.MethodGet, "/auth/me", "nonsense", nil, &body))
	assert.Equal(t, "Token is not valid", body.Message)
}

func TestHealthz(t *testing.T) {
	ts, _ := newTestServer(t, nil)

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])
}

func TestUnknownRoute(t *testing.T) {
	ts, _ := newTestServer(t, nil)

	resp, err := http.Get(ts.URL + "/api/nope")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

// lockedBuffer is written by server goroutines and read by the test.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return bytes.Clone(b.buf.Bytes())
}

func TestRequestLogging(t *testing.T) {
	logs := &lockedBuffer{}
	ts, _ := newTestServer(t, logs)

	resp, err := http.Get(ts.URL + "/api/books/missing")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	var found bool
	dec := json.NewDecoder(bytes.NewReader(logs.Bytes()))
	for dec.More() {
		var entry map[string]interface{}
		require.NoError(t, dec.Decode(&entry))
		if entry["msg"] != "HTTP request processed" {
			continue
		}
		found = true
		assert.Equal(t, "WARN", entry["level"])
		assert.Equal(t, "/api/books/missing", entry["path"])
		assert.EqualValues(t, http.StatusNotFound, entry["status"])
		assert.NotEmpty(t, entry["request_id"])
	}
	assert.True(t, found)
}

func TestCORS(t *testing.T) {
	handler := allowOrigins([]string{"http://localhost:3000"})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	req := httptest.NewRequest(http.MethodOptions, "/api/books", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	req.Header.Set("Access-Control-Request-Headers", "authorization, content-type")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, strings.ToLower(rec.Header().Get("Access-Control-Allow-Headers")), "authorization")

	req = httptest.NewRequest(http.MethodGet, "/api/books", nil)
	req.Header.Set("Origin", "http://evil.test")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))

	wildcard := allowOrigins([]string{"*"})(handler)
	req = httptest.NewRequest(http.MethodGet, "/api/books", nil)
	req.Header.Set("Origin", "http://anywhere.test")
	rec = httptest.NewRecorder()
	wildcard.ServeHTTP(rec, req)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRunStopsOnCancel(t *testing.T) {
	cfg := config.Default()
	cfg.Store.Dir = t.TempDir()
	cfg.Server.Port = "0"
	cfg.Server.ShutdownTimeout = config.Duration{Duration: time.Second}

	db, err := store.Open(context.Background(), cfg.Store, nil)
	require.NoError(t, err)
	defer db.Close()

	srv := New(cfg.Server, NewServices(cfg, db), slog.New(slog.NewTextHandler(io.Discard, nil)))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
