// internal/client/client.go

// Package client calls the BookSwap HTTP API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"bookswap/internal/auth"
	"bookswap/internal/books"
	"bookswap/internal/swaps"
	"bookswap/internal/users"
)

// APIError is a non-2xx response.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("unexpected status code %d: %s", e.StatusCode, e.Message)
}

// StatusOf returns the HTTP status carried by err, or 0.
func StatusOf(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}

type Client struct {
	baseURL string
	http    *http.Client
	token   string
}

// New returns a client for the API rooted at baseURL, e.g.
// "http://localhost:5000/api".
func New(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

// WithToken returns a copy of c that sends token as its bearer credential.
func (c *Client) WithToken(token string) *Client {
	cp := *c
	cp.token = token
	return &cp
}

func (c *Client) Register(ctx context.Context, name, email, password string) (*auth.Session, error) {
	var session auth.Session
	err := c.do(ctx, http.MethodPost, "/auth/register", users.NewUser{
		Name: name, Email: email, Password: password,
	}, &session)
	if err != nil {
		return nil, err
	}
	return &session, nil
}

func (c *Client) Login(ctx context.Context, email, password string) (*auth.Session, error) {
	body := map[string]string{"email": email, "password": password}
	var session auth.Session
	if err := c.do(ctx, http.MethodPost, "/auth/login", body, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

func (c *Client) Me(ctx context.Context) (*users.User, error) {
	var user users.User
	if err := c.do(ctx, http.MethodGet, "/auth/me", nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

func (c *Client) ListBooks(ctx context.Context, filter books.Filter) ([]books.Book, error) {
	q := url.Values{}
	if filter.Query != "" {
		q.Set("q", filter.Query)
	}
	if filter.Condition != "" {
		q.Set("condition", string(filter.Condition))
	}
	path := "/books"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var list []books.Book
	if err := c.do(ctx, http.MethodGet, path, nil, &list); err != nil {
		return nil, err
	}
	return list, nil
}

func (c *Client) GetBook(ctx context.Context, id string) (*books.Listing, error) {
	var listing books.Listing
	if err := c.do(ctx, http.MethodGet, "/books/"+url.PathEscape(id), nil, &listing); err != nil {
		return nil, err
	}
	return &listing, nil
}

func (c *Client) CreateBook(ctx context.Context, title, author string, condition books.Condition) (*books.Book, error) {
	body := map[string]string{"title": title, "author": author, "condition": string(condition)}
	var book books.Book
	if err := c.do(ctx, http.MethodPost, "/books", body, &book); err != nil {
		return nil, err
	}
	return &book, nil
}

func (c *Client) RequestBook(ctx context.Context, bookID, message string) (*swaps.Request, error) {
	body := map[string]string{"bookId": bookID, "message": message}
	var req swaps.Request
	if err := c.do(ctx, http.MethodPost, "/requests", body, &req); err != nil {
		return nil, err
	}
	return &req, nil
}

func (c *Client) Respond(ctx context.Context, requestID string, status swaps.Status) (*swaps.Request, error) {
	body := map[string]string{"status": string(status)}
	var req swaps.Request
	path := "/requests/" + url.PathEscape(requestID) + "/status"
	if err := c.do(ctx, http.MethodPatch, path, body, &req); err != nil {
		return nil, err
	}
	return &req, nil
}

// Incoming lists requests for the signed-in user's books.
func (c *Client) Incoming(ctx context.Context) ([]swaps.Request, error) {
	var list []swaps.Request
	if err := c.do(ctx, http.MethodGet, "/requests/my-books", nil, &list); err != nil {
		return nil, err
	}
	return list, nil
}

// Outgoing lists requests the signed-in user has made.
func (c *Client) Outgoing(ctx context.Context) ([]swaps.Request, error) {
	var list []swaps.Request
	if err := c.do(ctx, http.MethodGet, "/requests/my-requests", nil, &list); err != nil {
		return nil, err
	}
	return list, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var msg struct {
			Message string `json:"message"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&msg)
		return &APIError{StatusCode: resp.StatusCode, Message: msg.Message}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}
