// internal/chaos/experiments.go
package chaos

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"bookswap/internal/books"
	"bookswap/internal/client"
	"bookswap/internal/swaps"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// RegisterExperiments registers the swap experiments against api.
func (e *Engine) RegisterExperiments(api *client.Client, concurrency int, duration time.Duration) {
	e.RegisterExperiment(DuplicateRequestExperiment(api, concurrency, duration))
	e.RegisterExperiment(ConcurrentAcceptExperiment(api, concurrency, duration))
}

// DuplicateRequestExperiment has one user request the same book many times at
// once. Exactly one request may be stored.
func DuplicateRequestExperiment(api *client.Client, concurrency int, duration time.Duration) Experiment {
	var (
		owner, requester *client.Client
		bookID           string
		created          atomic.Int64
	)

	requestsForBook := func(ctx context.Context) (float64, error) {
		if requester == nil {
			return 0, nil
		}
		list, err := requester.Outgoing(ctx)
		if err != nil {
			return 0, err
		}
		n := 0
		for _, r := range list {
			if r.BookID == bookID {
				n++
			}
		}
		return float64(n), nil
	}

	return Experiment{
		Name:       "concurrent-duplicate-requests",
		Hypothesis: "Concurrent requests for the same book by the same user store exactly one request",
		Setup: []Action{
			{
				Type:   "create-fixtures",
				Target: "api",
				Execute: func(ctx context.Context) error {
					var err error
					if owner, err = signUp(ctx, api, "owner"); err != nil {
						return err
					}
					if requester, err = signUp(ctx, api, "requester"); err != nil {
						return err
					}
					book, err := owner.CreateBook(ctx, "Dune", "Frank Herbert", books.ConditionGood)
					if err != nil {
						return err
					}
					bookID = book.ID
					return nil
				},
			},
		},
		SteadyState: []Metric{
			{
				Name:      "requests_for_book",
				Query:     requestsForBook,
				Threshold: Threshold{Operator: "<=", Value: 1},
			},
		},
		Method: []Action{
			{
				Type:   "concurrent-requests",
				Target: "requests",
				Execute: func(ctx context.Context) error {
					return burst(ctx, concurrency, func(ctx context.Context, _ int) error {
						_, err := requester.RequestBook(ctx, bookID, "chaos")
						if err == nil {
							created.Add(1)
							return nil
						}
						return expectStatus(err, http.StatusConflict)
					})
				},
			},
		},
		Validation: []Assertion{
			{
				Metric:    "requests_for_book",
				Condition: func(v float64) bool { return v == 1 && created.Load() == 1 },
				Message:   "Exactly one request should be stored and acknowledged",
			},
		},
		Duration: duration,
	}
}

// ConcurrentAcceptExperiment has an owner accept every pending request for one
// book at once. Exactly one acceptance may win and the book must end up
// traded.
func ConcurrentAcceptExperiment(api *client.Client, concurrency int, duration time.Duration) Experiment {
	var (
		owner      *client.Client
		bookID     string
		requestIDs []string
		accepted   atomic.Int64
	)

	acceptedForBook := func(ctx context.Context) (int, error) {
		list, err := owner.Incoming(ctx)
		if err != nil {
			return 0, err
		}
		n := 0
		for _, r := range list {
			if r.BookID == bookID && r.Status == swaps.StatusAccepted {
				n++
			}
		}
		return n, nil
	}

	return Experiment{
		Name:       "concurrent-acceptance",
		Hypothesis: "Accepting several requests for one book at once accepts exactly one and trades the book",
		Setup: []Action{
			{
				Type:   "create-fixtures",
				Target: "api",
				Execute: func(ctx context.Context) error {
					var err error
					if owner, err = signUp(ctx, api, "owner"); err != nil {
						return err
					}
					book, err := owner.CreateBook(ctx, "Emma", "Jane Austen", books.ConditionFair)
					if err != nil {
						return err
					}
					bookID = book.ID

					requestIDs = make([]string, 0, concurrency)
					for i := 0; i < concurrency; i++ {
						requester, err := signUp(ctx, api, fmt.Sprintf("requester-%d", i))
						if err != nil {
							return err
						}
						req, err := requester.RequestBook(ctx, bookID, "chaos")
						if err != nil {
							return err
						}
						requestIDs = append(requestIDs, req.ID)
					}
					return nil
				},
			},
		},
		SteadyState: []Metric{
			{
				Name: "accepted_requests",
				Query: func(ctx context.Context) (float64, error) {
					n, err := acceptedForBook(ctx)
					return float64(n), err
				},
				Threshold: Threshold{Operator: "<=", Value: 1},
			},
			{
				Name: "accepted_not_traded",
				Query: func(ctx context.Context) (float64, error) {
					n, err := acceptedForBook(ctx)
					if err != nil || n == 0 {
						return 0, err
					}
					listing, err := owner.GetBook(ctx, bookID)
					if err != nil {
						return 0, err
					}
					if listing.Status != books.StatusTraded {
						return 1, nil
					}
					return 0, nil
				},
				Threshold: Threshold{Operator: "==", Value: 0},
			},
		},
		Method: []Action{
			{
				Type:   "concurrent-accepts",
				Target: "requests",
				Execute: func(ctx context.Context) error {
					return burst(ctx, len(requestIDs), func(ctx context.Context, i int) error {
						_, err := owner.Respond(ctx, requestIDs[i], swaps.StatusAccepted)
						if err == nil {
							accepted.Add(1)
							return nil
						}
						return expectStatus(err, http.StatusConflict)
					})
				},
			},
		},
		Validation: []Assertion{
			{
				Metric:    "accepted_requests",
				Condition: func(v float64) bool { return v == 1 && accepted.Load() == 1 },
				Message:   "Exactly one acceptance should succeed",
			},
			{
				Metric:    "accepted_not_traded",
				Condition: func(v float64) bool { return v == 0 },
				Message:   "The book of an accepted request should be traded",
			},
		},
		Duration: duration,
	}
}

// burst runs fn n times concurrently and joins the failures.
func burst(ctx context.Context, n int, fn func(ctx context.Context, i int) error) error {
	var (
		g    errgroup.Group
		errs = make([]error, n)
	)
	start := make(chan struct{})
	for i := 0; i < n; i++ {
		g.Go(func() error {
			<-start
			errs[i] = fn(ctx, i)
			return nil
		})
	}
	close(start)
	_ = g.Wait()
	return errors.Join(errs...)
}

func expectStatus(err error, status int) error {
	if client.StatusOf(err) == status {
		return nil
	}
	return err
}

// signUp registers a throwaway user, backing off while registration is rate
// limited.
func signUp(ctx context.Context, api *client.Client, role string) (*client.Client, error) {
	email := fmt.Sprintf("chaos-%s-%s@example.com", role, uuid.NewString()[:8])
	for attempt := 0; ; attempt++ {
		session, err := api.Register(ctx, "Chaos "+role, email, uuid.NewString())
		if err == nil {
			return api.WithToken(session.Token), nil
		}
		if client.StatusOf(err) != http.StatusTooManyRequests || attempt >= 20 {
			return nil, fmt.Errorf("register %s: %w", role, err)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(250 * time.Millisecond):
		}
	}
}
