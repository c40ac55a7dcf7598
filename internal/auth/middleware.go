// internal/auth/middleware.go

// Package auth issues bearer credentials and guards routes that need a
// signed-in user.
package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"bookswap/internal/errs"
	"bookswap/internal/respond"
	"bookswap/internal/users"
)

var (
	ErrNoToken      = errs.New(errs.Unauthenticated, "No token, authorization denied")
	ErrInvalidToken = errs.New(errs.Unauthenticated, "Token is not valid")
)

// Verifier resolves a raw bearer token to a user id.
type Verifier interface {
	Verify(token string) (string, error)
}

// UserFinder looks users up by id.
type UserFinder interface {
	FindByID(ctx context.Context, id string) (*users.User, error)
}

type contextKey int

const (
	userKey contextKey = iota
	tokenKey
	subjectKey
)

// Gate rejects requests without a valid bearer token. On success the
// resolved user and the raw token are available through UserFrom and
// TokenFrom.
func Gate(tokens Verifier, finder UserFinder) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				respond.Error(w, r, ErrNoToken)
				return
			}

			userID, err := tokens.Verify(token)
			if err != nil {
				slog.DebugContext(r.Context(), "Auth gate: token rejected", slog.Any("error", err))
				respond.Error(w, r, ErrInvalidToken)
				return
			}

			user, err := finder.FindByID(r.Context(), userID)
			if errors.Is(err, users.ErrNotFound) {
				slog.DebugContext(r.Context(), "Auth gate: unknown subject", slog.String("user_id", userID))
				respond.Error(w, r, ErrInvalidToken)
				return
			}
			if err != nil {
				respond.Error(w, r, err)
				return
			}

			if slot, ok := r.Context().Value(subjectKey).(*string); ok {
				*slot = user.ID
			}
			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user, token)))
		})
	}
}

// WithUser returns a context carrying an authenticated user and its token.
func WithUser(ctx context.Context, user *users.User, token string) context.Context {
	ctx = context.WithValue(ctx, userKey, user)
	return context.WithValue(ctx, tokenKey, token)
}

// UserFrom returns the user attached by Gate.
func UserFrom(ctx context.Context) (*users.User, bool) {
	u, ok := ctx.Value(userKey).(*users.User)
	return u, ok && u != nil
}

// TokenFrom returns the raw bearer token attached by Gate.
func TokenFrom(ctx context.Context) string {
	t, _ := ctx.Value(tokenKey).(string)
	return t
}

// Observe returns a context in which Gate records the id of the user it
// admits. The returned function reports that id, or "" when no user was
// admitted. Outer middleware uses it after the handler has run.
func Observe(ctx context.Context) (context.Context, func() string) {
	slot := new(string)
	return context.WithValue(ctx, subjectKey, slot), func() string { return *slot }
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(header) > 7 && strings.EqualFold(header[:7], "bearer ") {
		return strings.TrimSpace(header[7:])
	}
	return ""
}
