// internal/auth/handler.go
package auth

import (
	"net/http"

	"bookswap/internal/respond"
	"bookswap/internal/users"

	"github.com/go-chi/chi/v5"
)

// Handler serves registration, login and the current-user lookup.
type Handler struct {
	users  users.Service
	tokens *TokenManager
}

func NewHandler(service users.Service, tokens *TokenManager) *Handler {
	return &Handler{users: service, tokens: tokens}
}

// Session is returned by register and login.
type Session struct {
	User  *users.User `json:"user"`
	Token string      `json:"token"`
}

// Routes mounts the handler; gate guards /me.
func (h *Handler) Routes(gate func(http.Handler) http.Handler) http.Handler {
	r := chi.NewRouter()
	r.Post("/register", h.handleRegister)
	r.Post("/login", h.handleLogin)
	r.With(gate).Get("/me", h.handleMe)
	return r
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req users.NewUser
	if err := respond.Decode(r, &req); err != nil {
		respond.Error(w, r, err)
		return
	}

	user, err := h.users.Create(r.Context(), req)
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	token, err := h.tokens.Issue(user.ID)
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	respond.JSON(w, http.StatusCreated, Session{User: user, Token: token})
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := respond.Decode(r, &req); err != nil {
		respond.Error(w, r, err)
		return
	}

	user, err := h.users.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	token, err := h.tokens.Issue(user.ID)
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	respond.JSON(w, http.StatusOK, Session{User: user, Token: token})
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	user, ok := UserFrom(r.Context())
	if !ok {
		respond.Error(w, r, ErrNoToken)
		return
	}
	respond.JSON(w, http.StatusOK, user)
}
