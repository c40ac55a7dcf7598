// internal/swaps/handler.go
package swaps

import (
	"net/http"

	"bookswap/internal/auth"
	"bookswap/internal/respond"

	"github.com/go-chi/chi/v5"
)

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

// Routes mounts the handler. Every route acts for the signed-in user, so gate
// wraps them all.
func (h *Handler) Routes(gate func(http.Handler) http.Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(gate)
	r.Get("/my-books", h.handleIncoming)
	r.Get("/my-requests", h.handleOutgoing)
	r.Post("/", h.handleCreate)
	r.Patch("/{id}/status", h.handleRespond)
	return r
}

func (h *Handler) handleIncoming(w http.ResponseWriter, r *http.Request) {
	user, _ := auth.UserFrom(r.Context())

	list, err := h.service.Incoming(r.Context(), user.ID)
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	respond.JSON(w, http.StatusOK, list)
}

func (h *Handler) handleOutgoing(w http.ResponseWriter, r *http.Request) {
	user, _ := auth.UserFrom(r.Context())

	list, err := h.service.Outgoing(r.Context(), user.ID)
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	respond.JSON(w, http.StatusOK, list)
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	user, _ := auth.UserFrom(r.Context())

	var req struct {
		BookID  string `json:"bookId"`
		Message string `json:"message"`
	}
	if err := respond.Decode(r, &req); err != nil {
		respond.Error(w, r, err)
		return
	}

	created, err := h.service.RequestBook(r.Context(), user.ID, req.BookID, req.Message)
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	respond.JSON(w, http.StatusCreated, created)
}

func (h *Handler) handleRespond(w http.ResponseWriter, r *http.Request) {
	user, _ := auth.UserFrom(r.Context())

	var req struct {
		Status Status `json:"status"`
	}
	if err := respond.Decode(r, &req); err != nil {
		respond.Error(w, r, err)
		return
	}

	updated, err := h.service.Respond(r.Context(), user.ID, chi.URLParam(r, "id"), req.Status)
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	respond.JSON(w, http.StatusOK, updated)
}
