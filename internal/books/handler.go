// internal/books/handler.go
package books

import (
	"context"
	"errors"
	"net/http"

	"bookswap/internal/auth"
	"bookswap/internal/respond"
	"bookswap/internal/users"

	"github.com/go-chi/chi/v5"
)

// OwnerFinder resolves a book's owner for listing details.
type OwnerFinder interface {
	FindByID(ctx context.Context, id string) (*users.User, error)
}

type Handler struct {
	service Service
	owners  OwnerFinder
}

func NewHandler(service Service, owners OwnerFinder) *Handler {
	return &Handler{service: service, owners: owners}
}

// Routes mounts the handler; gate guards every route that acts on behalf of
// a user.
func (h *Handler) Routes(gate func(http.Handler) http.Handler) http.Handler {
	r := chi.NewRouter()
	r.Get("/", h.handleList)
	r.Get("/{id}", h.handleGet)

	r.Group(func(r chi.Router) {
		r.Use(gate)
		r.Get("/my-books", h.handleMine)
		r.Post("/", h.handleCreate)
		r.Put("/{id}", h.handleUpdate)
		r.Patch("/{id}/status", h.handleUpdateStatus)
		r.Delete("/{id}", h.handleDelete)
	})
	return r
}

// Compose attaches the owner's display fields to a book.
func Compose(book Book, owner *users.User) Listing {
	listing := Listing{Book: book, OwnerName: "Unknown User"}
	if owner != nil {
		listing.OwnerName = owner.Name
		listing.OwnerEmail = owner.Email
	}
	return listing
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	filter := Filter{
		Query:     r.URL.Query().Get("q"),
		Condition: Condition(r.URL.Query().Get("condition")),
	}

	var (
		list []Book
		err  error
	)
	if filter == (Filter{}) {
		list, err = h.service.FindAll(r.Context())
	} else {
		list, err = h.service.Search(r.Context(), filter)
	}
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	respond.JSON(w, http.StatusOK, list)
}

func (h *Handler) handleMine(w http.ResponseWriter, r *http.Request) {
	user, _ := auth.UserFrom(r.Context())

	list, err := h.service.FindByUserID(r.Context(), user.ID)
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	respond.JSON(w, http.StatusOK, list)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	book, err := h.service.FindByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	owner, err := h.owners.FindByID(r.Context(), book.UserID)
	if err != nil && !errors.Is(err, users.ErrNotFound) {
		respond.Error(w, r, err)
		return
	}

	respond.JSON(w, http.StatusOK, Compose(*book, owner))
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	user, _ := auth.UserFrom(r.Context())

	var req struct {
		Title     string    `json:"title"`
		Author    string    `json:"author"`
		Condition Condition `json:"condition"`
	}
	if err := respond.Decode(r, &req); err != nil {
		respond.Error(w, r, err)
		return
	}

	book, err := h.service.Create(r.Context(), NewBook{
		Title:     req.Title,
		Author:    req.Author,
		Condition: req.Condition,
		UserID:    user.ID,
	})
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	respond.JSON(w, http.StatusCreated, book)
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	book, ok := h.ownedBook(w, r)
	if !ok {
		return
	}

	var req Update
	if err := respond.Decode(r, &req); err != nil {
		respond.Error(w, r, err)
		return
	}

	updated, err := h.service.Update(r.Context(), book.ID, req)
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	respond.JSON(w, http.StatusOK, updated)
}

func (h *Handler) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	book, ok := h.ownedBook(w, r)
	if !ok {
		return
	}

	var req struct {
		Status Status `json:"status"`
	}
	if err := respond.Decode(r, &req); err != nil {
		respond.Error(w, r, err)
		return
	}

	updated, err := h.service.UpdateStatus(r.Context(), book.ID, req.Status)
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	respond.JSON(w, http.StatusOK, updated)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	book, ok := h.ownedBook(w, r)
	if !ok {
		return
	}
	user, _ := auth.UserFrom(r.Context())

	removed, err := h.service.Delete(r.Context(), book.ID, user.ID)
	if err != nil {
		respond.Error(w, r, err)
		return
	}
	if !removed {
		respond.Error(w, r, ErrNotFound)
		return
	}

	respond.Message(w, http.StatusOK, "Book removed")
}

// ownedBook loads the book named in the URL and checks that the caller owns
// it. It writes the error response itself.
func (h *Handler) ownedBook(w http.ResponseWriter, r *http.Request) (*Book, bool) {
	user, _ := auth.UserFrom(r.Context())

	book, err := h.service.FindByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respond.Error(w, r, err)
		return nil, false
	}
	if book.UserID != user.ID {
		respond.Error(w, r, ErrForbidden)
		return nil, false
	}
	return book, true
}
