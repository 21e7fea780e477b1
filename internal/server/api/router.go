// Package api exposes the backend HTTP surface: batched sync, note fetch,
// conflict resolution, and tombstone cleanup, all JSON over chi.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/g1mliii/anchored/internal/logging"
	"github.com/g1mliii/anchored/internal/server/auth"
	"github.com/g1mliii/anchored/internal/server/service"
)

type Handler struct {
	notes    *service.NoteService
	verifier *auth.Verifier
	log      logging.Logger
}

func NewHandler(notes *service.NoteService, verifier *auth.Verifier, log logging.Logger) *Handler {
	return &Handler{notes: notes, verifier: verifier, log: log}
}

func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(h.requestLogger)

	r.Get("/api/health", h.handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(h.authenticate)
		r.Post("/api/sync", h.handleSync)
		r.Get("/api/notes", h.handleFetchNotes)
		r.Get("/api/notes/{id}", h.handleFetchNote)
		r.Post("/api/conflict", h.handleResolve)
		r.Post("/api/cleanup", h.handleCleanup)
	})

	return r
}
