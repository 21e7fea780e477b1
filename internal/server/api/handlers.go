package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/g1mliii/anchored/internal/common"
	"github.com/g1mliii/anchored/internal/models"
)

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) handleSync(w http.ResponseWriter, r *http.Request) {
	var req models.SyncRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, r, errors.Join(common.ErrValidation, err))
		return
	}
	if req.Operation != models.OperationSync {
		h.writeError(w, r, common.ErrValidation)
		return
	}

	resp, err := h.notes.Sync(r.Context(), userID(r.Context()), &req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleFetchNotes(w http.ResponseWriter, r *http.Request) {
	notes, err := h.notes.FetchAll(r.Context(), userID(r.Context()))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if notes == nil {
		notes = []*models.EncryptedNote{}
	}
	h.writeJSON(w, http.StatusOK, notes)
}

func (h *Handler) handleFetchNote(w http.ResponseWriter, r *http.Request) {
	note, err := h.notes.Fetch(r.Context(), userID(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, note)
}

func (h *Handler) handleResolve(w http.ResponseWriter, r *http.Request) {
	var req models.ResolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, r, errors.Join(common.ErrValidation, err))
		return
	}
	if req.NoteID == "" {
		h.writeError(w, r, common.ErrValidation)
		return
	}

	resp, err := h.notes.Resolve(r.Context(), userID(r.Context()), &req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleCleanup(w http.ResponseWriter, r *http.Request) {
	cleaned, err := h.notes.Cleanup(r.Context(), userID(r.Context()))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, models.CleanupResponse{Cleaned: cleaned})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps sentinel errors onto the JSON error envelope the client
// decodes back into the same sentinels.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	code := "internal"
	switch {
	case errors.Is(err, common.ErrNotFound):
		status, code = http.StatusNotFound, "not_found"
	case errors.Is(err, common.ErrUnauthorized):
		status, code = http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, common.ErrInvalidResolution):
		status, code = http.StatusBadRequest, "invalid_resolution"
	case errors.Is(err, common.ErrValidation):
		status, code = http.StatusBadRequest, "validation"
	}

	if status >= 500 {
		h.log.Error(r.Context(), "request failed", "path", r.URL.Path, "err", err)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error": err.Error(),
		"code":  code,
	})
}
