package handler

import (
	"errors"
	"net/http"

	"github.com/tabvault/tabvault-go/internal/core/domain"
)

// handleSaveSession handles POST /sessions. It creates or updates the
// active session from a dataset summary.
func (h *Handler) handleSaveSession(w http.ResponseWriter, r *http.Request) {
	var req SaveSessionRequest
	if err := decodeJSON(w, r, maxBodyBytes, &req); err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	summary := domain.NewSummary(req.FileName, req.SheetName, req.RowCount, req.ColumnCount, req.Columns)
	session, err := h.engine.SaveSession(r.Context(), summary)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	h.writeJSON(w, r, http.StatusOK, sessionToResponse(session))
}

// handleListSessions handles GET /sessions.
func (h *Handler) handleListSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.engine.ListSessions(r.Context())
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	items := make([]SessionResponse, len(sessions))
	for i, s := range sessions {
		items[i] = sessionToResponse(s)
	}

	h.writeJSON(w, r, http.StatusOK, ListSessionsResponse{
		Items: items,
		Total: len(items),
	})
}

// handleGetSession handles GET /sessions/{id}.
func (h *Handler) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")
	if sessionID == "" {
		h.writeError(w, r, http.StatusBadRequest, domain.ErrMissingArgument.Code, "session id is required", nil)
		return
	}

	session, err := h.engine.GetSession(r.Context(), sessionID)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	h.writeJSON(w, r, http.StatusOK, sessionToResponse(session))
}

// handleDeleteSession handles DELETE /sessions/{id}.
func (h *Handler) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")
	if sessionID == "" {
		h.writeError(w, r, http.StatusBadRequest, domain.ErrMissingArgument.Code, "session id is required", nil)
		return
	}

	if err := h.engine.DeleteSession(r.Context(), sessionID); err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	h.writeJSON(w, r, http.StatusOK, map[string]bool{"success": true})
}

// handleActiveSession handles GET /sessions/active.
func (h *Handler) handleActiveSession(w http.ResponseWriter, r *http.Request) {
	session, err := h.engine.ActiveSession(r.Context())
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	h.writeJSON(w, r, http.StatusOK, sessionToResponse(session))
}

// handleClearActive handles DELETE /sessions/active.
func (h *Handler) handleClearActive(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.ClearActiveSession(r.Context()); err != nil &&
		!errors.Is(err, domain.ErrNoActiveSession) {
		h.handleServiceError(w, r, err)
		return
	}

	h.writeJSON(w, r, http.StatusOK, map[string]bool{"success": true})
}

// handleActivateSession handles POST /sessions/{id}/activate.
func (h *Handler) handleActivateSession(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")
	if sessionID == "" {
		h.writeError(w, r, http.StatusBadRequest, domain.ErrMissingArgument.Code, "session id is required", nil)
		return
	}

	if err := h.engine.SetActiveSession(r.Context(), sessionID); err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	h.writeJSON(w, r, http.StatusOK, map[string]bool{"success": true})
}
