package handler

import (
	"encoding/json"
	"net/http"

	"github.com/tabvault/tabvault-go/internal/core/domain"
	"github.com/tabvault/tabvault-go/internal/core/service"
)

// handleRestoreSession handles POST /sessions/{id}/restore. The
// response is an NDJSON stream: progress lines as the restore walks
// its stages, then a single terminal line that is either a
// RestoreResult or an error object. A client disconnect cancels the
// request context and aborts the restore mid-walk.
func (h *Handler) handleRestoreSession(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")
	if sessionID == "" {
		h.writeError(w, r, http.StatusBadRequest, domain.ErrMissingArgument.Code, "session id is required", nil)
		return
	}

	if !h.restoring.CompareAndSwap(false, true) {
		h.writeError(w, r, http.StatusConflict,
			domain.ErrRestoreInFlight.Code, "restore already in progress", nil)
		return
	}
	defer h.restoring.Store(false)

	// Resolve the session before committing to a 200 stream, so a bad
	// ID still gets a proper status code.
	if _, err := h.engine.GetSession(r.Context(), sessionID); err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	flusher, _ := w.(http.Flusher)
	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("X-Request-ID", getRequestID(r))
	w.WriteHeader(http.StatusOK)

	// Encode appends the newline NDJSON needs. Progress callbacks run
	// synchronously on this goroutine, so no locking is required.
	enc := json.NewEncoder(w)
	emit := func(v any) {
		if err := enc.Encode(v); err != nil {
			return
		}
		if flusher != nil {
			flusher.Flush()
		}
	}

	resp, err := h.engine.Restore(r.Context(), &service.RestoreRequest{
		SessionID: sessionID,
		OnProgress: func(p service.Progress) {
			emit(p)
		},
	})
	if err != nil {
		code := domain.GetErrorCode(err)
		if code == "" {
			code = domain.ErrInternalServer.Code
		}
		h.logger.Warn("restore failed",
			"request_id", getRequestID(r), "session_id", sessionID, "error", err)
		emit(map[string]ErrorBody{"error": {Code: code, Message: err.Error()}})
		return
	}

	rowCount := 0
	if resp.Dataset != nil {
		rowCount = len(resp.Dataset.Rows)
	}
	emit(RestoreResult{
		Done:           true,
		Session:        sessionToResponse(resp.Session),
		RowCount:       rowCount,
		SkippedChunks:  resp.Skipped,
		DurationMillis: resp.Duration.Milliseconds(),
	})
}
