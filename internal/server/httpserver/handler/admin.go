package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/tabvault/tabvault-go/internal/core/domain"
	"github.com/tabvault/tabvault-go/internal/infra/buildinfo"
)

// handleAdminStatus handles GET /admin/v1/status/summary.
func (h *Handler) handleAdminStatus(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.engine.ListSessions(r.Context())
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	activeID := ""
	active, err := h.engine.ActiveSession(r.Context())
	if err != nil && !errors.Is(err, domain.ErrNoActiveSession) {
		h.handleServiceError(w, r, err)
		return
	}
	if active != nil {
		activeID = active.ID
	}

	limits := h.engine.Limits()
	h.writeJSON(w, r, http.StatusOK, AdminStatusResponse{
		Status:          "running",
		Version:         buildinfo.Get().Version,
		Time:            time.Now().UTC().Format(time.RFC3339),
		Tier:            string(limits.Tier),
		MaxSessions:     limits.MaxSessions,
		SessionCount:    len(sessions),
		ActiveSessionID: activeID,
	})
}

// handleEvictTrigger handles POST /admin/v1/evict/trigger. It applies
// the session cap immediately instead of waiting for the next save.
func (h *Handler) handleEvictTrigger(w http.ResponseWriter, r *http.Request) {
	count, err := h.engine.EvictExcess(r.Context())
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	h.writeJSON(w, r, http.StatusOK, EvictResponse{
		EvictedCount: count,
		TriggeredAt:  time.Now().UTC().Format(time.RFC3339),
	})
}
