package handler

import (
	"net/http"

	"github.com/tabvault/tabvault-go/internal/core/domain"
	"github.com/tabvault/tabvault-go/internal/core/service"
)

// handleSaveDataset handles PUT /sessions/{id}/dataset.
func (h *Handler) handleSaveDataset(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")

	var req SaveDatasetRequest
	if err := decodeJSON(w, r, maxDatasetBodyBytes, &req); err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	resp, err := h.engine.SaveDataset(r.Context(), &service.SaveDatasetRequest{
		SessionID: sessionID,
		Dataset: &domain.Dataset{
			Headers: req.Headers,
			Rows:    req.Rows,
		},
	})
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	h.writeJSON(w, r, http.StatusOK, SaveDatasetResponse{
		Session:        sessionToResponse(resp.Session),
		Chunked:        resp.Chunked,
		ChunkCount:     resp.ChunkCount,
		EstimatedBytes: resp.EstimatedBytes,
	})
}

// handleGetDataset handles GET /sessions/{id}/dataset. The dataset is
// null for sessions that never saved one; skipped_chunks lists chunk
// indexes that could not be recovered.
func (h *Handler) handleGetDataset(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")

	dataset, skipped, err := h.engine.LoadDataset(r.Context(), sessionID)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	h.writeJSON(w, r, http.StatusOK, DatasetResponse{
		Dataset:       dataset,
		SkippedChunks: skipped,
	})
}

// handleSaveFilters handles PUT /sessions/{id}/filters.
func (h *Handler) handleSaveFilters(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")

	var filters domain.FilterState
	if err := decodeJSON(w, r, maxBodyBytes, &filters); err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	session, err := h.engine.SaveFilters(r.Context(), sessionID, &filters)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	h.writeJSON(w, r, http.StatusOK, sessionToResponse(session))
}

// handleGetFilters handles GET /sessions/{id}/filters. Filters are
// null when the session never saved any.
func (h *Handler) handleGetFilters(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")

	filters, err := h.engine.LoadFilters(r.Context(), sessionID)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	h.writeJSON(w, r, http.StatusOK, FiltersResponse{Filters: filters})
}

// handleSaveCharts handles PUT /sessions/{id}/charts.
func (h *Handler) handleSaveCharts(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")

	var req SaveChartsRequest
	if err := decodeJSON(w, r, maxBodyBytes, &req); err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	session, err := h.engine.SaveCharts(r.Context(), sessionID, req.Charts)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	h.writeJSON(w, r, http.StatusOK, sessionToResponse(session))
}

// handleGetCharts handles GET /sessions/{id}/charts. Charts are null
// when the session never saved any.
func (h *Handler) handleGetCharts(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")

	charts, err := h.engine.LoadCharts(r.Context(), sessionID)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	h.writeJSON(w, r, http.StatusOK, ChartsResponse{Charts: charts})
}
