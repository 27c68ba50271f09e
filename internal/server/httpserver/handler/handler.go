package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/tabvault/tabvault-go/internal/core/domain"
	"github.com/tabvault/tabvault-go/internal/core/service"
	"github.com/tabvault/tabvault-go/internal/telemetry/logger"
)

// Request body caps. Dataset saves and archive imports carry whole
// datasets; everything else is small control traffic.
const (
	maxBodyBytes        = 1 << 20 // 1 MiB
	maxDatasetBodyBytes = 1 << 30 // 1 GiB
	maxArchiveBodyBytes = 1 << 30 // 1 GiB
)

// headerPassphrase carries the archive passphrase. A header keeps it
// out of URLs and therefore out of access logs.
const headerPassphrase = "X-Archive-Passphrase"

// Handler routes requests to the persistence engine.
type Handler struct {
	engine *service.Engine
	logger *slog.Logger
	mux    *http.ServeMux

	// restoring enforces single-flight restores. The engine assumes at
	// most one restore runs at a time; this is where that is enforced.
	restoring atomic.Bool
}

// New creates a new Handler over the given engine.
func New(engine *service.Engine, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	h := &Handler{
		engine: engine,
		logger: log,
		mux:    http.NewServeMux(),
	}

	h.registerRoutes()
	return h
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// registerRoutes registers all HTTP routes.
func (h *Handler) registerRoutes() {
	// Health endpoints
	h.mux.HandleFunc("GET /health", h.handleHealth)
	h.mux.HandleFunc("GET /ready", h.handleReady)

	// Session endpoints
	h.mux.HandleFunc("POST /sessions", h.handleSaveSession)
	h.mux.HandleFunc("GET /sessions", h.handleListSessions)
	h.mux.HandleFunc("GET /sessions/active", h.handleActiveSession)
	h.mux.HandleFunc("DELETE /sessions/active", h.handleClearActive)
	h.mux.HandleFunc("GET /sessions/{id}", h.handleGetSession)
	h.mux.HandleFunc("DELETE /sessions/{id}", h.handleDeleteSession)
	h.mux.HandleFunc("POST /sessions/{id}/activate", h.handleActivateSession)

	// Payload endpoints
	h.mux.HandleFunc("PUT /sessions/{id}/dataset", h.handleSaveDataset)
	h.mux.HandleFunc("GET /sessions/{id}/dataset", h.handleGetDataset)
	h.mux.HandleFunc("PUT /sessions/{id}/filters", h.handleSaveFilters)
	h.mux.HandleFunc("GET /sessions/{id}/filters", h.handleGetFilters)
	h.mux.HandleFunc("PUT /sessions/{id}/charts", h.handleSaveCharts)
	h.mux.HandleFunc("GET /sessions/{id}/charts", h.handleGetCharts)

	// Restore endpoint
	h.mux.HandleFunc("POST /sessions/{id}/restore", h.handleRestoreSession)

	// Archive endpoints
	h.mux.HandleFunc("GET /sessions/{id}/archive", h.handleExportArchive)
	h.mux.HandleFunc("POST /sessions/archive", h.handleImportArchive)

	// Admin endpoints
	h.mux.HandleFunc("GET /admin/v1/status/summary", h.handleAdminStatus)
	h.mux.HandleFunc("POST /admin/v1/evict/trigger", h.handleEvictTrigger)
}

// writeJSON writes a JSON response with the standard envelope format.
func (h *Handler) writeJSON(w http.ResponseWriter, r *http.Request, status int, data any) {
	requestID := getRequestID(r)
	response := NewResponse(requestID, data)

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Request-ID", requestID)
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(response); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

// writeError writes an error response with the standard envelope format.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, status int, code, message string, details any) {
	requestID := getRequestID(r)
	response := NewErrorResponse(requestID, code, message, details)

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Error-Code", code)
	w.Header().Set("X-Request-ID", requestID)
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(response)
}

// getRequestID extracts the request ID placed in the context by the
// middleware, falling back to the client-supplied header.
func getRequestID(r *http.Request) string {
	if id := logger.RequestIDFromContext(r.Context()); id != "" {
		return id
	}
	return r.Header.Get("X-Request-ID")
}

// handleServiceError converts engine errors to HTTP responses.
func (h *Handler) handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	if domain.IsDomainError(err, "") {
		code := domain.GetErrorCode(err)
		status := errorCodeToHTTPStatus(code)
		if status >= 500 {
			h.logger.Error("request failed",
				"request_id", getRequestID(r), "code", code, "error", err)
		}
		h.writeError(w, r, status, code, err.Error(), nil)
		return
	}

	h.logger.Error("internal error", "request_id", getRequestID(r), "error", err)
	h.writeError(w, r, http.StatusInternalServerError,
		domain.ErrInternalServer.Code, "internal server error", nil)
}

// errorCodeToHTTPStatus maps a domain error code to an HTTP status.
// The numeric suffix of a code mirrors the status family it belongs
// to, so TV-SESS-4040 maps to 404 and TV-REST-5030 to 503. Argument
// codes predate that convention and map to 400.
func errorCodeToHTTPStatus(code string) int {
	if strings.HasPrefix(code, "TV-ARG-") {
		return http.StatusBadRequest
	}

	i := strings.LastIndexByte(code, '-')
	if i < 0 || len(code)-i-1 != 4 {
		return http.StatusInternalServerError
	}
	n, err := strconv.Atoi(code[i+1:])
	if err != nil {
		return http.StatusInternalServerError
	}

	status := n / 10
	if status < 400 || status > 599 {
		return http.StatusInternalServerError
	}
	return status
}

// decodeJSON decodes a size-capped JSON request body. Oversized bodies
// and malformed JSON come back as domain errors so callers can hand
// them straight to handleServiceError.
func decodeJSON(w http.ResponseWriter, r *http.Request, limit int64, v any) error {
	body := http.MaxBytesReader(w, r.Body, limit)
	if err := json.NewDecoder(body).Decode(v); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return domain.ErrPayloadTooLarge.WithDetails(
				fmt.Sprintf("limit is %d bytes", maxErr.Limit))
		}
		return domain.ErrBadRequest.WithDetails("invalid request body")
	}
	return nil
}
