package handler

import (
	"time"

	"github.com/tabvault/tabvault-go/internal/core/domain"
)

// Response is the standard API response envelope. All JSON responses
// use this format; /metrics uses the Prometheus exposition format and
// restore streams NDJSON.
type Response struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id"`
	Timestamp int64  `json:"timestamp"`
	Data      any    `json:"data,omitempty"`
	Details   any    `json:"details,omitempty"`
}

// NewResponse creates a success response.
func NewResponse(requestID string, data any) *Response {
	return &Response{
		Code:      "OK",
		Message:   "Success",
		RequestID: requestID,
		Timestamp: time.Now().UnixMilli(),
		Data:      data,
	}
}

// NewErrorResponse creates an error response.
func NewErrorResponse(requestID, code, message string, details any) *Response {
	return &Response{
		Code:      code,
		Message:   message,
		RequestID: requestID,
		Timestamp: time.Now().UnixMilli(),
		Details:   details,
	}
}

// ErrorBody is the error payload used inside NDJSON restore streams,
// where the HTTP status has already been sent.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// SaveSessionRequest is the request body for POST /sessions.
type SaveSessionRequest struct {
	FileName    string   `json:"file_name"`
	SheetName   string   `json:"sheet_name,omitempty"`
	RowCount    int      `json:"row_count"`
	ColumnCount int      `json:"column_count"`
	Columns     []string `json:"columns,omitempty"`
}

// SessionResponse represents a session record in API responses.
type SessionResponse struct {
	ID            string    `json:"id"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
	AppVersion    string    `json:"app_version"`
	SchemaVersion string    `json:"schema_version"`
	FileName      string    `json:"file_name"`
	SheetName     string    `json:"sheet_name,omitempty"`
	RowCount      int       `json:"row_count"`
	ColumnCount   int       `json:"column_count"`
	Columns       []string  `json:"columns,omitempty"`
	HasDataset    bool      `json:"has_dataset"`
	IsChunked     bool      `json:"is_chunked"`
	HasFilters    bool      `json:"has_filters"`
	HasCharts     bool      `json:"has_charts"`
}

// ListSessionsResponse is the response body for GET /sessions.
type ListSessionsResponse struct {
	Items []SessionResponse `json:"items"`
	Total int               `json:"total"`
}

// SaveDatasetRequest is the request body for PUT /sessions/{id}/dataset.
type SaveDatasetRequest struct {
	Headers []string `json:"headers"`
	Rows    [][]any  `json:"rows"`
}

// SaveDatasetResponse is the response body for PUT /sessions/{id}/dataset.
type SaveDatasetResponse struct {
	Session        SessionResponse `json:"session"`
	Chunked        bool            `json:"chunked"`
	ChunkCount     int             `json:"chunk_count,omitempty"`
	EstimatedBytes int             `json:"estimated_bytes,omitempty"`
}

// DatasetResponse is the response body for GET /sessions/{id}/dataset.
// Dataset is null when the session never saved one.
type DatasetResponse struct {
	Dataset       *domain.Dataset `json:"dataset"`
	SkippedChunks []int           `json:"skipped_chunks,omitempty"`
}

// FiltersResponse is the response body for GET /sessions/{id}/filters.
type FiltersResponse struct {
	Filters *domain.FilterState `json:"filters"`
}

// SaveChartsRequest is the request body for PUT /sessions/{id}/charts.
type SaveChartsRequest struct {
	Charts []domain.ChartConfig `json:"charts"`
}

// ChartsResponse is the response body for GET /sessions/{id}/charts.
type ChartsResponse struct {
	Charts []domain.ChartConfig `json:"charts"`
}

// RestoreResult is the final line of a restore NDJSON stream.
type RestoreResult struct {
	Done           bool            `json:"done"`
	Session        SessionResponse `json:"session"`
	RowCount       int             `json:"row_count"`
	SkippedChunks  []int           `json:"skipped_chunks,omitempty"`
	DurationMillis int64           `json:"duration_ms"`
}

// ImportArchiveResponse is the response body for POST /sessions/archive.
type ImportArchiveResponse struct {
	Session   SessionResponse `json:"session"`
	RowCount  int             `json:"row_count"`
	Chunked   bool            `json:"chunked"`
	Encrypted bool            `json:"encrypted"`
}

// AdminStatusResponse is the response body for GET /admin/v1/status/summary.
type AdminStatusResponse struct {
	Status          string `json:"status"`
	Version         string `json:"version"`
	Time            string `json:"time"`
	Tier            string `json:"tier"`
	MaxSessions     int    `json:"max_sessions"`
	SessionCount    int    `json:"session_count"`
	ActiveSessionID string `json:"active_session_id,omitempty"`
}

// EvictResponse is the response body for POST /admin/v1/evict/trigger.
type EvictResponse struct {
	EvictedCount int    `json:"evicted_count"`
	TriggeredAt  string `json:"triggered_at"`
}

// sessionToResponse converts a domain.Session to a SessionResponse.
func sessionToResponse(s *domain.Session) SessionResponse {
	return SessionResponse{
		ID:            s.ID,
		CreatedAt:     time.UnixMilli(s.CreatedAt),
		UpdatedAt:     time.UnixMilli(s.UpdatedAt),
		AppVersion:    s.AppVersion,
		SchemaVersion: s.SchemaVersion,
		FileName:      s.Summary.FileName,
		SheetName:     s.Summary.SheetName,
		RowCount:      s.Summary.RowCount,
		ColumnCount:   s.Summary.ColumnCount,
		Columns:       s.Summary.Columns,
		HasDataset:    s.HasDataset(),
		IsChunked:     s.IsChunked,
		HasFilters:    s.FiltersKey != "",
		HasCharts:     s.ChartsKey != "",
	}
}
