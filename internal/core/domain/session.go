// Package domain defines the core domain models for TabVault.
//
// Domain models are pure value objects and entities without any
// IO dependencies or framework coupling.
package domain

import (
	"crypto/rand"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

// Session constraints.
const (
	MaxFileNameLength  = 255
	MaxSheetNameLength = 128
	MaxVersionLength   = 32

	// MaxSummaryColumns caps how many column names a summary retains.
	// Wider sheets are truncated; the full header set lives in the
	// dataset payload itself.
	MaxSummaryColumns = 50

	// SessionIDPrefix is the prefix for session IDs.
	SessionIDPrefix = "tvss-"

	// CurrentSchemaVersion tags the persisted-record format this build
	// writes. Restore refuses records from a newer schema.
	CurrentSchemaVersion = "1"
)

// Session represents a persisted analysis session. The record itself is
// small and lives in the metadata store; the dataset, filter state, and
// chart configurations it references live in the blob store under the
// *Key fields.
type Session struct {
	// ID is the unique identifier for the session.
	// Format: tvss-{ulid_lowercase}, 31 characters total.
	ID string `json:"id"`

	// CreatedAt is the session creation timestamp (Unix milliseconds).
	CreatedAt int64 `json:"created_at"`

	// UpdatedAt is the last modification timestamp (Unix milliseconds).
	// It orders the session index; eviction removes the oldest.
	UpdatedAt int64 `json:"updated_at"`

	// AppVersion records the application version that wrote the session.
	AppVersion string `json:"app_version"`

	// SchemaVersion records the persisted-format version. Restore
	// validates it before touching any payload.
	SchemaVersion string `json:"schema_version"`

	// DatasetKey addresses the dataset payload in the blob store.
	// When IsChunked is true it addresses a ChunkIndex record instead.
	// Empty if no dataset has been saved.
	DatasetKey string `json:"dataset_key,omitempty"`

	// FiltersKey addresses the filter-state payload, if any.
	FiltersKey string `json:"filters_key,omitempty"`

	// ChartsKey addresses the chart-configurations payload, if any.
	ChartsKey string `json:"charts_key,omitempty"`

	// IsChunked reports whether the dataset is stored as row chunks.
	IsChunked bool `json:"is_chunked"`

	// Summary describes the dataset without loading it.
	Summary SessionSummary `json:"summary"`
}

// SessionSummary is the lightweight description shown in session listings.
type SessionSummary struct {
	FileName    string   `json:"file_name"`
	SheetName   string   `json:"sheet_name,omitempty"`
	RowCount    int      `json:"row_count"`
	ColumnCount int      `json:"column_count"`
	Columns     []string `json:"columns,omitempty"`
}

// NewSummary builds a SessionSummary, truncating the column list to
// MaxSummaryColumns.
func NewSummary(fileName, sheetName string, rowCount, columnCount int, columns []string) SessionSummary {
	if len(columns) > MaxSummaryColumns {
		columns = columns[:MaxSummaryColumns]
	}
	cols := make([]string, len(columns))
	copy(cols, columns)
	return SessionSummary{
		FileName:    fileName,
		SheetName:   sheetName,
		RowCount:    rowCount,
		ColumnCount: columnCount,
		Columns:     cols,
	}
}

// NewSession creates a new Session with a generated ID and both
// timestamps set to now.
func NewSession(summary SessionSummary, appVersion, schemaVersion string) (*Session, error) {
	id, err := GenerateSessionID()
	if err != nil {
		return nil, err
	}

	now := time.Now().UnixMilli()
	return &Session{
		ID:            id,
		CreatedAt:     now,
		UpdatedAt:     now,
		AppVersion:    appVersion,
		SchemaVersion: schemaVersion,
		Summary:       summary,
	}, nil
}

// GenerateSessionID generates a new session ID using ULID.
// Format: tvss-{ulid_lowercase}, 31 characters total.
func GenerateSessionID() (string, error) {
	entropy := ulid.Monotonic(rand.Reader, 0)
	id, err := ulid.New(ulid.Timestamp(time.Now()), entropy)
	if err != nil {
		return "", ErrInternalServer.WithCause(err)
	}
	return SessionIDPrefix + strings.ToLower(id.String()), nil
}

// Touch updates the UpdatedAt timestamp.
func (s *Session) Touch() {
	s.UpdatedAt = time.Now().UnixMilli()
}

// HasDataset reports whether a dataset payload has been saved.
func (s *Session) HasDataset() bool { return s.DatasetKey != "" }

// HasFilters reports whether a filter-state payload has been saved.
func (s *Session) HasFilters() bool { return s.FiltersKey != "" }

// HasCharts reports whether a chart-configurations payload has been saved.
func (s *Session) HasCharts() bool { return s.ChartsKey != "" }

// Validate validates the session fields against constraints.
// Returns a DomainError with code TV-SESS-4001 if validation fails.
func (s *Session) Validate() error {
	var violations []string

	if !IsValidSessionID(s.ID) {
		violations = append(violations, "id is not a valid session id")
	}

	if s.SchemaVersion == "" {
		violations = append(violations, "schema_version is required")
	}

	if len(s.AppVersion) > MaxVersionLength {
		violations = append(violations, "app_version exceeds 32 characters")
	}

	if len(s.SchemaVersion) > MaxVersionLength {
		violations = append(violations, "schema_version exceeds 32 characters")
	}

	if len(s.Summary.FileName) > MaxFileNameLength {
		violations = append(violations, "file_name exceeds 255 characters")
	}

	if len(s.Summary.SheetName) > MaxSheetNameLength {
		violations = append(violations, "sheet_name exceeds 128 characters")
	}

	if s.Summary.RowCount < 0 || s.Summary.ColumnCount < 0 {
		violations = append(violations, "summary counts must be non-negative")
	}

	if len(s.Summary.Columns) > MaxSummaryColumns {
		violations = append(violations, "summary columns exceed 50 entries")
	}

	if s.IsChunked && s.DatasetKey == "" {
		violations = append(violations, "chunked session without dataset key")
	}

	if len(violations) > 0 {
		return ErrSessionValidation.WithDetails(strings.Join(violations, "; "))
	}

	return nil
}

// BlobKeys returns the top-level blob keys the session references, in a
// stable order. For chunked datasets the dataset key addresses the chunk
// index; individual chunk keys come from that record.
func (s *Session) BlobKeys() []string {
	var keys []string
	if s.DatasetKey != "" {
		keys = append(keys, s.DatasetKey)
	}
	if s.FiltersKey != "" {
		keys = append(keys, s.FiltersKey)
	}
	if s.ChartsKey != "" {
		keys = append(keys, s.ChartsKey)
	}
	return keys
}

// Clone creates a deep copy of the session.
func (s *Session) Clone() *Session {
	clone := *s
	if s.Summary.Columns != nil {
		clone.Summary.Columns = make([]string, len(s.Summary.Columns))
		copy(clone.Summary.Columns, s.Summary.Columns)
	}
	return &clone
}

// CreatedAtTime returns CreatedAt as time.Time.
func (s *Session) CreatedAtTime() time.Time {
	return time.UnixMilli(s.CreatedAt)
}

// UpdatedAtTime returns UpdatedAt as time.Time.
func (s *Session) UpdatedAtTime() time.Time {
	return time.UnixMilli(s.UpdatedAt)
}

// IsValidSessionID checks if a string is a valid session ID format.
// It normalizes the ID to lowercase before validation.
func IsValidSessionID(id string) bool {
	// Normalize to lowercase
	id = strings.ToLower(id)

	// Check prefix
	if !strings.HasPrefix(id, SessionIDPrefix) {
		return false
	}

	// tvss- (5) + ULID (26) = 31 characters
	if len(id) != 31 {
		return false
	}

	// Validate ULID portion
	ulidPart := strings.ToUpper(id[len(SessionIDPrefix):])
	_, err := ulid.Parse(ulidPart)
	return err == nil
}

// NormalizeSessionID normalizes a session ID to lowercase.
// Returns empty string if the ID is invalid.
func NormalizeSessionID(id string) string {
	normalized := strings.ToLower(id)
	if !IsValidSessionID(normalized) {
		return ""
	}
	return normalized
}
