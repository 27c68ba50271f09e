// Package domain defines the core domain models for TabVault.
package domain

import (
	"fmt"
	"strings"
)

// Chunk footprint estimation constants. The restorer compares the
// estimate against the capacity profile's per-chunk ceiling before
// materializing a chunk.
const (
	// EstimatedCellBytes approximates the in-memory cost of one cell.
	EstimatedCellBytes = 32

	// HeaderOverheadBytes approximates the fixed cost of a chunk's
	// header row and bookkeeping.
	HeaderOverheadBytes = 2048
)

// ChunkIndex is the catalog record for a chunked dataset. When a session
// has IsChunked set, its dataset key addresses one of these instead of a
// dataset payload.
type ChunkIndex struct {
	// SessionID is the owning session.
	SessionID string `json:"session_id"`

	// TotalChunks is the number of chunks the dataset was split into.
	TotalChunks int `json:"total_chunks"`

	// TotalRows is the number of data rows across all chunks.
	TotalRows int `json:"total_rows"`

	// ChunkSize is the row capacity of each chunk; only the final chunk
	// may hold fewer rows.
	ChunkSize int `json:"chunk_size"`

	// ChunkKeys addresses each chunk blob, ordered by chunk position.
	ChunkKeys []string `json:"chunk_keys"`

	// CreatedAt is the write timestamp (Unix milliseconds).
	CreatedAt int64 `json:"created_at"`
}

// ExpectedChunks returns ceil(totalRows/chunkSize), the chunk count a
// well-formed index must carry.
func ExpectedChunks(totalRows, chunkSize int) int {
	if chunkSize <= 0 {
		return 0
	}
	return (totalRows + chunkSize - 1) / chunkSize
}

// Validate checks the chunk-index invariant:
// len(ChunkKeys) == TotalChunks == ceil(TotalRows/ChunkSize).
func (ci *ChunkIndex) Validate() error {
	var violations []string

	if ci.SessionID == "" {
		violations = append(violations, "session_id is required")
	}
	if ci.ChunkSize <= 0 {
		violations = append(violations, "chunk_size must be positive")
	}
	if ci.TotalRows < 0 {
		violations = append(violations, "total_rows must be non-negative")
	}
	if len(ci.ChunkKeys) != ci.TotalChunks {
		violations = append(violations, fmt.Sprintf("chunk_keys length %d != total_chunks %d", len(ci.ChunkKeys), ci.TotalChunks))
	}
	if ci.ChunkSize > 0 && ci.TotalChunks != ExpectedChunks(ci.TotalRows, ci.ChunkSize) {
		violations = append(violations, fmt.Sprintf("total_chunks %d != ceil(%d/%d)", ci.TotalChunks, ci.TotalRows, ci.ChunkSize))
	}

	if len(violations) > 0 {
		return ErrCorruptPayload.WithDetails("chunk index: " + strings.Join(violations, "; "))
	}
	return nil
}

// Clone creates a deep copy of the chunk index.
func (ci *ChunkIndex) Clone() *ChunkIndex {
	clone := *ci
	clone.ChunkKeys = make([]string, len(ci.ChunkKeys))
	copy(clone.ChunkKeys, ci.ChunkKeys)
	return &clone
}

// DatasetChunk is one contiguous row slice of a chunked dataset. Chunks
// partition [0, TotalRows) with no gaps or overlaps and every chunk
// carries the same header row.
type DatasetChunk struct {
	// SessionID is the owning session.
	SessionID string `json:"session_id"`

	// Index is the chunk's position, 0-based. Reconstruction sorts on it.
	Index int `json:"index"`

	// StartRow is the dataset row offset of the chunk's first row.
	StartRow int `json:"start_row"`

	// RowCount is the number of rows in this chunk.
	RowCount int `json:"row_count"`

	// Headers is the dataset header row, repeated in every chunk so any
	// surviving chunk can seed reconstruction.
	Headers []string `json:"headers"`

	// Rows holds the chunk's data rows.
	Rows [][]any `json:"rows"`
}

// EstimateChunkFootprint approximates the in-memory bytes needed to
// materialize a chunk of the given shape.
func EstimateChunkFootprint(rowCount, columnCount int) int64 {
	return int64(rowCount)*int64(columnCount)*EstimatedCellBytes + HeaderOverheadBytes
}
