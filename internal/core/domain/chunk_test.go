// Package domain defines the core domain models for TabVault.
package domain

import (
	"testing"
)

func TestExpectedChunks(t *testing.T) {
	tests := []struct {
		name      string
		totalRows int
		chunkSize int
		want      int
	}{
		{"exact multiple", 200_000, 50_000, 4},
		{"with remainder", 105, 50, 3},
		{"single partial chunk", 10, 50, 1},
		{"empty dataset", 0, 50, 0},
		{"zero chunk size", 100, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExpectedChunks(tt.totalRows, tt.chunkSize); got != tt.want {
				t.Errorf("ExpectedChunks(%d, %d) = %d, want %d", tt.totalRows, tt.chunkSize, got, tt.want)
			}
		})
	}
}

func validChunkIndex() *ChunkIndex {
	return &ChunkIndex{
		SessionID:   "tvss-01hqv1234567890abcdefghijk",
		TotalChunks: 3,
		TotalRows:   125,
		ChunkSize:   50,
		ChunkKeys:   []string{"chunk:s:aaaaaa", "chunk:s:bbbbbb", "chunk:s:cccccc"},
		CreatedAt:   1700000000000,
	}
}

func TestChunkIndex_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*ChunkIndex)
		wantErr bool
	}{
		{"valid index", func(ci *ChunkIndex) {}, false},
		{"missing session id", func(ci *ChunkIndex) { ci.SessionID = "" }, true},
		{"zero chunk size", func(ci *ChunkIndex) { ci.ChunkSize = 0 }, true},
		{"negative total rows", func(ci *ChunkIndex) { ci.TotalRows = -1 }, true},
		{"key count mismatch", func(ci *ChunkIndex) { ci.ChunkKeys = ci.ChunkKeys[:2] }, true},
		{"chunk count mismatch", func(ci *ChunkIndex) { ci.TotalRows = 500 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ci := validChunkIndex()
			tt.mutate(ci)
			err := ci.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !IsDomainError(err, "TV-DATA-4220") {
				t.Errorf("Validate() code = %q, want TV-DATA-4220", GetErrorCode(err))
			}
		})
	}
}

func TestChunkIndex_Clone(t *testing.T) {
	ci := validChunkIndex()
	clone := ci.Clone()

	if clone == ci {
		t.Fatal("Clone() returned the same pointer")
	}

	clone.ChunkKeys[0] = "mutated"
	if ci.ChunkKeys[0] == "mutated" {
		t.Error("Clone() shares the ChunkKeys slice with the original")
	}
}

func TestEstimateChunkFootprint(t *testing.T) {
	got := EstimateChunkFootprint(1000, 10)
	want := int64(1000)*10*EstimatedCellBytes + HeaderOverheadBytes
	if got != want {
		t.Errorf("EstimateChunkFootprint(1000, 10) = %d, want %d", got, want)
	}

	// Empty chunk still pays the header overhead
	if got := EstimateChunkFootprint(0, 0); got != HeaderOverheadBytes {
		t.Errorf("EstimateChunkFootprint(0, 0) = %d, want %d", got, HeaderOverheadBytes)
	}
}

func TestDataset_Clone(t *testing.T) {
	d := &Dataset{
		Headers: []string{"a", "b"},
		Rows: [][]any{
			{1.0, "x"},
			{2.0, "y"},
		},
	}

	clone := d.Clone()
	clone.Rows[0][0] = 99.0
	clone.Headers[1] = "mutated"

	if d.Rows[0][0] == 99.0 {
		t.Error("Clone() shares row storage with the original")
	}
	if d.Headers[1] == "mutated" {
		t.Error("Clone() shares the Headers slice with the original")
	}

	if d.RowCount() != 2 || d.ColumnCount() != 2 {
		t.Errorf("counts = (%d, %d), want (2, 2)", d.RowCount(), d.ColumnCount())
	}

	var nilDataset *Dataset
	if nilDataset.RowCount() != 0 || nilDataset.ColumnCount() != 0 {
		t.Error("nil dataset should report zero counts")
	}
}
