package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/tabvault/tabvault-go/internal/capability"
	"github.com/tabvault/tabvault-go/internal/codec"
	"github.com/tabvault/tabvault-go/internal/core/domain"
	"github.com/tabvault/tabvault-go/internal/storage"
	"github.com/tabvault/tabvault-go/internal/telemetry/metric"
)

// Chunker persists datasets, splitting those that exceed the capacity
// profile into row chunks. A dataset is stored either as one payload
// blob or as a chunk index plus chunk blobs, never both.
type Chunker struct {
	dir      *Directory
	blob     storage.Adapter
	limits   capability.Limits
	tunables Tunables
	logger   *slog.Logger
	metrics  *metric.Recorder
}

// NewChunker creates a Chunker writing through the given Directory.
func NewChunker(dir *Directory, blob storage.Adapter, limits capability.Limits, tunables Tunables, logger *slog.Logger, metrics *metric.Recorder) *Chunker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Chunker{
		dir:      dir,
		blob:     blob,
		limits:   limits,
		tunables: tunables.normalize(),
		logger:   logger,
		metrics:  metrics,
	}
}

// SaveDatasetRequest carries a dataset save.
type SaveDatasetRequest struct {
	SessionID string
	Dataset   *domain.Dataset
}

// SaveDatasetResponse reports how the dataset was stored.
type SaveDatasetResponse struct {
	Session    *domain.Session
	Chunked    bool
	ChunkCount int

	// EstimatedBytes is the serialized-size estimate, zero when the row
	// count alone forced chunking and the whole dataset was never
	// serialized.
	EstimatedBytes int
}

// SaveDataset persists a session's dataset.
//
// The row count is checked before anything is serialized: a dataset
// over MaxRowsPersisted chunks without paying for a whole-dataset
// encode. Under the row cap, the serialized estimate decides.
func (c *Chunker) SaveDataset(ctx context.Context, req *SaveDatasetRequest) (*SaveDatasetResponse, error) {
	if req == nil || req.Dataset == nil {
		return nil, domain.ErrMissingArgument.WithDetails("dataset is required")
	}

	// 1. The session must exist.
	session, err := c.dir.Get(ctx, req.SessionID)
	if err != nil {
		return nil, err
	}

	rows := req.Dataset.RowCount()
	resp := &SaveDatasetResponse{}

	// 2. Row-count check first.
	if rows > c.limits.MaxRowsPersisted {
		count, err := c.saveChunked(ctx, session, req.Dataset)
		if err != nil {
			return nil, err
		}
		resp.Chunked = true
		resp.ChunkCount = count
	} else {
		// 3. Serialized-size check second.
		payload, err := codec.Serialize(req.Dataset)
		if err != nil {
			return nil, domain.ErrInternalServer.WithCause(err)
		}
		resp.EstimatedBytes = codec.EstimateSize(payload)

		if resp.EstimatedBytes > c.limits.MaxDatasetBytes {
			count, err := c.saveChunked(ctx, session, req.Dataset)
			if err != nil {
				return nil, err
			}
			resp.Chunked = true
			resp.ChunkCount = count
		} else if err := c.saveSingle(ctx, session, payload); err != nil {
			return nil, err
		}
	}

	// 4. Keep the summary counts in step with the stored dataset.
	session.Summary.RowCount = rows
	session.Summary.ColumnCount = req.Dataset.ColumnCount()
	session.Touch()
	if err := c.dir.commit(ctx, session); err != nil {
		return nil, err
	}

	resp.Session = session
	return resp, nil
}

// saveSingle stores the dataset as one payload blob. A session already
// holding a single payload keeps its key; a chunked predecessor is
// released first.
func (c *Chunker) saveSingle(ctx context.Context, session *domain.Session, payload codec.Payload) error {
	if session.IsChunked && session.HasDataset() {
		c.dir.releaseDataset(ctx, session)
		session.DatasetKey = ""
	}

	key := session.DatasetKey
	if key == "" {
		var err error
		key, err = storage.NewBlobKey(storage.BlobDataset, session.ID)
		if err != nil {
			return domain.ErrInternalServer.WithCause(err)
		}
	}

	data, err := codec.EncodePayload(payload)
	if err != nil {
		return domain.ErrInternalServer.WithCause(err)
	}
	if err := c.blob.Set(ctx, key, data); err != nil {
		return domain.ErrStorageFailure.WithCause(err)
	}
	c.metrics.PayloadStored(string(storage.BlobDataset), len(data))

	session.DatasetKey = key
	session.IsChunked = false
	c.metrics.DatasetSaved("single")
	c.logger.Info("dataset saved",
		"session_id", session.ID,
		"rows", session.Summary.RowCount,
		"bytes", len(data))
	return nil
}

// saveChunked stores the dataset as row chunks plus a chunk index. Any
// previous representation is released before the new one is written.
func (c *Chunker) saveChunked(ctx context.Context, session *domain.Session, ds *domain.Dataset) (int, error) {
	// 1. Release the old representation, whatever form it took.
	if session.HasDataset() {
		c.dir.releaseDataset(ctx, session)
		session.DatasetKey = ""
		session.IsChunked = false
	}

	chunkSize := c.tunables.ChunkSize
	if chunkSize > c.limits.MaxRowsPersisted {
		chunkSize = c.limits.MaxRowsPersisted
	}

	rows := ds.RowCount()
	total := domain.ExpectedChunks(rows, chunkSize)

	// 2. Write the chunks.
	keys := make([]string, 0, total)
	for i := 0; i < total; i++ {
		if err := ctx.Err(); err != nil {
			c.discard(ctx, keys)
			return 0, err
		}

		start := i * chunkSize
		end := min(start+chunkSize, rows)
		chunk := domain.DatasetChunk{
			SessionID: session.ID,
			Index:     i,
			StartRow:  start,
			RowCount:  end - start,
			Headers:   ds.Headers,
			Rows:      ds.Rows[start:end],
		}

		key, err := storage.NewBlobKey(storage.BlobChunk, session.ID)
		if err != nil {
			c.discard(ctx, keys)
			return 0, domain.ErrInternalServer.WithCause(err)
		}
		data, err := codec.Marshal(&chunk)
		if err != nil {
			c.discard(ctx, keys)
			return 0, domain.ErrInternalServer.WithCause(err)
		}
		if err := c.blob.Set(ctx, key, data); err != nil {
			c.discard(ctx, keys)
			return 0, domain.ErrStorageFailure.WithCause(err)
		}
		keys = append(keys, key)
		c.metrics.ChunkWritten()
		c.metrics.PayloadStored(string(storage.BlobChunk), len(data))
	}

	// 3. Write the chunk index.
	idx := domain.ChunkIndex{
		SessionID:   session.ID,
		TotalChunks: total,
		TotalRows:   rows,
		ChunkSize:   chunkSize,
		ChunkKeys:   keys,
		CreatedAt:   time.Now().UnixMilli(),
	}
	ixKey, err := storage.NewBlobKey(storage.BlobChunkIndex, session.ID)
	if err != nil {
		c.discard(ctx, keys)
		return 0, domain.ErrInternalServer.WithCause(err)
	}
	data, err := codec.Marshal(&idx)
	if err != nil {
		c.discard(ctx, keys)
		return 0, domain.ErrInternalServer.WithCause(err)
	}
	if err := c.blob.Set(ctx, ixKey, data); err != nil {
		c.discard(ctx, keys)
		return 0, domain.ErrStorageFailure.WithCause(err)
	}

	session.DatasetKey = ixKey
	session.IsChunked = true
	c.metrics.DatasetSaved("chunked")
	c.logger.Info("dataset saved chunked",
		"session_id", session.ID,
		"rows", rows,
		"chunks", total,
		"chunk_size", chunkSize)
	return total, nil
}

// discard removes partially written chunk blobs after a failed save.
// Runs detached from the caller's cancellation.
func (c *Chunker) discard(ctx context.Context, keys []string) {
	cleanup := context.WithoutCancel(ctx)
	for _, key := range keys {
		if err := c.blob.Remove(cleanup, key); err != nil {
			c.logger.Warn("failed to remove partial chunk", "key", key, "error", err)
		}
	}
}
