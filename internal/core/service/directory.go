package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/tabvault/tabvault-go/internal/capability"
	"github.com/tabvault/tabvault-go/internal/codec"
	"github.com/tabvault/tabvault-go/internal/core/domain"
	"github.com/tabvault/tabvault-go/internal/storage"
	"github.com/tabvault/tabvault-go/internal/telemetry/metric"
)

// Directory manages session records, the MRU index, the active-session
// pointer, and capacity eviction. Records, the index, and the pointer
// live in the metadata tier; the payload blobs a record references live
// in the blob tier.
type Directory struct {
	meta    storage.Adapter
	blob    storage.Adapter
	limits  capability.Limits
	logger  *slog.Logger
	metrics *metric.Recorder
}

// NewDirectory creates a Directory over the two storage tiers.
func NewDirectory(meta, blob storage.Adapter, limits capability.Limits, logger *slog.Logger, metrics *metric.Recorder) *Directory {
	if logger == nil {
		logger = slog.Default()
	}
	return &Directory{
		meta:    meta,
		blob:    blob,
		limits:  limits,
		logger:  logger,
		metrics: metrics,
	}
}

// ============================================================================
// Create / Update
// ============================================================================

// CreateOrUpdateRequest carries the dataset summary for a session save.
type CreateOrUpdateRequest struct {
	Summary    domain.SessionSummary
	AppVersion string // optional; kept from the existing record when empty
}

// CreateOrUpdate updates the active session in place when it still
// resolves, otherwise mints a fresh record and marks it active. Either
// way the index is bumped and eviction runs.
func (d *Directory) CreateOrUpdate(ctx context.Context, req *CreateOrUpdateRequest) (*domain.Session, error) {
	if req == nil {
		return nil, domain.ErrMissingArgument.WithDetails("request is required")
	}

	// 1. Reuse the active session when it still resolves.
	session, err := d.ActiveSession(ctx)
	if err != nil && !errors.Is(err, domain.ErrNoActiveSession) {
		return nil, err
	}

	// 2. Otherwise mint a fresh record.
	if session == nil {
		session, err = domain.NewSession(req.Summary, req.AppVersion, domain.CurrentSchemaVersion)
		if err != nil {
			return nil, err
		}
	} else {
		session.Summary = req.Summary
		if req.AppVersion != "" {
			session.AppVersion = req.AppVersion
		}
		session.Touch()
	}

	// 3. Validate before anything is written.
	if err := session.Validate(); err != nil {
		return nil, err
	}

	// 4. Persist the record, bump the index, evict overflow.
	if err := d.commit(ctx, session); err != nil {
		return nil, err
	}

	// 5. Record the session as active.
	if err := d.setActivePointer(ctx, session.ID); err != nil {
		return nil, err
	}

	return session, nil
}

// CreateSession always mints a fresh record and leaves the active
// pointer alone. Archive import goes through here; saves from the live
// application go through CreateOrUpdate.
func (d *Directory) CreateSession(ctx context.Context, req *CreateOrUpdateRequest) (*domain.Session, error) {
	if req == nil {
		return nil, domain.ErrMissingArgument.WithDetails("request is required")
	}

	session, err := domain.NewSession(req.Summary, req.AppVersion, domain.CurrentSchemaVersion)
	if err != nil {
		return nil, err
	}
	if err := session.Validate(); err != nil {
		return nil, err
	}
	if err := d.commit(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

// ============================================================================
// Queries
// ============================================================================

// Get retrieves a session record by ID.
func (d *Directory) Get(ctx context.Context, id string) (*domain.Session, error) {
	if id == "" {
		return nil, domain.ErrMissingArgument.WithDetails("session id is required")
	}

	data, err := d.meta.Get(ctx, storage.SessionKey(id))
	if errors.Is(err, storage.ErrKeyNotFound) {
		return nil, domain.ErrSessionNotFound.WithDetails(id)
	}
	if err != nil {
		return nil, domain.ErrStorageFailure.WithCause(err)
	}

	var session domain.Session
	if err := codec.Unmarshal(data, &session); err != nil {
		return nil, domain.ErrCorruptPayload.WithDetails("session record "+id).WithCause(err)
	}
	return &session, nil
}

// List returns sessions in index order, most recently updated first.
// Index entries whose record is missing or unreadable are skipped and
// pruned from the index.
func (d *Directory) List(ctx context.Context) ([]*domain.Session, error) {
	ix, err := d.loadIndex(ctx)
	if err != nil {
		return nil, err
	}

	sessions := make([]*domain.Session, 0, ix.Len())
	var pruned []string
	for _, entry := range ix.Entries {
		session, err := d.Get(ctx, entry.ID)
		if err != nil {
			if errors.Is(err, domain.ErrSessionNotFound) ||
				errors.Is(err, domain.ErrCorruptPayload) {
				d.logger.Warn("session index entry has no readable record, pruning",
					"session_id", entry.ID)
				pruned = append(pruned, entry.ID)
				d.metrics.IndexEntryPruned()
				continue
			}
			return nil, err
		}
		sessions = append(sessions, session)
	}

	if len(pruned) > 0 {
		for _, id := range pruned {
			ix.Remove(id)
		}
		if err := d.saveIndex(ctx, ix); err != nil {
			d.logger.Warn("failed to prune session index", "error", err)
		}
	}
	return sessions, nil
}

// ============================================================================
// Delete
// ============================================================================

// Delete removes a session and everything it references: the dataset
// blob (or every chunk plus the chunk index for chunked sessions), the
// filters and charts blobs, the record, and the index entry. The active
// pointer is cleared when it pointed here. Missing blobs during cleanup
// are logged, not fatal.
func (d *Directory) Delete(ctx context.Context, id string) error {
	if id == "" {
		return domain.ErrMissingArgument.WithDetails("session id is required")
	}

	// 1. Load the record to learn what it references.
	session, err := d.Get(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrStorageFailure) {
			return err
		}
		// Absent or unreadable record: scrub whatever remains anyway.
		recordExisted := errors.Is(err, domain.ErrCorruptPayload)
		if rmErr := d.meta.Remove(ctx, storage.SessionKey(id)); rmErr != nil {
			return domain.ErrStorageFailure.WithCause(rmErr)
		}
		removed, scrubErr := d.forget(ctx, id)
		if scrubErr != nil {
			return scrubErr
		}
		if !removed && !recordExisted {
			return domain.ErrSessionNotFound.WithDetails(id)
		}
		d.logger.Warn("deleted session had no readable record, blobs may be orphaned",
			"session_id", id)
		d.metrics.SessionDeleted()
		return nil
	}

	// 2. Release every referenced blob, chunks included.
	d.releaseSessionBlobs(ctx, session)

	// 3. Drop the record, the index entry, and the active pointer.
	if err := d.meta.Remove(ctx, storage.SessionKey(id)); err != nil {
		return domain.ErrStorageFailure.WithCause(err)
	}
	if _, err := d.forget(ctx, id); err != nil {
		return err
	}

	d.metrics.SessionDeleted()
	d.logger.Info("session deleted", "session_id", id)
	return nil
}

// ============================================================================
// Active pointer
// ============================================================================

// ActiveSession resolves the active pointer to its record. A pointer to
// a vanished session is cleared and reported as no-active.
func (d *Directory) ActiveSession(ctx context.Context) (*domain.Session, error) {
	id, err := d.activeID(ctx)
	if err != nil {
		return nil, err
	}

	session, err := d.Get(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrSessionNotFound) ||
			errors.Is(err, domain.ErrCorruptPayload) {
			d.logger.Warn("active pointer references missing session, clearing",
				"session_id", id)
			if clearErr := d.ClearActive(ctx); clearErr != nil {
				d.logger.Warn("failed to clear stale active pointer", "error", clearErr)
			}
			return nil, domain.ErrNoActiveSession
		}
		return nil, err
	}
	return session, nil
}

// SetActive points the active pointer at an existing session.
func (d *Directory) SetActive(ctx context.Context, id string) error {
	if _, err := d.Get(ctx, id); err != nil {
		return err
	}
	return d.setActivePointer(ctx, id)
}

// ClearActive unsets the active pointer. Clearing an unset pointer
// succeeds.
func (d *Directory) ClearActive(ctx context.Context) error {
	if err := d.meta.Remove(ctx, storage.KeyActiveSession); err != nil {
		return domain.ErrStorageFailure.WithCause(err)
	}
	return nil
}

// ============================================================================
// Filters / Charts
// ============================================================================

// SaveFilters persists the session's filter state, reusing the existing
// blob key when one is present.
func (d *Directory) SaveFilters(ctx context.Context, id string, filters *domain.FilterState) (*domain.Session, error) {
	if filters == nil {
		return nil, domain.ErrMissingArgument.WithDetails("filter state is required")
	}

	// 1. The session must exist.
	session, err := d.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	// 2. Encode and store under the existing key, or a fresh one.
	key := session.FiltersKey
	if key == "" {
		key, err = storage.NewBlobKey(storage.BlobFilters, session.ID)
		if err != nil {
			return nil, domain.ErrInternalServer.WithCause(err)
		}
	}
	data, err := codec.Marshal(filters)
	if err != nil {
		return nil, domain.ErrInternalServer.WithCause(err)
	}
	if err := d.blob.Set(ctx, key, data); err != nil {
		return nil, domain.ErrStorageFailure.WithCause(err)
	}
	d.metrics.PayloadStored(string(storage.BlobFilters), len(data))

	// 3. Update the record and the index.
	session.FiltersKey = key
	session.Touch()
	if err := d.commit(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

// SaveCharts persists the session's chart configurations, reusing the
// existing blob key when one is present.
func (d *Directory) SaveCharts(ctx context.Context, id string, charts []domain.ChartConfig) (*domain.Session, error) {
	if charts == nil {
		return nil, domain.ErrMissingArgument.WithDetails("chart configurations are required")
	}

	session, err := d.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	key := session.ChartsKey
	if key == "" {
		key, err = storage.NewBlobKey(storage.BlobCharts, session.ID)
		if err != nil {
			return nil, domain.ErrInternalServer.WithCause(err)
		}
	}
	data, err := codec.Marshal(charts)
	if err != nil {
		return nil, domain.ErrInternalServer.WithCause(err)
	}
	if err := d.blob.Set(ctx, key, data); err != nil {
		return nil, domain.ErrStorageFailure.WithCause(err)
	}
	d.metrics.PayloadStored(string(storage.BlobCharts), len(data))

	session.ChartsKey = key
	session.Touch()
	if err := d.commit(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

// LoadFilters returns the saved filter state, or nil when none exists.
func (d *Directory) LoadFilters(ctx context.Context, id string) (*domain.FilterState, error) {
	session, err := d.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return d.loadFilterPayload(ctx, session)
}

// LoadCharts returns the saved chart configurations, or nil when none
// exist.
func (d *Directory) LoadCharts(ctx context.Context, id string) ([]domain.ChartConfig, error) {
	session, err := d.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return d.loadChartPayload(ctx, session)
}

func (d *Directory) loadFilterPayload(ctx context.Context, session *domain.Session) (*domain.FilterState, error) {
	if !session.HasFilters() {
		return nil, nil
	}
	data, err := d.blob.Get(ctx, session.FiltersKey)
	if errors.Is(err, storage.ErrKeyNotFound) {
		d.logger.Warn("filters blob missing", "session_id", session.ID, "key", session.FiltersKey)
		return nil, nil
	}
	if err != nil {
		return nil, domain.ErrStorageFailure.WithCause(err)
	}
	var filters domain.FilterState
	if err := codec.Unmarshal(data, &filters); err != nil {
		return nil, domain.ErrCorruptPayload.WithDetails("filter state").WithCause(err)
	}
	return &filters, nil
}

func (d *Directory) loadChartPayload(ctx context.Context, session *domain.Session) ([]domain.ChartConfig, error) {
	if !session.HasCharts() {
		return nil, nil
	}
	data, err := d.blob.Get(ctx, session.ChartsKey)
	if errors.Is(err, storage.ErrKeyNotFound) {
		d.logger.Warn("charts blob missing", "session_id", session.ID, "key", session.ChartsKey)
		return nil, nil
	}
	if err != nil {
		return nil, domain.ErrStorageFailure.WithCause(err)
	}
	var charts []domain.ChartConfig
	if err := codec.Unmarshal(data, &charts); err != nil {
		return nil, domain.ErrCorruptPayload.WithDetails("chart configurations").WithCause(err)
	}
	return charts, nil
}

// ============================================================================
// Internals: index, eviction, blob release
// ============================================================================

// commit persists the session record, bumps the index, and enforces the
// session cap.
func (d *Directory) commit(ctx context.Context, session *domain.Session) error {
	data, err := codec.Marshal(session)
	if err != nil {
		return domain.ErrInternalServer.WithCause(err)
	}
	if err := d.meta.Set(ctx, storage.SessionKey(session.ID), data); err != nil {
		return domain.ErrStorageFailure.WithCause(err)
	}

	ix, err := d.loadIndex(ctx)
	if err != nil {
		return err
	}
	ix.Bump(session.ID, session.UpdatedAt)
	if err := d.saveIndex(ctx, ix); err != nil {
		return err
	}

	d.metrics.SessionSaved()
	_, err = d.evict(ctx, ix)
	return err
}

// EvictExcess applies the session cap to the index right now, without
// waiting for the next save. Returns how many sessions were removed.
// Saves evict on their own; this is the operator's lever after a cap
// was lowered.
func (d *Directory) EvictExcess(ctx context.Context) (int, error) {
	ix, err := d.loadIndex(ctx)
	if err != nil {
		return 0, err
	}
	return d.evict(ctx, ix)
}

// evict deletes sessions beyond the capacity profile's cap, oldest
// first. Eviction is unconditional: the directory is a cache, not an
// archive.
func (d *Directory) evict(ctx context.Context, ix *domain.SessionIndex) (int, error) {
	evicted := 0
	for _, id := range ix.Overflow(d.limits.MaxSessions) {
		d.logger.Info("evicting session over capacity",
			"session_id", id, "max_sessions", d.limits.MaxSessions)
		if err := d.Delete(ctx, id); err != nil &&
			!errors.Is(err, domain.ErrSessionNotFound) {
			return evicted, err
		}
		evicted++
		d.metrics.SessionEvicted()
	}
	return evicted, nil
}

// forget removes id from the index and clears the active pointer when
// it points at id. Reports whether an index entry existed.
func (d *Directory) forget(ctx context.Context, id string) (bool, error) {
	ix, err := d.loadIndex(ctx)
	if err != nil {
		return false, err
	}
	removed := ix.Remove(id)
	if removed {
		if err := d.saveIndex(ctx, ix); err != nil {
			return removed, err
		}
	}

	if active, err := d.activeID(ctx); err == nil && active == id {
		if err := d.ClearActive(ctx); err != nil {
			d.logger.Warn("failed to clear active pointer", "session_id", id, "error", err)
		}
	}
	return removed, nil
}

// releaseSessionBlobs drops everything the record references in the
// blob tier. Failures are logged; cleanup keeps going.
func (d *Directory) releaseSessionBlobs(ctx context.Context, session *domain.Session) {
	if session.HasDataset() {
		d.releaseDataset(ctx, session)
	}
	d.releaseBlob(ctx, session.FiltersKey)
	d.releaseBlob(ctx, session.ChartsKey)
}

// releaseDataset drops a dataset's blob representation: the single
// payload, or every chunk plus the chunk index for chunked sessions.
func (d *Directory) releaseDataset(ctx context.Context, session *domain.Session) {
	if !session.IsChunked {
		d.releaseBlob(ctx, session.DatasetKey)
		return
	}

	idx, err := d.loadChunkIndex(ctx, session.DatasetKey)
	if err != nil {
		d.logger.Warn("chunk index unreadable during release, chunks may be orphaned",
			"session_id", session.ID, "error", err)
	} else {
		for _, key := range idx.ChunkKeys {
			d.releaseBlob(ctx, key)
		}
	}
	d.releaseBlob(ctx, session.DatasetKey)
}

func (d *Directory) releaseBlob(ctx context.Context, key string) {
	if key == "" {
		return
	}
	if err := d.blob.Remove(ctx, key); err != nil {
		d.logger.Warn("failed to remove blob", "key", key, "error", err)
	}
}

// loadChunkIndex reads and validates a chunk-index record from the blob
// tier.
func (d *Directory) loadChunkIndex(ctx context.Context, key string) (*domain.ChunkIndex, error) {
	data, err := d.blob.Get(ctx, key)
	if errors.Is(err, storage.ErrKeyNotFound) {
		return nil, domain.ErrCorruptPayload.WithDetails("chunk index missing: " + key)
	}
	if err != nil {
		return nil, domain.ErrStorageFailure.WithCause(err)
	}

	var idx domain.ChunkIndex
	if err := codec.Unmarshal(data, &idx); err != nil {
		return nil, domain.ErrCorruptPayload.WithDetails("chunk index").WithCause(err)
	}
	if err := idx.Validate(); err != nil {
		return nil, err
	}
	return &idx, nil
}

func (d *Directory) activeID(ctx context.Context) (string, error) {
	data, err := d.meta.Get(ctx, storage.KeyActiveSession)
	if errors.Is(err, storage.ErrKeyNotFound) {
		return "", domain.ErrNoActiveSession
	}
	if err != nil {
		return "", domain.ErrStorageFailure.WithCause(err)
	}
	if len(data) == 0 {
		return "", domain.ErrNoActiveSession
	}
	return string(data), nil
}

func (d *Directory) setActivePointer(ctx context.Context, id string) error {
	if err := d.meta.Set(ctx, storage.KeyActiveSession, []byte(id)); err != nil {
		return domain.ErrStorageFailure.WithCause(err)
	}
	return nil
}

// loadIndex reads the session index, treating absence as empty and a
// corrupt index as empty with a warning.
func (d *Directory) loadIndex(ctx context.Context) (*domain.SessionIndex, error) {
	data, err := d.meta.Get(ctx, storage.KeySessionIndex)
	if errors.Is(err, storage.ErrKeyNotFound) {
		return &domain.SessionIndex{}, nil
	}
	if err != nil {
		return nil, domain.ErrStorageFailure.WithCause(err)
	}

	var ix domain.SessionIndex
	if err := codec.Unmarshal(data, &ix); err != nil {
		d.logger.Warn("session index corrupt, rebuilding empty", "error", err)
		return &domain.SessionIndex{}, nil
	}
	return &ix, nil
}

func (d *Directory) saveIndex(ctx context.Context, ix *domain.SessionIndex) error {
	data, err := codec.Marshal(ix)
	if err != nil {
		return domain.ErrInternalServer.WithCause(err)
	}
	if err := d.meta.Set(ctx, storage.KeySessionIndex, data); err != nil {
		return domain.ErrStorageFailure.WithCause(err)
	}
	return nil
}
