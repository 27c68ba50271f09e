package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sort"
	"strconv"
	"time"

	"github.com/tabvault/tabvault-go/internal/capability"
	"github.com/tabvault/tabvault-go/internal/codec"
	"github.com/tabvault/tabvault-go/internal/core/domain"
	"github.com/tabvault/tabvault-go/internal/storage"
	"github.com/tabvault/tabvault-go/internal/telemetry/metric"
)

// Stage names a phase of a progressive restore.
type Stage string

const (
	StageValidating     Stage = "validating"
	StageLoadingData    Stage = "loading-data"
	StageLoadingFilters Stage = "loading-filters"
	StageLoadingCharts  Stage = "loading-charts"
	StageApplying       Stage = "applying"
	StageComplete       Stage = "complete"
)

// Stage entry percentages. The chunk walk fills the band between
// progressData and progressFilters.
const (
	progressValidating = 0
	progressData       = 10
	progressFilters    = 60
	progressCharts     = 65
	progressApplying   = 80
	progressComplete   = 100
)

// lateWalkFraction is the point in the chunk walk past which the
// inter-chunk pause stretches to RestoreMaxDelay.
const lateWalkFraction = 0.8

// Progress is one progress report during a restore. Percent never
// decreases across reports of a single restore.
type Progress struct {
	Stage   Stage  `json:"stage"`
	Percent int    `json:"percent"`
	Message string `json:"message,omitempty"`
}

// ProgressFunc receives progress reports. Called synchronously from the
// restore; keep it cheap.
type ProgressFunc func(Progress)

// ApplyHooks hand restored state to the consumer during the applying
// stage. A Dataset hook failure aborts the restore; Filters and Charts
// hook failures are logged and swallowed. Nil hooks are skipped.
type ApplyHooks struct {
	Dataset func(ctx context.Context, s *domain.Session, ds *domain.Dataset) error
	Filters func(ctx context.Context, s *domain.Session, fs *domain.FilterState) error
	Charts  func(ctx context.Context, s *domain.Session, cs []domain.ChartConfig) error
}

// RestoreRequest parameterizes a progressive restore.
type RestoreRequest struct {
	SessionID  string
	OnProgress ProgressFunc
	Hooks      ApplyHooks
}

// RestoreResponse carries the restored state.
type RestoreResponse struct {
	Session *domain.Session
	Dataset *domain.Dataset
	Filters *domain.FilterState
	Charts  []domain.ChartConfig

	// Skipped lists the chunk indexes that could not be recovered.
	Skipped []int

	// Duration is the wall time of the restore.
	Duration time.Duration
}

// Restorer rebuilds sessions progressively: validate, load data chunk
// by chunk under memory supervision, load auxiliary state best-effort,
// apply, activate. The session becomes active only after the applying
// stage succeeds, so an aborted restore never changes which session is
// active.
type Restorer struct {
	dir      *Directory
	blob     storage.Adapter
	limits   capability.Limits
	tunables Tunables
	probe    capability.MemoryProbe
	logger   *slog.Logger
	metrics  *metric.Recorder
}

// NewRestorer creates a Restorer reading through the given Directory.
func NewRestorer(dir *Directory, blob storage.Adapter, limits capability.Limits, tunables Tunables, probe capability.MemoryProbe, logger *slog.Logger, metrics *metric.Recorder) *Restorer {
	if probe == nil {
		probe = capability.NewRuntimeProbe(limits)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Restorer{
		dir:      dir,
		blob:     blob,
		limits:   limits,
		tunables: tunables.normalize(),
		probe:    probe,
		logger:   logger,
		metrics:  metrics,
	}
}

// Restore runs a full progressive restore. The caller must ensure only
// one restore runs at a time; the API layer enforces single-flight.
func (r *Restorer) Restore(ctx context.Context, req *RestoreRequest) (*RestoreResponse, error) {
	start := time.Now()
	resp, err := r.restore(ctx, req)
	elapsed := time.Since(start)

	switch {
	case err == nil:
		r.metrics.RestoreFinished("success", elapsed.Seconds())
		resp.Duration = elapsed
		return resp, nil
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		r.metrics.RestoreFinished("cancelled", elapsed.Seconds())
	default:
		r.metrics.RestoreFinished("failure", elapsed.Seconds())
	}
	return nil, err
}

func (r *Restorer) restore(ctx context.Context, req *RestoreRequest) (*RestoreResponse, error) {
	if req == nil || req.SessionID == "" {
		return nil, domain.ErrMissingArgument.WithDetails("session id is required")
	}

	emit := func(p Progress) {
		if req.OnProgress != nil {
			req.OnProgress(p)
		}
	}

	// 1. Validate the record before touching any payload.
	emit(Progress{Stage: StageValidating, Percent: progressValidating, Message: "validating session"})
	session, err := r.dir.Get(ctx, req.SessionID)
	if err != nil {
		return nil, err
	}
	if err := session.Validate(); err != nil {
		return nil, err
	}
	if !schemaSupported(session.SchemaVersion) {
		return nil, domain.ErrSessionValidation.WithDetails(fmt.Sprintf(
			"schema version %q is newer than supported %q",
			session.SchemaVersion, domain.CurrentSchemaVersion))
	}

	// 2. Load the dataset, chunk by chunk when chunked.
	emit(Progress{Stage: StageLoadingData, Percent: progressData, Message: "loading dataset"})
	var (
		dataset *domain.Dataset
		skipped []int
	)
	if session.HasDataset() {
		if session.IsChunked {
			dataset, skipped, err = r.loadChunked(ctx, session, emit)
		} else {
			dataset, err = r.loadSingle(ctx, session)
		}
		if err != nil {
			return nil, err
		}
	}

	// 3. Filters are best effort: a lost filter state downgrades the
	//    restore, it does not fail it.
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	emit(Progress{Stage: StageLoadingFilters, Percent: progressFilters, Message: "loading filters"})
	filters, err := r.dir.loadFilterPayload(ctx, session)
	if err != nil {
		if isCancellation(err) {
			return nil, err
		}
		r.logger.Warn("filter state unrecoverable, continuing without",
			"session_id", session.ID, "error", err)
		filters = nil
	}

	// 4. Charts, same best-effort contract.
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	emit(Progress{Stage: StageLoadingCharts, Percent: progressCharts, Message: "loading charts"})
	charts, err := r.dir.loadChartPayload(ctx, session)
	if err != nil {
		if isCancellation(err) {
			return nil, err
		}
		r.logger.Warn("chart configurations unrecoverable, continuing without",
			"session_id", session.ID, "error", err)
		charts = nil
	}

	// 5. Apply. The dataset hook gates success; auxiliary hooks do not.
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	emit(Progress{Stage: StageApplying, Percent: progressApplying, Message: "applying restored state"})
	if req.Hooks.Dataset != nil && dataset != nil {
		if err := req.Hooks.Dataset(ctx, session, dataset); err != nil {
			return nil, domain.ErrApplyFailure.WithDetails("dataset").WithCause(err)
		}
	}
	if req.Hooks.Filters != nil && filters != nil {
		if err := req.Hooks.Filters(ctx, session, filters); err != nil {
			r.logger.Warn("filter apply hook failed, continuing",
				"session_id", session.ID, "error", err)
		}
	}
	if req.Hooks.Charts != nil && charts != nil {
		if err := req.Hooks.Charts(ctx, session, charts); err != nil {
			r.logger.Warn("chart apply hook failed, continuing",
				"session_id", session.ID, "error", err)
		}
	}

	// 6. Activation is the final mutation. Every earlier exit leaves
	//    the active pointer exactly as the restore found it.
	session.Touch()
	if err := r.dir.commit(ctx, session); err != nil {
		return nil, err
	}
	if err := r.dir.setActivePointer(ctx, session.ID); err != nil {
		return nil, err
	}

	emit(Progress{Stage: StageComplete, Percent: progressComplete, Message: "restore complete"})
	r.logger.Info("session restored",
		"session_id", session.ID,
		"rows", dataset.RowCount(),
		"chunks_skipped", len(skipped))

	return &RestoreResponse{
		Session: session,
		Dataset: dataset,
		Filters: filters,
		Charts:  charts,
		Skipped: skipped,
	}, nil
}

// LoadDataset materializes a session's dataset outside a full restore.
// Chunked datasets go through the same supervised walk; the skip list
// carries unrecoverable chunk indexes.
func (r *Restorer) LoadDataset(ctx context.Context, id string) (*domain.Dataset, []int, error) {
	session, err := r.dir.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if !session.HasDataset() {
		return nil, nil, nil
	}
	if !session.IsChunked {
		ds, err := r.loadSingle(ctx, session)
		return ds, nil, err
	}
	return r.loadChunked(ctx, session, nil)
}

// ============================================================================
// Chunk walk
// ============================================================================

// loadChunked walks a chunked dataset's chunks and reassembles them.
func (r *Restorer) loadChunked(ctx context.Context, session *domain.Session, emit func(Progress)) (*domain.Dataset, []int, error) {
	idx, err := r.dir.loadChunkIndex(ctx, session.DatasetKey)
	if err != nil {
		return nil, nil, err
	}

	chunks, skipped, err := r.walkChunks(ctx, idx, emit)
	if err != nil {
		return nil, nil, err
	}

	ds, err := reconstruct(idx, chunks)
	if err != nil {
		return nil, nil, err
	}
	return ds, skipped, nil
}

// walkChunks loads every chunk the index names, in order, yielding to
// the scheduler and consulting the memory probe as it goes. Missing,
// corrupt, and oversized chunks are skipped; storage failures and
// memory pressure abort.
func (r *Restorer) walkChunks(ctx context.Context, idx *domain.ChunkIndex, emit func(Progress)) ([]*domain.DatasetChunk, []int, error) {
	total := len(idx.ChunkKeys)
	chunks := make([]*domain.DatasetChunk, 0, total)
	var skipped []int

	for i, key := range idx.ChunkKeys {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}

		if i > 0 && i%r.tunables.MemoryCheckInterval == 0 && r.probe.HighPressure() {
			return nil, nil, domain.ErrInsufficientMemory.WithDetails(fmt.Sprintf(
				"memory pressure after %d of %d chunks", i, total))
		}

		chunk, skip, err := r.loadChunk(ctx, key)
		if err != nil {
			return nil, nil, err
		}
		if chunk == nil {
			skipped = append(skipped, i)
			r.metrics.ChunkSkipped(skipLabel(skip))
			r.logger.Warn("skipping unrecoverable chunk",
				"session_id", idx.SessionID, "chunk", i, "code", skip.Code, "reason", skip.Message, "key", key)
		} else {
			chunks = append(chunks, chunk)
			r.metrics.ChunkRead()
		}

		if emit != nil {
			emit(chunkProgress(i+1, total))
		}

		if (i+1)%r.tunables.GCInterval == 0 {
			runtime.Gosched()
		}

		if i+1 < total {
			if err := r.pause(ctx, i+1, total); err != nil {
				return nil, nil, err
			}
		}
	}
	return chunks, skipped, nil
}

// loadChunk fetches and validates one chunk. A nil chunk with a skip
// classification means skip; an error means abort. Skips carry the
// warning-severity taxonomy entries, never fatal ones.
func (r *Restorer) loadChunk(ctx context.Context, key string) (*domain.DatasetChunk, *domain.DomainError, error) {
	data, err := r.blob.Get(ctx, key)
	if errors.Is(err, storage.ErrKeyNotFound) {
		return nil, domain.ErrChunkMissing, nil
	}
	if err != nil {
		return nil, nil, domain.ErrStorageFailure.WithCause(err)
	}

	var chunk domain.DatasetChunk
	if err := codec.Unmarshal(data, &chunk); err != nil {
		return nil, domain.ErrCorruptPayload, nil
	}

	footprint := domain.EstimateChunkFootprint(chunk.RowCount, len(chunk.Headers))
	if footprint > r.limits.MaxChunkBytes {
		return nil, domain.ErrDatasetTooLarge, nil
	}
	return &chunk, nil, nil
}

// skipLabel maps a skip classification onto its metric label.
func skipLabel(e *domain.DomainError) string {
	switch e {
	case domain.ErrChunkMissing:
		return "missing"
	case domain.ErrCorruptPayload:
		return "corrupt"
	default:
		return "oversized"
	}
}

// pause sleeps between chunk loads so a restore shares the process with
// whatever is consuming it. Late in the walk, when the reassembled rows
// already occupy memory, the pause stretches.
func (r *Restorer) pause(ctx context.Context, done, total int) error {
	delay := r.tunables.RestoreDelay
	if float64(done) >= lateWalkFraction*float64(total) {
		delay = r.tunables.RestoreMaxDelay
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// chunkProgress maps chunk-walk completion onto the loading-data band.
func chunkProgress(done, total int) Progress {
	span := progressFilters - progressData
	return Progress{
		Stage:   StageLoadingData,
		Percent: progressData + span*done/total,
		Message: fmt.Sprintf("loaded chunk %d/%d", done, total),
	}
}

// reconstruct reassembles surviving chunks into a dataset. Chunks sort
// by position; the header row comes from the first survivor. Skipped
// chunks leave row gaps, never placeholder rows.
func reconstruct(idx *domain.ChunkIndex, chunks []*domain.DatasetChunk) (*domain.Dataset, error) {
	if idx.TotalChunks == 0 {
		return &domain.Dataset{}, nil
	}
	if len(chunks) == 0 {
		return nil, domain.ErrNoValidChunks.WithDetails(fmt.Sprintf(
			"0 of %d chunks recovered", idx.TotalChunks))
	}

	sort.Slice(chunks, func(i, j int) bool { return chunks[i].Index < chunks[j].Index })

	headers := make([]string, len(chunks[0].Headers))
	copy(headers, chunks[0].Headers)

	rows := make([][]any, 0, idx.TotalRows)
	for _, c := range chunks {
		rows = append(rows, c.Rows...)
	}
	return &domain.Dataset{Headers: headers, Rows: rows}, nil
}

// loadSingle fetches a non-chunked dataset payload.
func (r *Restorer) loadSingle(ctx context.Context, session *domain.Session) (*domain.Dataset, error) {
	data, err := r.blob.Get(ctx, session.DatasetKey)
	if errors.Is(err, storage.ErrKeyNotFound) {
		return nil, domain.ErrCorruptPayload.WithDetails("dataset blob missing: " + session.DatasetKey)
	}
	if err != nil {
		return nil, domain.ErrStorageFailure.WithCause(err)
	}

	var ds domain.Dataset
	if err := codec.Unmarshal(data, &ds); err != nil {
		return nil, domain.ErrCorruptPayload.WithDetails("dataset payload").WithCause(err)
	}
	return &ds, nil
}

// schemaSupported reports whether a record's schema version is readable
// by this build. Versions are integer strings; newer majors are
// refused, unparseable versions likewise.
func schemaSupported(v string) bool {
	n, err := strconv.Atoi(v)
	if err != nil {
		return false
	}
	cur, err := strconv.Atoi(domain.CurrentSchemaVersion)
	if err != nil {
		return false
	}
	return n <= cur
}

func isCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
