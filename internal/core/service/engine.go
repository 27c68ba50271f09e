package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/tabvault/tabvault-go/internal/capability"
	"github.com/tabvault/tabvault-go/internal/core/domain"
	"github.com/tabvault/tabvault-go/internal/storage"
	"github.com/tabvault/tabvault-go/internal/telemetry/metric"
)

// Tunables adjust persistence mechanics within a capacity profile.
// Zero fields take the defaults; normalization happens once at engine
// construction.
type Tunables struct {
	// ChunkSize is the configured rows-per-chunk. The chunker clamps it
	// to the profile's MaxRowsPersisted.
	ChunkSize int `koanf:"chunk_size"`

	// MemoryCheckInterval is how many chunks the restorer walks between
	// memory-probe consultations.
	MemoryCheckInterval int `koanf:"memory_check_interval"`

	// GCInterval is how many chunks the restorer walks between
	// scheduler yields.
	GCInterval int `koanf:"gc_interval"`

	// RestoreDelay is the pause between chunk loads during a restore.
	RestoreDelay time.Duration `koanf:"restore_delay"`

	// RestoreMaxDelay replaces RestoreDelay in the late portion of the
	// chunk walk, when applied state starts competing for memory.
	RestoreMaxDelay time.Duration `koanf:"restore_max_delay"`
}

// DefaultTunables returns the stock tuning.
func DefaultTunables() Tunables {
	return Tunables{
		ChunkSize:           10_000,
		MemoryCheckInterval: 3,
		GCInterval:          5,
		RestoreDelay:        10 * time.Millisecond,
		RestoreMaxDelay:     50 * time.Millisecond,
	}
}

// normalize fills zero fields from the defaults.
func (t Tunables) normalize() Tunables {
	def := DefaultTunables()
	if t.ChunkSize <= 0 {
		t.ChunkSize = def.ChunkSize
	}
	if t.MemoryCheckInterval <= 0 {
		t.MemoryCheckInterval = def.MemoryCheckInterval
	}
	if t.GCInterval <= 0 {
		t.GCInterval = def.GCInterval
	}
	if t.RestoreDelay <= 0 {
		t.RestoreDelay = def.RestoreDelay
	}
	if t.RestoreMaxDelay < t.RestoreDelay {
		t.RestoreMaxDelay = def.RestoreMaxDelay
	}
	return t
}

// ============================================================================
// Engine
// ============================================================================

// Config assembles an Engine. Meta and Blob are required; everything
// else defaults.
type Config struct {
	// Meta is the metadata tier: session records, the index, the
	// active pointer.
	Meta storage.Adapter

	// Blob is the blob tier: datasets, chunks, filters, charts.
	Blob storage.Adapter

	// Limits is the capacity profile. Zero value means detect from the
	// host.
	Limits capability.Limits

	// Probe overrides the default runtime memory probe.
	Probe capability.MemoryProbe

	// Tunables overrides the stock tuning; zero fields keep defaults.
	Tunables Tunables

	// AppVersion is stamped on sessions this engine creates.
	AppVersion string

	Logger  *slog.Logger
	Metrics *metric.Recorder
}

// Engine is the persistence facade: session directory, dataset
// chunker, and progressive restorer behind one API. Engine methods are
// safe for concurrent use except Restore, which callers must
// single-flight.
type Engine struct {
	directory *Directory
	chunker   *Chunker
	restorer  *Restorer
	limits    capability.Limits
	tunables  Tunables
	appVer    string
}

// NewEngine wires the service layer over the two storage tiers.
func NewEngine(cfg Config) (*Engine, error) {
	if cfg.Meta == nil || cfg.Blob == nil {
		return nil, domain.ErrMissingArgument.WithDetails("metadata and blob adapters are required")
	}

	limits := cfg.Limits
	if limits.Tier == "" {
		limits = capability.DetectLimits()
	}
	probe := cfg.Probe
	if probe == nil {
		probe = capability.NewRuntimeProbe(limits)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	tunables := cfg.Tunables.normalize()

	dir := NewDirectory(cfg.Meta, cfg.Blob, limits, logger, cfg.Metrics)
	return &Engine{
		directory: dir,
		chunker:   NewChunker(dir, cfg.Blob, limits, tunables, logger, cfg.Metrics),
		restorer:  NewRestorer(dir, cfg.Blob, limits, tunables, probe, logger, cfg.Metrics),
		limits:    limits,
		tunables:  tunables,
		appVer:    cfg.AppVersion,
	}, nil
}

// Limits returns the capacity profile the engine was sized with.
func (e *Engine) Limits() capability.Limits { return e.limits }

// Tunables returns the normalized tuning in effect.
func (e *Engine) Tunables() Tunables { return e.tunables }

// ============================================================================
// Session operations
// ============================================================================

// SaveSession creates or updates the active session from a dataset
// summary.
func (e *Engine) SaveSession(ctx context.Context, summary domain.SessionSummary) (*domain.Session, error) {
	return e.directory.CreateOrUpdate(ctx, &CreateOrUpdateRequest{
		Summary:    summary,
		AppVersion: e.appVer,
	})
}

// CreateSession mints a fresh session record without activating it.
// Archive import uses it to land a copy next to the working session.
func (e *Engine) CreateSession(ctx context.Context, summary domain.SessionSummary) (*domain.Session, error) {
	return e.directory.CreateSession(ctx, &CreateOrUpdateRequest{
		Summary:    summary,
		AppVersion: e.appVer,
	})
}

// GetSession retrieves a session record by ID.
func (e *Engine) GetSession(ctx context.Context, id string) (*domain.Session, error) {
	return e.directory.Get(ctx, id)
}

// ListSessions returns sessions most recently updated first.
func (e *Engine) ListSessions(ctx context.Context) ([]*domain.Session, error) {
	return e.directory.List(ctx)
}

// DeleteSession removes a session and all payloads it references.
func (e *Engine) DeleteSession(ctx context.Context, id string) error {
	return e.directory.Delete(ctx, id)
}

// ActiveSession resolves the active pointer.
func (e *Engine) ActiveSession(ctx context.Context) (*domain.Session, error) {
	return e.directory.ActiveSession(ctx)
}

// SetActiveSession points the active pointer at an existing session.
func (e *Engine) SetActiveSession(ctx context.Context, id string) error {
	return e.directory.SetActive(ctx, id)
}

// ClearActiveSession unsets the active pointer.
func (e *Engine) ClearActiveSession(ctx context.Context) error {
	return e.directory.ClearActive(ctx)
}

// EvictExcess enforces the session cap immediately and reports how many
// sessions were evicted.
func (e *Engine) EvictExcess(ctx context.Context) (int, error) {
	return e.directory.EvictExcess(ctx)
}

// ============================================================================
// Payload operations
// ============================================================================

// SaveDataset persists a session's dataset, chunking when it exceeds
// the capacity profile.
func (e *Engine) SaveDataset(ctx context.Context, req *SaveDatasetRequest) (*SaveDatasetResponse, error) {
	return e.chunker.SaveDataset(ctx, req)
}

// LoadDataset materializes a session's dataset without running a full
// restore. The skip list carries the indexes of unrecoverable chunks.
func (e *Engine) LoadDataset(ctx context.Context, id string) (*domain.Dataset, []int, error) {
	return e.restorer.LoadDataset(ctx, id)
}

// SaveFilters persists a session's filter state.
func (e *Engine) SaveFilters(ctx context.Context, id string, filters *domain.FilterState) (*domain.Session, error) {
	return e.directory.SaveFilters(ctx, id, filters)
}

// SaveCharts persists a session's chart configurations.
func (e *Engine) SaveCharts(ctx context.Context, id string, charts []domain.ChartConfig) (*domain.Session, error) {
	return e.directory.SaveCharts(ctx, id, charts)
}

// LoadFilters returns a session's filter state, nil when none saved.
func (e *Engine) LoadFilters(ctx context.Context, id string) (*domain.FilterState, error) {
	return e.directory.LoadFilters(ctx, id)
}

// LoadCharts returns a session's chart configurations, nil when none
// saved.
func (e *Engine) LoadCharts(ctx context.Context, id string) ([]domain.ChartConfig, error) {
	return e.directory.LoadCharts(ctx, id)
}

// ============================================================================
// Restore
// ============================================================================

// Restore runs a progressive restore of a session. Callers must ensure
// only one restore runs at a time.
func (e *Engine) Restore(ctx context.Context, req *RestoreRequest) (*RestoreResponse, error) {
	return e.restorer.Restore(ctx, req)
}
