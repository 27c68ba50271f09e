package benchmark

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"runtime"
	"testing"
	"time"

	"github.com/tabvault/tabvault-go/internal/capability"
	"github.com/tabvault/tabvault-go/internal/core/domain"
	"github.com/tabvault/tabvault-go/internal/core/service"
	"github.com/tabvault/tabvault-go/internal/storage/memstore"
)

// RowCounts are the dataset sizes the scaling benchmarks sweep. The
// engines run on the high profile, whose row cap is 75,000, so the
// first two sizes store as single payloads and the last spills into
// ten chunks at the default chunk size.
var RowCounts = []int{1_000, 10_000, 100_000}

const benchColumns = 6

// newEngine builds an engine over in-memory tiers. Restore pacing is
// shrunk to a nanosecond so iterations measure work, not sleeps.
func newEngine(b *testing.B, mutate func(*service.Config)) *service.Engine {
	b.Helper()

	cfg := service.Config{
		Meta:   memstore.New(),
		Blob:   memstore.New(),
		Limits: capability.LimitsFor(capability.TierHigh),
		Probe:  capability.ProbeFunc(func() bool { return false }),
		Tunables: service.Tunables{
			RestoreDelay:    time.Nanosecond,
			RestoreMaxDelay: time.Nanosecond,
		},
		AppVersion: "bench",
		Logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	if mutate != nil {
		mutate(&cfg)
	}

	engine, err := service.NewEngine(cfg)
	if err != nil {
		b.Fatalf("NewEngine: %v", err)
	}
	return engine
}

// benchDataset builds a rows x benchColumns dataset with mixed cell
// types, roughly the shape of an imported spreadsheet.
func benchDataset(rows int) *domain.Dataset {
	headers := []string{"region", "product", "quantity", "unit_price", "total", "note"}
	data := make([][]any, rows)
	for r := range data {
		data[r] = []any{
			fmt.Sprintf("region-%d", r%50),
			fmt.Sprintf("product-%d", r%500),
			float64(r % 100),
			float64(r%9000) / 100,
			float64(r%100) * float64(r%9000) / 100,
			fmt.Sprintf("row %d", r),
		}
	}
	return &domain.Dataset{Headers: headers, Rows: data}
}

// savedSession saves a session with a dataset attached and returns it.
func savedSession(b *testing.B, engine *service.Engine, rows int) *domain.Session {
	b.Helper()
	ctx := context.Background()

	session, err := engine.SaveSession(ctx, domain.SessionSummary{
		FileName:    "bench.xlsx",
		SheetName:   "Sheet1",
		RowCount:    rows,
		ColumnCount: benchColumns,
	})
	if err != nil {
		b.Fatalf("SaveSession: %v", err)
	}
	_, err = engine.SaveDataset(ctx, &service.SaveDatasetRequest{
		SessionID: session.ID,
		Dataset:   benchDataset(rows),
	})
	if err != nil {
		b.Fatalf("SaveDataset: %v", err)
	}
	return session
}

// reportMemory attaches heap figures to the benchmark output.
func reportMemory(b *testing.B, prefix string) {
	var m runtime.MemStats
	runtime.GC()
	runtime.ReadMemStats(&m)
	b.ReportMetric(float64(m.Alloc)/(1024*1024), prefix+"_MB")
}

// rowLabel names a subbenchmark by dataset size.
func rowLabel(rows int) string {
	return fmt.Sprintf("rows_%d", rows)
}

// sizeLabel names a subbenchmark by byte size.
func sizeLabel(size int) string {
	switch {
	case size >= 1024*1024:
		return fmt.Sprintf("%dMB", size/(1024*1024))
	case size >= 1024:
		return fmt.Sprintf("%dKB", size/1024)
	default:
		return fmt.Sprintf("%dB", size)
	}
}
