package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"reflect"
	"testing"

	"github.com/tabvault/tabvault-go/internal/capability"
	"github.com/tabvault/tabvault-go/internal/core/domain"
	"github.com/tabvault/tabvault-go/internal/storage"
)

func TestDirectory_CreateOrUpdate(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	first, err := env.engine.SaveSession(ctx, domain.SessionSummary{FileName: "a.xlsx", RowCount: 10})
	if err != nil {
		t.Fatalf("SaveSession() error = %v", err)
	}
	if !domain.IsValidSessionID(first.ID) {
		t.Errorf("session ID %q is not valid", first.ID)
	}

	// A second save while the session is active updates in place.
	second, err := env.engine.SaveSession(ctx, domain.SessionSummary{FileName: "b.xlsx", RowCount: 20})
	if err != nil {
		t.Fatalf("SaveSession() error = %v", err)
	}
	if second.ID != first.ID {
		t.Errorf("second save minted session %s, want update of %s", second.ID, first.ID)
	}
	if second.Summary.FileName != "b.xlsx" || second.Summary.RowCount != 20 {
		t.Errorf("Summary = %+v, want replaced summary", second.Summary)
	}
	if second.UpdatedAt < first.UpdatedAt {
		t.Errorf("UpdatedAt = %d, want >= %d", second.UpdatedAt, first.UpdatedAt)
	}

	active, err := env.engine.ActiveSession(ctx)
	if err != nil {
		t.Fatalf("ActiveSession() error = %v", err)
	}
	if active.ID != first.ID {
		t.Errorf("active session = %s, want %s", active.ID, first.ID)
	}

	// With the pointer cleared, the next save mints a fresh session.
	if err := env.engine.ClearActiveSession(ctx); err != nil {
		t.Fatalf("ClearActiveSession() error = %v", err)
	}
	third, err := env.engine.SaveSession(ctx, domain.SessionSummary{FileName: "c.xlsx"})
	if err != nil {
		t.Fatalf("SaveSession() error = %v", err)
	}
	if third.ID == first.ID {
		t.Errorf("save after clear reused session %s, want a new one", first.ID)
	}
}

func TestDirectory_CreateSession_DoesNotActivate(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	working, err := env.engine.SaveSession(ctx, domain.SessionSummary{FileName: "working.xlsx"})
	if err != nil {
		t.Fatalf("SaveSession() error = %v", err)
	}

	imported, err := env.engine.CreateSession(ctx, domain.SessionSummary{FileName: "imported.xlsx", RowCount: 5})
	if err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}
	if imported.ID == working.ID {
		t.Fatalf("CreateSession reused session %s, want a fresh one", working.ID)
	}
	if imported.AppVersion != "test" {
		t.Errorf("AppVersion = %q, want test", imported.AppVersion)
	}

	// The working session stays active; the import only joins the index.
	active, err := env.engine.ActiveSession(ctx)
	if err != nil {
		t.Fatalf("ActiveSession() error = %v", err)
	}
	if active.ID != working.ID {
		t.Errorf("active session = %s, want %s", active.ID, working.ID)
	}

	sessions, err := env.engine.ListSessions(ctx)
	if err != nil {
		t.Fatalf("ListSessions() error = %v", err)
	}
	if got := sessionIDs(sessions); !reflect.DeepEqual(got, []string{imported.ID, working.ID}) {
		t.Errorf("ListSessions() = %v, want [%s %s]", got, imported.ID, working.ID)
	}
}

func TestDirectory_Get(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	if _, err := env.engine.GetSession(ctx, "tvss-00000000000000000000000000"); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Errorf("GetSession(unknown) error = %v, want ErrSessionNotFound", err)
	}
	if _, err := env.engine.GetSession(ctx, ""); !errors.Is(err, domain.ErrMissingArgument) {
		t.Errorf("GetSession(\"\") error = %v, want ErrMissingArgument", err)
	}
}

func TestDirectory_List(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	a := env.newSession(t, "a.xlsx")
	b := env.newSession(t, "b.xlsx")
	c := env.newSession(t, "c.xlsx")

	list, err := env.engine.ListSessions(ctx)
	if err != nil {
		t.Fatalf("ListSessions() error = %v", err)
	}
	wantOrder := []string{c.ID, b.ID, a.ID}
	if got := sessionIDs(list); !reflect.DeepEqual(got, wantOrder) {
		t.Errorf("ListSessions() order = %v, want %v", got, wantOrder)
	}

	// Touching a session moves it to the front.
	fs := &domain.FilterState{Filters: []domain.ColumnFilter{{Column: "x", Operator: "eq"}}}
	if _, err := env.engine.SaveFilters(ctx, a.ID, fs); err != nil {
		t.Fatalf("SaveFilters() error = %v", err)
	}
	list, err = env.engine.ListSessions(ctx)
	if err != nil {
		t.Fatalf("ListSessions() error = %v", err)
	}
	wantOrder = []string{a.ID, c.ID, b.ID}
	if got := sessionIDs(list); !reflect.DeepEqual(got, wantOrder) {
		t.Errorf("ListSessions() after bump = %v, want %v", got, wantOrder)
	}
}

func TestDirectory_List_PrunesDanglingEntries(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	a := env.newSession(t, "a.xlsx")
	b := env.newSession(t, "b.xlsx")

	// Drop a's record out from under the index.
	if err := env.meta.Remove(ctx, storage.SessionKey(a.ID)); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}

	list, err := env.engine.ListSessions(ctx)
	if err != nil {
		t.Fatalf("ListSessions() error = %v", err)
	}
	if got := sessionIDs(list); !reflect.DeepEqual(got, []string{b.ID}) {
		t.Errorf("ListSessions() = %v, want only %s", got, b.ID)
	}

	// The dangling entry is gone, not just hidden.
	list, err = env.engine.ListSessions(ctx)
	if err != nil {
		t.Fatalf("ListSessions() error = %v", err)
	}
	if len(list) != 1 {
		t.Errorf("ListSessions() after prune = %d entries, want 1", len(list))
	}
}

func TestDirectory_Delete(t *testing.T) {
	t.Run("missing session", func(t *testing.T) {
		env := newTestEnv(t, nil)
		err := env.engine.DeleteSession(context.Background(), "tvss-00000000000000000000000000")
		if !errors.Is(err, domain.ErrSessionNotFound) {
			t.Errorf("DeleteSession(unknown) error = %v, want ErrSessionNotFound", err)
		}
	})

	t.Run("removes record, blobs, index entry, active pointer", func(t *testing.T) {
		env := newTestEnv(t, nil)
		ctx := context.Background()

		session, err := env.engine.SaveSession(ctx, domain.SessionSummary{FileName: "full.xlsx"})
		if err != nil {
			t.Fatalf("SaveSession() error = %v", err)
		}
		if _, err := env.engine.SaveDataset(ctx, &SaveDatasetRequest{SessionID: session.ID, Dataset: makeDataset(5, 3)}); err != nil {
			t.Fatalf("SaveDataset() error = %v", err)
		}
		fs := &domain.FilterState{Filters: []domain.ColumnFilter{{Column: "col0", Operator: "eq"}}}
		if _, err := env.engine.SaveFilters(ctx, session.ID, fs); err != nil {
			t.Fatalf("SaveFilters() error = %v", err)
		}
		if _, err := env.engine.SaveCharts(ctx, session.ID, []domain.ChartConfig{{ID: "c1", Type: "bar"}}); err != nil {
			t.Fatalf("SaveCharts() error = %v", err)
		}

		if got := countKeys(t, env.blob, ""); got != 3 {
			t.Fatalf("blob keys before delete = %d, want 3", got)
		}

		if err := env.engine.DeleteSession(ctx, session.ID); err != nil {
			t.Fatalf("DeleteSession() error = %v", err)
		}

		if _, err := env.engine.GetSession(ctx, session.ID); !errors.Is(err, domain.ErrSessionNotFound) {
			t.Errorf("GetSession() after delete error = %v, want ErrSessionNotFound", err)
		}
		if got := countKeys(t, env.blob, ""); got != 0 {
			t.Errorf("blob keys after delete = %d, want 0", got)
		}
		if _, err := env.engine.ActiveSession(ctx); !errors.Is(err, domain.ErrNoActiveSession) {
			t.Errorf("ActiveSession() after delete error = %v, want ErrNoActiveSession", err)
		}
		// Only the (now empty) index remains in the metadata tier.
		if got := countKeys(t, env.meta, ""); got != 1 {
			t.Errorf("meta keys after delete = %d, want 1", got)
		}
	})

	t.Run("chunked session drops every chunk", func(t *testing.T) {
		env := newTestEnv(t, func(cfg *Config) {
			cfg.Limits.MaxRowsPersisted = 100
			cfg.Tunables.ChunkSize = 40
		})
		ctx := context.Background()

		session, err := env.engine.SaveSession(ctx, domain.SessionSummary{FileName: "big.xlsx"})
		if err != nil {
			t.Fatalf("SaveSession() error = %v", err)
		}
		resp, err := env.engine.SaveDataset(ctx, &SaveDatasetRequest{SessionID: session.ID, Dataset: makeDataset(250, 2)})
		if err != nil {
			t.Fatalf("SaveDataset() error = %v", err)
		}
		if !resp.Chunked || resp.ChunkCount != 7 {
			t.Fatalf("SaveDataset() = chunked %v count %d, want chunked with 7 chunks", resp.Chunked, resp.ChunkCount)
		}
		if got := countKeys(t, env.blob, ""); got != 8 {
			t.Fatalf("blob keys before delete = %d, want 8 (7 chunks + index)", got)
		}

		if err := env.engine.DeleteSession(ctx, session.ID); err != nil {
			t.Fatalf("DeleteSession() error = %v", err)
		}
		if got := countKeys(t, env.blob, ""); got != 0 {
			t.Errorf("blob keys after delete = %d, want 0", got)
		}
	})

	t.Run("corrupt record still scrubbed", func(t *testing.T) {
		env := newTestEnv(t, nil)
		ctx := context.Background()

		session := env.newSession(t, "corrupt.xlsx")
		if err := env.meta.Set(ctx, storage.SessionKey(session.ID), []byte("not json")); err != nil {
			t.Fatalf("Set() error = %v", err)
		}

		if err := env.engine.DeleteSession(ctx, session.ID); err != nil {
			t.Fatalf("DeleteSession(corrupt) error = %v", err)
		}
		if _, err := env.engine.GetSession(ctx, session.ID); !errors.Is(err, domain.ErrSessionNotFound) {
			t.Errorf("GetSession() after delete error = %v, want ErrSessionNotFound", err)
		}
		list, err := env.engine.ListSessions(ctx)
		if err != nil {
			t.Fatalf("ListSessions() error = %v", err)
		}
		if len(list) != 0 {
			t.Errorf("ListSessions() = %d entries, want 0", len(list))
		}
	})
}

func TestDirectory_Eviction(t *testing.T) {
	env := newTestEnv(t, nil) // medium profile: MaxSessions = 3
	ctx := context.Background()

	ids := make([]string, 5)
	for i := range ids {
		session, err := env.engine.SaveSession(ctx, domain.SessionSummary{FileName: fmt.Sprintf("f%d.xlsx", i)})
		if err != nil {
			t.Fatalf("SaveSession(%d) error = %v", i, err)
		}
		if _, err := env.engine.SaveDataset(ctx, &SaveDatasetRequest{SessionID: session.ID, Dataset: makeDataset(3, 2)}); err != nil {
			t.Fatalf("SaveDataset(%d) error = %v", i, err)
		}
		if err := env.engine.ClearActiveSession(ctx); err != nil {
			t.Fatalf("ClearActiveSession(%d) error = %v", i, err)
		}
		ids[i] = session.ID
	}

	list, err := env.engine.ListSessions(ctx)
	if err != nil {
		t.Fatalf("ListSessions() error = %v", err)
	}
	want := []string{ids[4], ids[3], ids[2]}
	if got := sessionIDs(list); !reflect.DeepEqual(got, want) {
		t.Errorf("survivors = %v, want %v", got, want)
	}

	for _, id := range ids[:2] {
		if _, err := env.engine.GetSession(ctx, id); !errors.Is(err, domain.ErrSessionNotFound) {
			t.Errorf("GetSession(%s) error = %v, want ErrSessionNotFound", id, err)
		}
	}

	// Evicted sessions leave no blobs behind.
	if got := countKeys(t, env.blob, ""); got != 3 {
		t.Errorf("blob keys = %d, want 3 (one dataset per survivor)", got)
	}
}

func TestDirectory_EvictExcess(t *testing.T) {
	env := newTestEnv(t, nil) // medium profile: MaxSessions = 3
	ctx := context.Background()

	ids := make([]string, 3)
	for i := range ids {
		session, err := env.engine.SaveSession(ctx, domain.SessionSummary{FileName: fmt.Sprintf("f%d.xlsx", i)})
		if err != nil {
			t.Fatalf("SaveSession(%d) error = %v", i, err)
		}
		if _, err := env.engine.SaveDataset(ctx, &SaveDatasetRequest{SessionID: session.ID, Dataset: makeDataset(3, 2)}); err != nil {
			t.Fatalf("SaveDataset(%d) error = %v", i, err)
		}
		if err := env.engine.ClearActiveSession(ctx); err != nil {
			t.Fatalf("ClearActiveSession(%d) error = %v", i, err)
		}
		ids[i] = session.ID
	}

	// At the cap nothing moves.
	n, err := env.engine.EvictExcess(ctx)
	if err != nil {
		t.Fatalf("EvictExcess() error = %v", err)
	}
	if n != 0 {
		t.Errorf("EvictExcess() under cap = %d, want 0", n)
	}

	// Reopen the same stores under a tighter cap, as a restart after a
	// profile downgrade would. Saves have not run yet, so the index
	// still holds three sessions.
	limits := capability.LimitsFor(capability.TierMedium)
	limits.MaxSessions = 1
	tight, err := NewEngine(Config{
		Meta:       env.meta,
		Blob:       env.blob,
		Limits:     limits,
		Probe:      capability.ProbeFunc(func() bool { return false }),
		AppVersion: "test",
		Logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if err != nil {
		t.Fatalf("NewEngine() error = %v", err)
	}

	n, err = tight.EvictExcess(ctx)
	if err != nil {
		t.Fatalf("EvictExcess() error = %v", err)
	}
	if n != 2 {
		t.Errorf("EvictExcess() = %d, want 2", n)
	}

	list, err := tight.ListSessions(ctx)
	if err != nil {
		t.Fatalf("ListSessions() error = %v", err)
	}
	if got := sessionIDs(list); !reflect.DeepEqual(got, []string{ids[2]}) {
		t.Errorf("survivors = %v, want [%s]", got, ids[2])
	}
	if got := countKeys(t, env.blob, ""); got != 1 {
		t.Errorf("blob keys = %d, want 1 (survivor's dataset)", got)
	}
}

func TestDirectory_ActiveLifecycle(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	if _, err := env.engine.ActiveSession(ctx); !errors.Is(err, domain.ErrNoActiveSession) {
		t.Errorf("ActiveSession() on empty store error = %v, want ErrNoActiveSession", err)
	}
	if err := env.engine.SetActiveSession(ctx, "tvss-00000000000000000000000000"); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Errorf("SetActiveSession(unknown) error = %v, want ErrSessionNotFound", err)
	}

	session := env.newSession(t, "a.xlsx")
	if err := env.engine.SetActiveSession(ctx, session.ID); err != nil {
		t.Fatalf("SetActiveSession() error = %v", err)
	}
	active, err := env.engine.ActiveSession(ctx)
	if err != nil {
		t.Fatalf("ActiveSession() error = %v", err)
	}
	if active.ID != session.ID {
		t.Errorf("ActiveSession() = %s, want %s", active.ID, session.ID)
	}

	// A pointer to a vanished record is cleared, not reported.
	if err := env.meta.Remove(ctx, storage.SessionKey(session.ID)); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if _, err := env.engine.ActiveSession(ctx); !errors.Is(err, domain.ErrNoActiveSession) {
		t.Errorf("ActiveSession(dangling) error = %v, want ErrNoActiveSession", err)
	}
	if _, err := env.meta.Get(ctx, storage.KeyActiveSession); !errors.Is(err, storage.ErrKeyNotFound) {
		t.Errorf("active pointer still stored after dangling resolve, err = %v", err)
	}
}

func TestDirectory_FiltersRoundTrip(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	session := env.newSession(t, "f.xlsx")

	got, err := env.engine.LoadFilters(ctx, session.ID)
	if err != nil || got != nil {
		t.Fatalf("LoadFilters(none saved) = %v, %v, want nil, nil", got, err)
	}

	fs := &domain.FilterState{Filters: []domain.ColumnFilter{
		{Column: "col0", Operator: "eq", Values: []any{"x"}, Active: true},
		{Column: "col1", Operator: "gt", Values: []any{"10"}},
	}}
	saved, err := env.engine.SaveFilters(ctx, session.ID, fs)
	if err != nil {
		t.Fatalf("SaveFilters() error = %v", err)
	}
	if saved.FiltersKey == "" {
		t.Fatal("FiltersKey is empty after save")
	}

	got, err = env.engine.LoadFilters(ctx, session.ID)
	if err != nil {
		t.Fatalf("LoadFilters() error = %v", err)
	}
	if !reflect.DeepEqual(got, fs) {
		t.Errorf("LoadFilters() = %+v, want %+v", got, fs)
	}

	// A re-save reuses the blob key.
	resaved, err := env.engine.SaveFilters(ctx, session.ID, &domain.FilterState{})
	if err != nil {
		t.Fatalf("SaveFilters() re-save error = %v", err)
	}
	if resaved.FiltersKey != saved.FiltersKey {
		t.Errorf("re-save moved filters from %s to %s, want same key", saved.FiltersKey, resaved.FiltersKey)
	}
	if got := countKeys(t, env.blob, string(storage.BlobFilters)+":"); got != 1 {
		t.Errorf("filters blobs = %d, want 1", got)
	}

	// A missing blob degrades to no filters.
	if err := env.blob.Remove(ctx, saved.FiltersKey); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	got, err = env.engine.LoadFilters(ctx, session.ID)
	if err != nil || got != nil {
		t.Errorf("LoadFilters(blob gone) = %v, %v, want nil, nil", got, err)
	}
}

func TestDirectory_ChartsRoundTrip(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	session := env.newSession(t, "c.xlsx")

	got, err := env.engine.LoadCharts(ctx, session.ID)
	if err != nil || got != nil {
		t.Fatalf("LoadCharts(none saved) = %v, %v, want nil, nil", got, err)
	}

	charts := []domain.ChartConfig{
		{ID: "c1", Type: "bar", Title: "by region", XAxis: "col0", YAxis: "col1", Aggregation: "sum"},
		{ID: "c2", Type: "line", XAxis: "col0", YAxis: "col2"},
	}
	saved, err := env.engine.SaveCharts(ctx, session.ID, charts)
	if err != nil {
		t.Fatalf("SaveCharts() error = %v", err)
	}

	got, err = env.engine.LoadCharts(ctx, session.ID)
	if err != nil {
		t.Fatalf("LoadCharts() error = %v", err)
	}
	if !reflect.DeepEqual(got, charts) {
		t.Errorf("LoadCharts() = %+v, want %+v", got, charts)
	}

	resaved, err := env.engine.SaveCharts(ctx, session.ID, charts[:1])
	if err != nil {
		t.Fatalf("SaveCharts() re-save error = %v", err)
	}
	if resaved.ChartsKey != saved.ChartsKey {
		t.Errorf("re-save moved charts from %s to %s, want same key", saved.ChartsKey, resaved.ChartsKey)
	}
}

func TestDirectory_SaveFilters_Validation(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	if _, err := env.engine.SaveFilters(ctx, "tvss-00000000000000000000000000", &domain.FilterState{}); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Errorf("SaveFilters(unknown session) error = %v, want ErrSessionNotFound", err)
	}

	session := env.newSession(t, "v.xlsx")
	if _, err := env.engine.SaveFilters(ctx, session.ID, nil); !errors.Is(err, domain.ErrMissingArgument) {
		t.Errorf("SaveFilters(nil) error = %v, want ErrMissingArgument", err)
	}
	if _, err := env.engine.SaveCharts(ctx, session.ID, nil); !errors.Is(err, domain.ErrMissingArgument) {
		t.Errorf("SaveCharts(nil) error = %v, want ErrMissingArgument", err)
	}
}

func sessionIDs(sessions []*domain.Session) []string {
	ids := make([]string, len(sessions))
	for i, s := range sessions {
		ids[i] = s.ID
	}
	return ids
}
