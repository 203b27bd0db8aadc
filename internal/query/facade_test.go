package query

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/jmaddaus/cookiewatch/internal/model"
	"github.com/jmaddaus/cookiewatch/internal/store"
)

// downStore fails every call with ErrUnavailable. Embedding the interface
// keeps the fake small; only the methods the facade calls are implemented.
type downStore struct {
	store.Store
}

func (downStore) ListClaims(ctx context.Context, filter store.ClaimFilter) ([]*model.Claim, error) {
	return nil, fmt.Errorf("%w: connection refused", store.ErrUnavailable)
}

func (downStore) ListShameEntries(ctx context.Context) ([]*model.ShameEntry, error) {
	return nil, fmt.Errorf("%w: connection refused", store.ErrUnavailable)
}

func (downStore) RecentActivity(ctx context.Context, limit int) ([]*model.Activity, error) {
	return nil, fmt.Errorf("%w: connection refused", store.ErrUnavailable)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestFacade(t *testing.T) (*Facade, *store.SQLiteStore) {
	t.Helper()
	st, err := store.NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return New(st, testLogger()), st
}

func TestClaimsDegradesWhenStoreDown(t *testing.T) {
	f := New(downStore{}, testLogger())

	set, err := f.Claims(context.Background(), store.ClaimFilter{})
	if err != nil {
		t.Fatalf("expected degraded result, got error: %v", err)
	}
	if !set.Degraded {
		t.Error("expected Degraded flag")
	}
	if len(set.Claims) != 0 {
		t.Errorf("expected empty claims, got %d", len(set.Claims))
	}
}

func TestBoardDegradesWhenStoreDown(t *testing.T) {
	f := New(downStore{}, testLogger())

	for name, fn := range map[string]func(context.Context) (*BoardSet, error){
		"Board":          f.Board,
		"TopPerformers":  f.TopPerformers,
		"WorstOffenders": f.WorstOffenders,
	} {
		set, err := fn(context.Background())
		if err != nil {
			t.Fatalf("%s: expected degraded result, got error: %v", name, err)
		}
		if !set.Degraded || len(set.Entries) != 0 {
			t.Errorf("%s: expected empty degraded set, got %+v", name, set)
		}
	}
}

func TestRecentActivityDegradesWhenStoreDown(t *testing.T) {
	f := New(downStore{}, testLogger())
	set, err := f.RecentActivity(context.Background(), 10)
	if err != nil {
		t.Fatalf("expected degraded result, got error: %v", err)
	}
	if !set.Degraded {
		t.Error("expected Degraded flag")
	}
}

func seedOutcomes(t *testing.T, st *store.SQLiteStore, username string, completed, abandoned int) {
	t.Helper()
	ctx := context.Background()
	now := time.Now()
	for i := 0; i < completed; i++ {
		if _, err := st.RecordOutcome(ctx, username, model.OutcomeCompleted, now); err != nil {
			t.Fatalf("RecordOutcome: %v", err)
		}
	}
	for i := 0; i < abandoned; i++ {
		if _, err := st.RecordOutcome(ctx, username, model.OutcomeAbandoned, now); err != nil {
			t.Fatalf("RecordOutcome: %v", err)
		}
	}
}

func TestTopPerformers(t *testing.T) {
	f, st := newTestFacade(t)
	ctx := context.Background()

	seedOutcomes(t, st, "ace", 5, 0)       // 100
	seedOutcomes(t, st, "decent", 3, 1)    // 75
	seedOutcomes(t, st, "neverdone", 0, 2) // 0, no completions

	set, err := f.TopPerformers(ctx)
	if err != nil {
		t.Fatalf("TopPerformers: %v", err)
	}
	if len(set.Entries) != 2 {
		t.Fatalf("expected 2 performers, got %d", len(set.Entries))
	}
	if set.Entries[0].Username != "ace" || set.Entries[1].Username != "decent" {
		t.Errorf("unexpected order: %s, %s", set.Entries[0].Username, set.Entries[1].Username)
	}
}

func TestTopPerformersCap(t *testing.T) {
	f, st := newTestFacade(t)

	for i := 0; i < boardCap+3; i++ {
		seedOutcomes(t, st, fmt.Sprintf("user%d", i), 1, 0)
	}

	set, err := f.TopPerformers(context.Background())
	if err != nil {
		t.Fatalf("TopPerformers: %v", err)
	}
	if len(set.Entries) != boardCap {
		t.Errorf("expected cap of %d, got %d", boardCap, len(set.Entries))
	}
}

func TestWorstOffenders(t *testing.T) {
	f, st := newTestFacade(t)
	ctx := context.Background()

	seedOutcomes(t, st, "serial", 0, 4)  // 0, 4 abandoned
	seedOutcomes(t, st, "mixed", 2, 2)   // 50
	seedOutcomes(t, st, "oneslip", 3, 1) // below the 2-abandon threshold

	set, err := f.WorstOffenders(ctx)
	if err != nil {
		t.Fatalf("WorstOffenders: %v", err)
	}
	if len(set.Entries) != 2 {
		t.Fatalf("expected 2 offenders, got %d", len(set.Entries))
	}
	// Worst score first.
	if set.Entries[0].Username != "serial" || set.Entries[1].Username != "mixed" {
		t.Errorf("unexpected order: %s, %s", set.Entries[0].Username, set.Entries[1].Username)
	}
}

func TestBoardOrdering(t *testing.T) {
	f, st := newTestFacade(t)

	seedOutcomes(t, st, "good", 4, 0)
	seedOutcomes(t, st, "bad", 0, 4)
	seedOutcomes(t, st, "mid", 1, 1)

	set, err := f.Board(context.Background())
	if err != nil {
		t.Fatalf("Board: %v", err)
	}
	if len(set.Entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(set.Entries))
	}
	want := []string{"good", "mid", "bad"}
	for i, username := range want {
		if set.Entries[i].Username != username {
			t.Errorf("position %d: expected %s, got %s", i, username, set.Entries[i].Username)
		}
	}
}
