package indexdb

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"civforge.ai/internal/sim/world/terrain/fields"
	"civforge.ai/internal/sim/world/terrain/overlay"
)

func sampleDelta() overlay.Delta {
	forest := fields.BiomeForest
	move := 1.5
	return overlay.Delta{
		BiomeOverride:          &forest,
		MovementCostAdjustment: &move,
		ResourceDepletion:      map[fields.Resource]float64{fields.ResourceWood: 0.25},
		Structures:             []string{"road"},
	}
}

func exerciseIndex(t *testing.T, idx OverlayIndex, flush func()) {
	t.Helper()
	ctx := context.Background()

	if err := idx.RecordWorld("seed-a", 2048); err != nil {
		t.Fatalf("record world: %v", err)
	}
	if err := idx.SaveDelta(10, -3, sampleDelta()); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := idx.SaveDelta(-5, -3, overlay.Delta{Structures: []string{"wall"}}); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := idx.SaveDelta(1, 1, overlay.Delta{Structures: []string{"hut"}}); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := idx.DeleteDelta(1, 1); err != nil {
		t.Fatalf("delete: %v", err)
	}
	flush()

	meta, ok, err := idx.LoadWorld(ctx)
	if err != nil || !ok {
		t.Fatalf("load world ok=%v err=%v", ok, err)
	}
	if meta.Seed != "seed-a" || meta.Size != 2048 {
		t.Fatalf("unexpected world meta: %+v", meta)
	}

	entries, err := idx.LoadDeltas(ctx)
	if err != nil {
		t.Fatalf("load deltas: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 deltas, got %d", len(entries))
	}
	// Ordered by y then x.
	if entries[0].X != -5 || entries[1].X != 10 {
		t.Fatalf("unexpected order: %+v", entries)
	}
	d := entries[1].Delta
	if d.BiomeOverride == nil || *d.BiomeOverride != fields.BiomeForest {
		t.Fatalf("biome override lost: %+v", d)
	}
	if d.MovementCostAdjustment == nil || *d.MovementCostAdjustment != 1.5 {
		t.Fatalf("movement adjustment lost: %+v", d)
	}
	if d.ResourceDepletion[fields.ResourceWood] != 0.25 {
		t.Fatalf("depletion lost: %+v", d)
	}

	s := overlay.NewStore()
	n, err := Restore(ctx, idx, s)
	if err != nil || n != 2 {
		t.Fatalf("restore n=%d err=%v", n, err)
	}
	if _, ok := s.GetDelta(-5, -3); !ok {
		t.Fatalf("expected restored delta at (-5,-3)")
	}

	if err := idx.Reset(); err != nil {
		t.Fatalf("reset: %v", err)
	}
	flush()
	entries, err = idx.LoadDeltas(ctx)
	if err != nil || len(entries) != 0 {
		t.Fatalf("expected no deltas after reset, got %d err=%v", len(entries), err)
	}
	if _, ok, _ := idx.LoadWorld(ctx); !ok {
		t.Fatalf("reset must keep the world row")
	}
}

func TestSQLiteIndex_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "index.sqlite")
	idx, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer idx.Close()

	exerciseIndex(t, idx, func() {
		if err := idx.Flush(context.Background()); err != nil {
			t.Fatalf("flush: %v", err)
		}
	})
	if st := idx.Stats(); st.DropTotal != 0 || st.ErrorTotal != 0 {
		t.Fatalf("unexpected stats: %+v", st)
	}
}

func TestSQLiteIndex_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.sqlite")
	idx, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := idx.SaveDelta(7, 8, sampleDelta()); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := idx.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := idx.SaveDelta(0, 0, sampleDelta()); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed after close, got %v", err)
	}

	idx, err = OpenSQLite(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer idx.Close()
	entries, err := idx.LoadDeltas(context.Background())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(entries) != 1 || entries[0].X != 7 || entries[0].Y != 8 {
		t.Fatalf("unexpected entries after reopen: %+v", entries)
	}
	if _, ok, _ := idx.LoadWorld(context.Background()); ok {
		t.Fatalf("world row was never recorded")
	}
}

func TestSQLiteIndex_EmptyDeltaDeletes(t *testing.T) {
	idx, err := OpenSQLite(filepath.Join(t.TempDir(), "index.sqlite"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer idx.Close()
	_ = idx.SaveDelta(1, 2, sampleDelta())
	_ = idx.SaveDelta(1, 2, overlay.Delta{})
	entries, err := idx.LoadDeltas(context.Background())
	if err != nil || len(entries) != 0 {
		t.Fatalf("expected delta removed, got %+v err=%v", entries, err)
	}
}

func TestOpenSQLite_EmptyPath(t *testing.T) {
	if _, err := OpenSQLite(""); err == nil {
		t.Fatalf("expected error for empty path")
	}
}

func TestPostgresIndex_RoundTrip(t *testing.T) {
	dsn := os.Getenv("CF_INDEX_PG_DSN")
	if dsn == "" {
		t.Skip("CF_INDEX_PG_DSN is required for integration test")
	}
	idx, err := OpenPostgres(dsn)
	if err != nil {
		t.Fatalf("open postgres: %v", err)
	}
	defer idx.Close()
	if err := idx.Reset(); err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	exerciseIndex(t, idx, func() {})
}

func TestNop(t *testing.T) {
	var idx OverlayIndex = Nop{}
	if err := idx.SaveDelta(1, 1, sampleDelta()); err != nil {
		t.Fatalf("nop save: %v", err)
	}
	n, err := Restore(context.Background(), idx, overlay.NewStore())
	if err != nil || n != 0 {
		t.Fatalf("nop restore n=%d err=%v", n, err)
	}
}
