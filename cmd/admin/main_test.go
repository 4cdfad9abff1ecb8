package main

import (
	"context"
	"database/sql"
	"path/filepath"
	"strings"
	"testing"

	"civforge.ai/internal/persistence/indexdb"
	"civforge.ai/internal/sim/world/terrain"
	"civforge.ai/internal/sim/world/terrain/gen"
	"civforge.ai/internal/sim/world/terrain/overlay"
)

func TestSummarize(t *testing.T) {
	g := terrain.New(terrain.Config{Seed: "admin-test"})
	for _, lod := range []gen.LOD{gen.LOD1, gen.LOD2} {
		ch, err := g.GenerateChunk(2, -3, lod)
		if err != nil {
			t.Fatalf("generate: %v", err)
		}
		out, err := summarize(ch, g.Limits())
		if err != nil {
			t.Fatalf("summarize: %v", err)
		}
		if !strings.HasPrefix(out, "chunk (2,-3)") || !strings.Contains(out, "digest  ") || !strings.Contains(out, "zstd    ") {
			t.Fatalf("unexpected summary:\n%s", out)
		}
		if strings.Contains(out, "warning") {
			t.Fatalf("default limits must fit lod %d:\n%s", lod, out)
		}
	}
}

func TestQueryOverlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "overlay.sqlite")
	idx, err := indexdb.OpenSQLite(path)
	if err != nil {
		t.Fatalf("open index: %v", err)
	}
	_ = idx.SaveDelta(5, 5, overlay.Delta{Structures: []string{"a"}})
	_ = idx.SaveDelta(-1, -1, overlay.Delta{Structures: []string{"b"}})
	_ = idx.SaveDelta(200, 5, overlay.Delta{Structures: []string{"c"}})
	if err := idx.Flush(context.Background()); err != nil {
		t.Fatalf("flush: %v", err)
	}
	if err := idx.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()

	all, err := queryOverlay(db, false, 0, 0, 0)
	if err != nil || len(all) != 3 {
		t.Fatalf("all: n=%d err=%v", len(all), err)
	}
	neg, err := queryOverlay(db, true, -1, -1, 10)
	if err != nil || len(neg) != 1 || neg[0].X != -1 {
		t.Fatalf("chunk (-1,-1): %+v err=%v", neg, err)
	}
	if !strings.Contains(string(neg[0].Delta), `"b"`) {
		t.Fatalf("unexpected delta json: %s", neg[0].Delta)
	}
	one, err := queryOverlay(db, false, 0, 0, 1)
	if err != nil || len(one) != 1 {
		t.Fatalf("limit: n=%d err=%v", len(one), err)
	}
}
