package log

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/klauspost/compress/zstd"

	"civforge.ai/internal/sim/world/terrain/overlay"
)

func readEntries(t *testing.T, path string) []AuditEntry {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()
	dec, err := zstd.NewReader(f)
	if err != nil {
		t.Fatalf("zstd: %v", err)
	}
	defer dec.Close()

	var out []AuditEntry
	sc := bufio.NewScanner(dec)
	for sc.Scan() {
		var e AuditEntry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			t.Fatalf("line %q: %v", sc.Text(), err)
		}
		out = append(out, e)
	}
	if err := sc.Err(); err != nil {
		t.Fatalf("scan: %v", err)
	}
	return out
}

func TestOverlayAuditLogger(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2026, 3, 1, 10, 15, 0, 0, time.UTC)
	l := NewOverlayAuditLogger(dir)
	l.w.now = func() time.Time { return now }

	move := 2.0
	if err := l.SaveDelta(3, -4, overlay.Delta{MovementCostAdjustment: &move}); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := l.SaveDelta(3, -4, overlay.Delta{}); err != nil {
		t.Fatalf("delete: %v", err)
	}
	now = now.Add(time.Hour)
	if err := l.Reset(); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if err := l.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	first := readEntries(t, filepath.Join(dir, "audit", "overlay-2026-03-01-10.jsonl.zst"))
	if len(first) != 2 {
		t.Fatalf("expected 2 entries in first hour, got %d", len(first))
	}
	if first[0].Op != OpSet || first[0].X != 3 || first[0].Y != -4 || first[0].Delta == nil || *first[0].Delta.MovementCostAdjustment != 2 {
		t.Fatalf("unexpected set entry: %+v", first[0])
	}
	if first[1].Op != OpDelete || first[1].Delta != nil {
		t.Fatalf("unexpected delete entry: %+v", first[1])
	}

	second := readEntries(t, filepath.Join(dir, "audit", "overlay-2026-03-01-11.jsonl.zst"))
	if len(second) != 1 || second[0].Op != OpReset {
		t.Fatalf("unexpected rotated entries: %+v", second)
	}
}
