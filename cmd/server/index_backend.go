package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"civforge.ai/internal/persistence/indexdb"
	"civforge.ai/internal/sim/world/terrain/overlay"
)

// openOverlayIndex picks the persistence backend for overlay deltas. Generated
// terrain is never stored, so every backend is optional.
func openOverlayIndex(dataDir string, disableDB bool) (indexdb.OverlayIndex, error) {
	if disableDB {
		return indexdb.Nop{}, nil
	}

	backend := strings.ToLower(strings.TrimSpace(os.Getenv("CF_INDEX_BACKEND")))
	if backend == "" {
		backend = "sqlite"
	}

	switch backend {
	case "none", "off", "disabled":
		return indexdb.Nop{}, nil
	case "sqlite":
		dbPath := filepath.Join(dataDir, "index", "overlay.sqlite")
		return indexdb.OpenSQLite(dbPath)
	case "postgres":
		dsn := strings.TrimSpace(os.Getenv("CF_INDEX_PG_DSN"))
		if dsn == "" {
			return nil, fmt.Errorf("CF_INDEX_BACKEND=postgres but CF_INDEX_PG_DSN is empty")
		}
		return indexdb.OpenPostgres(dsn)
	default:
		return nil, fmt.Errorf("unsupported CF_INDEX_BACKEND: %s", backend)
	}
}

// restoreOverlay reloads persisted deltas into s. Deltas recorded for a
// different (seed, size) would land on unrelated terrain, so a mismatch is an
// error unless reset is set, in which case the stored deltas are dropped.
func restoreOverlay(ctx context.Context, idx indexdb.OverlayIndex, s *overlay.Store, seed string, size int, reset bool, logger *log.Logger) (int, error) {
	meta, ok, err := idx.LoadWorld(ctx)
	if err != nil {
		return 0, fmt.Errorf("load world meta: %w", err)
	}
	if reset || (ok && (meta.Seed != seed || meta.Size != size)) {
		if !reset {
			return 0, fmt.Errorf("index was recorded for seed=%q size=%d, not seed=%q size=%d (use -reset_overlay to discard it)",
				meta.Seed, meta.Size, seed, size)
		}
		if err := idx.Reset(); err != nil {
			return 0, fmt.Errorf("reset overlay index: %w", err)
		}
		logger.Printf("overlay index reset")
	}
	if err := idx.RecordWorld(seed, size); err != nil {
		return 0, fmt.Errorf("record world: %w", err)
	}
	if reset {
		return 0, nil
	}
	return indexdb.Restore(ctx, idx, s)
}

func envBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}
