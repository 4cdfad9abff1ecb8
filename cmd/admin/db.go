package main

import (
	"database/sql"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"

	"civforge.ai/internal/sim/world/terrain/gen"
)

type overlayRow struct {
	X         int             `json:"x"`
	Y         int             `json:"y"`
	Delta     json.RawMessage `json:"delta"`
	UpdatedAt string          `json:"updated_at"`
}

// overlayCmd lists persisted overlay deltas straight from the sqlite index.
func overlayCmd(args []string) {
	fs := flag.NewFlagSet("overlay", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	dbPath := fs.String("db", "", "sqlite db path (optional)")
	limit := fs.Int("limit", 50, "result limit")
	cx := fs.Int("cx", 0, "chunk x filter (with -chunk)")
	cy := fs.Int("cy", 0, "chunk y filter (with -chunk)")
	byChunk := fs.Bool("chunk", false, "only deltas inside chunk (cx,cy)")
	_ = fs.Parse(args)

	path := strings.TrimSpace(*dbPath)
	if path == "" {
		path = filepath.Join(*dataDir, "index", "overlay.sqlite")
	}
	if _, err := os.Stat(path); err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}
	defer db.Close()

	var seed string
	var size int
	if err := db.QueryRow(`SELECT seed, size FROM world WHERE id = 1`).Scan(&seed, &size); err == nil {
		fmt.Fprintf(os.Stderr, "world seed=%q size=%d\n", seed, size)
	}

	rows, err := queryOverlay(db, *byChunk, *cx, *cy, *limit)
	if err != nil {
		fmt.Fprintln(os.Stderr, "query:", err)
		os.Exit(1)
	}
	enc := json.NewEncoder(os.Stdout)
	for _, r := range rows {
		_ = enc.Encode(r)
	}
}

func queryOverlay(db *sql.DB, byChunk bool, cx, cy, limit int) ([]overlayRow, error) {
	if limit <= 0 {
		limit = 50
	}
	q := `SELECT x, y, delta_json, updated_at FROM overlay_deltas`
	var args []any
	if byChunk {
		minX, minY := cx*gen.ChunkSize, cy*gen.ChunkSize
		q += ` WHERE x >= ? AND x < ? AND y >= ? AND y < ?`
		args = append(args, minX, minX+gen.ChunkSize, minY, minY+gen.ChunkSize)
	}
	q += ` ORDER BY y, x LIMIT ?`
	args = append(args, limit)

	rows, err := db.Query(q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []overlayRow
	for rows.Next() {
		var (
			r   overlayRow
			raw string
		)
		if err := rows.Scan(&r.X, &r.Y, &raw, &r.UpdatedAt); err != nil {
			return nil, err
		}
		r.Delta = json.RawMessage(raw)
		out = append(out, r)
	}
	return out, rows.Err()
}
