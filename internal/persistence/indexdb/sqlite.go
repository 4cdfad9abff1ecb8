package indexdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"civforge.ai/internal/sim/world/terrain/overlay"
)

var ErrQueueFull = errors.New("index queue full")

// SQLiteIndex funnels every statement through one writer goroutine. Writes
// are batched into transactions; reads wait for pending writes to commit.
type SQLiteIndex struct {
	db *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool

	dropTotal  atomic.Uint64
	errorTotal atomic.Uint64
}

type Stats struct {
	QueueDepth    int    `json:"queue_depth"`
	QueueCapacity int    `json:"queue_capacity"`
	DropTotal     uint64 `json:"drop_total"`
	ErrorTotal    uint64 `json:"error_total"`
}

type reqKind int

const (
	reqWorld reqKind = iota + 1
	reqSave
	reqDelete
	reqReset
	reqRead
)

type req struct {
	kind reqKind

	x, y  int
	delta string
	seed  string
	size  int
	at    time.Time

	read func(*sql.DB) error
	done chan error
}

const (
	queueCapacity = 65536
	commitEvery   = 2000
	commitMaxWait = 2 * time.Second
)

func OpenSQLite(path string) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteIndex{
		db: db,
		ch: make(chan req, queueCapacity),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS world (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			seed TEXT NOT NULL,
			size INTEGER NOT NULL,
			recorded_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS overlay_deltas (
			x INTEGER NOT NULL,
			y INTEGER NOT NULL,
			delta_json TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			PRIMARY KEY (x, y)
		);`,
		`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','1');`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

func (s *SQLiteIndex) Stats() Stats {
	return Stats{
		QueueDepth:    len(s.ch),
		QueueCapacity: cap(s.ch),
		DropTotal:     s.dropTotal.Load(),
		ErrorTotal:    s.errorTotal.Load(),
	}
}

func (s *SQLiteIndex) enqueue(r req) error {
	if s == nil || s.closed.Load() {
		return ErrClosed
	}
	select {
	case s.ch <- r:
		return nil
	default:
		s.dropTotal.Add(1)
		return ErrQueueFull
	}
}

func (s *SQLiteIndex) RecordWorld(seed string, size int) error {
	return s.enqueue(req{kind: reqWorld, seed: seed, size: size, at: time.Now().UTC()})
}

func (s *SQLiteIndex) SaveDelta(x, y int, d overlay.Delta) error {
	if d.IsEmpty() {
		return s.DeleteDelta(x, y)
	}
	raw, err := encodeDelta(d)
	if err != nil {
		return err
	}
	return s.enqueue(req{kind: reqSave, x: x, y: y, delta: raw, at: time.Now().UTC()})
}

func (s *SQLiteIndex) DeleteDelta(x, y int) error {
	return s.enqueue(req{kind: reqDelete, x: x, y: y})
}

// Reset drops every stored delta. The world row is kept.
func (s *SQLiteIndex) Reset() error {
	return s.enqueue(req{kind: reqReset})
}

// read runs fn on the writer goroutine after pending writes are committed.
// Reads block rather than drop when the queue is full.
func (s *SQLiteIndex) read(ctx context.Context, fn func(*sql.DB) error) error {
	if s == nil || s.closed.Load() {
		return ErrClosed
	}
	done := make(chan error, 1)
	select {
	case s.ch <- req{kind: reqRead, read: fn, done: done}:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Flush waits until every write queued before it is committed.
func (s *SQLiteIndex) Flush(ctx context.Context) error {
	return s.read(ctx, func(*sql.DB) error { return nil })
}

func (s *SQLiteIndex) LoadDeltas(ctx context.Context) ([]overlay.Entry, error) {
	var out []overlay.Entry
	err := s.read(ctx, func(db *sql.DB) error {
		rows, err := db.QueryContext(ctx, `SELECT x, y, delta_json FROM overlay_deltas ORDER BY y, x`)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var (
				e   overlay.Entry
				raw string
			)
			if err := rows.Scan(&e.X, &e.Y, &raw); err != nil {
				return err
			}
			if e.Delta, err = decodeDelta(raw); err != nil {
				return fmt.Errorf("delta (%d,%d): %w", e.X, e.Y, err)
			}
			out = append(out, e)
		}
		return rows.Err()
	})
	return out, err
}

func (s *SQLiteIndex) LoadWorld(ctx context.Context) (WorldMeta, bool, error) {
	var (
		m  WorldMeta
		ok bool
	)
	err := s.read(ctx, func(db *sql.DB) error {
		var at string
		err := db.QueryRowContext(ctx, `SELECT seed, size, recorded_at FROM world WHERE id = 1`).Scan(&m.Seed, &m.Size, &at)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return err
		}
		ok = true
		m.RecordedAt, _ = time.Parse(time.RFC3339Nano, at)
		return nil
	})
	return m, ok, err
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	var (
		tx         *sql.Tx
		opCount    int
		lastCommit = time.Now()
	)

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			s.errorTotal.Add(1)
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
		lastCommit = time.Now()
	}
	commit := func() {
		if tx == nil {
			return
		}
		if err := tx.Commit(); err != nil {
			s.errorTotal.Add(1)
		}
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	exec := func(query string, args ...any) {
		begin()
		if tx == nil {
			return
		}
		if _, err := tx.Exec(query, args...); err != nil {
			s.errorTotal.Add(1)
			_ = tx.Rollback()
			tx = nil
			return
		}
		opCount++
	}

	ticker := time.NewTicker(commitMaxWait)
	defer ticker.Stop()

	for {
		select {
		case r, ok := <-s.ch:
			if !ok {
				commit()
				return
			}
			switch r.kind {
			case reqWorld:
				exec(`INSERT OR REPLACE INTO world(id,seed,size,recorded_at) VALUES(1,?,?,?)`,
					r.seed, r.size, r.at.Format(time.RFC3339Nano))
			case reqSave:
				exec(`INSERT OR REPLACE INTO overlay_deltas(x,y,delta_json,updated_at) VALUES(?,?,?,?)`,
					r.x, r.y, r.delta, r.at.Format(time.RFC3339Nano))
			case reqDelete:
				exec(`DELETE FROM overlay_deltas WHERE x = ? AND y = ?`, r.x, r.y)
			case reqReset:
				exec(`DELETE FROM overlay_deltas`)
			case reqRead:
				commit()
				r.done <- r.read(s.db)
				continue
			}
			if opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait {
				commit()
			}
		case <-ticker.C:
			commit()
		}
	}
}
