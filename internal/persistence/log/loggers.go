package log

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"

	"civforge.ai/internal/sim/world/terrain/overlay"
)

// JSONLZstdWriter appends JSON lines to hourly zstd files named
// <prefix>-YYYY-MM-DD-HH.jsonl.zst.
type JSONLZstdWriter struct {
	baseDir string
	prefix  string
	now     func() time.Time

	mu      sync.Mutex
	curHour string
	f       *os.File
	enc     *zstd.Encoder
	w       *bufio.Writer
}

func NewJSONLZstdWriter(baseDir, prefix string) *JSONLZstdWriter {
	return &JSONLZstdWriter{
		baseDir: baseDir,
		prefix:  prefix,
		now:     time.Now,
	}
}

func (w *JSONLZstdWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closeLocked()
}

func (w *JSONLZstdWriter) Write(v any) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	hour := w.now().UTC().Format("2006-01-02-15")
	if hour != w.curHour {
		if err := w.rotateLocked(hour); err != nil {
			return err
		}
	}

	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := w.w.Write(b); err != nil {
		return err
	}
	if err := w.w.WriteByte('\n'); err != nil {
		return err
	}
	return w.w.Flush()
}

func (w *JSONLZstdWriter) rotateLocked(hour string) error {
	if err := w.closeLocked(); err != nil {
		return err
	}
	path := w.pathForHour(hour)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return err
	}
	w.f = f
	w.enc = enc
	w.w = bufio.NewWriterSize(enc, 64*1024)
	w.curHour = hour
	return nil
}

func (w *JSONLZstdWriter) closeLocked() error {
	var err1 error
	if w.w != nil {
		_ = w.w.Flush()
	}
	if w.enc != nil {
		err1 = w.enc.Close()
		w.enc = nil
	}
	if w.f != nil {
		_ = w.f.Close()
		w.f = nil
	}
	w.w = nil
	w.curHour = ""
	return err1
}

func (w *JSONLZstdWriter) pathForHour(hour string) string {
	return filepath.Join(w.baseDir, fmt.Sprintf("%s-%s.jsonl.zst", w.prefix, hour))
}

const (
	OpSet    = "set"
	OpDelete = "delete"
	OpReset  = "reset"
)

type AuditEntry struct {
	At    time.Time      `json:"at"`
	Op    string         `json:"op"`
	X     int            `json:"x,omitempty"`
	Y     int            `json:"y,omitempty"`
	Delta *overlay.Delta `json:"delta,omitempty"`
}

// OverlayAuditLogger records every overlay mutation. It satisfies the same
// sink interface as the overlay index, so it can sit next to it.
type OverlayAuditLogger struct{ w *JSONLZstdWriter }

func NewOverlayAuditLogger(dataDir string) *OverlayAuditLogger {
	return &OverlayAuditLogger{w: NewJSONLZstdWriter(filepath.Join(dataDir, "audit"), "overlay")}
}

func (l *OverlayAuditLogger) SaveDelta(x, y int, d overlay.Delta) error {
	e := AuditEntry{At: l.w.now().UTC(), Op: OpSet, X: x, Y: y, Delta: &d}
	if d.IsEmpty() {
		e.Op, e.Delta = OpDelete, nil
	}
	return l.w.Write(e)
}

func (l *OverlayAuditLogger) Reset() error {
	return l.w.Write(AuditEntry{At: l.w.now().UTC(), Op: OpReset})
}

func (l *OverlayAuditLogger) Close() error { return l.w.Close() }
