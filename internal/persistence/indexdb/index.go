// Package indexdb persists the only mutable terrain state: overlay deltas and
// the (seed, size) pair that defines the world. Generated terrain is never
// stored.
package indexdb

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"civforge.ai/internal/sim/world/terrain/overlay"
)

type OverlayIndex interface {
	RecordWorld(seed string, size int) error
	SaveDelta(x, y int, d overlay.Delta) error
	DeleteDelta(x, y int) error
	LoadDeltas(ctx context.Context) ([]overlay.Entry, error)
	LoadWorld(ctx context.Context) (WorldMeta, bool, error)
	Reset() error
	Close() error
}

type WorldMeta struct {
	Seed       string    `json:"seed"`
	Size       int       `json:"size"`
	RecordedAt time.Time `json:"recorded_at"`
}

var ErrClosed = errors.New("index closed")

// Restore loads every persisted delta into s and returns how many were applied.
func Restore(ctx context.Context, idx OverlayIndex, s *overlay.Store) (int, error) {
	entries, err := idx.LoadDeltas(ctx)
	if err != nil {
		return 0, err
	}
	for _, e := range entries {
		s.SetDelta(e.X, e.Y, e.Delta)
	}
	return len(entries), nil
}

func encodeDelta(d overlay.Delta) (string, error) {
	b, err := json.Marshal(d)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func decodeDelta(s string) (overlay.Delta, error) {
	var d overlay.Delta
	err := json.Unmarshal([]byte(s), &d)
	return d, err
}

// Nop discards writes. Used when persistence is disabled.
type Nop struct{}

func (Nop) RecordWorld(string, int) error                       { return nil }
func (Nop) SaveDelta(int, int, overlay.Delta) error             { return nil }
func (Nop) DeleteDelta(int, int) error                          { return nil }
func (Nop) LoadDeltas(context.Context) ([]overlay.Entry, error) { return nil, nil }
func (Nop) LoadWorld(context.Context) (WorldMeta, bool, error)  { return WorldMeta{}, false, nil }
func (Nop) Reset() error                                        { return nil }
func (Nop) Close() error                                        { return nil }
