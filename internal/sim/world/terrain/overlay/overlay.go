// Package overlay holds sparse, mutable terrain changes caused by the
// simulation. Deltas sit on top of generated cells and never feed back into
// generation.
package overlay

import (
	"sort"
	"sync"

	"civforge.ai/internal/sim/world/logic/mathx"
	"civforge.ai/internal/sim/world/terrain/fields"
	"civforge.ai/internal/sim/world/terrain/gen"
)

// Delta is a per-cell change. Nil or empty fields mean "no change".
type Delta struct {
	BiomeOverride          *fields.Biome               `json:"biome_override,omitempty"`
	MovementCostAdjustment *float64                    `json:"movement_cost_adjustment,omitempty"`
	ResourceDepletion      map[fields.Resource]float64 `json:"resource_depletion,omitempty"`
	Structures             []string                    `json:"structures,omitempty"`
}

func (d Delta) IsEmpty() bool {
	return d.BiomeOverride == nil && d.MovementCostAdjustment == nil &&
		len(d.ResourceDepletion) == 0 && len(d.Structures) == 0
}

func (d Delta) clone() Delta {
	out := Delta{}
	if d.BiomeOverride != nil {
		b := *d.BiomeOverride
		out.BiomeOverride = &b
	}
	if d.MovementCostAdjustment != nil {
		m := *d.MovementCostAdjustment
		out.MovementCostAdjustment = &m
	}
	if len(d.ResourceDepletion) > 0 {
		out.ResourceDepletion = make(map[fields.Resource]float64, len(d.ResourceDepletion))
		for k, v := range d.ResourceDepletion {
			out.ResourceDepletion[k] = v
		}
	}
	if len(d.Structures) > 0 {
		out.Structures = append([]string(nil), d.Structures...)
	}
	return out
}

type Entry struct {
	X     int   `json:"x"`
	Y     int   `json:"y"`
	Delta Delta `json:"delta"`
}

type point struct{ x, y int }

// Store is safe for concurrent use.
type Store struct {
	mu      sync.RWMutex
	deltas  map[point]Delta
	byChunk map[gen.ChunkCoord]map[point]struct{}
}

func NewStore() *Store {
	return &Store{
		deltas:  map[point]Delta{},
		byChunk: map[gen.ChunkCoord]map[point]struct{}{},
	}
}

func (s *Store) GetDelta(x, y int) (Delta, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.deltas[point{x, y}]
	if !ok {
		return Delta{}, false
	}
	return d.clone(), true
}

// SetDelta replaces the delta at (x,y). An empty delta removes the entry.
func (s *Store) SetDelta(x, y int, d Delta) {
	p := point{x, y}
	c := gen.WorldToChunk(x, y)

	s.mu.Lock()
	defer s.mu.Unlock()
	if d.IsEmpty() {
		delete(s.deltas, p)
		if set := s.byChunk[c]; set != nil {
			delete(set, p)
			if len(set) == 0 {
				delete(s.byChunk, c)
			}
		}
		return
	}
	s.deltas[p] = d.clone()
	set := s.byChunk[c]
	if set == nil {
		set = map[point]struct{}{}
		s.byChunk[c] = set
	}
	set[p] = struct{}{}
}

// GetDeltasInChunk returns the chunk's deltas ordered by (y, x).
func (s *Store) GetDeltasInChunk(cx, cy int) []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	set := s.byChunk[gen.ChunkCoord{CX: cx, CY: cy}]
	out := make([]Entry, 0, len(set))
	for p := range set {
		out = append(out, Entry{X: p.x, Y: p.y, Delta: s.deltas[p].clone()})
	}
	sortEntries(out)
	return out
}

// Entries returns every delta ordered by (y, x).
func (s *Store) Entries() []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Entry, 0, len(s.deltas))
	for p, d := range s.deltas {
		out = append(out, Entry{X: p.x, Y: p.y, Delta: d.clone()})
	}
	sortEntries(out)
	return out
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.deltas)
}

// Clear drops every delta. Called on world reset.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deltas = map[point]Delta{}
	s.byChunk = map[gen.ChunkCoord]map[point]struct{}{}
}

func sortEntries(es []Entry) {
	sort.Slice(es, func(i, j int) bool {
		if es[i].Y != es[j].Y {
			return es[i].Y < es[j].Y
		}
		return es[i].X < es[j].X
	})
}

// Apply returns base with d applied. A biome override swaps in that biome's
// profile before the movement and resource multipliers are applied. base is
// not modified.
func Apply(base gen.CellData, d *Delta) gen.CellData {
	out := base
	out.Resources = base.Resources.Clone()
	out.Structures = append([]string(nil), base.Structures...)
	if d == nil {
		return out
	}
	if d.BiomeOverride != nil && d.BiomeOverride.Valid() {
		out.Biome = *d.BiomeOverride
		p := fields.ProfileOf(out.Biome)
		out.MovementCost = p.MovementCost
		out.Resources = p.Resources
	}
	if d.MovementCostAdjustment != nil {
		out.MovementCost *= *d.MovementCostAdjustment
	}
	for r, f := range d.ResourceDepletion {
		if v, ok := out.Resources[r]; ok {
			out.Resources[r] = v * clampFactor(f)
		}
	}
	out.Structures = append(out.Structures, d.Structures...)
	return out
}

func clampFactor(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}

// ApplyChunk applies every delta of the chunk to an LOD0 chunk and returns the
// affected cells keyed by their index in ch.Cells. Other levels are returned
// unchanged as an empty map.
func ApplyChunk(ch *gen.ChunkData, s *Store) map[int]gen.CellData {
	out := map[int]gen.CellData{}
	if ch == nil || ch.LOD != gen.LOD0 || s == nil {
		return out
	}
	for _, e := range s.GetDeltasInChunk(ch.Coord.CX, ch.Coord.CY) {
		c, ok := ch.CellAt(e.X, e.Y)
		if !ok {
			continue
		}
		d := e.Delta
		out[mathx.Mod(e.X, gen.ChunkSize)+mathx.Mod(e.Y, gen.ChunkSize)*gen.ChunkSize] = Apply(c.WithProfile(), &d)
	}
	return out
}
