// Package terrain is the entry point the rest of the system uses: one
// Generator per running world, created from the world's seed and size and
// owning the only chunk cache for that world.
package terrain

import (
	"errors"
	"fmt"
	"time"

	"civforge.ai/internal/sim/world/terrain/fields"
	"civforge.ai/internal/sim/world/terrain/gen"
	"civforge.ai/internal/sim/world/terrain/hydro"
	"civforge.ai/internal/sim/world/terrain/overlay"
	"civforge.ai/internal/sim/world/terrain/store"
)

var ErrTooLarge = errors.New("request too large")

// Limits bound a single caller request. The generator itself has no timeouts.
type Limits struct {
	MaxChunksPerRequest int `yaml:"max_chunks_per_request" json:"max_chunks_per_request"`
	MaxViewportCells    int `yaml:"max_viewport_cells" json:"max_viewport_cells"`
	MaxPayloadBytes     int `yaml:"max_payload_bytes" json:"max_payload_bytes"`
}

func DefaultLimits() Limits {
	return Limits{
		MaxChunksPerRequest: 25,
		MaxViewportCells:    10_000,
		MaxPayloadBytes:     200 << 10,
	}
}

// CheckPayload rejects serialized responses above MaxPayloadBytes.
func (l Limits) CheckPayload(n int) error {
	if l.MaxPayloadBytes > 0 && n > l.MaxPayloadBytes {
		return fmt.Errorf("%w: payload %d bytes > %d", ErrTooLarge, n, l.MaxPayloadBytes)
	}
	return nil
}

type Config struct {
	Seed      string
	WorldSize int
	CacheSize int
	Limits    Limits
	Hydrology hydro.Params

	// Now stamps cache accesses; defaults to time.Now.
	Now func() time.Time
}

type Generator struct {
	gen    *gen.Generator
	cache  *store.Cache
	limits Limits
}

// New builds a generator. Zero-valued config fields take their defaults.
func New(cfg Config) *Generator {
	if cfg.WorldSize <= 0 {
		cfg.WorldSize = fields.DefaultWorldSize
	}
	def := DefaultLimits()
	if cfg.Limits.MaxChunksPerRequest <= 0 {
		cfg.Limits.MaxChunksPerRequest = def.MaxChunksPerRequest
	}
	if cfg.Limits.MaxViewportCells <= 0 {
		cfg.Limits.MaxViewportCells = def.MaxViewportCells
	}
	if cfg.Limits.MaxPayloadBytes <= 0 {
		cfg.Limits.MaxPayloadBytes = def.MaxPayloadBytes
	}
	if cfg.Hydrology == (hydro.Params{}) {
		cfg.Hydrology = hydro.DefaultParams()
	}
	g := gen.NewWithParams(cfg.Seed, cfg.WorldSize, cfg.Hydrology)
	return &Generator{
		gen:    g,
		cache:  store.NewCache(g, cfg.CacheSize, cfg.Now),
		limits: cfg.Limits,
	}
}

func (g *Generator) Seed() string            { return g.gen.Seed() }
func (g *Generator) WorldSize() int          { return g.gen.WorldSize() }
func (g *Generator) Limits() Limits          { return g.limits }
func (g *Generator) Hydrology() hydro.Params { return g.gen.Hydrology() }

func (g *Generator) SampleFields(x, y int) (fields.Values, error) {
	if err := gen.ValidateCoord(x, y); err != nil {
		return fields.Values{}, err
	}
	return g.gen.Fields().Fields(x, y), nil
}

func (g *Generator) GetCell(x, y int) (gen.CellData, error) {
	return g.gen.GetCell(x, y)
}

func (g *Generator) WorldToChunk(x, y int) gen.ChunkCoord {
	return gen.WorldToChunk(x, y)
}

// GenerateChunk goes through the cache. The result is shared; treat it as read-only.
func (g *Generator) GenerateChunk(cx, cy int, lod gen.LOD) (*gen.ChunkData, error) {
	if err := gen.ValidateChunk(cx, cy); err != nil {
		return nil, err
	}
	if !lod.Valid() {
		return nil, fmt.Errorf("%w: %d", gen.ErrInvalidLOD, lod)
	}
	return g.cache.Get(cx, cy, lod)
}

// GenerateViewportTiles returns the cells of the inclusive rectangle in
// row-major order. Swapped bounds are normalized and the rectangle is clamped
// to [0, WorldSize); an area above MaxViewportCells is rejected. A rectangle
// entirely outside the world yields no cells.
func (g *Generator) GenerateViewportTiles(minX, minY, maxX, maxY int) ([]gen.Cell, error) {
	if minX > maxX {
		minX, maxX = maxX, minX
	}
	if minY > maxY {
		minY, maxY = maxY, minY
	}
	last := g.WorldSize() - 1
	if maxX < 0 || maxY < 0 || minX > last || minY > last {
		return []gen.Cell{}, nil
	}
	minX, maxX = clampInt(minX, 0, last), clampInt(maxX, 0, last)
	minY, maxY = clampInt(minY, 0, last), clampInt(maxY, 0, last)

	area := int64(maxX-minX+1) * int64(maxY-minY+1)
	if area > int64(g.limits.MaxViewportCells) {
		return nil, fmt.Errorf("%w: viewport %d cells > %d", ErrTooLarge, area, g.limits.MaxViewportCells)
	}
	return g.gen.Region(minX, minY, maxX, maxY)
}

// GetCellWithOverlay applies the delta stored at (x,y), if any. A nil store
// yields the base cell.
func (g *Generator) GetCellWithOverlay(x, y int, s *overlay.Store) (gen.CellData, error) {
	base, err := g.gen.GetCell(x, y)
	if err != nil {
		return gen.CellData{}, err
	}
	if s == nil {
		return base, nil
	}
	d, ok := s.GetDelta(x, y)
	if !ok {
		return base, nil
	}
	return overlay.Apply(base, &d), nil
}

type ChunkResult struct {
	Key  store.Key
	Data *gen.ChunkData
	Err  error
}

// GenerateChunks serves a batch. A failure or panic in one chunk is reported
// in its result and does not affect the others. Results keep request order.
func (g *Generator) GenerateChunks(keys []store.Key) ([]ChunkResult, error) {
	if len(keys) > g.limits.MaxChunksPerRequest {
		return nil, fmt.Errorf("%w: %d chunks > %d", ErrTooLarge, len(keys), g.limits.MaxChunksPerRequest)
	}
	out := make([]ChunkResult, len(keys))
	for i, k := range keys {
		out[i] = g.generateIsolated(k)
	}
	return out, nil
}

func (g *Generator) generateIsolated(k store.Key) (res ChunkResult) {
	res.Key = k
	defer func() {
		if r := recover(); r != nil {
			res.Data = nil
			res.Err = fmt.Errorf("chunk (%d,%d) lod %d: panic: %v", k.CX, k.CY, k.LOD, r)
		}
	}()
	res.Data, res.Err = g.GenerateChunk(k.CX, k.CY, k.LOD)
	return res
}

// ClearCache drops every cached chunk. Never required for correctness.
func (g *Generator) ClearCache() { g.cache.Clear() }

func (g *Generator) CacheStats() store.Stats { return g.cache.Stats() }

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
