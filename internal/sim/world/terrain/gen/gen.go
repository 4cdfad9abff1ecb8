// Package gen materializes cells and chunks from the field sampler and the
// hydrology tracer. A Generator holds only seed-derived state.
package gen

import (
	"errors"
	"fmt"

	"civforge.ai/internal/sim/world/terrain/fields"
	"civforge.ai/internal/sim/world/terrain/hydro"
)

var (
	ErrInvalidCoordinate = errors.New("invalid coordinate")
	ErrInvalidLOD        = errors.New("invalid lod")
)

type Generator struct {
	fields *fields.Sampler
	hydro  hydro.Params
}

func New(seed string, worldSize int) *Generator {
	return NewWithParams(seed, worldSize, hydro.DefaultParams())
}

func NewWithParams(seed string, worldSize int, p hydro.Params) *Generator {
	return &Generator{fields: fields.New(seed, worldSize), hydro: p}
}

func (g *Generator) Fields() *fields.Sampler { return g.fields }
func (g *Generator) Seed() string            { return g.fields.Seed() }
func (g *Generator) WorldSize() int          { return g.fields.WorldSize() }
func (g *Generator) Hydrology() hydro.Params { return g.hydro }

func ValidateCoord(x, y int) error {
	if x < -MaxCoordinate || x > MaxCoordinate || y < -MaxCoordinate || y > MaxCoordinate {
		return fmt.Errorf("%w: (%d,%d) outside ±%d", ErrInvalidCoordinate, x, y, MaxCoordinate)
	}
	return nil
}

// ValidateChunk accepts chunks whose every cell passes ValidateCoord.
func ValidateChunk(cx, cy int) error {
	const maxChunk = MaxCoordinate / ChunkSize
	if cx < -maxChunk || cx >= maxChunk || cy < -maxChunk || cy >= maxChunk {
		return fmt.Errorf("%w: chunk (%d,%d) outside [-%d,%d)", ErrInvalidCoordinate, cx, cy, maxChunk, maxChunk)
	}
	return nil
}

func ValidateLOD(lod int) (LOD, error) {
	if lod < 0 || lod > int(LOD2) {
		return 0, fmt.Errorf("%w: %d", ErrInvalidLOD, lod)
	}
	return LOD(lod), nil
}

// Cell computes one cell in isolation.
func (g *Generator) Cell(x, y int) (Cell, error) {
	if err := ValidateCoord(x, y); err != nil {
		return Cell{}, err
	}
	return g.cellAt(g.newMemo(64), x, y), nil
}

// GetCell is Cell with the biome's movement cost and resources attached.
func (g *Generator) GetCell(x, y int) (CellData, error) {
	c, err := g.Cell(x, y)
	if err != nil {
		return CellData{}, err
	}
	return c.WithProfile(), nil
}

// Region returns the cells of the inclusive rectangle in row-major order.
// Bounds must already be normalized and validated.
func (g *Generator) Region(minX, minY, maxX, maxY int) ([]Cell, error) {
	if minX > maxX || minY > maxY {
		return nil, nil
	}
	if err := ValidateCoord(minX, minY); err != nil {
		return nil, err
	}
	if err := ValidateCoord(maxX, maxY); err != nil {
		return nil, err
	}
	w, h := maxX-minX+1, maxY-minY+1
	m := g.newMemo(w * h * 2)
	out := make([]Cell, 0, w*h)
	for y := minY; y <= maxY; y++ {
		for x := minX; x <= maxX; x++ {
			out = append(out, g.cellAt(m, x, y))
		}
	}
	return out, nil
}

func (g *Generator) cellAt(m *memo, x, y int) Cell {
	v := m.Fields(x, y)
	biome := fields.Classify(v)
	tr := hydro.NewTracer(m, g.fields.SeedHash(), g.hydro)
	lake := tr.HasLake(x, y, v)
	river := tr.HasRiver(x, y, v)
	if river && biome != fields.BiomeOcean {
		biome = fields.BiomeRiver
	}
	return Cell{
		X:           x,
		Y:           y,
		Elevation:   v.Elevation,
		Temperature: v.Temperature,
		Humidity:    v.Moisture,
		Biome:       biome,
		HasRiver:    river,
		HasLake:     lake,
	}
}

// memo caches the two surfaces and downhill steps for the lifetime of one
// generation call. Every cached value is a pure function of the seed, so
// memoized and direct lookups are identical. Not safe for concurrent use.
type memo struct {
	s    *fields.Sampler
	surf map[[2]int][2]float64
	down map[[2]int]downstream
}

type downstream struct {
	p  hydro.Point
	ok bool
}

func (g *Generator) newMemo(hint int) *memo {
	return &memo{
		s:    g.fields,
		surf: make(map[[2]int][2]float64, hint),
		down: make(map[[2]int]downstream, hint),
	}
}

func (m *memo) surface(x, y int) [2]float64 {
	k := [2]int{x, y}
	if v, ok := m.surf[k]; ok {
		return v
	}
	e, d := m.s.Surface(x, y)
	v := [2]float64{e, d}
	m.surf[k] = v
	return v
}

func (m *memo) Elevation(x, y int) float64 { return m.surface(x, y)[0] }
func (m *memo) Drainage(x, y int) float64  { return m.surface(x, y)[1] }

func (m *memo) Downstream(x, y int) (hydro.Point, bool) {
	k := [2]int{x, y}
	if v, ok := m.down[k]; ok {
		return v.p, v.ok
	}
	p, ok := hydro.Downhill(m, x, y)
	m.down[k] = downstream{p, ok}
	return p, ok
}

func (m *memo) Fields(x, y int) fields.Values {
	return m.s.FieldsFrom(m.Elevation, x, y)
}
