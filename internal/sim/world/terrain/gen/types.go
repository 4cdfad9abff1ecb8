package gen

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"math"

	"civforge.ai/internal/sim/world/logic/mathx"
	"civforge.ai/internal/sim/world/terrain/fields"
)

const (
	ChunkSize      = 128
	BlockSize      = 4
	BlocksPerSide  = ChunkSize / BlockSize
	CoverageStride = 16
	CoverageSide   = ChunkSize / CoverageStride

	// MaxCoordinate bounds |x| and |y| for any sampled cell.
	MaxCoordinate = 1 << 30
)

// Cell is one terrain point. Recomputing it for the same seed yields identical values.
type Cell struct {
	X           int          `json:"x"`
	Y           int          `json:"y"`
	Elevation   float64      `json:"elevation"`
	Temperature float64      `json:"temperature"`
	Humidity    float64      `json:"humidity"`
	Biome       fields.Biome `json:"biome"`
	HasRiver    bool         `json:"has_river"`
	HasLake     bool         `json:"has_lake"`
}

// CellData is a Cell with its gameplay profile attached.
type CellData struct {
	Cell
	MovementCost float64          `json:"movement_cost"`
	Resources    fields.Resources `json:"resources"`
	Structures   []string         `json:"structures,omitempty"`
}

func (c Cell) WithProfile() CellData {
	p := fields.ProfileOf(c.Biome)
	return CellData{Cell: c, MovementCost: p.MovementCost, Resources: p.Resources}
}

type ChunkCoord struct {
	CX int `json:"cx"`
	CY int `json:"cy"`
}

func WorldToChunk(x, y int) ChunkCoord {
	return ChunkCoord{CX: mathx.FloorDiv(x, ChunkSize), CY: mathx.FloorDiv(y, ChunkSize)}
}

// Origin is the world coordinate of the chunk's top-left cell.
func (c ChunkCoord) Origin() (int, int) {
	return c.CX * ChunkSize, c.CY * ChunkSize
}

type LOD uint8

const (
	LOD0 LOD = iota // every cell
	LOD1            // one anchor sample per block
	LOD2            // biome coverage histogram
)

func (l LOD) Valid() bool { return l <= LOD2 }

type Block struct {
	BX           int          `json:"bx"`
	BY           int          `json:"by"`
	Biome        fields.Biome `json:"biome"`
	AvgElevation float64      `json:"avg_elevation"`
}

type ChunkData struct {
	Coord ChunkCoord `json:"coord"`
	LOD   LOD        `json:"lod"`

	Cells  []Cell  `json:"cells,omitempty"`  // LOD0, index lx + ly*ChunkSize
	Blocks []Block `json:"blocks,omitempty"` // LOD1, index bx + by*BlocksPerSide

	Coverage map[fields.Biome]int `json:"coverage,omitempty"` // LOD2
	Samples  int                  `json:"samples,omitempty"`
}

func cellIndex(lx, ly int) int { return lx + ly*ChunkSize }

// CellAt returns the LOD0 cell at world (x,y) if it lies in this chunk.
func (c *ChunkData) CellAt(x, y int) (Cell, bool) {
	if c.LOD != LOD0 || WorldToChunk(x, y) != c.Coord {
		return Cell{}, false
	}
	i := cellIndex(mathx.Mod(x, ChunkSize), mathx.Mod(y, ChunkSize))
	if i >= len(c.Cells) {
		return Cell{}, false
	}
	return c.Cells[i], true
}

func (c *ChunkData) BlockAt(bx, by int) (Block, bool) {
	if c.LOD != LOD1 || bx < 0 || by < 0 || bx >= BlocksPerSide || by >= BlocksPerSide {
		return Block{}, false
	}
	return c.Blocks[bx+by*BlocksPerSide], true
}

// Validate checks the shape invariants of the level the chunk is tagged with.
func (c *ChunkData) Validate() error {
	switch c.LOD {
	case LOD0:
		if len(c.Cells) != ChunkSize*ChunkSize {
			return fmt.Errorf("lod0 chunk has %d cells, want %d", len(c.Cells), ChunkSize*ChunkSize)
		}
	case LOD1:
		if len(c.Blocks) != BlocksPerSide*BlocksPerSide {
			return fmt.Errorf("lod1 chunk has %d blocks, want %d", len(c.Blocks), BlocksPerSide*BlocksPerSide)
		}
	case LOD2:
		n := 0
		for b, v := range c.Coverage {
			if !b.Valid() || v < 0 {
				return fmt.Errorf("lod2 coverage has bad entry %d=%d", uint8(b), v)
			}
			n += v
		}
		if n != c.Samples {
			return fmt.Errorf("lod2 coverage sums to %d, want %d", n, c.Samples)
		}
	default:
		return fmt.Errorf("%w: %d", ErrInvalidLOD, c.LOD)
	}
	return nil
}

// Digest hashes the chunk's canonical binary form. Two chunks with the same
// digest carry bit-identical data.
func (c *ChunkData) Digest() [32]byte {
	h := sha256.New()
	var tmp [8]byte
	putI := func(v int) {
		binary.LittleEndian.PutUint64(tmp[:], uint64(int64(v)))
		h.Write(tmp[:])
	}
	putF := func(v float64) {
		binary.LittleEndian.PutUint64(tmp[:], math.Float64bits(v))
		h.Write(tmp[:])
	}
	putB := func(b byte) {
		tmp[0] = b
		h.Write(tmp[:1])
	}

	putI(c.Coord.CX)
	putI(c.Coord.CY)
	putB(byte(c.LOD))
	switch c.LOD {
	case LOD0:
		for _, cell := range c.Cells {
			putI(cell.X)
			putI(cell.Y)
			putF(cell.Elevation)
			putF(cell.Temperature)
			putF(cell.Humidity)
			putB(byte(cell.Biome))
			putB(boolByte(cell.HasRiver) | boolByte(cell.HasLake)<<1)
		}
	case LOD1:
		for _, b := range c.Blocks {
			putI(b.BX)
			putI(b.BY)
			putB(byte(b.Biome))
			putF(b.AvgElevation)
		}
	case LOD2:
		putI(c.Samples)
		for b := fields.Biome(0); b < fields.BiomeCount; b++ {
			putI(c.Coverage[b])
		}
	}
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

func boolByte(v bool) byte {
	if v {
		return 1
	}
	return 0
}
