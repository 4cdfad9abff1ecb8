package gen

import "civforge.ai/internal/sim/world/terrain/fields"

// GenerateChunk builds one chunk at the requested level. Every level is
// computed straight from the seed; none is derived from another level.
func (g *Generator) GenerateChunk(cx, cy int, lod LOD) (*ChunkData, error) {
	if err := ValidateChunk(cx, cy); err != nil {
		return nil, err
	}
	if !lod.Valid() {
		return nil, ErrInvalidLOD
	}
	coord := ChunkCoord{CX: cx, CY: cy}
	ch := &ChunkData{Coord: coord, LOD: lod}
	switch lod {
	case LOD0:
		ch.Cells = g.generateCells(coord)
	case LOD1:
		ch.Blocks = g.generateBlocks(coord)
	case LOD2:
		ch.Coverage, ch.Samples = g.generateCoverage(coord)
	}
	return ch, nil
}

func (g *Generator) generateCells(coord ChunkCoord) []Cell {
	ox, oy := coord.Origin()
	m := g.newMemo(4 * ChunkSize * ChunkSize)
	cells := make([]Cell, ChunkSize*ChunkSize)
	for ly := 0; ly < ChunkSize; ly++ {
		for lx := 0; lx < ChunkSize; lx++ {
			cells[cellIndex(lx, ly)] = g.cellAt(m, ox+lx, oy+ly)
		}
	}
	return cells
}

// generateBlocks samples each block at its top-left anchor so that a block
// always matches the LOD0 cell at that anchor.
func (g *Generator) generateBlocks(coord ChunkCoord) []Block {
	ox, oy := coord.Origin()
	m := g.newMemo(ChunkSize * ChunkSize)
	blocks := make([]Block, BlocksPerSide*BlocksPerSide)
	for by := 0; by < BlocksPerSide; by++ {
		for bx := 0; bx < BlocksPerSide; bx++ {
			c := g.cellAt(m, ox+bx*BlockSize, oy+by*BlockSize)
			blocks[bx+by*BlocksPerSide] = Block{BX: bx, BY: by, Biome: c.Biome, AvgElevation: c.Elevation}
		}
	}
	return blocks
}

func (g *Generator) generateCoverage(coord ChunkCoord) (map[fields.Biome]int, int) {
	ox, oy := coord.Origin()
	m := g.newMemo(1024)
	cov := make(map[fields.Biome]int)
	n := 0
	for sy := 0; sy < CoverageSide; sy++ {
		for sx := 0; sx < CoverageSide; sx++ {
			c := g.cellAt(m, ox+sx*CoverageStride, oy+sy*CoverageStride)
			cov[c.Biome]++
			n++
		}
	}
	return cov, n
}
