package encoding

import (
	"encoding/base64"
	"errors"
	"fmt"
	"math"

	"civforge.ai/internal/sim/world/terrain/fields"
	"civforge.ai/internal/sim/world/terrain/gen"
)

const PayloadVersion = 1

// QuantStep is the worst-case error of a quantized float field. It is fine for
// rendering and heatmaps; quantized values must never be used to re-derive
// biomes or hydrology.
const QuantStep = 1.0 / 255

var ErrBadPayload = errors.New("bad chunk payload")

// CompactPayload is the transport form of gen.ChunkData. Biome ids are exact;
// float fields are quantized to one byte each.
type CompactPayload struct {
	V   int     `json:"v"`
	CX  int     `json:"cx"`
	CY  int     `json:"cy"`
	LOD gen.LOD `json:"lod"`

	// LOD0 and LOD1.
	Biomes    string `json:"biomes,omitempty"`    // RLE of biome ids
	Elevation string `json:"elevation,omitempty"` // base64, one byte per cell/block

	// LOD0 only.
	Temperature string `json:"temperature,omitempty"`
	Humidity    string `json:"humidity,omitempty"`
	Flags       string `json:"flags,omitempty"` // RLE, bit0 river, bit1 lake

	// LOD2 only.
	Coverage map[string]int `json:"coverage,omitempty"`
	Samples  int            `json:"samples,omitempty"`
}

const (
	flagRiver uint8 = 1 << iota
	flagLake
)

func Quantize(v float64) uint8 {
	if !(v > 0) {
		return 0
	}
	if v >= 1 {
		return 255
	}
	return uint8(math.Round(v * 255))
}

func Dequantize(q uint8) float64 { return float64(q) / 255 }

func SerializeChunk(ch *gen.ChunkData) (CompactPayload, error) {
	if ch == nil {
		return CompactPayload{}, fmt.Errorf("%w: nil chunk", ErrBadPayload)
	}
	if err := ch.Validate(); err != nil {
		return CompactPayload{}, fmt.Errorf("%w: %v", ErrBadPayload, err)
	}
	p := CompactPayload{V: PayloadVersion, CX: ch.Coord.CX, CY: ch.Coord.CY, LOD: ch.LOD}
	switch ch.LOD {
	case gen.LOD0:
		n := len(ch.Cells)
		biomes := make([]fields.Biome, n)
		flags := make([]uint8, n)
		elev, temp, hum := make([]byte, n), make([]byte, n), make([]byte, n)
		for i, c := range ch.Cells {
			biomes[i] = c.Biome
			if c.HasRiver {
				flags[i] |= flagRiver
			}
			if c.HasLake {
				flags[i] |= flagLake
			}
			elev[i] = Quantize(c.Elevation)
			temp[i] = Quantize(c.Temperature)
			hum[i] = Quantize(c.Humidity)
		}
		p.Biomes = EncodeRLE(biomes)
		p.Flags = EncodeRLE(flags)
		p.Elevation = base64.StdEncoding.EncodeToString(elev)
		p.Temperature = base64.StdEncoding.EncodeToString(temp)
		p.Humidity = base64.StdEncoding.EncodeToString(hum)
	case gen.LOD1:
		biomes := make([]fields.Biome, len(ch.Blocks))
		elev := make([]byte, len(ch.Blocks))
		for i, b := range ch.Blocks {
			biomes[i] = b.Biome
			elev[i] = Quantize(b.AvgElevation)
		}
		p.Biomes = EncodeRLE(biomes)
		p.Elevation = base64.StdEncoding.EncodeToString(elev)
	case gen.LOD2:
		p.Coverage = make(map[string]int, len(ch.Coverage))
		for b, v := range ch.Coverage {
			p.Coverage[b.String()] = v
		}
		p.Samples = ch.Samples
	}
	return p, nil
}

func DeserializeChunk(p CompactPayload) (*gen.ChunkData, error) {
	if p.V != PayloadVersion {
		return nil, fmt.Errorf("%w: version %d", ErrBadPayload, p.V)
	}
	if !p.LOD.Valid() {
		return nil, fmt.Errorf("%w: lod %d", ErrBadPayload, p.LOD)
	}
	ch := &gen.ChunkData{Coord: gen.ChunkCoord{CX: p.CX, CY: p.CY}, LOD: p.LOD}
	switch p.LOD {
	case gen.LOD0:
		const n = gen.ChunkSize * gen.ChunkSize
		biomes, err := decodeBiomes(p.Biomes, n)
		if err != nil {
			return nil, err
		}
		flags, err := DecodeRLE[uint8](p.Flags, n)
		if err != nil {
			return nil, fmt.Errorf("%w: flags: %v", ErrBadPayload, err)
		}
		if len(flags) != n {
			return nil, fmt.Errorf("%w: %d flags, want %d", ErrBadPayload, len(flags), n)
		}
		elev, err := decodePlane(p.Elevation, n)
		if err != nil {
			return nil, err
		}
		temp, err := decodePlane(p.Temperature, n)
		if err != nil {
			return nil, err
		}
		hum, err := decodePlane(p.Humidity, n)
		if err != nil {
			return nil, err
		}
		ox, oy := ch.Coord.Origin()
		ch.Cells = make([]gen.Cell, n)
		for i := range ch.Cells {
			ch.Cells[i] = gen.Cell{
				X:           ox + i%gen.ChunkSize,
				Y:           oy + i/gen.ChunkSize,
				Elevation:   Dequantize(elev[i]),
				Temperature: Dequantize(temp[i]),
				Humidity:    Dequantize(hum[i]),
				Biome:       biomes[i],
				HasRiver:    flags[i]&flagRiver != 0,
				HasLake:     flags[i]&flagLake != 0,
			}
		}
	case gen.LOD1:
		const n = gen.BlocksPerSide * gen.BlocksPerSide
		biomes, err := decodeBiomes(p.Biomes, n)
		if err != nil {
			return nil, err
		}
		elev, err := decodePlane(p.Elevation, n)
		if err != nil {
			return nil, err
		}
		ch.Blocks = make([]gen.Block, n)
		for i := range ch.Blocks {
			ch.Blocks[i] = gen.Block{
				BX:           i % gen.BlocksPerSide,
				BY:           i / gen.BlocksPerSide,
				Biome:        biomes[i],
				AvgElevation: Dequantize(elev[i]),
			}
		}
	case gen.LOD2:
		ch.Coverage = make(map[fields.Biome]int, len(p.Coverage))
		for name, v := range p.Coverage {
			b, err := fields.ParseBiome(name)
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrBadPayload, err)
			}
			ch.Coverage[b] = v
		}
		ch.Samples = p.Samples
	}
	if err := ch.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadPayload, err)
	}
	return ch, nil
}

func decodeBiomes(s string, n int) ([]fields.Biome, error) {
	biomes, err := DecodeRLE[fields.Biome](s, n)
	if err != nil {
		return nil, fmt.Errorf("%w: biomes: %v", ErrBadPayload, err)
	}
	if len(biomes) != n {
		return nil, fmt.Errorf("%w: %d biomes, want %d", ErrBadPayload, len(biomes), n)
	}
	for i, b := range biomes {
		if !b.Valid() {
			return nil, fmt.Errorf("%w: biome id %d at %d", ErrBadPayload, uint8(b), i)
		}
	}
	return biomes, nil
}

func decodePlane(s string, n int) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadPayload, err)
	}
	if len(raw) != n {
		return nil, fmt.Errorf("%w: plane has %d bytes, want %d", ErrBadPayload, len(raw), n)
	}
	return raw, nil
}
