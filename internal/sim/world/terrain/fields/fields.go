// Package fields derives the four continuous terrain fields (elevation,
// temperature, moisture, ruggedness) from a world seed and classifies them into
// biomes. Everything here is a pure function of (seed, world size, x, y).
package fields

import (
	"math"

	"civforge.ai/internal/sim/world/logic/mathx"
	"civforge.ai/internal/sim/world/terrain/noise"
)

type Values struct {
	Elevation   float64 `json:"elevation"`
	Temperature float64 `json:"temperature"`
	Moisture    float64 `json:"moisture"`
	Ruggedness  float64 `json:"ruggedness"`
}

// ElevationFunc lets callers plug a memoized elevation source into FieldsFrom.
type ElevationFunc func(x, y int) float64

const DefaultWorldSize = 2048

// Salts for the per-field noise seeds.
const (
	saltContinent uint32 = iota + 1
	saltIsland
	saltDetail
	saltTemperature
	saltMoisture
	saltRuggedness
)

const (
	coastSearchMax = 32
	shadowDistance = 8

	// Orographic lift: moisture gained with height, ramping between liftStart
	// and liftFull.
	orographicLift = 0.3
	liftStart      = 0.45
	liftFull       = 0.75
)

var coastRadii = [...]int{4, 8, 16, coastSearchMax}

var ringDirs = [8][2]int{{1, 0}, {1, 1}, {0, 1}, {-1, 1}, {-1, 0}, {-1, -1}, {0, -1}, {1, -1}}

type Sampler struct {
	seed      string
	seedHash  uint32
	worldSize int

	continent   noise.Sampler
	island      noise.Sampler
	detail      noise.Sampler
	temperature noise.Sampler
	moisture    noise.Sampler
	ruggedness  noise.Sampler
}

func New(seed string, worldSize int) *Sampler {
	if worldSize <= 0 {
		worldSize = DefaultWorldSize
	}
	h := mathx.SeedHash(seed)
	return &Sampler{
		seed:        seed,
		seedHash:    h,
		worldSize:   worldSize,
		continent:   noise.New(mathx.Derive(h, saltContinent)),
		island:      noise.New(mathx.Derive(h, saltIsland)),
		detail:      noise.New(mathx.Derive(h, saltDetail)),
		temperature: noise.New(mathx.Derive(h, saltTemperature)),
		moisture:    noise.New(mathx.Derive(h, saltMoisture)),
		ruggedness:  noise.New(mathx.Derive(h, saltRuggedness)),
	}
}

func (s *Sampler) Seed() string     { return s.seed }
func (s *Sampler) SeedHash() uint32 { return s.seedHash }
func (s *Sampler) WorldSize() int   { return s.worldSize }

// Elevation blends a radial continent with thresholded islands and fine detail.
func (s *Sampler) Elevation(x, y int) float64 {
	e, _ := s.Surface(x, y)
	return e
}

// Drainage is Elevation without the fine detail term. Water flows over this
// surface, so hydrology is not trapped in pits a few cells wide.
func (s *Sampler) Drainage(x, y int) float64 {
	_, d := s.Surface(x, y)
	return d
}

// Surface returns Elevation and Drainage from one evaluation of the shared terms.
func (s *Sampler) Surface(x, y int) (elevation, drainage float64) {
	fx, fy := float64(x), float64(y)
	half := float64(s.worldSize) / 2
	dx := (fx - half) / half
	dy := (fy - half) / half
	d := math.Sqrt(float64(dx*dx) + float64(dy*dy))

	falloff := 1 - noise.Smoothstep(0.35, 1.1, d)
	continent := 0.6*falloff + 0.4*s.continent.Sample01(fx, fy, 4, 1.0/512)

	island := s.island.Sample01(fx, fy, 3, 1.0/96)
	if island > 0.62 {
		island = (island - 0.62) / 0.38
	} else {
		island = 0
	}

	detail := s.detail.Sample(fx, fy, 4, 1.0/24)

	relief := float64(continent*0.8) + float64(island*0.3)
	return clamp01(relief + float64(detail*0.06)), clamp01(relief)
}

func (s *Sampler) Fields(x, y int) Values {
	return s.FieldsFrom(s.Elevation, x, y)
}

// FieldsFrom computes all four fields using elev for every elevation lookup,
// including the neighbourhood searches for moisture.
func (s *Sampler) FieldsFrom(elev ElevationFunc, x, y int) Values {
	e := elev(x, y)
	return Values{
		Elevation:   e,
		Temperature: s.temperatureAt(x, y, e),
		Moisture:    s.moistureAt(elev, x, y, e),
		Ruggedness:  s.ruggednessAt(x, y, e),
	}
}

// Sample is the convenience form of Fields followed by Classify.
func (s *Sampler) Sample(x, y int) (Values, Biome) {
	v := s.Fields(x, y)
	return v, Classify(v)
}

func (s *Sampler) temperatureAt(x, y int, e float64) float64 {
	yn := clamp01(float64(y) / float64(s.worldSize))
	t := 1 - math.Abs(yn-0.5)*1.6
	if e > SeaLevel {
		t -= (e - SeaLevel) * 0.6
	}
	t += s.temperature.Sample(float64(x), float64(y), 2, 1.0/128) * 0.08
	return clamp01(t)
}

func (s *Sampler) moistureAt(elev ElevationFunc, x, y int, e float64) float64 {
	coast := s.coastDistance(elev, x, y, e)
	base := 1 - coast*0.7

	// Prevailing wind blows from the west: higher ground upwind dries the lee.
	shadow := 0.0
	if west := elev(x-shadowDistance, y); west > e+0.05 {
		shadow = (west - e) * 1.5
	}

	lift := float64(orographicLift * noise.Smoothstep(liftStart, liftFull, e))

	n := s.moisture.Sample01(float64(x), float64(y), 3, 1.0/64)
	return clamp01(float64(base*0.6) + float64(n*0.4) - shadow + lift)
}

// coastDistance is 0 on or next to water and 1 when no water lies within the
// search radius.
func (s *Sampler) coastDistance(elev ElevationFunc, x, y int, e float64) float64 {
	if e < SeaLevel {
		return 0
	}
	for _, r := range coastRadii {
		for _, d := range ringDirs {
			if elev(x+d[0]*r, y+d[1]*r) < SeaLevel {
				return float64(r) / coastSearchMax
			}
		}
	}
	return 1
}

func (s *Sampler) ruggednessAt(x, y int, e float64) float64 {
	n := s.ruggedness.Sample01(float64(x), float64(y), 3, 1.0/16)
	return clamp01(n * noise.Smoothstep(0.5, 0.8, e))
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
