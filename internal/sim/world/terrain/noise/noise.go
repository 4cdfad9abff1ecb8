// Package noise implements seeded 2D value noise with fractal (fBm) summation.
//
// Lattice values are derived independently from (seed, lx, ly) with an integer
// hash, so a Sampler has no state beyond its seed and can be shared freely
// between goroutines.
package noise

import (
	"math"

	"civforge.ai/internal/sim/world/logic/mathx"
)

type Sampler struct {
	seed uint32
}

func New(seed uint32) Sampler {
	return Sampler{seed: seed}
}

func (s Sampler) Seed() uint32 { return s.seed }

// Lattice returns the value assigned to an integer lattice point, in [-1,1).
func (s Sampler) Lattice(lx, ly int) float64 {
	return mathx.Unit(mathx.Hash2(int64(s.seed), lx, ly))*2 - 1
}

// Noise samples single-octave value noise at (x, y) in lattice units.
func (s Sampler) Noise(x, y float64) float64 {
	fx := math.Floor(x)
	fy := math.Floor(y)
	lx := int(fx)
	ly := int(fy)
	u := fade(x - fx)
	v := fade(y - fy)

	v00 := s.Lattice(lx, ly)
	v10 := s.Lattice(lx+1, ly)
	v01 := s.Lattice(lx, ly+1)
	v11 := s.Lattice(lx+1, ly+1)

	top := lerp(v00, v10, u)
	bottom := lerp(v01, v11, u)
	return lerp(top, bottom, v)
}

// Sample sums octaves of value noise, halving amplitude and doubling frequency
// each octave, normalized back into [-1,1]. Inputs must be finite.
func (s Sampler) Sample(x, y float64, octaves int, frequency float64) float64 {
	if octaves <= 0 {
		octaves = 1
	}
	sum := 0.0
	amp := 1.0
	total := 0.0
	freq := frequency
	for o := 0; o < octaves; o++ {
		// Per-octave offset keeps octaves from sharing lattice corners at the origin.
		off := float64(o) * 17.13
		sum += float64(amp * s.Noise(float64(x*freq)+off, float64(y*freq)-off))
		total += amp
		amp *= 0.5
		freq *= 2
	}
	out := sum / total
	if out > 1 {
		return 1
	}
	if out < -1 {
		return -1
	}
	return out
}

// Sample01 is Sample remapped to [0,1].
func (s Sampler) Sample01(x, y float64, octaves int, frequency float64) float64 {
	return (s.Sample(x, y, octaves, frequency) + 1) * 0.5
}

// Finite reports whether both coordinates can be sampled.
func Finite(x, y float64) bool {
	return !math.IsNaN(x) && !math.IsNaN(y) && !math.IsInf(x, 0) && !math.IsInf(y, 0)
}

// Smoothstep is the cubic Hermite ramp between edge0 and edge1.
func Smoothstep(edge0, edge1, x float64) float64 {
	if edge1 == edge0 {
		if x < edge0 {
			return 0
		}
		return 1
	}
	t := (x - edge0) / (edge1 - edge0)
	if t < 0 {
		t = 0
	} else if t > 1 {
		t = 1
	}
	return fade(t)
}

// The explicit float64 conversions below stop the compiler from fusing
// multiply-adds, which would change results between architectures.
func fade(t float64) float64 {
	return float64(t*t) * float64(3-float64(2*t))
}

func lerp(a, b, t float64) float64 {
	return a + float64(t*(b-a))
}
