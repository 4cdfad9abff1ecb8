package mathx

import "hash/fnv"

func FloorDiv(a, b int) int {
	// b > 0
	q := a / b
	r := a % b
	if r < 0 {
		q--
	}
	return q
}

func Mod(a, b int) int {
	// b > 0
	m := a % b
	if m < 0 {
		m += b
	}
	return m
}

func AbsInt(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

func mix64(z uint64) uint64 {
	z += 0x9e3779b97f4a7c15
	z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
	z = (z ^ (z >> 27)) * 0x94d049bb133111eb
	return z ^ (z >> 31)
}

// Hash2 hashes a 2D lattice coordinate under seed. Coordinates are truncated to
// 32 bits before mixing, so callers keep them inside int32 range.
func Hash2(seed int64, x, z int) uint64 {
	ux := uint64(uint32(int32(x)))
	uz := uint64(uint32(int32(z)))
	v := uint64(seed) ^ (ux * 0x9e3779b97f4a7c15) ^ (uz * 0xbf58476d1ce4e5b9)
	return mix64(v)
}

// SeedHash folds a world seed string into 32 bits (FNV-1a).
func SeedHash(seed string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(seed))
	return h.Sum32()
}

// Mix32 is a murmur-style finalizer with full avalanche.
func Mix32(x uint32) uint32 {
	x ^= x >> 16
	x *= 0x7feb352d
	x ^= x >> 15
	x *= 0x846ca68b
	x ^= x >> 16
	return x
}

// Derive returns an independent sub-seed for salt.
func Derive(seed, salt uint32) uint32 {
	return Mix32(seed ^ Mix32(salt+0x9e3779b9))
}

// Unit maps a hash onto [0,1) using its top 53 bits; the conversion is exact.
func Unit(h uint64) float64 {
	return float64(h>>11) / (1 << 53)
}
