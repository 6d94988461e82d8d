// Package mathx holds the deterministic hashing and random streams that
// generation is seeded from. Nothing here reads global state, so the same
// world seed reproduces the same world on every platform.
package mathx

import "math/bits"

const golden = 0x9e3779b97f4a7c15

// finalize is the splitmix64 output mix.
func finalize(z uint64) uint64 {
	z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
	z = (z ^ (z >> 27)) * 0x94d049bb133111eb
	return z ^ (z >> 31)
}

// Hash mixes a world seed with a column (block or chunk coordinates).
// Fields sampled at the same column use distinct salts; salt 0 is the one
// chunk generators are seeded from.
func Hash(seed int64, x, z, salt int) uint64 {
	ux := uint64(uint32(int32(x)))
	us := uint64(uint32(int32(salt)))
	uz := uint64(uint32(int32(z)))
	v := uint64(seed) ^ (ux * golden) ^ (us * 0xc2b2ae3d27d4eb4f) ^ (uz * 0xbf58476d1ce4e5b9)
	return finalize(v + golden)
}

// Rng is a splitmix64 stream. Callers seed it through SeedChunk so draws are
// reproducible per chunk regardless of exploration order.
type Rng struct {
	state uint64
	draws uint64
}

// SeedChunk derives the generator for one origin chunk of a world.
func SeedChunk(worldSeed int64, cx, cz int) *Rng {
	return &Rng{state: Hash(worldSeed, cx, cz, 0)}
}

func (r *Rng) Uint64() uint64 {
	r.state += golden
	r.draws++
	return finalize(r.state)
}

// Float64 returns a value in [0, 1).
func (r *Rng) Float64() float64 {
	return float64(r.Uint64()>>11) * (1.0 / (1 << 53))
}

// IntN returns a value in [0, n). n must be > 0.
func (r *Rng) IntN(n int) int {
	if n <= 0 {
		panic("mathx: IntN called with non-positive bound")
	}
	hi, _ := bits.Mul64(r.Uint64(), uint64(n))
	return int(hi)
}

// Draws reports how many values have been taken from the generator.
func (r *Rng) Draws() uint64 { return r.draws }
