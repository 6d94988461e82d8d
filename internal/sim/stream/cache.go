package stream

import (
	"sort"

	"voxelstreams.ai/internal/sim/stream/xz"
)

// FailReason says why an origin holds no structure.
type FailReason string

const (
	FailStartRoll      FailReason = "start_roll"
	FailNoDrainSite    FailReason = "no_drain_site"
	FailDrainCollision FailReason = "drain_collision"
	FailNoBranch       FailReason = "no_branch"
	FailRestored       FailReason = "restored"
)

// Cache memoizes generation results for one world session, including
// negative results. It is the sealed-structure index every new piece is
// tested against. Not safe for concurrent use; hosts serialize access.
type Cache struct {
	generated map[ChunkKey]*Structure
	failed    map[ChunkKey]FailReason
	order     []*Structure
}

func NewCache() *Cache {
	return &Cache{
		generated: map[ChunkKey]*Structure{},
		failed:    map[ChunkKey]FailReason{},
	}
}

// Get returns the sealed structure for origin, if one was generated.
func (c *Cache) Get(origin ChunkKey) (*Structure, bool) {
	s, ok := c.generated[origin]
	return s, ok
}

// Failed reports whether origin is cached as having no structure.
func (c *Cache) Failed(origin ChunkKey) (FailReason, bool) {
	r, ok := c.failed[origin]
	return r, ok
}

// Known reports whether origin has any cached outcome.
func (c *Cache) Known(origin ChunkKey) bool {
	if _, ok := c.generated[origin]; ok {
		return true
	}
	_, ok := c.failed[origin]
	return ok
}

// Structures returns sealed structures in the order they were stored.
func (c *Cache) Structures() []*Structure { return c.order }

// FailedOrigins returns the negative cache sorted by (CX, CZ).
func (c *Cache) FailedOrigins() []ChunkKey {
	keys := make([]ChunkKey, 0, len(c.failed))
	for k := range c.failed {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].CX != keys[j].CX {
			return keys[i].CX < keys[j].CX
		}
		return keys[i].CZ < keys[j].CZ
	})
	return keys
}

func (c *Cache) Len() int { return len(c.generated) + len(c.failed) }

func (c *Cache) store(s *Structure) {
	if !s.sealed {
		panic("stream: caching an unsealed structure")
	}
	c.generated[s.Origin] = s
	c.order = append(c.order, s)
}

func (c *Cache) markFailed(origin ChunkKey, reason FailReason) {
	c.failed[origin] = reason
}

// intersectsSealed tests box against every sealed structure.
func (c *Cache) intersectsSealed(box xz.Range) bool {
	for _, s := range c.order {
		if s.IntersectsBox(box) {
			return true
		}
	}
	return false
}
