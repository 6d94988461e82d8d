// Package stream generates branching stream networks lazily, one origin
// chunk at a time. Every origin's result depends only on the world seed,
// the origin and the structures sealed before it, and no two sealed
// structures ever overlap.
package stream

import (
	"errors"
	"io"

	"github.com/charmbracelet/log"

	"voxelstreams.ai/internal/sim/mathx"
	"voxelstreams.ai/internal/sim/stream/flow"
	"voxelstreams.ai/internal/sim/stream/templates"
)

// Terrain is the world the generator carves into.
type Terrain interface {
	// IsDrainSite reports whether the block column may host a drain,
	// e.g. it lies in a lake or river area.
	IsDrainSite(x, z int) bool
	// SurfaceHeight is the terrain surface y at the block column.
	SurfaceHeight(x, z int) int
}

type Config struct {
	Seed    int64
	Params  Params
	Library *templates.Library // nil uses templates.Default()
	Terrain Terrain
	Cache   *Cache // nil starts an empty session
	Logger  *log.Logger
	Sink    EventSink
}

// Generator owns one world session's cache. It is not safe for concurrent
// use.
type Generator struct {
	seed    int64
	p       Params
	lib     *templates.Library
	terrain Terrain
	cache   *Cache
	logger  *log.Logger
	sink    EventSink
}

func New(cfg Config) (*Generator, error) {
	if cfg.Terrain == nil {
		return nil, errors.New("stream: terrain is required")
	}
	if err := cfg.Params.Validate(); err != nil {
		return nil, err
	}
	g := &Generator{
		seed:    cfg.Seed,
		p:       cfg.Params,
		lib:     cfg.Library,
		terrain: cfg.Terrain,
		cache:   cfg.Cache,
		logger:  cfg.Logger,
		sink:    cfg.Sink,
	}
	if g.lib == nil {
		g.lib = templates.Default()
	}
	if g.cache == nil {
		g.cache = NewCache()
	}
	if g.logger == nil {
		g.logger = log.New(io.Discard)
	}
	return g, nil
}

func (g *Generator) Seed() int64                 { return g.seed }
func (g *Generator) Params() Params              { return g.p }
func (g *Generator) Library() *templates.Library { return g.lib }
func (g *Generator) Cache() *Cache               { return g.cache }

// GenerateAt returns the structure rooted at origin, generating it on first
// use. A nil result means the origin holds no structure; that outcome is
// cached too and never re-attempted.
func (g *Generator) GenerateAt(origin ChunkKey) *Structure {
	if s, ok := g.cache.Get(origin); ok {
		return s
	}
	if _, ok := g.cache.Failed(origin); ok {
		return nil
	}

	rng := mathx.SeedChunk(g.seed, origin.CX, origin.CZ)
	s, reason := g.build(origin, rng)
	ev := Event{Origin: origin, Draws: rng.Draws()}
	if s == nil {
		g.cache.markFailed(origin, reason)
		ev.Outcome, ev.Reason = OutcomeFailed, reason
		g.logger.Debug("no stream", "origin", origin, "reason", reason)
	} else {
		g.cache.store(s)
		ev.Outcome = OutcomeGenerated
		ev.Pieces, ev.Branches, ev.Bounds = len(s.pieces), len(s.branches), s.bounds
		g.logger.Info("generated stream", "origin", origin, "pieces", len(s.pieces), "branches", len(s.branches))
	}
	if g.sink != nil {
		if err := g.sink.RecordGeneration(ev); err != nil {
			g.logger.Warn("record generation", "origin", origin, "err", err)
		}
	}
	return s
}

func (g *Generator) build(origin ChunkKey, rnd *mathx.Rng) (*Structure, FailReason) {
	if !(rnd.Float64() < g.p.StartWeight) {
		return nil, FailStartRoll
	}

	x, z, ok := g.findDrainSite(origin, rnd)
	if !ok {
		return nil, FailNoDrainSite
	}

	s := NewStructure(origin, g.p.Radius())
	surface := g.originSurface(origin)
	drain := g.drainPiece(x, z, rnd)
	drain.SurfaceHeight = surface
	box := drain.Box()
	if !box.ContainedIn(s.Extent()) || g.cache.intersectsSealed(box.Expand(g.p.SealMargin)) {
		return nil, FailDrainCollision
	}

	gr := &grower{p: g.p, lib: g.lib, rnd: rnd, structure: s, sealed: g.cache, surface: surface}
	queue := []*Branch{newBranch(drain)}
	for len(queue) > 0 {
		b := queue[0]
		queue = queue[1:]
		state, tributaries := gr.grow(b)
		if state != terminatedOK {
			continue
		}
		s.addBranch(b)
		queue = append(queue, tributaries...)
	}
	if len(s.branches) == 0 {
		return nil, FailNoBranch
	}
	s.seal(g.p.SealMargin)
	return s, ""
}

func (g *Generator) findDrainSite(origin ChunkKey, rnd *mathx.Rng) (int, int, bool) {
	bx, bz := origin.MinBlock()
	for i := 0; i < g.p.DrainSiteAttempts; i++ {
		x := bx + rnd.IntN(ChunkSize)
		z := bz + rnd.IntN(ChunkSize)
		if g.terrain.IsDrainSite(x, z) {
			return x, z, true
		}
	}
	return 0, 0, false
}

// drainPiece orients a random drain template and places its scaled
// downstream anchor on the site.
func (g *Generator) drainPiece(x, z int, rnd *mathx.Rng) *Piece {
	dir := flow.Horizontal[rnd.IntN(len(flow.Horizontal))]
	cands := g.lib.Candidates(templates.Drain, dir)
	t := cands[rnd.IntN(len(cands))]
	s := float64(g.p.DrainWidth) / templates.Size
	return NewPiece(t, nil, g.p.DrainWidth, g.p.SeaLevel,
		float64(x)-t.Downstream.X*s, float64(z)-t.Downstream.Z*s)
}

// originSurface is the highest surface column of the origin chunk. Every
// piece of one generation is tagged with it.
func (g *Generator) originSurface(origin ChunkKey) int {
	bx, bz := origin.MinBlock()
	top := g.terrain.SurfaceHeight(bx, bz)
	for dz := 0; dz < ChunkSize; dz++ {
		for dx := 0; dx < ChunkSize; dx++ {
			top = max(top, g.terrain.SurfaceHeight(bx+dx, bz+dz))
		}
	}
	return top
}

// QueryAround returns the structures rooted in the square of chunks within
// radius of center, generating each origin on demand. Order is x-major.
func (g *Generator) QueryAround(center ChunkKey, radius int) []*Structure {
	var out []*Structure
	for x := center.CX - radius; x <= center.CX+radius; x++ {
		for z := center.CZ - radius; z <= center.CZ+radius; z++ {
			if s := g.GenerateAt(ChunkKey{CX: x, CZ: z}); s != nil {
				out = append(out, s)
			}
		}
	}
	return out
}

// PaintChunk collects the carved cells of every structure that can reach
// chunk. heights is the chunk's 16x16 surface map indexed x+16*z, or nil.
func (g *Generator) PaintChunk(chunk ChunkKey, heights []int) ([]Cell, error) {
	return Paint(g.QueryAround(chunk, g.p.ChunkRadius), chunk, heights)
}
