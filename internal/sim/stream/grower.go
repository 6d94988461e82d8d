package stream

import (
	"voxelstreams.ai/internal/sim/stream/templates"
	"voxelstreams.ai/internal/sim/stream/xz"
)

// Rand is the random source threaded through one origin's generation.
type Rand interface {
	Float64() float64
	IntN(n int) int
}

type growState uint8

const (
	growing growState = iota
	terminatedOK
	terminatedFail
)

func (s growState) String() string {
	switch s {
	case growing:
		return "GROWING"
	case terminatedOK:
		return "TERMINATED_OK"
	default:
		return "TERMINATED_FAIL"
	}
}

type sealedIndex interface {
	intersectsSealed(box xz.Range) bool
}

// grower extends the branches of one structure under construction.
type grower struct {
	p         Params
	lib       *templates.Library
	rnd       Rand
	structure *Structure
	sealed    sealedIndex
	surface   int // origin surface height given to every new piece
}

// grow runs a branch from its join piece until it ends in a source. The
// tributary branches it spawned are only returned on TERMINATED_OK.
func (g *grower) grow(b *Branch) (growState, []*Branch) {
	var tributaries []*Branch
	prev := b.Join()
	for prev.Width > g.p.SourceCutoffWidth {
		next := prev.Width - 1
		if next == g.p.SourceCutoffWidth {
			src := g.attach(b, prev, next, g.lib.Candidates(templates.Source, prev.Upstream.Dir), prev)
			if src != nil && g.uphill(b.maxSurfaceHeight(), src) {
				b.push(src)
				return terminatedOK, tributaries
			}
			return g.fallback(b, prev), tributaries
		}

		straight := g.attach(b, prev, next, g.lib.Candidates(templates.Connector, prev.Upstream.Dir), prev)
		if straight == nil || !g.uphill(b.maxSurfaceHeight(), straight) {
			return g.fallback(b, prev), tributaries
		}

		if g.rnd.Float64() < g.p.BranchChance {
			if t := g.tributary(b, prev, next-g.p.BranchDecreaseWidth, straight); t != nil {
				tributaries = append(tributaries, newBranch(t))
			}
		}

		b.push(straight)
		prev = straight
	}
	return terminatedFail, nil
}

func (g *grower) fallback(b *Branch, last *Piece) growState {
	if g.replaceLastWithSource(b, last) {
		return terminatedOK
	}
	return terminatedFail
}

// tributary tries a connector off prev that leaves in a different direction
// from straight. Widths at or below the cutoff could never reach a source,
// so they are not attempted.
func (g *grower) tributary(b *Branch, prev *Piece, width int, straight *Piece) *Piece {
	if width <= g.p.SourceCutoffWidth {
		return nil
	}
	all := g.lib.Candidates(templates.Connector, prev.Upstream.Dir)
	cands := make([]*templates.Template, 0, len(all))
	for _, t := range all {
		if t.Upstream.Dir != straight.Upstream.Dir {
			cands = append(cands, t)
		}
	}
	t := g.attach(b, prev, width, cands, prev)
	if t == nil || t.Template == straight.Template || t.Upstream.Dir == straight.Upstream.Dir {
		return nil
	}
	if !g.uphill(straight.SurfaceHeight, t) {
		return nil
	}
	return t
}

// replaceLastWithSource swaps the branch's last piece for a source of the
// same width hung off the piece before it.
func (g *grower) replaceLastWithSource(b *Branch, last *Piece) bool {
	before := last.Down()
	if last.Width > g.p.SourceMaxWidth || before == nil || b.size() <= 1 {
		return false
	}
	src := g.attach(b, before, last.Width, g.lib.Candidates(templates.Source, before.Upstream.Dir), before, last)
	if src == nil {
		return false
	}
	b.pop()
	b.push(src)
	return true
}

// attach draws one candidate and returns the positioned piece if its box
// passes every placement test. A rejected draw is not retried.
func (g *grower) attach(b *Branch, prev *Piece, width int, cands []*templates.Template, ignore ...*Piece) *Piece {
	if len(cands) == 0 {
		return nil
	}
	t := cands[g.rnd.IntN(len(cands))]
	p := NewPiece(t, prev, width, prev.Height+1, 0, 0)
	p.SurfaceHeight = g.surface

	box := p.Box()
	switch {
	case !box.ContainedIn(g.structure.Extent()):
		return nil
	case g.structure.intersects(box, ignore...):
		return nil
	case b.intersects(box, ignore...):
		return nil
	case g.sealed.intersectsSealed(box.Expand(g.p.SealMargin)):
		return nil
	}
	return p
}

// uphill reports whether p may sit upstream of terrain at height floor.
func (g *grower) uphill(floor int, p *Piece) bool {
	return !g.p.RequireUphill || floor <= p.SurfaceHeight
}
