package stream

import (
	"fmt"

	"voxelstreams.ai/internal/sim/stream/xz"
)

type ChunkKey struct {
	CX int `json:"cx"`
	CZ int `json:"cz"`
}

func (k ChunkKey) String() string { return fmt.Sprintf("(%d,%d)", k.CX, k.CZ) }

// ChunkAt returns the chunk holding a block column. The shift floors
// negative coordinates.
func ChunkAt(x, z int) ChunkKey { return ChunkKey{CX: x >> 4, CZ: z >> 4} }

// MinBlock returns the world block coordinates of the chunk's north-west corner.
func (k ChunkKey) MinBlock() (int, int) { return k.CX * ChunkSize, k.CZ * ChunkSize }

// Structure is the committed network of one origin chunk. It only grows by
// whole branches and is frozen by seal, after which it is read-only.
type Structure struct {
	Origin ChunkKey

	extent   xz.Range
	radius   float64
	pieces   []*Piece
	boxes    []xz.Range
	branches [][]int
	bounds   xz.Range
	sealed   bool
}

// NewStructure creates an empty structure whose generation extent is the
// square of half-width radius around the origin chunk's corner block.
func NewStructure(origin ChunkKey, radius float64) *Structure {
	x, z := origin.MinBlock()
	return &Structure{
		Origin: origin,
		radius: radius,
		extent: xz.New(float64(x)-radius, float64(z)-radius, 2*radius, 2*radius),
	}
}

func (s *Structure) Extent() xz.Range { return s.extent }
func (s *Structure) Radius() float64  { return s.radius }
func (s *Structure) Pieces() []*Piece { return s.pieces }
func (s *Structure) Sealed() bool     { return s.sealed }

// Bounds covers every (expanded) piece box. Only meaningful once sealed.
func (s *Structure) Bounds() xz.Range { return s.bounds }

// Branches returns the committed branches as piece lists, join piece first.
func (s *Structure) Branches() [][]*Piece {
	out := make([][]*Piece, 0, len(s.branches))
	for _, idx := range s.branches {
		b := make([]*Piece, len(idx))
		for i, j := range idx {
			b[i] = s.pieces[j]
		}
		out = append(out, b)
	}
	return out
}

func (s *Structure) add(p *Piece) int {
	if s.sealed {
		panic("stream: add to sealed structure")
	}
	s.pieces = append(s.pieces, p)
	s.boxes = append(s.boxes, p.box)
	return len(s.pieces) - 1
}

func (s *Structure) addBranch(b *Branch) {
	idx := make([]int, 0, b.size())
	for _, p := range b.pieces {
		idx = append(idx, s.add(p))
	}
	s.branches = append(s.branches, idx)
}

// seal enlarges every piece box by margin and freezes the structure.
func (s *Structure) seal(margin float64) {
	if s.sealed {
		return
	}
	for i, p := range s.pieces {
		s.boxes[i] = p.box.Expand(margin)
		if i == 0 {
			s.bounds = s.boxes[i]
		} else {
			s.bounds = s.bounds.Union(s.boxes[i])
		}
	}
	s.sealed = true
}

// IntersectsBox tests against the stored piece boxes, which are the
// expanded ones once the structure is sealed.
func (s *Structure) IntersectsBox(box xz.Range) bool {
	if s.sealed && !s.bounds.Intersects(box) {
		return false
	}
	for _, b := range s.boxes {
		if b.Intersects(box) {
			return true
		}
	}
	return false
}

func (s *Structure) intersects(box xz.Range, ignore ...*Piece) bool {
	return anyIntersects(s.pieces, box, ignore)
}
