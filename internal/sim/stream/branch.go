package stream

import "voxelstreams.ai/internal/sim/stream/xz"

// Branch is an uncommitted chain of pieces headed by its join piece. It is
// either committed whole into a Structure or dropped.
type Branch struct {
	join   *Piece
	pieces []*Piece
}

func newBranch(join *Piece) *Branch {
	return &Branch{join: join, pieces: []*Piece{join}}
}

func (b *Branch) Join() *Piece     { return b.join }
func (b *Branch) Pieces() []*Piece { return b.pieces }
func (b *Branch) Last() *Piece     { return b.pieces[len(b.pieces)-1] }
func (b *Branch) push(p *Piece)    { b.pieces = append(b.pieces, p) }
func (b *Branch) pop()             { b.pieces = b.pieces[:len(b.pieces)-1] }
func (b *Branch) size() int        { return len(b.pieces) }

func (b *Branch) intersects(box xz.Range, ignore ...*Piece) bool {
	return anyIntersects(b.pieces, box, ignore)
}

func (b *Branch) maxSurfaceHeight() int {
	m := b.pieces[0].SurfaceHeight
	for _, p := range b.pieces[1:] {
		m = max(m, p.SurfaceHeight)
	}
	return m
}

func anyIntersects(pieces []*Piece, box xz.Range, ignore []*Piece) bool {
outer:
	for _, p := range pieces {
		for _, ig := range ignore {
			if p == ig {
				continue outer
			}
		}
		if p.box.Intersects(box) {
			return true
		}
	}
	return false
}
