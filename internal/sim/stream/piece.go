package stream

import (
	"fmt"
	"math"

	"voxelstreams.ai/internal/sim/stream/flow"
	"voxelstreams.ai/internal/sim/stream/templates"
	"voxelstreams.ai/internal/sim/stream/xz"
)

// Piece is a template instantiated at a width and world position.
//
// A piece references the piece immediately downstream of it (toward the
// drain) but never owns it; links only ever point rootward, so chains are
// acyclic.
type Piece struct {
	Template *templates.Template
	Width    int
	Height   int // height order: sea level at the drain, +1 per piece upstream

	// SurfaceHeight is the origin's surface height, shared by every piece of
	// one generation.
	SurfaceHeight int

	X, Z float64

	// Anchors relative to (X, Z), scaled to Width.
	Upstream   templates.Anchor
	Downstream templates.Anchor

	down  *Piece
	box   xz.Range
	flows []flow.Flow
}

// NewPiece builds a piece from a template. When down is non-nil the piece is
// positioned so its downstream anchor lands on down's upstream anchor and
// (x, z) are ignored; otherwise (x, z) is the piece origin.
//
// Chaining onto a piece whose upstream direction disagrees with t's
// downstream direction panics: that only happens with a broken catalog.
func NewPiece(t *templates.Template, down *Piece, width, height int, x, z float64) *Piece {
	if width < 2 {
		panic(fmt.Sprintf("stream: piece width %d too small", width))
	}
	p := &Piece{
		Template: t,
		Width:    width,
		Height:   height,
		down:     down,
		flows:    scaleFlows(t, width),
	}

	s := float64(width) / templates.Size
	p.Upstream = templates.Anchor{Dir: t.Upstream.Dir, X: t.Upstream.X * s, Z: t.Upstream.Z * s}
	p.Downstream = templates.Anchor{Dir: t.Downstream.Dir, X: t.Downstream.X * s, Z: t.Downstream.Z * s}

	if down != nil {
		if !down.Template.HasUpstream {
			panic(fmt.Sprintf("stream: cannot chain %v onto %v: it has no upstream anchor", t, down.Template))
		}
		if down.Upstream.Dir != p.Downstream.Dir {
			panic(fmt.Sprintf("stream: cannot chain %v (downstream %s) onto %v (upstream %s)",
				t, p.Downstream.Dir, down.Template, down.Upstream.Dir))
		}
		x = down.X + down.Upstream.X - p.Downstream.X
		z = down.Z + down.Upstream.Z - p.Downstream.Z
	}
	p.X, p.Z = x, z
	p.box = xz.New(x, z, float64(width), float64(width))
	return p
}

// scaleFlows resamples the template grid to width x width. Edge cells take
// the nearest template cell; interior cells blend their four neighbours.
func scaleFlows(t *templates.Template, width int) []flow.Flow {
	out := make([]flow.Flow, width*width)
	if width == templates.Size {
		for z := 0; z < width; z++ {
			for x := 0; x < width; x++ {
				out[x+width*z] = t.Flow(x, z)
			}
		}
		return out
	}

	f := float64(templates.Size-1) / float64(width-1)
	for iz := 0; iz < width; iz++ {
		for ix := 0; ix < width; ix++ {
			px := float64(ix) * f
			pz := float64(iz) * f
			if ix == 0 || iz == 0 || ix == width-1 || iz == width-1 {
				out[ix+width*iz] = t.Flow(int(math.Round(px)), int(math.Round(pz)))
				continue
			}
			x0, z0 := int(px), int(pz)
			out[ix+width*iz] = flow.Lerp(
				t.Flow(x0, z0), t.Flow(x0+1, z0),
				t.Flow(x0, z0+1), t.Flow(x0+1, z0+1),
				px-float64(x0), pz-float64(z0),
			)
		}
	}
	return out
}

func (p *Piece) Box() xz.Range { return p.box }

// Down returns the piece this one drains into, or nil for a drain or a
// restored root.
func (p *Piece) Down() *Piece { return p.down }

func (p *Piece) Category() templates.Category { return p.Template.Category }

func (p *Piece) Flow(x, z int) flow.Flow {
	if x < 0 || z < 0 || x >= p.Width || z >= p.Width {
		panic(fmt.Sprintf("stream: flow index out of range x=%d z=%d width=%d", x, z, p.Width))
	}
	return p.flows[x+p.Width*z]
}

// UpstreamPoint is the absolute position of the upstream anchor.
func (p *Piece) UpstreamPoint() (float64, float64) {
	return p.X + p.Upstream.X, p.Z + p.Upstream.Z
}

// DownstreamPoint is the absolute position of the downstream anchor.
func (p *Piece) DownstreamPoint() (float64, float64) {
	return p.X + p.Downstream.X, p.Z + p.Downstream.Z
}

func (p *Piece) String() string {
	return fmt.Sprintf("%v w=%d h=%d at (%.2f,%.2f)", p.Template, p.Width, p.Height, p.X, p.Z)
}
