// Package xz holds the axis-aligned rectangle used for every collision test
// in stream generation.
package xz

import "fmt"

// Range is an axis-aligned rectangle on the horizontal plane. Edges are
// inclusive for Intersects, so two ranges that only touch still collide.
type Range struct {
	XStart, ZStart float64
	XEnd, ZEnd     float64
}

func New(x, z, xSize, zSize float64) Range {
	return Range{XStart: x, ZStart: z, XEnd: x + xSize, ZEnd: z + zSize}
}

func (r Range) Intersects(o Range) bool {
	return !(r.XStart > o.XEnd || r.XEnd < o.XStart || r.ZStart > o.ZEnd || r.ZEnd < o.ZStart)
}

// ContainedIn reports whether all four edges of r lie within outer.
func (r Range) ContainedIn(outer Range) bool {
	return r.XStart >= outer.XStart && r.ZStart >= outer.ZStart && r.XEnd <= outer.XEnd && r.ZEnd <= outer.ZEnd
}

func (r Range) Expand(amount float64) Range {
	return Range{
		XStart: r.XStart - amount,
		ZStart: r.ZStart - amount,
		XEnd:   r.XEnd + amount,
		ZEnd:   r.ZEnd + amount,
	}
}

// Union returns the smallest range covering both.
func (r Range) Union(o Range) Range {
	return Range{
		XStart: min(r.XStart, o.XStart),
		ZStart: min(r.ZStart, o.ZStart),
		XEnd:   max(r.XEnd, o.XEnd),
		ZEnd:   max(r.ZEnd, o.ZEnd),
	}
}

func (r Range) Width() float64 { return r.XEnd - r.XStart }
func (r Range) Depth() float64 { return r.ZEnd - r.ZStart }

func (r Range) String() string {
	return fmt.Sprintf("[%.2f,%.2f]x[%.2f,%.2f]", r.XStart, r.XEnd, r.ZStart, r.ZEnd)
}
