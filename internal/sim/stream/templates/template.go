// Package templates owns the hand-authored stream piece catalog and the
// symmetry expansion that derives every rotated and mirrored variant.
package templates

import (
	"fmt"

	"voxelstreams.ai/internal/sim/stream/flow"
)

// Size is the edge length of the canonical template grid.
const Size = 8

type Category uint8

const (
	Drain Category = iota
	Source
	Connector
)

var categoryNames = [...]string{"drain", "source", "connector"}

func (c Category) String() string {
	if int(c) < len(categoryNames) {
		return categoryNames[c]
	}
	return fmt.Sprintf("Category(%d)", uint8(c))
}

func ParseCategory(s string) (Category, error) {
	for i, n := range categoryNames {
		if n == s {
			return Category(i), nil
		}
	}
	return Drain, fmt.Errorf("unknown category %q", s)
}

// Anchor is a point on a template edge plus the flow direction through it.
type Anchor struct {
	Dir  flow.Direction
	X, Z float64
}

// Template is one immutable catalog variant. Upstream is meaningless when
// HasUpstream is false (source templates end a branch).
type Template struct {
	ID       int
	Name     string
	Category Category

	HasUpstream bool
	Upstream    Anchor
	Downstream  Anchor

	Rotation int
	Mirrored bool

	flows [Size * Size]flow.Flow
}

func (t *Template) Flow(x, z int) flow.Flow {
	if x < 0 || z < 0 || x >= Size || z >= Size {
		panic(fmt.Sprintf("templates: flow index out of range x=%d z=%d", x, z))
	}
	return t.flows[x+Size*z]
}

func (t *Template) String() string {
	return fmt.Sprintf("%s#%d", t.Name, t.ID)
}

func variantName(base string, rot int, mirrored bool) string {
	if mirrored {
		return fmt.Sprintf("%s/r%dm", base, rot)
	}
	return fmt.Sprintf("%s/r%d", base, rot)
}

// RotateCW turns a template a quarter clockwise about its centre:
// (x, z) -> (Size - z, x) for anchors and (Size-1-z, x) for cells.
func RotateCW(t Template) Template {
	out := t
	out.Rotation = (t.Rotation + 1) % 4
	out.Upstream = Anchor{Dir: t.Upstream.Dir.Clockwise(), X: Size - t.Upstream.Z, Z: t.Upstream.X}
	out.Downstream = Anchor{Dir: t.Downstream.Dir.Clockwise(), X: Size - t.Downstream.Z, Z: t.Downstream.X}
	for x := 0; x < Size; x++ {
		for z := 0; z < Size; z++ {
			out.flows[x+Size*z] = t.flows[z+Size*(Size-1-x)].RotateCW()
		}
	}
	return out
}

// Mirror reflects a template across the line x = Size/2. The other
// reflection is reachable by combining this one with rotations.
func Mirror(t Template) Template {
	out := t
	out.Mirrored = !t.Mirrored
	out.Upstream = Anchor{Dir: t.Upstream.Dir.MirrorX(), X: Size - t.Upstream.X, Z: t.Upstream.Z}
	out.Downstream = Anchor{Dir: t.Downstream.Dir.MirrorX(), X: Size - t.Downstream.X, Z: t.Downstream.Z}
	for x := 0; x < Size; x++ {
		for z := 0; z < Size; z++ {
			out.flows[x+Size*z] = t.flows[(Size-1-x)+Size*z].MirrorX()
		}
	}
	return out
}
