package stream

import (
	"errors"
	"fmt"
	"math"

	"voxelstreams.ai/internal/sim/stream/flow"
	"voxelstreams.ai/internal/sim/stream/xz"
)

// Cell is one carved column inside a chunk.
type Cell struct {
	LocalX, LocalZ int
	Flow           flow.Flow
	Y              int
}

func (c Cell) String() string {
	return fmt.Sprintf("(%d,%d) %s y=%d", c.LocalX, c.LocalZ, c.Flow, c.Y)
}

// ErrHeightMapSize is returned when a chunk height map is not 16x16.
var ErrHeightMapSize = errors.New("stream: height map is not 16x16")

// Paint returns the carved cells of structures that land in chunk. Cells
// with no flow are skipped and when pieces overlap a column the last one
// painted wins. y comes from heights (x+16*z, surface map of the chunk)
// when given, else from the piece's surface sample.
func Paint(structures []*Structure, chunk ChunkKey, heights []int) ([]Cell, error) {
	if heights != nil && len(heights) != ChunkSize*ChunkSize {
		return nil, fmt.Errorf("%w: got %d samples", ErrHeightMapSize, len(heights))
	}
	bx, bz := chunk.MinBlock()
	area := xz.New(float64(bx), float64(bz), ChunkSize, ChunkSize)

	var cols [ChunkSize * ChunkSize]Cell
	var set [ChunkSize * ChunkSize]bool
	for _, s := range structures {
		for _, p := range s.pieces {
			if !p.box.Intersects(area) {
				continue
			}
			px, pz := int(math.Floor(p.X)), int(math.Floor(p.Z))
			for iz := 0; iz < p.Width; iz++ {
				for ix := 0; ix < p.Width; ix++ {
					wx, wz := px+ix, pz+iz
					if ChunkAt(wx, wz) != chunk {
						continue
					}
					f := p.Flow(ix, iz)
					if f == flow.None {
						continue
					}
					lx, lz := wx-bx, wz-bz
					y := p.SurfaceHeight
					if heights != nil {
						y = heights[lx+ChunkSize*lz]
					}
					cols[lx+ChunkSize*lz] = Cell{LocalX: lx, LocalZ: lz, Flow: f, Y: y}
					set[lx+ChunkSize*lz] = true
				}
			}
		}
	}

	// Column index order is already (z, x).
	var out []Cell
	for i, ok := range set {
		if ok {
			out = append(out, cols[i])
		}
	}
	return out, nil
}

// FlowGrid renders cells into a dense 16x16 grid indexed x+16*z.
func FlowGrid(cells []Cell) []flow.Flow {
	grid := make([]flow.Flow, ChunkSize*ChunkSize)
	for i := range grid {
		grid[i] = flow.None
	}
	for _, c := range cells {
		grid[c.LocalX+ChunkSize*c.LocalZ] = c.Flow
	}
	return grid
}
