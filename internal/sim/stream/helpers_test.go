package stream

import (
	"math"
	"testing"

	"voxelstreams.ai/internal/sim/stream/templates"
	"voxelstreams.ai/internal/sim/stream/xz"
)

func mustTemplate(t *testing.T, name string) *templates.Template {
	t.Helper()
	tmpl, ok := templates.Default().Lookup(name)
	if !ok {
		t.Fatalf("template %q not found", name)
	}
	return tmpl
}

// scriptedRand always picks the first candidate and returns a fixed roll.
type scriptedRand struct {
	roll  float64
	calls int
}

func (r *scriptedRand) Float64() float64 { r.calls++; return r.roll }
func (r *scriptedRand) IntN(int) int     { r.calls++; return 0 }

type noSealed struct{}

func (noSealed) intersectsSealed(xz.Range) bool { return false }

// flatTerrain accepts every drain site and counts calls.
type flatTerrain struct {
	y     int
	calls int
}

func (f *flatTerrain) IsDrainSite(x, z int) bool  { f.calls++; return true }
func (f *flatTerrain) SurfaceHeight(x, z int) int { f.calls++; return f.y }

type recordingSink struct{ events []Event }

func (r *recordingSink) RecordGeneration(ev Event) error {
	r.events = append(r.events, ev)
	return nil
}

func near(a, b float64) bool { return math.Abs(a-b) <= 1e-4 }

func checkChain(t *testing.T, pieces []*Piece) {
	t.Helper()
	for _, p := range pieces {
		d := p.Down()
		if d == nil {
			continue
		}
		ux, uz := d.UpstreamPoint()
		dx, dz := p.DownstreamPoint()
		if !near(ux, dx) || !near(uz, dz) {
			t.Fatalf("chain broken at %v: upstream of parent (%.4f,%.4f) vs downstream (%.4f,%.4f)", p, ux, uz, dx, dz)
		}
	}
}
