package stream

import (
	"slices"
	"testing"

	"github.com/google/go-cmp/cmp"

	"voxelstreams.ai/internal/sim/mathx"
	"voxelstreams.ai/internal/sim/stream/templates"
	"voxelstreams.ai/internal/sim/terrain"
)

func newTestGenerator(t *testing.T, seed int64, p Params, terrain Terrain, sink EventSink) *Generator {
	t.Helper()
	g, err := New(Config{Seed: seed, Params: p, Terrain: terrain, Sink: sink})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return g
}

// firstGenerated finds a seed whose origin generates under the river
// profile, which always rolls to start.
func firstGenerated(t *testing.T, origin ChunkKey) (*Generator, *Structure) {
	t.Helper()
	for seed := int64(1); seed <= 64; seed++ {
		g := newTestGenerator(t, seed, DefaultRiverParams(), &flatTerrain{y: 70}, nil)
		if s := g.GenerateAt(origin); s != nil {
			return g, s
		}
	}
	t.Fatalf("no seed generated a structure at %v", origin)
	return nil, nil
}

func TestNew_Validates(t *testing.T) {
	if _, err := New(Config{Params: DefaultStreamParams()}); err == nil {
		t.Fatalf("expected error without terrain")
	}
	p := DefaultStreamParams()
	p.SourceMaxWidth = 2
	if _, err := New(Config{Params: p, Terrain: &flatTerrain{}}); err == nil {
		t.Fatalf("expected params error")
	}
}

func TestGenerateAt_StartRollFailureIsCached(t *testing.T) {
	const seed = 42
	var origin ChunkKey
	found := false
	for x := 0; x < 64 && !found; x++ {
		if mathx.SeedChunk(seed, x, 0).Float64() >= 0.5 {
			origin, found = ChunkKey{CX: x}, true
		}
	}
	if !found {
		t.Fatalf("no origin rolled above the start weight")
	}

	terrain := &flatTerrain{y: 70}
	sink := &recordingSink{}
	g := newTestGenerator(t, seed, DefaultStreamParams(), terrain, sink)
	if s := g.GenerateAt(origin); s != nil {
		t.Fatalf("expected no structure")
	}
	if r, ok := g.Cache().Failed(origin); !ok || r != FailStartRoll {
		t.Fatalf("cached reason: %q ok=%v", r, ok)
	}
	if len(sink.events) != 1 || sink.events[0].Draws != 1 {
		t.Fatalf("events: %+v", sink.events)
	}
	if terrain.calls != 0 {
		t.Fatalf("terrain consulted %d times", terrain.calls)
	}

	if s := g.GenerateAt(origin); s != nil {
		t.Fatalf("second call generated")
	}
	if len(sink.events) != 1 {
		t.Fatalf("second call was not served from cache")
	}
}

func TestGenerateAt_StructureShape(t *testing.T) {
	origin := ChunkKey{CX: 3, CZ: -2}
	g, s := firstGenerated(t, origin)
	checkStructure(t, g.Params(), s)
}

func TestGenerateAt_AdjacentDrainCollides(t *testing.T) {
	g, _ := firstGenerated(t, ChunkKey{CX: 3, CZ: -2})
	if s := g.GenerateAt(ChunkKey{CX: 3, CZ: -1}); s != nil {
		t.Fatalf("neighbour generated %d pieces next to a sealed structure", len(s.Pieces()))
	}
	if r, _ := g.Cache().Failed(ChunkKey{CX: 3, CZ: -1}); r != FailDrainCollision {
		t.Fatalf("reason: %q", r)
	}
}

func TestGenerateAt_DrainCollisionWithRestoredStructure(t *testing.T) {
	cache := NewCache()
	blocker := NewStructure(ChunkKey{CX: 50, CZ: 50}, 0)
	blocker.add(NewPiece(mustTemplate(t, "drain_1/r0"), nil, 20, 63, -2, -2))
	blocker.seal(16)
	cache.store(blocker)

	g, err := New(Config{Seed: 7, Params: DefaultRiverParams(), Terrain: &flatTerrain{y: 70}, Cache: cache})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if s := g.GenerateAt(ChunkKey{}); s != nil {
		t.Fatalf("generated over a sealed structure")
	}
	if r, _ := cache.Failed(ChunkKey{}); r != FailDrainCollision {
		t.Fatalf("reason: %q", r)
	}
}

func TestGenerateAt_NoDrainSite(t *testing.T) {
	g := newTestGenerator(t, 5, DefaultRiverParams(), dryTerrain{}, nil)
	if s := g.GenerateAt(ChunkKey{CX: 1, CZ: 1}); s != nil {
		t.Fatalf("generated without a drain site")
	}
	if r, _ := g.Cache().Failed(ChunkKey{CX: 1, CZ: 1}); r != FailNoDrainSite {
		t.Fatalf("reason: %q", r)
	}
}

type dryTerrain struct{}

func (dryTerrain) IsDrainSite(x, z int) bool  { return false }
func (dryTerrain) SurfaceHeight(x, z int) int { return 80 }

func TestQueryAround_Deterministic(t *testing.T) {
	run := func() ([]StructureRecord, []FailedRecord) {
		g := newTestGenerator(t, 1337, DefaultRiverParams(), &flatTerrain{y: 70}, nil)
		g.QueryAround(ChunkKey{CX: 2, CZ: -1}, 3)
		var recs []StructureRecord
		for _, s := range g.Cache().Structures() {
			recs = append(recs, Export(s))
		}
		return recs, g.Cache().ExportFailed()
	}
	s1, f1 := run()
	s2, f2 := run()
	if diff := cmp.Diff(s1, s2); diff != "" {
		t.Fatalf("structures differ (-first +second):\n%s", diff)
	}
	if diff := cmp.Diff(f1, f2); diff != "" {
		t.Fatalf("failed origins differ (-first +second):\n%s", diff)
	}
}

func checkDisjoint(t *testing.T, seed int64, all []*Structure) {
	t.Helper()
	for i := range all {
		for j := i + 1; j < len(all); j++ {
			for _, a := range all[i].boxes {
				for _, b := range all[j].boxes {
					if a.Intersects(b) {
						t.Fatalf("seed %d: %v and %v overlap: %v %v", seed, all[i].Origin, all[j].Origin, a, b)
					}
				}
			}
		}
	}
}

func TestQueryAround_SealedStructuresNeverOverlap(t *testing.T) {
	for seed := int64(1); seed <= 4; seed++ {
		g := newTestGenerator(t, seed, DefaultRiverParams(), &flatTerrain{y: 70}, nil)
		g.QueryAround(ChunkKey{}, 4)
		checkDisjoint(t, seed, g.Cache().Structures())
	}
}

func TestQueryAround_StreamProfileOnTerrain(t *testing.T) {
	total := 0
	for seed := int64(1); seed <= 6; seed++ {
		tp, err := terrain.New(seed, terrain.DefaultConfig())
		if err != nil {
			t.Fatalf("terrain: %v", err)
		}
		g := newTestGenerator(t, seed, DefaultStreamParams(), tp, nil)
		g.QueryAround(ChunkKey{CX: 5, CZ: -3}, 10)

		all := g.Cache().Structures()
		total += len(all)
		for _, s := range all {
			checkStructure(t, g.Params(), s)
			top := slices.Max(tp.HeightMap(s.Origin.CX, s.Origin.CZ))
			for _, pc := range s.Pieces() {
				if pc.SurfaceHeight != top {
					t.Fatalf("seed %d: %v tagged %d, origin surface is %d", seed, pc, pc.SurfaceHeight, top)
				}
			}
		}
		checkDisjoint(t, seed, all)
	}
	if total == 0 {
		t.Fatalf("stream profile produced no structures on generated terrain")
	}
}

func TestQueryAround_ServesCachedOrigins(t *testing.T) {
	terrain := &flatTerrain{y: 70}
	sink := &recordingSink{}
	g := newTestGenerator(t, 99, DefaultStreamParams(), terrain, sink)

	first := g.QueryAround(ChunkKey{CX: -3, CZ: 4}, 2)
	if g.Cache().Len() != 25 || len(sink.events) != 25 {
		t.Fatalf("cache=%d events=%d", g.Cache().Len(), len(sink.events))
	}
	calls := terrain.calls

	second := g.QueryAround(ChunkKey{CX: -3, CZ: 4}, 2)
	if terrain.calls != calls || len(sink.events) != 25 {
		t.Fatalf("cached origins were re-attempted")
	}
	if len(first) != len(second) {
		t.Fatalf("results differ: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("result %d is a different structure", i)
		}
	}
}

// checkStructure asserts the shape every sealed structure must have.
func checkStructure(t *testing.T, p Params, s *Structure) {
	t.Helper()
	if !s.Sealed() {
		t.Fatalf("structure not sealed")
	}
	drains, sources := 0, 0
	for _, pc := range s.Pieces() {
		switch pc.Category() {
		case templates.Drain:
			drains++
			if pc.Width != p.DrainWidth || pc.Height != p.SeaLevel {
				t.Fatalf("drain %v", pc)
			}
		case templates.Source:
			sources++
		}
		if !pc.Box().ContainedIn(s.Extent()) {
			t.Fatalf("%v outside extent %v", pc, s.Extent())
		}
	}
	if drains != 1 || sources < 1 {
		t.Fatalf("drains=%d sources=%d", drains, sources)
	}
	checkChain(t, s.Pieces())

	for bi, b := range s.Branches() {
		last := b[len(b)-1]
		if last.Category() != templates.Source {
			t.Fatalf("branch %d ends in %v", bi, last.Category())
		}
		if last.Width < p.SourceCutoffWidth || last.Width > p.SourceMaxWidth {
			t.Fatalf("branch %d source width %d", bi, last.Width)
		}
		for i := 1; i < len(b); i++ {
			if b[i].Width >= b[i-1].Width {
				t.Fatalf("branch %d widths not decreasing: %v", bi, widths(b))
			}
			if b[i].Height != b[i-1].Height+1 {
				t.Fatalf("branch %d heights not increasing by one", bi)
			}
		}
	}
	if s.Pieces()[0].Category() != templates.Drain {
		t.Fatalf("first piece is %v", s.Pieces()[0].Category())
	}
}
