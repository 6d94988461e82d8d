package templates

import (
	"strings"
	"testing"

	"voxelstreams.ai/internal/sim/stream/flow"
)

func TestDefault_SymmetryCoverage(t *testing.T) {
	lib := Default()
	for _, cat := range []Category{Drain, Source, Connector} {
		for _, d := range flow.Horizontal {
			if len(lib.Candidates(cat, d)) == 0 {
				t.Fatalf("no %s candidates facing %s", cat, d)
			}
		}
	}
	// 2 drains + 2 sources + 3 connectors, 8 variants each.
	if lib.Len() != 7*8 {
		t.Fatalf("library has %d variants, want %d", lib.Len(), 7*8)
	}
}

func TestDefault_CandidatesMatchDirection(t *testing.T) {
	lib := Default()
	for _, cat := range []Category{Drain, Source, Connector} {
		for _, d := range flow.Horizontal {
			for _, tmpl := range lib.Candidates(cat, d) {
				if tmpl.Downstream.Dir != d || tmpl.Category != cat {
					t.Fatalf("%v listed under %s/%s", tmpl, cat, d)
				}
			}
		}
	}
}

func TestGet_RoundTripsIDs(t *testing.T) {
	lib := Default()
	for id := 0; id < lib.Len(); id++ {
		tmpl, ok := lib.Get(id)
		if !ok || tmpl.ID != id {
			t.Fatalf("Get(%d) = %v, %v", id, tmpl, ok)
		}
	}
	if _, ok := lib.Get(lib.Len()); ok {
		t.Fatalf("expected miss past the end")
	}
}

func TestRotateCW_Anchors(t *testing.T) {
	lib := Default()
	curve, _ := lib.Get(firstID(t, lib, "curve_1/r0"))
	r := RotateCW(*curve)
	// upstream WEST (8,6) -> NORTH (2,8); downstream NORTH (3,0) -> EAST (8,3)
	if r.Upstream.Dir != flow.North || r.Upstream.X != 2 || r.Upstream.Z != 8 {
		t.Fatalf("rotated upstream = %+v", r.Upstream)
	}
	if r.Downstream.Dir != flow.East || r.Downstream.X != 8 || r.Downstream.Z != 3 {
		t.Fatalf("rotated downstream = %+v", r.Downstream)
	}
	// cell (x,z) moves to (Size-1-z, x) and its flow turns clockwise
	for x := 0; x < Size; x++ {
		for z := 0; z < Size; z++ {
			if got, want := r.Flow(Size-1-z, x), curve.Flow(x, z).RotateCW(); got != want {
				t.Fatalf("cell (%d,%d): got %v want %v", x, z, got, want)
			}
		}
	}
	back := RotateCW(RotateCW(RotateCW(r)))
	if back.flows != curve.flows || back.Upstream != curve.Upstream || back.Downstream != curve.Downstream {
		t.Fatalf("four rotations did not restore the template")
	}
}

func TestMirror(t *testing.T) {
	lib := Default()
	curve, _ := lib.Get(firstID(t, lib, "curve_1/r0"))
	m := Mirror(*curve)
	if m.Upstream.Dir != flow.East || m.Upstream.X != 0 || m.Upstream.Z != 6 {
		t.Fatalf("mirrored upstream = %+v", m.Upstream)
	}
	if m.Downstream.Dir != flow.North || m.Downstream.X != 5 {
		t.Fatalf("mirrored downstream = %+v", m.Downstream)
	}
	if got := m.Flow(Size-1-2, 0); got != curve.Flow(2, 0).MirrorX() {
		t.Fatalf("mirrored cell = %v", got)
	}
	mm := Mirror(m)
	if mm.flows != curve.flows || mm.Upstream != curve.Upstream {
		t.Fatalf("double mirror did not restore the template")
	}
}

func TestParse_Rejects(t *testing.T) {
	cases := []struct {
		name string
		raw  string
	}{
		{name: "not json", raw: `{`},
		{name: "unknown category", raw: strings.Replace(string(defaultCatalog), `"category": "drain"`, `"category": "lake"`, 1)},
		{name: "bad token", raw: strings.Replace(string(defaultCatalog), `"___ ___ N_W NNN NNN NNE N_E ___"`, `"___ ___ N_W NNN NNN NNE NXE ___"`, 1)},
		{name: "short row", raw: strings.Replace(string(defaultCatalog), `"___ ___ N_W NNN NNN NNE N_E ___"`, `"___ ___ N_W NNN NNN NNE N_E"`, 1)},
		{name: "wrong size", raw: strings.Replace(string(defaultCatalog), `"size": 8`, `"size": 6`, 1)},
		{name: "connector without upstream", raw: `{"size":8,"templates":[{"name":"c","category":"connector","downstream":{"direction":"NORTH","x":3,"z":0},"grid":["___ ___ ___ ___ ___ ___ ___ ___","___ ___ ___ ___ ___ ___ ___ ___","___ ___ ___ ___ ___ ___ ___ ___","___ ___ ___ ___ ___ ___ ___ ___","___ ___ ___ ___ ___ ___ ___ ___","___ ___ ___ ___ ___ ___ ___ ___","___ ___ ___ ___ ___ ___ ___ ___","___ ___ ___ ___ ___ ___ ___ ___"]}]}`},
	}
	for _, c := range cases {
		if _, err := Parse([]byte(c.raw)); err == nil {
			t.Fatalf("%s: expected error", c.name)
		}
	}
}

func TestParse_DigestTracksContent(t *testing.T) {
	a, err := Parse(defaultCatalog)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if a.Digest != Default().Digest {
		t.Fatalf("digest not stable")
	}
	edited := strings.Replace(string(defaultCatalog), `"name": "curve_1"`, `"name": "curve_one"`, 1)
	b, err := Parse([]byte(edited))
	if err != nil {
		t.Fatalf("Parse edited: %v", err)
	}
	if a.Digest == b.Digest {
		t.Fatalf("digest did not change with content")
	}
}

func firstID(t *testing.T, lib *Library, name string) int {
	t.Helper()
	for id := 0; id < lib.Len(); id++ {
		tmpl, _ := lib.Get(id)
		if tmpl.Name == name {
			return id
		}
	}
	t.Fatalf("template %q not found", name)
	return -1
}
