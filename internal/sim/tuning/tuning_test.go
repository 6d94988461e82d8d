package tuning

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"voxelstreams.ai/internal/sim/stream"
)

func TestDefaults_MatchGeneratorProfiles(t *testing.T) {
	d := Defaults()
	if err := d.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	p, err := d.Params("")
	if err != nil {
		t.Fatalf("Params: %v", err)
	}
	if diff := cmp.Diff(stream.DefaultStreamParams(), p); diff != "" {
		t.Fatalf("stream profile (-want +got):\n%s", diff)
	}
	r, _ := d.Params("river")
	if diff := cmp.Diff(stream.DefaultRiverParams(), r); diff != "" {
		t.Fatalf("river profile (-want +got):\n%s", diff)
	}
}

func TestLoad_OverlaysDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "streams.yaml")
	yml := `profile: river
profiles:
  river:
    start_weight: 0.25
    drain_site_attempts: 4
terrain:
  lake_permille: 500
`
	if err := os.WriteFile(path, []byte(yml), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	tu, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	p, err := tu.Params("")
	if err != nil {
		t.Fatalf("Params: %v", err)
	}
	want := stream.DefaultRiverParams()
	want.StartWeight = 0.25
	want.DrainSiteAttempts = 4
	if diff := cmp.Diff(want, p); diff != "" {
		t.Fatalf("river profile (-want +got):\n%s", diff)
	}
	tc := tu.TerrainConfig(0)
	if tc.LakePermille != 500 || tc.SeaLevel != want.SeaLevel || tc.CellSize != Defaults().Terrain.CellSize {
		t.Fatalf("terrain config: %+v", tc)
	}
}

func TestLoad_Rejects(t *testing.T) {
	cases := map[string]string{
		"unknown profile": "profile: ocean\n",
		"bad widths":      "profiles:\n  stream:\n    source_max_width: 3\n",
		"bad yaml":        "profiles: [\n",
	}
	for name, yml := range cases {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "streams.yaml")
			if err := os.WriteFile(path, []byte(yml), 0o644); err != nil {
				t.Fatalf("write: %v", err)
			}
			if _, err := Load(path); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
	if _, err := Load(""); err != nil {
		t.Fatalf("empty path: %v", err)
	}
}
