package tuning

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"voxelstreams.ai/internal/sim/stream"
	"voxelstreams.ai/internal/sim/terrain"
)

// Tuning is the on-disk generator configuration. Fields missing from the
// file keep their defaults.
type Tuning struct {
	Profile  string   `yaml:"profile"`
	Profiles Profiles `yaml:"profiles"`
	Terrain  Terrain  `yaml:"terrain"`
}

type Profiles struct {
	Stream Profile `yaml:"stream"`
	River  Profile `yaml:"river"`
}

type Profile struct {
	ChunkRadius         int     `yaml:"chunk_radius"`
	StartWeight         float64 `yaml:"start_weight"`
	BranchChance        float64 `yaml:"branch_chance"`
	DrainWidth          int     `yaml:"drain_width"`
	SourceCutoffWidth   int     `yaml:"source_cutoff_width"`
	SourceMaxWidth      int     `yaml:"source_max_width"`
	BranchDecreaseWidth int     `yaml:"branch_decrease_width"`
	SealMargin          float64 `yaml:"seal_margin"`
	SeaLevel            int     `yaml:"sea_level"`
	DrainSiteAttempts   int     `yaml:"drain_site_attempts"`
	RequireUphill       bool    `yaml:"require_uphill"`
}

type Terrain struct {
	RegionSize   int    `yaml:"region_size"`
	LakeGrid     int    `yaml:"lake_grid"`
	LakeRadius   int    `yaml:"lake_radius"`
	LakePermille uint64 `yaml:"lake_permille"`
	Amplitude    int    `yaml:"amplitude"`
	CellSize     int    `yaml:"cell_size"`
}

func Defaults() Tuning {
	tc := terrain.DefaultConfig()
	return Tuning{
		Profile: "stream",
		Profiles: Profiles{
			Stream: fromParams(stream.DefaultStreamParams()),
			River:  fromParams(stream.DefaultRiverParams()),
		},
		Terrain: Terrain{
			RegionSize:   tc.RegionSize,
			LakeGrid:     tc.LakeGrid,
			LakeRadius:   tc.LakeRadius,
			LakePermille: tc.LakePermille,
			Amplitude:    tc.Amplitude,
			CellSize:     tc.CellSize,
		},
	}
}

// Load reads path over Defaults. An empty path returns the defaults.
func Load(path string) (Tuning, error) {
	t := Defaults()
	if strings.TrimSpace(path) == "" {
		return t, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning yaml: %w", err)
	}
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("tuning yaml: %w", err)
	}
	return t, nil
}

func (t Tuning) Validate() error {
	if _, err := t.Params(t.Profile); err != nil {
		return err
	}
	if err := t.Profiles.Stream.Params().Validate(); err != nil {
		return fmt.Errorf("profile stream: %w", err)
	}
	if err := t.Profiles.River.Params().Validate(); err != nil {
		return fmt.Errorf("profile river: %w", err)
	}
	if err := t.TerrainConfig(0).Validate(); err != nil {
		return fmt.Errorf("terrain: %w", err)
	}
	return nil
}

// Params resolves a profile by name; "" means the selected profile.
func (t Tuning) Params(name string) (stream.Params, error) {
	if name == "" {
		name = t.Profile
	}
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "stream":
		return t.Profiles.Stream.Params(), nil
	case "river":
		return t.Profiles.River.Params(), nil
	}
	return stream.Params{}, fmt.Errorf("unknown profile %q", name)
}

// TerrainConfig builds the terrain settings, sharing sea level with the
// selected profile when it resolves.
func (t Tuning) TerrainConfig(seaLevel int) terrain.Config {
	if seaLevel == 0 {
		if p, err := t.Params(""); err == nil {
			seaLevel = p.SeaLevel
		}
	}
	return terrain.Config{
		RegionSize:   t.Terrain.RegionSize,
		LakeGrid:     t.Terrain.LakeGrid,
		LakeRadius:   t.Terrain.LakeRadius,
		LakePermille: t.Terrain.LakePermille,
		SeaLevel:     seaLevel,
		Amplitude:    t.Terrain.Amplitude,
		CellSize:     t.Terrain.CellSize,
	}
}

func (p Profile) Params() stream.Params {
	return stream.Params{
		ChunkRadius:         p.ChunkRadius,
		StartWeight:         p.StartWeight,
		BranchChance:        p.BranchChance,
		DrainWidth:          p.DrainWidth,
		SourceCutoffWidth:   p.SourceCutoffWidth,
		SourceMaxWidth:      p.SourceMaxWidth,
		BranchDecreaseWidth: p.BranchDecreaseWidth,
		SealMargin:          p.SealMargin,
		SeaLevel:            p.SeaLevel,
		DrainSiteAttempts:   p.DrainSiteAttempts,
		RequireUphill:       p.RequireUphill,
	}
}

func fromParams(p stream.Params) Profile {
	return Profile{
		ChunkRadius:         p.ChunkRadius,
		StartWeight:         p.StartWeight,
		BranchChance:        p.BranchChance,
		DrainWidth:          p.DrainWidth,
		SourceCutoffWidth:   p.SourceCutoffWidth,
		SourceMaxWidth:      p.SourceMaxWidth,
		BranchDecreaseWidth: p.BranchDecreaseWidth,
		SealMargin:          p.SealMargin,
		SeaLevel:            p.SeaLevel,
		DrainSiteAttempts:   p.DrainSiteAttempts,
		RequireUphill:       p.RequireUphill,
	}
}
