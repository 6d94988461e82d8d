// Package terrain is a seeded, hash-based stand-in for a world's surface:
// lake and river clusters that can host drains, and a smooth height field.
package terrain

import (
	"fmt"

	"voxelstreams.ai/internal/sim/mathx"
)

type Biome string

const (
	Plains Biome = "PLAINS"
	Hills  Biome = "HILLS"
	River  Biome = "RIVER"
	Lake   Biome = "LAKE"
)

type Config struct {
	RegionSize int // biome region edge in blocks

	LakeGrid     int
	LakeRadius   int
	LakePermille uint64

	SeaLevel  int
	Amplitude int // height range above sea level
	CellSize  int // value noise lattice spacing
}

func DefaultConfig() Config {
	return Config{
		RegionSize:   64,
		LakeGrid:     48,
		LakeRadius:   9,
		LakePermille: 350,
		SeaLevel:     63,
		Amplitude:    24,
		CellSize:     32,
	}
}

func (c Config) Validate() error {
	switch {
	case c.RegionSize <= 0:
		return fmt.Errorf("region_size must be > 0")
	case c.LakeGrid <= 0 || c.LakeRadius <= 0:
		return fmt.Errorf("lake grid and radius must be > 0")
	case c.LakePermille > 1000:
		return fmt.Errorf("lake_permille must be <= 1000")
	case c.CellSize <= 0:
		return fmt.Errorf("cell_size must be > 0")
	case c.Amplitude < 0:
		return fmt.Errorf("amplitude must be >= 0")
	}
	return nil
}

// Provider answers drain-site and surface-height queries for one seed. It
// is stateless and safe for concurrent use.
type Provider struct {
	seed int64
	cfg  Config
}

func New(seed int64, cfg Config) (*Provider, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Provider{seed: seed, cfg: cfg}, nil
}

func (p *Provider) Config() Config { return p.cfg }

func biomeFrom(noise uint64) Biome {
	switch noise % 4 {
	case 0:
		return Plains
	case 1:
		return Hills
	case 2:
		return River
	default:
		return Plains
	}
}

// BiomeAt classifies a block column. Lake clusters override the region biome.
func (p *Provider) BiomeAt(x, z int) Biome {
	if inCluster(p.seed^0x1a4e, x, z, p.cfg.LakeGrid, p.cfg.LakeRadius, p.cfg.LakePermille) {
		return Lake
	}
	rx, _ := cellOf(x, p.cfg.RegionSize)
	rz, _ := cellOf(z, p.cfg.RegionSize)
	return biomeFrom(mathx.Hash(p.seed, rx, rz, 0))
}

func (p *Provider) IsDrainSite(x, z int) bool {
	switch p.BiomeAt(x, z) {
	case Lake, River:
		return true
	}
	return false
}

// SurfaceHeight samples bilinear value noise over a lattice of CellSize
// blocks. Lakes sit at sea level.
func (p *Provider) SurfaceHeight(x, z int) int {
	if p.BiomeAt(x, z) == Lake {
		return p.cfg.SeaLevel
	}
	cs := p.cfg.CellSize
	gx, ox := cellOf(x, cs)
	gz, oz := cellOf(z, cs)
	fx := float64(ox) / float64(cs)
	fz := float64(oz) / float64(cs)

	v00 := p.lattice(gx, gz)
	v10 := p.lattice(gx+1, gz)
	v01 := p.lattice(gx, gz+1)
	v11 := p.lattice(gx+1, gz+1)
	v := v00*(1-fx)*(1-fz) + v10*fx*(1-fz) + v01*(1-fx)*fz + v11*fx*fz
	return p.cfg.SeaLevel + 1 + int(v*float64(p.cfg.Amplitude))
}

const latticeSalt = 7

// cellOf splits a block coordinate into its lattice cell and the offset
// inside it. size must be > 0.
func cellOf(v, size int) (cell, offset int) {
	cell, offset = v/size, v%size
	if offset < 0 {
		cell--
		offset += size
	}
	return cell, offset
}

// lattice returns a value in [0, 1) for a lattice point.
func (p *Provider) lattice(gx, gz int) float64 {
	h := mathx.Hash(p.seed, gx, gz, latticeSalt)
	return float64(h>>11) / (1 << 53)
}

// HeightMap samples the 16x16 surface of a chunk, indexed x+16*z.
func (p *Provider) HeightMap(cx, cz int) []int {
	out := make([]int, 16*16)
	for z := 0; z < 16; z++ {
		for x := 0; x < 16; x++ {
			out[x+16*z] = p.SurfaceHeight(cx*16+x, cz*16+z)
		}
	}
	return out
}

// inCluster reports whether (x, z) lies within radius of the cluster centre
// hashed into its grid cell or one of the eight neighbours.
func inCluster(seed int64, x, z, grid, radius int, probPermille uint64) bool {
	if probPermille == 0 {
		return false
	}
	gx, _ := cellOf(x, grid)
	gz, _ := cellOf(z, grid)
	r2 := radius * radius

	for dz := -1; dz <= 1; dz++ {
		for dx := -1; dx <= 1; dx++ {
			cgx, cgz := gx+dx, gz+dz
			h := mathx.Hash(seed, cgx, cgz, 0)
			if h%1000 >= probPermille {
				continue
			}
			cx := cgx*grid + int((h>>10)%uint64(grid))
			cz := cgz*grid + int((h>>20)%uint64(grid))
			ddx, ddz := x-cx, z-cz
			if ddx*ddx+ddz*ddz <= r2 {
				return true
			}
		}
	}
	return false
}
