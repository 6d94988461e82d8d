package stream

import "fmt"

// ChunkSize is the edge length of a world chunk in blocks.
const ChunkSize = 16

// Params are the generation constants of one generator profile.
type Params struct {
	ChunkRadius         int     // generation extent, in chunks, around the origin
	StartWeight         float64 // probability an origin attempts generation
	BranchChance        float64 // probability of trying a tributary after each connector
	DrainWidth          int
	SourceCutoffWidth   int // width at which a branch must end with a source
	SourceMaxWidth      int // widest piece that may be swapped for a source
	BranchDecreaseWidth int // how much narrower a tributary starts than its sibling
	SealMargin          float64
	SeaLevel            int
	DrainSiteAttempts   int
	RequireUphill       bool
}

// DefaultStreamParams matches the small-stream generator.
func DefaultStreamParams() Params {
	return Params{
		ChunkRadius:         8,
		StartWeight:         0.5,
		BranchChance:        0.7,
		DrainWidth:          20,
		SourceCutoffWidth:   8,
		SourceMaxWidth:      12,
		BranchDecreaseWidth: 2,
		SealMargin:          16,
		SeaLevel:            63,
		DrainSiteAttempts:   1,
		RequireUphill:       true,
	}
}

// DefaultRiverParams is the wide-extent variant that always attempts
// generation and ignores terrain height.
func DefaultRiverParams() Params {
	p := DefaultStreamParams()
	p.ChunkRadius = 16
	p.StartWeight = 1
	p.RequireUphill = false
	return p
}

// Radius is the half-width in blocks of a structure's generation extent.
func (p Params) Radius() float64 {
	return float64((p.ChunkRadius - 1) * ChunkSize)
}

func (p Params) Validate() error {
	switch {
	case p.ChunkRadius < 2:
		return fmt.Errorf("chunk_radius must be >= 2, got %d", p.ChunkRadius)
	case p.StartWeight < 0 || p.StartWeight > 1:
		return fmt.Errorf("start_weight must be within [0,1], got %v", p.StartWeight)
	case p.BranchChance < 0 || p.BranchChance > 1:
		return fmt.Errorf("branch_chance must be within [0,1], got %v", p.BranchChance)
	case p.SourceCutoffWidth < 2:
		return fmt.Errorf("source_cutoff_width must be >= 2, got %d", p.SourceCutoffWidth)
	case p.SourceMaxWidth < p.SourceCutoffWidth:
		return fmt.Errorf("source_max_width %d below source_cutoff_width %d", p.SourceMaxWidth, p.SourceCutoffWidth)
	case p.DrainWidth <= p.SourceCutoffWidth:
		return fmt.Errorf("drain_width %d must exceed source_cutoff_width %d", p.DrainWidth, p.SourceCutoffWidth)
	case p.BranchDecreaseWidth < 0:
		return fmt.Errorf("branch_decrease_width must be >= 0, got %d", p.BranchDecreaseWidth)
	case p.SealMargin < 0:
		return fmt.Errorf("seal_margin must be >= 0, got %v", p.SealMargin)
	case p.DrainSiteAttempts < 1:
		return fmt.Errorf("drain_site_attempts must be >= 1, got %d", p.DrainSiteAttempts)
	}
	return nil
}
