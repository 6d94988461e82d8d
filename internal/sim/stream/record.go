package stream

import (
	"fmt"
	"math"

	"voxelstreams.ai/internal/sim/stream/templates"
)

// PieceRecord is a piece reduced to what is needed to rebuild it from the
// catalog. Down indexes the structure's piece list, -1 for a root.
type PieceRecord struct {
	Template int     `json:"template"`
	Width    int     `json:"width"`
	Height   int     `json:"height"`
	Surface  int     `json:"surface"`
	X        float64 `json:"x"`
	Z        float64 `json:"z"`
	Down     int     `json:"down"`
}

type StructureRecord struct {
	Origin   ChunkKey      `json:"origin"`
	Radius   float64       `json:"radius"`
	Pieces   []PieceRecord `json:"pieces"`
	Branches [][]int       `json:"branches"`
}

type FailedRecord struct {
	Origin ChunkKey   `json:"origin"`
	Reason FailReason `json:"reason"`
}

// chainTolerance bounds how far a restored chained piece may sit from its
// recorded position.
const chainTolerance = 1e-4

// Export flattens s. Template ids are only meaningful against the catalog
// digest the structure was generated with.
func Export(s *Structure) StructureRecord {
	index := make(map[*Piece]int, len(s.pieces))
	for i, p := range s.pieces {
		index[p] = i
	}
	rec := StructureRecord{
		Origin: s.Origin,
		Radius: s.radius,
		Pieces: make([]PieceRecord, len(s.pieces)),
	}
	for i, p := range s.pieces {
		down := -1
		if p.down != nil {
			down = index[p.down]
		}
		rec.Pieces[i] = PieceRecord{
			Template: p.Template.ID,
			Width:    p.Width,
			Height:   p.Height,
			Surface:  p.SurfaceHeight,
			X:        p.X,
			Z:        p.Z,
			Down:     down,
		}
	}
	for _, b := range s.branches {
		rec.Branches = append(rec.Branches, append([]int(nil), b...))
	}
	return rec
}

// Import rebuilds a sealed structure from rec. Unlike generation, a
// mismatched chain is reported as an error since it means the record was
// written against another catalog.
func Import(rec StructureRecord, lib *templates.Library, margin float64) (*Structure, error) {
	if len(rec.Pieces) == 0 {
		return nil, fmt.Errorf("structure %v has no pieces", rec.Origin)
	}
	s := NewStructure(rec.Origin, rec.Radius)
	for i, pr := range rec.Pieces {
		t, ok := lib.Get(pr.Template)
		if !ok {
			return nil, fmt.Errorf("piece %d: unknown template id %d", i, pr.Template)
		}
		if pr.Width < 2 {
			return nil, fmt.Errorf("piece %d: width %d", i, pr.Width)
		}
		var down *Piece
		if pr.Down >= 0 {
			if pr.Down >= i {
				return nil, fmt.Errorf("piece %d: downstream index %d is not an earlier piece", i, pr.Down)
			}
			down = s.pieces[pr.Down]
			if !down.Template.HasUpstream || down.Upstream.Dir != t.Downstream.Dir {
				return nil, fmt.Errorf("piece %d: %v cannot chain onto %v", i, t, down.Template)
			}
		}
		p := NewPiece(t, down, pr.Width, pr.Height, pr.X, pr.Z)
		if math.Abs(p.X-pr.X) > chainTolerance || math.Abs(p.Z-pr.Z) > chainTolerance {
			return nil, fmt.Errorf("piece %d: chained position (%.4f,%.4f) differs from recorded (%.4f,%.4f)", i, p.X, p.Z, pr.X, pr.Z)
		}
		p.SurfaceHeight = pr.Surface
		s.add(p)
	}
	for bi, b := range rec.Branches {
		for _, idx := range b {
			if idx < 0 || idx >= len(s.pieces) {
				return nil, fmt.Errorf("branch %d: piece index %d out of range", bi, idx)
			}
		}
		s.branches = append(s.branches, append([]int(nil), b...))
	}
	s.seal(margin)
	return s, nil
}

// Restore loads previously exported results into c. Structures are stored
// in the order given, which must be the order they were sealed in.
func (c *Cache) Restore(lib *templates.Library, margin float64, structures []StructureRecord, failed []FailedRecord) error {
	for _, rec := range structures {
		if c.Known(rec.Origin) {
			return fmt.Errorf("restore %v: origin already cached", rec.Origin)
		}
		s, err := Import(rec, lib, margin)
		if err != nil {
			return fmt.Errorf("restore %v: %w", rec.Origin, err)
		}
		c.store(s)
	}
	for _, f := range failed {
		if c.Known(f.Origin) {
			return fmt.Errorf("restore failed origin %v: already cached", f.Origin)
		}
		reason := f.Reason
		if reason == "" {
			reason = FailRestored
		}
		c.markFailed(f.Origin, reason)
	}
	return nil
}

// ExportFailed lists the negative cache in FailedOrigins order.
func (c *Cache) ExportFailed() []FailedRecord {
	keys := c.FailedOrigins()
	out := make([]FailedRecord, len(keys))
	for i, k := range keys {
		out[i] = FailedRecord{Origin: k, Reason: c.failed[k]}
	}
	return out
}
