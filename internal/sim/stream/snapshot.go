package stream

import (
	"fmt"

	"voxelstreams.ai/internal/persistence/snapshot"
)

// ExportSnapshot captures the session cache. Structures keep their seal
// order so a restored session rejects the same candidates.
func (g *Generator) ExportSnapshot(worldID, profile string) snapshot.SnapshotV1 {
	snap := snapshot.SnapshotV1{
		Header: snapshot.Header{
			Version:       snapshot.Version,
			WorldID:       worldID,
			Seed:          g.seed,
			Profile:       profile,
			CatalogDigest: g.lib.Digest,
		},
		Params: paramsV1(g.p),
	}
	for _, s := range g.cache.Structures() {
		rec := Export(s)
		sv := snapshot.StructureV1{CX: rec.Origin.CX, CZ: rec.Origin.CZ, Radius: rec.Radius, Branches: rec.Branches}
		for _, p := range rec.Pieces {
			sv.Pieces = append(sv.Pieces, snapshot.PieceV1(p))
		}
		snap.Structures = append(snap.Structures, sv)
	}
	for _, f := range g.cache.ExportFailed() {
		snap.Failed = append(snap.Failed, snapshot.FailedV1{CX: f.Origin.CX, CZ: f.Origin.CZ, Reason: string(f.Reason)})
	}
	snap.Header.Structures = len(snap.Structures)
	snap.Header.Failed = len(snap.Failed)
	return snap
}

// ImportSnapshot loads snap into an empty session. The seed, catalog and
// params must match the generator's or later generation would diverge from
// the run that produced the snapshot.
func (g *Generator) ImportSnapshot(snap snapshot.SnapshotV1) error {
	if g.cache.Len() != 0 {
		return fmt.Errorf("import snapshot: cache already holds %d origins", g.cache.Len())
	}
	if snap.Header.Seed != g.seed {
		return fmt.Errorf("import snapshot: seed %d, generator has %d", snap.Header.Seed, g.seed)
	}
	if snap.Header.CatalogDigest != g.lib.Digest {
		return fmt.Errorf("import snapshot: catalog digest %s, generator has %s", snap.Header.CatalogDigest, g.lib.Digest)
	}
	if p := ParamsFromSnapshot(snap.Params); p != g.p {
		return fmt.Errorf("import snapshot: params %+v, generator has %+v", p, g.p)
	}

	structures := make([]StructureRecord, 0, len(snap.Structures))
	for _, sv := range snap.Structures {
		rec := StructureRecord{Origin: ChunkKey{CX: sv.CX, CZ: sv.CZ}, Radius: sv.Radius, Branches: sv.Branches}
		for _, p := range sv.Pieces {
			rec.Pieces = append(rec.Pieces, PieceRecord(p))
		}
		structures = append(structures, rec)
	}
	failed := make([]FailedRecord, 0, len(snap.Failed))
	for _, f := range snap.Failed {
		failed = append(failed, FailedRecord{Origin: ChunkKey{CX: f.CX, CZ: f.CZ}, Reason: FailReason(f.Reason)})
	}
	if err := g.cache.Restore(g.lib, g.p.SealMargin, structures, failed); err != nil {
		return fmt.Errorf("import snapshot: %w", err)
	}
	g.logger.Info("restored streams", "structures", len(structures), "failed", len(failed))
	return nil
}

func paramsV1(p Params) snapshot.ParamsV1 {
	return snapshot.ParamsV1{
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

func ParamsFromSnapshot(p snapshot.ParamsV1) Params {
	return Params{
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
