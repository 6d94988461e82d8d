package main

import (
	"fmt"
	"io"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"

	"voxelstreams.ai/internal/persistence/indexdb"
	"voxelstreams.ai/internal/persistence/snapshot"
	"voxelstreams.ai/internal/sim/stream"
	"voxelstreams.ai/internal/sim/stream/templates"
	"voxelstreams.ai/internal/sim/stream/xz"
)

func newInspectCmd() *cobra.Command {
	var (
		headerOnly bool
		pieces     bool
	)

	cmd := &cobra.Command{
		Use:   "inspect <snapshot>",
		Short: "Print a snapshot's header and contents",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if headerOnly {
				h, err := snapshot.ReadHeader(args[0])
				if err != nil {
					return err
				}
				writeHeader(out, h)
				return nil
			}

			snap, err := snapshot.ReadSnapshot(args[0])
			if err != nil {
				return err
			}
			writeHeader(out, snap.Header)
			writeSnapshotBody(out, snap, pieces)
			return nil
		},
	}

	cmd.Flags().BoolVar(&headerOnly, "header", false, "only decode the header line")
	cmd.Flags().BoolVar(&pieces, "pieces", false, "list every piece of every structure")
	return cmd
}

func writeHeader(w io.Writer, h snapshot.Header) {
	fmt.Fprintf(w, "version:    %d\n", h.Version)
	fmt.Fprintf(w, "world:      %s\n", h.WorldID)
	fmt.Fprintf(w, "seed:       %d\n", h.Seed)
	fmt.Fprintf(w, "profile:    %s\n", h.Profile)
	fmt.Fprintf(w, "catalog:    %s\n", h.CatalogDigest)
	fmt.Fprintf(w, "structures: %d\n", h.Structures)
	fmt.Fprintf(w, "failed:     %d\n", h.Failed)
}

func writeSnapshotBody(w io.Writer, snap snapshot.SnapshotV1, pieces bool) {
	p := snap.Params
	fmt.Fprintf(w, "params:     radius=%d start=%.2f branch=%.2f drain=%d cutoff=%d max_source=%d margin=%.0f sea=%d uphill=%v\n",
		p.ChunkRadius, p.StartWeight, p.BranchChance, p.DrainWidth, p.SourceCutoffWidth, p.SourceMaxWidth, p.SealMargin, p.SeaLevel, p.RequireUphill)

	reasons := map[string]int{}
	for _, f := range snap.Failed {
		reasons[f.Reason]++
	}
	keys := make([]string, 0, len(reasons))
	for k := range reasons {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(w, "  %-16s %d\n", k, reasons[k])
	}

	// Names only resolve against the catalog the snapshot was written with.
	var lib *templates.Library
	if d := templates.Default(); d.Digest == snap.Header.CatalogDigest {
		lib = d
	}
	for _, s := range snap.Structures {
		fmt.Fprintf(w, "structure (%d,%d): %d pieces, %d branches\n", s.CX, s.CZ, len(s.Pieces), len(s.Branches))
		if !pieces {
			continue
		}
		for i, pc := range s.Pieces {
			name := fmt.Sprintf("#%d", pc.Template)
			if lib != nil {
				if t, ok := lib.Get(pc.Template); ok {
					name = t.Name
				}
			}
			fmt.Fprintf(w, "  %3d %-14s w=%-2d at (%.2f, %.2f) y=%d surface=%d down=%d\n", i, name, pc.Width, pc.X, pc.Z, pc.Height, pc.Surface, pc.Down)
		}
	}
}

func newQueryCmd(wf *worldFlags) *cobra.Command {
	var x0, z0, x1, z1 float64

	cmd := &cobra.Command{
		Use:   "query",
		Short: "Query the world's sqlite index",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			idx, err := indexdb.OpenSQLite(filepath.Join(wf.dataDir, "worlds", wf.worldID, "index", "world.sqlite"))
			if err != nil {
				return err
			}
			defer idx.Close()

			out := cmd.OutOrStdout()
			counts, err := idx.FailureCounts(ctx)
			if err != nil {
				return err
			}
			reasons := make([]string, 0, len(counts))
			for r := range counts {
				reasons = append(reasons, string(r))
			}
			sort.Strings(reasons)
			for _, r := range reasons {
				fmt.Fprintf(out, "failed %-16s %d\n", r, counts[stream.FailReason(r)])
			}

			box := xz.Range{XStart: x0, ZStart: z0, XEnd: x1, ZEnd: z1}
			origins, err := idx.StructuresIntersecting(ctx, box)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "%d structures intersect %v\n", len(origins), box)
			for _, o := range origins {
				fmt.Fprintf(out, "  %v\n", o)
			}
			return nil
		},
	}

	cmd.Flags().Float64Var(&x0, "x0", -256, "box min x")
	cmd.Flags().Float64Var(&z0, "z0", -256, "box min z")
	cmd.Flags().Float64Var(&x1, "x1", 256, "box max x")
	cmd.Flags().Float64Var(&z1, "z1", 256, "box max z")
	return cmd
}
