package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	persistlog "voxelstreams.ai/internal/persistence/log"
	"voxelstreams.ai/internal/persistence/snapshot"
	"voxelstreams.ai/internal/sim/stream"
	"voxelstreams.ai/internal/sim/terrain"
	"voxelstreams.ai/internal/sim/tuning"
)

func newReplayCmd(wf *worldFlags) *cobra.Command {
	var snapPath string

	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Regenerate the world's event log from an empty cache and compare outcomes",
		Long: `Replay reads every generation log of the world in order and regenerates each
origin on a fresh generator. Seed and params come from --snapshot when given;
its cached structures are not loaded.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := loggerFromContext(cmd.Context())
			tune, err := tuning.Load(wf.tuningPath)
			if err != nil {
				return fmt.Errorf("load tuning: %w", err)
			}
			seed := wf.seed
			params, err := tune.Params(wf.profile)
			if err != nil {
				return err
			}
			if snapPath != "" {
				snap, err := snapshot.ReadSnapshot(snapPath)
				if err != nil {
					return fmt.Errorf("read snapshot: %w", err)
				}
				seed = snap.Header.Seed
				params = stream.ParamsFromSnapshot(snap.Params)
			}

			tp, err := terrain.New(seed, tune.TerrainConfig(params.SeaLevel))
			if err != nil {
				return err
			}
			gen, err := stream.New(stream.Config{Seed: seed, Params: params, Terrain: tp, Logger: logger.WithPrefix("replay")})
			if err != nil {
				return err
			}

			files, err := listEventFiles(filepath.Join(wf.dataDir, "worlds", wf.worldID, "events"))
			if err != nil {
				return fmt.Errorf("list events: %w", err)
			}
			if len(files) == 0 {
				return fmt.Errorf("no generation logs for world %s", wf.worldID)
			}
			checked := 0
			for _, path := range files {
				n, err := replayFile(gen, wf.worldID, path)
				checked += n
				if err != nil {
					return fmt.Errorf("replay: %w", err)
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "replay ok: checked=%d origins (seed=%d)\n", checked, seed)
			return nil
		},
	}

	cmd.Flags().StringVar(&snapPath, "snapshot", "", "snapshot supplying seed and params")
	return cmd
}

func listEventFiles(dir string) ([]string, error) {
	ents, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(ents))
	for _, e := range ents {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.HasPrefix(name, "generation-") && strings.HasSuffix(name, ".jsonl.zst") {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	out := make([]string, 0, len(names))
	for _, name := range names {
		out = append(out, filepath.Join(dir, name))
	}
	return out, nil
}

// replayFile regenerates each logged origin in order. Outcomes depend on the
// structures sealed before them, so entries must be replayed as written.
func replayFile(gen *stream.Generator, worldID, path string) (int, error) {
	entries, err := persistlog.ReadGenerationLog(path)
	if err != nil {
		return 0, err
	}
	checked := 0
	for _, e := range entries {
		if worldID != "" && e.WorldID != worldID {
			continue
		}
		origin := stream.ChunkKey{CX: e.CX, CZ: e.CZ}
		if gen.Cache().Known(origin) {
			return checked, fmt.Errorf("%s: origin %v logged twice", filepath.Base(path), origin)
		}
		s := gen.GenerateAt(origin)

		switch stream.Outcome(e.Outcome) {
		case stream.OutcomeGenerated:
			if s == nil {
				reason, _ := gen.Cache().Failed(origin)
				return checked, fmt.Errorf("origin %v: logged generated, replay failed with %s", origin, reason)
			}
			if len(s.Pieces()) != e.Pieces || len(s.Branches()) != e.Branches {
				return checked, fmt.Errorf("origin %v: logged %d pieces/%d branches, replay %d/%d",
					origin, e.Pieces, e.Branches, len(s.Pieces()), len(s.Branches()))
			}
		case stream.OutcomeFailed:
			reason, ok := gen.Cache().Failed(origin)
			if !ok {
				return checked, fmt.Errorf("origin %v: logged failed (%s), replay generated", origin, e.Reason)
			}
			if string(reason) != e.Reason {
				return checked, fmt.Errorf("origin %v: logged reason %s, replay %s", origin, e.Reason, reason)
			}
		default:
			return checked, fmt.Errorf("origin %v: unknown outcome %q", origin, e.Outcome)
		}
		checked++
	}
	return checked, nil
}
