package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"voxelstreams.ai/internal/sim/stream"
)

func newGenerateCmd(wf *worldFlags) *cobra.Command {
	var (
		cx, cz int
		radius int
		save   bool
	)

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate every origin in a chunk window and save a snapshot",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := loggerFromContext(cmd.Context())
			s, err := openSession(wf, logger)
			if err != nil {
				return err
			}
			defer s.Close()

			start := time.Now()
			before := s.gen.Cache().Len()
			generated := 0
			for x := cx - radius; x <= cx+radius; x++ {
				for z := cz - radius; z <= cz+radius; z++ {
					if err := cmd.Context().Err(); err != nil {
						return err
					}
					if s.gen.GenerateAt(stream.ChunkKey{CX: x, CZ: z}) != nil {
						generated++
					}
				}
			}
			logger.Info("window generated",
				"center", stream.ChunkKey{CX: cx, CZ: cz},
				"radius", radius,
				"structures", generated,
				"new_origins", s.gen.Cache().Len()-before,
				"elapsed", time.Since(start).Round(time.Millisecond))

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "seed %d, %d structures in window, %d origins cached\n", s.gen.Seed(), generated, s.gen.Cache().Len())
			if !save {
				return nil
			}
			path, err := s.saveSnapshot()
			if err != nil {
				return fmt.Errorf("write snapshot: %w", err)
			}
			fmt.Fprintf(out, "snapshot %s\n", path)
			return nil
		},
	}

	cmd.Flags().IntVar(&cx, "cx", 0, "window centre chunk x")
	cmd.Flags().IntVar(&cz, "cz", 0, "window centre chunk z")
	cmd.Flags().IntVarP(&radius, "radius", "r", 4, "window radius in chunks")
	cmd.Flags().BoolVar(&save, "save", true, "write a snapshot after generating")
	return cmd
}
