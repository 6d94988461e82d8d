package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"voxelstreams.ai/internal/sim/stream"
	"voxelstreams.ai/internal/transport/observer"
)

func newServeCmd(wf *worldFlags) *cobra.Command {
	var (
		addr          string
		snapshotEvery time.Duration
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the observer websocket for live chunk painting",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := loggerFromContext(ctx)
			s, err := openSession(wf, logger)
			if err != nil {
				return err
			}
			defer s.Close()

			srv := observer.NewServer(observer.Config{
				WorldID:   s.worldID,
				Profile:   s.profile,
				Generator: s.gen,
				Heights:   s.terrain,
				Logger:    logger,
			})

			mux := http.NewServeMux()
			mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
				rw.WriteHeader(http.StatusOK)
				_, _ = rw.Write([]byte("ok"))
			})
			mux.HandleFunc("/metrics", metricsHandler(s, srv))
			mux.HandleFunc("/v1/observer/bootstrap", srv.BootstrapHandler())
			mux.HandleFunc("/v1/observer/ws", srv.WSHandler())

			hs := &http.Server{
				Addr:              addr,
				Handler:           mux,
				ReadHeaderTimeout: 5 * time.Second,
			}

			go snapshotLoop(ctx, s, srv, snapshotEvery, logger)

			errCh := make(chan error, 1)
			go func() {
				logger.Info("listening", "addr", addr, "world", s.worldID, "seed", s.gen.Seed())
				errCh <- hs.ListenAndServe()
			}()

			select {
			case err := <-errCh:
				if !errors.Is(err, http.ErrServerClosed) {
					return err
				}
			case <-ctx.Done():
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = hs.Shutdown(shutdownCtx)

			var saveErr error
			srv.WithGenerator(func(*stream.Generator) {
				var path string
				if path, saveErr = s.saveSnapshot(); saveErr == nil {
					logger.Info("final snapshot", "path", path)
				}
			})
			return saveErr
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "http listen address")
	cmd.Flags().DurationVar(&snapshotEvery, "snapshot-every", 5*time.Minute, "snapshot interval while serving (0 disables)")
	return cmd
}

// snapshotLoop saves the cache whenever it has grown since the last save.
func snapshotLoop(ctx context.Context, s *session, srv *observer.Server, every time.Duration, logger *log.Logger) {
	if every <= 0 {
		return
	}
	t := time.NewTicker(every)
	defer t.Stop()
	last := -1
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			srv.WithGenerator(func(g *stream.Generator) {
				n := g.Cache().Len()
				if n == last {
					return
				}
				path, err := s.saveSnapshot()
				if err != nil {
					logger.Warn("snapshot write", "err", err)
					return
				}
				last = n
				logger.Debug("snapshot written", "path", path, "origins", n)
			})
		}
	}
}

func metricsHandler(s *session, srv *observer.Server) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "text/plain; version=0.0.4")

		var origins, structures int
		srv.WithGenerator(func(g *stream.Generator) {
			origins = g.Cache().Len()
			structures = len(g.Cache().Structures())
		})

		fmt.Fprintf(rw, "# HELP voxelstreams_cache_origins Origins with a cached generation outcome.\n")
		fmt.Fprintf(rw, "# TYPE voxelstreams_cache_origins gauge\n")
		fmt.Fprintf(rw, "voxelstreams_cache_origins{world=%q} %d\n", s.worldID, origins)

		fmt.Fprintf(rw, "# HELP voxelstreams_cache_structures Sealed structures in the cache.\n")
		fmt.Fprintf(rw, "# TYPE voxelstreams_cache_structures gauge\n")
		fmt.Fprintf(rw, "voxelstreams_cache_structures{world=%q} %d\n", s.worldID, structures)
	}
}
