package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
)

// worldFlags are shared by every command that opens a world session.
type worldFlags struct {
	tuningPath string
	profile    string
	seed       int64
	worldID    string
	dataDir    string
	snapshot   string
	fresh      bool
	index      string
	noEvents   bool
}

func newRootCmd() *cobra.Command {
	var (
		verbose bool
		wf      worldFlags
	)

	root := &cobra.Command{
		Use:          "streamgen",
		Short:        "Generate and inspect stream networks",
		Version:      version,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := log.InfoLevel
			if verbose {
				level = log.DebugLevel
			}
			cmd.SetContext(withLogger(cmd.Context(), newLogger(cmd.ErrOrStderr(), level)))
		},
	}
	root.SetVersionTemplate(fmt.Sprintf("streamgen %s\ncommit: %s\nbuilt: %s\n", version, commit, date))

	pf := root.PersistentFlags()
	pf.BoolVarP(&verbose, "verbose", "v", false, "enable verbose logging")
	pf.StringVar(&wf.tuningPath, "tuning", "", "path to tuning.yaml (default: built-in defaults)")
	pf.StringVar(&wf.profile, "profile", "", "generator profile: stream or river (default: tuning's profile)")
	pf.Int64Var(&wf.seed, "seed", 1337, "world seed (ignored when resuming from a snapshot)")
	pf.StringVar(&wf.worldID, "world", "world_1", "world id")
	pf.StringVar(&wf.dataDir, "data", "./data", "runtime data directory")
	pf.StringVar(&wf.snapshot, "snapshot", "", "snapshot to resume from (default: latest in the world dir)")
	pf.BoolVar(&wf.fresh, "fresh", false, "ignore existing snapshots and start an empty session")
	pf.StringVar(&wf.index, "index", envOr("VS_INDEX_BACKEND", "sqlite"), "index backend: sqlite, d1 or none")
	pf.BoolVar(&wf.noEvents, "no-events", false, "do not write the generation event log")

	root.AddCommand(newGenerateCmd(&wf))
	root.AddCommand(newPaintCmd(&wf))
	root.AddCommand(newInspectCmd())
	root.AddCommand(newQueryCmd(&wf))
	root.AddCommand(newReplayCmd(&wf))
	root.AddCommand(newServeCmd(&wf))
	return root
}

func newLogger(w io.Writer, level log.Level) *log.Logger {
	return log.NewWithOptions(w, log.Options{
		ReportTimestamp: true,
		TimeFormat:      "15:04:05.00",
		Level:           level,
	})
}

type ctxKey int

const loggerKey ctxKey = 0

func withLogger(ctx context.Context, l *log.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, l)
}

func loggerFromContext(ctx context.Context) *log.Logger {
	if l, ok := ctx.Value(loggerKey).(*log.Logger); ok {
		return l
	}
	return log.Default()
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
