package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"voxelstreams.ai/internal/persistence/indexdb"
	persistlog "voxelstreams.ai/internal/persistence/log"
	"voxelstreams.ai/internal/persistence/snapshot"
	"voxelstreams.ai/internal/sim/stream"
	"voxelstreams.ai/internal/sim/terrain"
	"voxelstreams.ai/internal/sim/tuning"
)

// runtimeIndex is the optional read-model fed by generation events. It never
// affects what gets generated.
type runtimeIndex interface {
	stream.EventSink
	RecordSnapshot(path string, h snapshot.Header)
	Close() error
}

// session is one opened world: terrain, generator and the sinks attached
// to it.
type session struct {
	worldID  string
	worldDir string
	profile  string

	terrain *terrain.Provider
	gen     *stream.Generator
	index   runtimeIndex
	events  *persistlog.GenerationLogger
	logger  *log.Logger
}

func openSession(wf *worldFlags, logger *log.Logger) (*session, error) {
	tune, err := tuning.Load(wf.tuningPath)
	if err != nil {
		return nil, fmt.Errorf("load tuning: %w", err)
	}

	worldDir := filepath.Join(wf.dataDir, "worlds", wf.worldID)
	if err := os.MkdirAll(worldDir, 0o755); err != nil {
		return nil, err
	}

	var snap *snapshot.SnapshotV1
	snapPath := strings.TrimSpace(wf.snapshot)
	if snapPath == "" && !wf.fresh {
		snapPath = latestSnapshot(worldDir)
	}
	if snapPath != "" {
		s, err := snapshot.ReadSnapshot(snapPath)
		if err != nil {
			return nil, fmt.Errorf("read snapshot: %w", err)
		}
		if s.Header.WorldID != "" && s.Header.WorldID != wf.worldID {
			return nil, fmt.Errorf("snapshot world id mismatch: flag=%s snap=%s", wf.worldID, s.Header.WorldID)
		}
		snap = &s
	}

	seed := wf.seed
	profile := wf.profile
	if profile == "" {
		profile = tune.Profile
	}
	params, err := tune.Params(profile)
	if err != nil {
		return nil, err
	}
	if snap != nil {
		// The snapshot's own settings win so the session continues unchanged.
		seed = snap.Header.Seed
		profile = snap.Header.Profile
		params = stream.ParamsFromSnapshot(snap.Params)
	}

	tp, err := terrain.New(seed, tune.TerrainConfig(params.SeaLevel))
	if err != nil {
		return nil, fmt.Errorf("terrain: %w", err)
	}

	s := &session{
		worldID:  wf.worldID,
		worldDir: worldDir,
		profile:  profile,
		terrain:  tp,
		logger:   logger,
	}

	var sinks stream.MultiSink
	if s.index, err = openIndex(wf.index, worldDir, wf.worldID, logger); err != nil {
		return nil, fmt.Errorf("open index backend: %w", err)
	}
	if s.index != nil {
		sinks = append(sinks, s.index)
	}
	if !wf.noEvents {
		s.events = persistlog.NewGenerationLogger(worldDir, wf.worldID)
		sinks = append(sinks, s.events)
	}

	cfg := stream.Config{
		Seed:    seed,
		Params:  params,
		Terrain: tp,
		Logger:  logger,
	}
	if len(sinks) > 0 {
		cfg.Sink = sinks
	}
	if s.gen, err = stream.New(cfg); err != nil {
		s.Close()
		return nil, err
	}
	if snap != nil {
		if err := s.gen.ImportSnapshot(*snap); err != nil {
			s.Close()
			return nil, fmt.Errorf("import snapshot: %w", err)
		}
		logger.Info("resumed session", "snapshot", filepath.Base(snapPath), "structures", snap.Header.Structures, "failed", snap.Header.Failed)
	}
	return s, nil
}

// saveSnapshot writes the cache under the world dir, named by the number of
// known origins so the latest snapshot sorts last.
func (s *session) saveSnapshot() (string, error) {
	snap := s.gen.ExportSnapshot(s.worldID, s.profile)
	path := filepath.Join(s.worldDir, "snapshots", fmt.Sprintf("%d.snap.zst", s.gen.Cache().Len()))
	if err := snapshot.WriteSnapshot(path, snap); err != nil {
		return "", err
	}
	if s.index != nil {
		s.index.RecordSnapshot(path, snap.Header)
	}
	return path, nil
}

func (s *session) Close() {
	if s.events != nil {
		if err := s.events.Close(); err != nil {
			s.logger.Warn("close event log", "err", err)
		}
	}
	if s.index != nil {
		if err := s.index.Close(); err != nil {
			s.logger.Warn("close index", "err", err)
		}
	}
}

func openIndex(backend, worldDir, worldID string, logger *log.Logger) (runtimeIndex, error) {
	switch strings.ToLower(strings.TrimSpace(backend)) {
	case "", "none", "off", "disabled":
		return nil, nil
	case "sqlite":
		return indexdb.OpenSQLite(filepath.Join(worldDir, "index", "world.sqlite"))
	case "d1":
		endpoint := strings.TrimSpace(os.Getenv("VS_INDEX_D1_INGEST_URL"))
		if endpoint == "" {
			return nil, fmt.Errorf("index backend d1 but VS_INDEX_D1_INGEST_URL is empty")
		}
		return indexdb.OpenD1(indexdb.D1Config{
			Endpoint:      endpoint,
			Token:         strings.TrimSpace(os.Getenv("VS_INDEX_D1_TOKEN")),
			WorldID:       worldID,
			BatchSize:     envInt("VS_INDEX_D1_BATCH_SIZE", 128),
			FlushInterval: time.Duration(envInt("VS_INDEX_D1_FLUSH_MS", 500)) * time.Millisecond,
			Logger:        logger,
		})
	default:
		return nil, fmt.Errorf("unsupported index backend: %s", backend)
	}
}

func latestSnapshot(worldDir string) string {
	dir := filepath.Join(worldDir, "snapshots")
	ents, err := os.ReadDir(dir)
	if err != nil {
		return ""
	}
	var best string
	var bestN uint64
	for _, e := range ents {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasSuffix(name, ".snap.zst") {
			continue
		}
		n, err := strconv.ParseUint(strings.TrimSuffix(name, ".snap.zst"), 10, 64)
		if err != nil {
			continue
		}
		if best == "" || n > bestN {
			bestN = n
			best = filepath.Join(dir, name)
		}
	}
	return best
}

func envInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
