package indexdb

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"voxelstreams.ai/internal/persistence/snapshot"
	"voxelstreams.ai/internal/sim/stream"
	"voxelstreams.ai/internal/sim/stream/xz"
)

// SQLiteIndex is a queryable read-model of generation outcomes. Writes are
// queued to a single writer goroutine and batched into transactions; the
// snapshot and event log remain the source of truth, so a full queue drops.
type SQLiteIndex struct {
	db *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool

	dropGeneration atomic.Uint64
	dropSnapshot   atomic.Uint64
}

type reqKind int

const (
	reqGeneration reqKind = iota + 1
	reqSnapshot
	reqSync
)

type req struct {
	kind reqKind

	event    stream.Event
	snapshot snapshotRow
	done     chan struct{}
}

type snapshotRow struct {
	Path       string
	WorldID    string
	Seed       int64
	Digest     string
	Structures int
	Failed     int
}

type Stats struct {
	QueueDepth          int
	QueueCapacity       int
	DropGenerationTotal uint64
	DropSnapshotTotal   uint64
}

func OpenSQLite(path string) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteIndex{
		db: db,
		ch: make(chan req, 65536),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS structures (
			cx INTEGER NOT NULL,
			cz INTEGER NOT NULL,
			pieces INTEGER NOT NULL,
			branches INTEGER NOT NULL,
			x0 REAL NOT NULL,
			z0 REAL NOT NULL,
			x1 REAL NOT NULL,
			z1 REAL NOT NULL,
			draws INTEGER NOT NULL,
			recorded_at TEXT NOT NULL,
			PRIMARY KEY (cx, cz)
		);`,
		`CREATE INDEX IF NOT EXISTS structures_bounds ON structures(x0, x1, z0, z1);`,
		`CREATE TABLE IF NOT EXISTS failed_origins (
			cx INTEGER NOT NULL,
			cz INTEGER NOT NULL,
			reason TEXT NOT NULL,
			draws INTEGER NOT NULL,
			recorded_at TEXT NOT NULL,
			PRIMARY KEY (cx, cz)
		);`,
		`CREATE TABLE IF NOT EXISTS snapshots (
			path TEXT PRIMARY KEY,
			world_id TEXT NOT NULL,
			seed INTEGER NOT NULL,
			catalog_digest TEXT NOT NULL,
			structures INTEGER NOT NULL,
			failed INTEGER NOT NULL,
			recorded_at TEXT NOT NULL
		);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

func (s *SQLiteIndex) Stats() Stats {
	return Stats{
		QueueDepth:          len(s.ch),
		QueueCapacity:       cap(s.ch),
		DropGenerationTotal: s.dropGeneration.Load(),
		DropSnapshotTotal:   s.dropSnapshot.Load(),
	}
}

// RecordGeneration queues one outcome. It never blocks generation.
func (s *SQLiteIndex) RecordGeneration(ev stream.Event) error {
	if s == nil || s.closed.Load() {
		return nil
	}
	select {
	case s.ch <- req{kind: reqGeneration, event: ev}:
	default:
		s.dropGeneration.Add(1)
	}
	return nil
}

func (s *SQLiteIndex) RecordSnapshot(path string, h snapshot.Header) {
	if s == nil || s.closed.Load() {
		return
	}
	r := snapshotRow{
		Path:       path,
		WorldID:    h.WorldID,
		Seed:       h.Seed,
		Digest:     h.CatalogDigest,
		Structures: h.Structures,
		Failed:     h.Failed,
	}
	select {
	case s.ch <- req{kind: reqSnapshot, snapshot: r}:
	default:
		s.dropSnapshot.Add(1)
	}
}

// Sync waits until everything queued before it is committed.
func (s *SQLiteIndex) Sync(ctx context.Context) error {
	if s == nil || s.closed.Load() {
		return fmt.Errorf("index closed")
	}
	done := make(chan struct{})
	select {
	case s.ch <- req{kind: reqSync, done: done}:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// StructuresIntersecting lists origins whose sealed bounds touch box.
func (s *SQLiteIndex) StructuresIntersecting(ctx context.Context, box xz.Range) ([]stream.ChunkKey, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT cx, cz FROM structures WHERE x0 <= ? AND x1 >= ? AND z0 <= ? AND z1 >= ? ORDER BY cx, cz`,
		box.XEnd, box.XStart, box.ZEnd, box.ZStart)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []stream.ChunkKey
	for rows.Next() {
		var k stream.ChunkKey
		if err := rows.Scan(&k.CX, &k.CZ); err != nil {
			return nil, err
		}
		out = append(out, k)
	}
	return out, rows.Err()
}

// FailureCounts tallies failed origins by reason.
func (s *SQLiteIndex) FailureCounts(ctx context.Context) (map[stream.FailReason]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT reason, COUNT(*) FROM failed_origins GROUP BY reason`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[stream.FailReason]int{}
	for rows.Next() {
		var (
			reason string
			n      int
		)
		if err := rows.Scan(&reason, &n); err != nil {
			return nil, err
		}
		out[stream.FailReason(reason)] = n
	}
	return out, rows.Err()
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	insertStructure, _ := s.db.Prepare(`INSERT OR REPLACE INTO structures(cx,cz,pieces,branches,x0,z0,x1,z1,draws,recorded_at) VALUES(?,?,?,?,?,?,?,?,?,?)`)
	insertFailed, _ := s.db.Prepare(`INSERT OR REPLACE INTO failed_origins(cx,cz,reason,draws,recorded_at) VALUES(?,?,?,?,?)`)
	insertSnapshot, _ := s.db.Prepare(`INSERT OR REPLACE INTO snapshots(path,world_id,seed,catalog_digest,structures,failed,recorded_at) VALUES(?,?,?,?,?,?,?)`)
	defer func() {
		for _, st := range []*sql.Stmt{insertStructure, insertFailed, insertSnapshot} {
			if st != nil {
				_ = st.Close()
			}
		}
	}()

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 2000
		commitMaxWait = 2 * time.Second
	)

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
		lastCommit = time.Now()
	}
	commit := func() {
		if tx == nil {
			return
		}
		_ = tx.Commit()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	rollback := func() {
		if tx == nil {
			return
		}
		_ = tx.Rollback()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	exec := func(st *sql.Stmt, args ...any) {
		if st == nil || tx == nil {
			return
		}
		if _, err := tx.Stmt(st).Exec(args...); err != nil {
			rollback()
			return
		}
		opCount++
	}

	for r := range s.ch {
		if r.kind == reqSync {
			commit()
			close(r.done)
			continue
		}
		begin()
		if tx == nil {
			continue
		}
		now := time.Now().UTC().Format(time.RFC3339Nano)
		switch r.kind {
		case reqGeneration:
			ev := r.event
			if ev.Outcome == stream.OutcomeGenerated {
				exec(insertStructure, ev.Origin.CX, ev.Origin.CZ, ev.Pieces, ev.Branches,
					ev.Bounds.XStart, ev.Bounds.ZStart, ev.Bounds.XEnd, ev.Bounds.ZEnd, int64(ev.Draws), now)
			} else {
				exec(insertFailed, ev.Origin.CX, ev.Origin.CZ, string(ev.Reason), int64(ev.Draws), now)
			}
		case reqSnapshot:
			sn := r.snapshot
			exec(insertSnapshot, sn.Path, sn.WorldID, sn.Seed, sn.Digest, sn.Structures, sn.Failed, now)
		}
		if tx != nil && (opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait) {
			commit()
		}
	}

	commit()
}
