package log

import (
	"path/filepath"
	"testing"
	"time"

	"voxelstreams.ai/internal/sim/stream"
	"voxelstreams.ai/internal/sim/stream/xz"
)

func TestGenerationLogger_RotatesHourly(t *testing.T) {
	dir := t.TempDir()
	l := NewGenerationLogger(dir, "w1")
	clock := time.Date(2026, 3, 1, 10, 59, 0, 0, time.UTC)
	l.w.now = func() time.Time { return clock }

	if err := l.RecordGeneration(stream.Event{Origin: stream.ChunkKey{CX: 1, CZ: -1}, Outcome: stream.OutcomeGenerated, Pieces: 9, Branches: 1, Bounds: xz.New(0, 0, 10, 10), Draws: 21}); err != nil {
		t.Fatalf("RecordGeneration: %v", err)
	}
	if err := l.RecordGeneration(stream.Event{Origin: stream.ChunkKey{CX: 2}, Outcome: stream.OutcomeFailed, Reason: stream.FailStartRoll, Draws: 1}); err != nil {
		t.Fatalf("RecordGeneration: %v", err)
	}
	clock = clock.Add(2 * time.Minute)
	if err := l.RecordGeneration(stream.Event{Origin: stream.ChunkKey{CX: 3}, Outcome: stream.OutcomeFailed, Reason: stream.FailNoBranch, Draws: 30}); err != nil {
		t.Fatalf("RecordGeneration: %v", err)
	}
	if err := l.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	first, err := ReadGenerationLog(filepath.Join(dir, "events", "generation-2026-03-01-10.jsonl.zst"))
	if err != nil {
		t.Fatalf("read first hour: %v", err)
	}
	if len(first) != 2 {
		t.Fatalf("first hour entries: %d", len(first))
	}
	if e := first[0]; e.WorldID != "w1" || e.CX != 1 || e.CZ != -1 || e.Outcome != "generated" || len(e.Bounds) != 4 || e.Bounds[2] != 10 {
		t.Fatalf("entry: %+v", e)
	}
	if e := first[1]; e.Reason != "start_roll" || e.Bounds != nil {
		t.Fatalf("entry: %+v", e)
	}

	second, err := ReadGenerationLog(filepath.Join(dir, "events", "generation-2026-03-01-11.jsonl.zst"))
	if err != nil {
		t.Fatalf("read second hour: %v", err)
	}
	if len(second) != 1 || second[0].Reason != "no_branch" {
		t.Fatalf("second hour: %+v", second)
	}
}
