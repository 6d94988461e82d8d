package main

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func execute(t *testing.T, args ...string) string {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetArgs(args)
	if err := root.ExecuteContext(context.Background()); err != nil {
		t.Fatalf("streamgen %s: %v", strings.Join(args, " "), err)
	}
	return out.String()
}

func TestGenerateResumeAndInspect(t *testing.T) {
	data := t.TempDir()
	common := []string{"--data", data, "--seed", "5", "--world", "w_test"}

	out := execute(t, append(common, "generate", "--radius", "1")...)
	if !strings.Contains(out, "9 origins cached") {
		t.Fatalf("unexpected generate output:\n%s", out)
	}
	snapPath := filepath.Join(data, "worlds", "w_test", "snapshots", "9.snap.zst")
	if _, err := os.Stat(snapPath); err != nil {
		t.Fatalf("snapshot not written: %v", err)
	}
	if _, err := os.Stat(filepath.Join(data, "worlds", "w_test", "index", "world.sqlite")); err != nil {
		t.Fatalf("index not written: %v", err)
	}

	// Resuming with a different seed flag keeps the snapshot's seed and adds
	// nothing for an already generated window.
	out = execute(t, "--data", data, "--seed", "99", "--world", "w_test", "generate", "--radius", "1")
	if !strings.Contains(out, "seed 5,") || !strings.Contains(out, "9 origins cached") {
		t.Fatalf("resume did not continue the session:\n%s", out)
	}

	out = execute(t, append(common, "replay", "--snapshot", snapPath)...)
	if !strings.Contains(out, "replay ok: checked=9 origins") {
		t.Fatalf("unexpected replay output:\n%s", out)
	}

	out = execute(t, "inspect", "--header", snapPath)
	if !strings.Contains(out, "seed:       5") || !strings.Contains(out, "world:      w_test") {
		t.Fatalf("unexpected header:\n%s", out)
	}
	out = execute(t, "inspect", "--pieces", snapPath)
	if !strings.Contains(out, "params:") {
		t.Fatalf("unexpected inspect output:\n%s", out)
	}
}

func TestPaintGrid(t *testing.T) {
	data := t.TempDir()
	out := execute(t, "--data", data, "--index", "none", "--no-events", "paint", "--cx", "1", "--cz", "-1")
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	if len(lines) != 16 {
		t.Fatalf("grid has %d rows, want 16:\n%s", len(lines), out)
	}
	for i, l := range lines {
		if n := len(strings.Fields(l)); n != 16 {
			t.Fatalf("row %d has %d cells", i, n)
		}
	}
}

func TestLatestSnapshot(t *testing.T) {
	dir := t.TempDir()
	snaps := filepath.Join(dir, "snapshots")
	if err := os.MkdirAll(snaps, 0o755); err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"9.snap.zst", "120.snap.zst", "30.snap.zst", "notes.txt", "x.snap.zst"} {
		if err := os.WriteFile(filepath.Join(snaps, name), nil, 0o644); err != nil {
			t.Fatal(err)
		}
	}
	if got, want := latestSnapshot(dir), filepath.Join(snaps, "120.snap.zst"); got != want {
		t.Fatalf("latestSnapshot = %q, want %q", got, want)
	}
	if got := latestSnapshot(t.TempDir()); got != "" {
		t.Fatalf("empty dir: %q", got)
	}
}

func TestOpenIndexRejectsUnknownBackend(t *testing.T) {
	if _, err := openIndex("postgres", t.TempDir(), "w", nil); err == nil {
		t.Fatalf("expected error")
	}
	idx, err := openIndex("none", t.TempDir(), "w", nil)
	if err != nil || idx != nil {
		t.Fatalf("none backend: %v %v", idx, err)
	}
}
