package log

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"

	"voxelstreams.ai/internal/sim/stream"
)

// JSONLZstdWriter appends JSON lines to hourly zstd files named
// <prefix>-<YYYY-MM-DD-HH>.jsonl.zst under baseDir.
type JSONLZstdWriter struct {
	baseDir string
	prefix  string
	now     func() time.Time

	mu      sync.Mutex
	curHour string
	f       *os.File
	enc     *zstd.Encoder
	w       *bufio.Writer
}

func NewJSONLZstdWriter(baseDir, prefix string) *JSONLZstdWriter {
	return &JSONLZstdWriter{
		baseDir: baseDir,
		prefix:  prefix,
		now:     time.Now,
	}
}

func (w *JSONLZstdWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closeLocked()
}

func (w *JSONLZstdWriter) Write(v any) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	hour := w.now().UTC().Format("2006-01-02-15")
	if hour != w.curHour {
		if err := w.rotateLocked(hour); err != nil {
			return err
		}
	}

	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := w.w.Write(append(b, '\n')); err != nil {
		return err
	}
	return w.w.Flush()
}

func (w *JSONLZstdWriter) rotateLocked(hour string) error {
	if err := w.closeLocked(); err != nil {
		return err
	}
	p := w.pathForHour(hour)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(p, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return err
	}
	w.f = f
	w.enc = enc
	w.w = bufio.NewWriterSize(enc, 64*1024)
	w.curHour = hour
	return nil
}

func (w *JSONLZstdWriter) closeLocked() error {
	var err error
	if w.w != nil {
		err = w.w.Flush()
	}
	if w.enc != nil {
		if cerr := w.enc.Close(); err == nil {
			err = cerr
		}
		w.enc = nil
	}
	if w.f != nil {
		if cerr := w.f.Close(); err == nil {
			err = cerr
		}
		w.f = nil
	}
	w.w = nil
	w.curHour = ""
	return err
}

func (w *JSONLZstdWriter) pathForHour(hour string) string {
	return filepath.Join(w.baseDir, fmt.Sprintf("%s-%s.jsonl.zst", w.prefix, hour))
}

// GenerationEntry is one line of the generation log.
type GenerationEntry struct {
	Time     string    `json:"time"`
	WorldID  string    `json:"world_id"`
	CX       int       `json:"cx"`
	CZ       int       `json:"cz"`
	Outcome  string    `json:"outcome"`
	Reason   string    `json:"reason,omitempty"`
	Pieces   int       `json:"pieces,omitempty"`
	Branches int       `json:"branches,omitempty"`
	Bounds   []float64 `json:"bounds,omitempty"`
	Draws    uint64    `json:"draws"`
}

// GenerationLogger is a stream.EventSink writing under <worldDir>/events.
type GenerationLogger struct {
	worldID string
	w       *JSONLZstdWriter
}

func NewGenerationLogger(worldDir, worldID string) *GenerationLogger {
	return &GenerationLogger{
		worldID: worldID,
		w:       NewJSONLZstdWriter(filepath.Join(worldDir, "events"), "generation"),
	}
}

func (l *GenerationLogger) RecordGeneration(ev stream.Event) error {
	e := GenerationEntry{
		Time:     l.w.now().UTC().Format(time.RFC3339Nano),
		WorldID:  l.worldID,
		CX:       ev.Origin.CX,
		CZ:       ev.Origin.CZ,
		Outcome:  string(ev.Outcome),
		Reason:   string(ev.Reason),
		Pieces:   ev.Pieces,
		Branches: ev.Branches,
		Draws:    ev.Draws,
	}
	if ev.Outcome == stream.OutcomeGenerated {
		e.Bounds = []float64{ev.Bounds.XStart, ev.Bounds.ZStart, ev.Bounds.XEnd, ev.Bounds.ZEnd}
	}
	return l.w.Write(e)
}

func (l *GenerationLogger) Close() error { return l.w.Close() }

// ReadGenerationLog decodes every entry of one log file.
func ReadGenerationLog(path string) ([]GenerationEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return nil, err
	}
	defer dec.Close()

	var out []GenerationEntry
	sc := bufio.NewScanner(dec)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for sc.Scan() {
		var e GenerationEntry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			return out, fmt.Errorf("%s: line %d: %w", path, len(out)+1, err)
		}
		out = append(out, e)
	}
	return out, sc.Err()
}
