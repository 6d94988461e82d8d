package indexdb

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"

	"voxelstreams.ai/internal/persistence/snapshot"
	"voxelstreams.ai/internal/sim/stream"
)

// D1Config points at an HTTP ingest worker in front of a Cloudflare D1
// database.
type D1Config struct {
	Endpoint      string
	Token         string
	WorldID       string
	BatchSize     int
	FlushInterval time.Duration
	HTTPTimeout   time.Duration
	Logger        *log.Logger
}

// D1Index ships generation outcomes to a remote index in batches.
type D1Index struct {
	cfg        D1Config
	httpClient *http.Client

	ch   chan d1Event
	wg   sync.WaitGroup
	once sync.Once

	closed  atomic.Bool
	dropped atomic.Uint64
}

type d1Event struct {
	Kind    string `json:"kind"`
	WorldID string `json:"world_id"`
	Payload any    `json:"payload"`
}

type d1GenerationPayload struct {
	CX       int        `json:"cx"`
	CZ       int        `json:"cz"`
	Outcome  string     `json:"outcome"`
	Reason   string     `json:"reason,omitempty"`
	Pieces   int        `json:"pieces,omitempty"`
	Branches int        `json:"branches,omitempty"`
	Bounds   [4]float64 `json:"bounds"`
	Draws    uint64     `json:"draws"`
}

type d1SnapshotPayload struct {
	Path          string `json:"path"`
	Seed          int64  `json:"seed"`
	CatalogDigest string `json:"catalog_digest"`
	Structures    int    `json:"structures"`
	Failed        int    `json:"failed"`
}

func OpenD1(cfg D1Config) (*D1Index, error) {
	cfg.Endpoint = strings.TrimSpace(cfg.Endpoint)
	cfg.WorldID = strings.TrimSpace(cfg.WorldID)
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("empty d1 ingest endpoint")
	}
	if cfg.WorldID == "" {
		return nil, fmt.Errorf("empty world id")
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 128
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 500 * time.Millisecond
	}
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = 10 * time.Second
	}

	d := &D1Index{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.HTTPTimeout},
		ch:         make(chan d1Event, 32768),
	}
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.loop()
	}()
	return d, nil
}

// Close flushes whatever is queued and stops the sender.
func (d *D1Index) Close() error {
	if d == nil {
		return nil
	}
	d.once.Do(func() {
		d.closed.Store(true)
		close(d.ch)
		d.wg.Wait()
	})
	return nil
}

func (d *D1Index) Dropped() uint64 { return d.dropped.Load() }

func (d *D1Index) RecordGeneration(ev stream.Event) error {
	if d == nil || d.closed.Load() {
		return nil
	}
	p := d1GenerationPayload{
		CX:       ev.Origin.CX,
		CZ:       ev.Origin.CZ,
		Outcome:  string(ev.Outcome),
		Reason:   string(ev.Reason),
		Pieces:   ev.Pieces,
		Branches: ev.Branches,
		Draws:    ev.Draws,
	}
	if ev.Outcome == stream.OutcomeGenerated {
		p.Bounds = [4]float64{ev.Bounds.XStart, ev.Bounds.ZStart, ev.Bounds.XEnd, ev.Bounds.ZEnd}
	}
	d.enqueue(d1Event{Kind: "generation", WorldID: d.cfg.WorldID, Payload: p})
	return nil
}

func (d *D1Index) RecordSnapshot(path string, h snapshot.Header) {
	if d == nil || d.closed.Load() {
		return
	}
	d.enqueue(d1Event{Kind: "snapshot", WorldID: d.cfg.WorldID, Payload: d1SnapshotPayload{
		Path:          path,
		Seed:          h.Seed,
		CatalogDigest: h.CatalogDigest,
		Structures:    h.Structures,
		Failed:        h.Failed,
	}})
}

func (d *D1Index) enqueue(ev d1Event) {
	select {
	case d.ch <- ev:
	default:
		d.dropped.Add(1)
		d.warn("d1 index queue full; drop", "kind", ev.Kind, "world", ev.WorldID)
	}
}

func (d *D1Index) loop() {
	ticker := time.NewTicker(d.cfg.FlushInterval)
	defer ticker.Stop()

	batch := make([]d1Event, 0, d.cfg.BatchSize)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		if err := d.sendBatch(batch); err != nil {
			d.warn("d1 index flush failed", "batch", len(batch), "err", err)
		}
		batch = batch[:0]
	}

	for {
		select {
		case ev, ok := <-d.ch:
			if !ok {
				flush()
				return
			}
			batch = append(batch, ev)
			if len(batch) >= d.cfg.BatchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}

func (d *D1Index) sendBatch(events []d1Event) error {
	body := struct {
		Events []d1Event `json:"events"`
	}{Events: events}
	buf, err := json.Marshal(body)
	if err != nil {
		return err
	}

	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		req, err := http.NewRequest(http.MethodPost, d.cfg.Endpoint, bytes.NewReader(buf))
		if err != nil {
			return err
		}
		req.Header.Set("content-type", "application/json")
		if d.cfg.Token != "" {
			req.Header.Set("x-vs-index-token", d.cfg.Token)
		}

		resp, err := d.httpClient.Do(req)
		if err == nil {
			respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 16*1024))
			_ = resp.Body.Close()
			if resp.StatusCode >= 200 && resp.StatusCode < 300 {
				return nil
			}
			err = fmt.Errorf("status=%d body=%s", resp.StatusCode, strings.TrimSpace(string(respBody)))
		}
		lastErr = err
		time.Sleep(time.Duration(100*(1<<attempt)) * time.Millisecond)
	}
	return lastErr
}

func (d *D1Index) warn(msg string, kv ...any) {
	if d.cfg.Logger != nil {
		d.cfg.Logger.Warn(msg, kv...)
	}
}
