package observer

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"

	"voxelstreams.ai/internal/observerproto"
	"voxelstreams.ai/internal/sim/encoding"
	"voxelstreams.ai/internal/sim/stream"
	"voxelstreams.ai/internal/sim/stream/flow"
	"voxelstreams.ai/internal/sim/terrain"
)

func newTestServer(t *testing.T) (*Server, *httptest.Server) {
	return newTestServerWithHeights(t, nil)
}

type shortHeights struct{}

func (shortHeights) HeightMap(cx, cz int) []int { return make([]int, 8) }

func newTestServerWithHeights(t *testing.T, heights HeightSource) (*Server, *httptest.Server) {
	t.Helper()
	tp, err := terrain.New(7, terrain.DefaultConfig())
	if err != nil {
		t.Fatalf("terrain: %v", err)
	}
	p := stream.DefaultStreamParams()
	p.ChunkRadius = 3
	gen, err := stream.New(stream.Config{Seed: 7, Params: p, Terrain: tp, Logger: log.New(io.Discard)})
	if err != nil {
		t.Fatalf("generator: %v", err)
	}
	if heights == nil {
		heights = tp
	}
	srv := NewServer(Config{WorldID: "w1", Profile: "stream", Generator: gen, Heights: heights, Logger: log.New(io.Discard)})

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/observer/bootstrap", srv.BootstrapHandler())
	mux.HandleFunc("/v1/observer/ws", srv.WSHandler())
	hs := httptest.NewServer(mux)
	t.Cleanup(hs.Close)
	return srv, hs
}

func dial(t *testing.T, hs *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(hs.URL, "http") + "/v1/observer/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func subscribe(t *testing.T, conn *websocket.Conn, cx, cz, radius int) {
	t.Helper()
	if err := conn.WriteJSON(observerproto.SubscribeMsg{
		Type:            observerproto.TypeSubscribe,
		ProtocolVersion: observerproto.Version,
		CX:              cx,
		CZ:              cz,
		ChunkRadius:     radius,
	}); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
}

type envelope struct {
	Type string `json:"type"`
}

// readUntilDone collects CHUNK and STRUCTURE messages up to the next DONE.
func readUntilDone(t *testing.T, conn *websocket.Conn) ([]observerproto.ChunkMsg, []observerproto.StructureMsg, observerproto.DoneMsg) {
	t.Helper()
	var (
		chunks     []observerproto.ChunkMsg
		structures []observerproto.StructureMsg
	)
	for {
		_ = conn.SetReadDeadline(time.Now().Add(30 * time.Second))
		_, raw, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		var env envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			t.Fatalf("decode envelope: %v", err)
		}
		switch env.Type {
		case observerproto.TypeChunk:
			var m observerproto.ChunkMsg
			if err := json.Unmarshal(raw, &m); err != nil {
				t.Fatalf("decode chunk: %v", err)
			}
			chunks = append(chunks, m)
		case observerproto.TypeStructure:
			var m observerproto.StructureMsg
			if err := json.Unmarshal(raw, &m); err != nil {
				t.Fatalf("decode structure: %v", err)
			}
			structures = append(structures, m)
		case observerproto.TypeDone:
			var m observerproto.DoneMsg
			if err := json.Unmarshal(raw, &m); err != nil {
				t.Fatalf("decode done: %v", err)
			}
			return chunks, structures, m
		default:
			t.Fatalf("unexpected message type %q", env.Type)
		}
	}
}

func TestBootstrap(t *testing.T) {
	srv, hs := newTestServer(t)
	resp, err := http.Get(hs.URL + "/v1/observer/bootstrap")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status: %d", resp.StatusCode)
	}
	var got observerproto.BootstrapResponse
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.WorldID != "w1" || got.WorldParams.Seed != 7 || got.WorldParams.ChunkRadius != 3 {
		t.Fatalf("unexpected bootstrap: %+v", got)
	}
	if len(got.FlowPalette) != 17 || got.FlowPalette[16] != flow.None.String() {
		t.Fatalf("palette: %v", got.FlowPalette)
	}
	srv.WithGenerator(func(g *stream.Generator) {
		if got.CatalogDigest != g.Library().Digest {
			t.Fatalf("digest mismatch")
		}
	})
}

func TestWS_StreamsWindowNearestFirst(t *testing.T) {
	srv, hs := newTestServer(t)
	conn := dial(t, hs)
	subscribe(t, conn, 2, -1, 1)

	chunks, structures, done := readUntilDone(t, conn)
	if len(chunks) != 9 || done.Chunks != 9 {
		t.Fatalf("chunks: got %d, done says %d", len(chunks), done.Chunks)
	}
	if chunks[0].CX != 2 || chunks[0].CZ != -1 {
		t.Fatalf("first chunk should be the centre, got (%d,%d)", chunks[0].CX, chunks[0].CZ)
	}
	if done.Structures != len(structures) {
		t.Fatalf("done reports %d structures, streamed %d", done.Structures, len(structures))
	}

	for _, m := range chunks {
		if m.Encoding != observerproto.EncodingRLEFlow {
			t.Fatalf("encoding: %q", m.Encoding)
		}
		grid, err := encoding.DecodeFlows(m.Flows, stream.ChunkSize*stream.ChunkSize)
		if err != nil {
			t.Fatalf("decode flows: %v", err)
		}
		cells, _, err := srv.Paint(stream.ChunkKey{CX: m.CX, CZ: m.CZ})
		if err != nil {
			t.Fatalf("repaint: %v", err)
		}
		if m.WetCells != len(cells) {
			t.Fatalf("chunk (%d,%d): wet cells %d, repaint %d", m.CX, m.CZ, m.WetCells, len(cells))
		}
		want := stream.FlowGrid(cells)
		for i := range want {
			if grid[i] != want[i] {
				t.Fatalf("chunk (%d,%d) cell %d: got %v want %v", m.CX, m.CZ, i, grid[i], want[i])
			}
		}
	}
}

func TestWS_ResubscribeStreamsNewWindow(t *testing.T) {
	_, hs := newTestServer(t)
	conn := dial(t, hs)
	subscribe(t, conn, 0, 0, 1)
	readUntilDone(t, conn)

	subscribe(t, conn, 10, 10, 2)
	chunks, _, done := readUntilDone(t, conn)
	if done.Chunks != 25 || len(chunks) != 25 {
		t.Fatalf("second window: %d chunks, done %d", len(chunks), done.Chunks)
	}
	if chunks[0].CX != 10 || chunks[0].CZ != 10 {
		t.Fatalf("second window should start at its centre, got (%d,%d)", chunks[0].CX, chunks[0].CZ)
	}
}

func TestWS_ReportsPaintErrors(t *testing.T) {
	_, hs := newTestServerWithHeights(t, shortHeights{})
	conn := dial(t, hs)
	subscribe(t, conn, 0, 0, 1)

	_ = conn.SetReadDeadline(time.Now().Add(30 * time.Second))
	_, raw, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var m observerproto.ErrorMsg
	if err := json.Unmarshal(raw, &m); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if m.Type != observerproto.TypeError || !strings.Contains(m.Message, "16x16") {
		t.Fatalf("unexpected message: %s", raw)
	}
}

func TestWS_RejectsNonSubscribeHandshake(t *testing.T) {
	_, hs := newTestServer(t)
	conn := dial(t, hs)
	if err := conn.WriteJSON(map[string]string{"type": "HELLO"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, _, err := conn.ReadMessage()
	if !websocket.IsCloseError(err, websocket.ClosePolicyViolation) {
		t.Fatalf("expected policy violation close, got %v", err)
	}
}

func TestWindow(t *testing.T) {
	w := Window(stream.ChunkKey{CX: 5, CZ: 5}, 2, 1000)
	if len(w) != 25 {
		t.Fatalf("len: %d", len(w))
	}
	if w[0] != (stream.ChunkKey{CX: 5, CZ: 5}) {
		t.Fatalf("first: %v", w[0])
	}
	prev := 0
	for _, k := range w {
		dx, dz := k.CX-5, k.CZ-5
		d := dx*dx + dz*dz
		if d < prev {
			t.Fatalf("window not nearest-first at %v", k)
		}
		prev = d
	}
	if got := Window(stream.ChunkKey{}, 2, 5); len(got) != 5 {
		t.Fatalf("cap: %d", len(got))
	}
}

func TestNormalizeSubscribe(t *testing.T) {
	sub := observerproto.SubscribeMsg{ChunkRadius: 100, MaxChunks: -1}
	normalizeSubscribe(&sub)
	if sub.ChunkRadius != 32 || sub.MaxChunks != 1024 {
		t.Fatalf("got %+v", sub)
	}
	sub = observerproto.SubscribeMsg{}
	normalizeSubscribe(&sub)
	if sub.ChunkRadius != 4 {
		t.Fatalf("default radius: %d", sub.ChunkRadius)
	}
}

func TestIsLoopbackRemote(t *testing.T) {
	for addr, want := range map[string]bool{
		"127.0.0.1:1234": true,
		"[::1]:80":       true,
		"10.0.0.2:80":    false,
		"garbage":        false,
	} {
		if got := isLoopbackRemote(addr); got != want {
			t.Fatalf("%s: got %v want %v", addr, got, want)
		}
	}
}
