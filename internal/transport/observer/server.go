package observer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"

	"voxelstreams.ai/internal/observerproto"
	"voxelstreams.ai/internal/sim/encoding"
	"voxelstreams.ai/internal/sim/stream"
	"voxelstreams.ai/internal/sim/stream/flow"
)

// HeightSource supplies a chunk's 16x16 surface map for painting.
type HeightSource interface {
	HeightMap(cx, cz int) []int
}

type Config struct {
	WorldID   string
	Profile   string
	Generator *stream.Generator
	Heights   HeightSource // optional
	Logger    *log.Logger
}

// Server streams painted chunks to observers. The generator is shared by
// every connection and guarded by mu, since generation mutates its cache.
type Server struct {
	cfg Config
	mu  sync.Mutex

	upgrader websocket.Upgrader
	nextID   atomic.Uint64
}

func NewServer(cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}
	return &Server{
		cfg: cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // loopback only, see isLoopbackRemote
		},
	}
}

// Paint generates and paints one chunk under the server lock.
func (s *Server) Paint(chunk stream.ChunkKey) ([]stream.Cell, []*stream.Structure, error) {
	var heights []int
	if s.cfg.Heights != nil {
		heights = s.cfg.Heights.HeightMap(chunk.CX, chunk.CZ)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	structures := s.cfg.Generator.QueryAround(chunk, s.cfg.Generator.Params().ChunkRadius)
	cells, err := stream.Paint(structures, chunk, heights)
	return cells, structures, err
}

// WithGenerator runs fn while holding the generator lock, e.g. to snapshot.
func (s *Server) WithGenerator(fn func(g *stream.Generator)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.cfg.Generator)
}

func (s *Server) BootstrapHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}

		g := s.cfg.Generator
		palette := make([]string, 0, int(flow.None)+1)
		for f := flow.NNN; f <= flow.None; f++ {
			palette = append(palette, f.String())
		}
		resp := observerproto.BootstrapResponse{
			ProtocolVersion: observerproto.Version,
			WorldID:         s.cfg.WorldID,
			WorldParams: observerproto.WorldParams{
				Seed:        g.Seed(),
				Profile:     s.cfg.Profile,
				ChunkSize:   stream.ChunkSize,
				SeaLevel:    g.Params().SeaLevel,
				ChunkRadius: g.Params().ChunkRadius,
			},
			CatalogDigest: g.Library().Digest,
			FlowPalette:   palette,
		}
		rw.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(rw).Encode(resp)
	}
}

func (s *Server) WSHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}

		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		// Handshake: must send SUBSCRIBE first.
		_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		sub, err := readSubscribe(conn)
		if err != nil {
			_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "expected SUBSCRIBE"), time.Now().Add(time.Second))
			return
		}

		sid := s.nextID.Add(1)
		logger := s.cfg.Logger.With("observer", sid)
		logger.Debug("observer subscribed", "cx", sub.CX, "cz", sub.CZ, "radius", sub.ChunkRadius)

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		subs := make(chan observerproto.SubscribeMsg, 1)
		streamDone := make(chan error, 1)
		go func() {
			streamDone <- s.stream(ctx, conn, sub, subs)
		}()

		// Reader loop: later SUBSCRIBE messages replace the window.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			next, err := readSubscribe(conn)
			if errors.Is(err, errNotSubscribe) {
				logger.Debug("observer sent invalid message", "err", err)
				continue
			}
			if err != nil {
				break
			}
			select {
			case subs <- next:
			default:
				select {
				case <-subs:
				default:
				}
				subs <- next
			}
		}

		cancel()
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"), time.Now().Add(time.Second))

		select {
		case err := <-streamDone:
			if err != nil && ctx.Err() == nil {
				logger.Debug("observer stream ended", "err", err)
			}
		case <-time.After(500 * time.Millisecond):
		}
	}
}

// stream is the only writer on conn.
func (s *Server) stream(ctx context.Context, conn *websocket.Conn, sub observerproto.SubscribeMsg, subs <-chan observerproto.SubscribeMsg) error {
	for {
		next, err := s.streamWindow(ctx, conn, sub, subs)
		if err != nil {
			return err
		}
		if next == nil {
			select {
			case n := <-subs:
				next = &n
			case <-ctx.Done():
				return nil
			}
		}
		sub = *next
	}
}

// streamWindow sends the window nearest-first. It stops early and returns
// the replacement when a new subscription arrives.
func (s *Server) streamWindow(ctx context.Context, conn *websocket.Conn, sub observerproto.SubscribeMsg, subs <-chan observerproto.SubscribeMsg) (*observerproto.SubscribeMsg, error) {
	seen := map[stream.ChunkKey]bool{}
	chunks := Window(stream.ChunkKey{CX: sub.CX, CZ: sub.CZ}, sub.ChunkRadius, sub.MaxChunks)
	for _, ck := range chunks {
		select {
		case n := <-subs:
			return &n, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		cells, structures, err := s.Paint(ck)
		if err != nil {
			_ = writeJSON(conn, observerproto.ErrorMsg{
				Type:            observerproto.TypeError,
				ProtocolVersion: observerproto.Version,
				Message:         fmt.Sprintf("paint chunk %v: %v", ck, err),
			})
			return nil, err
		}
		for _, st := range structures {
			if seen[st.Origin] {
				continue
			}
			seen[st.Origin] = true
			b := st.Bounds()
			if err := writeJSON(conn, observerproto.StructureMsg{
				Type:            observerproto.TypeStructure,
				ProtocolVersion: observerproto.Version,
				CX:              st.Origin.CX,
				CZ:              st.Origin.CZ,
				Pieces:          len(st.Pieces()),
				Branches:        len(st.Branches()),
				Bounds:          [4]float64{b.XStart, b.ZStart, b.XEnd, b.ZEnd},
			}); err != nil {
				return nil, err
			}
		}
		if err := writeJSON(conn, observerproto.ChunkMsg{
			Type:            observerproto.TypeChunk,
			ProtocolVersion: observerproto.Version,
			CX:              ck.CX,
			CZ:              ck.CZ,
			Encoding:        observerproto.EncodingRLEFlow,
			Flows:           encoding.EncodeFlows(stream.FlowGrid(cells)),
			WetCells:        len(cells),
		}); err != nil {
			return nil, err
		}
	}
	return nil, writeJSON(conn, observerproto.DoneMsg{
		Type:            observerproto.TypeDone,
		ProtocolVersion: observerproto.Version,
		Chunks:          len(chunks),
		Structures:      len(seen),
	})
}

// Window lists the chunks within radius of center, nearest first, capped
// at max.
func Window(center stream.ChunkKey, radius, max int) []stream.ChunkKey {
	var out []stream.ChunkKey
	for dx := -radius; dx <= radius; dx++ {
		for dz := -radius; dz <= radius; dz++ {
			out = append(out, stream.ChunkKey{CX: center.CX + dx, CZ: center.CZ + dz})
		}
	}
	dist := func(k stream.ChunkKey) int {
		dx, dz := k.CX-center.CX, k.CZ-center.CZ
		return dx*dx + dz*dz
	}
	sort.SliceStable(out, func(i, j int) bool { return dist(out[i]) < dist(out[j]) })
	if len(out) > max {
		out = out[:max]
	}
	return out
}

func writeJSON(conn *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return conn.WriteMessage(websocket.TextMessage, b)
}

var errNotSubscribe = errors.New("not a SUBSCRIBE message")

// readSubscribe reads one message. Messages that arrive intact but are not
// a valid SUBSCRIBE wrap errNotSubscribe.
func readSubscribe(conn *websocket.Conn) (observerproto.SubscribeMsg, error) {
	var sub observerproto.SubscribeMsg
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return sub, err
	}
	if err := json.Unmarshal(msg, &sub); err != nil {
		return sub, fmt.Errorf("%w: %v", errNotSubscribe, err)
	}
	if sub.Type != observerproto.TypeSubscribe {
		return sub, fmt.Errorf("%w: type %q", errNotSubscribe, sub.Type)
	}
	if sub.ProtocolVersion != observerproto.Version {
		return sub, fmt.Errorf("%w: protocol %q", errNotSubscribe, sub.ProtocolVersion)
	}
	normalizeSubscribe(&sub)
	return sub, nil
}

func normalizeSubscribe(sub *observerproto.SubscribeMsg) {
	if sub.ChunkRadius <= 0 {
		sub.ChunkRadius = 4
	}
	if sub.ChunkRadius > 32 {
		sub.ChunkRadius = 32
	}
	if sub.MaxChunks <= 0 {
		sub.MaxChunks = 1024
	}
	if sub.MaxChunks > 4225 {
		sub.MaxChunks = 4225
	}
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
