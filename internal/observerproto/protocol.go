// Package observerproto defines the read-only websocket protocol used to
// watch stream networks as they are painted into chunks.
package observerproto

// Version is the observer protocol version.
const Version = "0.1"

const (
	TypeSubscribe = "SUBSCRIBE"
	TypeChunk     = "CHUNK"
	TypeStructure = "STRUCTURE"
	TypeDone      = "DONE"
	TypeError     = "ERROR"
)

// EncodingRLEFlow marks base64(varint (flow, run) pairs) over a 16x16 grid
// indexed x+16*z.
const EncodingRLEFlow = "RLE_FLOW"

// Client -> Server. First message on the connection; re-sending it replaces
// the window being streamed.
type SubscribeMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	CX              int    `json:"cx"`
	CZ              int    `json:"cz"`
	ChunkRadius     int    `json:"chunk_radius"`
	MaxChunks       int    `json:"max_chunks"`
}

// HTTP response for GET /v1/observer/bootstrap.
type BootstrapResponse struct {
	ProtocolVersion string      `json:"protocol_version"`
	WorldID         string      `json:"world_id"`
	WorldParams     WorldParams `json:"world_params"`
	CatalogDigest   string      `json:"catalog_digest"`
	FlowPalette     []string    `json:"flow_palette"`
}

type WorldParams struct {
	Seed        int64  `json:"seed"`
	Profile     string `json:"profile"`
	ChunkSize   int    `json:"chunk_size"`
	SeaLevel    int    `json:"sea_level"`
	ChunkRadius int    `json:"chunk_radius"`
}

// Server -> Client. One painted chunk; chunks without water are still sent
// so clients can tell "dry" from "not yet streamed".
type ChunkMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	CX              int    `json:"cx"`
	CZ              int    `json:"cz"`
	Encoding        string `json:"encoding"`
	Flows           string `json:"flows"`
	WetCells        int    `json:"wet_cells"`
}

// Server -> Client. Sent once per structure reaching the window.
type StructureMsg struct {
	Type            string     `json:"type"`
	ProtocolVersion string     `json:"protocol_version"`
	CX              int        `json:"cx"`
	CZ              int        `json:"cz"`
	Pieces          int        `json:"pieces"`
	Branches        int        `json:"branches"`
	Bounds          [4]float64 `json:"bounds"`
}

// Server -> Client. The subscribed window has been fully streamed.
type DoneMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Chunks          int    `json:"chunks"`
	Structures      int    `json:"structures"`
}

type ErrorMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Message         string `json:"message"`
}
