package protocol

import (
	"civforge.ai/internal/sim/encoding"
	"civforge.ai/internal/sim/world/terrain/gen"
	"civforge.ai/internal/sim/world/terrain/overlay"
)

// BOOTSTRAP (server -> client): everything a client needs to reproduce
// chunk addressing for this world.
type BootstrapMsg struct {
	Type            string      `json:"type"`
	ProtocolVersion string      `json:"protocol_version"`
	WorldParams     WorldParams `json:"world_params"`
	Limits          Limits      `json:"limits"`
}

type WorldParams struct {
	Seed           string   `json:"seed"`
	WorldSize      int      `json:"world_size"`
	ChunkSize      int      `json:"chunk_size"`
	BlockSize      int      `json:"block_size"`
	CoverageStride int      `json:"coverage_stride"`
	LODs           []int    `json:"lods"`
	Biomes         []string `json:"biomes"` // index = wire id
	SeaLevel       float64  `json:"sea_level"`
}

type Limits struct {
	MaxChunksPerRequest int `json:"max_chunks_per_request"`
	MaxViewportCells    int `json:"max_viewport_cells"`
	MaxPayloadBytes     int `json:"max_payload_bytes"`
}

// SUBSCRIBE (client -> server): request a batch of chunks at one LOD.
type SubscribeMsg struct {
	Type            string   `json:"type"`
	ProtocolVersion string   `json:"protocol_version"`
	ReqID           string   `json:"req_id,omitempty"`
	Chunks          [][2]int `json:"chunks"` // [cx, cy]
	LOD             int      `json:"lod"`
	// Binary asks for zstd frames instead of JSON CHUNK messages.
	Binary bool `json:"binary,omitempty"`
}

// CHUNK (server -> client)
type ChunkMsg struct {
	Type            string                  `json:"type"`
	ProtocolVersion string                  `json:"protocol_version"`
	ReqID           string                  `json:"req_id,omitempty"`
	Digest          string                  `json:"digest"` // sha256 hex of the generated chunk
	Payload         encoding.CompactPayload `json:"payload"`
}

// ERROR (server -> client). CX/CY are set when the error belongs to one chunk
// of a batch.
type ErrorMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ReqID           string `json:"req_id,omitempty"`
	Code            string `json:"code"`
	Message         string `json:"message"`
	CX              *int   `json:"cx,omitempty"`
	CY              *int   `json:"cy,omitempty"`
}

type AckMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	AckFor          string `json:"ack_for"`
	Accepted        bool   `json:"accepted"`
	Code            string `json:"code,omitempty"`
	Message         string `json:"message,omitempty"`
}

// HTTP bodies.

type CellResponse struct {
	Overlay bool         `json:"overlay"`
	Cell    gen.CellData `json:"cell"`
}

type ViewportResponse struct {
	MinX  int        `json:"min_x"`
	MinY  int        `json:"min_y"`
	MaxX  int        `json:"max_x"`
	MaxY  int        `json:"max_y"`
	Cells []gen.Cell `json:"cells"`
}

type OverlayReq struct {
	X     int           `json:"x"`
	Y     int           `json:"y"`
	Delta overlay.Delta `json:"delta"`
}
