// Package observer is the caller-facing boundary: a loopback-only HTTP API
// plus a WebSocket stream of chunks.
package observer

import (
	"encoding/json"
	"errors"
	"log"
	"net"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"

	"civforge.ai/internal/protocol"
	"civforge.ai/internal/sim/world/terrain"
	"civforge.ai/internal/sim/world/terrain/fields"
	"civforge.ai/internal/sim/world/terrain/gen"
	"civforge.ai/internal/sim/world/terrain/overlay"
)

// DeltaSink receives overlay mutations after they are applied in memory.
type DeltaSink interface {
	SaveDelta(x, y int, d overlay.Delta) error
	Reset() error
}

type Server struct {
	terrain *terrain.Generator
	overlay *overlay.Store
	sink    DeltaSink
	log     *log.Logger

	// AllowRemote disables the loopback check. Tests and trusted
	// deployments only.
	AllowRemote bool

	upgrader websocket.Upgrader
}

// NewServer wires the handlers. sink may be nil when persistence is disabled.
func NewServer(g *terrain.Generator, ov *overlay.Store, sink DeltaSink, logger *log.Logger) *Server {
	if ov == nil {
		ov = overlay.NewStore()
	}
	if logger == nil {
		logger = log.New(log.Writer(), "[observer] ", log.LstdFlags|log.Lmicroseconds)
	}
	return &Server{
		terrain: g,
		overlay: ov,
		sink:    sink,
		log:     logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
}

func (s *Server) Routes(mux *http.ServeMux) {
	mux.HandleFunc("/v1/terrain/bootstrap", s.guard(s.BootstrapHandler()))
	mux.HandleFunc("/v1/terrain/cell", s.guard(s.CellHandler()))
	mux.HandleFunc("/v1/terrain/chunk", s.guard(s.ChunkHandler()))
	mux.HandleFunc("/v1/terrain/viewport", s.guard(s.ViewportHandler()))
	mux.HandleFunc("/v1/terrain/overlay", s.guard(s.OverlayHandler()))
	mux.HandleFunc("/v1/terrain/reset", s.guard(s.ResetHandler()))
	mux.HandleFunc("/v1/terrain/ws", s.guard(s.WSHandler()))
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.Routes(mux)
	return mux
}

func (s *Server) guard(h http.HandlerFunc) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if !s.AllowRemote && !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		h(rw, r)
	}
}

func (s *Server) BootstrapHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		writeJSON(rw, http.StatusOK, s.bootstrap())
	}
}

func (s *Server) bootstrap() protocol.BootstrapMsg {
	lim := s.terrain.Limits()
	biomes := make([]string, 0, fields.BiomeCount)
	for b := 0; b < fields.BiomeCount; b++ {
		biomes = append(biomes, fields.Biome(b).String())
	}
	return protocol.BootstrapMsg{
		Type:            protocol.TypeBootstrap,
		ProtocolVersion: protocol.Version,
		WorldParams: protocol.WorldParams{
			Seed:           s.terrain.Seed(),
			WorldSize:      s.terrain.WorldSize(),
			ChunkSize:      gen.ChunkSize,
			BlockSize:      gen.BlockSize,
			CoverageStride: gen.CoverageStride,
			LODs:           []int{int(gen.LOD0), int(gen.LOD1), int(gen.LOD2)},
			Biomes:         biomes,
			SeaLevel:       fields.SeaLevel,
		},
		Limits: protocol.Limits{
			MaxChunksPerRequest: lim.MaxChunksPerRequest,
			MaxViewportCells:    lim.MaxViewportCells,
			MaxPayloadBytes:     lim.MaxPayloadBytes,
		},
	}
}

// codeFor maps generator errors onto wire codes and HTTP statuses.
func codeFor(err error) (string, int) {
	switch {
	case errors.Is(err, errBadParam):
		return protocol.ErrBadRequest, http.StatusBadRequest
	case errors.Is(err, gen.ErrInvalidCoordinate):
		return protocol.ErrInvalidCoordinate, http.StatusBadRequest
	case errors.Is(err, gen.ErrInvalidLOD):
		return protocol.ErrInvalidLOD, http.StatusBadRequest
	case errors.Is(err, terrain.ErrTooLarge):
		return protocol.ErrTooLarge, http.StatusRequestEntityTooLarge
	default:
		return protocol.ErrInternal, http.StatusInternalServerError
	}
}

func errorMsg(reqID string, err error) protocol.ErrorMsg {
	code, _ := codeFor(err)
	return protocol.ErrorMsg{
		Type:            protocol.TypeError,
		ProtocolVersion: protocol.Version,
		ReqID:           reqID,
		Code:            code,
		Message:         err.Error(),
	}
}

func (s *Server) writeError(rw http.ResponseWriter, err error) {
	_, status := codeFor(err)
	if status == http.StatusInternalServerError {
		s.log.Printf("internal error: %v", err)
	}
	writeJSON(rw, status, errorMsg("", err))
}

func writeJSON(rw http.ResponseWriter, status int, v any) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(status)
	_ = json.NewEncoder(rw).Encode(v)
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
