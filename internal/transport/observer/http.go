package observer

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"

	"github.com/dustin/go-humanize"

	"civforge.ai/internal/protocol"
	"civforge.ai/internal/sim/encoding"
	"civforge.ai/internal/sim/world/terrain/gen"
	"civforge.ai/internal/sim/world/terrain/overlay"
)

var errBadParam = errors.New("bad parameter")

const maxOverlayBody = 64 << 10

// intParam parses a query number. Clients send plain JSON numbers, so "12.0"
// is accepted while "12.5", NaN and ±Inf are not.
func intParam(q url.Values, name string, def *int) (int, error) {
	raw := q.Get(name)
	if raw == "" {
		if def != nil {
			return *def, nil
		}
		return 0, fmt.Errorf("%w: missing %s", errBadParam, name)
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %v", errBadParam, name, err)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("%w: %s is not finite", errBadParam, name)
	}
	if v != math.Trunc(v) {
		return 0, fmt.Errorf("%w: %s is not an integer", errBadParam, name)
	}
	// Beyond 2^53 floats stop being exact; the generator rejects far smaller
	// magnitudes anyway.
	if math.Abs(v) > 1<<53 {
		return 0, fmt.Errorf("%w: %s=%s", gen.ErrInvalidCoordinate, name, raw)
	}
	return int(v), nil
}

func (s *Server) CellHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		q := r.URL.Query()
		x, err := intParam(q, "x", nil)
		if err != nil {
			s.writeError(rw, err)
			return
		}
		y, err := intParam(q, "y", nil)
		if err != nil {
			s.writeError(rw, err)
			return
		}

		var resp protocol.CellResponse
		if q.Get("overlay") == "1" || q.Get("overlay") == "true" {
			_, resp.Overlay = s.overlay.GetDelta(x, y)
			resp.Cell, err = s.terrain.GetCellWithOverlay(x, y, s.overlay)
		} else {
			resp.Cell, err = s.terrain.GetCell(x, y)
		}
		if err != nil {
			s.writeError(rw, err)
			return
		}
		writeJSON(rw, http.StatusOK, resp)
	}
}

func (s *Server) ChunkHandler() http.HandlerFunc {
	zero := 0
	return func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		q := r.URL.Query()
		cx, err := intParam(q, "cx", nil)
		if err != nil {
			s.writeError(rw, err)
			return
		}
		cy, err := intParam(q, "cy", nil)
		if err != nil {
			s.writeError(rw, err)
			return
		}
		rawLOD, err := intParam(q, "lod", &zero)
		if err != nil {
			s.writeError(rw, err)
			return
		}
		lod, err := gen.ValidateLOD(rawLOD)
		if err != nil {
			s.writeError(rw, err)
			return
		}

		ch, err := s.terrain.GenerateChunk(cx, cy, lod)
		if err != nil {
			s.writeError(rw, err)
			return
		}
		digest := ch.Digest()
		etag := `"` + hex.EncodeToString(digest[:]) + `"`
		if r.Header.Get("If-None-Match") == etag {
			rw.Header().Set("ETag", etag)
			rw.WriteHeader(http.StatusNotModified)
			return
		}

		payload, err := encoding.SerializeChunk(ch)
		if err != nil {
			s.writeError(rw, err)
			return
		}
		var (
			body        []byte
			contentType string
		)
		switch q.Get("format") {
		case "", "json":
			body, err = json.Marshal(payload)
			contentType = "application/json"
		case "zstd":
			body, err = encoding.EncodeFrame(payload)
			contentType = "application/zstd"
		default:
			s.writeError(rw, fmt.Errorf("%w: unknown format %q", errBadParam, q.Get("format")))
			return
		}
		if err != nil {
			s.writeError(rw, err)
			return
		}
		if err := s.terrain.Limits().CheckPayload(len(body)); err != nil {
			s.log.Printf("chunk (%d,%d) lod %d rejected: %s", cx, cy, lod, humanize.IBytes(uint64(len(body))))
			s.writeError(rw, err)
			return
		}

		rw.Header().Set("Content-Type", contentType)
		rw.Header().Set("ETag", etag)
		rw.WriteHeader(http.StatusOK)
		_, _ = rw.Write(body)
	}
}

func (s *Server) ViewportHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		q := r.URL.Query()
		var bounds [4]int
		for i, name := range []string{"min_x", "min_y", "max_x", "max_y"} {
			v, err := intParam(q, name, nil)
			if err != nil {
				s.writeError(rw, err)
				return
			}
			bounds[i] = v
		}
		cells, err := s.terrain.GenerateViewportTiles(bounds[0], bounds[1], bounds[2], bounds[3])
		if err != nil {
			s.writeError(rw, err)
			return
		}
		if len(cells) == 0 {
			// Outside the world: echo the normalized request, no cells.
			writeJSON(rw, http.StatusOK, protocol.ViewportResponse{
				MinX:  min(bounds[0], bounds[2]),
				MinY:  min(bounds[1], bounds[3]),
				MaxX:  max(bounds[0], bounds[2]),
				MaxY:  max(bounds[1], bounds[3]),
				Cells: cells,
			})
			return
		}
		// Row-major, so the corners are the clamped bounds.
		first, last := cells[0], cells[len(cells)-1]
		writeJSON(rw, http.StatusOK, protocol.ViewportResponse{
			MinX:  first.X,
			MinY:  first.Y,
			MaxX:  last.X,
			MaxY:  last.Y,
			Cells: cells,
		})
	}
}

// OverlayHandler lists deltas of one chunk on GET and sets a delta on POST.
// Posting an empty delta removes it.
func (s *Server) OverlayHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			q := r.URL.Query()
			cx, err := intParam(q, "cx", nil)
			if err != nil {
				s.writeError(rw, err)
				return
			}
			cy, err := intParam(q, "cy", nil)
			if err != nil {
				s.writeError(rw, err)
				return
			}
			if err := gen.ValidateChunk(cx, cy); err != nil {
				s.writeError(rw, err)
				return
			}
			entries := s.overlay.GetDeltasInChunk(cx, cy)
			if entries == nil {
				entries = []overlay.Entry{}
			}
			writeJSON(rw, http.StatusOK, entries)
		case http.MethodPost:
			s.postOverlay(rw, r)
		default:
			rw.WriteHeader(http.StatusMethodNotAllowed)
		}
	}
}

func (s *Server) postOverlay(rw http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(rw, r.Body, maxOverlayBody))
	if err != nil {
		s.writeError(rw, fmt.Errorf("%w: %v", errBadParam, err))
		return
	}
	var req protocol.OverlayReq
	if err := json.Unmarshal(body, &req); err != nil {
		s.writeError(rw, fmt.Errorf("%w: %v", errBadParam, err))
		return
	}
	if err := gen.ValidateCoord(req.X, req.Y); err != nil {
		s.writeError(rw, err)
		return
	}
	if err := validateDelta(req.Delta); err != nil {
		s.writeError(rw, err)
		return
	}

	s.overlay.SetDelta(req.X, req.Y, req.Delta)
	if s.sink != nil {
		if err := s.sink.SaveDelta(req.X, req.Y, req.Delta); err != nil {
			s.log.Printf("persist delta (%d,%d): %v", req.X, req.Y, err)
		}
	}
	writeJSON(rw, http.StatusOK, protocol.AckMsg{
		Type:            protocol.TypeAck,
		ProtocolVersion: protocol.Version,
		AckFor:          "overlay",
		Accepted:        true,
	})
}

func validateDelta(d overlay.Delta) error {
	if d.BiomeOverride != nil && !d.BiomeOverride.Valid() {
		return fmt.Errorf("%w: biome_override %d", errBadParam, *d.BiomeOverride)
	}
	if m := d.MovementCostAdjustment; m != nil && (math.IsNaN(*m) || math.IsInf(*m, 0) || *m < 0) {
		return fmt.Errorf("%w: movement_cost_adjustment must be a finite non-negative factor", errBadParam)
	}
	for res, f := range d.ResourceDepletion {
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return fmt.Errorf("%w: resource_depletion[%s] is not finite", errBadParam, res)
		}
	}
	return nil
}

// ResetHandler drops every overlay delta and the chunk cache. Generated
// terrain is unaffected by either.
func (s *Server) ResetHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		n := s.overlay.Len()
		s.overlay.Clear()
		s.terrain.ClearCache()
		if s.sink != nil {
			if err := s.sink.Reset(); err != nil {
				s.log.Printf("persist reset: %v", err)
			}
		}
		s.log.Printf("reset: dropped %d overlay deltas", n)
		writeJSON(rw, http.StatusOK, protocol.AckMsg{
			Type:            protocol.TypeAck,
			ProtocolVersion: protocol.Version,
			AckFor:          "reset",
			Accepted:        true,
		})
	}
}
