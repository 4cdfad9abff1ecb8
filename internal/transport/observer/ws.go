package observer

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"civforge.ai/internal/protocol"
	"civforge.ai/internal/sim/encoding"
	"civforge.ai/internal/sim/world/terrain"
	"civforge.ai/internal/sim/world/terrain/gen"
	"civforge.ai/internal/sim/world/terrain/store"
)

type wsFrame struct {
	kind int
	data []byte
}

// WSHandler streams chunks. The first message must be a SUBSCRIBE; every
// later SUBSCRIBE is answered the same way until the client disconnects.
func (s *Server) WSHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		// Handshake: must send SUBSCRIBE first.
		_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		first, ok := decodeSubscribe(msg)
		if !ok {
			_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "expected SUBSCRIBE"), time.Now().Add(time.Second))
			return
		}

		sid := uuid.NewString()
		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		out := make(chan wsFrame, 64)
		var sent uint64

		// Writer goroutine.
		writeDone := make(chan struct{})
		go func() {
			defer close(writeDone)
			for {
				select {
				case <-ctx.Done():
					return
				case f := <-out:
					_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
					if err := conn.WriteMessage(f.kind, f.data); err != nil {
						cancel()
						return
					}
					sent += uint64(len(f.data))
				}
			}
		}()

		s.log.Printf("ws session %s opened from %s", sid, r.RemoteAddr)
		s.serveSubscribe(ctx, first, out)

		// Reader loop: each further SUBSCRIBE is a new batch.
		for ctx.Err() == nil {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				break
			}
			sub, ok := decodeSubscribe(msg)
			if !ok {
				s.send(ctx, out, errorMsg("", fmt.Errorf("%w: expected SUBSCRIBE", errBadParam)))
				continue
			}
			s.serveSubscribe(ctx, sub, out)
		}

		cancel()
		<-writeDone
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"), time.Now().Add(time.Second))
		s.log.Printf("ws session %s closed, sent %s", sid, humanize.IBytes(sent))
	}
}

func decodeSubscribe(msg []byte) (protocol.SubscribeMsg, bool) {
	var sub protocol.SubscribeMsg
	if err := json.Unmarshal(msg, &sub); err != nil {
		return sub, false
	}
	if sub.Type != protocol.TypeSubscribe || sub.ProtocolVersion != protocol.Version {
		return sub, false
	}
	return sub, true
}

// serveSubscribe answers one batch: a CHUNK (or binary frame) per generated
// chunk and an ERROR per failed one, in request order.
func (s *Server) serveSubscribe(ctx context.Context, sub protocol.SubscribeMsg, out chan<- wsFrame) {
	lod, err := gen.ValidateLOD(sub.LOD)
	if err != nil {
		s.send(ctx, out, errorMsg(sub.ReqID, err))
		return
	}
	lim := s.terrain.Limits()
	if len(sub.Chunks) > lim.MaxChunksPerRequest {
		err := fmt.Errorf("%w: %d chunks > %d", terrain.ErrTooLarge, len(sub.Chunks), lim.MaxChunksPerRequest)
		s.send(ctx, out, errorMsg(sub.ReqID, err))
		return
	}

	keys := make([]store.Key, len(sub.Chunks))
	for i, c := range sub.Chunks {
		keys[i] = store.Key{CX: c[0], CY: c[1], LOD: lod}
	}
	results, err := s.terrain.GenerateChunks(keys)
	if err != nil {
		s.send(ctx, out, errorMsg(sub.ReqID, err))
		return
	}

	for _, res := range results {
		f, err := s.chunkFrame(sub, res)
		if err != nil {
			em := errorMsg(sub.ReqID, err)
			cx, cy := res.Key.CX, res.Key.CY
			em.CX, em.CY = &cx, &cy
			if code, _ := codeFor(err); code == protocol.ErrInternal {
				s.log.Printf("chunk (%d,%d) lod %d: %v", cx, cy, res.Key.LOD, err)
			}
			s.send(ctx, out, em)
			continue
		}
		if !s.enqueue(ctx, out, f) {
			return
		}
	}
}

func (s *Server) chunkFrame(sub protocol.SubscribeMsg, res terrain.ChunkResult) (wsFrame, error) {
	if res.Err != nil {
		return wsFrame{}, res.Err
	}
	payload, err := encoding.SerializeChunk(res.Data)
	if err != nil {
		return wsFrame{}, err
	}

	var f wsFrame
	if sub.Binary {
		b, err := encoding.EncodeFrame(payload)
		if err != nil {
			return wsFrame{}, err
		}
		f = wsFrame{kind: websocket.BinaryMessage, data: b}
	} else {
		digest := res.Data.Digest()
		b, err := json.Marshal(protocol.ChunkMsg{
			Type:            protocol.TypeChunk,
			ProtocolVersion: protocol.Version,
			ReqID:           sub.ReqID,
			Digest:          hex.EncodeToString(digest[:]),
			Payload:         payload,
		})
		if err != nil {
			return wsFrame{}, err
		}
		f = wsFrame{kind: websocket.TextMessage, data: b}
	}
	if err := s.terrain.Limits().CheckPayload(len(f.data)); err != nil {
		return wsFrame{}, err
	}
	return f, nil
}

func (s *Server) send(ctx context.Context, out chan<- wsFrame, v any) bool {
	b, err := json.Marshal(v)
	if err != nil {
		s.log.Printf("ws marshal: %v", err)
		return false
	}
	return s.enqueue(ctx, out, wsFrame{kind: websocket.TextMessage, data: b})
}

// enqueue blocks until the writer takes the frame. Chunks are never dropped;
// a slow client slows its own session only.
func (s *Server) enqueue(ctx context.Context, out chan<- wsFrame, f wsFrame) bool {
	select {
	case out <- f:
		return true
	case <-ctx.Done():
		return false
	}
}
