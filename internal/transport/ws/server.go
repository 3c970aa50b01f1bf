// Package ws exposes the bidirectional multimodal stream handler over a
// coder/websocket connection, framing each ClientFrame/ServerFrame as one
// JSON text message per the wire format of SPEC_FULL.md
// §6.
//
// Framing follows the read/write-loop idiom of the STT deepgram driver
// (one goroutine per direction, a WaitGroup joining them) rather than
// introducing a gRPC/protobuf stack the rest of the module does not depend
// on directly.
package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/MrWong99/omniagent/internal/stream"
)

const (
	// readLimit bounds a single inbound message; audio chunks are capped by
	// the client's own framing, this is a hard backstop against abuse.
	readLimit = 4 << 20 // 4 MiB

	writeTimeout = 10 * time.Second
)

// Server adapts a [stream.Handler] to an HTTP/websocket endpoint.
type Server struct {
	Handler *stream.Handler
	Logger  *slog.Logger
}

// Option configures a [Server].
type Option func(*Server)

// WithLogger attaches a logger. Defaults to [slog.Default].
func WithLogger(l *slog.Logger) Option { return func(s *Server) { s.Logger = l } }

// New constructs a [Server] wrapping handler.
func New(handler *stream.Handler, opts ...Option) *Server {
	s := &Server{Handler: handler}
	for _, opt := range opts {
		opt(s)
	}
	if s.Logger == nil {
		s.Logger = slog.Default()
	}
	return s
}

// Register adds the stream route to mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/stream", s.handleStream)
}

// handleStream upgrades the connection and pumps frames through the
// underlying stream.Handler until the client disconnects or the handler
// ends the stream on its own.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		s.Logger.Error("ws: accept failed", "err", err)
		return
	}
	conn.SetReadLimit(readLimit)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	in := make(chan stream.ClientFrame, 8)
	out := make(chan stream.ServerFrame, 8)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		s.readLoop(ctx, conn, in)
	}()
	go func() {
		defer wg.Done()
		s.writeLoop(ctx, conn, out, cancel)
	}()

	runErr := s.Handler.Run(ctx, in, out)
	cancel()
	close(out)
	wg.Wait()

	if runErr != nil {
		s.Logger.Error("ws: stream handler failed", "err", runErr)
		conn.Close(websocket.StatusInternalError, "stream handler failed")
		return
	}
	conn.Close(websocket.StatusNormalClosure, "")
}

// readLoop decodes inbound JSON frames and forwards them to in. It closes in
// and returns on the first read error (client disconnect, ctx cancellation,
// or malformed frame).
func (s *Server) readLoop(ctx context.Context, conn *websocket.Conn, in chan<- stream.ClientFrame) {
	defer close(in)

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return
		}

		var frame stream.ClientFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			s.Logger.Warn("ws: malformed client frame, dropping", "err", err)
			continue
		}

		select {
		case in <- frame:
		case <-ctx.Done():
			return
		}
	}
}

// writeLoop encodes outbound frames from out as JSON text messages. On any
// write failure it cancels the shared context so the stream handler stops
// promptly rather than blocking on a dead connection.
func (s *Server) writeLoop(ctx context.Context, conn *websocket.Conn, out <-chan stream.ServerFrame, cancel context.CancelFunc) {
	for {
		select {
		case frame, ok := <-out:
			if !ok {
				return
			}
			data, err := json.Marshal(frame)
			if err != nil {
				s.Logger.Error("ws: failed to encode server frame", "err", err)
				continue
			}
			wctx, wcancel := context.WithTimeout(ctx, writeTimeout)
			err = conn.Write(wctx, websocket.MessageText, data)
			wcancel()
			if err != nil {
				s.Logger.Warn("ws: write failed, ending stream", "err", err)
				cancel()
				return
			}
		case <-ctx.Done():
			return
		}
	}
}
