package server

import (
	"fmt"
	"net/http"

	"github.com/coder/websocket"

	"github.com/conneroisu/devreload/internal/errors"
	"github.com/conneroisu/devreload/internal/reload"
)

// handleWebSocket upgrades the request, registers the connection with the
// hub and reads until the peer goes away. The hub owns delivery; this
// handler only owns the connection lifetime.
func (s *DevServer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if s.hub == nil {
		http.Error(w, "Live reload unavailable", http.StatusServiceUnavailable)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: s.originPatterns(),
	})
	if err != nil {
		// Accept has already written a 4xx response.
		s.logger.Warn(ctx, errors.Upgrade("accept", err), "WebSocket upgrade failed", "remote", r.RemoteAddr)
		return
	}

	conn := reload.NewConn(ws, s.logger)
	s.hub.Register(conn)
	defer s.hub.Unregister(conn.ID())

	go conn.WritePump(ctx)

	if err := conn.ReadPump(ctx); err != nil && ctx.Err() == nil {
		select {
		case <-conn.Done():
		default:
			s.logger.Debug(ctx, "WebSocket read ended", "client", conn.ID(), "error", err.Error())
		}
	}
	conn.Close()
}

// originPatterns lists the browser origins allowed besides the request's own
// host.
func (s *DevServer) originPatterns() []string {
	if s.config == nil {
		return nil
	}
	port := s.config.Server.Port
	return []string{
		fmt.Sprintf("%s:%d", s.config.Server.Host, port),
		fmt.Sprintf("localhost:%d", port),
		fmt.Sprintf("127.0.0.1:%d", port),
	}
}
