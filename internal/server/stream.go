package server

import (
	"net/http"

	"github.com/torosent/volley/internal/sse"
	"github.com/torosent/volley/internal/websocket"
)

// handleStream upgrades to WebSocket and holds the connection until the
// subscriber is removed from the hub.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Upgrade(w, r, s.opt.WebSocket)
	if err != nil {
		s.opt.Logger.WithError(err).Debug("stream upgrade rejected")
		return
	}
	sub, err := s.opt.Hub.Subscribe(conn)
	if err != nil {
		_ = conn.Close()
		return
	}

	go func() {
		_ = conn.Wait()
		s.opt.Hub.Unsubscribe(sub.ID())
	}()
	<-sub.Done()
}

// handleEvents streams outcomes as Server-Sent Events. The response writer is
// only used by the hub's writer until the subscription is done.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := sse.NewServerConn(w)
	if err != nil {
		s.opt.Logger.WithError(err).Warn("event stream unavailable")
		return
	}
	sub, err := s.opt.Hub.Subscribe(conn)
	if err != nil {
		return
	}

	select {
	case <-r.Context().Done():
		s.opt.Hub.Unsubscribe(sub.ID())
		<-sub.Done()
	case <-sub.Done():
	}
}
