package status

import (
	"net/http"
	"net/url"
	"time"

	"fbmonitor/internal/domain"

	"github.com/gorilla/websocket"
)

const (
	streamWriteTimeout = 10 * time.Second
	streamPingInterval = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     sameOrigin,
}

// sameOrigin accepts non-browser clients and pages served from this host.
func sameOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	return err == nil && u.Host == r.Host
}

// stream pushes bus events to a websocket client as JSON, optionally
// filtered by ?kind=.
func (s *Server) stream(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Stream == nil {
		writeError(w, http.StatusNotImplemented, "event stream not available")
		return
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "err", err)
		return
	}
	defer conn.Close()

	events, stop := s.cfg.Stream.Watch(32)
	defer stop()
	kind := domain.EventKind(r.URL.Query().Get("kind"))

	s.logger.Debug("event stream client connected", "remote", r.RemoteAddr, "kind", kind)
	defer s.logger.Debug("event stream client disconnected", "remote", r.RemoteAddr)

	// Clients never send data; reading surfaces close frames and errors.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(streamPingInterval)
	defer ping.Stop()

	for {
		select {
		case <-closed:
			return
		case <-s.bgCtx.Done():
			msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down")
			conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(streamWriteTimeout))
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if kind != "" && ev.Kind != kind {
				continue
			}
			conn.SetWriteDeadline(time.Now().Add(streamWriteTimeout))
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(streamWriteTimeout)); err != nil {
				return
			}
		}
	}
}
