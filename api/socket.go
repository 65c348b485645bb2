package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"location-relay/models"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 8192
)

// wsConn is one WebSocket peer. Frames queued with Send are written by
// writePump; a peer that cannot keep up is disconnected.
type wsConn struct {
	id   string
	conn *websocket.Conn
	send chan []byte
	log  *slog.Logger

	closeOnce sync.Once
	closed    chan struct{}
}

func newWSConn(conn *websocket.Conn, buffer int, log *slog.Logger) *wsConn {
	id := uuid.NewString()
	return &wsConn{
		id:     id,
		conn:   conn,
		send:   make(chan []byte, buffer),
		log:    log.With("conn_id", id),
		closed: make(chan struct{}),
	}
}

func (c *wsConn) ID() string { return c.id }

// Send queues frame without blocking. It reports false and hangs up when the
// outbound buffer is full, or when the connection is already closed.
func (c *wsConn) Send(frame []byte) bool {
	select {
	case <-c.closed:
		return false
	default:
	}

	select {
	case c.send <- frame:
		return true
	default:
		c.log.Warn("outbound buffer full, closing", "action", "slow_consumer")
		c.shutdown()
		return false
	}
}

func (c *wsConn) shutdown() {
	c.closeOnce.Do(func() { close(c.closed) })
}

// ServeWS upgrades the request and serves the socket until the peer goes away.
func (s *Server) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", "action", "upgrade_failed", "error", err)
		return
	}

	c := newWSConn(conn, s.opts.SendBuffer, s.log)
	if !s.track(c) {
		conn.Close()
		return
	}
	defer s.untrack(c)

	if err := s.relay.Connect(r.Context(), c); err != nil {
		c.log.Warn("relay refused connection", "action", "conn_refused", "error", err)
		conn.Close()
		return
	}
	c.log.Info("client connected", "action", "conn_opened", "remote", r.RemoteAddr)

	go c.writePump()
	c.readPump(r.Context(), s)
}

func (s *Server) track(c *wsConn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing {
		return false
	}
	s.live[c] = struct{}{}
	s.sockets.Add(1)
	return true
}

func (s *Server) untrack(c *wsConn) {
	s.mu.Lock()
	delete(s.live, c)
	s.mu.Unlock()
	s.sockets.Done()
}

// Shutdown closes every live socket with a normal close frame and waits
// until their disconnects have been handed to the relay. http.Server.Shutdown
// does not see hijacked connections, so call this before stopping the relay.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closing = true
	for c := range s.live {
		c.shutdown()
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.sockets.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// readPump hands frames to the relay in arrival order, then reports the
// disconnect so any session held by this connection is torn down.
func (c *wsConn) readPump(ctx context.Context, s *Server) {
	defer func() {
		if err := s.relay.Disconnect(context.Background(), c); err != nil {
			c.log.Debug("disconnect not delivered", "action", "disconnect_dropped", "error", err)
		}
		c.shutdown()
		c.conn.Close()
		c.log.Info("client disconnected", "action", "conn_closed")
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Debug("read failed", "action", "read_error", "error", err)
			}
			return
		}

		var env models.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			c.log.Debug("malformed frame", "action", "frame_rejected", "error", err)
			continue
		}
		if err := s.relay.Handle(ctx, c, env); err != nil {
			c.log.Warn("relay unavailable", "action", "handle_failed", "error", err)
			return
		}
	}
}

func (c *wsConn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case frame := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				c.shutdown()
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.shutdown()
				return
			}
		case <-c.closed:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}
