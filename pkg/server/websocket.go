package server

import (
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// ErrSendQueueFull is returned when a peer's outbound buffer is saturated.
// The write is dropped so one stalled client cannot stall the room.
var ErrSendQueueFull = errors.New("send queue full")

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		// Drawing clients are served from arbitrary origins; anything
		// stricter belongs in a layer in front of this server.
		return true
	},
}

// WebSocketConn wraps a gorilla connection with a buffered outbound queue so
// fan-out writes from the router never block on a slow peer. All writes to
// the socket happen on the writePump goroutine.
type WebSocketConn struct {
	ws           *websocket.Conn
	send         chan []byte
	done         chan struct{}
	closeOnce    sync.Once
	writeTimeout time.Duration
}

// NewWebSocketConn creates a connection wrapper with the given outbound
// queue size and per-write deadline
func NewWebSocketConn(ws *websocket.Conn, queueSize int, writeTimeout time.Duration) *WebSocketConn {
	return &WebSocketConn{
		ws:           ws,
		send:         make(chan []byte, queueSize),
		done:         make(chan struct{}),
		writeTimeout: writeTimeout,
	}
}

// Send queues a payload for delivery. It never blocks: a closed connection
// or a full queue returns an error and the caller treats the recipient as
// best-effort.
func (c *WebSocketConn) Send(data []byte) error {
	select {
	case <-c.done:
		return websocket.ErrCloseSent
	default:
	}

	select {
	case c.send <- data:
		return nil
	default:
		return ErrSendQueueFull
	}
}

// Close shuts the connection down. Safe to call more than once.
func (c *WebSocketConn) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)
	})
	return c.ws.Close()
}

// writePump drains the outbound queue onto the socket and keeps the
// connection alive with periodic pings. Exits on the first write failure or
// when the connection closes.
func (c *WebSocketConn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case <-c.done:
			c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout))
			c.ws.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case data := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout))
			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// HandleWebSocket upgrades an HTTP request and runs the connection's
// lifecycle: register, announce the assigned id, then pump messages into the
// router until the transport closes.
func (s *Server) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		errorLog.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	conn := NewWebSocketConn(ws, s.config.SendQueueSize, s.config.WriteTimeout())
	go conn.writePump()

	clientID := s.clients.Register(conn)
	debugLog.Printf("Client %s connected from %s", clientID, ws.RemoteAddr())

	// The identity message goes out before any inbound traffic is read, so
	// the client always learns its id first.
	if err := s.sendConnectionMessage(clientID); err != nil {
		errorLog.Printf("Client %s: sending connection message: %v", clientID, err)
		s.teardown(clientID, conn)
		return
	}

	go s.readLoop(clientID, conn, ws)
}

// readLoop reads inbound frames for one connection and hands them to the
// router. Each connection gets its own goroutine; cross-connection state
// lives only in the registries.
func (s *Server) readLoop(clientID string, conn *WebSocketConn, ws *websocket.Conn) {
	defer s.teardown(clientID, conn)

	ws.SetReadLimit(s.config.MaxMessageSize)
	ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				errorLog.Printf("Client %s: read error: %v", clientID, err)
			} else {
				debugLog.Printf("Client %s disconnected", clientID)
			}
			return
		}

		s.router.HandleMessage(clientID, data)
	}
}

// teardown releases everything a connection owns: its registry entry, its
// room memberships, and the socket itself. Fan-out after this point skips
// the client instead of touching a dead transport.
func (s *Server) teardown(clientID string, conn *WebSocketConn) {
	s.clients.Unregister(clientID)
	s.rooms.RemoveClient(clientID)
	conn.Close()
}
