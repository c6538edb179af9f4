package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/FocuswithJustin/SacredPsalms/internal/logging"
	"github.com/FocuswithJustin/SacredPsalms/internal/server"
	"github.com/FocuswithJustin/SacredPsalms/internal/session"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	sendBuffer = 64
)

// Message types sent to WebSocket clients.
const (
	MessageSession = "session" // session snapshot after any change
	MessageGesture = "gesture" // result of the client's own gesture event
	MessageError   = "error"
)

// WSMessage is the envelope of every server to client frame.
type WSMessage struct {
	Type      string    `json:"type"`
	Data      any       `json:"data,omitempty"`
	Error     *APIError `json:"error,omitempty"`
	Timestamp string    `json:"timestamp"`
}

func encodeMessage(msg WSMessage) ([]byte, error) {
	if msg.Timestamp == "" {
		msg.Timestamp = time.Now().UTC().Format(time.RFC3339)
	}
	return json.Marshal(msg)
}

// Client is one WebSocket connection attached to a session.
type Client struct {
	hub       *Hub
	conn      *websocket.Conn
	sessionID string
	limiter   *tokenBucket

	mu     sync.Mutex
	send   chan []byte
	closed bool
}

// trySend queues data without blocking. It reports false when the client is
// closed or its buffer is full.
func (c *Client) trySend(data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

func (c *Client) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

func (c *Client) sendMessage(msg WSMessage) {
	data, err := encodeMessage(msg)
	if err != nil {
		logging.Error("failed to marshal websocket message", "error", err)
		return
	}
	if !c.trySend(data) {
		logging.Warn("websocket client buffer full, dropping message", "session_id", c.sessionID)
	}
}

type sessionMessage struct {
	sessionID string
	data      []byte
}

// Hub tracks WebSocket clients per session and fans session snapshots out
// to every client watching that session.
type Hub struct {
	mu       sync.RWMutex
	sessions map[string]map[*Client]bool
	total    int

	register   chan *Client
	unregister chan *Client
	broadcast  chan sessionMessage
	closeAll   chan string
	done       chan struct{}
}

// NewHub creates a hub. Call Run to start it.
func NewHub() *Hub {
	return &Hub{
		sessions:   make(map[string]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan sessionMessage, 256),
		closeAll:   make(chan string, 16),
		done:       make(chan struct{}),
	}
}

// Run processes registrations and broadcasts until ctx is cancelled, then
// disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case c := <-h.register:
			h.mu.Lock()
			if h.sessions[c.sessionID] == nil {
				h.sessions[c.sessionID] = make(map[*Client]bool)
			}
			h.sessions[c.sessionID][c] = true
			h.total++
			n := h.total
			h.mu.Unlock()
			logging.WebSocketEvent("client_connected", n, "session_id", c.sessionID)

		case c := <-h.unregister:
			h.remove(c)
			logging.WebSocketEvent("client_disconnected", h.ClientCount(), "session_id", c.sessionID)

		case msg := <-h.broadcast:
			h.mu.RLock()
			var slow []*Client
			for c := range h.sessions[msg.sessionID] {
				if !c.trySend(msg.data) {
					slow = append(slow, c)
				}
			}
			h.mu.RUnlock()
			for _, c := range slow {
				h.remove(c)
				logging.WebSocketEvent("client_dropped", h.ClientCount(), "session_id", c.sessionID, "reason", "slow consumer")
			}

		case id := <-h.closeAll:
			h.mu.RLock()
			var clients []*Client
			for c := range h.sessions[id] {
				clients = append(clients, c)
			}
			h.mu.RUnlock()
			for _, c := range clients {
				h.remove(c)
			}

		case <-ctx.Done():
			h.mu.Lock()
			for id, clients := range h.sessions {
				for c := range clients {
					c.closeSend()
				}
				delete(h.sessions, id)
			}
			h.total = 0
			h.mu.Unlock()
			return
		}
	}
}

func (h *Hub) remove(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	clients := h.sessions[c.sessionID]
	if !clients[c] {
		return
	}
	delete(clients, c)
	if len(clients) == 0 {
		delete(h.sessions, c.sessionID)
	}
	h.total--
	c.closeSend()
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.total
}

// SessionClients returns the number of clients watching session id.
func (h *Hub) SessionClients(id string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions[id])
}

// Publish sends a session snapshot to every client watching it. It never
// blocks; when the queue is full the snapshot is dropped.
func (h *Hub) Publish(id string, v session.View) {
	data, err := encodeMessage(WSMessage{Type: MessageSession, Data: v})
	if err != nil {
		logging.Error("failed to marshal session snapshot", "error", err)
		return
	}
	select {
	case h.broadcast <- sessionMessage{sessionID: id, data: data}:
	default:
		logging.Warn("broadcast channel full, dropping message", "session_id", id)
	}
}

// CloseSession disconnects every client of a deleted session.
func (h *Hub) CloseSession(id string) {
	select {
	case h.closeAll <- id:
	case <-h.done:
	}
}

func (h *Hub) attach(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) detach(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// upgrader builds the WebSocket upgrader, checking origins against the same
// list as CORS.
func (s *Server) upgrader() *websocket.Upgrader {
	cors := server.CORSConfig{AllowedOrigins: s.cfg.AllowedOrigins}
	return &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if cors.Allows(origin) {
				return true
			}
			logging.SecurityEvent("websocket_origin_rejected", "websocket", "origin", origin)
			return false
		},
	}
}

// handleWebSocket attaches a client to a session. Clients send gesture
// events and receive a gesture result for each, plus a session snapshot
// whenever the session changes.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	v, err := s.sessions.Get(r.Context(), id)
	if err != nil {
		respondErr(w, r, err)
		return
	}

	conn, err := s.upgrader().Upgrade(w, r, nil)
	if err != nil {
		logging.WarnContext(r.Context(), "websocket upgrade failed", "error", err)
		return
	}
	conn.SetReadLimit(s.cfg.WebSocket.MaxMessageSize)

	rate := float64(s.cfg.WebSocket.MaxMessageRate)
	c := &Client{
		hub:       s.hub,
		conn:      conn,
		sessionID: id,
		limiter:   newTokenBucket(rate*2, rate, time.Now()),
		send:      make(chan []byte, sendBuffer),
	}
	c.sendMessage(WSMessage{Type: MessageSession, Data: v})

	if !s.hub.attach(c) {
		conn.Close()
		return
	}
	go c.writePump()
	go s.readPump(c)
}

// readPump feeds gesture events from the connection to the session.
func (s *Server) readPump(c *Client) {
	defer func() {
		c.hub.detach(c)
		c.conn.Close()
	}()

	ctx := logging.WithSessionID(s.baseContext(), c.sessionID)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logging.WarnContext(ctx, "websocket unexpected close", "error", err)
			}
			return
		}

		if ok, _, _ := c.limiter.take(time.Now()); !ok {
			c.sendMessage(WSMessage{Type: MessageError, Error: &APIError{
				Code: "RATE_LIMIT_EXCEEDED", Message: "too many gesture events",
			}})
			continue
		}

		var req GestureRequest
		if err := json.Unmarshal(data, &req); err != nil {
			c.sendMessage(WSMessage{Type: MessageError, Error: &APIError{Code: "INVALID_REQUEST", Message: "invalid JSON"}})
			continue
		}
		ev, err := req.Event()
		if err == nil {
			var res session.GestureResult
			if res, err = s.sessions.HandleGesture(ctx, c.sessionID, ev); err == nil {
				c.sendMessage(WSMessage{Type: MessageGesture, Data: res})
				continue
			}
		}
		_, code := statusFor(err)
		c.sendMessage(WSMessage{Type: MessageError, Error: &APIError{Code: code, Message: err.Error()}})
	}
}

// writePump writes queued frames and keeps the connection alive with pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
