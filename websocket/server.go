// Package websocket provides the real-time event feed for gate observers.
// Committed call outcomes and epoch rollovers are pushed to connected
// clients as they happen; the feed is observational and lossy by design.
package websocket

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// MessageType represents the type of WebSocket message
type MessageType string

const (
	// MsgTypeGateEvent carries a committed call outcome
	MsgTypeGateEvent MessageType = "GATE_EVENT"
	// MsgTypeEpochEnd signals an epoch rollover
	MsgTypeEpochEnd MessageType = "EPOCH_END"
	// MsgTypeNodeStats carries periodic node counters
	MsgTypeNodeStats MessageType = "NODE_STATS"
)

// Message represents a WebSocket message to the frontend
type Message struct {
	Type      MessageType `json:"type"`
	Timestamp int64       `json:"timestamp"`
	Data      interface{} `json:"data"`
}

// NodeStats is the periodic counter payload
type NodeStats struct {
	TotalGates  uint64 `json:"total_gates"`
	ActiveGates uint64 `json:"active_gates"`
	TotalBurned uint64 `json:"total_burned"`
	CurrentFee  uint64 `json:"current_fee"`
	Epoch       uint16 `json:"epoch"`
	Clients     int    `json:"clients"`
}

// Hub manages WebSocket connections and broadcasts
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan *Message
	register   chan *Client
	unregister chan *Client
	mu         sync.RWMutex
}

// Client represents a connected WebSocket client
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan *Message
}

// upgrader configures the WebSocket upgrade
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for development
	},
}

// NewHub creates a new WebSocket hub
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan *Message, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
	}
}

// Run starts the hub's main loop
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			log.Printf("WebSocket client connected (total: %d)", h.ClientCount())
		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()
			log.Printf("WebSocket client disconnected (total: %d)", h.ClientCount())
		case message := <-h.broadcast:
			// A client that cannot keep up is dropped, not waited for
			var stale []*Client
			h.mu.RLock()
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					stale = append(stale, client)
				}
			}
			h.mu.RUnlock()

			if len(stale) > 0 {
				h.mu.Lock()
				for _, client := range stale {
					if _, ok := h.clients[client]; ok {
						delete(h.clients, client)
						close(client.send)
					}
				}
				h.mu.Unlock()
			}
		}
	}
}

// Broadcast sends a message to all connected clients
func (h *Hub) Broadcast(msg *Message) {
	msg.Timestamp = time.Now().UnixMilli()
	h.broadcast <- msg
}

// BroadcastGateEvent pushes a committed call outcome to all clients.
// The payload is the event publisher's GateEvent shape.
func (h *Hub) BroadcastGateEvent(event interface{}) {
	h.Broadcast(&Message{
		Type: MsgTypeGateEvent,
		Data: event,
	})
}

// BroadcastEpochEnd pushes an epoch rollover notification
func (h *Hub) BroadcastEpochEnd(epoch uint16) {
	h.Broadcast(&Message{
		Type: MsgTypeEpochEnd,
		Data: map[string]uint16{"epoch": epoch},
	})
}

// BroadcastNodeStats pushes the periodic counter snapshot
func (h *Hub) BroadcastNodeStats(stats *NodeStats) {
	stats.Clients = h.ClientCount()
	h.Broadcast(&Message{
		Type: MsgTypeNodeStats,
		Data: stats,
	})
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeWS handles WebSocket upgrade requests
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	client := &Client{
		hub:  h,
		conn: conn,
		send: make(chan *Message, 64),
	}

	h.register <- client

	go client.writePump()
	go client.readPump()
}

// writePump pumps messages from hub to the websocket connection
func (c *Client) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			data, err := json.Marshal(message)
			if err != nil {
				log.Printf("Failed to marshal message: %v", err)
				continue
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump pumps messages from the websocket connection to hub.
// The feed is one-way; client frames are drained and dropped.
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, _, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error: %v", err)
			}
			break
		}
	}
}

// Server provides the HTTP server for WebSocket connections
type Server struct {
	hub    *Hub
	server *http.Server
}

// NewServer creates a new WebSocket server
func NewServer(addr string) *Server {
	hub := NewHub()
	mux := http.NewServeMux()

	mux.HandleFunc("/ws", hub.ServeWS)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	return &Server{
		hub: hub,
		server: &http.Server{
			Addr:    addr,
			Handler: mux,
		},
	}
}

// Hub returns the WebSocket hub for broadcasting
func (s *Server) Hub() *Hub {
	return s.hub
}

// Start starts the WebSocket server
func (s *Server) Start(ctx context.Context) error {
	go s.hub.Run(ctx)
	log.Printf("WebSocket server starting on %s", s.server.Addr)
	return s.server.ListenAndServe()
}

// Stop gracefully stops the server
func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
