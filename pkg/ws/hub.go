// Package ws pushes live snapshot and position updates to connected
// frontends over WebSocket.
package ws

import (
	"encoding/json"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Message types sent to clients.
const (
	MsgTypeInit     = "init"     // vehicle list plus current snapshots
	MsgTypeSnapshot = "snapshot" // merged telemetry update for one VIN
	MsgTypePosition = "position" // GPS update for one VIN
	MsgTypeError    = "error"
)

// Message is the envelope for every frame.
type Message struct {
	Type string `json:"type"`
	VIN  string `json:"vin,omitempty"`
	Data any    `json:"data"`
}

// InitData is sent once when a client connects.
type InitData struct {
	Vehicles  any `json:"vehicles"`
	Snapshots any `json:"snapshots"`
}

// Client is one WebSocket connection.
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

// Hub fans messages out to all connected clients.
type Hub struct {
	logger     *zap.Logger
	clients    map[*Client]bool
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	mu         sync.RWMutex

	getInitData func() *InitData
}

func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		logger:     logger,
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
	}
}

// SetInitDataProvider registers the callback that assembles the initial
// payload for new clients. Safe to call while Run is active.
func (h *Hub) SetInitDataProvider(provider func() *InitData) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.getInitData = provider
}

// Run processes register, unregister and broadcast events. Blocks.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			h.logger.Info("websocket client connected", zap.Int("total_clients", h.ClientCount()))

			h.sendInitData(client)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()
			h.logger.Info("websocket client disconnected", zap.Int("total_clients", h.ClientCount()))

		case message := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					// Slow consumer, drop the connection.
					close(client.send)
					delete(h.clients, client)
				}
			}
			h.mu.Unlock()
		}
	}
}

func (h *Hub) sendInitData(client *Client) {
	h.mu.RLock()
	provider := h.getInitData
	h.mu.RUnlock()
	if provider == nil {
		return
	}

	initData := provider()
	if initData == nil {
		return
	}

	msg := Message{
		Type: MsgTypeInit,
		Data: initData,
	}

	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("marshal init data failed", zap.Error(err))
		return
	}

	select {
	case client.send <- data:
	default:
		h.logger.Warn("init data dropped, client buffer full")
	}
}

// Broadcast sends a raw frame to every client.
func (h *Hub) Broadcast(message []byte) {
	h.broadcast <- message
}

// BroadcastMessage sends a typed frame for one vehicle to every client.
func (h *Hub) BroadcastMessage(msgType, vin string, data any) {
	msg := Message{
		Type: msgType,
		VIN:  vin,
		Data: data,
	}

	jsonData, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("marshal broadcast message failed", zap.Error(err))
		return
	}

	h.Broadcast(jsonData)
}

// BroadcastSnapshot pushes a merged telemetry snapshot.
func (h *Hub) BroadcastSnapshot(vin string, snap any) {
	h.BroadcastMessage(MsgTypeSnapshot, vin, snap)
}

// BroadcastPosition pushes a GPS update.
func (h *Hub) BroadcastPosition(vin string, gps any) {
	h.BroadcastMessage(MsgTypePosition, vin, gps)
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func NewClient(hub *Hub, conn *websocket.Conn) *Client {
	return &Client{
		hub:  hub,
		conn: conn,
		send: make(chan []byte, 256),
	}
}

func (c *Client) Register() {
	c.hub.register <- c
}

func (c *Client) Unregister() {
	c.hub.unregister <- c
}

// ReadPump drains client frames to keep the connection alive. Inbound
// messages are ignored.
func (c *Client) ReadPump() {
	defer func() {
		c.Unregister()
		c.conn.Close()
	}()

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			break
		}
	}
}

// WritePump writes queued frames until the send channel closes.
func (c *Client) WritePump() {
	defer c.conn.Close()

	for message := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
			break
		}
	}
}
