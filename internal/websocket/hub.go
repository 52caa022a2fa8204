// Package websocket fans stored events and device status changes out to all
// connected dashboard sessions. Delivery is fire-and-forget, at-most-once per
// currently connected client; a client that connects late re-fetches a
// snapshot over HTTP instead of replaying missed messages.
package websocket

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"fleetwatch/internal/metrics"
	"fleetwatch/pkg/logging"
	"fleetwatch/pkg/models"
)

// Message types pushed to dashboard sessions
const (
	TypeNewEvent        = "new-event"
	TypeDeviceStatus    = "device-status"
	TypeAnalyticsUpdate = "analytics-update"
)

// Message is the envelope for every pushed message
type Message struct {
	Type      string      `json:"type"`
	Data      interface{} `json:"data"`
	Timestamp time.Time   `json:"timestamp"`
}

// DeviceStatusData is the payload of a device-status message
type DeviceStatusData struct {
	DeviceID string `json:"device_id"`
	Status   string `json:"status"`
}

// clientMessage is what a dashboard session may send upstream. Rooms carry
// no functional meaning; joins are acknowledged and logged only.
type clientMessage struct {
	Action string `json:"action"`
	Room   string `json:"room,omitempty"`
}

// Hub maintains the set of active clients and broadcasts messages to them.
// It holds no application state beyond the connection set.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	logger     logging.Logger
	metrics    *metrics.Metrics
	mutex      sync.RWMutex
}

// Client represents a connected dashboard session
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	logger logging.Logger
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// NewHub creates a new broadcast hub
func NewHub(logger logging.Logger, m *metrics.Metrics) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		logger:     logger,
		metrics:    m,
	}
}

// Run starts the hub's main loop
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mutex.Lock()
			h.clients[client] = true
			count := len(h.clients)
			h.mutex.Unlock()
			h.setConnectionGauge(count)
			h.logger.WithField("client_count", count).Info("Dashboard client connected")

		case client := <-h.unregister:
			h.mutex.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			count := len(h.clients)
			h.mutex.Unlock()
			h.setConnectionGauge(count)
			h.logger.WithField("client_count", count).Info("Dashboard client disconnected")

		case message := <-h.broadcast:
			h.mutex.Lock()
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					// Slow client; drop it rather than block the fan-out
					close(client.send)
					delete(h.clients, client)
				}
			}
			h.mutex.Unlock()
		}
	}
}

// BroadcastEvent pushes a newly stored event to all connected sessions
func (h *Hub) BroadcastEvent(event *models.Event) {
	h.push(TypeNewEvent, event)
}

// BroadcastDeviceStatus pushes a device status change to all connected sessions
func (h *Hub) BroadcastDeviceStatus(deviceID, status string) {
	h.push(TypeDeviceStatus, DeviceStatusData{DeviceID: deviceID, Status: status})
}

// BroadcastAnalytics pushes a recomputed analytics payload to all connected sessions
func (h *Hub) BroadcastAnalytics(payload interface{}) {
	h.push(TypeAnalyticsUpdate, payload)
}

func (h *Hub) push(msgType string, data interface{}) {
	message := Message{
		Type:      msgType,
		Data:      data,
		Timestamp: time.Now().UTC(),
	}

	messageJSON, err := json.Marshal(message)
	if err != nil {
		h.logger.WithError(err).Error("Failed to marshal broadcast message")
		return
	}

	select {
	case h.broadcast <- messageJSON:
		if h.metrics != nil {
			h.metrics.BroadcastMessages.WithLabelValues(msgType).Inc()
		}
	default:
		h.logger.Warn("Broadcast channel full, dropping message")
	}
}

func (h *Hub) setConnectionGauge(count int) {
	if h.metrics != nil {
		h.metrics.HubConnections.Set(float64(count))
	}
}

// ClientCount returns the number of connected sessions
func (h *Hub) ClientCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}

// ServeWS upgrades an HTTP request to a WebSocket session
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.WithError(err).Error("Failed to upgrade WebSocket connection")
		return
	}

	client := &Client{
		hub:    h,
		conn:   conn,
		send:   make(chan []byte, 256),
		logger: h.logger,
	}

	client.hub.register <- client

	go client.writePump()
	go client.readPump()
}

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 512
)

// readPump consumes client messages until the connection drops
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.WithError(err).Error("WebSocket connection error")
			}
			break
		}

		var msg clientMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			c.logger.WithError(err).Warn("Invalid client message")
			continue
		}

		if msg.Action == "join-room" {
			c.logger.WithField("room", msg.Room).Info("Client joined room")
			c.sendJSON(map[string]interface{}{"type": "room-joined", "room": msg.Room})
		}
	}
}

// writePump pushes hub messages to the client
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

func (c *Client) sendJSON(data map[string]interface{}) {
	message, err := json.Marshal(data)
	if err != nil {
		c.logger.WithError(err).Error("Failed to marshal client message")
		return
	}

	// Only the hub loop may close the send channel; a full buffer here just
	// drops the reply and leaves the client to the slow-client handling.
	select {
	case c.send <- message:
	default:
		c.logger.Warn("Client send buffer full, dropping message")
	}
}
