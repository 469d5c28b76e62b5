package main

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/websocket"

	. "github.com/jbialy/tally_controller/util"

	"github.com/jbialy/tally_controller/tally"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // monitor surface is trusted-network only
	},
}

// WebSocketMessage represents a message sent over WebSocket
type WebSocketMessage struct {
	Data interface{} `json:"data"`
	Type string      `json:"type"`
}

// WSClient represents a connected WebSocket client
type WSClient struct {
	conn *websocket.Conn
	send chan WebSocketMessage
	hub  *WSHub
}

// WSHub maintains the set of active clients and broadcasts messages
type WSHub struct {
	clients    map[*WSClient]bool
	broadcast  chan WebSocketMessage
	register   chan *WSClient
	unregister chan *WSClient
}

// DeviceStatus is the monitor view of one input or output.
type DeviceStatus struct {
	Name    string `json:"name"`
	Running bool   `json:"running"`
}

// SystemStatus is the summary served at /api/status.
type SystemStatus struct {
	States   []tally.State   `json:"states"`
	Bindings []tally.Binding `json:"bindings"`
	Inputs   []DeviceStatus  `json:"inputs"`
	Outputs  []DeviceStatus  `json:"outputs"`
	Running  bool            `json:"running"`
}

var wsHub *WSHub

func init() {
	wsHub = NewHub()
	go wsHub.Run()
}

// NewHub creates a new WebSocket hub
func NewHub() *WSHub {
	return &WSHub{
		clients:    make(map[*WSClient]bool),
		broadcast:  make(chan WebSocketMessage),
		register:   make(chan *WSClient),
		unregister: make(chan *WSClient),
	}
}

// Run starts the WebSocket hub
func (h *WSHub) Run() {
	for {
		select {
		case client := <-h.register:
			h.clients[client] = true
			Logger.Info().Msg("Client connected to WebSocket")

		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
				Logger.Info().Msg("Client disconnected from WebSocket")
			}

		case message := <-h.broadcast:
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					close(client.send)
					delete(h.clients, client)
				}
			}
		}
	}
}

// BroadcastUpdate sends an update to all connected clients
func (h *WSHub) BroadcastUpdate(messageType string, data interface{}) {
	select {
	case h.broadcast <- WebSocketMessage{Type: messageType, Data: data}:
	default:
		// Channel is full, skip this update
	}
}

// readPump pumps messages from the websocket connection to the hub
func (c *WSClient) readPump() {
	defer func() {
		c.hub.unregister <- c
		if err := c.conn.Close(); err != nil {
			Logger.Error().Err(err).Msg("Error closing WebSocket connection")
		}
	}()

	for {
		_, _, err := c.conn.ReadMessage()
		if err != nil {
			break
		}
	}
}

// writePump pumps messages from the hub to the websocket connection
func (c *WSClient) writePump() {
	defer func() {
		if err := c.conn.Close(); err != nil {
			Logger.Error().Err(err).Msg("Error closing WebSocket connection")
		}
	}()

	for message := range c.send {
		if err := c.conn.WriteJSON(message); err != nil {
			return
		}
	}
	if err := c.conn.WriteMessage(websocket.CloseMessage, []byte{}); err != nil {
		Logger.Error().Err(err).Msg("Error writing close message")
	}
}

// ServeWebSocket handles websocket requests from the peer. Every
// client receives the full state snapshot on connect, then one
// message per tally change.
func ServeWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		Logger.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	client := &WSClient{
		conn: conn,
		send: make(chan WebSocketMessage, 256),
		hub:  wsHub,
	}
	client.send <- WebSocketMessage{Type: "snapshot", Data: manager.States()}

	client.hub.register <- client

	go client.writePump()
	go client.readPump()
}

// APISystemStatus returns the overall system status as JSON
func APISystemStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	status := SystemStatus{
		States:   manager.States(),
		Bindings: manager.Bindings(),
		Inputs:   deviceStatuses(manager.Inputs().Items()),
		Outputs:  deviceStatuses(manager.Outputs().Items()),
		Running:  manager.Running(),
	}
	if err := json.NewEncoder(w).Encode(status); err != nil {
		Logger.Error().Err(err).Msg("Error encoding system status")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}

// APIStates returns every cached tally state as JSON
func APIStates(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(manager.States()); err != nil {
		Logger.Error().Err(err).Msg("Error encoding states")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}

// APIBindings returns the output bindings as JSON
func APIBindings(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(manager.Bindings()); err != nil {
		Logger.Error().Err(err).Msg("Error encoding bindings")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}

func deviceStatuses(items []tally.IO) []DeviceStatus {
	statuses := make([]DeviceStatus, 0, len(items))
	for _, item := range items {
		statuses = append(statuses, DeviceStatus{Name: item.Name(), Running: item.Running()})
	}
	return statuses
}
