// Package httpapi — WebSocket hub for real-time auction broadcasting.
package httpapi

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/lanebid/auction-engine/internal/auction"
	"github.com/lanebid/auction-engine/internal/metrics"
	"github.com/lanebid/auction-engine/internal/model"
)

// WSMessage is a JSON message sent to WebSocket clients. Types mirror the
// event names the frontend listens for: auction:snapshot,
// auction:bid-update, auction:vehicle-sold, auction:vehicle-advance,
// auction:ended.
type WSMessage struct {
	Type      string    `json:"type"`
	Payload   any       `json:"payload"`
	Timestamp time.Time `json:"timestamp"`
}

// WSHub manages WebSocket connections and fans engine events out to all
// connected clients.
type WSHub struct {
	snapshot   func() model.SessionSnapshot
	clients    map[*websocket.Conn]bool
	broadcast  chan []byte
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
}

// NewWSHub creates a hub. The snapshot func supplies the hydration payload
// pushed to every client on connect.
func NewWSHub(snapshot func() model.SessionSnapshot) *WSHub {
	return &WSHub{
		snapshot:   snapshot,
		clients:    make(map[*websocket.Conn]bool),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
	}
}

// Run starts the hub's main event loop. Must be called in a goroutine.
func (h *WSHub) Run() {
	for {
		select {
		case conn := <-h.register:
			h.clients[conn] = true
			metrics.WebSocketClients.Set(float64(len(h.clients)))
			slog.Info("ws client connected", "total", len(h.clients))

		case conn := <-h.unregister:
			if _, ok := h.clients[conn]; ok {
				delete(h.clients, conn)
				conn.Close()
				metrics.WebSocketClients.Set(float64(len(h.clients)))
			}

		case msg := <-h.broadcast:
			for conn := range h.clients {
				if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
					conn.Close()
					delete(h.clients, conn)
				}
			}
			metrics.WebSocketClients.Set(float64(len(h.clients)))
		}
	}
}

// HandleEvent translates engine events into broadcast messages. Register
// it with Engine.Subscribe. Rejections and archive errors stay on the
// HTTP response path and are not broadcast.
func (h *WSHub) HandleEvent(ev auction.Event) {
	var msg WSMessage
	switch ev.Type {
	case auction.EventBidAccepted:
		msg = WSMessage{Type: "auction:bid-update", Payload: ev.Payload, Timestamp: ev.Timestamp}
	case auction.EventStateChanged:
		switch ev.Payload.(type) {
		case auction.VehicleSoldPayload:
			msg = WSMessage{Type: "auction:vehicle-sold", Payload: ev.Payload, Timestamp: ev.Timestamp}
		case auction.VehicleAdvancePayload:
			msg = WSMessage{Type: "auction:vehicle-advance", Payload: ev.Payload, Timestamp: ev.Timestamp}
		default:
			return
		}
	case auction.EventAuctionEnded:
		msg = WSMessage{Type: "auction:ended", Payload: struct{}{}, Timestamp: ev.Timestamp}
	default:
		return
	}
	h.send(msg)
}

func (h *WSHub) send(msg WSMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	select {
	case h.broadcast <- data:
	default:
		// Drop if buffer full to avoid blocking bid processing.
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		return true // Allow all origins during development.
	},
}

// HandleWS handles WebSocket upgrade requests at GET /ws.
func (h *WSHub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("ws upgrade failed", "err", err)
		return
	}

	// Initial hydration before joining the broadcast set.
	hello := WSMessage{Type: "auction:snapshot", Payload: h.snapshot(), Timestamp: time.Now().UTC()}
	if data, err := json.Marshal(hello); err == nil {
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			conn.Close()
			return
		}
	}

	h.register <- conn

	// Read pump: keep connection alive and detect disconnects.
	go func() {
		defer func() { h.unregister <- conn }()
		conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		conn.SetPongHandler(func(string) error {
			conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			return nil
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}
	}()

	// Ping ticker to keep connections alive through proxies.
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for range ticker.C {
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
				return
			}
		}
	}()
}
