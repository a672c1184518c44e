package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/revitek/scheduling-engine/internal/realtime"
	"github.com/revitek/scheduling-engine/pkg/logger"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second
	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second
	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10
	// Maximum message size allowed from peer.
	maxMessageSize = 512
)

// WebSocketHandler upgrades admin dashboard connections and relays their
// watch requests to the realtime manager.
type WebSocketHandler struct {
	Upgrader websocket.Upgrader
	Manager  *realtime.SubscriptionManager
	Logger   *logger.Logger
}

// NewWebSocketHandler creates a new WebSocketHandler.
func NewWebSocketHandler(manager *realtime.SubscriptionManager, logger *logger.Logger) *WebSocketHandler {
	return &WebSocketHandler{
		Upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				// Origin checks are the API gateway's job in deployment;
				// standalone runs accept any origin.
				return true
			},
		},
		Manager: manager,
		Logger:  logger,
	}
}

// watchMessage is what clients send to choose what to watch.
type watchMessage struct {
	Type           string `json:"type"`
	ProfessionalID string `json:"professionalId,omitempty"`
	Date           string `json:"date,omitempty"` // "YYYY-MM-DD"
}

// HandleConnections upgrades the HTTP request and starts the pumps.
func (h *WebSocketHandler) HandleConnections(c *gin.Context) {
	conn, err := h.Upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.Logger.Error("Failed to upgrade WebSocket connection", "error", err)
		return
	}

	client := &realtime.Client{
		ID:      realtime.GenerateClientID(),
		Conn:    conn,
		Send:    make(chan []byte, 256),
		Manager: h.Manager,
	}
	h.Manager.EnqueueClientRegistration(client)

	go h.writePump(client)
	go h.readPump(client)
}

// readPump reads watch requests off the connection. There is at most one
// reader per connection.
func (h *WebSocketHandler) readPump(client *realtime.Client) {
	defer func() {
		client.Manager.UnregisterClient(client)
		client.Conn.Close()
	}()

	client.Conn.SetReadLimit(maxMessageSize)
	if err := client.Conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		h.Logger.Error("Failed to set read deadline", "clientId", client.ID, "error", err)
		return
	}
	client.Conn.SetPongHandler(func(string) error {
		return client.Conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := client.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.Logger.Error("WebSocket read error", "clientId", client.ID, "error", err)
			}
			break
		}

		var msg watchMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			h.Logger.Warn("Undecodable WebSocket message", "clientId", client.ID, "error", err)
			continue
		}

		switch msg.Type {
		case "watch":
			if msg.ProfessionalID == "" || msg.Date == "" {
				h.Logger.Warn("Watch message missing professionalId or date", "clientId", client.ID)
				continue
			}
			client.Manager.WatchSlots(client, realtime.WatchKey{
				ProfessionalID: msg.ProfessionalID,
				Date:           msg.Date,
			})
		default:
			h.Logger.Info("Unknown WebSocket message type", "clientId", client.ID, "type", msg.Type)
		}

		if err := client.Conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
			break
		}
	}
}

// writePump writes outbound messages and keepalive pings. There is at
// most one writer per connection.
func (h *WebSocketHandler) writePump(client *realtime.Client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		client.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-client.Send:
			if err := client.Conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				h.Logger.Error("Failed to set write deadline", "clientId", client.ID, "error", err)
			}
			if !ok {
				client.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := client.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				h.Logger.Error("WebSocket write failed", "clientId", client.ID, "error", err)
				return
			}
		case <-ticker.C:
			if err := client.Conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := client.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
