// Package realtime pushes slot-availability changes to connected admin
// dashboards over WebSocket. Clients watch a (professional, date) pair;
// whenever the generator or the lifecycle controller changes that day's
// slot set, a slots.changed bus event fans out to the watchers so they
// can refresh.
package realtime

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/revitek/scheduling-engine/pkg/events"
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

// WatchKey identifies what a client is watching.
type WatchKey struct {
	ProfessionalID string `json:"professionalId"`
	Date           string `json:"date"` // "YYYY-MM-DD"
}

// Client is a middleman between one websocket connection and the manager.
type Client struct {
	ID   string
	Conn *websocket.Conn
	// Buffered channel of outbound messages.
	Send chan []byte
	// Watch is the (professional, date) pair this client subscribed to.
	Watch   WatchKey
	Manager *SubscriptionManager
}

// SubscriptionManager maintains the set of active clients and fans bus
// events out to the ones watching the affected day.
type SubscriptionManager struct {
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	// watchers: watch key -> set of clients.
	watchers map[WatchKey]map[*Client]bool

	Logger     *logger.Logger
	Subscriber *events.Subscriber

	mu sync.RWMutex
}

// NewSubscriptionManager creates a new SubscriptionManager.
func NewSubscriptionManager(logger *logger.Logger, subscriber *events.Subscriber) *SubscriptionManager {
	return &SubscriptionManager{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		watchers:   make(map[WatchKey]map[*Client]bool),
		Logger:     logger,
		Subscriber: subscriber,
	}
}

// EnqueueClientRegistration sends a client to the manager's register
// channel for registration into the main client list.
func (m *SubscriptionManager) EnqueueClientRegistration(client *Client) {
	m.register <- client
}

// Run starts the subscription manager's event loop. Run it in a goroutine.
func (m *SubscriptionManager) Run() {
	m.Logger.Info("SubscriptionManager run loop started")
	for {
		select {
		case client := <-m.register:
			m.mu.Lock()
			m.clients[client] = true
			m.mu.Unlock()
			m.Logger.Info("Realtime client registered", "clientId", client.ID)
		case client := <-m.unregister:
			m.mu.Lock()
			if _, ok := m.clients[client]; ok {
				delete(m.clients, client)
				close(client.Send)
				for key, watchers := range m.watchers {
					if watchers[client] {
						delete(watchers, client)
						if len(watchers) == 0 {
							delete(m.watchers, key)
						}
					}
				}
				m.Logger.Info("Realtime client unregistered", "clientId", client.ID)
			}
			m.mu.Unlock()
		}
	}
}

// WatchSlots subscribes a client to slot changes for one
// (professional, date) pair, replacing any previous watch.
func (m *SubscriptionManager) WatchSlots(client *Client, key WatchKey) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if prev, ok := m.watchers[client.Watch]; ok {
		delete(prev, client)
		if len(prev) == 0 {
			delete(m.watchers, client.Watch)
		}
	}

	client.Watch = key
	if _, ok := m.watchers[key]; !ok {
		m.watchers[key] = make(map[*Client]bool)
	}
	m.watchers[key][client] = true
	m.Logger.Info("Realtime client watching slots",
		"clientId", client.ID, "professionalId", key.ProfessionalID, "date", key.Date)
}

// UnregisterClient removes a client from the manager. Called on
// disconnect; removal happens in the Run goroutine.
func (m *SubscriptionManager) UnregisterClient(client *Client) {
	m.unregister <- client
}

// sendToWatchers delivers a message to every client watching key. Slow
// clients get the message dropped rather than stalling the rest; their
// write pump closes the connection when writes actually fail.
func (m *SubscriptionManager) sendToWatchers(key WatchKey, message []byte) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	watchers, ok := m.watchers[key]
	if !ok {
		return
	}
	for client := range watchers {
		select {
		case client.Send <- message:
		default:
			m.Logger.Warn("Realtime client send buffer full, dropping message", "clientId", client.ID)
		}
	}
}

// GenerateClientID returns a unique id for a new connection.
func GenerateClientID() string {
	return uuid.New().String()
}

// Message is the envelope pushed to clients.
type Message struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// handleSlotsChanged fans one slots.changed bus event out to the clients
// watching that (professional, date).
func (m *SubscriptionManager) handleSlotsChanged(data []byte) error {
	var payload struct {
		ProfessionalID string `json:"professionalId"`
		Date           string `json:"date"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		m.Logger.Error("Failed to unmarshal slots.changed event", "error", err)
		return err
	}

	message, err := json.Marshal(Message{
		Type:    "slots_changed",
		Payload: payload,
	})
	if err != nil {
		m.Logger.Error("Failed to marshal realtime message", "error", err)
		return err
	}

	m.sendToWatchers(WatchKey{ProfessionalID: payload.ProfessionalID, Date: payload.Date}, message)
	return nil
}

// StartEventSubscriptions wires the manager to the bus. Safe to skip when
// no subscriber is available (development without NATS).
func (m *SubscriptionManager) StartEventSubscriptions() {
	if m.Subscriber == nil {
		m.Logger.Warn("No event subscriber configured; realtime updates disabled")
		return
	}
	if err := m.Subscriber.Subscribe(events.SlotsChangedEvent, m.handleSlotsChanged); err != nil {
		m.Logger.Error("Failed to subscribe to slots.changed", "error", err)
		return
	}
	m.Logger.Info("Realtime manager subscribed", "subject", events.SlotsChangedEvent)
}
