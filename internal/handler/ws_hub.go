package handler

import (
	"encoding/json"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// Event types sent over WebSocket.
const (
	EventTurnState       = "turn_state"
	EventPhaseAdvanced   = "phase_advanced"
	EventTurnAdvanced    = "turn_advanced"
	EventCheckResolved   = "check_resolved"
	EventDoctrineShifted = "doctrine_shifted"
	EventMilestone       = "milestone"
	EventCampaignStarted = "campaign_started"
	EventCampaignEnded   = "campaign_ended"
)

// WSEvent is the envelope for all WebSocket messages.
type WSEvent struct {
	Type       string `json:"type"`
	CampaignID string `json:"campaign_id"`
	Data       any    `json:"data"`
}

// ClientMessage is the envelope for messages sent from the client.
type ClientMessage struct {
	Action     string `json:"action"` // "subscribe" or "unsubscribe"
	CampaignID string `json:"campaign_id"`
}

// WSConn wraps a WebSocket connection with its user and subscriptions.
type WSConn struct {
	conn   *websocket.Conn
	userID string
	send   chan []byte
}

// Hub manages WebSocket connections and campaign-channel subscriptions.
type Hub struct {
	mu          sync.RWMutex
	connections map[*WSConn]bool
	campaigns   map[string]map[*WSConn]bool // campaignID -> set of connections
}

// NewHub creates a new Hub.
func NewHub() *Hub {
	return &Hub{
		connections: make(map[*WSConn]bool),
		campaigns:   make(map[string]map[*WSConn]bool),
	}
}

// Register adds a connection to the hub.
func (h *Hub) Register(c *WSConn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.connections[c] = true
}

// Unregister removes a connection from the hub and all its subscriptions.
func (h *Hub) Unregister(c *WSConn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.connections, c)
	for campaignID, conns := range h.campaigns {
		delete(conns, c)
		if len(conns) == 0 {
			delete(h.campaigns, campaignID)
		}
	}
	close(c.send)
}

// Subscribe adds a connection to a campaign channel.
func (h *Hub) Subscribe(c *WSConn, campaignID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.campaigns[campaignID] == nil {
		h.campaigns[campaignID] = make(map[*WSConn]bool)
	}
	h.campaigns[campaignID][c] = true
}

// Unsubscribe removes a connection from a campaign channel.
func (h *Hub) Unsubscribe(c *WSConn, campaignID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if conns, ok := h.campaigns[campaignID]; ok {
		delete(conns, c)
		if len(conns) == 0 {
			delete(h.campaigns, campaignID)
		}
	}
}

// BroadcastToCampaign sends an event to all connections subscribed to a campaign.
func (h *Hub) BroadcastToCampaign(campaignID string, event WSEvent) {
	data, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Str("campaignId", campaignID).Msg("Failed to marshal WebSocket event")
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.campaigns[campaignID] {
		select {
		case c.send <- data:
		default:
			log.Warn().Str("userId", c.userID).Str("campaignId", campaignID).Msg("Dropping WebSocket message, buffer full")
		}
	}
}

// BroadcastToUser sends an event to a specific user across all their connections.
func (h *Hub) BroadcastToUser(userID string, event WSEvent) {
	data, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Str("userId", userID).Msg("Failed to marshal WebSocket event")
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.connections {
		if c.userID == userID {
			select {
			case c.send <- data:
			default:
			}
		}
	}
}

// ConnectionCount returns the total number of active connections.
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.connections)
}

// CampaignSubscriberCount returns the number of connections subscribed to a campaign.
func (h *Hub) CampaignSubscriberCount(campaignID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.campaigns[campaignID])
}
