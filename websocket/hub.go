package websocket

import (
	"encoding/json"
	"log"
	"sync"

	"github.com/gorilla/websocket"

	"school-evoting-backend/models"
)

// Client is one connected turnout watcher.
type Client struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub maintains the set of connected clients and broadcasts live turnout
// updates. There is a single election, so clients form one flat set.
type Hub struct {
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	mu         sync.RWMutex
}

// Message is the envelope sent over the wire.
type Message struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
	}
}

// Run processes register and unregister requests. Call in a goroutine.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			count := len(h.clients)
			h.mu.Unlock()
			log.Printf("turnout watcher connected, total: %d", count)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()
			log.Println("turnout watcher disconnected")
		}
	}
}

// BroadcastTurnout sends the aggregate results to every connected client.
// The payload is the anonymized tally only, never voter identities.
func (h *Hub) BroadcastTurnout(results *models.ElectionResults) {
	payload, err := json.Marshal(Message{Type: "turnout_update", Data: results})
	if err != nil {
		log.Printf("encoding turnout update failed: %v", err)
		return
	}
	h.broadcast(payload)
}

// BroadcastElectionState notifies clients when voting opens or closes.
func (h *Hub) BroadcastElectionState(open bool) {
	payload, err := json.Marshal(Message{Type: "election_state", Data: map[string]bool{"voting_open": open}})
	if err != nil {
		log.Printf("encoding state update failed: %v", err)
		return
	}
	h.broadcast(payload)
}

func (h *Hub) broadcast(payload []byte) {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	h.mu.RUnlock()

	for _, client := range clients {
		select {
		case client.send <- payload:
		default:
			// slow consumer, drop the connection
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()
		}
	}
}

// ClientCount returns the number of connected watchers.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) RegisterClient(client *Client) {
	h.register <- client
}

func (h *Hub) UnregisterClient(client *Client) {
	h.unregister <- client
}
