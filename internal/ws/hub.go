package ws

import (
	"encoding/json"
	"sync"

	"github.com/tablemaster-pos/engine/internal/model"
)

// Channel names kitchen displays and front-desk screens subscribe to.
const (
	ChannelKitchen = "kitchen"
	ChannelFront   = "front"
)

// Event is a WebSocket message to be broadcast.
type Event struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type channelEvent struct {
	Channel string
	Event   Event
}

// Hub maintains the set of active clients per channel and broadcasts order
// events to them.
type Hub struct {
	rooms map[string]map[*Client]bool

	register   chan *Client
	unregister chan *Client
	broadcast  chan *channelEvent

	mu sync.RWMutex
}

func NewHub() *Hub {
	return &Hub{
		rooms:      make(map[string]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *channelEvent, 256),
	}
}

// Run starts the hub's main loop: `go hub.Run()`.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			if h.rooms[client.channel] == nil {
				h.rooms[client.channel] = make(map[*Client]bool)
			}
			h.rooms[client.channel][client] = true
			h.mu.Unlock()

		case client := <-h.unregister:
			h.mu.Lock()
			if clients, ok := h.rooms[client.channel]; ok {
				if _, exists := clients[client]; exists {
					delete(clients, client)
					close(client.send)
					if len(clients) == 0 {
						delete(h.rooms, client.channel)
					}
				}
			}
			h.mu.Unlock()

		case event := <-h.broadcast:
			h.mu.Lock()
			clients := h.rooms[event.Channel]

			message, err := json.Marshal(event.Event)
			if err != nil {
				h.mu.Unlock()
				continue
			}

			for client := range clients {
				select {
				case client.send <- message:
				default:
					// Client's send buffer is full, close and unregister.
					close(client.send)
					delete(h.rooms[event.Channel], client)
					if len(h.rooms[event.Channel]) == 0 {
						delete(h.rooms, event.Channel)
					}
				}
			}
			h.mu.Unlock()
		}
	}
}

// Broadcast sends an event to every client on a channel.
func (h *Hub) Broadcast(channel string, event Event) {
	h.broadcast <- &channelEvent{Channel: channel, Event: event}
}

// OrderUpdated pushes a status change to both the kitchen and front screens.
// Satisfies the lifecycle manager's Broadcaster collaborator.
func (h *Hub) OrderUpdated(order model.Order) {
	payload, err := json.Marshal(struct {
		ID     string `json:"id"`
		Status string `json:"status"`
		Type   string `json:"order_type"`
	}{order.ID, order.Status, order.OrderType})
	if err != nil {
		return
	}
	event := Event{Type: "order.updated", Payload: payload}
	h.Broadcast(ChannelKitchen, event)
	h.Broadcast(ChannelFront, event)
}
