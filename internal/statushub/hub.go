// Package statushub fans device/flow events out to connected websocket
// clients as JSON. The teacher's own main.go drives an api.Hub with this
// exact shape (NewHub, go hub.Run(), hub.Broadcast(topic, payload)) but
// that type's definition lived in a package this module didn't retrieve —
// so this is a fresh implementation of the same call pattern, built on the
// standard gorilla/websocket broadcast-hub idiom.
package statushub

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Message is one broadcast event: a topic ("log", "error", "battery",
// ...) and an arbitrary JSON-serializable payload.
type Message struct {
	Topic   string      `json:"topic"`
	Payload interface{} `json:"payload"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Hub maintains the set of connected websocket clients and broadcasts
// Messages to all of them.
type Hub struct {
	mu         sync.Mutex
	clients    map[*client]struct{}
	broadcast  chan Message
	register   chan *client
	unregister chan *client
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// NewHub builds an idle Hub. Call Run in its own goroutine before serving
// any connections.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*client]struct{}),
		broadcast:  make(chan Message, 64),
		register:   make(chan *client),
		unregister: make(chan *client),
	}
}

// Run drives the hub's registration and broadcast loop. It never returns.
func (h *Hub) Run() {
	for {
		select {
		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = struct{}{}
			h.mu.Unlock()

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			h.mu.Unlock()

		case msg := <-h.broadcast:
			data, err := json.Marshal(msg)
			if err != nil {
				log.Printf("[statushub] marshal failed for topic %q: %v", msg.Topic, err)
				continue
			}
			h.mu.Lock()
			for c := range h.clients {
				select {
				case c.send <- data:
				default:
					delete(h.clients, c)
					close(c.send)
				}
			}
			h.mu.Unlock()
		}
	}
}

// Broadcast enqueues a topic/payload pair for delivery to every connected
// client. Never blocks the caller.
func (h *Hub) Broadcast(topic string, payload interface{}) {
	select {
	case h.broadcast <- Message{Topic: topic, Payload: payload}:
	default:
		log.Printf("[statushub] broadcast buffer full, dropping topic %q", topic)
	}
}

// ServeHTTP upgrades the request to a websocket connection and registers
// it with the hub. Clients are write-only: djistream never reads commands
// back over this channel.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[statushub] upgrade failed: %v", err)
		return
	}

	c := &client{conn: conn, send: make(chan []byte, 32)}
	h.register <- c

	go h.writePump(c)
	go h.readPump(c)
}

// readPump discards inbound frames; its only job is detecting disconnects
// promptly so writePump can unwind.
func (h *Hub) readPump(c *client) {
	defer func() {
		h.unregister <- c
		c.conn.Close()
	}()
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

const pingInterval = 30 * time.Second

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
