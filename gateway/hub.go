package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/cloudx-io/openmarket/core"
)

const (
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingInterval = 54 * time.Second
	sendBuffer   = 256
)

// allItems is the topic of subscribers that follow every item.
const allItems = "*"

// Hub broadcasts committed ledger events to WebSocket subscribers. It is a
// publish.Publisher, fed by the event fan-out.
type Hub struct {
	mu     sync.RWMutex
	topics map[string]map[*client]struct{}
	closed bool
}

type client struct {
	id    string
	topic string
	conn  *websocket.Conn
	send  chan []byte
	once  sync.Once
}

func NewHub() *Hub {
	return &Hub{topics: make(map[string]map[*client]struct{})}
}

func topicFor(id core.ItemID) string {
	return fmt.Sprintf("%d", id)
}

func (h *Hub) Name() string { return "websocket" }

// Publish delivers ev to subscribers of its item and of all items. Clients
// whose buffer is full are disconnected so they cannot stall the others.
func (h *Hub) Publish(_ context.Context, ev core.Event) error {
	payload, err := json.Marshal(struct {
		Type  string     `json:"type"`
		Event core.Event `json:"event"`
	}{Type: "event", Event: ev})
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	var slow []*client
	h.mu.RLock()
	for _, topic := range []string{topicFor(ev.ItemID), allItems} {
		for c := range h.topics[topic] {
			select {
			case c.send <- payload:
			default:
				slow = append(slow, c)
			}
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		log.Printf("WARNING: WebSocket client %s too slow, disconnecting", c.id)
		h.unregister(c)
	}
	return nil
}

// SubscriberCount returns the number of clients watching topic.
func (h *Hub) SubscriberCount(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.topics[topic])
}

// Close disconnects every client.
func (h *Hub) Close() error {
	h.mu.Lock()
	h.closed = true
	var all []*client
	for _, clients := range h.topics {
		for c := range clients {
			all = append(all, c)
		}
	}
	h.mu.Unlock()

	for _, c := range all {
		h.unregister(c)
	}
	return nil
}

func (h *Hub) register(conn *websocket.Conn, topic string) (*client, bool) {
	c := &client{
		id:    uuid.NewString(),
		topic: topic,
		conn:  conn,
		send:  make(chan []byte, sendBuffer),
	}
	if welcome, err := json.Marshal(map[string]string{"type": "connected", "topic": topic, "client_id": c.id}); err == nil {
		c.send <- welcome
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, false
	}
	if h.topics[topic] == nil {
		h.topics[topic] = make(map[*client]struct{})
	}
	h.topics[topic][c] = struct{}{}
	return c, true
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	if clients, ok := h.topics[c.topic]; ok {
		delete(clients, c)
		if len(clients) == 0 {
			delete(h.topics, c.topic)
		}
	}
	h.mu.Unlock()

	c.once.Do(func() { close(c.send) })
}

// serve runs the client's pumps until the connection ends.
func (h *Hub) serve(c *client) {
	go c.writePump()
	c.readPump()
	h.unregister(c)
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump only services control frames; subscribers do not send data.
func (c *client) readPump() {
	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("ERROR: WebSocket client %s: %v", c.id, err)
			}
			return
		}
	}
}
