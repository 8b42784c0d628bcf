package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"otc-exchange/internal/events"
	"otc-exchange/internal/pda"
)

const logModule = "ws"

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func ListingTopic(addr pda.Address) string  { return "listing:" + addr.String() }
func PlatformTopic(addr pda.Address) string { return "platform:" + addr.String() }

// Msg is a message sent to clients.
type Msg struct {
	Type  string `json:"type"`
	Topic string `json:"topic"`
	Data  any    `json:"data"`
}

// Hub fans committed events out to clients subscribed to listing or platform topics.
type Hub struct {
	mu      sync.RWMutex
	rooms   map[string]map[*conn]bool // topic -> set of conns
	allConn map[*conn]bool
}

type conn struct {
	ws     *websocket.Conn
	send   chan []byte
	hub    *Hub
	topics map[string]bool
}

var _ events.Emitter = (*Hub)(nil)

func NewHub() *Hub {
	return &Hub{
		rooms:   make(map[string]map[*conn]bool),
		allConn: make(map[*conn]bool),
	}
}

// Emit pushes rec to the rooms of its listing and platform.
func (h *Hub) Emit(_ context.Context, rec events.Record) {
	if rec.Listing != nil {
		h.Publish(ListingTopic(*rec.Listing), string(rec.Kind), rec)
	}
	if rec.Platform != nil {
		h.Publish(PlatformTopic(*rec.Platform), string(rec.Kind), rec)
	}
}

// Publish sends a message to all subscribers of a topic.
func (h *Hub) Publish(topic, msgType string, data any) {
	msg := Msg{Type: msgType, Topic: topic, Data: data}
	b, err := json.Marshal(msg)
	if err != nil {
		log.WithFields(log.Fields{"module": logModule, "topic": topic, "err": err}).Warn("marshal message")
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.rooms[topic] {
		select {
		case c.send <- b:
		default:
			// slow client, drop
		}
	}
}

// Subscribers reports how many connections listen on topic.
func (h *Hub) Subscribers(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[topic])
}

// HandleWS is the HTTP handler for WebSocket connections.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	wsConn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.WithFields(log.Fields{"module": logModule, "err": err}).Warn("upgrade failed")
		return
	}
	c := &conn{
		ws:     wsConn,
		send:   make(chan []byte, 64),
		hub:    h,
		topics: make(map[string]bool),
	}
	h.mu.Lock()
	h.allConn[c] = true
	h.mu.Unlock()

	go c.writePump()
	go c.readPump()
}

func (c *conn) readPump() {
	defer func() {
		c.hub.removeConn(c)
		c.ws.Close()
	}()
	for {
		_, msg, err := c.ws.ReadMessage()
		if err != nil {
			break
		}
		// {"action":"subscribe","topic":"listing:<address>"}
		var sub struct {
			Action string `json:"action"`
			Topic  string `json:"topic"`
		}
		if err := json.Unmarshal(msg, &sub); err != nil || sub.Topic == "" {
			continue
		}
		switch sub.Action {
		case "subscribe":
			c.hub.subscribe(c, sub.Topic)
			c.ack("subscribed", sub.Topic)
		case "unsubscribe":
			c.hub.unsubscribe(c, sub.Topic)
			c.ack("unsubscribed", sub.Topic)
		}
	}
}

func (c *conn) ack(kind, topic string) {
	b, _ := json.Marshal(Msg{Type: kind, Topic: topic})
	c.hub.mu.RLock()
	defer c.hub.mu.RUnlock()
	if !c.hub.allConn[c] {
		return
	}
	select {
	case c.send <- b:
	default:
	}
}

func (c *conn) writePump() {
	defer c.ws.Close()
	for msg := range c.send {
		if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
			break
		}
	}
}

func (h *Hub) subscribe(c *conn, topic string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	c.topics[topic] = true
	room, ok := h.rooms[topic]
	if !ok {
		room = make(map[*conn]bool)
		h.rooms[topic] = room
	}
	room[c] = true
}

func (h *Hub) unsubscribe(c *conn, topic string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(c.topics, topic)
	h.leave(c, topic)
}

func (h *Hub) leave(c *conn, topic string) {
	if room, ok := h.rooms[topic]; ok {
		delete(room, c)
		if len(room) == 0 {
			delete(h.rooms, topic)
		}
	}
}

func (h *Hub) removeConn(c *conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.allConn, c)
	for topic := range c.topics {
		h.leave(c, topic)
	}
	close(c.send)
}
