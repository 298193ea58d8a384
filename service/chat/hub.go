package chat

import (
	"PShare/module/chat/event"
	"sync"
)

// Hub is the node local channel registry: channel -> members and
// conn -> joined channels. Channels are room ids and personal "user:<id>"
// channels; event.ChannelAll reaches every connection.
type Hub struct {
	mu       sync.RWMutex
	channels map[string]map[*Conn]struct{}
	byConn   map[*Conn]map[string]struct{}
}

func NewHub() *Hub {
	return &Hub{
		channels: make(map[string]map[*Conn]struct{}),
		byConn:   make(map[*Conn]map[string]struct{}),
	}
}

func (h *Hub) add(c *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.byConn[c] = make(map[string]struct{})
}

// remove drops c and every subscription it held.
func (h *Hub) remove(c *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.byConn[c] {
		h.leaveLocked(c, ch)
	}
	delete(h.byConn, c)
}

func (h *Hub) Subscribe(c *Conn, channel string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	joined, ok := h.byConn[c]
	if !ok {
		return // already gone
	}
	m := h.channels[channel]
	if m == nil {
		m = make(map[*Conn]struct{})
		h.channels[channel] = m
	}
	m[c] = struct{}{}
	joined[channel] = struct{}{}
}

func (h *Hub) Unsubscribe(c *Conn, channel string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveLocked(c, channel)
}

func (h *Hub) leaveLocked(c *Conn, channel string) {
	if m := h.channels[channel]; m != nil {
		delete(m, c)
		if len(m) == 0 {
			delete(h.channels, channel)
		}
	}
	if joined := h.byConn[c]; joined != nil {
		delete(joined, channel)
	}
}

// Subscribed reports whether c is a member of channel.
func (h *Hub) Subscribed(c *Conn, channel string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.channels[channel][c]
	return ok
}

func (h *Hub) members(channel string) []*Conn {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if channel == event.ChannelAll {
		out := make([]*Conn, 0, len(h.byConn))
		for c := range h.byConn {
			out = append(out, c)
		}
		return out
	}
	m := h.channels[channel]
	out := make([]*Conn, 0, len(m))
	for c := range m {
		out = append(out, c)
	}
	return out
}

// deliver enqueues frame on every member of channel except the connection
// whose id is except. It returns how many queues accepted the frame.
func (h *Hub) deliver(channel, except string, frame []byte) int {
	n := 0
	for _, c := range h.members(channel) {
		if except != "" && c.ID == except {
			continue
		}
		if c.enqueue(frame) {
			n++
		}
	}
	return n
}

// Count is the number of live connections on this node.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.byConn)
}

// UserConns returns this node's connections of userID.
func (h *Hub) UserConns(userID string) []*Conn {
	h.mu.RLock()
	defer h.mu.RUnlock()
	var out []*Conn
	for c := range h.byConn {
		if c.UserID == userID {
			out = append(out, c)
		}
	}
	return out
}
