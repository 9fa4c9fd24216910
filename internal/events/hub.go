// Package events fans node notifications out to UI bridge clients.
package events

import (
	"sync"
	"time"
)

const (
	TypeMessage     = "message"
	TypeStreamStart = "stream_start"
	TypeStreamChunk = "stream_chunk"
	TypeSpeaking    = "speaking"
	TypeCapture     = "capture"
	TypeStatus      = "status"
)

type Event struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
	At   int64  `json:"at"` // unix ms
}

// Hub is a non-blocking broadcaster. A slow subscriber loses events
// instead of stalling the audio path. A nil *Hub drops everything.
type Hub struct {
	mu     sync.RWMutex
	subs   map[chan Event]struct{}
	buffer int
	status Event
}

func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = 64
	}
	return &Hub{subs: map[chan Event]struct{}{}, buffer: buffer}
}

// Subscribe returns a channel of events and a func that releases it.
// The latest status event is replayed first.
func (h *Hub) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, h.buffer)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	if h.status.Type != "" {
		ch <- h.status
	}
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, ch)
			close(ch)
			h.mu.Unlock()
		})
	}
}

func (h *Hub) Publish(typ string, data any) {
	if h == nil {
		return
	}
	ev := Event{Type: typ, Data: data, At: time.Now().UnixMilli()}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch := range h.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// SetStatus publishes a persistent status that new subscribers also receive.
func (h *Hub) SetStatus(state, message string) {
	if h == nil {
		return
	}
	data := map[string]string{"state": state}
	if message != "" {
		data["message"] = message
	}
	h.mu.Lock()
	h.status = Event{Type: TypeStatus, Data: data, At: time.Now().UnixMilli()}
	h.mu.Unlock()
	h.Publish(TypeStatus, data)
}

// Status returns the last persistent status event.
func (h *Hub) Status() (Event, bool) {
	if h == nil {
		return Event{}, false
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.status, h.status.Type != ""
}

func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}
