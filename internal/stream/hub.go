// Package stream fans committed message appends out to live subscribers.
package stream

import (
	"log/slog"
	"sync"
	"time"

	"github.com/symbiote-ai/symbiote/internal/domain"
)

// Event is one live update for a session feed.
type Event struct {
	Type      string    `json:"type"`
	SessionID string    `json:"session_id"`
	Role      string    `json:"role,omitempty"`
	Content   string    `json:"content,omitempty"`
	ImageRefs []string  `json:"image_refs,omitempty"`
	Timestamp time.Time `json:"ts"`
}

// Subscriber receives events for one session over a bounded channel.
type Subscriber struct {
	ch chan Event
}

// Events returns the subscriber's event channel. It is closed when the
// subscriber is unsubscribed.
func (s *Subscriber) Events() <-chan Event {
	return s.ch
}

// Hub is a per-session subscriber registry. Publishing never blocks: a
// subscriber that cannot keep up has events dropped, not queued without
// bound.
type Hub struct {
	mu   sync.RWMutex
	subs map[string]map[*Subscriber]struct{}
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[string]map[*Subscriber]struct{})}
}

// Subscribe registers a new subscriber for a session with the given buffer
// size.
func (h *Hub) Subscribe(sessionID string, buffer int) *Subscriber {
	if buffer <= 0 {
		buffer = 16
	}
	sub := &Subscriber{ch: make(chan Event, buffer)}

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[sessionID]; !ok {
		h.subs[sessionID] = make(map[*Subscriber]struct{})
	}
	h.subs[sessionID][sub] = struct{}{}
	return sub
}

// Unsubscribe removes a subscriber and closes its channel. Safe to call
// for a subscriber that was already removed.
func (h *Hub) Unsubscribe(sessionID string, sub *Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()

	sessionSubs, ok := h.subs[sessionID]
	if !ok {
		return
	}
	if _, ok := sessionSubs[sub]; !ok {
		return
	}
	delete(sessionSubs, sub)
	if len(sessionSubs) == 0 {
		delete(h.subs, sessionID)
	}
	close(sub.ch)
}

// Publish delivers an event to every subscriber of the session.
func (h *Hub) Publish(sessionID string, event Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for sub := range h.subs[sessionID] {
		select {
		case sub.ch <- event:
		default:
			slog.Debug("dropping event for slow stream subscriber", "session_id", sessionID)
		}
	}
}

// MessageAppended implements the session manager's Notifier: each committed
// message append becomes a live event.
func (h *Hub) MessageAppended(sessionID string, msg domain.ContextMessage) {
	h.Publish(sessionID, Event{
		Type:      "message",
		SessionID: sessionID,
		Role:      string(msg.Role),
		Content:   msg.Content,
		ImageRefs: msg.ImageRefs,
		Timestamp: time.Now(),
	})
}
