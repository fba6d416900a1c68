package service

import (
	"log/slog"
	"sync"
)

// Event types published by the workspace.
const (
	EventMessage        = "message"
	EventSession        = "session"
	EventSessionDeleted = "session_deleted"
	EventSuggestions    = "suggestions"
)

// Event is one change notification for a session.
type Event struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
	Data      any    `json:"data"`
}

// Broadcaster fans out events to subscribers of a session. Slow subscribers
// miss events rather than block the publisher.
type Broadcaster struct {
	mu      sync.RWMutex
	clients map[string]map[chan Event]struct{}
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{clients: make(map[string]map[chan Event]struct{})}
}

func (b *Broadcaster) Subscribe(sessionID string) chan Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Event, 64)
	if b.clients[sessionID] == nil {
		b.clients[sessionID] = make(map[chan Event]struct{})
	}
	b.clients[sessionID][ch] = struct{}{}
	slog.Debug("Client subscribed", "session_id", sessionID, "clients", len(b.clients[sessionID]))
	return ch
}

// Unsubscribe removes and closes ch. It is safe to call more than once.
func (b *Broadcaster) Unsubscribe(sessionID string, ch chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	clients, ok := b.clients[sessionID]
	if !ok {
		return
	}
	if _, ok := clients[ch]; !ok {
		return
	}
	delete(clients, ch)
	close(ch)
	if len(clients) == 0 {
		delete(b.clients, sessionID)
	}
}

func (b *Broadcaster) Publish(event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for ch := range b.clients[event.SessionID] {
		select {
		case ch <- event:
		default:
			slog.Warn("Subscriber channel full, dropping event", "session_id", event.SessionID, "type", event.Type)
		}
	}
}

// ClientCount returns the number of subscribers for a session.
func (b *Broadcaster) ClientCount(sessionID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients[sessionID])
}
