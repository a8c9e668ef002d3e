package notifications

import (
	"sync"
	"time"
)

// EventType represents the type of notification event
type EventType string

const (
	EventCatalogChanged EventType = "catalog-changed"
	EventDigestUpdate   EventType = "digest-update"
	EventPreviewUpdated EventType = "preview-updated"
	EventConnected      EventType = "connected"
)

// Event is one notification pushed to SSE subscribers
type Event struct {
	Type      EventType `json:"type"`
	Timestamp int64     `json:"timestamp"`
	Path      string    `json:"path,omitempty"`
	Data      any       `json:"data,omitempty"`
}

// Service fans events out to SSE subscribers. Slow subscribers drop
// events rather than block the publisher.
type Service struct {
	mu          sync.RWMutex
	subscribers map[chan Event]struct{}
}

// NewService creates a notification service
func NewService() *Service {
	return &Service{
		subscribers: make(map[chan Event]struct{}),
	}
}

// Subscribe returns an event channel and an unsubscribe function
func (s *Service) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, 10)

	s.mu.Lock()
	s.subscribers[ch] = struct{}{}
	s.mu.Unlock()

	unsubscribe := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if _, exists := s.subscribers[ch]; exists {
			delete(s.subscribers, ch)
			close(ch)
		}
	}
	return ch, unsubscribe
}

// Notify broadcasts an event to all subscribers
func (s *Service) Notify(event Event) {
	if event.Timestamp == 0 {
		event.Timestamp = time.Now().UnixMilli()
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	for ch := range s.subscribers {
		select {
		case ch <- event:
		default:
			// Subscriber is not keeping up, drop the event
		}
	}
}

// NotifyCatalogChanged announces a file create, update, move, or delete
func (s *Service) NotifyCatalogChanged(path, operation string) {
	s.Notify(Event{
		Type: EventCatalogChanged,
		Path: path,
		Data: map[string]interface{}{"operation": operation},
	})
}

// NotifyDigestUpdate announces new digest output for a file
func (s *Service) NotifyDigestUpdate(path string, data any) {
	s.Notify(Event{
		Type: EventDigestUpdate,
		Path: path,
		Data: data,
	})
}

// NotifyPreviewUpdated announces that a file preview became available.
// Satisfies the notifier the digest coordinator expects.
func (s *Service) NotifyPreviewUpdated(path, previewType string) {
	s.Notify(Event{
		Type: EventPreviewUpdated,
		Path: path,
		Data: map[string]interface{}{"previewType": previewType},
	})
}

// Shutdown closes every subscriber channel
func (s *Service) Shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for ch := range s.subscribers {
		close(ch)
	}
	s.subscribers = make(map[chan Event]struct{})
}

// SubscriberCount returns the number of active subscribers
func (s *Service) SubscriberCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subscribers)
}
