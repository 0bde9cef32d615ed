// Package admin provides the operations interface for the approval engine.
package admin

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"approvalflow/event"
)

// EventStore keeps a bounded in-memory log of recent engine events for
// the operations API. When the cap is exceeded the oldest events are
// dropped.
type EventStore struct {
	events    []StoredEvent
	maxEvents int
	mu        sync.RWMutex
	nextID    int64
}

// StoredEvent is one logged engine event.
type StoredEvent struct {
	ID            int64          `json:"id"`
	Type          string         `json:"type"`
	RequestID     string         `json:"request_id"`
	RequestNumber string         `json:"request_number,omitempty"`
	Stage         string         `json:"stage,omitempty"`
	ActorID       string         `json:"actor_id,omitempty"`
	Timestamp     time.Time      `json:"timestamp"`
	Data          map[string]any `json:"data,omitempty"`
	Error         string         `json:"error,omitempty"`
}

// EventFilter selects stored events.
type EventFilter struct {
	Type      string
	RequestID string
	Limit     int
	Offset    int
}

// NewEventStore creates an event store capped at maxEvents.
func NewEventStore(maxEvents int) *EventStore {
	if maxEvents <= 0 {
		maxEvents = 1000
	}
	return &EventStore{
		events:    make([]StoredEvent, 0, maxEvents),
		maxEvents: maxEvents,
	}
}

// Store converts and stores one engine event.
func (s *EventStore) Store(e event.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := atomic.AddInt64(&s.nextID, 1)

	var errorMsg string
	if e.Error != nil {
		errorMsg = e.Error.Error()
	}

	s.events = append(s.events, StoredEvent{
		ID:            id,
		Type:          string(e.Type),
		RequestID:     e.RequestID,
		RequestNumber: e.RequestNumber,
		Stage:         e.Stage,
		ActorID:       e.ActorID,
		Timestamp:     e.Timestamp,
		Data:          e.Data,
		Error:         errorMsg,
	})

	if len(s.events) > s.maxEvents {
		excess := len(s.events) - s.maxEvents
		s.events = s.events[excess:]
	}
}

// List returns events matching the filter, newest first.
func (s *EventStore) List(filter EventFilter) []StoredEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if filter.Limit <= 0 {
		filter.Limit = 100
	}

	var filtered []StoredEvent
	for i := len(s.events) - 1; i >= 0; i-- {
		e := s.events[i]
		if filter.Type != "" && e.Type != filter.Type {
			continue
		}
		if filter.RequestID != "" && e.RequestID != filter.RequestID {
			continue
		}
		filtered = append(filtered, e)
	}

	if filter.Offset >= len(filtered) {
		return []StoredEvent{}
	}

	start := filter.Offset
	end := start + filter.Limit
	if end > len(filtered) {
		end = len(filtered)
	}

	return filtered[start:end]
}

// Count returns the number of events matching the filter.
func (s *EventStore) Count(filter EventFilter) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if filter.Type == "" && filter.RequestID == "" {
		return len(s.events)
	}

	count := 0
	for _, e := range s.events {
		if filter.Type != "" && e.Type != filter.Type {
			continue
		}
		if filter.RequestID != "" && e.RequestID != filter.RequestID {
			continue
		}
		count++
	}
	return count
}

// EventHandler returns a handler suitable for EventBus.SubscribeAll.
func (s *EventStore) EventHandler() event.EventHandler {
	return func(ctx context.Context, e event.Event) error {
		s.Store(e)
		return nil
	}
}

// Clear removes all stored events.
func (s *EventStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = make([]StoredEvent, 0, s.maxEvents)
}

// Len returns the number of stored events.
func (s *EventStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.events)
}
