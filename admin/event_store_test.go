package admin

import (
	"context"
	"fmt"
	"testing"

	"approvalflow/event"
)

func storedEvent(typ string, requestID string) event.Event {
	return event.NewEvent(event.EventType(typ)).WithRequest(requestID, "")
}

// ============================================================
// Store and list
// ============================================================

func TestEventStoreNewestFirst(t *testing.T) {
	s := NewEventStore(10)

	s.Store(storedEvent("request.created", "r-1"))
	s.Store(storedEvent("request.advanced", "r-1"))
	s.Store(storedEvent("request.approved", "r-1"))

	got := s.List(EventFilter{})
	if len(got) != 3 {
		t.Fatalf("events = %d, want 3", len(got))
	}
	if got[0].Type != "request.approved" || got[2].Type != "request.created" {
		t.Fatalf("order = %s, %s, %s", got[0].Type, got[1].Type, got[2].Type)
	}
}

func TestEventStoreFilters(t *testing.T) {
	s := NewEventStore(10)
	s.Store(storedEvent("request.created", "r-1"))
	s.Store(storedEvent("request.created", "r-2"))
	s.Store(storedEvent("request.approved", "r-1"))

	byType := s.List(EventFilter{Type: "request.created"})
	if len(byType) != 2 {
		t.Fatalf("by type = %d, want 2", len(byType))
	}
	byRequest := s.List(EventFilter{RequestID: "r-1"})
	if len(byRequest) != 2 {
		t.Fatalf("by request = %d, want 2", len(byRequest))
	}
	both := s.List(EventFilter{Type: "request.approved", RequestID: "r-1"})
	if len(both) != 1 {
		t.Fatalf("combined = %d, want 1", len(both))
	}
	if s.Count(EventFilter{RequestID: "r-1"}) != 2 {
		t.Fatalf("Count = %d, want 2", s.Count(EventFilter{RequestID: "r-1"}))
	}
}

func TestEventStorePagination(t *testing.T) {
	s := NewEventStore(100)
	for i := 0; i < 10; i++ {
		s.Store(storedEvent("request.created", fmt.Sprintf("r-%d", i)))
	}

	page := s.List(EventFilter{Limit: 3, Offset: 0})
	if len(page) != 3 || page[0].RequestID != "r-9" {
		t.Fatalf("first page = %+v", page)
	}
	page = s.List(EventFilter{Limit: 3, Offset: 9})
	if len(page) != 1 || page[0].RequestID != "r-0" {
		t.Fatalf("last page = %+v", page)
	}
	if got := s.List(EventFilter{Limit: 3, Offset: 50}); len(got) != 0 {
		t.Fatalf("past-end page = %+v", got)
	}
}

// ============================================================
// Bounding
// ============================================================

func TestEventStoreDropsOldest(t *testing.T) {
	s := NewEventStore(3)
	for i := 0; i < 5; i++ {
		s.Store(storedEvent("request.created", fmt.Sprintf("r-%d", i)))
	}

	if s.Len() != 3 {
		t.Fatalf("Len = %d, want 3", s.Len())
	}
	got := s.List(EventFilter{})
	if got[len(got)-1].RequestID != "r-2" {
		t.Fatalf("oldest survivor = %s, want r-2", got[len(got)-1].RequestID)
	}
}

func TestEventStoreClear(t *testing.T) {
	s := NewEventStore(10)
	s.Store(storedEvent("request.created", "r-1"))
	s.Clear()
	if s.Len() != 0 {
		t.Fatalf("Len = %d after Clear, want 0", s.Len())
	}
}

// ============================================================
// Bus integration
// ============================================================

func TestEventHandlerFeedsStore(t *testing.T) {
	s := NewEventStore(10)
	bus := event.NewMemoryEventBus()
	bus.SubscribeAll(s.EventHandler())

	bus.Publish(context.Background(), event.NewEvent(event.EventRequestCreated).WithRequest("r-1", "TR-00001"))
	bus.Publish(context.Background(), event.NewEvent(event.EventRequestApproved).WithRequest("r-1", "TR-00001"))

	if s.Len() != 2 {
		t.Fatalf("Len = %d, want 2", s.Len())
	}
	got := s.List(EventFilter{})
	if got[0].RequestNumber != "TR-00001" {
		t.Fatalf("stored event = %+v", got[0])
	}
}
