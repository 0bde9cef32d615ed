// Package event provides event definitions and the event bus for the
// approval workflow engine.
package event

import (
	"time"
)

// EventType identifies a class of engine event.
type EventType string

const (
	// Request lifecycle events
	EventRequestCreated     EventType = "request.created"
	EventRequestApproved    EventType = "request.approved"
	EventRequestAdvanced    EventType = "request.advanced"
	EventRequestRejected    EventType = "request.rejected"
	EventRequestReturned    EventType = "request.returned"
	EventRequestResubmitted EventType = "request.resubmitted"
	EventRequestCancelled   EventType = "request.cancelled"

	// Budget events
	EventBudgetRevised EventType = "budget.revised"

	// Notification events
	EventNotifyFailed EventType = "notify.failed"

	// Reminder events
	EventRemindScan EventType = "remind.scan"
	EventRemindSent EventType = "remind.sent"

	// Alert events
	EventAlertWarning  EventType = "alert.warning"
	EventAlertCritical EventType = "alert.critical"
)

// Event is one engine occurrence published to subscribers.
type Event struct {
	Type          EventType
	RequestID     string
	RequestNumber string
	Stage         string
	ActorID       string
	Timestamp     time.Time
	Data          map[string]any
	Error         error
}

// NewEvent creates an event of the given type, stamped now.
func NewEvent(eventType EventType) Event {
	return Event{
		Type:      eventType,
		Timestamp: time.Now(),
		Data:      make(map[string]any),
	}
}

// WithRequest sets the request identifiers on the event.
func (e Event) WithRequest(requestID, requestNumber string) Event {
	e.RequestID = requestID
	e.RequestNumber = requestNumber
	return e
}

// WithStage sets the stage name on the event.
func (e Event) WithStage(stage string) Event {
	e.Stage = stage
	return e
}

// WithActor sets the acting user on the event.
func (e Event) WithActor(actorID string) Event {
	e.ActorID = actorID
	return e
}

// WithError sets the error on the event.
func (e Event) WithError(err error) Event {
	e.Error = err
	return e
}

// WithData sets a key-value pair in the event data.
func (e Event) WithData(key string, value any) Event {
	if e.Data == nil {
		e.Data = make(map[string]any)
	}
	e.Data[key] = value
	return e
}

// String returns the string representation of the event type.
func (t EventType) String() string {
	return string(t)
}
