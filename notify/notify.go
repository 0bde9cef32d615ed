// Package notify delivers approval notifications to users.
package notify

import (
	"context"
	"errors"
)

// ErrNoChannel indicates no delivery channel is configured for a user.
var ErrNoChannel = errors.New("no notification channel for user")

// Notification describes a single message to deliver.
type Notification struct {
	// UserID is the recipient.
	UserID string

	// RequestID identifies the approval request this concerns.
	RequestID string

	// RequestNumber is the human-readable ticket number, if assigned.
	RequestNumber string

	// Stage is the workflow stage the notification relates to.
	Stage string

	// ActorName is the user whose action triggered the notification.
	ActorName string

	// Message is the rendered notification text.
	Message string
}

// Notifier delivers notifications to a single recipient.
type Notifier interface {
	// Send delivers the notification. Errors are reported to the caller
	// but delivery is best effort and must never block request processing.
	Send(ctx context.Context, n Notification) error
}

// NotifierFunc adapts a function to the Notifier interface.
type NotifierFunc func(ctx context.Context, n Notification) error

// Send calls f(ctx, n).
func (f NotifierFunc) Send(ctx context.Context, n Notification) error {
	return f(ctx, n)
}
