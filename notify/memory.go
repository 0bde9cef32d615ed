package notify

import (
	"context"
	"sync"
)

// MemoryNotifier records notifications in memory. Intended for tests
// and local development.
type MemoryNotifier struct {
	mu   sync.Mutex
	sent []Notification

	// FailFor causes Send to return the mapped error for that user.
	failFor map[string]error
}

// NewMemoryNotifier creates an empty MemoryNotifier.
func NewMemoryNotifier() *MemoryNotifier {
	return &MemoryNotifier{failFor: make(map[string]error)}
}

// Send records the notification, or fails if the recipient is marked.
func (m *MemoryNotifier) Send(ctx context.Context, n Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err, ok := m.failFor[n.UserID]; ok {
		return err
	}
	m.sent = append(m.sent, n)
	return nil
}

// FailFor marks deliveries to userID to fail with err.
func (m *MemoryNotifier) FailFor(userID string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failFor[userID] = err
}

// Sent returns a copy of all recorded notifications.
func (m *MemoryNotifier) Sent() []Notification {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Notification, len(m.sent))
	copy(out, m.sent)
	return out
}

// SentTo returns notifications recorded for a single recipient.
func (m *MemoryNotifier) SentTo(userID string) []Notification {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Notification
	for _, n := range m.sent {
		if n.UserID == userID {
			out = append(out, n)
		}
	}
	return out
}

// Reset clears recorded notifications.
func (m *MemoryNotifier) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = nil
}

var _ Notifier = (*MemoryNotifier)(nil)
