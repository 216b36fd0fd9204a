// Package notify delivers coach nudges to users over messaging channels.
//
// Re-engagement and other outbound notifications go through the Notifier
// interface so the engagement policy never depends on a concrete channel.
package notify

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// Notification is one outbound coach message.
type Notification struct {
	Title string
	Body  string
}

// Notifier sends notifications to a user's registered channel address.
type Notifier interface {
	Send(ctx context.Context, to string, n Notification) error
}

// FormatMessage renders a notification as a single chat message. Channels
// without a native title concept prepend it in bold.
func FormatMessage(n Notification) string {
	title := strings.TrimSpace(n.Title)
	body := strings.TrimSpace(n.Body)
	if title == "" {
		return body
	}
	if body == "" {
		return title
	}
	return fmt.Sprintf("*%s*\n\n%s", title, body)
}

// MockNotifier records sent notifications for tests.
type MockNotifier struct {
	mu   sync.Mutex
	Err  error
	sent []SentNotification
}

// SentNotification is one recorded delivery.
type SentNotification struct {
	To           string
	Notification Notification
}

func NewMockNotifier() *MockNotifier {
	return &MockNotifier{}
}

func (m *MockNotifier) Send(ctx context.Context, to string, n Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.sent = append(m.sent, SentNotification{To: to, Notification: n})
	return nil
}

// Sent returns a copy of the recorded deliveries.
func (m *MockNotifier) Sent() []SentNotification {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]SentNotification, len(m.sent))
	copy(out, m.sent)
	return out
}
