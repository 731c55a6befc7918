package testutil

import (
	"context"
	"sync"

	"github.com/memberflow/memberflow/internal/notification"
	"github.com/memberflow/memberflow/internal/types"
)

var _ notification.Publisher = (*InMemoryNotificationPublisher)(nil)

// InMemoryNotificationPublisher captures published lifecycle events so
// tests can assert on what the external notifier would have received.
type InMemoryNotificationPublisher struct {
	mu     sync.RWMutex
	events []*types.NotificationEvent

	// PublishErr, when set, is returned from Publish so tests can
	// verify the fire-and-forget contract.
	PublishErr error
}

func NewInMemoryNotificationPublisher() *InMemoryNotificationPublisher {
	return &InMemoryNotificationPublisher{}
}

func (p *InMemoryNotificationPublisher) Publish(ctx context.Context, event *types.NotificationEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.PublishErr != nil {
		return p.PublishErr
	}
	p.events = append(p.events, event)
	return nil
}

func (p *InMemoryNotificationPublisher) Close() error {
	return nil
}

// Events returns the captured events in publish order
func (p *InMemoryNotificationPublisher) Events() []*types.NotificationEvent {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]*types.NotificationEvent(nil), p.events...)
}

// EventNames returns the captured event names in publish order
func (p *InMemoryNotificationPublisher) EventNames() []types.NotificationEventName {
	p.mu.RLock()
	defer p.mu.RUnlock()
	names := make([]types.NotificationEventName, 0, len(p.events))
	for _, event := range p.events {
		names = append(names, event.EventName)
	}
	return names
}

// HasEvent reports whether an event with the given name was published
func (p *InMemoryNotificationPublisher) HasEvent(name types.NotificationEventName) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, event := range p.events {
		if event.EventName == name {
			return true
		}
	}
	return false
}

// Clear drops the captured events
func (p *InMemoryNotificationPublisher) Clear() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = nil
	p.PublishErr = nil
}
