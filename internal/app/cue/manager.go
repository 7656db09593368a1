package cue

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Sink receives cue events. Implementations must not assume delivery order
// across concurrent broadcasts; errors are ignored by the manager.
type Sink interface {
	Notify(Event) error
}

// subscription represents a registered sink.
type subscription struct {
	id   string
	sink Sink
}

// Manager fans cue events out to registered sinks. Delivery is best-effort:
// each sink gets a bounded time slice and failures are dropped so a slow or
// broken cue device can never stall the session.
type Manager struct {
	mu            sync.RWMutex
	subscriptions map[string]*subscription
	sendTimeout   time.Duration
}

// NewManager creates a new cue manager.
func NewManager() *Manager {
	return &Manager{
		subscriptions: make(map[string]*subscription),
		sendTimeout:   500 * time.Millisecond,
	}
}

// Subscribe registers a sink and returns its subscription ID.
func (m *Manager) Subscribe(sink Sink) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := uuid.New().String()
	m.subscriptions[id] = &subscription{id: id, sink: sink}
	return id
}

// Unsubscribe removes a subscription.
func (m *Manager) Unsubscribe(subscriptionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.subscriptions, subscriptionID)
}

// Broadcast delivers an event to every sink. Each delivery runs in its own
// goroutine with a timeout; Broadcast returns once all have finished or
// timed out.
func (m *Manager) Broadcast(e Event) {
	m.mu.RLock()
	subs := make([]*subscription, 0, len(m.subscriptions))
	for _, sub := range m.subscriptions {
		subs = append(subs, sub)
	}
	m.mu.RUnlock()

	var wg sync.WaitGroup
	for _, sub := range subs {
		wg.Add(1)
		go func(s *subscription) {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), m.sendTimeout)
			defer cancel()

			done := make(chan error, 1)
			go func() {
				done <- s.sink.Notify(e)
			}()

			select {
			case <-done:
				// Sink errors are intentionally dropped.
			case <-ctx.Done():
				// Sink too slow, move on.
			}
		}(sub)
	}
	wg.Wait()
}

// SubscriberCount returns the number of registered sinks.
func (m *Manager) SubscriberCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.subscriptions)
}

// Close removes all subscriptions.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscriptions = make(map[string]*subscription)
}
