package cue

import (
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingSink collects events for assertions.
type recordingSink struct {
	mu     sync.Mutex
	events []Event
	err    error
	delay  time.Duration
}

func (s *recordingSink) Notify(e Event) error {
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	return s.err
}

func (s *recordingSink) received() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Event, len(s.events))
	copy(out, s.events)
	return out
}

func TestManager_SubscribeAndBroadcast(t *testing.T) {
	m := NewManager()
	defer m.Close()

	a := &recordingSink{}
	b := &recordingSink{}
	m.Subscribe(a)
	idB := m.Subscribe(b)
	require.Equal(t, 2, m.SubscriberCount())

	m.Broadcast(Event{Type: EventExerciseStarted, ExerciseID: "push_up"})

	require.Len(t, a.received(), 1)
	require.Len(t, b.received(), 1)
	assert.Equal(t, "push_up", a.received()[0].ExerciseID)

	m.Unsubscribe(idB)
	m.Broadcast(Event{Type: EventCooldownStarted})

	assert.Len(t, a.received(), 2)
	assert.Len(t, b.received(), 1, "unsubscribed sink receives nothing")
}

func TestManager_SinkErrorsIgnored(t *testing.T) {
	m := NewManager()
	defer m.Close()

	failing := &recordingSink{err: errors.New("speaker unplugged")}
	healthy := &recordingSink{}
	m.Subscribe(failing)
	m.Subscribe(healthy)

	m.Broadcast(Event{Type: EventSessionCompleted})

	assert.Len(t, healthy.received(), 1, "one broken sink must not affect others")
}

func TestManager_SlowSinkDoesNotBlock(t *testing.T) {
	m := NewManager()
	m.sendTimeout = 50 * time.Millisecond
	defer m.Close()

	slow := &recordingSink{delay: time.Second}
	m.Subscribe(slow)

	start := time.Now()
	m.Broadcast(Event{Type: EventCountdownTick})
	assert.Less(t, time.Since(start), 500*time.Millisecond, "broadcast must give up on slow sinks")
}

func TestEventType_String(t *testing.T) {
	tests := []struct {
		et   EventType
		want string
	}{
		{EventExerciseStarted, "exercise_started"},
		{EventCooldownStarted, "cooldown_started"},
		{EventCountdownTick, "countdown_tick"},
		{EventSessionCompleted, "session_completed"},
		{EventSessionStopped, "session_stopped"},
		{EventStateChanged, "state_changed"},
		{EventType(99), "unknown"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.et.String())
	}
}
