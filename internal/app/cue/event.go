// Package cue provides phase-enter cue events and fire-and-forget delivery
// to registered sinks (display, haptics, audio).
package cue

import "time"

// EventType represents a cue event type.
type EventType int

const (
	EventExerciseStarted  EventType = iota // An exercise phase began
	EventCooldownStarted                   // A cooldown phase began
	EventCountdownTick                     // Pre-roll countdown decremented
	EventSessionCompleted                  // No next phase exists
	EventSessionStopped                    // Session discarded by the user
	EventStateChanged                      // Pause/resume state change
)

// String returns the string representation of the event type.
func (e EventType) String() string {
	switch e {
	case EventExerciseStarted:
		return "exercise_started"
	case EventCooldownStarted:
		return "cooldown_started"
	case EventCountdownTick:
		return "countdown_tick"
	case EventSessionCompleted:
		return "session_completed"
	case EventSessionStopped:
		return "session_stopped"
	case EventStateChanged:
		return "state_changed"
	default:
		return "unknown"
	}
}

// Event represents a cue event.
type Event struct {
	Type             EventType
	ExerciseID       string // Current exercise (empty for cooldown/session events)
	ExerciseIndex    int
	SetIndex         int
	RemainingSeconds int // Phase or countdown seconds remaining
	At               time.Time
}
