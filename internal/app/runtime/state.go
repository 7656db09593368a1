// Package runtime provides the pure session-runtime state machine.
package runtime

// Status represents the runtime status of a session.
type Status int

const (
	StatusIdle     Status = iota // Not started, or session ended
	StatusExercise               // Timing the current exercise
	StatusCooldown               // Timing the rest after an exercise
	StatusPaused                 // A running phase suspended by the user
)

// String returns the string representation of the status.
func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusExercise:
		return "exercise"
	case StatusCooldown:
		return "cooldown"
	case StatusPaused:
		return "paused"
	default:
		return "unknown"
	}
}

// ParseStatus parses a status string. Returns false for unknown values.
func ParseStatus(s string) (Status, bool) {
	switch s {
	case "idle":
		return StatusIdle, true
	case "exercise":
		return StatusExercise, true
	case "cooldown":
		return StatusCooldown, true
	case "paused":
		return StatusPaused, true
	default:
		return StatusIdle, false
	}
}

// State is the runtime state of one session. All timestamps are wall-clock
// Unix milliseconds; the monotonic clock plays no part so that a state
// persisted before a long suspension reconciles correctly afterwards.
//
// Exactly one of the following holds at any time: PhaseStartedAt != nil
// (running), Status == StatusPaused, or Status == StatusIdle.
type State struct {
	Status        Status
	ExerciseIndex int // [0, len(Exercises))
	SetIndex      int // [0, SetsCount)

	// RemainingSeconds is authoritative as of PhaseStartedAt while running,
	// and absolute while idle or paused.
	RemainingSeconds int
	PhaseStartedAt   *int64 // nil when not running
	StartedAt        *int64 // set on first phase start, immutable after

	PausedAt    *int64 // set while paused
	PausedPhase Status // phase to resume into (exercise or cooldown)

	// Countdown pre-roll sub-state, orthogonal to Status. While
	// CountdownRemaining > 0 the main machine stays idle or paused and a
	// 1-second driver counts it down; at zero the session enters
	// CountdownTarget with a fresh phase anchor.
	CountdownRemaining int
	CountdownTarget    Status // StatusIdle when no countdown is pending
}

// Running reports whether a phase is actively timing.
func (s State) Running() bool {
	return (s.Status == StatusExercise || s.Status == StatusCooldown) && s.PhaseStartedAt != nil
}

// CountingDown reports whether a pre-roll countdown is in progress.
func (s State) CountingDown() bool {
	return s.CountdownRemaining > 0 && s.CountdownTarget != StatusIdle
}

// NewState returns the initial idle state.
func NewState() State {
	return State{Status: StatusIdle}
}

func msPtr(v int64) *int64 { return &v }
