package runtime

import (
	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/hayase/setflow/internal/domain/template"
)

// Errors
var (
	ErrNotRunning   = errors.New("no phase running")
	ErrNotPaused    = errors.New("not paused")
	ErrNotCooldown  = errors.New("not in cooldown")
	ErrNotIdle      = errors.New("session already started")
	ErrCountingDown = errors.New("countdown in progress")
)

// maxBoundaryCrossings bounds one reconciliation pass. A pathological
// near-zero-duration template would otherwise loop forever; hitting the cap
// is reported as completion.
const maxBoundaryCrossings = 512

// Prepare positions an idle state at the first exercise of the first set
// without starting the clock. The caller then enters the phase directly or
// via a countdown pre-roll.
func Prepare(s State, tpl *template.Template) (State, error) {
	if s.Status != StatusIdle {
		return s, ErrNotIdle
	}
	s.ExerciseIndex = 0
	s.SetIndex = 0
	s.RemainingSeconds = tpl.Exercises[0].DurationSeconds
	return s, nil
}

// EnterPhase atomically enters target (exercise or cooldown) with a fresh
// phase anchor, clearing pause and countdown sub-state. RemainingSeconds is
// taken as already set: the prepared duration on first start, or the folded
// remaining time when resuming from pause.
func EnterPhase(s State, target Status, nowMS int64) (State, error) {
	if target != StatusExercise && target != StatusCooldown {
		return s, errors.Newf("cannot enter phase %s", target)
	}
	s.Status = target
	s.PhaseStartedAt = msPtr(nowMS)
	if s.StartedAt == nil {
		s.StartedAt = msPtr(nowMS)
	}
	s.PausedAt = nil
	s.PausedPhase = StatusIdle
	s.CountdownRemaining = 0
	s.CountdownTarget = StatusIdle
	return s, nil
}

// BeginCountdown arms a pre-roll of seconds targeting the given phase.
// The main machine stays idle or paused until the countdown finishes.
func BeginCountdown(s State, target Status, seconds int) (State, error) {
	if target != StatusExercise && target != StatusCooldown {
		return s, errors.Newf("cannot count down into %s", target)
	}
	if s.Running() {
		return s, errors.New("phase already running")
	}
	s.CountdownRemaining = seconds
	s.CountdownTarget = target
	return s, nil
}

// TickCountdown decrements the pre-roll by one second. When it reaches zero
// the state atomically enters the countdown target. The returned bool is true
// when the target phase was entered.
func TickCountdown(s State, nowMS int64) (State, bool, error) {
	if !s.CountingDown() {
		return s, false, errors.New("no countdown in progress")
	}
	s.CountdownRemaining--
	if s.CountdownRemaining > 0 {
		return s, false, nil
	}
	next, err := EnterPhase(s, s.CountdownTarget, nowMS)
	if err != nil {
		return s, false, err
	}
	return next, true, nil
}

// AdvanceToNow reconciles a running state against the current wall clock,
// crossing as many phase boundaries as the elapsed time covers in a single
// bounded pass. Each new phase is anchored at the exact boundary timestamp
// of its predecessor rather than at "now", so cumulative drift across any
// number of skipped phases is zero.
//
// For idle and paused states this is the identity. The returned flag is true
// when no next phase exists (the session completed) or the iteration cap was
// reached.
func AdvanceToNow(s State, tpl *template.Template, nowMS int64) (State, bool) {
	if !s.Running() {
		return s, false
	}

	for i := 0; ; i++ {
		anchor := *s.PhaseStartedAt
		elapsed := (nowMS - anchor) / 1000
		if elapsed < int64(s.RemainingSeconds) {
			return s, false
		}
		if i >= maxBoundaryCrossings {
			zlog.Warn().
				Int("cap", maxBoundaryCrossings).
				Msg("runtime: boundary iteration cap reached, forcing completion")
			return s, true
		}

		boundary := anchor + int64(s.RemainingSeconds)*1000
		next, ok := nextPhase(s, tpl)
		if !ok {
			return s, true
		}
		s = next
		s.PhaseStartedAt = msPtr(boundary)
	}
}

// nextPhase applies the boundary policy: an exercise is followed by a
// cooldown when one is configured, otherwise (and after every cooldown) the
// exercise/set pointer advances. Returns false when no phase remains.
func nextPhase(s State, tpl *template.Template) (State, bool) {
	if s.Status == StatusExercise && tpl.CooldownSeconds > 0 {
		s.Status = StatusCooldown
		s.RemainingSeconds = tpl.CooldownSeconds
		return s, true
	}
	if s.ExerciseIndex+1 < len(tpl.Exercises) {
		s.ExerciseIndex++
	} else if s.SetIndex+1 < tpl.SetsCount {
		s.ExerciseIndex = 0
		s.SetIndex++
	} else {
		return s, false
	}
	s.Status = StatusExercise
	s.RemainingSeconds = tpl.Exercises[s.ExerciseIndex].DurationSeconds
	return s, true
}

// CurrentRemaining returns the true remaining seconds of the current phase
// as of nowMS. Pure query, used for display and for snapshotting.
func CurrentRemaining(s State, nowMS int64) int {
	if !s.Running() {
		return s.RemainingSeconds
	}
	elapsed := int((nowMS - *s.PhaseStartedAt) / 1000)
	remaining := s.RemainingSeconds - elapsed
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Pause suspends a running phase, folding the live remaining time into
// RemainingSeconds and clearing the phase anchor.
func Pause(s State, nowMS int64) (State, error) {
	if !s.Running() {
		return s, ErrNotRunning
	}
	s.RemainingSeconds = CurrentRemaining(s, nowMS)
	s.PausedPhase = s.Status
	s.PausedAt = msPtr(nowMS)
	s.Status = StatusPaused
	s.PhaseStartedAt = nil
	return s, nil
}

// ResumeTarget returns the phase a paused session resumes into.
func ResumeTarget(s State) (Status, error) {
	if s.Status != StatusPaused {
		return StatusIdle, ErrNotPaused
	}
	return s.PausedPhase, nil
}

// SkipCooldown forces the current cooldown to expire: remaining drops to
// zero with a fresh anchor, so the next AdvanceToNow crosses the boundary
// immediately and moves to the next exercise or set.
func SkipCooldown(s State, nowMS int64) (State, error) {
	if s.Status != StatusCooldown || !s.Running() {
		return s, ErrNotCooldown
	}
	s.RemainingSeconds = 0
	s.PhaseStartedAt = msPtr(nowMS)
	return s, nil
}
