// Package runner provides the session orchestration layer: a periodic
// wall-clock sampler over the pure runtime state machine, cue emission,
// best-effort snapshot persistence and the user-facing session controls.
package runner

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	zlog "github.com/rs/zerolog/log"

	"github.com/hayase/setflow/internal/app/cue"
	"github.com/hayase/setflow/internal/app/runtime"
	"github.com/hayase/setflow/internal/app/snapshot"
	"github.com/hayase/setflow/internal/domain/session"
	"github.com/hayase/setflow/internal/domain/template"
	"github.com/hayase/setflow/internal/infra/store"
)

// Errors
var (
	ErrAlreadyStarted = errors.New("session already started")
	ErrSessionActive  = errors.New("another session is active")
)

// SnapshotStore persists the single active-session snapshot.
type SnapshotStore interface {
	PutSnapshot(ctx context.Context, sessionID string, payload []byte) error
	ClearSnapshot(ctx context.Context) error
}

// CompletionLog receives the completion handoff.
type CompletionLog interface {
	AddRecord(ctx context.Context, rec session.Record) error
}

// Config holds runner configuration.
type Config struct {
	TickInterval     time.Duration // Sampler period while a session is active
	CountdownEnabled bool          // Pre-roll before entering a phase
	CountdownSeconds int           // Pre-roll length, 1..10
}

// Runner drives one session from start to completion. It owns the only
// RuntimeState; all mutation happens synchronously under its lock in
// response to ticks and user actions, and the state is snapshotted after
// every observable change.
type Runner struct {
	mu sync.Mutex

	cfg       Config
	tpl       *template.Template
	sessionID string

	state     runtime.State
	completed bool
	stopped   bool

	cues      *cue.Manager
	snapshots SnapshotStore
	history   CompletionLog

	// Persistence failures are warned once per session, not per tick.
	persistWarned bool

	// Wall-clock anchor of the last countdown decrement.
	countdownAnchorMS int64

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	loops  sync.Once
}

// New creates a runner for a fresh session of the given template.
func New(cfg Config, tpl *template.Template, snapshots SnapshotStore, history CompletionLog, cues *cue.Manager) (*Runner, error) {
	if err := tpl.Validate(); err != nil {
		return nil, err
	}
	return newRunner(cfg, tpl, runtime.NewState(), uuid.New().String(), snapshots, history, cues), nil
}

// Restore creates a runner from a decoded snapshot of a suspended session.
// A running snapshot catches up on the first sample; a paused one waits for
// Resume.
func Restore(cfg Config, tpl *template.Template, snap *snapshot.Snapshot, snapshots SnapshotStore, history CompletionLog, cues *cue.Manager) (*Runner, error) {
	if err := tpl.Validate(); err != nil {
		return nil, err
	}
	return newRunner(cfg, tpl, snap.State(), snap.SessionID, snapshots, history, cues), nil
}

func newRunner(cfg Config, tpl *template.Template, st runtime.State, sessionID string, snapshots SnapshotStore, history CompletionLog, cues *cue.Manager) *Runner {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = 250 * time.Millisecond
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Runner{
		cfg:       cfg,
		tpl:       tpl,
		sessionID: sessionID,
		state:     st,
		cues:      cues,
		snapshots: snapshots,
		history:   history,
		ctx:       ctx,
		cancel:    cancel,
		done:      make(chan struct{}),
	}
}

// SessionID returns the session's id.
func (r *Runner) SessionID() string {
	return r.sessionID
}

// Done is closed when the session completes, is stopped, or Close is called.
func (r *Runner) Done() <-chan struct{} {
	return r.done
}

// Start begins a fresh session, or re-attaches the sampler to a restored
// one. For a fresh session the first phase is entered directly or behind the
// pre-roll countdown.
func (r *Runner) Start() error {
	return r.startAt(wallNowMS())
}

func (r *Runner) startAt(nowMS int64) error {
	r.mu.Lock()
	var events []cue.Event

	fresh := r.state.Status == runtime.StatusIdle && r.state.StartedAt == nil && !r.state.CountingDown()
	if fresh {
		st, err := runtime.Prepare(r.state, r.tpl)
		if err != nil {
			r.mu.Unlock()
			return err
		}
		r.state = st

		if r.cfg.CountdownEnabled {
			st, err = runtime.BeginCountdown(r.state, runtime.StatusExercise, r.cfg.CountdownSeconds)
			if err != nil {
				r.mu.Unlock()
				return err
			}
			r.state = st
			r.countdownAnchorMS = nowMS
			events = append(events, r.countdownEventLocked(nowMS))
		} else {
			st, err = runtime.EnterPhase(r.state, runtime.StatusExercise, nowMS)
			if err != nil {
				r.mu.Unlock()
				return err
			}
			r.state = st
			events = append(events, r.phaseEventLocked(nowMS))
		}
	} else if r.state.CountingDown() {
		// Restored mid-countdown; restart the decrement clock from now.
		r.countdownAnchorMS = nowMS
	}

	// The first write acquires the snapshot slot; losing that race means
	// another unresolved session exists and this one must not start. Any
	// other persistence failure is non-fatal.
	if err := r.persistLocked(nowMS); err != nil {
		if errors.Is(err, ErrSessionActive) {
			r.mu.Unlock()
			return err
		}
		r.warnPersistLocked(err)
	}
	r.mu.Unlock()

	r.broadcast(events)
	r.loops.Do(func() { go r.loop() })
	return nil
}

// loop is the periodic sampler. It exits when the session completes, is
// stopped, or the runner is closed.
func (r *Runner) loop() {
	ticker := time.NewTicker(r.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.ctx.Done():
			return
		case <-ticker.C:
			if r.Sample(time.Now()) {
				return
			}
		}
	}
}

// Sample reconciles the session against now and reports whether the session
// has ended. The sampler calls it on every tick; callers re-surfacing from a
// suspension may call it directly to catch up immediately.
func (r *Runner) Sample(now time.Time) bool {
	return r.sampleAt(wallMS(now))
}

func (r *Runner) sampleAt(nowMS int64) bool {
	r.mu.Lock()
	if r.completed || r.stopped {
		r.mu.Unlock()
		return true
	}

	var events []cue.Event
	persist := false

	switch {
	case r.state.CountingDown():
		// Drive whole-second decrements; a delayed tick may owe several.
		for r.state.CountingDown() && nowMS-r.countdownAnchorMS >= 1000 {
			r.countdownAnchorMS += 1000
			st, entered, err := runtime.TickCountdown(r.state, r.countdownAnchorMS)
			if err != nil {
				zlog.Error().Err(err).Msg("runner: countdown tick failed")
				break
			}
			r.state = st
			if entered {
				events = append(events, r.phaseEventLocked(nowMS))
				persist = true
			} else {
				events = append(events, r.countdownEventLocked(nowMS))
			}
		}

	case r.state.Running():
		before := phaseKey{r.state.Status, r.state.ExerciseIndex, r.state.SetIndex}
		st, done := runtime.AdvanceToNow(r.state, r.tpl, nowMS)
		r.state = st
		if done {
			r.completeLocked(nowMS)
			r.mu.Unlock()
			r.broadcast([]cue.Event{{Type: cue.EventSessionCompleted, At: time.UnixMilli(nowMS)}})
			return true
		}
		after := phaseKey{r.state.Status, r.state.ExerciseIndex, r.state.SetIndex}
		if before != after {
			events = append(events, r.phaseEventLocked(nowMS))
			persist = true
		}
	}

	if persist {
		if err := r.persistLocked(nowMS); err != nil {
			r.warnPersistLocked(err)
		}
	}
	r.mu.Unlock()

	r.broadcast(events)
	return false
}

// Pause suspends the running phase, folding its live remaining time.
func (r *Runner) Pause() error {
	return r.pauseAt(wallNowMS())
}

func (r *Runner) pauseAt(nowMS int64) error {
	r.mu.Lock()
	if r.state.CountingDown() {
		r.mu.Unlock()
		return runtime.ErrCountingDown
	}
	st, err := runtime.Pause(r.state, nowMS)
	if err != nil {
		r.mu.Unlock()
		return err
	}
	r.state = st
	if err := r.persistLocked(nowMS); err != nil {
		r.warnPersistLocked(err)
	}
	ev := cue.Event{
		Type:             cue.EventStateChanged,
		ExerciseIndex:    r.state.ExerciseIndex,
		SetIndex:         r.state.SetIndex,
		RemainingSeconds: r.state.RemainingSeconds,
		At:               time.UnixMilli(nowMS),
	}
	r.mu.Unlock()

	r.broadcast([]cue.Event{ev})
	return nil
}

// Resume re-enters the paused phase, behind the pre-roll when enabled.
func (r *Runner) Resume() error {
	return r.resumeAt(wallNowMS())
}

func (r *Runner) resumeAt(nowMS int64) error {
	r.mu.Lock()
	target, err := runtime.ResumeTarget(r.state)
	if err != nil {
		r.mu.Unlock()
		return err
	}

	var events []cue.Event
	if r.cfg.CountdownEnabled {
		st, err := runtime.BeginCountdown(r.state, target, r.cfg.CountdownSeconds)
		if err != nil {
			r.mu.Unlock()
			return err
		}
		r.state = st
		r.countdownAnchorMS = nowMS
		events = append(events, r.countdownEventLocked(nowMS))
	} else {
		st, err := runtime.EnterPhase(r.state, target, nowMS)
		if err != nil {
			r.mu.Unlock()
			return err
		}
		r.state = st
		events = append(events, r.phaseEventLocked(nowMS))
	}
	if err := r.persistLocked(nowMS); err != nil {
		r.warnPersistLocked(err)
	}
	r.mu.Unlock()

	r.broadcast(events)
	r.loops.Do(func() { go r.loop() })
	return nil
}

// SkipCooldown forces the current cooldown to expire; the next sample
// crosses the boundary into the following exercise or set.
func (r *Runner) SkipCooldown() error {
	return r.skipCooldownAt(wallNowMS())
}

func (r *Runner) skipCooldownAt(nowMS int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, err := runtime.SkipCooldown(r.state, nowMS)
	if err != nil {
		return err
	}
	r.state = st
	if err := r.persistLocked(nowMS); err != nil {
		r.warnPersistLocked(err)
	}
	return nil
}

// Stop discards the session unconditionally, from any state including
// mid-countdown. The snapshot slot is released; the state machine is not
// consulted.
func (r *Runner) Stop() error {
	r.mu.Lock()
	if r.completed || r.stopped {
		r.mu.Unlock()
		return nil
	}
	r.stopped = true
	r.state = runtime.NewState()
	r.cancel()
	close(r.done)
	r.mu.Unlock()

	if err := r.snapshots.ClearSnapshot(context.Background()); err != nil {
		zlog.Warn().Err(err).Msg("runner: failed to clear snapshot on stop")
	}
	r.broadcast([]cue.Event{{Type: cue.EventSessionStopped, At: time.Now()}})
	return nil
}

// Close releases the sampler without touching persisted state, leaving the
// snapshot in place for a later resume.
func (r *Runner) Close() {
	r.mu.Lock()
	ended := r.completed || r.stopped
	if !ended {
		r.stopped = true
		close(r.done)
	}
	r.mu.Unlock()
	r.cancel()
}

// Status returns the current runtime status.
func (r *Runner) Status() runtime.Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.Status
}

// State returns a copy of the current runtime state.
func (r *Runner) State() runtime.State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// CurrentRemaining returns the live remaining seconds of the current phase.
func (r *Runner) CurrentRemaining() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return runtime.CurrentRemaining(r.state, wallNowMS())
}

// Completed reports whether the session ran to completion.
func (r *Runner) Completed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.completed
}

// completeLocked handles the terminal transition: handoff to the completion
// log, release of the snapshot slot, sampler shutdown.
func (r *Runner) completeLocked(nowMS int64) {
	r.completed = true
	r.cancel()
	close(r.done)

	startedAt := nowMS
	if r.state.StartedAt != nil {
		startedAt = *r.state.StartedAt
	}
	rec := session.NewRecord(r.tpl.ID, time.UnixMilli(startedAt), time.UnixMilli(nowMS))
	if err := r.history.AddRecord(context.Background(), rec); err != nil {
		zlog.Error().Err(err).Msg("runner: completion handoff failed")
	}
	if err := r.snapshots.ClearSnapshot(context.Background()); err != nil {
		zlog.Warn().Err(err).Msg("runner: failed to clear snapshot on completion")
	}
	zlog.Info().
		Str("session_id", r.sessionID).
		Str("template_id", r.tpl.ID).
		Msg("runner: session completed")
}

// persistLocked snapshots the current state. Called after every observable
// change; failures are surfaced to the caller so Start can refuse a held
// slot, everything else treats them as best-effort.
func (r *Runner) persistLocked(nowMS int64) error {
	snap := snapshot.Encode(r.state, r.sessionID, r.tpl.ID, nowMS)
	payload, err := snapshot.Marshal(snap)
	if err != nil {
		return err
	}
	if err := r.snapshots.PutSnapshot(r.ctx, r.sessionID, payload); err != nil {
		if isSlotHeld(err) {
			return errors.WithSecondaryError(ErrSessionActive, err)
		}
		return err
	}
	return nil
}

// warnPersistLocked logs a persistence failure once per session.
func (r *Runner) warnPersistLocked(err error) {
	if r.persistWarned {
		return
	}
	r.persistWarned = true
	zlog.Warn().Err(err).Msg("runner: snapshot persistence failing, session continues in-memory")
}

type phaseKey struct {
	status  runtime.Status
	exIndex int
	set     int
}

func (r *Runner) phaseEventLocked(nowMS int64) cue.Event {
	ev := cue.Event{
		ExerciseIndex:    r.state.ExerciseIndex,
		SetIndex:         r.state.SetIndex,
		RemainingSeconds: runtime.CurrentRemaining(r.state, nowMS),
		At:               time.UnixMilli(nowMS),
	}
	if r.state.Status == runtime.StatusCooldown {
		ev.Type = cue.EventCooldownStarted
	} else {
		ev.Type = cue.EventExerciseStarted
		ev.ExerciseID = r.tpl.Exercises[r.state.ExerciseIndex].ExerciseID
	}
	return ev
}

func (r *Runner) countdownEventLocked(nowMS int64) cue.Event {
	return cue.Event{
		Type:             cue.EventCountdownTick,
		ExerciseIndex:    r.state.ExerciseIndex,
		SetIndex:         r.state.SetIndex,
		RemainingSeconds: r.state.CountdownRemaining,
		At:               time.UnixMilli(nowMS),
	}
}

func (r *Runner) broadcast(events []cue.Event) {
	for _, ev := range events {
		r.cues.Broadcast(ev)
	}
}

func isSlotHeld(err error) bool {
	return err != nil && errors.Is(err, store.ErrSlotHeld)
}

// wallNowMS returns the current wall-clock time in Unix milliseconds. The
// monotonic reading never participates in state timestamps, so a state
// persisted before a suspension reconciles against real elapsed time.
func wallNowMS() int64 {
	return wallMS(time.Now())
}

func wallMS(t time.Time) int64 {
	return time.Unix(t.Unix(), int64(t.Nanosecond())).UnixMilli()
}
