// Package snapshot converts between live runtime state and the persisted,
// storage-safe representation of an in-progress session.
package snapshot

import (
	"encoding/json"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	zlog "github.com/rs/zerolog/log"

	"github.com/hayase/setflow/internal/app/runtime"
)

// MaxAge is the ceiling beyond which a persisted session is unrecoverable.
// A day of elapsed time could legitimately contain thousands of phase
// transitions, so the session is discarded instead of reconciled.
const MaxAge = 24 * time.Hour

// Errors
var (
	ErrExpired   = errors.New("snapshot expired")
	ErrMalformed = errors.New("snapshot malformed")
)

// Snapshot is the serializable projection of a session's runtime state plus
// countdown sub-state. Field names are not a compatibility surface; there is
// a single reader and writer.
type Snapshot struct {
	SessionID  string `json:"session_id" mapstructure:"session_id" validate:"required"`
	TemplateID string `json:"template_id" mapstructure:"template_id" validate:"required"`

	Status           string `json:"status" mapstructure:"status" validate:"oneof=idle exercise cooldown paused"`
	ExerciseIndex    int    `json:"exercise_index" mapstructure:"exercise_index" validate:"gte=0"`
	SetIndex         int    `json:"set_index" mapstructure:"set_index" validate:"gte=0"`
	RemainingSeconds int    `json:"remaining_seconds" mapstructure:"remaining_seconds" validate:"gte=0"`
	PhaseStartedAt   *int64 `json:"phase_started_at,omitempty" mapstructure:"phase_started_at"`
	StartedAt        *int64 `json:"started_at,omitempty" mapstructure:"started_at"`
	PausedAt         *int64 `json:"paused_at,omitempty" mapstructure:"paused_at"`
	PausedPhase      string `json:"paused_phase,omitempty" mapstructure:"paused_phase" validate:"omitempty,oneof=idle exercise cooldown"`

	CountdownRemaining int    `json:"countdown_remaining" mapstructure:"countdown_remaining" validate:"gte=0"`
	CountdownTarget    string `json:"countdown_target,omitempty" mapstructure:"countdown_target" validate:"omitempty,oneof=idle exercise cooldown"`

	UpdatedAt int64 `json:"updated_at" mapstructure:"updated_at" validate:"gt=0"`
}

// Encode projects a live state into its storable form as of nowMS.
// RemainingSeconds is recomputed so the stored value is always "remaining as
// of UpdatedAt", and a running phase is re-anchored at UpdatedAt: the elapsed
// portion has been folded into the remaining, so after a restore the clock
// counts from the restore point without double-counting.
func Encode(s runtime.State, sessionID, templateID string, nowMS int64) Snapshot {
	snap := Snapshot{
		SessionID:          sessionID,
		TemplateID:         templateID,
		Status:             s.Status.String(),
		ExerciseIndex:      s.ExerciseIndex,
		SetIndex:           s.SetIndex,
		RemainingSeconds:   runtime.CurrentRemaining(s, nowMS),
		StartedAt:          s.StartedAt,
		PausedAt:           s.PausedAt,
		CountdownRemaining: s.CountdownRemaining,
		UpdatedAt:          nowMS,
	}
	if s.Running() {
		anchored := nowMS
		snap.PhaseStartedAt = &anchored
	}
	if s.Status == runtime.StatusPaused {
		snap.PausedPhase = s.PausedPhase.String()
	}
	if s.CountdownTarget != runtime.StatusIdle {
		snap.CountdownTarget = s.CountdownTarget.String()
	}
	return snap
}

// Marshal serializes a snapshot for storage.
func Marshal(snap Snapshot) ([]byte, error) {
	data, err := json.Marshal(snap)
	if err != nil {
		return nil, errors.Wrap(err, "marshal snapshot")
	}
	return data, nil
}

// Decode parses, normalizes and validates a stored snapshot against nowMS.
// It never panics on bad input: malformed payloads return ErrMalformed and a
// snapshot older than MaxAge returns ErrExpired. A running status without a
// phase anchor (a process death mid-write) is coerced to paused, since
// elapsed time against a missing anchor is undefined.
func Decode(data []byte, nowMS int64) (*Snapshot, error) {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, errors.WithSecondaryError(ErrMalformed, err)
	}

	var snap Snapshot
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &snap,
		TagName:          "mapstructure",
		WeaklyTypedInput: true,
	})
	if err != nil {
		return nil, errors.Wrap(err, "create snapshot decoder")
	}
	if err := decoder.Decode(raw); err != nil {
		return nil, errors.WithSecondaryError(ErrMalformed, err)
	}

	validate := validator.New()
	if err := validate.Struct(&snap); err != nil {
		return nil, errors.WithSecondaryError(ErrMalformed, err)
	}

	if nowMS-snap.UpdatedAt > MaxAge.Milliseconds() {
		return nil, ErrExpired
	}

	snap.normalize(nowMS)
	return &snap, nil
}

// normalize repairs recoverable inconsistencies in place.
func (s *Snapshot) normalize(nowMS int64) {
	running := s.Status == runtime.StatusExercise.String() || s.Status == runtime.StatusCooldown.String()
	if running && s.PhaseStartedAt == nil {
		zlog.Warn().
			Str("status", s.Status).
			Msg("snapshot: running status without phase anchor, coercing to paused")
		s.PausedPhase = s.Status
		s.Status = runtime.StatusPaused.String()
		s.PausedAt = &nowMS
	}
	if s.Status == runtime.StatusPaused.String() && s.PausedAt == nil {
		s.PausedAt = &nowMS
	}
	if s.Status == runtime.StatusPaused.String() && s.PausedPhase == "" {
		s.PausedPhase = runtime.StatusExercise.String()
	}
}

// State reconstructs the runtime state a snapshot describes.
func (s *Snapshot) State() runtime.State {
	status, _ := runtime.ParseStatus(s.Status)
	pausedPhase, _ := runtime.ParseStatus(s.PausedPhase)
	countdownTarget, _ := runtime.ParseStatus(s.CountdownTarget)

	st := runtime.State{
		Status:             status,
		ExerciseIndex:      s.ExerciseIndex,
		SetIndex:           s.SetIndex,
		RemainingSeconds:   s.RemainingSeconds,
		PausedPhase:        pausedPhase,
		CountdownRemaining: s.CountdownRemaining,
		CountdownTarget:    countdownTarget,
	}
	if s.PhaseStartedAt != nil {
		v := *s.PhaseStartedAt
		st.PhaseStartedAt = &v
	}
	if s.StartedAt != nil {
		v := *s.StartedAt
		st.StartedAt = &v
	}
	if s.PausedAt != nil {
		v := *s.PausedAt
		st.PausedAt = &v
	}
	return st
}
