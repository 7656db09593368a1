// Package template provides the session Template domain entity.
package template

import (
	"github.com/cockroachdb/errors"
	"github.com/go-playground/validator/v10"
)

// MaxExercises is the maximum number of exercises a template may hold.
// Domain policy, not an algorithmic requirement.
const MaxExercises = 5

// ErrInvalidTemplate is returned when a template fails validation.
var ErrInvalidTemplate = errors.New("invalid template")

// Exercise represents a single timed exercise within a template.
type Exercise struct {
	ExerciseID      string `json:"exercise_id" validate:"required"`
	DurationSeconds int    `json:"duration_seconds" validate:"gt=0"`
}

// Template describes the shape of one session: an ordered exercise list,
// a set repeat count and a cooldown between exercises.
// Immutable once a session has started from it.
type Template struct {
	ID              string     `json:"id" validate:"required"`
	Name            string     `json:"name"`
	Exercises       []Exercise `json:"exercises" validate:"required,min=1,max=5,dive"`
	SetsCount       int        `json:"sets_count" validate:"gte=1"`
	CooldownSeconds int        `json:"cooldown_seconds" validate:"gte=0"`
}

// Validate checks the template shape. Called once when a session starts;
// the runtime assumes a pre-validated template afterwards.
func (t *Template) Validate() error {
	validate := validator.New()
	if err := validate.Struct(t); err != nil {
		return errors.WithSecondaryError(ErrInvalidTemplate, err)
	}
	return nil
}

// PhaseCount returns the total number of timed phases in one full session.
func (t *Template) PhaseCount() int {
	perSet := len(t.Exercises)
	if t.CooldownSeconds > 0 {
		perSet *= 2
	}
	return perSet * t.SetsCount
}

// TotalSeconds returns the configured duration of one full session.
func (t *Template) TotalSeconds() int {
	var perSet int
	for _, ex := range t.Exercises {
		perSet += ex.DurationSeconds
	}
	perSet += len(t.Exercises) * t.CooldownSeconds
	return perSet * t.SetsCount
}
