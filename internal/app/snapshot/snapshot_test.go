package snapshot

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hayase/setflow/internal/app/runtime"
)

func runningState(anchorMS int64, remaining int) runtime.State {
	started := anchorMS
	return runtime.State{
		Status:           runtime.StatusExercise,
		ExerciseIndex:    1,
		SetIndex:         2,
		RemainingSeconds: remaining,
		PhaseStartedAt:   &anchorMS,
		StartedAt:        &started,
	}
}

func TestEncode_ReanchorsRunningPhase(t *testing.T) {
	// Phase started at t=10s with 45s; encoding at t=22s must store
	// remaining=33 anchored at t=22s.
	s := runningState(10_000, 45)
	snap := Encode(s, "sess-1", "tpl-1", 22_000)

	assert.Equal(t, "sess-1", snap.SessionID)
	assert.Equal(t, "tpl-1", snap.TemplateID)
	assert.Equal(t, "exercise", snap.Status)
	assert.Equal(t, 33, snap.RemainingSeconds, "elapsed folded into remaining")
	require.NotNil(t, snap.PhaseStartedAt)
	assert.Equal(t, int64(22_000), *snap.PhaseStartedAt, "anchor rewritten to updatedAt")
	assert.Equal(t, int64(22_000), snap.UpdatedAt)
}

func TestEncode_PausedKeepsAbsoluteRemaining(t *testing.T) {
	s := runtime.State{
		Status:           runtime.StatusPaused,
		RemainingSeconds: 7,
		PausedPhase:      runtime.StatusCooldown,
		PausedAt:         msp(5_000),
	}
	snap := Encode(s, "sess-1", "tpl-1", 9_000)

	assert.Equal(t, "paused", snap.Status)
	assert.Equal(t, 7, snap.RemainingSeconds)
	assert.Nil(t, snap.PhaseStartedAt)
	assert.Equal(t, "cooldown", snap.PausedPhase)
}

func TestRoundTrip_PreservesCurrentRemaining(t *testing.T) {
	// decode(encode(state, now)) queried at the same now must agree with
	// currentRemaining(state, now): no elapsed time lost or double-counted.
	tests := []struct {
		name  string
		state runtime.State
		nowMS int64
	}{
		{name: "running mid phase", state: runningState(10_000, 45), nowMS: 22_000},
		{name: "running at start", state: runningState(10_000, 45), nowMS: 10_000},
		{name: "running past boundary", state: runningState(10_000, 45), nowMS: 80_000},
		{
			name: "paused",
			state: runtime.State{
				Status:           runtime.StatusPaused,
				RemainingSeconds: 12,
				PausedPhase:      runtime.StatusExercise,
				PausedAt:         msp(4_000),
			},
			nowMS: 22_000,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			want := runtime.CurrentRemaining(tt.state, tt.nowMS)

			payload, err := Marshal(Encode(tt.state, "sess-1", "tpl-1", tt.nowMS))
			require.NoError(t, err)

			snap, err := Decode(payload, tt.nowMS)
			require.NoError(t, err)

			got := runtime.CurrentRemaining(snap.State(), tt.nowMS)
			assert.Equal(t, want, got)
		})
	}
}

func TestDecode_ExpiryBoundary(t *testing.T) {
	dayMS := (24 * time.Hour).Milliseconds()
	now := int64(2_000_000_000_000)

	tests := []struct {
		name      string
		updatedAt int64
		wantErr   error
	}{
		{name: "one ms past the ceiling", updatedAt: now - dayMS - 1, wantErr: ErrExpired},
		{name: "one ms inside the ceiling", updatedAt: now - dayMS + 1, wantErr: nil},
		{name: "exactly at the ceiling", updatedAt: now - dayMS, wantErr: nil},
		{name: "fresh", updatedAt: now, wantErr: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := runningState(tt.updatedAt, 45)
			payload, err := Marshal(Encode(s, "sess-1", "tpl-1", tt.updatedAt))
			require.NoError(t, err)

			snap, err := Decode(payload, now)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, snap)
				return
			}
			require.NoError(t, err)
			require.NotNil(t, snap)
		})
	}
}

func TestDecode_Malformed(t *testing.T) {
	tests := []struct {
		name    string
		payload string
	}{
		{name: "not json", payload: `not json at all`},
		{name: "empty object", payload: `{}`},
		{name: "unknown status", payload: `{"session_id":"s","template_id":"t","status":"sprinting","updated_at":1}`},
		{name: "negative remaining", payload: `{"session_id":"s","template_id":"t","status":"paused","remaining_seconds":-3,"updated_at":1}`},
		{name: "missing template id", payload: `{"session_id":"s","status":"idle","updated_at":1}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap, err := Decode([]byte(tt.payload), 1_000)
			assert.ErrorIs(t, err, ErrMalformed)
			assert.Nil(t, snap)
		})
	}
}

func TestDecode_RunningWithoutAnchorCoercedToPaused(t *testing.T) {
	// A process death between setting status and writing the anchor must not
	// produce a resumable running state with undefined elapsed time.
	payload := []byte(`{
		"session_id": "sess-1",
		"template_id": "tpl-1",
		"status": "cooldown",
		"exercise_index": 1,
		"set_index": 0,
		"remaining_seconds": 12,
		"updated_at": 50000
	}`)

	snap, err := Decode(payload, 60_000)
	require.NoError(t, err)
	assert.Equal(t, "paused", snap.Status)
	assert.Equal(t, "cooldown", snap.PausedPhase)
	require.NotNil(t, snap.PausedAt)
	assert.Equal(t, int64(60_000), *snap.PausedAt)

	st := snap.State()
	assert.Equal(t, runtime.StatusPaused, st.Status)
	assert.Equal(t, runtime.StatusCooldown, st.PausedPhase)
	assert.False(t, st.Running())
}

func TestDecode_PausedWithoutPhaseGetsExercise(t *testing.T) {
	payload := []byte(`{"session_id":"s","template_id":"t","status":"paused","remaining_seconds":5,"updated_at":1000}`)
	snap, err := Decode(payload, 2_000)
	require.NoError(t, err)
	assert.Equal(t, "exercise", snap.PausedPhase)
	require.NotNil(t, snap.PausedAt)
}

func TestRoundTrip_CountdownSubState(t *testing.T) {
	s := runtime.State{
		Status:             runtime.StatusPaused,
		RemainingSeconds:   9,
		PausedPhase:        runtime.StatusExercise,
		PausedAt:           msp(1_000),
		CountdownRemaining: 2,
		CountdownTarget:    runtime.StatusExercise,
	}
	payload, err := Marshal(Encode(s, "sess-1", "tpl-1", 2_000))
	require.NoError(t, err)

	snap, err := Decode(payload, 2_000)
	require.NoError(t, err)

	st := snap.State()
	assert.True(t, st.CountingDown())
	assert.Equal(t, 2, st.CountdownRemaining)
	assert.Equal(t, runtime.StatusExercise, st.CountdownTarget)
}

func msp(v int64) *int64 { return &v }
