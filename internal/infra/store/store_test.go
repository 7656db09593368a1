package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hayase/setflow/internal/domain/session"
	"github.com/hayase/setflow/internal/domain/template"
)

func openTempStore(t *testing.T) (*Store, context.Context) {
	t.Helper()
	ctx := context.Background()
	s, err := Open(ctx, filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s, ctx
}

func testTemplate(id string) template.Template {
	return template.Template{
		ID:   id,
		Name: "Push day",
		Exercises: []template.Exercise{
			{ExerciseID: "push_up", DurationSeconds: 45},
			{ExerciseID: "squat", DurationSeconds: 45},
		},
		SetsCount:       3,
		CooldownSeconds: 20,
	}
}

func TestTemplates_RoundTrip(t *testing.T) {
	s, ctx := openTempStore(t)

	tpl := testTemplate("tpl-1")
	require.NoError(t, s.PutTemplate(ctx, tpl))

	got, err := s.GetTemplate(ctx, "tpl-1")
	require.NoError(t, err)
	assert.Equal(t, tpl, *got)

	// Upsert replaces.
	tpl.Name = "Leg day"
	tpl.SetsCount = 2
	require.NoError(t, s.PutTemplate(ctx, tpl))
	got, err = s.GetTemplate(ctx, "tpl-1")
	require.NoError(t, err)
	assert.Equal(t, "Leg day", got.Name)
	assert.Equal(t, 2, got.SetsCount)
}

func TestTemplates_GetMissing(t *testing.T) {
	s, ctx := openTempStore(t)

	_, err := s.GetTemplate(ctx, "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestTemplates_PutRejectsInvalid(t *testing.T) {
	s, ctx := openTempStore(t)

	tpl := testTemplate("tpl-bad")
	tpl.Exercises = nil
	err := s.PutTemplate(ctx, tpl)
	assert.ErrorIs(t, err, template.ErrInvalidTemplate)
}

func TestTemplates_ListAndDelete(t *testing.T) {
	s, ctx := openTempStore(t)

	a := testTemplate("tpl-a")
	a.Name = "A"
	b := testTemplate("tpl-b")
	b.Name = "B"
	require.NoError(t, s.PutTemplate(ctx, b))
	require.NoError(t, s.PutTemplate(ctx, a))

	tpls, err := s.ListTemplates(ctx)
	require.NoError(t, err)
	require.Len(t, tpls, 2)
	assert.Equal(t, "A", tpls[0].Name, "listed in name order")

	require.NoError(t, s.DeleteTemplate(ctx, "tpl-a"))
	tpls, err = s.ListTemplates(ctx)
	require.NoError(t, err)
	assert.Len(t, tpls, 1)

	// Deleting an unknown id is not an error.
	assert.NoError(t, s.DeleteTemplate(ctx, "tpl-a"))
}

func TestSnapshotSlot_SingleOwner(t *testing.T) {
	s, ctx := openTempStore(t)

	_, err := s.GetSnapshot(ctx)
	assert.ErrorIs(t, err, ErrNotFound, "empty slot")

	require.NoError(t, s.PutSnapshot(ctx, "sess-1", []byte(`{"v":1}`)))

	payload, err := s.GetSnapshot(ctx)
	require.NoError(t, err)
	assert.JSONEq(t, `{"v":1}`, string(payload))

	// Same session may overwrite.
	require.NoError(t, s.PutSnapshot(ctx, "sess-1", []byte(`{"v":2}`)))

	// A different session may not.
	err = s.PutSnapshot(ctx, "sess-2", []byte(`{"v":3}`))
	assert.ErrorIs(t, err, ErrSlotHeld)

	payload, err = s.GetSnapshot(ctx)
	require.NoError(t, err)
	assert.JSONEq(t, `{"v":2}`, string(payload), "held slot untouched by the loser")

	// Clearing releases the slot for the next session.
	require.NoError(t, s.ClearSnapshot(ctx))
	require.NoError(t, s.PutSnapshot(ctx, "sess-2", []byte(`{"v":3}`)))

	// Clearing an empty slot is fine.
	require.NoError(t, s.ClearSnapshot(ctx))
	assert.NoError(t, s.ClearSnapshot(ctx))
}

func TestSettings_DefaultsAndRoundTrip(t *testing.T) {
	s, ctx := openTempStore(t)

	got, err := s.GetSettings(ctx)
	require.NoError(t, err)
	assert.Equal(t, DefaultSettings(), got, "defaults before any save")

	want := Settings{CountdownEnabled: false, CountdownSeconds: 7}
	require.NoError(t, s.PutSettings(ctx, want))

	got, err = s.GetSettings(ctx)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestSettings_RejectsOutOfRange(t *testing.T) {
	s, ctx := openTempStore(t)

	assert.Error(t, s.PutSettings(ctx, Settings{CountdownSeconds: 0}))
	assert.Error(t, s.PutSettings(ctx, Settings{CountdownSeconds: 11}))
}

func TestHistory_AddAndList(t *testing.T) {
	s, ctx := openTempStore(t)

	base := time.Date(2025, 6, 1, 7, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		rec := session.NewRecord("tpl-1", base.AddDate(0, 0, i), base.AddDate(0, 0, i).Add(9*time.Minute))
		require.NoError(t, s.AddRecord(ctx, rec))
	}

	records, err := s.ListRecords(ctx, 0)
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.True(t, records[0].CompletedAt.After(records[2].CompletedAt), "newest first")
	assert.Equal(t, 9*time.Minute, records[0].Duration())

	limited, err := s.ListRecords(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}
