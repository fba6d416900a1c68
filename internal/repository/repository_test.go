package repository_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"study-buddy/backend/internal/model"
	"study-buddy/backend/internal/repository"
)

// failingKV fails every operation.
type failingKV struct{ err error }

func (f failingKV) Get(context.Context, string) (string, error) { return "", f.err }
func (f failingKV) Set(context.Context, string, string) error   { return f.err }
func (f failingKV) Delete(context.Context, string) error        { return f.err }

func TestNewKeys(t *testing.T) {
	keys := repository.NewKeys("")
	assert.Equal(t, "studybuddy_history_v2", keys.Sessions)
	assert.Equal(t, "studybuddy_user_v2", keys.User)

	custom := repository.NewKeys("lab")
	assert.Equal(t, "lab_theme_v1", custom.Theme)
	assert.Equal(t, "lab_active_v1", custom.Active)
	assert.Equal(t, "lab_environments_v1", custom.Environments)
}

func TestLoad(t *testing.T) {
	ctx := context.Background()

	t.Run("Missing key yields the default", func(t *testing.T) {
		got := repository.Load(ctx, repository.NewMemoryKV(), "k", "dark")
		assert.Equal(t, "dark", got)
	})

	t.Run("Malformed payload yields the default", func(t *testing.T) {
		kv := repository.NewMemoryKV()
		require.NoError(t, kv.Set(ctx, "k", `[{"id":`))

		got := repository.Load(ctx, kv, "k", []model.Session{})

		assert.NotNil(t, got)
		assert.Empty(t, got)
	})

	t.Run("Backend failure yields the default", func(t *testing.T) {
		got := repository.Load(ctx, failingKV{err: errors.New("boom")}, "k", 7)
		assert.Equal(t, 7, got)
	})

	t.Run("Timestamps round-trip", func(t *testing.T) {
		kv := repository.NewMemoryKV()
		ts := time.Date(2026, 3, 14, 15, 9, 26, 535000000, time.UTC)
		sessions := []model.Session{{
			ID:        "s1",
			Title:     "Kinematics",
			CreatedAt: ts,
			Messages:  []model.Message{{ID: "m1", Role: model.RoleUser, Content: "v = u + at", Timestamp: ts}},
		}}
		require.NoError(t, repository.Save(ctx, kv, "k", sessions))

		got := repository.Load(ctx, kv, "k", []model.Session(nil))

		require.Len(t, got, 1)
		assert.True(t, ts.Equal(got[0].CreatedAt))
		assert.True(t, ts.Equal(got[0].Messages[0].Timestamp))
		assert.Equal(t, "v = u + at", got[0].Messages[0].Content)
	})
}

func TestSave_BackendError(t *testing.T) {
	err := repository.Save(context.Background(), failingKV{err: errors.New("read-only")}, "k", 1)
	assert.ErrorContains(t, err, "could not write k")
}
