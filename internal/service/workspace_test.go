package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	app_errors "study-buddy/backend/internal/errors"
	"study-buddy/backend/internal/model"
	"study-buddy/backend/internal/repository"
	"study-buddy/backend/internal/service"
)

func TestWorkspace_PersistAndReload(t *testing.T) {
	ctx := context.Background()
	kv := repository.NewMemoryKV()
	ws := setupWorkspace(t, kv)

	first := newSession(t, ws)
	second, err := ws.NewSession(ctx, service.NewSessionRequest{Grade: model.GradeEarlyCollege, Subject: model.SubjectMathematics, Mode: model.ModeDeep})
	require.NoError(t, err)
	require.True(t, ws.AppendMessages(ctx, second.ID,
		model.Message{ID: "u1", Role: model.RoleUser, Content: "integrate x^2", Timestamp: fixedNow},
		model.Message{ID: "a1", Role: model.RoleAssistant, Content: "x^3/3 + C", Timestamp: fixedNow.Add(time.Second), Status: model.StatusComplete},
	))
	require.NoError(t, ws.RenameSession(ctx, first.ID, "Biology"))

	// ACT
	reloaded := setupWorkspace(t, kv)

	// ASSERT
	want := ws.Sessions()
	got := reloaded.Sessions()
	require.Len(t, got, len(want))
	for i := range want {
		assert.Equal(t, want[i].ID, got[i].ID)
		assert.Equal(t, want[i].Title, got[i].Title)
		assert.True(t, want[i].CreatedAt.Equal(got[i].CreatedAt))
		require.Len(t, got[i].Messages, len(want[i].Messages))
		for j := range want[i].Messages {
			assert.Equal(t, want[i].Messages[j].Role, got[i].Messages[j].Role)
			assert.Equal(t, want[i].Messages[j].Content, got[i].Messages[j].Content)
			assert.True(t, want[i].Messages[j].Timestamp.Equal(got[i].Messages[j].Timestamp))
		}
	}
	assert.Equal(t, second.ID, reloaded.ActiveSessionID())
	assert.Equal(t, model.ModeDeep, got[0].Mode)
	assert.Equal(t, model.GradeEarlyCollege, got[0].Grade)
}

func TestWorkspace_MalformedPayloadLoadsEmpty(t *testing.T) {
	ctx := context.Background()
	kv := repository.NewMemoryKV()
	keys := repository.NewKeys("test")
	require.NoError(t, kv.Set(ctx, keys.Sessions, `[{"id":"1","title":"trunc`))
	require.NoError(t, kv.Set(ctx, keys.Active, `"1"`))

	ws := setupWorkspace(t, kv)

	assert.Empty(t, ws.Sessions())
	assert.Empty(t, ws.ActiveSessionID(), "active id must not dangle")
}

func TestWorkspace_ClosesRepliesInterruptedByRestart(t *testing.T) {
	// ARRANGE: the previous process stopped while two replies were open.
	ctx := context.Background()
	kv := repository.NewMemoryKV()
	keys := repository.NewKeys("test")
	require.NoError(t, repository.Save(ctx, kv, keys.Sessions, []model.Session{{
		ID:    "s1",
		Title: "New Chat",
		Messages: []model.Message{
			{ID: "u1", Role: model.RoleUser, Content: "why is the sky blue", Timestamp: fixedNow},
			{ID: "a1", Role: model.RoleAssistant, Content: "Rayleigh scatter", Timestamp: fixedNow, Status: model.StatusStreaming, IsThinking: true},
			{ID: "u2", Role: model.RoleUser, Content: "and sunsets?", Timestamp: fixedNow},
			{ID: "a2", Role: model.RoleAssistant, Timestamp: fixedNow, Status: model.StatusPending},
		},
	}}))

	// ACT
	ws := setupWorkspace(t, kv)

	// ASSERT
	s, ok := ws.Session("s1")
	require.True(t, ok)
	assert.False(t, s.TurnInProgress())
	assert.Equal(t, model.StatusErrored, s.Messages[1].Status)
	assert.False(t, s.Messages[1].IsThinking)
	assert.Equal(t, "Rayleigh scatter", s.Messages[1].Content, "partial content is kept")
	assert.Equal(t, model.StatusErrored, s.Messages[3].Status)
	assert.Equal(t, service.GenericErrorText, s.Messages[3].Content)
	assert.Empty(t, s.Messages[0].Status, "user messages are left alone")

	// The repair is persisted, not just applied in memory.
	persisted := repository.Load[[]model.Session](ctx, kv, keys.Sessions, nil)
	require.Len(t, persisted, 1)
	assert.Equal(t, model.StatusErrored, persisted[0].Messages[1].Status)
	assert.Equal(t, model.StatusErrored, persisted[0].Messages[3].Status)
}

func TestWorkspace_DeleteSession(t *testing.T) {
	ctx := context.Background()

	t.Run("deleting the active session activates the first remaining one", func(t *testing.T) {
		ws := setupWorkspace(t, repository.NewMemoryKV())
		older := newSession(t, ws)
		newer := newSession(t, ws)
		require.NoError(t, ws.SelectSession(ctx, older.ID))

		require.NoError(t, ws.DeleteSession(ctx, older.ID))

		assert.Equal(t, newer.ID, ws.ActiveSessionID())
	})

	t.Run("deleting the last session clears the active id", func(t *testing.T) {
		ws := setupWorkspace(t, repository.NewMemoryKV())
		only := newSession(t, ws)

		require.NoError(t, ws.DeleteSession(ctx, only.ID))

		assert.Empty(t, ws.ActiveSessionID())
	})

	t.Run("deleting another session keeps the active id", func(t *testing.T) {
		ws := setupWorkspace(t, repository.NewMemoryKV())
		older := newSession(t, ws)
		newer := newSession(t, ws)

		require.NoError(t, ws.DeleteSession(ctx, older.ID))

		assert.Equal(t, newer.ID, ws.ActiveSessionID())
	})

	t.Run("unknown id", func(t *testing.T) {
		ws := setupWorkspace(t, repository.NewMemoryKV())
		assert.ErrorIs(t, ws.DeleteSession(ctx, "nope"), app_errors.ErrNotFound)
	})
}

func TestWorkspace_NewSession(t *testing.T) {
	ctx := context.Background()
	ws := setupWorkspace(t, repository.NewMemoryKV())
	ws.SetUser(ctx, model.User{Name: "Ada", Email: "ada@example.com"})

	session := newSession(t, ws)

	assert.Equal(t, "New Chat", session.Title)
	assert.Equal(t, model.GradeHighSchool, session.Grade)
	assert.Equal(t, model.SubjectGeneral, session.Subject)
	assert.Equal(t, model.ModeFast, session.Mode)
	require.Len(t, session.Messages, 1)
	assert.Contains(t, session.Messages[0].Content, "Welcome back, Ada!")
	assert.Equal(t, session.ID, ws.ActiveSessionID())

	_, err := ws.NewSession(ctx, service.NewSessionRequest{Grade: "Kindergarten"})
	assert.ErrorIs(t, err, app_errors.ErrValidation)

	_, err = ws.NewSession(ctx, service.NewSessionRequest{EnvironmentID: "missing"})
	assert.ErrorIs(t, err, app_errors.ErrNotFound)
}

func TestWorkspace_UpdatesOnMissingSession(t *testing.T) {
	ctx := context.Background()
	ws := setupWorkspace(t, repository.NewMemoryKV())

	assert.False(t, ws.UpdateSession(ctx, "gone", func(s model.Session) model.Session { return s }))
	assert.False(t, ws.AppendMessages(ctx, "gone", model.Message{ID: "m"}))
	assert.False(t, ws.ReplaceMessage(ctx, "gone", model.Message{ID: "m"}))
	assert.False(t, ws.SetReplySuggestions("gone", []string{"x"}))
	assert.Empty(t, ws.Sessions())
	assert.ErrorIs(t, ws.RenameSession(ctx, "gone", "title"), app_errors.ErrNotFound)
}

func TestWorkspace_ReturnedSessionsAreCopies(t *testing.T) {
	ws := setupWorkspace(t, repository.NewMemoryKV())
	session := newSession(t, ws)

	got, _ := ws.Session(session.ID)
	got.Messages[0].Content = "tampered"

	again, _ := ws.Session(session.ID)
	assert.NotEqual(t, "tampered", again.Messages[0].Content)
}

func TestWorkspace_Environments(t *testing.T) {
	ctx := context.Background()
	kv := repository.NewMemoryKV()
	presets := []model.LearningEnvironment{{ID: "lab", Name: "Lab", Archetype: model.ArchetypeCoach}}

	ws := service.NewWorkspace(ctx, kv, repository.NewKeys("test"), service.WorkspaceOptions{Presets: presets})
	require.Len(t, ws.Environments(), 1)

	session, err := ws.NewSession(ctx, service.NewSessionRequest{EnvironmentID: "lab"})
	require.NoError(t, err)

	require.NoError(t, ws.DeleteEnvironment(ctx, "lab"))

	stored, _ := ws.Session(session.ID)
	assert.Empty(t, stored.EnvironmentID)
	assert.Empty(t, ws.Environments())

	// Presets only seed an empty store.
	reloaded := service.NewWorkspace(ctx, kv, repository.NewKeys("test"), service.WorkspaceOptions{Presets: presets})
	assert.Empty(t, reloaded.Environments())
}

func TestWorkspace_Reset(t *testing.T) {
	ctx := context.Background()
	ws := setupWorkspace(t, repository.NewMemoryKV())
	old := newSession(t, ws)
	newSession(t, ws)

	fresh, err := ws.Reset(ctx)

	require.NoError(t, err)
	sessions := ws.Sessions()
	require.Len(t, sessions, 1)
	assert.Equal(t, fresh.ID, sessions[0].ID)
	assert.Equal(t, fresh.ID, ws.ActiveSessionID())
	_, ok := ws.Session(old.ID)
	assert.False(t, ok)
}

func TestWorkspace_Events(t *testing.T) {
	ctx := context.Background()
	ws := setupWorkspace(t, repository.NewMemoryKV())
	session := newSession(t, ws)

	ch := ws.Events().Subscribe(session.ID)
	defer ws.Events().Unsubscribe(session.ID, ch)
	assert.Equal(t, 1, ws.Events().ClientCount(session.ID))

	msg := model.Message{ID: "m1", Role: model.RoleUser, Content: "hi"}
	require.True(t, ws.AppendMessages(ctx, session.ID, msg))

	select {
	case ev := <-ch:
		assert.Equal(t, service.EventMessage, ev.Type)
		assert.Equal(t, session.ID, ev.SessionID)
		assert.Equal(t, "hi", ev.Data.(model.Message).Content)
	case <-time.After(time.Second):
		t.Fatal("no event received")
	}

	require.NoError(t, ws.DeleteSession(ctx, session.ID))
	ev := <-ch
	assert.Equal(t, service.EventSessionDeleted, ev.Type)
}

func TestWorkspace_ThemeAndUser(t *testing.T) {
	ctx := context.Background()
	kv := repository.NewMemoryKV()
	ws := setupWorkspace(t, kv)
	assert.Equal(t, "dark", ws.Theme())
	assert.Nil(t, ws.User())

	ws.SetTheme(ctx, "light")
	ws.SetUser(ctx, model.User{Name: "Lin", Email: "lin@example.com"})

	reloaded := setupWorkspace(t, kv)
	assert.Equal(t, "light", reloaded.Theme())
	require.NotNil(t, reloaded.User())
	assert.Equal(t, "Lin", reloaded.User().Name)

	reloaded.ClearUser(ctx)
	assert.Nil(t, setupWorkspace(t, kv).User())
}

func TestBroadcaster_ClientCount(t *testing.T) {
	b := service.NewBroadcaster()
	a := b.Subscribe("s1")
	c := b.Subscribe("s1")
	b.Subscribe("s2")

	assert.Equal(t, 2, b.ClientCount("s1"))
	assert.Equal(t, 1, b.ClientCount("s2"))

	b.Unsubscribe("s1", a)
	b.Unsubscribe("s1", c)
	assert.Zero(t, b.ClientCount("s1"))
	assert.Zero(t, b.ClientCount("never"))
}
