package service_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	app_errors "study-buddy/backend/internal/errors"
	"study-buddy/backend/internal/model"
	"study-buddy/backend/internal/repository"
	"study-buddy/backend/internal/service"
)

func TestProfileService_Login(t *testing.T) {
	ctx := context.Background()
	ws := setupWorkspace(t, repository.NewMemoryKV())
	profiles := service.NewProfileService(ws)

	t.Run("name falls back to the email local part", func(t *testing.T) {
		user, err := profiles.Login(ctx, &service.LoginRequest{Email: "grace@example.com"})

		require.NoError(t, err)
		assert.Equal(t, "grace", user.Name)
		assert.NotEmpty(t, user.Avatar)

		current, err := profiles.CurrentUser(ctx)
		require.NoError(t, err)
		assert.Equal(t, user, current)
	})

	t.Run("login overwrites the previous profile", func(t *testing.T) {
		_, err := profiles.Login(ctx, &service.LoginRequest{Name: "Grace Hopper", Email: "grace@example.com"})
		require.NoError(t, err)

		current, _ := profiles.CurrentUser(ctx)
		assert.Equal(t, "Grace Hopper", current.Name)
	})

	t.Run("invalid email", func(t *testing.T) {
		_, err := profiles.Login(ctx, &service.LoginRequest{Email: "nobody"})
		assert.ErrorIs(t, err, app_errors.ErrValidation)
	})

	t.Run("logout", func(t *testing.T) {
		profiles.Logout(ctx)

		_, err := profiles.CurrentUser(ctx)
		assert.ErrorIs(t, err, app_errors.ErrNotFound)
	})
}

func TestProfileService_Theme(t *testing.T) {
	ctx := context.Background()
	profiles := service.NewProfileService(setupWorkspace(t, repository.NewMemoryKV()))

	require.NoError(t, profiles.SetTheme(ctx, service.ThemeLight))
	assert.Equal(t, service.ThemeLight, profiles.Theme(ctx))

	assert.ErrorIs(t, profiles.SetTheme(ctx, "neon"), app_errors.ErrValidation)
	assert.Equal(t, service.ThemeLight, profiles.Theme(ctx))
}

func TestProfileService_Environments(t *testing.T) {
	ctx := context.Background()
	profiles := service.NewProfileService(setupWorkspace(t, repository.NewMemoryKV()))

	env, err := profiles.CreateEnvironment(ctx, &service.EnvironmentRequest{Name: "  Exam Prep ", Archetype: model.ArchetypeCoach})
	require.NoError(t, err)
	assert.Equal(t, "Exam Prep", env.Name)
	assert.Equal(t, model.SubjectGeneral, env.Subject)
	assert.Equal(t, model.ComplexityIntermediate, env.Complexity)
	assert.NotEmpty(t, env.ID)
	assert.Len(t, profiles.ListEnvironments(ctx), 1)

	_, err = profiles.CreateEnvironment(ctx, &service.EnvironmentRequest{Name: "Bad", Archetype: "wizard"})
	assert.ErrorIs(t, err, app_errors.ErrValidation)

	require.NoError(t, profiles.DeleteEnvironment(ctx, env.ID))
	assert.Empty(t, profiles.ListEnvironments(ctx))
	assert.ErrorIs(t, profiles.DeleteEnvironment(ctx, env.ID), app_errors.ErrNotFound)
}
