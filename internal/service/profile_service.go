package service

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/google/uuid"

	app_errors "study-buddy/backend/internal/errors"
	"study-buddy/backend/internal/model"
)

// Themes accepted by SetTheme.
const (
	ThemeDark  = "dark"
	ThemeLight = "light"
)

// LoginRequest is the sign-in form. There is no real authentication: the
// profile is synthesized from what the user typed.
type LoginRequest struct {
	Name  string `json:"name" validate:"max=80"`
	Email string `json:"email" validate:"required,email"`
}

// EnvironmentRequest is the payload for a new learning environment.
type EnvironmentRequest struct {
	Name        string           `json:"name" validate:"required,max=60"`
	Icon        string           `json:"icon" validate:"max=16"`
	Subject     model.Subject    `json:"subject"`
	Complexity  model.Complexity `json:"complexity"`
	Archetype   model.Archetype  `json:"archetype"`
	Instruction string           `json:"instruction" validate:"max=4000"`
}

// ProfileService manages the user profile, theme and learning environments.
type ProfileService struct {
	ws *Workspace
}

func NewProfileService(ws *Workspace) *ProfileService {
	return &ProfileService{ws: ws}
}

// Login synthesizes a profile and replaces any previous one.
func (s *ProfileService) Login(ctx context.Context, req *LoginRequest) (*model.User, error) {
	email := strings.TrimSpace(req.Email)
	local, _, ok := strings.Cut(email, "@")
	if !ok || local == "" {
		return nil, fmt.Errorf("%w: invalid email address", app_errors.ErrValidation)
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		name = local
	}
	user := model.User{
		Name:   name,
		Email:  email,
		Avatar: "https://picsum.photos/seed/" + url.PathEscape(email) + "/100/100",
	}
	s.ws.SetUser(ctx, user)
	slog.Info("User signed in", "name", user.Name)
	return &user, nil
}

func (s *ProfileService) Logout(ctx context.Context) {
	s.ws.ClearUser(ctx)
	slog.Info("User signed out")
}

// CurrentUser returns the signed-in profile or ErrNotFound.
func (s *ProfileService) CurrentUser(_ context.Context) (*model.User, error) {
	u := s.ws.User()
	if u == nil {
		return nil, fmt.Errorf("%w: no user is signed in", app_errors.ErrNotFound)
	}
	return u, nil
}

func (s *ProfileService) Theme(_ context.Context) string {
	return s.ws.Theme()
}

func (s *ProfileService) SetTheme(ctx context.Context, theme string) error {
	switch theme {
	case ThemeDark, ThemeLight:
	default:
		return fmt.Errorf("%w: theme must be %q or %q", app_errors.ErrValidation, ThemeDark, ThemeLight)
	}
	s.ws.SetTheme(ctx, theme)
	return nil
}

func (s *ProfileService) ListEnvironments(_ context.Context) []model.LearningEnvironment {
	return s.ws.Environments()
}

// CreateEnvironment validates the enumerated fields, applies defaults and
// stores the environment.
func (s *ProfileService) CreateEnvironment(ctx context.Context, req *EnvironmentRequest) (*model.LearningEnvironment, error) {
	env := model.LearningEnvironment{
		ID:          uuid.NewString(),
		Name:        strings.TrimSpace(req.Name),
		Icon:        req.Icon,
		Subject:     req.Subject,
		Complexity:  req.Complexity,
		Archetype:   req.Archetype,
		Instruction: strings.TrimSpace(req.Instruction),
	}
	if env.Name == "" {
		return nil, fmt.Errorf("%w: name is required", app_errors.ErrValidation)
	}
	if env.Subject == "" {
		env.Subject = model.SubjectGeneral
	}
	if env.Complexity == "" {
		env.Complexity = model.ComplexityIntermediate
	}
	if env.Archetype == "" {
		env.Archetype = model.ArchetypeSocratic
	}
	if !env.Subject.Valid() {
		return nil, fmt.Errorf("%w: unknown subject %q", app_errors.ErrValidation, env.Subject)
	}
	if _, ok := complexityPreambles[env.Complexity]; !ok {
		return nil, fmt.Errorf("%w: unknown complexity %q", app_errors.ErrValidation, env.Complexity)
	}
	if _, ok := archetypePreambles[env.Archetype]; !ok {
		return nil, fmt.Errorf("%w: unknown archetype %q", app_errors.ErrValidation, env.Archetype)
	}

	s.ws.AddEnvironment(ctx, env)
	slog.Info("Created learning environment", "environment_id", env.ID, "name", env.Name)
	return &env, nil
}

func (s *ProfileService) DeleteEnvironment(ctx context.Context, id string) error {
	return s.ws.DeleteEnvironment(ctx, id)
}
