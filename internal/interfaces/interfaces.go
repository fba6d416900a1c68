package interfaces

import (
	"context"

	"study-buddy/backend/internal/model"
	"study-buddy/backend/internal/service"
)

// This file defines the contracts the API layer depends on. Handlers take
// these interfaces rather than concrete services so tests can swap in mocks.

// Workspace is the session-level view of application state.
type Workspace interface {
	Sessions() []model.Session
	Session(id string) (model.Session, bool)
	ActiveSessionID() string
	NewSession(ctx context.Context, req service.NewSessionRequest) (model.Session, error)
	SelectSession(ctx context.Context, id string) error
	DeleteSession(ctx context.Context, id string) error
	RenameSession(ctx context.Context, id, title string) error
	Reset(ctx context.Context) (model.Session, error)
	ReplySuggestions(sessionID string) []string
	Events() *service.Broadcaster
}

// ChatService runs streaming chat turns.
type ChatService interface {
	SendMessage(ctx context.Context, req *service.SendMessageRequest) (*model.Message, error)
}

// VisualService generates study images and visual ideas.
type VisualService interface {
	GenerateVisual(ctx context.Context, sessionID string, cfg model.ImageConfig) (*model.Message, error)
	VisualSuggestions(ctx context.Context, sessionID, draft string) []string
}

// ProfileService manages the user profile, theme and learning environments.
type ProfileService interface {
	Login(ctx context.Context, req *service.LoginRequest) (*model.User, error)
	Logout(ctx context.Context)
	CurrentUser(ctx context.Context) (*model.User, error)
	Theme(ctx context.Context) string
	SetTheme(ctx context.Context, theme string) error
	ListEnvironments(ctx context.Context) []model.LearningEnvironment
	CreateEnvironment(ctx context.Context, req *service.EnvironmentRequest) (*model.LearningEnvironment, error)
	DeleteEnvironment(ctx context.Context, id string) error
}

// StatusService reports provider health.
type StatusService interface {
	Status(ctx context.Context) *service.Status
}
