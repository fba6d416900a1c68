package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"study-buddy/backend/internal/debounce"
	app_errors "study-buddy/backend/internal/errors"
	"study-buddy/backend/internal/llm"
	"study-buddy/backend/internal/model"
)

const (
	visualSuggestionCount   = 3
	visualSuggestionHistory = 6

	VisualCreatedText = "Visual study aid generated! Your diagram has been created."
	VisualRefinedText = "Refinement complete! How does this look?"
)

// VisualService generates and edits study images and offers debounced
// ideas for them.
type VisualService struct {
	ws       *Workspace
	llm      llm.Provider
	debounce *debounce.Group
	now      func() time.Time
}

func NewVisualService(ws *Workspace, provider llm.Provider, debounceDelay time.Duration) *VisualService {
	return &VisualService{
		ws:       ws,
		llm:      provider,
		debounce: debounce.New(debounceDelay),
		now:      time.Now,
	}
}

// GenerateVisual records the request in the session, calls the provider
// and appends the outcome as an assistant message. A provider failure
// becomes a "Creation Failure" message rather than an error. Callers must
// keep at most one generation per session in flight.
func (s *VisualService) GenerateVisual(ctx context.Context, sessionID string, cfg model.ImageConfig) (*model.Message, error) {
	if strings.TrimSpace(cfg.Prompt) == "" {
		cfg.Prompt = model.DefaultVisualPrompt
	}
	if err := cfg.Normalize(); err != nil {
		return nil, err
	}
	if _, ok := s.ws.Session(sessionID); !ok {
		return nil, fmt.Errorf("%w: session %s", app_errors.ErrNotFound, sessionID)
	}

	verb := "Creating visual"
	if cfg.IsEdit() {
		verb = "Refining visual"
	}
	request := model.Message{
		ID:        uuid.NewString(),
		Role:      model.RoleUser,
		Content:   fmt.Sprintf("%s: %s", verb, cfg.Prompt),
		Timestamp: s.now(),
	}
	if !s.ws.AppendMessages(ctx, sessionID, request) {
		return nil, fmt.Errorf("%w: session %s", app_errors.ErrNotFound, sessionID)
	}

	slog.Info("Generating visual", "session_id", sessionID, "edit", cfg.IsEdit(), "aspect_ratio", cfg.AspectRatio)
	image, err := s.llm.GenerateImage(ctx, &cfg)

	reply := model.Message{
		ID:        uuid.NewString(),
		Role:      model.RoleAssistant,
		Timestamp: s.now(),
		Status:    model.StatusComplete,
	}
	if err != nil {
		kind := app_errors.KindOf(err)
		slog.Error("Visual generation failed", "session_id", sessionID, "kind", kind.String(), "error", err)
		reply.Content = "Creation Failure: " + failureReason(kind, err)
		reply.Status = model.StatusErrored
		if kind.NeedsReauthorization() {
			if r, ok := s.llm.(llm.Reauthorizer); ok {
				if rerr := r.Reauthorize(ctx); rerr != nil {
					slog.Warn("Re-authorization did not succeed", "error", rerr)
				}
			}
		}
	} else {
		reply.Content = VisualCreatedText
		if cfg.IsEdit() {
			reply.Content = VisualRefinedText
		}
		reply.Attachments = []string{image}
	}

	if !s.ws.AppendMessages(ctx, sessionID, reply) {
		slog.Warn("Session disappeared during visual generation, dropping result", "session_id", sessionID)
		return nil, fmt.Errorf("%w: session %s was deleted during generation", app_errors.ErrNotFound, sessionID)
	}
	return &reply, nil
}

func failureReason(kind app_errors.Kind, err error) string {
	switch kind {
	case app_errors.KindSafety:
		var genErr *app_errors.GenerationError
		if errors.As(err, &genErr) && genErr.Err != nil {
			return "the request was rejected by the safety filters (" + genErr.Err.Error() + ")"
		}
		return "the request was rejected by the safety filters"
	case app_errors.KindQuota:
		return "the image quota is exhausted. Please reconnect your API key."
	case app_errors.KindAuth:
		return "the API key was not accepted. Please reconnect your API key."
	case app_errors.KindConfig:
		return "image generation is not configured"
	default:
		return "the visual engine could not render this request"
	}
}

// VisualSuggestions returns up to three visual ideas for the draft prompt.
// Calls for one session are debounced: only the latest call in a burst asks
// the provider; superseded calls and every failure return an empty list.
func (s *VisualService) VisualSuggestions(ctx context.Context, sessionID, draft string) []string {
	session, ok := s.ws.Session(sessionID)
	if !ok {
		return []string{}
	}

	out := []string{}
	s.debounce.Do(ctx, sessionID, func(ctx context.Context) {
		raw, err := s.llm.Suggest(ctx, &llm.SuggestRequest{
			Kind:    llm.SuggestVisuals,
			History: session.LastMessages(visualSuggestionHistory),
			Draft:   draft,
			Count:   visualSuggestionCount,
		})
		if err != nil {
			slog.Warn("Visual suggestions failed", "session_id", sessionID, "error", err)
			return
		}
		out = cleanSuggestions(raw, visualSuggestionCount)
	})
	return out
}
