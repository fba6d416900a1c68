package service

import (
	"context"
	"log/slog"
	"strings"

	"study-buddy/backend/internal/llm"
	"study-buddy/backend/internal/model"
)

const replySuggestionCount = 3

// FallbackReplies are offered whenever suggestions cannot be generated.
var FallbackReplies = []string{
	"Can you explain that differently?",
	"Show me an example.",
	"Quiz me on this.",
}

// SuggestionService produces advisory follow-up replies. It never fails.
type SuggestionService struct {
	ws  *Workspace
	llm llm.Provider
}

func NewSuggestionService(ws *Workspace, provider llm.Provider) *SuggestionService {
	return &SuggestionService{ws: ws, llm: provider}
}

// SuggestReplies returns up to three short replies for the conversation.
// Any failure, including an empty answer, yields FallbackReplies.
func (s *SuggestionService) SuggestReplies(ctx context.Context, history []model.Message) []string {
	raw, err := s.llm.Suggest(ctx, &llm.SuggestRequest{
		Kind:    llm.SuggestReplies,
		History: history,
		Count:   replySuggestionCount,
	})
	if err != nil {
		slog.Warn("Reply suggestions failed, using fallback", "error", err)
		return fallbackReplies()
	}
	out := cleanSuggestions(raw, replySuggestionCount)
	if len(out) == 0 {
		return fallbackReplies()
	}
	return out
}

// Refresh generates replies and stores them on the session. Results for a
// session deleted in the meantime are discarded.
func (s *SuggestionService) Refresh(ctx context.Context, sessionID string, history []model.Message) []string {
	replies := s.SuggestReplies(ctx, history)
	if !s.ws.SetReplySuggestions(sessionID, replies) {
		slog.Debug("Dropping suggestions for a deleted session", "session_id", sessionID)
	}
	return replies
}

func fallbackReplies() []string {
	return append([]string(nil), FallbackReplies...)
}

// cleanSuggestions trims entries, drops blanks and caps the list at n.
func cleanSuggestions(raw []string, n int) []string {
	out := make([]string, 0, n)
	for _, s := range raw {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		out = append(out, s)
		if len(out) == n {
			break
		}
	}
	return out
}
