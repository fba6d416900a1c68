package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	app_errors "study-buddy/backend/internal/errors"
	"study-buddy/backend/internal/llm"
	"study-buddy/backend/internal/model"
)

// TitlePolicy decides how a session's title is derived.
type TitlePolicy string

const (
	// TitleFixed keeps the default title until the user renames the session.
	TitleFixed TitlePolicy = "fixed"
	// TitleFirstMessage names the session after its first user message.
	TitleFirstMessage TitlePolicy = "first_message"

	maxTitleRunes = 40
)

// User-facing texts for a failed turn, by error kind.
const (
	GenericErrorText = "Neural link timeout. Let's recalibrate the architecture and try again?"
	QuotaErrorText   = "Neural link overloaded: the study quota is exhausted. Please reconnect your API key and try again."
	AuthErrorText    = "Neural link rejected: the API key was not accepted. Please reconnect your API key and try again."
	ConfigErrorText  = "Neural link offline: no API key is configured for the tutor yet."
	SafetyErrorText  = "That request tripped the safety filters. Let's try asking it a different way."
)

// ErrorText returns the assistant-visible text for a failed turn.
func ErrorText(kind app_errors.Kind) string {
	switch kind {
	case app_errors.KindQuota:
		return QuotaErrorText
	case app_errors.KindAuth:
		return AuthErrorText
	case app_errors.KindConfig:
		return ConfigErrorText
	case app_errors.KindSafety:
		return SafetyErrorText
	default:
		return GenericErrorText
	}
}

// quickActions are canned prompts offered next to the composer.
var quickActions = map[string]string{
	"mock-test":      "Initiate a quick practice test!",
	"flowchart":      "Create a visual flowchart of this concept.",
	"summary":        "Summarize this information clearly.",
	"problem-solver": "Explain this problem step-by-step.",
}

// QuickActionPrompt returns the prompt behind a quick action name.
func QuickActionPrompt(action string) (string, bool) {
	p, ok := quickActions[action]
	return p, ok
}

// ChatConfig holds the tunables of the chat service.
type ChatConfig struct {
	HistoryWindow    int
	TitlePolicy      TitlePolicy
	ReplySuggestions bool
}

// SendMessageRequest is one user turn.
type SendMessageRequest struct {
	SessionID string     `json:"-"`
	Text      string     `json:"text"`
	Image     string     `json:"image,omitempty"`
	Mode      model.Mode `json:"mode"`
}

type ChatService struct {
	ws          *Workspace
	llm         llm.Provider
	suggestions *SuggestionService
	cfg         ChatConfig
	now         func() time.Time

	// wg tracks running turns and background reply-suggestion work.
	wg sync.WaitGroup

	// turns holds sessions with a reply being written.
	mu    sync.Mutex
	turns map[string]struct{}
}

func NewChatService(ws *Workspace, provider llm.Provider, suggestions *SuggestionService, cfg ChatConfig) *ChatService {
	if cfg.HistoryWindow <= 0 {
		cfg.HistoryWindow = 10
	}
	if cfg.TitlePolicy == "" {
		cfg.TitlePolicy = TitleFixed
	}
	return &ChatService{
		ws:          ws,
		llm:         provider,
		suggestions: suggestions,
		cfg:         cfg,
		now:         time.Now,
		turns:       make(map[string]struct{}),
	}
}

// Wait blocks until running turns and the background work they started have
// finished.
func (s *ChatService) Wait() {
	s.wg.Wait()
}

// SendMessage runs one turn: it appends the user message and an assistant
// placeholder, streams the reply into the placeholder and finalizes it.
// Generation failures do not produce an error; they are reported through the
// returned message, whose status is then errored. The returned error covers
// invalid input, a session that is missing or was deleted mid-turn, and
// ErrConflict when the session already has a turn running.
func (s *ChatService) SendMessage(ctx context.Context, req *SendMessageRequest) (*model.Message, error) {
	if strings.TrimSpace(req.Text) == "" && req.Image == "" {
		return nil, fmt.Errorf("%w: a message needs text or an image", app_errors.ErrValidation)
	}
	if !s.acquire(req.SessionID) {
		return nil, fmt.Errorf("%w: a reply is already being written for session %s", app_errors.ErrConflict, req.SessionID)
	}
	defer s.release(req.SessionID)
	s.wg.Add(1)
	defer s.wg.Done()

	session, ok := s.ws.Session(req.SessionID)
	if !ok {
		return nil, fmt.Errorf("%w: session %s", app_errors.ErrNotFound, req.SessionID)
	}

	mode := model.ParseMode(string(req.Mode))
	history := session.LastMessages(s.cfg.HistoryWindow)
	now := s.now()

	userMsg := model.Message{
		ID:        uuid.NewString(),
		Role:      model.RoleUser,
		Content:   req.Text,
		Timestamp: now,
	}
	if req.Image != "" {
		userMsg.Attachments = []string{req.Image}
	}
	assistant := model.Message{
		ID:         uuid.NewString(),
		Role:       model.RoleAssistant,
		Timestamp:  now,
		Status:     model.StatusPending,
		IsThinking: mode == model.ModeDeep && req.Image == "",
	}

	ok = s.ws.UpdateSession(ctx, req.SessionID, func(sess model.Session) model.Session {
		if s.cfg.TitlePolicy == TitleFirstMessage && sess.Title == defaultSessionTitle {
			if title := deriveTitle(req.Text); title != "" {
				sess.Title = title
			}
		}
		sess.Mode = mode
		return sess
	})
	if !ok || !s.ws.AppendMessages(ctx, req.SessionID, userMsg, assistant) {
		return nil, fmt.Errorf("%w: session %s", app_errors.ErrNotFound, req.SessionID)
	}

	var env *model.LearningEnvironment
	if session.EnvironmentID != "" {
		if e, found := s.ws.Environment(session.EnvironmentID); found {
			env = &e
		}
	}
	chatReq := &llm.ChatRequest{
		Prompt:      req.Text,
		History:     history,
		Mode:        mode,
		Image:       req.Image,
		Instruction: composeInstruction(session, env),
	}

	slog.Info("Starting turn", "session_id", req.SessionID, "mode", mode, "has_image", req.Image != "")

	var content strings.Builder
	var streamErr error
	for frag, err := range s.llm.StreamChat(ctx, chatReq) {
		if err != nil {
			streamErr = err
			break
		}
		content.WriteString(frag.Text)
		assistant.GroundingLinks = model.MergeLinks(assistant.GroundingLinks, frag.Links)
		assistant.Content = content.String()
		assistant.Status = model.StatusStreaming
		if !s.ws.ReplaceMessage(ctx, req.SessionID, assistant) {
			slog.Warn("Session disappeared mid-stream, dropping the rest of the turn", "session_id", req.SessionID)
			return nil, fmt.Errorf("%w: session %s was deleted during the turn", app_errors.ErrNotFound, req.SessionID)
		}
	}

	assistant.IsThinking = false
	if streamErr != nil {
		kind := app_errors.KindOf(streamErr)
		slog.Error("Turn failed", "session_id", req.SessionID, "kind", kind.String(), "error", streamErr)
		assistant.Content = ErrorText(kind)
		assistant.Status = model.StatusErrored
		if !s.ws.ReplaceMessage(ctx, req.SessionID, assistant) {
			return nil, fmt.Errorf("%w: session %s was deleted during the turn", app_errors.ErrNotFound, req.SessionID)
		}
		if kind.NeedsReauthorization() {
			s.reauthorize(ctx)
		}
		return &assistant, nil
	}

	assistant.Status = model.StatusComplete
	if !s.ws.ReplaceMessage(ctx, req.SessionID, assistant) {
		return nil, fmt.Errorf("%w: session %s was deleted during the turn", app_errors.ErrNotFound, req.SessionID)
	}
	slog.Info("Turn complete", "session_id", req.SessionID, "chars", content.Len(), "links", len(assistant.GroundingLinks))

	if s.cfg.ReplySuggestions && s.suggestions != nil {
		turn := append(history, userMsg, assistant.Clone())
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.suggestions.Refresh(context.WithoutCancel(ctx), req.SessionID, turn)
		}()
	}
	return &assistant, nil
}

func (s *ChatService) acquire(sessionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.turns[sessionID]; busy {
		return false
	}
	s.turns[sessionID] = struct{}{}
	return true
}

func (s *ChatService) release(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.turns, sessionID)
}

// reauthorize asks the provider to pick up new credentials, if it can.
func (s *ChatService) reauthorize(ctx context.Context) {
	r, ok := s.llm.(llm.Reauthorizer)
	if !ok {
		return
	}
	if err := r.Reauthorize(ctx); err != nil {
		slog.Warn("Re-authorization did not succeed", "error", err)
		return
	}
	slog.Info("Provider re-authorized")
}

// deriveTitle shortens the first line of text to a session title.
func deriveTitle(text string) string {
	line, _, _ := strings.Cut(strings.TrimSpace(text), "\n")
	line = strings.TrimSpace(line)
	if line == "" {
		return ""
	}
	runes := []rune(line)
	if len(runes) <= maxTitleRunes {
		return line
	}
	return strings.TrimSpace(string(runes[:maxTitleRunes])) + "…"
}
