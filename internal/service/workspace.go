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
	"study-buddy/backend/internal/model"
	"study-buddy/backend/internal/repository"
)

const defaultSessionTitle = "New Chat"

// WorkspaceOptions tunes a Workspace. The zero value is usable.
type WorkspaceOptions struct {
	// Presets are stored as the learning environments when none are persisted yet.
	Presets []model.LearningEnvironment
	Now     func() time.Time
}

// NewSessionRequest carries the tutoring context of a new session. Empty
// fields take the defaults.
type NewSessionRequest struct {
	Grade         model.GradeLevel `json:"grade"`
	Subject       model.Subject    `json:"subject"`
	Mode          model.Mode       `json:"mode"`
	EnvironmentID string           `json:"environment_id"`
}

// Workspace owns the application state: sessions, the active session
// pointer, the user profile, learning environments and the theme. Every
// mutation runs under one lock, replaces the session slice whole, persists
// the affected slot and then publishes an event.
type Workspace struct {
	kv     repository.KV
	keys   repository.Keys
	now    func() time.Time
	events *Broadcaster

	mu               sync.Mutex
	sessions         []model.Session
	activeID         string
	user             *model.User
	environments     []model.LearningEnvironment
	theme            string
	replySuggestions map[string][]string
}

// NewWorkspace loads persisted state from kv. Corrupt or missing slots start
// empty.
func NewWorkspace(ctx context.Context, kv repository.KV, keys repository.Keys, opts WorkspaceOptions) *Workspace {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	w := &Workspace{
		kv:               kv,
		keys:             keys,
		now:              now,
		events:           NewBroadcaster(),
		sessions:         repository.Load[[]model.Session](ctx, kv, keys.Sessions, nil),
		activeID:         repository.Load(ctx, kv, keys.Active, ""),
		user:             repository.Load[*model.User](ctx, kv, keys.User, nil),
		environments:     repository.Load[[]model.LearningEnvironment](ctx, kv, keys.Environments, nil),
		theme:            repository.Load(ctx, kv, keys.Theme, "dark"),
		replySuggestions: make(map[string][]string),
	}

	if len(w.environments) == 0 && len(opts.Presets) > 0 {
		w.environments = append([]model.LearningEnvironment(nil), opts.Presets...)
		w.persist(ctx, keys.Environments, w.environments)
		slog.Info("Seeded learning environments from presets", "count", len(w.environments))
	}
	if w.indexOf(w.activeID) < 0 {
		w.resetActive(ctx)
	}
	w.closeInterruptedReplies(ctx)
	slog.Info("Workspace loaded", "sessions", len(w.sessions), "environments", len(w.environments))
	return w
}

// closeInterruptedReplies marks replies that were still being written when
// the previous process stopped as errored. Nothing will ever finish them.
func (w *Workspace) closeInterruptedReplies(ctx context.Context) {
	closed := 0
	for i := range w.sessions {
		for j := range w.sessions[i].Messages {
			m := &w.sessions[i].Messages[j]
			if !m.InProgress() {
				continue
			}
			m.Status = model.StatusErrored
			m.IsThinking = false
			if m.Content == "" {
				m.Content = GenericErrorText
			}
			closed++
		}
	}
	if closed > 0 {
		w.persistSessions(ctx)
		slog.Warn("Closed replies interrupted by a restart", "count", closed)
	}
}

// Events exposes the broadcaster so transports can subscribe to sessions.
func (w *Workspace) Events() *Broadcaster { return w.events }

// persist writes v under key. Failures are logged and never returned.
// Callers hold w.mu, which keeps writes in mutation order.
func (w *Workspace) persist(ctx context.Context, key string, v any) {
	if err := repository.Save(context.WithoutCancel(ctx), w.kv, key, v); err != nil {
		slog.Error("Failed to persist workspace state", "key", key, "error", err)
	}
}

func (w *Workspace) persistSessions(ctx context.Context) {
	w.persist(ctx, w.keys.Sessions, w.sessions)
}

func (w *Workspace) indexOf(id string) int {
	if id == "" {
		return -1
	}
	for i := range w.sessions {
		if w.sessions[i].ID == id {
			return i
		}
	}
	return -1
}

// resetActive points the active id at the first remaining session, or
// clears it.
func (w *Workspace) resetActive(ctx context.Context) {
	next := ""
	if len(w.sessions) > 0 {
		next = w.sessions[0].ID
	}
	if next != w.activeID {
		w.activeID = next
		w.persist(ctx, w.keys.Active, w.activeID)
	}
}

// Sessions returns copies of all sessions, newest first.
func (w *Workspace) Sessions() []model.Session {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]model.Session, len(w.sessions))
	for i, s := range w.sessions {
		out[i] = s.Clone()
	}
	return out
}

// Session returns a copy of the session with id.
func (w *Workspace) Session(id string) (model.Session, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	i := w.indexOf(id)
	if i < 0 {
		return model.Session{}, false
	}
	return w.sessions[i].Clone(), true
}

func (w *Workspace) ActiveSessionID() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.activeID
}

// NewSession prepends a session opened by a welcome message and makes it
// active.
func (w *Workspace) NewSession(ctx context.Context, req NewSessionRequest) (model.Session, error) {
	if req.Grade == "" {
		req.Grade = model.GradeHighSchool
	}
	if req.Subject == "" {
		req.Subject = model.SubjectGeneral
	}
	if !req.Grade.Valid() {
		return model.Session{}, fmt.Errorf("%w: unknown grade %q", app_errors.ErrValidation, req.Grade)
	}
	if !req.Subject.Valid() {
		return model.Session{}, fmt.Errorf("%w: unknown subject %q", app_errors.ErrValidation, req.Subject)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if req.EnvironmentID != "" && w.environmentIndex(req.EnvironmentID) < 0 {
		return model.Session{}, fmt.Errorf("%w: environment %s", app_errors.ErrNotFound, req.EnvironmentID)
	}

	id, err := uuid.NewV7()
	if err != nil {
		return model.Session{}, fmt.Errorf("could not generate session id: %w", err)
	}
	now := w.now()
	session := model.Session{
		ID:            id.String(),
		Title:         defaultSessionTitle,
		CreatedAt:     now,
		Grade:         req.Grade,
		Subject:       req.Subject,
		Mode:          model.ParseMode(string(req.Mode)),
		EnvironmentID: req.EnvironmentID,
		Messages: []model.Message{{
			ID:        uuid.NewString(),
			Role:      model.RoleAssistant,
			Content:   welcomeMessage(w.user),
			Timestamp: now,
			Status:    model.StatusComplete,
		}},
	}

	next := make([]model.Session, 0, len(w.sessions)+1)
	next = append(next, session)
	w.sessions = append(next, w.sessions...)
	w.activeID = session.ID
	w.persistSessions(ctx)
	w.persist(ctx, w.keys.Active, w.activeID)

	slog.Info("Created session", "session_id", session.ID)
	w.events.Publish(Event{Type: EventSession, SessionID: session.ID, Data: session.Summary()})
	return session.Clone(), nil
}

func welcomeMessage(u *model.User) string {
	name := "Friend"
	if u != nil && u.Name != "" {
		name = u.Name
	}
	return fmt.Sprintf("LOGIC GATES: OPEN! Welcome back, %s! I'm so excited to help you today. "+
		"What shall we learn about today? I can help you with homework, explain a tricky topic, "+
		"or even draw a picture for you!", name)
}

func (w *Workspace) SelectSession(ctx context.Context, id string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.indexOf(id) < 0 {
		return fmt.Errorf("%w: session %s", app_errors.ErrNotFound, id)
	}
	w.activeID = id
	w.persist(ctx, w.keys.Active, w.activeID)
	return nil
}

// DeleteSession removes a session. When it was active, the first remaining
// session becomes active.
func (w *Workspace) DeleteSession(ctx context.Context, id string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	i := w.indexOf(id)
	if i < 0 {
		return fmt.Errorf("%w: session %s", app_errors.ErrNotFound, id)
	}
	next := make([]model.Session, 0, len(w.sessions)-1)
	next = append(next, w.sessions[:i]...)
	w.sessions = append(next, w.sessions[i+1:]...)
	delete(w.replySuggestions, id)
	w.persistSessions(ctx)
	if w.activeID == id {
		w.resetActive(ctx)
	}

	slog.Info("Deleted session", "session_id", id)
	w.events.Publish(Event{Type: EventSessionDeleted, SessionID: id})
	return nil
}

func (w *Workspace) RenameSession(ctx context.Context, id, title string) error {
	title = strings.TrimSpace(title)
	if title == "" {
		return fmt.Errorf("%w: title cannot be empty", app_errors.ErrValidation)
	}
	ok := w.UpdateSession(ctx, id, func(s model.Session) model.Session {
		s.Title = title
		return s
	})
	if !ok {
		return fmt.Errorf("%w: session %s", app_errors.ErrNotFound, id)
	}
	return nil
}

// Reset deletes every session and opens a fresh one.
func (w *Workspace) Reset(ctx context.Context) (model.Session, error) {
	w.mu.Lock()
	deleted := make([]string, len(w.sessions))
	for i, s := range w.sessions {
		deleted[i] = s.ID
	}
	w.sessions = nil
	w.replySuggestions = make(map[string][]string)
	w.persistSessions(ctx)
	w.resetActive(ctx)
	for _, id := range deleted {
		w.events.Publish(Event{Type: EventSessionDeleted, SessionID: id})
	}
	w.mu.Unlock()

	slog.Info("Workspace reset", "deleted_sessions", len(deleted))
	return w.NewSession(ctx, NewSessionRequest{})
}

// UpdateSession replaces the session with id by fn applied to a copy of it.
// It reports false, and writes nothing, when the session no longer exists.
func (w *Workspace) UpdateSession(ctx context.Context, id string, fn func(model.Session) model.Session) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	i := w.indexOf(id)
	if i < 0 {
		return false
	}
	updated := fn(w.sessions[i].Clone())
	updated.ID = id
	w.replaceAt(ctx, i, updated)

	w.events.Publish(Event{Type: EventSession, SessionID: id, Data: updated.Summary()})
	return true
}

// AppendMessages adds messages to the end of a session.
func (w *Workspace) AppendMessages(ctx context.Context, sessionID string, msgs ...model.Message) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	i := w.indexOf(sessionID)
	if i < 0 {
		return false
	}
	updated := w.sessions[i].Clone()
	for _, m := range msgs {
		updated.Messages = append(updated.Messages, m.Clone())
	}
	w.replaceAt(ctx, i, updated)

	for _, m := range msgs {
		w.events.Publish(Event{Type: EventMessage, SessionID: sessionID, Data: m.Clone()})
	}
	return true
}

// ReplaceMessage swaps the message with msg.ID in a session. It reports
// false when either the session or the message is gone.
func (w *Workspace) ReplaceMessage(ctx context.Context, sessionID string, msg model.Message) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	i := w.indexOf(sessionID)
	if i < 0 {
		return false
	}
	updated := w.sessions[i].Clone()
	found := false
	for j := range updated.Messages {
		if updated.Messages[j].ID == msg.ID {
			updated.Messages[j] = msg.Clone()
			found = true
			break
		}
	}
	if !found {
		return false
	}
	w.replaceAt(ctx, i, updated)

	w.events.Publish(Event{Type: EventMessage, SessionID: sessionID, Data: msg.Clone()})
	return true
}

func (w *Workspace) replaceAt(ctx context.Context, i int, s model.Session) {
	next := make([]model.Session, len(w.sessions))
	copy(next, w.sessions)
	next[i] = s
	w.sessions = next
	w.persistSessions(ctx)
}

// User returns the signed-in profile, or nil.
func (w *Workspace) User() *model.User {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.user == nil {
		return nil
	}
	u := *w.user
	return &u
}

func (w *Workspace) SetUser(ctx context.Context, u model.User) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.user = &u
	w.persist(ctx, w.keys.User, w.user)
}

func (w *Workspace) ClearUser(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.user = nil
	if err := w.kv.Delete(context.WithoutCancel(ctx), w.keys.User); err != nil {
		slog.Error("Failed to delete persisted user", "error", err)
	}
}

func (w *Workspace) Environments() []model.LearningEnvironment {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]model.LearningEnvironment(nil), w.environments...)
}

func (w *Workspace) Environment(id string) (model.LearningEnvironment, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	i := w.environmentIndex(id)
	if i < 0 {
		return model.LearningEnvironment{}, false
	}
	return w.environments[i], true
}

func (w *Workspace) environmentIndex(id string) int {
	for i := range w.environments {
		if w.environments[i].ID == id {
			return i
		}
	}
	return -1
}

func (w *Workspace) AddEnvironment(ctx context.Context, env model.LearningEnvironment) {
	w.mu.Lock()
	defer w.mu.Unlock()
	next := make([]model.LearningEnvironment, 0, len(w.environments)+1)
	next = append(next, w.environments...)
	w.environments = append(next, env)
	w.persist(ctx, w.keys.Environments, w.environments)
}

// DeleteEnvironment removes an environment and detaches it from every
// session that referenced it.
func (w *Workspace) DeleteEnvironment(ctx context.Context, id string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	i := w.environmentIndex(id)
	if i < 0 {
		return fmt.Errorf("%w: environment %s", app_errors.ErrNotFound, id)
	}
	next := make([]model.LearningEnvironment, 0, len(w.environments)-1)
	next = append(next, w.environments[:i]...)
	w.environments = append(next, w.environments[i+1:]...)
	w.persist(ctx, w.keys.Environments, w.environments)

	touched := false
	sessions := make([]model.Session, len(w.sessions))
	for j, s := range w.sessions {
		if s.EnvironmentID == id {
			s.EnvironmentID = ""
			touched = true
		}
		sessions[j] = s
	}
	if touched {
		w.sessions = sessions
		w.persistSessions(ctx)
	}
	return nil
}

func (w *Workspace) Theme() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.theme
}

func (w *Workspace) SetTheme(ctx context.Context, theme string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.theme = theme
	w.persist(ctx, w.keys.Theme, w.theme)
}

// ReplySuggestions returns the latest advisory replies for a session. They
// are kept in memory only.
func (w *Workspace) ReplySuggestions(sessionID string) []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.replySuggestions[sessionID]...)
}

// SetReplySuggestions stores suggestions for a live session and reports
// false when the session is gone.
func (w *Workspace) SetReplySuggestions(sessionID string, suggestions []string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.indexOf(sessionID) < 0 {
		return false
	}
	w.replySuggestions[sessionID] = append([]string(nil), suggestions...)
	w.events.Publish(Event{Type: EventSuggestions, SessionID: sessionID, Data: suggestions})
	return true
}
