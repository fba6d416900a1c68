package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"

	app_errors "study-buddy/backend/internal/errors"
	"study-buddy/backend/internal/interfaces"
	"study-buddy/backend/internal/model"
	"study-buddy/backend/internal/service"
)

// EventDone closes a turn stream and carries the final assistant message.
const EventDone = "done"

// SessionListResponse is the body of GET /sessions.
type SessionListResponse struct {
	Sessions        []model.SessionSummary `json:"sessions"`
	ActiveSessionID string                 `json:"active_session_id"`
}

// UpdateTitleRequest renames a session.
type UpdateTitleRequest struct {
	Title string `json:"title" validate:"required,max=120"`
}

// QuickActionRequest optionally overrides the mode of a quick action turn.
type QuickActionRequest struct {
	Mode model.Mode `json:"mode"`
}

// VisualSuggestionsRequest carries the prompt being typed in the image studio.
type VisualSuggestionsRequest struct {
	Draft string `json:"draft" validate:"max=2000"`
}

// SuggestionsResponse wraps a list of suggestion strings.
type SuggestionsResponse struct {
	Suggestions []string `json:"suggestions"`
}

// ChatHandler serves sessions, chat turns and visuals.
type ChatHandler struct {
	ws      interfaces.Workspace
	chat    interfaces.ChatService
	visuals interfaces.VisualService

	// inflight holds sessions with a running image generation.
	mu       sync.Mutex
	inflight map[string]struct{}
}

func NewChatHandler(ws interfaces.Workspace, chat interfaces.ChatService, visuals interfaces.VisualService) *ChatHandler {
	return &ChatHandler{ws: ws, chat: chat, visuals: visuals, inflight: make(map[string]struct{})}
}

// HandleListSessions godoc
// @Summary      List sessions
// @Description  Returns every session as a summary, newest first, with the active session id.
// @Tags         Sessions
// @Produce      json
// @Success      200  {object}  SessionListResponse
// @Router       /v1/sessions [get]
func (h *ChatHandler) HandleListSessions(w http.ResponseWriter, r *http.Request) {
	sessions := h.ws.Sessions()
	resp := SessionListResponse{
		Sessions:        make([]model.SessionSummary, 0, len(sessions)),
		ActiveSessionID: h.ws.ActiveSessionID(),
	}
	for _, s := range sessions {
		resp.Sessions = append(resp.Sessions, s.Summary())
	}
	respondWithJSON(w, http.StatusOK, resp)
}

// HandleCreateSession godoc
// @Summary      Create a session
// @Description  Starts a session with a welcome message and makes it active. An empty body uses the default grade, subject and mode.
// @Tags         Sessions
// @Accept       json
// @Produce      json
// @Param        session  body      service.NewSessionRequest  false  "Tutoring context"
// @Success      201      {object}  model.Session
// @Failure      400      {object}  ErrorResponse
// @Failure      404      {object}  ErrorResponse  "Unknown learning environment"
// @Router       /v1/sessions [post]
func (h *ChatHandler) HandleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req service.NewSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		respondWithError(w, fmt.Errorf("%w: invalid request body: %s", app_errors.ErrValidation, err.Error()))
		return
	}
	session, err := h.ws.NewSession(r.Context(), req)
	if err != nil {
		respondWithError(w, err)
		return
	}
	respondWithJSON(w, http.StatusCreated, session)
}

// HandleGetActiveSession godoc
// @Summary      Get the active session
// @Tags         Sessions
// @Produce      json
// @Success      200  {object}  model.Session
// @Failure      404  {object}  ErrorResponse
// @Router       /v1/sessions/active [get]
func (h *ChatHandler) HandleGetActiveSession(w http.ResponseWriter, r *http.Request) {
	id := h.ws.ActiveSessionID()
	session, ok := h.ws.Session(id)
	if id == "" || !ok {
		respondWithError(w, fmt.Errorf("%w: no active session", app_errors.ErrNotFound))
		return
	}
	respondWithJSON(w, http.StatusOK, session)
}

// HandleGetSession godoc
// @Summary      Get a session
// @Tags         Sessions
// @Produce      json
// @Param        sessionID  path      string  true  "Session ID"
// @Success      200        {object}  model.Session
// @Failure      404        {object}  ErrorResponse
// @Router       /v1/sessions/{sessionID} [get]
func (h *ChatHandler) HandleGetSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	session, ok := h.ws.Session(sessionID)
	if !ok {
		respondWithError(w, fmt.Errorf("%w: session %s", app_errors.ErrNotFound, sessionID))
		return
	}
	respondWithJSON(w, http.StatusOK, session)
}

// HandleDeleteSession godoc
// @Summary      Delete a session
// @Description  Removes the session. If it was active, the first remaining session becomes active.
// @Tags         Sessions
// @Param        sessionID  path  string  true  "Session ID"
// @Success      204
// @Failure      404  {object}  ErrorResponse
// @Router       /v1/sessions/{sessionID} [delete]
func (h *ChatHandler) HandleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := h.ws.DeleteSession(r.Context(), chi.URLParam(r, "sessionID")); err != nil {
		respondWithError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleUpdateTitle godoc
// @Summary      Rename a session
// @Tags         Sessions
// @Accept       json
// @Produce      json
// @Param        sessionID  path      string              true  "Session ID"
// @Param        title      body      UpdateTitleRequest  true  "New title"
// @Success      200        {object}  StatusResponse
// @Failure      400        {object}  ErrorResponse
// @Failure      404        {object}  ErrorResponse
// @Router       /v1/sessions/{sessionID}/title [put]
func (h *ChatHandler) HandleUpdateTitle(w http.ResponseWriter, r *http.Request) {
	var req UpdateTitleRequest
	if err := decodeJSON(r, &req); err != nil {
		respondWithError(w, err)
		return
	}
	if err := h.ws.RenameSession(r.Context(), chi.URLParam(r, "sessionID"), req.Title); err != nil {
		respondWithError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, StatusResponse{Status: "ok"})
}

// HandleSelectSession godoc
// @Summary      Select the active session
// @Tags         Sessions
// @Produce      json
// @Param        sessionID  path      string  true  "Session ID"
// @Success      200        {object}  StatusResponse
// @Failure      404        {object}  ErrorResponse
// @Router       /v1/sessions/{sessionID}/select [post]
func (h *ChatHandler) HandleSelectSession(w http.ResponseWriter, r *http.Request) {
	if err := h.ws.SelectSession(r.Context(), chi.URLParam(r, "sessionID")); err != nil {
		respondWithError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, StatusResponse{Status: "ok"})
}

// HandleResetWorkspace godoc
// @Summary      Reset the workspace
// @Description  Discards every session and returns the fresh one that replaces them.
// @Tags         Sessions
// @Produce      json
// @Success      200  {object}  model.Session
// @Router       /v1/workspace/reset [post]
func (h *ChatHandler) HandleResetWorkspace(w http.ResponseWriter, r *http.Request) {
	session, err := h.ws.Reset(r.Context())
	if err != nil {
		respondWithError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, session)
}

// HandleSendMessage godoc
// @Summary      Send a message
// @Description  Runs one chat turn as a server-sent event stream. Each message event carries the message as it is written; done carries the final assistant message and error ends a failed turn. Input errors and a session that is still answering are reported as JSON before the stream opens.
// @Tags         Turns
// @Accept       json
// @Produce      text/event-stream
// @Param        sessionID  path      string                      true  "Session ID"
// @Param        message    body      service.SendMessageRequest  true  "Text, optional image data URL and mode"
// @Success      200        {object}  model.Message               "Stream of message events"
// @Failure      400        {object}  ErrorResponse
// @Failure      404        {object}  ErrorResponse
// @Failure      409        {object}  ErrorResponse  "A reply is still being written"
// @Router       /v1/sessions/{sessionID}/messages [post]
func (h *ChatHandler) HandleSendMessage(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	var req service.SendMessageRequest
	if err := decodeJSON(r, &req); err != nil {
		respondWithError(w, err)
		return
	}
	if strings.TrimSpace(req.Text) == "" && req.Image == "" {
		respondWithError(w, fmt.Errorf("%w: a message needs text or an image", app_errors.ErrValidation))
		return
	}
	session, ok := h.ws.Session(sessionID)
	if !ok {
		respondWithError(w, fmt.Errorf("%w: session %s", app_errors.ErrNotFound, sessionID))
		return
	}
	if session.TurnInProgress() {
		respondWithError(w, errTurnRunning(sessionID))
		return
	}
	req.SessionID = sessionID
	h.streamTurn(w, r, &req)
}

// HandleQuickAction godoc
// @Summary      Run a quick action
// @Description  Sends the canned prompt behind the action as a regular turn, streamed like a message.
// @Tags         Turns
// @Accept       json
// @Produce      text/event-stream
// @Param        sessionID  path      string              true   "Session ID"
// @Param        action     path      string              true   "Quick action"  Enums(mock-test, flowchart, summary, problem-solver)
// @Param        options    body      QuickActionRequest  false  "Mode override"
// @Success      200        {object}  model.Message       "Stream of message events"
// @Failure      404        {object}  ErrorResponse
// @Failure      409        {object}  ErrorResponse
// @Router       /v1/sessions/{sessionID}/actions/{action} [post]
func (h *ChatHandler) HandleQuickAction(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	action := chi.URLParam(r, "action")

	prompt, ok := service.QuickActionPrompt(action)
	if !ok {
		respondWithError(w, fmt.Errorf("%w: quick action %q", app_errors.ErrNotFound, action))
		return
	}
	var body QuickActionRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil && !errors.Is(err, io.EOF) {
		respondWithError(w, fmt.Errorf("%w: invalid request body: %s", app_errors.ErrValidation, err.Error()))
		return
	}
	session, ok := h.ws.Session(sessionID)
	if !ok {
		respondWithError(w, fmt.Errorf("%w: session %s", app_errors.ErrNotFound, sessionID))
		return
	}
	if session.TurnInProgress() {
		respondWithError(w, errTurnRunning(sessionID))
		return
	}
	mode := body.Mode
	if mode == "" {
		mode = session.Mode
	}
	h.streamTurn(w, r, &service.SendMessageRequest{SessionID: sessionID, Text: prompt, Mode: mode})
}

func errTurnRunning(sessionID string) error {
	return fmt.Errorf("%w: a reply is already being written for session %s", app_errors.ErrConflict, sessionID)
}

type turnResult struct {
	msg *model.Message
	err error
}

// streamTurn forwards the session's workspace events to the client while the
// turn runs. The turn itself is detached from the request: a client that
// disconnects stops receiving events but the reply is still recorded.
func (h *ChatHandler) streamTurn(w http.ResponseWriter, r *http.Request, req *service.SendMessageRequest) {
	events := h.ws.Events().Subscribe(req.SessionID)
	defer h.ws.Events().Unsubscribe(req.SessionID, events)

	setStreamHeaders(w)
	w.WriteHeader(http.StatusOK)
	slog.Info("Opened turn stream", "session_id", req.SessionID, "listeners", h.ws.Events().ClientCount(req.SessionID))

	done := make(chan turnResult, 1)
	go func() {
		msg, err := h.chat.SendMessage(context.WithoutCancel(r.Context()), req)
		done <- turnResult{msg: msg, err: err}
	}()

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if err := writeNamedEvent(w, ev.Type, ev.Data); err != nil {
				slog.Warn("Could not write to turn stream, client likely disconnected.", "session_id", req.SessionID, "error", err)
				return
			}
		case res := <-done:
			h.drainEvents(w, events)
			if res.err != nil {
				_, message := classifyHTTPError(res.err)
				slog.Warn("Turn ended with an error", "session_id", req.SessionID, "error", res.err)
				sendStreamError(w, message)
				return
			}
			if err := writeNamedEvent(w, EventDone, res.msg); err != nil {
				slog.Warn("Could not write final turn event", "session_id", req.SessionID, "error", err)
			}
			slog.Info("Finished streaming turn.", "session_id", req.SessionID, "status", res.msg.Status)
			return
		case <-r.Context().Done():
			slog.Info("Client disconnected, turn continues in the background.", "session_id", req.SessionID)
			return
		}
	}
}

// drainEvents forwards events that were published before the turn returned.
func (h *ChatHandler) drainEvents(w http.ResponseWriter, events <-chan service.Event) {
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := writeNamedEvent(w, ev.Type, ev.Data); err != nil {
				return
			}
		default:
			return
		}
	}
}

// HandleGetSuggestions godoc
// @Summary      Get reply suggestions
// @Description  Returns the suggested replies produced after the latest turn.
// @Tags         Suggestions
// @Produce      json
// @Param        sessionID  path      string  true  "Session ID"
// @Success      200        {object}  SuggestionsResponse
// @Failure      404        {object}  ErrorResponse
// @Router       /v1/sessions/{sessionID}/suggestions [get]
func (h *ChatHandler) HandleGetSuggestions(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if _, ok := h.ws.Session(sessionID); !ok {
		respondWithError(w, fmt.Errorf("%w: session %s", app_errors.ErrNotFound, sessionID))
		return
	}
	suggestions := h.ws.ReplySuggestions(sessionID)
	if suggestions == nil {
		suggestions = []string{}
	}
	respondWithJSON(w, http.StatusOK, SuggestionsResponse{Suggestions: suggestions})
}

// HandleGenerateVisual godoc
// @Summary      Generate a visual
// @Description  Generates an image, or edits source_image when it is set. Failures come back as an errored assistant message. Only one generation may run per session.
// @Tags         Visuals
// @Accept       json
// @Produce      json
// @Param        sessionID  path      string             true  "Session ID"
// @Param        config     body      model.ImageConfig  true  "Prompt and facets"
// @Success      200        {object}  model.Message
// @Failure      400        {object}  ErrorResponse
// @Failure      404        {object}  ErrorResponse
// @Failure      409        {object}  ErrorResponse
// @Router       /v1/sessions/{sessionID}/visuals [post]
func (h *ChatHandler) HandleGenerateVisual(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	var cfg model.ImageConfig
	if err := decodeJSON(r, &cfg); err != nil {
		respondWithError(w, err)
		return
	}
	if _, ok := h.ws.Session(sessionID); !ok {
		respondWithError(w, fmt.Errorf("%w: session %s", app_errors.ErrNotFound, sessionID))
		return
	}
	if !h.acquire(sessionID) {
		respondWithError(w, fmt.Errorf("%w: a visual is already being generated for session %s", app_errors.ErrConflict, sessionID))
		return
	}
	defer h.release(sessionID)

	msg, err := h.visuals.GenerateVisual(context.WithoutCancel(r.Context()), sessionID, cfg)
	if err != nil {
		respondWithError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, msg)
}

// HandleVisualSuggestions godoc
// @Summary      Get visual ideas
// @Description  Debounced per session. Superseded requests and failures get an empty list.
// @Tags         Suggestions
// @Accept       json
// @Produce      json
// @Param        sessionID  path      string                    true  "Session ID"
// @Param        draft      body      VisualSuggestionsRequest  true  "Prompt being typed"
// @Success      200        {object}  SuggestionsResponse
// @Failure      400        {object}  ErrorResponse
// @Failure      404        {object}  ErrorResponse
// @Router       /v1/sessions/{sessionID}/visual-suggestions [post]
func (h *ChatHandler) HandleVisualSuggestions(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	var req VisualSuggestionsRequest
	if err := decodeJSON(r, &req); err != nil {
		respondWithError(w, err)
		return
	}
	if _, ok := h.ws.Session(sessionID); !ok {
		respondWithError(w, fmt.Errorf("%w: session %s", app_errors.ErrNotFound, sessionID))
		return
	}
	suggestions := h.visuals.VisualSuggestions(r.Context(), sessionID, req.Draft)
	if suggestions == nil {
		suggestions = []string{}
	}
	respondWithJSON(w, http.StatusOK, SuggestionsResponse{Suggestions: suggestions})
}

func (h *ChatHandler) acquire(sessionID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, busy := h.inflight[sessionID]; busy {
		return false
	}
	h.inflight[sessionID] = struct{}{}
	return true
}

func (h *ChatHandler) release(sessionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.inflight, sessionID)
}
