package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/go-chi/chi/v5"

	app_errors "study-buddy/backend/internal/errors"
	"study-buddy/backend/internal/input"
	"study-buddy/backend/internal/interfaces"
	"study-buddy/backend/internal/model"
	"study-buddy/backend/internal/service"
)

// Server message types on the voice socket.
const (
	VoiceDraft   = "draft"
	VoiceMessage = "message"
	VoiceError   = "error"
	VoicePong    = "pong"
)

const voiceWriteTimeout = 5 * time.Second

// VoiceServerMessage is one JSON frame sent to a voice client.
type VoiceServerMessage struct {
	Type    string         `json:"type"`
	Text    string         `json:"text,omitempty"`
	Message *model.Message `json:"message,omitempty"`
	Error   string         `json:"error,omitempty"`
}

// VoiceHandler accepts dictation over a WebSocket. The browser runs speech
// recognition and streams transcripts; the composed text is sent as a turn
// when the client asks for it.
type VoiceHandler struct {
	ws             interfaces.Workspace
	chat           interfaces.ChatService
	originPatterns []string
	anyOrigin      bool
}

// NewVoiceHandler builds the handler. allowedOrigins uses the same values as
// the CORS configuration; "*" disables the origin check.
func NewVoiceHandler(ws interfaces.Workspace, chat interfaces.ChatService, allowedOrigins []string) *VoiceHandler {
	h := &VoiceHandler{ws: ws, chat: chat, anyOrigin: slices.Contains(allowedOrigins, "*")}
	for _, origin := range allowedOrigins {
		if origin == "*" {
			continue
		}
		if u, err := url.Parse(origin); err == nil && u.Host != "" {
			h.originPatterns = append(h.originPatterns, u.Host)
			continue
		}
		h.originPatterns = append(h.originPatterns, origin)
	}
	return h
}

// HandleVoice godoc
// @Summary      Voice dictation socket
// @Description  Upgrades to a WebSocket. The client sends transcript, ping and send frames; the server answers with draft, pong, message and error frames (VoiceServerMessage).
// @Tags         Turns
// @Param        sessionID  path  string  true  "Session ID"
// @Success      101  {object}  VoiceServerMessage  "Switching protocols"
// @Failure      403  {object}  ErrorResponse       "Origin not allowed"
// @Failure      404  {object}  ErrorResponse
// @Router       /v1/sessions/{sessionID}/voice [get]
func (h *VoiceHandler) HandleVoice(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if _, ok := h.ws.Session(sessionID); !ok {
		respondWithError(w, fmt.Errorf("%w: session %s", app_errors.ErrNotFound, sessionID))
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns:     h.originPatterns,
		InsecureSkipVerify: h.anyOrigin,
	})
	if err != nil {
		slog.Warn("Voice socket upgrade failed", "session_id", sessionID, "error", err)
		return
	}
	defer conn.CloseNow()

	ctx := r.Context()
	composer := input.NewComposer()
	src := input.NewWebSocketSource(conn)

	src.OnControl(func(msg input.ClientMessage) {
		switch msg.Type {
		case input.MessagePing:
			h.write(ctx, conn, VoiceServerMessage{Type: VoicePong})
		case input.MessageSend:
			if msg.Text != "" {
				composer.SetText(msg.Text)
			}
			text, image := composer.Take()
			if strings.TrimSpace(text) == "" && image == "" {
				h.write(ctx, conn, VoiceServerMessage{Type: VoiceError, Error: "Nothing to send yet."})
				return
			}
			req := &service.SendMessageRequest{SessionID: sessionID, Text: text, Image: image, Mode: model.Mode(msg.Mode)}
			go h.sendTurn(ctx, conn, req)
		default:
			h.write(ctx, conn, VoiceServerMessage{Type: VoiceError, Error: fmt.Sprintf("Unknown message type %q.", msg.Type)})
		}
	})

	echo := draftEcho{WebSocketSource: src, notify: func(t input.Transcript) {
		if t.Final {
			h.write(ctx, conn, VoiceServerMessage{Type: VoiceDraft, Text: composer.Text()})
		}
	}}
	if err := composer.Listen(ctx, echo); err != nil {
		slog.Error("Could not start voice input", "session_id", sessionID, "error", err)
		conn.Close(websocket.StatusInternalError, "voice input unavailable")
		return
	}
	slog.Info("Voice input connected", "session_id", sessionID)

	<-src.Done()
	if err := src.Err(); err != nil {
		slog.Warn("Voice input ended with an error", "session_id", sessionID, "error", err)
		return
	}
	conn.Close(websocket.StatusNormalClosure, "")
	slog.Info("Voice input closed", "session_id", sessionID)
}

// sendTurn runs the composed turn detached from the socket, so a dropped
// connection does not abandon the reply.
func (h *VoiceHandler) sendTurn(ctx context.Context, conn *websocket.Conn, req *service.SendMessageRequest) {
	reply, err := h.chat.SendMessage(context.WithoutCancel(ctx), req)
	if err != nil {
		_, message := classifyHTTPError(err)
		h.write(ctx, conn, VoiceServerMessage{Type: VoiceError, Error: message})
		return
	}
	h.write(ctx, conn, VoiceServerMessage{Type: VoiceMessage, Message: reply})
}

func (h *VoiceHandler) write(ctx context.Context, conn *websocket.Conn, msg VoiceServerMessage) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), voiceWriteTimeout)
	defer cancel()
	if err := wsjson.Write(ctx, conn, msg); err != nil {
		slog.Debug("Could not write to voice socket", "type", msg.Type, "error", err)
	}
}

// draftEcho reports every transcript to notify after the composer has
// taken it.
type draftEcho struct {
	*input.WebSocketSource
	notify func(input.Transcript)
}

func (d draftEcho) OnFragment(fn func(input.Transcript)) {
	d.WebSocketSource.OnFragment(func(t input.Transcript) {
		fn(t)
		d.notify(t)
	})
}
