package api_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"study-buddy/backend/internal/api"
	app_errors "study-buddy/backend/internal/errors"
	"study-buddy/backend/internal/input"
	"study-buddy/backend/internal/interfaces/mocks"
	"study-buddy/backend/internal/model"
	"study-buddy/backend/internal/repository"
	"study-buddy/backend/internal/service"
)

func setupVoiceServer(t *testing.T) (*httptest.Server, *service.Workspace, *mocks.MockChatService) {
	t.Helper()
	ws := service.NewWorkspace(context.Background(), repository.NewMemoryKV(), repository.NewKeys("test"), service.WorkspaceOptions{})
	mockChat := mocks.NewMockChatService(t)
	handler := api.NewVoiceHandler(ws, mockChat, []string{"http://localhost:5173"})

	r := chi.NewRouter()
	r.Get("/sessions/{sessionID}/voice", handler.HandleVoice)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, ws, mockChat
}

func readVoice(t *testing.T, ctx context.Context, conn *websocket.Conn) api.VoiceServerMessage {
	t.Helper()
	var msg api.VoiceServerMessage
	require.NoError(t, wsjson.Read(ctx, conn, &msg))
	return msg
}

func TestVoiceHandler(t *testing.T) {
	t.Run("Transcripts compose a turn that is sent on request", func(t *testing.T) {
		// ARRANGE
		srv, ws, mockChat := setupVoiceServer(t)
		s := createSession(t, ws)
		reply := &model.Message{ID: "a1", Role: model.RoleAssistant, Content: "Chlorophyll absorbs light.", Status: model.StatusComplete}
		mockChat.On("SendMessage", mock.Anything, mock.MatchedBy(func(r *service.SendMessageRequest) bool {
			return r.SessionID == s.ID && r.Text == "what is chlorophyll" && r.Mode == model.ModeSearch
		})).Return(reply, nil).Once()

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/sessions/" + s.ID + "/voice"
		conn, _, err := websocket.Dial(ctx, url, nil)
		require.NoError(t, err)
		defer conn.CloseNow()

		// ACT & ASSERT: interim results are not echoed, final ones are.
		require.NoError(t, wsjson.Write(ctx, conn, input.ClientMessage{Type: input.MessageTranscript, Text: "what is", Final: false}))
		require.NoError(t, wsjson.Write(ctx, conn, input.ClientMessage{Type: input.MessageTranscript, Text: "what is", Final: true}))
		draft := readVoice(t, ctx, conn)
		assert.Equal(t, api.VoiceDraft, draft.Type)
		assert.Equal(t, "what is", draft.Text)

		require.NoError(t, wsjson.Write(ctx, conn, input.ClientMessage{Type: input.MessageTranscript, Text: "chlorophyll", Final: true}))
		assert.Equal(t, "what is chlorophyll", readVoice(t, ctx, conn).Text)

		require.NoError(t, wsjson.Write(ctx, conn, input.ClientMessage{Type: input.MessagePing}))
		assert.Equal(t, api.VoicePong, readVoice(t, ctx, conn).Type)

		require.NoError(t, wsjson.Write(ctx, conn, input.ClientMessage{Type: input.MessageSend, Mode: string(model.ModeSearch)}))
		got := readVoice(t, ctx, conn)
		assert.Equal(t, api.VoiceMessage, got.Type)
		require.NotNil(t, got.Message)
		assert.Equal(t, reply.Content, got.Message.Content)

		require.NoError(t, conn.Close(websocket.StatusNormalClosure, ""))
	})

	t.Run("Sending an empty draft is an error frame", func(t *testing.T) {
		srv, ws, _ := setupVoiceServer(t)
		s := createSession(t, ws)

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http")+"/sessions/"+s.ID+"/voice", nil)
		require.NoError(t, err)
		defer conn.CloseNow()

		require.NoError(t, wsjson.Write(ctx, conn, input.ClientMessage{Type: input.MessageSend}))
		got := readVoice(t, ctx, conn)
		assert.Equal(t, api.VoiceError, got.Type)
	})

	t.Run("Sending while a reply is still being written is an error frame", func(t *testing.T) {
		// ARRANGE
		srv, ws, mockChat := setupVoiceServer(t)
		s := createSession(t, ws)
		mockChat.On("SendMessage", mock.Anything, mock.Anything).
			Return(nil, fmt.Errorf("%w: a reply is already being written for session %s", app_errors.ErrConflict, s.ID)).Once()

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http")+"/sessions/"+s.ID+"/voice", nil)
		require.NoError(t, err)
		defer conn.CloseNow()

		// ACT
		require.NoError(t, wsjson.Write(ctx, conn, input.ClientMessage{Type: input.MessageSend, Text: "and the dark reactions?"}))
		got := readVoice(t, ctx, conn)

		// ASSERT
		assert.Equal(t, api.VoiceError, got.Type)
		assert.Contains(t, got.Error, "already running")
		assert.Nil(t, got.Message)
	})

	t.Run("Unknown session is rejected before the upgrade", func(t *testing.T) {
		srv, _, _ := setupVoiceServer(t)

		resp, err := http.Get(srv.URL + "/sessions/nope/voice")
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("Disallowed origin is rejected", func(t *testing.T) {
		srv, ws, _ := setupVoiceServer(t)
		s := createSession(t, ws)

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_, resp, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http")+"/sessions/"+s.ID+"/voice", &websocket.DialOptions{
			HTTPHeader: http.Header{"Origin": []string{"http://evil.example"}},
		})

		require.Error(t, err)
		require.NotNil(t, resp)
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	})
}
