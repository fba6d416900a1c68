package input_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"study-buddy/backend/internal/input"
)

func TestWebSocketSource(t *testing.T) {
	var (
		mu       sync.Mutex
		text     string
		controls []input.ClientMessage
	)
	finished := make(chan struct{})

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		require.NoError(t, err)
		defer conn.CloseNow()

		composer := input.NewComposer()
		src := input.NewWebSocketSource(conn)
		src.OnControl(func(m input.ClientMessage) {
			mu.Lock()
			defer mu.Unlock()
			controls = append(controls, m)
			if m.Type == input.MessageSend {
				text, _ = composer.Take()
			}
		})
		require.NoError(t, composer.Listen(r.Context(), src))
		assert.Error(t, src.Start(r.Context()), "second start is rejected")

		<-src.Done()
		assert.NoError(t, src.Err())
		close(finished)
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(server.URL, "http"), nil)
	require.NoError(t, err)

	for _, m := range []input.ClientMessage{
		{Type: input.MessageTranscript, Text: "what is", Final: true},
		{Type: input.MessageTranscript, Text: "grav", Final: false},
		{Type: input.MessageTranscript, Text: "gravity", Final: true},
		{Type: input.MessageSend, Mode: "lite"},
	} {
		require.NoError(t, wsjson.Write(ctx, conn, m))
	}
	require.NoError(t, conn.Close(websocket.StatusNormalClosure, "done"))

	select {
	case <-finished:
	case <-ctx.Done():
		t.Fatal("server did not finish")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "what is gravity", text)
	require.Len(t, controls, 1)
	assert.Equal(t, "lite", controls[0].Mode)
}
