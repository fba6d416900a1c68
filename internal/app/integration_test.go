package app

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeOllama answers streaming chats with a fixed reply and non-streaming
// chats with a suggestion list.
func fakeOllama(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			w.WriteHeader(http.StatusOK)
			return
		}
		var req struct {
			Stream bool `json:"stream"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if !req.Stream {
			fmt.Fprint(w, `{"message":{"role":"assistant","content":"[\"Why is that?\",\"Show me an example.\",\"Quiz me.\"]"},"done":true}`)
			return
		}
		for _, part := range []string{"2 + 2 ", "is ", "4."} {
			fmt.Fprintf(w, `{"message":{"role":"assistant","content":%q},"done":false}`+"\n", part)
		}
		fmt.Fprint(w, `{"message":{"role":"assistant","content":""},"done":true}`+"\n")
	}))
	t.Cleanup(srv.Close)
	return srv
}

func do(t *testing.T, method, url, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

// TestFullChatWorkflow drives the whole stack over HTTP: SQLite store,
// Ollama provider, services and router.
func TestFullChatWorkflow(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")
	ollama := fakeOllama(t)

	cfg := baseConfig()
	cfg.StoreBackend = "sqlite"
	cfg.DatabasePath = filepath.Join(t.TempDir(), "workflow.db")
	cfg.LLMBackend = "ollama"
	cfg.OllamaURL = ollama.URL
	cfg.OllamaModel = "test-model"
	cfg.ReplySuggestions = true

	app, err := NewApp(context.Background(), cfg)
	require.NoError(t, err)
	srv := httptest.NewServer(app.Server.Handler)
	baseAPIURL := srv.URL + "/api/v1"

	var sessionID string

	t.Run("CreateSession", func(t *testing.T) {
		resp := do(t, http.MethodPost, baseAPIURL+"/sessions", `{"subject":"Mathematics"}`)
		defer resp.Body.Close()
		require.Equal(t, http.StatusCreated, resp.StatusCode)

		var session map[string]any
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&session))
		sessionID = session["id"].(string)
	})

	t.Run("SendMessageStreams", func(t *testing.T) {
		require.NotEmpty(t, sessionID)
		resp := do(t, http.MethodPost, baseAPIURL+"/sessions/"+sessionID+"/messages", `{"text":"What is 2+2?"}`)
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)

		scanner := bufio.NewScanner(resp.Body)
		var event, final string
		for scanner.Scan() {
			line := scanner.Text()
			if name, ok := strings.CutPrefix(line, "event: "); ok {
				event = name
				continue
			}
			if data, ok := strings.CutPrefix(line, "data: "); ok && event == "done" {
				final = data
				break
			}
		}
		require.NoError(t, scanner.Err())
		require.NotEmpty(t, final, "stream finished without a done event")

		var msg map[string]any
		require.NoError(t, json.Unmarshal([]byte(final), &msg))
		assert.Equal(t, "2 + 2 is 4.", msg["content"])
		assert.Equal(t, "complete", msg["status"])
	})

	t.Run("ReplySuggestionsAreStored", func(t *testing.T) {
		app.Chat.Wait()
		resp := do(t, http.MethodGet, baseAPIURL+"/sessions/"+sessionID+"/suggestions", "")
		defer resp.Body.Close()

		var body struct {
			Suggestions []string `json:"suggestions"`
		}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		assert.Equal(t, []string{"Why is that?", "Show me an example.", "Quiz me."}, body.Suggestions)
	})

	t.Run("VisualFailsWithOllama", func(t *testing.T) {
		resp := do(t, http.MethodPost, baseAPIURL+"/sessions/"+sessionID+"/visuals", `{"prompt":"the water cycle"}`)
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var msg map[string]any
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&msg))
		assert.Equal(t, "errored", msg["status"])
		assert.Contains(t, msg["content"], "Creation Failure")
	})

	t.Run("UpdateTitle", func(t *testing.T) {
		resp := do(t, http.MethodPut, baseAPIURL+"/sessions/"+sessionID+"/title", `{"title":"Simple Math Question"}`)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})

	// Close the first instance and open the same database again.
	srv.Close()
	app.Close()
	reopened, err := NewApp(context.Background(), cfg)
	require.NoError(t, err)
	defer reopened.Close()
	srv = httptest.NewServer(reopened.Server.Handler)
	defer srv.Close()
	baseAPIURL = srv.URL + "/api/v1"

	t.Run("SessionSurvivesRestart", func(t *testing.T) {
		resp := do(t, http.MethodGet, baseAPIURL+"/sessions/"+sessionID, "")
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var session map[string]any
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&session))
		assert.Equal(t, "Simple Math Question", session["title"])
		// Welcome, question, answer, visual request, visual failure.
		assert.Len(t, session["messages"], 5)
	})

	t.Run("DeleteSession", func(t *testing.T) {
		resp := do(t, http.MethodDelete, baseAPIURL+"/sessions/"+sessionID, "")
		defer resp.Body.Close()
		assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	})

	t.Run("VerifyDeletion", func(t *testing.T) {
		resp := do(t, http.MethodGet, baseAPIURL+"/sessions", "")
		defer resp.Body.Close()

		var list struct {
			Sessions []map[string]any `json:"sessions"`
		}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&list))
		assert.Empty(t, list.Sessions)
	})
}
