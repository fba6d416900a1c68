package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"study-buddy/backend/internal/api"
	"study-buddy/backend/internal/interfaces/mocks"
	llm_mocks "study-buddy/backend/internal/llm/mocks"
	"study-buddy/backend/internal/repository"
	"study-buddy/backend/internal/service"
)

// pingingProvider adds a Ping to the mock provider.
type pingingProvider struct {
	*llm_mocks.MockProvider
	err error
}

func (p pingingProvider) Ping(context.Context) error { return p.err }

func setupRouter(t *testing.T, pingErr error) http.Handler {
	t.Helper()
	ws := service.NewWorkspace(context.Background(), repository.NewMemoryKV(), repository.NewKeys("test"), service.WorkspaceOptions{})
	chat := mocks.NewMockChatService(t)
	provider := pingingProvider{MockProvider: llm_mocks.NewMockProvider(t), err: pingErr}
	origins := []string{"http://localhost:5173"}

	return api.NewRouter(api.RouterConfig{
		Chat:           api.NewChatHandler(ws, chat, mocks.NewMockVisualService(t)),
		Profile:        api.NewProfileHandler(service.NewProfileService(ws)),
		Voice:          api.NewVoiceHandler(ws, chat, origins),
		Status:         service.NewStatusService(ws, provider, "gemini", map[string]string{"chat": "gemini-2.5-flash"}),
		AllowedOrigins: origins,
	})
}

func TestRouter_Healthz(t *testing.T) {
	t.Run("Reachable backend", func(t *testing.T) {
		router := setupRouter(t, nil)

		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))

		assert.Equal(t, http.StatusOK, rr.Code)
		var st service.Status
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &st))
		assert.True(t, st.Reachable)
		assert.Equal(t, "gemini", st.Backend)
	})

	t.Run("Unreachable backend", func(t *testing.T) {
		router := setupRouter(t, errors.New("connection refused"))

		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))

		assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
		assert.Contains(t, rr.Body.String(), "connection refused")
	})
}

func TestRouter_Routes(t *testing.T) {
	router := setupRouter(t, nil)

	// Create a session through the router, then read it back by id.
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/v1/sessions", strings.NewReader(`{"subject":"Mathematics"}`)))
	require.Equal(t, http.StatusCreated, rr.Code)
	var created struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &created))

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/sessions/"+created.ID, nil))
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/sessions/active", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), created.ID)

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/nothing-here", nil))
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestRouter_CORSPreflight(t *testing.T) {
	router := setupRouter(t, nil)

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/sessions", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Equal(t, "http://localhost:5173", rr.Header().Get("Access-Control-Allow-Origin"))
}

func TestRouter_SwaggerDoc(t *testing.T) {
	// ARRANGE
	router := setupRouter(t, nil)

	// ACT
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/swagger/doc.json", nil))

	// ASSERT
	require.Equal(t, http.StatusOK, rr.Code)
	var doc struct {
		BasePath string                    `json:"basePath"`
		Paths    map[string]map[string]any `json:"paths"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &doc))
	assert.Equal(t, "/api", doc.BasePath)
	assert.Contains(t, doc.Paths["/v1/sessions/{sessionID}/messages"], "post")
	assert.Contains(t, doc.Paths["/v1/sessions/{sessionID}/voice"], "get")
	assert.Contains(t, doc.Paths["/v1/uploads"], "post")
}
