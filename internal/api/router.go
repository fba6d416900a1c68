package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	httpSwagger "github.com/swaggo/http-swagger"

	// This blank import is required by swaggo to find the API definitions.
	_ "study-buddy/backend/docs"
	"study-buddy/backend/internal/interfaces"
	app_middleware "study-buddy/backend/internal/middleware"
)

// RouterConfig carries the handlers and HTTP settings of the API.
type RouterConfig struct {
	Chat           *ChatHandler
	Profile        *ProfileHandler
	Voice          *VoiceHandler
	Status         interfaces.StatusService
	AllowedOrigins []string
	// RequestTimeout bounds the non-streaming routes.
	RequestTimeout time.Duration
}

// NewRouter creates and configures a new chi router with all the application's routes.
func NewRouter(cfg RouterConfig) *chi.Mux {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 60 * time.Second
	}

	r := chi.NewRouter()

	// --- Global Middleware ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(app_middleware.CORS(cfg.AllowedOrigins))

	// Liveness and provider reachability in one check.
	r.Get("/healthz", healthHandler(cfg.Status))

	r.Get("/api/swagger/*", httpSwagger.WrapHandler)

	r.Route("/api/v1", func(r chi.Router) {

		// Standard JSON routes get a request timeout.
		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(cfg.RequestTimeout))

			// --- Sessions ---
			r.Get("/sessions", cfg.Chat.HandleListSessions)
			r.Post("/sessions", cfg.Chat.HandleCreateSession)
			r.Get("/sessions/active", cfg.Chat.HandleGetActiveSession)
			r.Get("/sessions/{sessionID}", cfg.Chat.HandleGetSession)
			r.Delete("/sessions/{sessionID}", cfg.Chat.HandleDeleteSession)
			r.Put("/sessions/{sessionID}/title", cfg.Chat.HandleUpdateTitle)
			r.Post("/sessions/{sessionID}/select", cfg.Chat.HandleSelectSession)
			r.Get("/sessions/{sessionID}/suggestions", cfg.Chat.HandleGetSuggestions)
			r.Post("/sessions/{sessionID}/visual-suggestions", cfg.Chat.HandleVisualSuggestions)
			r.Post("/workspace/reset", cfg.Chat.HandleResetWorkspace)

			// --- Profile ---
			r.Post("/auth/login", cfg.Profile.HandleLogin)
			r.Post("/auth/logout", cfg.Profile.HandleLogout)
			r.Get("/user", cfg.Profile.HandleGetUser)
			r.Get("/theme", cfg.Profile.HandleGetTheme)
			r.Put("/theme", cfg.Profile.HandleSetTheme)
			r.Get("/environments", cfg.Profile.HandleListEnvironments)
			r.Post("/environments", cfg.Profile.HandleCreateEnvironment)
			r.Delete("/environments/{envID}", cfg.Profile.HandleDeleteEnvironment)
			r.Post("/uploads", cfg.Profile.HandleUpload)
		})

		// Long-running routes must NOT have a timeout: turns stream, image
		// generation can take minutes and the voice socket stays open.
		r.Group(func(r chi.Router) {
			r.Post("/sessions/{sessionID}/messages", cfg.Chat.HandleSendMessage)
			r.Post("/sessions/{sessionID}/actions/{action}", cfg.Chat.HandleQuickAction)
			r.Post("/sessions/{sessionID}/visuals", cfg.Chat.HandleGenerateVisual)
			r.Get("/sessions/{sessionID}/voice", cfg.Voice.HandleVoice)
		})
	})

	return r
}

// healthHandler reports 200 while the generation backend answers and 503
// otherwise. The body always carries the full status.
func healthHandler(status interfaces.StatusService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if status == nil {
			respondWithJSON(w, http.StatusOK, StatusResponse{Status: "ok"})
			return
		}
		st := status.Status(r.Context())
		code := http.StatusOK
		if !st.Reachable {
			code = http.StatusServiceUnavailable
		}
		respondWithJSON(w, code, st)
	}
}
