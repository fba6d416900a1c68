package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"study-buddy/backend/internal/api"
	"study-buddy/backend/internal/config"
	"study-buddy/backend/internal/database"
	"study-buddy/backend/internal/llm"
	"study-buddy/backend/internal/repository"
	"study-buddy/backend/internal/service"
)

const (
	shutdownTimeout = 15 * time.Second
	ollamaWaitLimit = 30 * time.Second
)

// App holds the wired server and the resources it owns.
type App struct {
	Server    *http.Server
	Workspace *service.Workspace
	Chat      *service.ChatService

	// DB and Redis are set only for the matching store backend.
	DB    *sql.DB
	Redis *redis.Client
}

func Run() int {
	cfg, configFile, err := config.LoadConfig()
	if err != nil {
		// slog is not yet configured, so use the default logger for this critical error.
		slog.Error("Failed to load configuration", "error", err)
		return 1
	}

	setupLogger(cfg.LogLevel)
	logConfigSource(configFile)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := NewApp(ctx, cfg)
	if err != nil {
		slog.Error("Failed to initialize application", "error", err)
		return 1
	}
	defer app.Close()

	serverErr := make(chan error, 1)
	go func() {
		slog.Info("Starting server", "port", cfg.AppPort, "store", cfg.StoreBackend, "llm", cfg.LLMBackend)
		if err := app.Server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err := <-serverErr:
		if err != nil {
			slog.Error("Server failed", "error", err)
			return 1
		}
	case <-ctx.Done():
		slog.Info("Shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := app.Server.Shutdown(shutdownCtx); err != nil {
		slog.Error("Graceful shutdown failed", "error", err)
		return 1
	}
	// Let background suggestion work finish writing.
	app.Chat.Wait()
	slog.Info("Server stopped")
	return 0
}

// NewApp wires the store, the generation provider, the services and the
// HTTP server from cfg.
func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	app := &App{}

	kv, err := app.openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	provider, models, err := newProvider(ctx, cfg)
	if err != nil {
		app.Close()
		return nil, err
	}

	presets, err := config.LoadEnvironmentPresets(cfg.EnvironmentsFile)
	if err != nil {
		app.Close()
		return nil, err
	}

	ws := service.NewWorkspace(ctx, kv, repository.NewKeys(cfg.StoreNamespace), service.WorkspaceOptions{Presets: presets})
	suggestions := service.NewSuggestionService(ws, provider)
	chat := service.NewChatService(ws, provider, suggestions, service.ChatConfig{
		HistoryWindow:    cfg.HistoryWindow,
		TitlePolicy:      service.TitlePolicy(cfg.TitlePolicy),
		ReplySuggestions: cfg.ReplySuggestions,
	})
	visuals := service.NewVisualService(ws, provider, cfg.SuggestionDebounce)
	profile := service.NewProfileService(ws)
	status := service.NewStatusService(ws, provider, cfg.LLMBackend, models)

	router := api.NewRouter(api.RouterConfig{
		Chat:           api.NewChatHandler(ws, chat, visuals),
		Profile:        api.NewProfileHandler(profile),
		Voice:          api.NewVoiceHandler(ws, chat, cfg.CORSOrigins),
		Status:         status,
		AllowedOrigins: cfg.CORSOrigins,
	})

	app.Workspace = ws
	app.Chat = chat
	app.Server = &http.Server{
		Addr:              ":" + strconv.Itoa(cfg.AppPort),
		Handler:           router,
		ReadHeaderTimeout: 20 * time.Second,
		WriteTimeout:      0, // Disabled for streaming endpoints
		IdleTimeout:       120 * time.Second,
	}
	return app, nil
}

// Close releases the store connections.
func (a *App) Close() {
	if a.DB != nil {
		if err := a.DB.Close(); err != nil {
			slog.Error("Failed to close database connection", "error", err)
		}
	}
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			slog.Error("Failed to close redis connection", "error", err)
		}
	}
}

func (a *App) openStore(ctx context.Context, cfg *config.Config) (repository.KV, error) {
	switch cfg.StoreBackend {
	case "redis":
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := rdb.Ping(pingCtx).Err(); err != nil {
			_ = rdb.Close()
			return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.RedisAddr, err)
		}
		a.Redis = rdb
		slog.Info("Successfully connected to Redis.", "addr", cfg.RedisAddr)
		return repository.NewRedisKV(rdb), nil
	case "memory":
		slog.Warn("Using the in-memory store; nothing survives a restart.")
		return repository.NewMemoryKV(), nil
	default:
		db, err := database.InitDB(cfg.DatabasePath)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize database: %w", err)
		}
		a.DB = db
		slog.Info("Successfully connected to SQLite database.", "path", cfg.DatabasePath)
		return repository.NewSQLiteKV(db), nil
	}
}

func newProvider(ctx context.Context, cfg *config.Config) (llm.Provider, map[string]string, error) {
	if cfg.LLMBackend == "ollama" {
		p := llm.NewOllamaProvider(cfg.OllamaURL, cfg.OllamaModel)
		waitForOllama(ctx, p, cfg.OllamaURL)
		return p, map[string]string{"chat": cfg.OllamaModel}, nil
	}

	models := llm.GeminiModels{
		Text:  cfg.GeminiTextModel,
		Deep:  cfg.GeminiDeepModel,
		Image: cfg.GeminiImageModel,
		Edit:  cfg.GeminiEditModel,
	}
	p, err := llm.NewGeminiProvider(ctx, models, geminiKeySource(cfg.GeminiAPIKey), cfg.RequestsPerMinute)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize gemini provider: %w", err)
	}
	return p, map[string]string{
		"text":  models.Text,
		"deep":  models.Deep,
		"image": models.Image,
		"edit":  models.Edit,
	}, nil
}

// geminiKeySource re-reads .env and the config file on every call and falls
// back to the key the process started with.
func geminiKeySource(initial string) llm.KeySource {
	return func() (string, error) {
		key, err := config.ReloadAPIKey()
		if err != nil {
			slog.Warn("Could not reload API key, using the startup value", "error", err)
			return initial, nil
		}
		if key == "" {
			return initial, nil
		}
		return key, nil
	}
}

func logConfigSource(configFileUsed string) {
	if configFileUsed != "" {
		slog.Info("Successfully loaded configuration from file.", "file", configFileUsed)
	} else {
		slog.Info("Configuration file not found. Using environment variables and defaults.")
	}
}

func setupLogger(logLevel string) {
	var level slog.Level
	switch strings.ToUpper(logLevel) {
	case "DEBUG":
		level = slog.LevelDebug
	case "WARN":
		level = slog.LevelWarn
	case "ERROR":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)
}

// waitForOllama polls the Ollama server until it answers, the context ends
// or the wait limit passes. Startup continues either way; turns fail with a
// classified error until the server is up.
func waitForOllama(ctx context.Context, p *llm.OllamaProvider, ollamaURL string) {
	slog.Info("Waiting for Ollama to be ready...", "url", ollamaURL)
	ctx, cancel := context.WithTimeout(ctx, ollamaWaitLimit)
	defer cancel()
	for {
		pingCtx, pingCancel := context.WithTimeout(ctx, 2*time.Second)
		err := p.Ping(pingCtx)
		pingCancel()
		if err == nil {
			slog.Info("Ollama is ready.")
			return
		}
		slog.Debug("Ollama not ready yet, retrying in 3 seconds...", "url", ollamaURL, "error", err)
		select {
		case <-ctx.Done():
			slog.Warn("Ollama did not become ready, continuing without it.", "url", ollamaURL)
			return
		case <-time.After(3 * time.Second):
		}
	}
}
