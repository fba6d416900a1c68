package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"study-buddy/backend/internal/model"
)

type Config struct {
	AppPort  int    `mapstructure:"APP_PORT"`
	LogLevel string `mapstructure:"LOG_LEVEL"`

	StoreBackend   string `mapstructure:"STORE_BACKEND"` // sqlite | redis | memory
	DatabasePath   string `mapstructure:"DATABASE_PATH"`
	RedisAddr      string `mapstructure:"REDIS_ADDR"`
	StoreNamespace string `mapstructure:"STORE_NAMESPACE"`

	LLMBackend        string `mapstructure:"LLM_BACKEND"` // gemini | ollama
	GeminiAPIKey      string `mapstructure:"GEMINI_API_KEY"`
	GeminiTextModel   string `mapstructure:"GEMINI_TEXT_MODEL"`
	GeminiDeepModel   string `mapstructure:"GEMINI_DEEP_MODEL"`
	GeminiImageModel  string `mapstructure:"GEMINI_IMAGE_MODEL"`
	GeminiEditModel   string `mapstructure:"GEMINI_EDIT_MODEL"`
	OllamaURL         string `mapstructure:"OLLAMA_URL"`
	OllamaModel       string `mapstructure:"OLLAMA_MODEL"`
	RequestsPerMinute int    `mapstructure:"REQUESTS_PER_MINUTE"`

	HistoryWindow      int           `mapstructure:"HISTORY_WINDOW"`
	SuggestionDebounce time.Duration `mapstructure:"SUGGESTION_DEBOUNCE"`
	ReplySuggestions   bool          `mapstructure:"REPLY_SUGGESTIONS"`
	TitlePolicy        string        `mapstructure:"TITLE_POLICY"` // fixed | first_message
	EnvironmentsFile   string        `mapstructure:"ENVIRONMENTS_FILE"`
	CORSOrigins        []string      `mapstructure:"CORS_ORIGINS"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("APP_PORT", 8000)
	v.SetDefault("LOG_LEVEL", "INFO")

	v.SetDefault("STORE_BACKEND", "sqlite")
	v.SetDefault("DATABASE_PATH", "./data/studybuddy.db")
	v.SetDefault("REDIS_ADDR", "localhost:6379")
	v.SetDefault("STORE_NAMESPACE", "studybuddy")

	v.SetDefault("LLM_BACKEND", "gemini")
	v.SetDefault("GEMINI_API_KEY", "")
	v.SetDefault("GEMINI_TEXT_MODEL", "gemini-3-flash-preview")
	v.SetDefault("GEMINI_DEEP_MODEL", "gemini-3-pro-preview")
	v.SetDefault("GEMINI_IMAGE_MODEL", "imagen-4.0-generate-001")
	v.SetDefault("GEMINI_EDIT_MODEL", "gemini-2.5-flash-image")
	v.SetDefault("OLLAMA_URL", "http://localhost:11434")
	v.SetDefault("OLLAMA_MODEL", "llama3.2")
	v.SetDefault("REQUESTS_PER_MINUTE", 60)

	v.SetDefault("HISTORY_WINDOW", 10)
	v.SetDefault("SUGGESTION_DEBOUNCE", 750*time.Millisecond)
	v.SetDefault("REPLY_SUGGESTIONS", true)
	v.SetDefault("TITLE_POLICY", "fixed")
	v.SetDefault("ENVIRONMENTS_FILE", "")
	v.SetDefault("CORS_ORIGINS", []string{"*"})
}

func newViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	return v
}

// LoadConfig reads .env into the process environment, then layers
// config.yaml, environment variables and defaults through viper.
// The returned string is the config file that was used, if any.
func LoadConfig() (*Config, string, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, "", fmt.Errorf("failed to read .env: %w", err)
	}

	v := newViper()
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, "", err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, "", err
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, v.ConfigFileUsed(), nil
}

// Validate checks the fields that have a closed set of values.
func (c *Config) Validate() error {
	switch c.StoreBackend {
	case "sqlite", "redis", "memory":
	default:
		return fmt.Errorf("STORE_BACKEND must be sqlite, redis or memory, got %q", c.StoreBackend)
	}
	switch c.LLMBackend {
	case "gemini", "ollama":
	default:
		return fmt.Errorf("LLM_BACKEND must be gemini or ollama, got %q", c.LLMBackend)
	}
	switch c.TitlePolicy {
	case "fixed", "first_message":
	default:
		return fmt.Errorf("TITLE_POLICY must be fixed or first_message, got %q", c.TitlePolicy)
	}
	if c.StoreBackend == "sqlite" && c.DatabasePath == "" {
		return fmt.Errorf("DATABASE_PATH cannot be empty")
	}
	if c.HistoryWindow <= 0 {
		return fmt.Errorf("HISTORY_WINDOW must be > 0")
	}
	if c.RequestsPerMinute <= 0 {
		return fmt.Errorf("REQUESTS_PER_MINUTE must be > 0")
	}
	return nil
}

// ReloadAPIKey re-reads .env and the config file and returns the current
// Gemini key. It backs the re-authorization flow after quota or auth failures.
func ReloadAPIKey() (string, error) {
	if err := godotenv.Overload(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("failed to re-read .env: %w", err)
	}
	v := newViper()
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return "", err
		}
	}
	return v.GetString("GEMINI_API_KEY"), nil
}

type environmentsFile struct {
	Environments []model.LearningEnvironment `yaml:"environments"`
}

// LoadEnvironmentPresets reads learning-environment presets from a YAML file.
// An empty path yields no presets.
func LoadEnvironmentPresets(path string) ([]model.LearningEnvironment, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("could not read environments file: %w", err)
	}
	var f environmentsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("could not parse environments file: %w", err)
	}
	return f.Environments, nil
}
