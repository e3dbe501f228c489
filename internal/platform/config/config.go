// Package config loads application configuration from environment variables.
// All variables use the TUTOR_ prefix. A .env file in the working directory is
// read first when present.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration.
type Config struct {
	Server      ServerConfig
	Database    DatabaseConfig
	Cache       CacheConfig
	AI          AIConfig
	Telegram    TelegramConfig
	WebSocket   WebSocketConfig
	Quiz        QuizConfig
	Budget      BudgetConfig
	Log         LogConfig
	CatalogPath string
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port int
	Host string
}

// DatabaseConfig holds storage connection settings. The URL scheme selects
// the backend: postgres://, sqlite:// or memory://.
type DatabaseConfig struct {
	URL      string
	MaxConns int
	MinConns int
}

// CacheConfig holds Redis connection settings. Empty URL keeps quiz sessions
// and recommendations in process memory.
type CacheConfig struct {
	URL string
}

// AIConfig holds configuration for all AI providers.
type AIConfig struct {
	Model       string
	Temperature float64
	Timeout     time.Duration

	Groq       ProviderConfig
	OpenAI     ProviderConfig
	Anthropic  ProviderConfig
	DeepSeek   ProviderConfig
	Google     ProviderConfig
	OpenRouter ProviderConfig
	Ollama     OllamaConfig
}

// ProviderConfig holds a hosted provider's credentials.
type ProviderConfig struct {
	APIKey string
	Model  string
}

// OllamaConfig holds self-hosted Ollama settings.
type OllamaConfig struct {
	Enabled bool
	URL     string
	Model   string
}

// TelegramConfig holds Telegram Bot API settings.
type TelegramConfig struct {
	BotToken string
}

// WebSocketConfig holds the web chat widget settings.
type WebSocketConfig struct {
	Enabled bool
	Token   string
}

// QuizConfig holds quiz generation settings.
type QuizConfig struct {
	QuestionCount     int
	GenerationTimeout time.Duration
	SessionTTL        time.Duration
}

// BudgetConfig holds per-user daily token limits. Zero disables the check.
type BudgetConfig struct {
	DailyTokens int
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string
	Format string
}

// LoadDotEnv reads KEY=VALUE pairs from path into the process environment
// without overriding variables that are already set. A missing file is not
// an error.
func LoadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("loading %s: %w", path, err)
	}
	return nil
}

// Load reads configuration from environment variables with TUTOR_ prefix.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port: envInt("TUTOR_SERVER_PORT", 8080),
			Host: envStr("TUTOR_SERVER_HOST", "0.0.0.0"),
		},
		Database: DatabaseConfig{
			URL:      envStr("TUTOR_DATABASE_URL", "sqlite://data/tutor.db"),
			MaxConns: envInt("TUTOR_DATABASE_MAX_CONNS", 10),
			MinConns: envInt("TUTOR_DATABASE_MIN_CONNS", 2),
		},
		Cache: CacheConfig{
			URL: envStr("TUTOR_CACHE_URL", ""),
		},
		AI: AIConfig{
			Model:       envStr("TUTOR_AI_MODEL", ""),
			Temperature: envFloat("TUTOR_AI_TEMPERATURE", 0.7),
			Timeout:     envDuration("TUTOR_AI_TIMEOUT", 60*time.Second),
			Groq: ProviderConfig{
				APIKey: envStr("TUTOR_AI_GROQ_API_KEY", ""),
				Model:  envStr("TUTOR_AI_GROQ_MODEL", "deepseek-r1-distill-llama-70b"),
			},
			OpenAI: ProviderConfig{
				APIKey: envStr("TUTOR_AI_OPENAI_API_KEY", ""),
				Model:  envStr("TUTOR_AI_OPENAI_MODEL", "gpt-4o-mini"),
			},
			Anthropic: ProviderConfig{
				APIKey: envStr("TUTOR_AI_ANTHROPIC_API_KEY", ""),
				Model:  envStr("TUTOR_AI_ANTHROPIC_MODEL", "claude-3-5-haiku-latest"),
			},
			DeepSeek: ProviderConfig{
				APIKey: envStr("TUTOR_AI_DEEPSEEK_API_KEY", ""),
				Model:  envStr("TUTOR_AI_DEEPSEEK_MODEL", "deepseek-chat"),
			},
			Google: ProviderConfig{
				APIKey: envStr("TUTOR_AI_GOOGLE_API_KEY", ""),
				Model:  envStr("TUTOR_AI_GOOGLE_MODEL", "gemini-2.0-flash"),
			},
			OpenRouter: ProviderConfig{
				APIKey: envStr("TUTOR_AI_OPENROUTER_API_KEY", ""),
				Model:  envStr("TUTOR_AI_OPENROUTER_MODEL", "deepseek/deepseek-r1-distill-llama-70b"),
			},
			Ollama: OllamaConfig{
				Enabled: envBool("TUTOR_AI_OLLAMA_ENABLED", false),
				URL:     envStr("TUTOR_AI_OLLAMA_URL", "http://localhost:11434"),
				Model:   envStr("TUTOR_AI_OLLAMA_MODEL", "llama3.1"),
			},
		},
		Telegram: TelegramConfig{
			BotToken: envStr("TUTOR_TELEGRAM_BOT_TOKEN", ""),
		},
		WebSocket: WebSocketConfig{
			Enabled: envBool("TUTOR_WEBSOCKET_ENABLED", false),
			Token:   envStr("TUTOR_WEBSOCKET_TOKEN", ""),
		},
		Quiz: QuizConfig{
			QuestionCount:     envInt("TUTOR_QUIZ_QUESTION_COUNT", 3),
			GenerationTimeout: envDuration("TUTOR_QUIZ_GENERATION_TIMEOUT", 30*time.Second),
			SessionTTL:        envDuration("TUTOR_QUIZ_SESSION_TTL", 24*time.Hour),
		},
		Budget: BudgetConfig{
			DailyTokens: envInt("TUTOR_BUDGET_DAILY_TOKENS", 0),
		},
		Log: LogConfig{
			Level:  envStr("TUTOR_LOG_LEVEL", "info"),
			Format: envStr("TUTOR_LOG_FORMAT", "json"),
		},
		CatalogPath: envStr("TUTOR_CATALOG_PATH", "./topics.yaml"),
	}

	return cfg, nil
}

// Validate checks that required configuration is present.
func (c *Config) Validate() error {
	if c.Telegram.BotToken == "" && !c.WebSocket.Enabled {
		return fmt.Errorf("TUTOR_TELEGRAM_BOT_TOKEN is required unless TUTOR_WEBSOCKET_ENABLED is set")
	}

	if !c.HasAIProvider() {
		return fmt.Errorf("at least one AI provider must be configured")
	}

	if c.Quiz.QuestionCount < 1 {
		return fmt.Errorf("TUTOR_QUIZ_QUESTION_COUNT must be positive, got %d", c.Quiz.QuestionCount)
	}

	if c.Quiz.GenerationTimeout <= 0 {
		return fmt.Errorf("TUTOR_QUIZ_GENERATION_TIMEOUT must be positive, got %s", c.Quiz.GenerationTimeout)
	}

	if c.Log.Format != "json" && c.Log.Format != "text" {
		return fmt.Errorf("TUTOR_LOG_FORMAT must be 'json' or 'text', got %q", c.Log.Format)
	}

	return nil
}

// HasAIProvider returns true if at least one AI provider is configured.
func (c *Config) HasAIProvider() bool {
	return c.AI.Groq.APIKey != "" ||
		c.AI.OpenAI.APIKey != "" ||
		c.AI.Anthropic.APIKey != "" ||
		c.AI.DeepSeek.APIKey != "" ||
		c.AI.Google.APIKey != "" ||
		c.AI.OpenRouter.APIKey != "" ||
		c.AI.Ollama.Enabled
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		return strings.EqualFold(v, "true") || v == "1"
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
