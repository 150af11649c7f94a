/*
Package core implements the banking support bot's turn-execution pipeline:
configuration, authentication, the reasoning engine with its tool-call loop,
the event normalizer that produces the client-facing stream protocol,
conversation memory, execution cancellation, and the response judge.

This file handles:
- Loading configuration from environment variables with sensible defaults
- Structured logging setup with configurable levels

The configuration system follows the twelve-factor app methodology by
prioritizing environment variables for deployment flexibility while
providing reasonable defaults for development.
*/
package core

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// Config holds all configurable values for the banking bot application.
type Config struct {
	// Server configuration
	Port string // HTTP server port number (default: "8080")

	// LLM Provider configuration
	LLMProvider string // LLM provider to use: "openai" or "ollama" (default: "openai")

	// OpenAI configuration
	OpenAIAPIKey         string // API key (required when using the openai provider)
	OpenAIModel          string // Chat model name (default: "gpt-4o-mini")
	OpenAIEmbeddingModel string // Embedding model for document search (default: "text-embedding-3-small")

	// Ollama configuration (local fallback)
	OllamaEndpoint string // Base URL for the Ollama API service (default: "http://localhost:11434")
	OllamaModel    string // Name of the Ollama model to use for inference (default: "qwen3")

	// Turn engine configuration
	MaxToolRounds    int           // Maximum think/act cycles per turn before forcing a degraded answer (default: 12)
	RequestTimeout   time.Duration // Timeout for one turn end to end (default: 300s)
	JudgeTemperature float64       // Sampling temperature for the evaluation model call (default: 0.1)

	// Storage configuration
	DatabasePath  string // SQLite database file path (default: "data/banking.db")
	VectorDir     string // chromem-go persistence directory (default: "data/vectors")
	JWTSecret     string // HMAC secret for bearer tokens (default is development-only)
	TokenLifetime time.Duration // Bearer token validity (default: 24h)

	// Conversation memory configuration
	ConversationMaxAge time.Duration // How long idle conversations stay in memory (default: 24h)
	CleanupInterval    time.Duration // How often expired conversations are evicted (default: 1h)

	// Logging configuration
	LogLevel          string // Minimum log level: debug, info, warn, error (default: "info")
	LogTruncateLength int    // Maximum length for logged model/tool output (default: 500)
}

// LoadConfig loads configuration from environment variables with sensible
// defaults. Parsing of numeric variables is validated; invalid values keep
// the default rather than failing startup.
func LoadConfig() *Config {
	config := &Config{
		Port: "8080",

		LLMProvider:          "openai",
		OpenAIModel:          "gpt-4o-mini",
		OpenAIEmbeddingModel: "text-embedding-3-small",
		OllamaEndpoint:       "http://localhost:11434",
		OllamaModel:          "qwen3",

		MaxToolRounds:    12,
		RequestTimeout:   300 * time.Second,
		JudgeTemperature: 0.1,

		DatabasePath:  "data/banking.db",
		VectorDir:     "data/vectors",
		JWTSecret:     "dev-secret-change-me",
		TokenLifetime: 24 * time.Hour,

		ConversationMaxAge: 24 * time.Hour,
		CleanupInterval:    1 * time.Hour,

		LogLevel:          "info",
		LogTruncateLength: 500,
	}

	if port := os.Getenv("PORT"); port != "" {
		config.Port = port
	}

	if provider := os.Getenv("LLM_PROVIDER"); provider == "openai" || provider == "ollama" {
		config.LLMProvider = provider
	}

	if apiKey := os.Getenv("OPENAI_API_KEY"); apiKey != "" {
		config.OpenAIAPIKey = apiKey
	}
	if model := os.Getenv("OPENAI_MODEL"); model != "" {
		config.OpenAIModel = model
	}
	if model := os.Getenv("OPENAI_EMBEDDING_MODEL"); model != "" {
		config.OpenAIEmbeddingModel = model
	}

	if endpoint := os.Getenv("OLLAMA_ENDPOINT"); endpoint != "" {
		config.OllamaEndpoint = endpoint
	}
	if model := os.Getenv("OLLAMA_MODEL"); model != "" {
		config.OllamaModel = model
	}

	if rounds := os.Getenv("MAX_TOOL_ROUNDS"); rounds != "" {
		if val, err := strconv.Atoi(rounds); err == nil && val > 0 {
			config.MaxToolRounds = val
		}
	}
	if timeout := os.Getenv("REQUEST_TIMEOUT"); timeout != "" {
		if val, err := strconv.Atoi(timeout); err == nil && val > 0 {
			config.RequestTimeout = time.Duration(val) * time.Second
		}
	}
	if temp := os.Getenv("JUDGE_TEMPERATURE"); temp != "" {
		if val, err := strconv.ParseFloat(temp, 64); err == nil && val >= 0 {
			config.JudgeTemperature = val
		}
	}

	if path := os.Getenv("DATABASE_PATH"); path != "" {
		config.DatabasePath = path
	}
	if dir := os.Getenv("VECTOR_DIR"); dir != "" {
		config.VectorDir = dir
	}
	if secret := os.Getenv("JWT_SECRET"); secret != "" {
		config.JWTSecret = secret
	}
	if lifetime := os.Getenv("TOKEN_LIFETIME_HOURS"); lifetime != "" {
		if val, err := strconv.Atoi(lifetime); err == nil && val > 0 {
			config.TokenLifetime = time.Duration(val) * time.Hour
		}
	}

	if maxAge := os.Getenv("CONVERSATION_MAX_AGE_HOURS"); maxAge != "" {
		if val, err := strconv.Atoi(maxAge); err == nil && val > 0 {
			config.ConversationMaxAge = time.Duration(val) * time.Hour
		}
	}
	if interval := os.Getenv("CLEANUP_INTERVAL_MINUTES"); interval != "" {
		if val, err := strconv.Atoi(interval); err == nil && val > 0 {
			config.CleanupInterval = time.Duration(val) * time.Minute
		}
	}

	if logLevel := os.Getenv("LOG_LEVEL"); logLevel != "" {
		config.LogLevel = logLevel
	}
	if truncateLen := os.Getenv("LOG_TRUNCATE_LENGTH"); truncateLen != "" {
		if val, err := strconv.Atoi(truncateLen); err == nil && val > 0 {
			config.LogTruncateLength = val
		}
	}

	// The OpenAI provider cannot run without a key; fall back to the local
	// Ollama endpoint instead of failing startup.
	if config.LLMProvider == "openai" && config.OpenAIAPIKey == "" {
		config.LLMProvider = "ollama"
	}

	return config
}

// InitializeLogger configures and returns a structured logger based on the
// provided configuration. JSON formatting with RFC3339 timestamps keeps the
// output friendly to log aggregation systems.
func InitializeLogger(config *Config) *logrus.Logger {
	logger := logrus.New()

	logger.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat: time.RFC3339,
	})

	switch strings.ToLower(config.LogLevel) {
	case "debug":
		logger.SetLevel(logrus.DebugLevel)
	case "info":
		logger.SetLevel(logrus.InfoLevel)
	case "warn", "warning":
		logger.SetLevel(logrus.WarnLevel)
	case "error":
		logger.SetLevel(logrus.ErrorLevel)
	default:
		logger.SetLevel(logrus.InfoLevel)
	}

	logger.SetOutput(os.Stdout)

	logger.WithFields(logrus.Fields{
		"llmProvider":        config.LLMProvider,
		"openaiModel":        config.OpenAIModel,
		"ollamaEndpoint":     config.OllamaEndpoint,
		"ollamaModel":        config.OllamaModel,
		"maxToolRounds":      config.MaxToolRounds,
		"requestTimeout":     config.RequestTimeout,
		"databasePath":       config.DatabasePath,
		"vectorDir":          config.VectorDir,
		"conversationMaxAge": config.ConversationMaxAge,
		"cleanupInterval":    config.CleanupInterval,
		"logTruncateLength":  config.LogTruncateLength,
	}).Info("Configuration loaded")

	return logger
}
