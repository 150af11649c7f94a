/*
This file handles language model construction for the configured provider.

Two providers are supported: OpenAI (the default, used for both reasoning and
evaluation) and Ollama for fully local operation. Both are driven through the
langchaingo llms.Model interface, so the engine and judge are provider
agnostic.
*/
package core

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
)

// NewChatModel builds the chat model for the configured provider.
func NewChatModel(config *Config, logger *logrus.Logger) (llms.Model, error) {
	switch config.LLMProvider {
	case "openai":
		if config.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("openai provider selected but OPENAI_API_KEY is not set")
		}
		model, err := openai.New(
			openai.WithToken(config.OpenAIAPIKey),
			openai.WithModel(config.OpenAIModel),
		)
		if err != nil {
			return nil, fmt.Errorf("initialize openai model: %w", err)
		}
		logger.WithFields(logrus.Fields{
			"provider": "openai",
			"model":    config.OpenAIModel,
		}).Info("Chat model initialized")
		return model, nil

	case "ollama":
		model, err := ollama.New(
			ollama.WithServerURL(config.OllamaEndpoint),
			ollama.WithModel(config.OllamaModel),
		)
		if err != nil {
			return nil, fmt.Errorf("initialize ollama model: %w", err)
		}
		logger.WithFields(logrus.Fields{
			"provider": "ollama",
			"endpoint": config.OllamaEndpoint,
			"model":    config.OllamaModel,
		}).Info("Chat model initialized")
		return model, nil

	default:
		return nil, fmt.Errorf("unknown LLM provider %q", config.LLMProvider)
	}
}

// truncateForLog bounds text included in log entries.
func truncateForLog(text string, limit int) string {
	if len(text) <= limit {
		return text
	}
	return text[:limit] + "..."
}
