// Package provider selects the model backend named in configuration.
package provider

import (
	"log/slog"

	"github.com/joseph-ayodele/invoice-extractor/constants"
	"github.com/joseph-ayodele/invoice-extractor/internal/common"
	"github.com/joseph-ayodele/invoice-extractor/internal/llm"
	"github.com/joseph-ayodele/invoice-extractor/internal/llm/gemini"
	"github.com/joseph-ayodele/invoice-extractor/internal/llm/openai"
	"github.com/joseph-ayodele/invoice-extractor/internal/llm/openaichat"
)

// New builds the invoker for cfg.Backend. Credentials are checked per call, not here.
func New(cfg common.LLMConfig, logger *slog.Logger) (llm.Invoker, error) {
	switch cfg.Backend {
	case constants.BackendOpenAI, "":
		return openai.NewClient(openaiConfig(cfg), logger), nil
	case constants.BackendOpenAIChat:
		return openaichat.NewClient(openaiConfig(cfg), logger), nil
	case constants.BackendGemini:
		return gemini.NewClient(gemini.Config{
			APIKey:      cfg.GeminiAPIKey,
			BaseURL:     cfg.GeminiBaseURL,
			Model:       cfg.Model,
			Temperature: cfg.Temperature,
			Timeout:     cfg.Timeout,
		}, logger), nil
	default:
		return nil, common.ConfigurationError("unknown LLM backend " + cfg.Backend)
	}
}

func openaiConfig(cfg common.LLMConfig) openai.Config {
	return openai.Config{
		APIKey:      cfg.OpenAIAPIKey,
		BaseURL:     cfg.OpenAIBaseURL,
		Model:       cfg.Model,
		Temperature: cfg.Temperature,
		Timeout:     cfg.Timeout,
	}
}
