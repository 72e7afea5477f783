package factory

import (
	"fmt"
	"time"

	"ai-tutor-be/pkg/llm"
	"ai-tutor-be/pkg/llm/ollama"
	"ai-tutor-be/pkg/llm/openai"
)

type ProviderConfig struct {
	Provider      string // "openai" | "ollama"
	Model         string
	VisionModel   string
	OpenAIAPIKey  string
	OpenAIBaseURL string
	OllamaBaseURL string
	Timeout       time.Duration
}

func NewLLMProvider(cfg ProviderConfig) (llm.LLMProvider, error) {
	switch cfg.Provider {
	case "openai":
		if cfg.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("openai provider requires an api key")
		}
		return openai.NewOpenAIProvider(cfg.OpenAIBaseURL, cfg.OpenAIAPIKey, cfg.Model, cfg.VisionModel, cfg.Timeout), nil
	case "ollama":
		return ollama.NewOllamaProvider(cfg.OllamaBaseURL, cfg.Model, cfg.VisionModel, cfg.Timeout), nil
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", cfg.Provider)
	}
}
