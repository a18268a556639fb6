package llm

import (
	"fmt"

	"caaasearch/internal/config"
)

// New builds a Client for the configured provider.
func New(cfg config.LLMConfig) (Client, error) {
	switch cfg.Provider {
	case "anthropic":
		return NewAnthropicClientWithConfig(AnthropicConfig{
			APIKey:      cfg.APIKey,
			BaseURL:     cfg.BaseURL,
			Model:       cfg.Model,
			Timeout:     cfg.GetTimeout(),
			MinInterval: cfg.GetMinRequestInterval(),
			MaxRetries:  cfg.MaxRetries,
		}), nil

	case "openai", "openrouter":
		baseURL := cfg.BaseURL
		if baseURL == "" && cfg.Provider == "openrouter" {
			baseURL = "https://openrouter.ai/api/v1"
		}
		return NewOpenAIClientWithConfig(OpenAIConfig{
			APIKey:      cfg.APIKey,
			BaseURL:     baseURL,
			Model:       cfg.Model,
			Timeout:     cfg.GetTimeout(),
			MinInterval: cfg.GetMinRequestInterval(),
			MaxRetries:  cfg.MaxRetries,
		}), nil

	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", cfg.Provider)
	}
}
