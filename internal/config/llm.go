package config

import "time"

// LLMConfig configures the LLM client shared by all pipeline stages.
type LLMConfig struct {
	Provider string `yaml:"provider"` // openai, anthropic, openrouter
	APIKey   string `yaml:"api_key"`
	Model    string `yaml:"model"`
	BaseURL  string `yaml:"base_url"`
	Timeout  string `yaml:"timeout"`

	// Minimum spacing between requests. The scoring loop fires one call per
	// message, so this is the main throttle.
	MinRequestInterval string `yaml:"min_request_interval"`

	// Retries on 429 responses before giving up.
	MaxRetries int `yaml:"max_retries" validate:"min=0,max=10"`
}

// GetTimeout returns the request timeout as a duration.
func (c LLMConfig) GetTimeout() time.Duration {
	d, err := time.ParseDuration(c.Timeout)
	if err != nil {
		return 120 * time.Second
	}
	return d
}

// GetMinRequestInterval returns the request spacing as a duration.
func (c LLMConfig) GetMinRequestInterval() time.Duration {
	d, err := time.ParseDuration(c.MinRequestInterval)
	if err != nil {
		return 600 * time.Millisecond
	}
	return d
}
