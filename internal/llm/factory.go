package llm

import (
	"fmt"
	"os"
	"strings"

	"github.com/ppiankov/coursework/internal/model"
)

// NewProvider creates a provider from configuration. An empty provider name
// returns nil, nil: the enhancement stages are disabled.
func NewProvider(config Config) (Provider, error) {
	switch strings.ToLower(config.Provider) {
	case "openai":
		return NewOpenAIProvider(config)
	case "anthropic", "claude":
		return NewAnthropicProvider(config)
	case "ollama":
		return NewOllamaProvider(config)
	case "":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown LLM provider: %s (supported: openai, anthropic, ollama)", config.Provider)
	}
}

// ConfigFromModel converts model configuration into provider configuration
func ConfigFromModel(m model.LLMConfig, h model.HTTPConfig) Config {
	return Config{
		Provider:          m.Provider,
		Model:             m.Model,
		APIKey:            m.APIKey,
		BaseURL:           m.BaseURL,
		Timeout:           m.Timeout,
		MaxTokens:         m.MaxTokens,
		RequestsPerMinute: m.RequestsPerMinute,
		RetryAttempts:     m.RetryAttempts,
		RetryBackoff:      m.RetryBackoff,
		RetryMaxBackoff:   m.RetryMaxBackoff,
		BreakerEnabled:    m.BreakerEnabled,
		HTTPProxy:         h.HTTPProxy,
		HTTPSProxy:        h.HTTPSProxy,
		NoProxy:           h.NoProxy,
	}
}

// ApplyEnv fills the credential for the configured provider from the
// standard environment variables when the config does not carry one
func ApplyEnv(config Config) (Config, error) {
	switch strings.ToLower(config.Provider) {
	case "openai":
		if config.APIKey == "" {
			config.APIKey = os.Getenv("OPENAI_API_KEY")
		}
		if config.APIKey == "" {
			return config, fmt.Errorf("OPENAI_API_KEY environment variable not set")
		}
	case "anthropic", "claude":
		if config.APIKey == "" {
			config.APIKey = os.Getenv("ANTHROPIC_API_KEY")
		}
		if config.APIKey == "" {
			return config, fmt.Errorf("ANTHROPIC_API_KEY environment variable not set")
		}
	case "ollama":
		if config.BaseURL == "" {
			config.BaseURL = os.Getenv("OLLAMA_BASE_URL")
		}
	}
	return config, nil
}
