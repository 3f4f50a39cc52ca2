// Package llm talks to the optional language-model service: it mines
// document text the pattern extractors did not cover and validates what
// they found. Every response is normalized into model.Assignment before it
// leaves the package.
package llm

import (
	"context"
	"time"
)

// Provider is a single chat-completion backend
type Provider interface {
	// Name returns the provider name
	Name() string

	// Complete sends one system instruction plus user content pair
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)

	// IsAvailable checks if the provider is properly configured and accessible
	IsAvailable(ctx context.Context) bool
}

// CompletionRequest is the outbound call
type CompletionRequest struct {
	System string
	User   string

	// Model overrides the configured model when set
	Model string

	// MaxTokens limits the response length
	MaxTokens int

	// JSON asks the backend for a bare JSON object where it supports that
	JSON bool
}

// CompletionResponse is the raw completion text
type CompletionResponse struct {
	Content    string
	Model      string
	TokensUsed int
}

// Config holds LLM provider configuration
type Config struct {
	// Provider name: "openai", "anthropic", "ollama", ""
	Provider string

	// Model name (provider-specific)
	Model string

	// APIKey for OpenAI/Anthropic
	APIKey string

	// BaseURL for custom endpoints (e.g., Ollama)
	BaseURL string

	// Timeout for a single request attempt
	Timeout int // seconds

	// MaxTokens for response generation
	MaxTokens int

	// RequestsPerMinute bounds outbound calls; 0 disables the limiter
	RequestsPerMinute int

	// Retry and breaker policy
	RetryAttempts   int
	RetryBackoff    time.Duration
	RetryMaxBackoff time.Duration
	BreakerEnabled  bool

	// Proxy settings
	HTTPProxy  string
	HTTPSProxy string
	NoProxy    string
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		Provider:          "", // Disabled by default
		Timeout:           120,
		MaxTokens:         4000,
		RequestsPerMinute: 30,
		RetryAttempts:     3,
		RetryBackoff:      time.Second,
		RetryMaxBackoff:   8 * time.Second,
		BreakerEnabled:    true,
	}
}

// RequestTimeout returns the per-attempt timeout
func (c Config) RequestTimeout() time.Duration {
	if c.Timeout <= 0 {
		return 120 * time.Second
	}
	return time.Duration(c.Timeout) * time.Second
}

func (c Config) maxTokens(req CompletionRequest) int {
	if req.MaxTokens > 0 {
		return req.MaxTokens
	}
	if c.MaxTokens > 0 {
		return c.MaxTokens
	}
	return 4000
}
