package model

import "time"

// Config is the complete runtime configuration
type Config struct {
	Parser       ParserConfig       `yaml:"parser" mapstructure:"parser"`
	LLM          LLMConfig          `yaml:"llm" mapstructure:"llm"`
	Cache        CacheConfig        `yaml:"cache" mapstructure:"cache"`
	HTTP         HTTPConfig         `yaml:"http" mapstructure:"http"`
	Concurrency  ConcurrencyConfig  `yaml:"concurrency" mapstructure:"concurrency"`
	RateLimiting RateLimitingConfig `yaml:"rate_limiting" mapstructure:"rate_limiting"`
	Server       ServerConfig       `yaml:"server" mapstructure:"server"`
	Database     DatabaseConfig     `yaml:"database" mapstructure:"database"`
	Events       EventsConfig       `yaml:"events" mapstructure:"events"`
	Logging      LoggingConfig      `yaml:"logging" mapstructure:"logging"`
}

// ParserConfig controls extraction and date resolution
type ParserConfig struct {
	DefaultYear        int    `yaml:"default_year" mapstructure:"default_year"`     // 0 = current year
	SemesterStart      string `yaml:"semester_start" mapstructure:"semester_start"` // YYYY-MM-DD, optional
	SemesterEnd        string `yaml:"semester_end" mapstructure:"semester_end"`     // YYYY-MM-DD, optional
	MinRemainderLength int    `yaml:"min_remainder_length" mapstructure:"min_remainder_length"`
	PastDateFallback   int    `yaml:"past_date_fallback_days" mapstructure:"past_date_fallback_days"`
	OverridesFile      string `yaml:"overrides_file" mapstructure:"overrides_file"`
}

// LLMConfig configures the optional language-model enhancement stages
type LLMConfig struct {
	Provider          string        `yaml:"provider" mapstructure:"provider"` // openai, anthropic, ollama, "" (disabled)
	Model             string        `yaml:"model" mapstructure:"model"`
	APIKey            string        `yaml:"-" mapstructure:"api_key"`
	BaseURL           string        `yaml:"base_url" mapstructure:"base_url"`
	Timeout           int           `yaml:"timeout" mapstructure:"timeout"` // seconds, per request
	MaxTokens         int           `yaml:"max_tokens" mapstructure:"max_tokens"`
	RequestsPerMinute int           `yaml:"requests_per_minute" mapstructure:"requests_per_minute"`
	RetryAttempts     int           `yaml:"retry_attempts" mapstructure:"retry_attempts"`
	RetryBackoff      time.Duration `yaml:"retry_backoff" mapstructure:"retry_backoff"`
	RetryMaxBackoff   time.Duration `yaml:"retry_max_backoff" mapstructure:"retry_max_backoff"`
	BreakerEnabled    bool          `yaml:"breaker_enabled" mapstructure:"breaker_enabled"`
}

// CacheConfig configures the completion cache
type CacheConfig struct {
	Enabled   bool          `yaml:"enabled" mapstructure:"enabled"`
	Dir       string        `yaml:"dir" mapstructure:"dir"`
	MemoryTTL time.Duration `yaml:"memory_ttl" mapstructure:"memory_ttl"`
	DiskTTL   time.Duration `yaml:"disk_ttl" mapstructure:"disk_ttl"`
}

// HTTPConfig configures document fetching for URL inputs
type HTTPConfig struct {
	Timeout       time.Duration `yaml:"timeout" mapstructure:"timeout"`
	UserAgent     string        `yaml:"user_agent" mapstructure:"user_agent"`
	MaxBodyBytes  int64         `yaml:"max_body_bytes" mapstructure:"max_body_bytes"`
	RespectRobots bool          `yaml:"respect_robots" mapstructure:"respect_robots"`
	HTTPProxy     string        `yaml:"http_proxy" mapstructure:"http_proxy"`
	HTTPSProxy    string        `yaml:"https_proxy" mapstructure:"https_proxy"`
	NoProxy       string        `yaml:"no_proxy" mapstructure:"no_proxy"`
}

// ConcurrencyConfig configures batch parsing
type ConcurrencyConfig struct {
	Workers int `yaml:"workers" mapstructure:"workers"`
}

// RateLimitingConfig configures per-host fetch limits
type RateLimitingConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"`
	BurstSize         int     `yaml:"burst_size" mapstructure:"burst_size"`
}

// ServerConfig configures the HTTP API
type ServerConfig struct {
	Addr         string `yaml:"addr" mapstructure:"addr"`
	MaxBodyBytes int64  `yaml:"max_body_bytes" mapstructure:"max_body_bytes"`
}

// DatabaseConfig configures parse-history persistence
type DatabaseConfig struct {
	DSN string `yaml:"dsn" mapstructure:"dsn"` // empty = history disabled
}

// EventsConfig configures progress event publishing
type EventsConfig struct {
	NATSURL string `yaml:"nats_url" mapstructure:"nats_url"` // empty = publishing disabled
	Subject string `yaml:"subject" mapstructure:"subject"`
}

// LoggingConfig configures the zap logger
type LoggingConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"` // json or console
}

// DefaultConfig returns sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Parser: ParserConfig{
			MinRemainderLength: 100,
			PastDateFallback:   7,
		},
		LLM: LLMConfig{
			Timeout:           120,
			MaxTokens:         4000,
			RequestsPerMinute: 30,
			RetryAttempts:     3,
			RetryBackoff:      time.Second,
			RetryMaxBackoff:   8 * time.Second,
			BreakerEnabled:    true,
		},
		Cache: CacheConfig{
			Enabled:   true,
			Dir:       ".coursework-cache",
			MemoryTTL: time.Hour,
			DiskTTL:   7 * 24 * time.Hour,
		},
		HTTP: HTTPConfig{
			Timeout:       30 * time.Second,
			UserAgent:     "Coursework/0.1 (+https://github.com/ppiankov/coursework)",
			MaxBodyBytes:  5_000_000,
			RespectRobots: true,
		},
		Concurrency: ConcurrencyConfig{
			Workers: 4,
		},
		RateLimiting: RateLimitingConfig{
			RequestsPerSecond: 2,
			BurstSize:         5,
		},
		Server: ServerConfig{
			Addr:         ":8080",
			MaxBodyBytes: 2_000_000,
		},
		Events: EventsConfig{
			Subject: "coursework.parse",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}
