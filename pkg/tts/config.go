package tts

import (
	"log/slog"
	"time"
)

// Config holds provider configuration.
// Use functional options (WithXxx) to set these values.
type Config struct {
	// Remote providers
	APIKey  string
	BaseURL string
	ModelID string

	// Voice name. For espeak-ng this is a voice such as "en-us", for OpenAI
	// one of the built-in voices.
	VoiceID string

	// Rate is the speaking rate in words per minute (espeak-ng only).
	Rate int

	// Binary is the local engine executable (espeak-ng only).
	Binary string

	Timeout time.Duration

	// Retry configuration (remote providers)
	MaxRetries int
	RetryDelay time.Duration

	Logger *slog.Logger
}

// Option is a functional option for configuring providers.
type Option func(*Config)

// WithAPIKey sets the API key.
func WithAPIKey(key string) Option {
	return func(c *Config) {
		c.APIKey = key
	}
}

// WithBaseURL overrides the default API endpoint.
func WithBaseURL(url string) Option {
	return func(c *Config) {
		c.BaseURL = url
	}
}

// WithVoice sets the voice.
func WithVoice(voiceID string) Option {
	return func(c *Config) {
		c.VoiceID = voiceID
	}
}

// WithModel sets the model ID.
func WithModel(modelID string) Option {
	return func(c *Config) {
		c.ModelID = modelID
	}
}

// WithRate sets the speaking rate in words per minute.
func WithRate(wpm int) Option {
	return func(c *Config) {
		c.Rate = wpm
	}
}

// WithBinary overrides the local engine executable.
func WithBinary(path string) Option {
	return func(c *Config) {
		c.Binary = path
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Config) {
		c.Timeout = timeout
	}
}

// WithRetry configures retry behavior for failed requests.
func WithRetry(maxRetries int, delay time.Duration) Option {
	return func(c *Config) {
		c.MaxRetries = maxRetries
		c.RetryDelay = delay
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Config) {
		if logger != nil {
			c.Logger = logger
		}
	}
}

// DefaultConfig returns defaults shared by all providers.
func DefaultConfig() *Config {
	return &Config{
		Rate:       DefaultRate,
		Binary:     "espeak-ng",
		Timeout:    30 * time.Second,
		MaxRetries: 2,
		RetryDelay: 200 * time.Millisecond,
		Logger:     slog.Default(),
	}
}

// Apply applies functional options to the config.
func (c *Config) Apply(opts ...Option) {
	for _, opt := range opts {
		opt(c)
	}
}

// Validate checks that an API key is present.
func (c *Config) Validate() error {
	if c.APIKey == "" {
		return ErrNoAPIKey
	}
	return nil
}
