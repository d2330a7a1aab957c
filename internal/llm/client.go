package llm

import (
	"context"
	"time"
)

// Client defines the interface for LLM providers.
type Client interface {
	// Complete sends one prompt with a system instruction and returns the raw
	// text of the first completion.
	Complete(ctx context.Context, prompt, systemPrompt string) (string, error)
}

// Config holds configuration for an LLM provider and the assistant built on it.
type Config struct {
	Provider    string
	APIKey      string
	Model       string
	BaseURL     string
	Timeout     time.Duration
	CacheTTL    time.Duration
	RateLimit   int
	Temperature float64
	MaxTokens   int
}

const (
	defaultTemperature = 0.1
	defaultMaxTokens   = 512
	defaultTimeout     = 30 * time.Second
)

func (c Config) withDefaults(model string) Config {
	if c.Model == "" {
		c.Model = model
	}
	if c.Temperature == 0 {
		c.Temperature = defaultTemperature
	}
	if c.MaxTokens == 0 {
		c.MaxTokens = defaultMaxTokens
	}
	if c.Timeout <= 0 {
		c.Timeout = defaultTimeout
	}
	return c
}
