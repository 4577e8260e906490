// Package llm wraps the language model providers used for classification
// and SQL generation.
package llm

import (
	"context"
)

// Client is a single-turn chat completion client.
// Use this interface for dependency injection to enable mocking in tests.
type Client interface {
	// GenerateResponse sends a system message and one user prompt and returns
	// the first completion.
	GenerateResponse(ctx context.Context, prompt string, systemMessage string, temperature float64) (*GenerateResponseResult, error)

	// GetModel returns the configured model name.
	GetModel() string

	// Provider names the backing service, e.g. "openai".
	Provider() string
}

// GenerateResponseResult holds the completion text and token usage.
type GenerateResponseResult struct {
	Content          string
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Config holds configuration for creating a provider client.
type Config struct {
	BaseURL   string // optional; provider default when empty
	Model     string
	APIKey    string
	MaxTokens int
}
