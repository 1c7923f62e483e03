// Package llm talks to the text-generation backend that classifies,
// extracts and links breach articles.
package llm

import "context"

// Provider is the interface for LLM providers.
type Provider interface {
	Generate(ctx context.Context, prompt string, maxTokens int) (string, error)
	IsConfigured() bool
}
