// Package llm provides the chat-completion abstraction shared by every
// pipeline stage that falls back to a language model (identify, decompose,
// apply, validate, reflocate, reflink, refresolve; spec.md §5). Two
// OpenAI-compatible backends are wired: Mistral (the original reference
// implementation's provider) and Gemini's OpenAI-compatible endpoint,
// selected by config.LLMConfig.Provider.
package llm

import (
	"context"
	"fmt"
)

// Provider is the interface every backend implements. It intentionally
// mirrors a plain chat-completion call; none of the pipeline's stages need
// embeddings or vision.
type Provider interface {
	// Chat sends a single chat-completion request and returns its content.
	Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)
}

// Message is one turn of a chat conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is a chat completion request.
type ChatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
	// JSONMode requests a JSON-object response when the provider supports it.
	JSONMode bool
}

// ChatResponse is the response from a chat completion.
type ChatResponse struct {
	Content      string `json:"content"`
	Model        string `json:"model"`
	FinishReason string `json:"finish_reason"`
}

// Config configures a Provider backend.
type Config struct {
	Provider string // "mistral" or "gemini"
	Model    string
	BaseURL  string
	APIKey   string
}

// New creates a Provider from configuration. Both backends speak the
// OpenAI chat-completions wire format; only the base URL and path prefix
// differ.
func New(cfg Config) (Provider, error) {
	switch cfg.Provider {
	case "mistral":
		return newMistral(cfg), nil
	case "gemini":
		return newGemini(cfg), nil
	case "":
		return nil, fmt.Errorf("llm: provider not specified")
	default:
		return nil, fmt.Errorf("llm: unknown provider %q", cfg.Provider)
	}
}
