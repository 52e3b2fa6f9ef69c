package llm

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/coolbeans/regula/pkg/ratelimit"
)

// Client pairs a Provider with the shared rate limiter, giving every
// pipeline stage the same throttled call surface the original
// implementation's call_mistral_json_model/call_mistral_with_messages
// helpers provided.
type Client struct {
	provider    Provider
	limiter     *ratelimit.Limiter
	model       string
	temperature float64
}

// NewClient wraps a Provider with the process-wide rate limiter.
func NewClient(provider Provider, limiter *ratelimit.Limiter, model string, temperature float64) *Client {
	return &Client{provider: provider, limiter: limiter, model: model, temperature: temperature}
}

// CallJSON sends a system/user message pair with JSON-mode enabled,
// unmarshals the response into dest, and returns whether a response was
// obtained at all. component identifies the caller for rate-limiter
// bookkeeping and logging, mirroring call_mistral_json_model's
// component_name parameter.
func (c *Client) CallJSON(ctx context.Context, component, systemPrompt string, userPayload any, dest any) (bool, error) {
	userMessage, err := json.Marshal(userPayload)
	if err != nil {
		return false, fmt.Errorf("llm: marshaling user payload: %w", err)
	}

	result, err := c.limiter.ExecuteWithRetry(ctx, component, func(ctx context.Context) (any, error) {
		return c.provider.Chat(ctx, ChatRequest{
			Model:       c.model,
			Temperature: c.temperature,
			JSONMode:    true,
			Messages: []Message{
				{Role: "system", Content: systemPrompt},
				{Role: "user", Content: string(userMessage)},
			},
		})
	})
	if err != nil {
		return false, fmt.Errorf("llm: call for component %q: %w", component, err)
	}

	resp, ok := result.(*ChatResponse)
	if !ok || resp == nil {
		return false, fmt.Errorf("llm: component %q returned no response", component)
	}

	if err := json.Unmarshal([]byte(resp.Content), dest); err != nil {
		return false, fmt.Errorf("llm: component %q returned invalid JSON: %w", component, err)
	}
	return true, nil
}

// CallMessages sends an arbitrary message sequence through the rate
// limiter without assuming a JSON response, for components (the
// OperationApplier's free-text rewrite fallback) that need the raw
// completion text. Mirrors call_mistral_with_messages.
func (c *Client) CallMessages(ctx context.Context, component string, messages []Message, jsonMode bool) (*ChatResponse, error) {
	result, err := c.limiter.ExecuteWithRetry(ctx, component, func(ctx context.Context) (any, error) {
		return c.provider.Chat(ctx, ChatRequest{
			Model:       c.model,
			Temperature: c.temperature,
			JSONMode:    jsonMode,
			Messages:    messages,
		})
	})
	if err != nil {
		return nil, fmt.Errorf("llm: call for component %q: %w", component, err)
	}
	resp, ok := result.(*ChatResponse)
	if !ok || resp == nil {
		return nil, fmt.Errorf("llm: component %q returned no response", component)
	}
	return resp, nil
}
