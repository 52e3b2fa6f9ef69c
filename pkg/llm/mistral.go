package llm

import "context"

// defaultMistralModel matches the model pinned in config.DefaultConfig.
const defaultMistralModel = "magistral-medium-2506"

type mistralProvider struct {
	base openAICompatClient
}

func newMistral(cfg Config) Provider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.mistral.ai/v1"
	}
	if cfg.Model == "" {
		cfg.Model = defaultMistralModel
	}
	return &mistralProvider{base: newOpenAICompatClient(cfg, "")}
}

func (p *mistralProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	return p.base.chat(ctx, req)
}
