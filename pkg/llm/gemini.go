package llm

import "context"

// geminiProvider speaks Gemini's OpenAI-compatible endpoint, avoiding a
// separate SDK dependency for what is, for this pipeline's purposes, a
// single JSON-mode chat call.
type geminiProvider struct {
	base openAICompatClient
}

func newGemini(cfg Config) Provider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://generativelanguage.googleapis.com/v1beta/openai"
	}
	if cfg.Model == "" {
		cfg.Model = "gemini-2.5-flash"
	}
	return &geminiProvider{base: newOpenAICompatClient(cfg, "")}
}

func (p *geminiProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	return p.base.chat(ctx, req)
}
