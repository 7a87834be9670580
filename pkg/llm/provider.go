package llm

import (
	"context"
	"fmt"
	"strings"
)

type CompletionRequest struct {
	Model       string
	System      string
	Prompt      string
	MaxTokens   int
	Temperature *float64
}

// Provider turns a single prompt into a single free-text reply.
type Provider interface {
	Name() string
	Model() string
	Complete(ctx context.Context, req CompletionRequest) (string, error)
}

type ProviderConfig struct {
	Provider string
	Model    string
	APIKey   string
	BaseURL  string
}

// NewProvider builds the provider named in cfg. An empty provider name
// yields (nil, nil) so callers can run without an LLM.
func NewProvider(cfg ProviderConfig) (Provider, error) {
	var (
		p   Provider
		err error
	)
	switch strings.ToLower(cfg.Provider) {
	case "", "none":
		return nil, nil
	case "anthropic":
		p, err = NewAnthropicProvider(cfg.APIKey, cfg.BaseURL, cfg.Model)
	case "openai":
		p, err = NewOpenAIProvider(cfg.APIKey, cfg.BaseURL, cfg.Model)
	case "gemini":
		p, err = NewGeminiProvider(cfg.APIKey, cfg.BaseURL, cfg.Model)
	case "ollama":
		p, err = NewOllamaProvider(cfg.BaseURL, cfg.Model)
	default:
		return nil, fmt.Errorf("llm: unknown provider %q", cfg.Provider)
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}
