package gateway

import (
	"context"
	"fmt"
	"log/slog"
)

// Provider names.
const (
	ProviderOpenRouter = "openrouter"
	ProviderGemini     = "gemini"
)

// Options selects and configures a provider.
type Options struct {
	Provider          string
	OpenRouterAPIKey  string
	OpenRouterBaseURL string
	GeminiAPIKey      string
	Model             string
}

// New builds the gateway for opts.Provider.
func New(ctx context.Context, opts Options, logger *slog.Logger) (Gateway, error) {
	switch opts.Provider {
	case ProviderOpenRouter, "":
		baseURL := opts.OpenRouterBaseURL
		if baseURL == "" {
			baseURL = DefaultOpenRouterBaseURL
		}
		return NewOpenAI(opts.OpenRouterAPIKey, baseURL, opts.Model, logger), nil
	case ProviderGemini:
		g, err := NewGemini(ctx, opts.GeminiAPIKey, opts.Model, logger)
		if err != nil {
			return nil, err
		}
		return g, nil
	default:
		return nil, fmt.Errorf("unknown model provider %q", opts.Provider)
	}
}
