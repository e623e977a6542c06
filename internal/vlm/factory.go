package vlm

import (
	"context"
	"fmt"
	"io"

	"nutrilabel/internal/config"
	"nutrilabel/internal/nutrition"
)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// NewProvider builds the provider selected by cfg.Provider. The closer
// releases provider resources and is never nil on success.
func NewProvider(ctx context.Context, cfg config.VLMConfig) (Provider, io.Closer, error) {
	switch cfg.Provider {
	case "", "openai":
		p, err := NewOpenAI(OpenAIConfig{
			APIKey:         cfg.APIKey,
			Model:          cfg.Model,
			BaseURL:        cfg.BaseURL,
			Temperature:    cfg.Temperature,
			Timeout:        cfg.Timeout,
			ResponseFormat: cfg.ResponseFormat,
		})
		if err != nil {
			return nil, nil, err
		}
		return p, nopCloser{}, nil
	case "gemini":
		p, err := NewGemini(ctx, GeminiConfig{
			ProjectID:       cfg.ProjectID,
			Location:        cfg.Location,
			CredentialsFile: cfg.CredentialsFile,
			Model:           cfg.Model,
			Temperature:     cfg.Temperature,
			Schema:          nutrition.ResponseSchema(),
		})
		if err != nil {
			return nil, nil, err
		}
		return p, p, nil
	default:
		return nil, nil, fmt.Errorf("vlm: unknown provider %q", cfg.Provider)
	}
}

// NewClientFromConfig builds the configured provider and wraps it with the
// configured retry policy.
func NewClientFromConfig(ctx context.Context, cfg config.VLMConfig) (*Client, io.Closer, error) {
	provider, closer, err := NewProvider(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	client, err := NewClient(provider, Policy{MaxAttempts: cfg.MaxAttempts, BaseDelay: cfg.BaseDelay})
	if err != nil {
		_ = closer.Close()
		return nil, nil, err
	}
	return client, closer, nil
}
