// Package assistant answers end-user help questions about the attendance
// system through a configurable LLM backend.
package assistant

import (
	_ "embed"
	"errors"
	"fmt"

	"context"

	"github.com/markrhq/markr/internal/config"
)

//go:embed prompts/system.txt
var systemPrompt string

// ErrDisabled is returned by New when no provider is configured.
var ErrDisabled = errors.New("assistant is not configured")

// Provider answers one question in the context of the attendance system.
type Provider interface {
	Name() string
	Answer(ctx context.Context, question string) (string, error)
}

// New creates the configured provider. Returns ErrDisabled when the
// provider setting is empty so callers can leave the endpoint unmounted.
func New(ctx context.Context, cfg *config.AssistantConfig) (Provider, error) {
	switch cfg.Provider {
	case "":
		return nil, ErrDisabled
	case "gemini":
		if cfg.GeminiAPIKey == "" {
			return nil, errors.New("GEMINI_API_KEY is required for the gemini assistant")
		}
		return NewGeminiProvider(ctx, cfg.GeminiAPIKey)
	case "openai":
		if cfg.OpenAIToken == "" {
			return nil, errors.New("OPENAI_TOKEN is required for the openai assistant")
		}
		return NewOpenAIProvider(cfg.OpenAIToken), nil
	default:
		return nil, fmt.Errorf("unknown assistant provider %q", cfg.Provider)
	}
}

func buildPrompt(question string) string {
	return systemPrompt + "\n\nNow, answer the following question in the context of this system: " + question
}
