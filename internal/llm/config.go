// Package llm provides text-generation provider clients used by the LLM scoring strategy.
package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// ProviderName identifies an LLM provider
type ProviderName string

const (
	ProviderOpenAI ProviderName = "openai"
	ProviderGemini ProviderName = "gemini"
)

var defaultModels = map[ProviderName]string{
	ProviderOpenAI: "gpt-4o-mini",
	ProviderGemini: "gemini-2.5-flash",
}

// Config selects and configures a provider
type Config struct {
	Provider ProviderName
	Model    string
	APIKey   string
	BaseURL  string // OpenAI-compatible endpoint root; empty means api.openai.com
	Timeout  time.Duration
}

// Provider is a text-generation backend asked for JSON output
type Provider interface {
	// Name returns the provider identifier, e.g. "openai"
	Name() string
	// Model returns the model the provider calls
	Model() string
	// GenerateJSON sends a system instruction and a user prompt and returns the raw JSON text
	GenerateJSON(ctx context.Context, system, prompt string) (string, error)
	// Close releases any resources held by the provider
	Close() error
}

// NewProvider creates the configured provider
func NewProvider(ctx context.Context, cfg Config) (Provider, error) {
	if cfg.Model == "" {
		cfg.Model = defaultModels[cfg.Provider]
	}
	switch cfg.Provider {
	case ProviderOpenAI, "":
		return NewOpenAIClient(cfg, nil)
	case ProviderGemini:
		return NewGeminiClient(ctx, cfg)
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
}

// StatusError is a non-2xx answer from a provider endpoint
type StatusError struct {
	Provider   string
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s status %d: %s", e.Provider, e.StatusCode, e.Message)
}

// IsTransient reports whether a provider error may succeed on retry.
// Rate limits and server errors are transient; other statuses are not.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode == http.StatusTooManyRequests || se.StatusCode >= 500
	}
	return true
}
