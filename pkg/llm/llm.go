// Package llm abstracts the generative backends that draft documents and the
// embedding models that feed the memory index.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Provider names a generative backend.
type Provider string

const (
	ProviderOpenAI Provider = "openai"
	ProviderGemini Provider = "gemini"
)

// ErrAPIKeyNotSet is returned when a provider is configured without credentials.
var ErrAPIKeyNotSet = errors.New("llm: API key not set")

// Prompt is one structured-output request. Backends must answer with a
// single JSON object.
type Prompt struct {
	System      string
	User        string
	Temperature float64
	MaxTokens   int
}

// Backend produces raw model output for a prompt.
//
// Errors wrapped with core.NoRetry are permanent (bad credentials, unknown
// model, rejected request); any other error may succeed when retried.
type Backend interface {
	Generate(ctx context.Context, p Prompt) (string, error)
}

// BackendFunc adapts a function to Backend.
type BackendFunc func(ctx context.Context, p Prompt) (string, error)

// Generate implements Backend.
func (f BackendFunc) Generate(ctx context.Context, p Prompt) (string, error) {
	return f(ctx, p)
}

// Embedder turns texts into vectors, one per input, in input order.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
}

// Config selects and configures a backend.
type Config struct {
	Provider Provider
	APIKey   string
	Model    string
	BaseURL  string // OpenAI-compatible endpoint override
	Timeout  time.Duration
}

// New creates the backend named by cfg.Provider.
func New(ctx context.Context, cfg Config) (Backend, error) {
	switch cfg.Provider {
	case ProviderOpenAI, "":
		return NewOpenAI(cfg)
	case ProviderGemini:
		return NewGemini(ctx, cfg)
	default:
		return nil, fmt.Errorf("llm: unknown provider %q", cfg.Provider)
	}
}

// CleanJSON strips markdown code fences that models put around JSON output.
func CleanJSON(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	text = strings.TrimPrefix(text, "```")
	// Drop a language tag on the opening fence.
	if idx := strings.Index(text, "\n"); idx >= 0 {
		first := text[:idx]
		if len(first) < 20 && !strings.ContainsAny(first, " {[") {
			text = text[idx+1:]
		}
	}
	if idx := strings.LastIndex(text, "```"); idx >= 0 {
		text = text[:idx]
	}
	return strings.TrimSpace(text)
}
