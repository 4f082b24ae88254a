// Package gateway gives the pipeline one call surface over
// interchangeable text-generation backends, with ordered fallback
// per agent role.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var ErrNotInitialized = errors.New("gateway: provider not initialized")

// Usage reports token counts for one model call, when the backend
// exposes them.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Options is the per-call configuration agents may set.
type Options struct {
	Temperature float32
	MaxTokens   int32
}

// Provider is one text-generation backend.
type Provider interface {
	Name() string
	Generate(ctx context.Context, model, system, user string, opts Options) (string, Usage, error)
}

// ProviderConfig configures backend construction.
type ProviderConfig struct {
	Model      string
	OllamaHost string
}

// NewProvider builds a named backend. Supported: gemini, ollama.
func NewProvider(backend string, cfg ProviderConfig) (Provider, error) {
	switch strings.ToLower(strings.TrimSpace(backend)) {
	case "gemini", "":
		p := &geminiProvider{}
		if err := p.init(cfg); err != nil {
			return nil, err
		}
		return p, nil
	case "ollama":
		p := &ollamaProvider{}
		if err := p.init(cfg); err != nil {
			return nil, err
		}
		return p, nil
	default:
		return nil, fmt.Errorf("unsupported gateway backend: %s", backend)
	}
}
