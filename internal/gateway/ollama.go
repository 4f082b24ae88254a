package gateway

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/ollama/ollama/api"
)

type ollamaProvider struct {
	client *api.Client
	model  string
}

const ollamaDefault = "phi4:latest"

func (p *ollamaProvider) init(cfg ProviderConfig) error {
	c, err := api.ClientFromEnvironment()
	if err != nil {
		host := cfg.OllamaHost
		if host == "" {
			host = "http://localhost:11434"
		}
		u, uerr := url.Parse(host)
		if uerr != nil {
			return fmt.Errorf("ollama: bad host %q: %w", host, uerr)
		}
		c = api.NewClient(u, nil)
	}
	p.client = c
	if strings.TrimSpace(cfg.Model) != "" {
		p.model = cfg.Model
	} else {
		p.model = ollamaDefault
	}
	return nil
}

func (p *ollamaProvider) Name() string { return "ollama" }

func (p *ollamaProvider) Generate(ctx context.Context, model, system, user string, opts Options) (string, Usage, error) {
	if p.client == nil {
		return "", Usage{}, ErrNotInitialized
	}
	m := strings.TrimSpace(model)
	if m == "" {
		m = p.model
	}

	stream := false
	req := &api.GenerateRequest{
		Model:  m,
		Prompt: user,
		System: system,
		Stream: &stream,
	}
	if opts.Temperature > 0 {
		req.Options = map[string]any{"temperature": float64(opts.Temperature)}
	}

	var out strings.Builder
	var usage Usage
	if err := p.client.Generate(ctx, req, func(gr api.GenerateResponse) error {
		out.WriteString(gr.Response)
		usage.InputTokens += gr.PromptEvalCount
		usage.OutputTokens += gr.EvalCount
		return nil
	}); err != nil {
		return "", Usage{}, fmt.Errorf("ollama generate: %w", err)
	}
	return out.String(), usage, nil
}
