package embedding

import (
	"context"
	"fmt"

	"github.com/kalambet/keydocs/internal/ollama"
)

// OllamaEmbedder is the subset of ollama.Client used for embeddings.
type OllamaEmbedder interface {
	Embed(ctx context.Context, model string, text string) ([]float32, error)
}

var _ OllamaEmbedder = (*ollama.Client)(nil)

// OllamaProvider embeds text with a model served by a local Ollama instance.
type OllamaProvider struct {
	client OllamaEmbedder
	model  string
	dim    int
}

// NewOllamaProvider creates a provider for model. dim is the dimension the
// model is expected to produce; vectors of any other length are rejected.
func NewOllamaProvider(client OllamaEmbedder, model string, dim int) *OllamaProvider {
	return &OllamaProvider{client: client, model: model, dim: dim}
}

func (p *OllamaProvider) Dimension() int { return p.dim }
func (p *OllamaProvider) Model() string  { return p.model }

func (p *OllamaProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	vec, err := p.client.Embed(ctx, p.model, text)
	if err != nil {
		return nil, fmt.Errorf("embedding text: %w", err)
	}
	if p.dim > 0 && len(vec) != p.dim {
		return nil, fmt.Errorf("embedding model %s returned %d dimensions, want %d", p.model, len(vec), p.dim)
	}
	return vec, nil
}
