// Package embedding turns text into fixed-dimension vectors.
package embedding

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// Provider embeds text into vectors of a fixed dimension.
type Provider interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimension() int
	Model() string
}

// maxConcurrentEmbeds bounds EmbedBatch fan-out.
const maxConcurrentEmbeds = 4

// EmbedBatch returns embedding vectors for multiple texts concurrently,
// index-aligned with texts. Returns nil (not error) for empty input.
func EmbedBatch(ctx context.Context, p Provider, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	results := make([][]float32, len(texts))
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentEmbeds)

	for i, text := range texts {
		g.Go(func() error {
			vec, err := p.Embed(gCtx, text)
			if err != nil {
				return fmt.Errorf("embedding text %d: %w", i, err)
			}
			results[i] = vec
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
