package ollama

import (
	"context"
	"fmt"
	"io"
)

// EnsureReady checks that Ollama is running and the embedding model is
// available, pulling it with progress written to w when missing.
func EnsureReady(ctx context.Context, c *Client, embedModel string, w io.Writer) error {
	if !c.IsRunning(ctx) {
		return fmt.Errorf("Ollama is not running. Start it with: ollama serve")
	}

	if c.HasModel(ctx, embedModel) {
		fmt.Fprintf(w, "model %s: ready\n", embedModel)
		return nil
	}

	fmt.Fprintf(w, "model %s: pulling...\n", embedModel)
	err := c.PullModel(ctx, embedModel, func(p PullProgress) {
		if p.Total > 0 {
			pct := float64(p.Completed) / float64(p.Total) * 100
			fmt.Fprintf(w, "  %s %.0f%%\n", p.Status, pct)
		} else {
			fmt.Fprintf(w, "  %s\n", p.Status)
		}
	})
	if err != nil {
		return fmt.Errorf("pulling model %s: %w", embedModel, err)
	}
	fmt.Fprintf(w, "model %s: ready\n", embedModel)
	return nil
}
