package memory

import (
	"context"

	"github.com/tabq-dev/tabq/internal/ai"
)

// ModelEmbedder adapts the ai client to the Embedder interface by pinning an
// embedding model.
type ModelEmbedder struct {
	Client *ai.Client
	Model  string
}

func (m ModelEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return m.Client.Embed(ctx, m.Model, texts)
}
