// Package embeddings turns text into vectors for the document index.
package embeddings

import (
	"context"

	chromem "github.com/philippgille/chromem-go"

	"github.com/lifelink/copilot/internal/fault"
)

// Embedder defines the interface for generating text embeddings.
type Embedder interface {
	// Embed generates embeddings for one or more texts.
	Embed(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the number of dimensions in the embedding vectors.
	Dimensions() int

	// Name returns the name/identifier of the embedding model.
	Name() string
}

// ToChromemFunc converts an Embedder into a chromem.EmbeddingFunc.
// chromem-go expects a function that embeds a single text at a time.
// Failures are classified as unavailable so callers can decide between
// retrying (background indexing) and degrading (interactive retrieval).
func ToChromemFunc(e Embedder) chromem.EmbeddingFunc {
	return func(ctx context.Context, text string) ([]float32, error) {
		results, err := e.Embed(ctx, []string{text})
		if err != nil {
			return nil, fault.Wrap(fault.KindUnavailable, "embedding service", err)
		}
		if len(results) == 0 {
			return nil, fault.New(fault.KindUnavailable, "embedding service returned no vector")
		}
		return results[0], nil
	}
}
