package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"

	"github.com/google/generative-ai-go/genai"
)

var (
	ErrTextRequired     = errors.New("text required for embedding")
	ErrInvalidEmbedding = errors.New("invalid embedding")
)

type Embedder struct {
	client *genai.Client
	model  string
	dim    int
}

func NewEmbedder(client *genai.Client, model string, dim int) *Embedder {
	return &Embedder{client: client, model: model, dim: dim}
}

// Embed returns the embedding vector for text. Blank input is rejected before
// any remote call. A response of the wrong length, or containing a non-finite
// value, is rejected rather than coerced.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrTextRequired
	}

	slog.DebugContext(ctx, "embedding content", "model", e.model, "length", len(text))
	em := e.client.EmbeddingModel(e.model)
	res, err := em.EmbedContent(ctx, genai.Text(text))
	if err != nil {
		slog.ErrorContext(ctx, "embedding failed", "error", err)
		return nil, err
	}
	if res.Embedding == nil {
		return nil, fmt.Errorf("%w: no embedding returned", ErrInvalidEmbedding)
	}

	if err := validateVector(res.Embedding.Values, e.dim); err != nil {
		slog.WarnContext(ctx, "rejecting embedding", "error", err, "length", len(res.Embedding.Values))
		return nil, err
	}
	return res.Embedding.Values, nil
}

func validateVector(values []float32, dim int) error {
	if len(values) != dim {
		return fmt.Errorf("%w: got %d values, want %d", ErrInvalidEmbedding, len(values), dim)
	}
	for i, v := range values {
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return fmt.Errorf("%w: non-finite value at index %d", ErrInvalidEmbedding, i)
		}
	}
	return nil
}
