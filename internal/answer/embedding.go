package answer

import (
	"context"
	"math"
)

// Embedder wraps an LLM provider's embeddings endpoint behind a fixed model.
type Embedder struct {
	provider LLMProvider
	model    string
}

// NewEmbedder creates an embedder bound to the routed embedding model.
func NewEmbedder(provider LLMProvider, model string) *Embedder {
	return &Embedder{provider: provider, model: model}
}

// Embed returns the vector for a single text.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.provider.Embed(ctx, e.model, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vecs) == 0 {
		return nil, nil
	}
	return vecs[0], nil
}

// EmbedMany returns vectors for each input text, index-aligned.
func (e *Embedder) EmbedMany(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	return e.provider.Embed(ctx, e.model, texts)
}

// Cosine returns the cosine similarity of two vectors in [-1, 1]. Mismatched
// or empty vectors score 0.
func Cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
