package answer

import (
	"context"
	"testing"

	"github.com/clonar-ai/answer-engine/config"
)

func rerankConfig() config.RerankConfig {
	return config.RerankConfig{
		SimilarityFloor:   0.3,
		CosineWeight:      0.55,
		LexicalWeight:     0.2,
		LLMWeight:         0.25,
		LLMBatchLimit:     15,
		SkipMaxQueryWords: 3,
		SkipMaxCandidates: 5,
	}
}

func TestShouldSkipShortQuerySmallSet(t *testing.T) {
	r := NewReranker(rerankConfig(), nil, "", nil)

	if !r.ShouldSkip("nike shoes", 4) {
		t.Fatalf("short non-comparative query with small set should skip")
	}
	if r.ShouldSkip("nike shoes", 12) {
		t.Fatalf("large candidate set must rerank")
	}
	if r.ShouldSkip("best running shoes for flat feet", 4) {
		t.Fatalf("long query must rerank")
	}
	if r.ShouldSkip("cheapest hotels", 4) {
		t.Fatalf("comparative query must rerank")
	}
}

func TestRerankChunksLexicalOnly(t *testing.T) {
	// no embedder and no llm model: only the lexical signal contributes
	r := NewReranker(rerankConfig(), nil, "", nil)

	chunks := []Chunk{
		{ID: "off", Title: "quantum entanglement basics", Content: "physics of entangled particles"},
		{ID: "on", Title: "bangkok hotel guide", Content: "the best bangkok hotels near the river"},
	}
	got := r.RerankChunks(context.Background(), "bangkok hotels", chunks)
	if len(got) == 0 {
		t.Fatalf("expected at least the matching chunk to survive")
	}
	if got[0].Item.ID != "on" {
		t.Fatalf("matching chunk should rank first, got %s", got[0].Item.ID)
	}
	for _, s := range got {
		if s.Item.ID == "off" {
			t.Fatalf("unrelated chunk should fall below the similarity floor")
		}
	}
}

func TestRerankChunksCosineOrdering(t *testing.T) {
	// orthogonal unit vectors make similarity explicit: the query matches
	// the first chunk exactly and the second not at all
	vecs := map[string][]float32{
		"q": {1, 0},
		"a": {1, 0},
		"b": {0, 1},
	}
	llm := &fakeLLM{embed: func(input []string) ([][]float32, error) {
		out := make([][]float32, len(input))
		for i, text := range input {
			switch text {
			case "match. relevant content":
				out[i] = vecs["a"]
			case "other. unrelated content":
				out[i] = vecs["b"]
			default:
				out[i] = vecs["q"]
			}
		}
		return out, nil
	}}

	cfg := rerankConfig()
	cfg.LexicalWeight = 0
	cfg.LLMWeight = 0
	cfg.CosineWeight = 1
	r := NewReranker(cfg, nil, "", NewEmbedder(llm, "embed-model"))

	chunks := []Chunk{
		{ID: "b", Title: "other", Content: "unrelated content"},
		{ID: "a", Title: "match", Content: "relevant content"},
	}
	got := r.RerankChunks(context.Background(), "some query", chunks)
	if len(got) != 1 {
		t.Fatalf("expected only the similar chunk above the floor, got %d", len(got))
	}
	if got[0].Item.ID != "a" {
		t.Fatalf("expected chunk a first, got %s", got[0].Item.ID)
	}
	if got[0].Score < 0.99 {
		t.Fatalf("identical vectors should score ~1, got %v", got[0].Score)
	}
}

func TestRerankEmptyInput(t *testing.T) {
	r := NewReranker(rerankConfig(), nil, "", nil)
	if got := r.RerankChunks(context.Background(), "q", nil); got != nil {
		t.Fatalf("expected nil for empty input, got %v", got)
	}
}
