package answer

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"

	"github.com/blevesearch/bleve"
	"github.com/clonar-ai/answer-engine/config"
)

// Reranker scores merged chunks against the query by fusing three signals:
// embedding cosine similarity, lexical BM25 (mem-only bleve index), and a
// single batched LLM relevance call. Weights come from configuration; items
// scoring under the similarity floor are dropped. Reranking is deliberately
// skipped for short, non-comparative queries with small candidate sets — a
// measured latency/quality tradeoff.
type Reranker struct {
	cfg      config.RerankConfig
	llm      LLMProvider
	model    string
	embedder *Embedder
	logger   *log.Logger
}

func NewReranker(cfg config.RerankConfig, llm LLMProvider, model string, embedder *Embedder) *Reranker {
	return &Reranker{
		cfg:      cfg,
		llm:      llm,
		model:    model,
		embedder: embedder,
		logger:   log.New(log.Writer(), "[RERANK] ", log.LstdFlags),
	}
}

var comparativeTerms = []string{"best", "cheapest", "vs", "versus", "compare", "top", "better"}

// ShouldSkip reports whether reranking is worth the extra calls. Short
// queries without comparative language over a handful of candidates keep
// retrieval order.
func (r *Reranker) ShouldSkip(query string, candidates int) bool {
	maxWords := r.cfg.SkipMaxQueryWords
	if maxWords <= 0 {
		maxWords = 3
	}
	maxCandidates := r.cfg.SkipMaxCandidates
	if maxCandidates <= 0 {
		maxCandidates = 5
	}
	if candidates > maxCandidates {
		return false
	}
	if len(strings.Fields(query)) > maxWords {
		return false
	}
	return !containsAny(strings.ToLower(query), comparativeTerms)
}

// RerankChunks orders chunks by fused relevance, dropping anything below the
// similarity floor. Signal failures degrade to the remaining signals; with
// no signal at all the input order is kept.
func (r *Reranker) RerankChunks(ctx context.Context, query string, chunks []Chunk) []Scored[Chunk] {
	if len(chunks) == 0 {
		return nil
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = chunkText(c)
	}

	var (
		wg       sync.WaitGroup
		cosines  []float64
		lexical  []float64
		llmScore []float64
	)
	wg.Add(3)
	go func() {
		defer wg.Done()
		cosines = r.cosineScores(ctx, query, texts)
	}()
	go func() {
		defer wg.Done()
		lexical = r.lexicalScores(query, texts)
	}()
	go func() {
		defer wg.Done()
		llmScore = r.llmScores(ctx, query, texts)
	}()
	wg.Wait()

	wCos, wLex, wLLM := r.weights(cosines != nil, lexical != nil, llmScore != nil)

	scored := make([]Scored[Chunk], 0, len(chunks))
	for i, c := range chunks {
		var s float64
		if cosines != nil {
			s += wCos * cosines[i]
		}
		if lexical != nil {
			s += wLex * lexical[i]
		}
		if llmScore != nil {
			s += wLLM * llmScore[i]
		}
		if wCos+wLex+wLLM == 0 {
			s = 1 // no signal available; keep everything in input order
		}
		scored = append(scored, Scored[Chunk]{Item: c, Score: s})
	}

	floor := r.cfg.SimilarityFloor
	if floor <= 0 {
		floor = 0.3
	}
	kept := scored[:0]
	for _, s := range scored {
		if s.Score >= floor || wCos+wLex+wLLM == 0 {
			kept = append(kept, s)
		}
	}
	sort.SliceStable(kept, func(i, j int) bool { return kept[i].Score > kept[j].Score })
	return kept
}

// weights normalizes the configured weights over the signals that actually
// produced scores.
func (r *Reranker) weights(hasCos, hasLex, hasLLM bool) (float64, float64, float64) {
	wCos, wLex, wLLM := r.cfg.CosineWeight, r.cfg.LexicalWeight, r.cfg.LLMWeight
	if wCos+wLex+wLLM == 0 {
		wCos, wLex, wLLM = 0.55, 0.2, 0.25
	}
	if !hasCos {
		wCos = 0
	}
	if !hasLex {
		wLex = 0
	}
	if !hasLLM {
		wLLM = 0
	}
	total := wCos + wLex + wLLM
	if total == 0 {
		return 0, 0, 0
	}
	return wCos / total, wLex / total, wLLM / total
}

func (r *Reranker) cosineScores(ctx context.Context, query string, texts []string) []float64 {
	if r.embedder == nil {
		return nil
	}
	vecs, err := r.embedder.EmbedMany(ctx, append([]string{query}, texts...))
	if err != nil || len(vecs) != len(texts)+1 {
		if err != nil {
			r.logger.Printf("cosine signal unavailable: %v", err)
		}
		return nil
	}
	out := make([]float64, len(texts))
	for i := range texts {
		out[i] = Cosine(vecs[0], vecs[i+1])
	}
	return out
}

// lexicalScores builds a throwaway mem-only index over the candidate texts
// and normalizes BM25 hit scores into [0,1].
func (r *Reranker) lexicalScores(query string, texts []string) []float64 {
	index, err := bleve.NewMemOnly(bleve.NewIndexMapping())
	if err != nil {
		r.logger.Printf("lexical signal unavailable: %v", err)
		return nil
	}
	defer index.Close()

	for i, t := range texts {
		_ = index.Index(fmt.Sprintf("%d", i), map[string]string{"text": t})
	}

	q := bleve.NewQueryStringQuery(query)
	req := bleve.NewSearchRequestOptions(q, len(texts), 0, false)
	res, err := index.Search(req)
	if err != nil {
		r.logger.Printf("lexical search failed: %v", err)
		return nil
	}

	out := make([]float64, len(texts))
	var max float64
	for _, hit := range res.Hits {
		if hit.Score > max {
			max = hit.Score
		}
	}
	if max == 0 {
		return out
	}
	for _, hit := range res.Hits {
		var idx int
		if _, err := fmt.Sscanf(hit.ID, "%d", &idx); err != nil || idx < 0 || idx >= len(texts) {
			continue
		}
		out[idx] = hit.Score / max
	}
	return out
}

// llmScores makes one batched relevance call. The batch is capped; overflow
// items score zero from this signal rather than triggering a second call.
func (r *Reranker) llmScores(ctx context.Context, query string, texts []string) []float64 {
	if r.llm == nil || r.model == "" {
		return nil
	}
	limit := r.cfg.LLMBatchLimit
	if limit <= 0 {
		limit = 15
	}
	batch := texts
	if len(batch) > limit {
		batch = batch[:limit]
	}

	var b strings.Builder
	for i, t := range batch {
		fmt.Fprintf(&b, "[%d] %s\n", i, truncateForPrompt(t, 300))
	}
	prompt := fmt.Sprintf(`Score each item's relevance to the query on a 0 to 1 scale.

QUERY: %s

ITEMS:
%s
Respond with a JSON array of numbers, one per item, in order. No other text.`, query, b.String())

	raw, err := r.llm.Generate(ctx, prompt, r.model, map[string]interface{}{
		"temperature": 0.0,
		"max_tokens":  200,
	})
	if err != nil {
		r.logger.Printf("llm signal unavailable: %v", err)
		return nil
	}

	start := strings.Index(raw, "[")
	end := strings.LastIndex(raw, "]")
	if start < 0 || end <= start {
		return nil
	}
	var scores []float64
	if err := json.Unmarshal([]byte(raw[start:end+1]), &scores); err != nil {
		return nil
	}

	out := make([]float64, len(texts))
	for i := range out {
		if i < len(scores) {
			s := scores[i]
			if s < 0 {
				s = 0
			}
			if s > 1 {
				s = 1
			}
			out[i] = s
		}
	}
	return out
}

func chunkText(c Chunk) string {
	if c.Title != "" && c.Content != "" {
		return c.Title + ". " + c.Content
	}
	if c.Content != "" {
		return c.Content
	}
	return c.Title
}
