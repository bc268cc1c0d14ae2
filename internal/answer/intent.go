package answer

import (
	"context"
	"fmt"
	"log"
	"regexp"
	"strings"

	"github.com/clonar-ai/answer-engine/config"
)

// Classification is the outcome of intent detection. Layer names which
// strategy decided, for observability and tests.
type Classification struct {
	Vertical   Vertical `json:"vertical"`
	Layer      string   `json:"layer"`
	Confidence float64  `json:"confidence"`
}

// classifierStrategy attempts one layer of classification. ok=false means the
// layer is not confident and the cascade continues.
type classifierStrategy interface {
	Name() string
	Attempt(ctx context.Context, query, partialAnswer string) (Classification, bool, error)
}

// Classifier cascades through keyword tables, LLM adjudication and an
// embedding fallback, short-circuiting on the first confident match. It never
// returns an error; ambiguous input degrades to "general".
type Classifier struct {
	strategies []classifierStrategy
	logger     *log.Logger
}

// NewClassifier wires the standard three-layer cascade.
func NewClassifier(cfg *config.Config, llm LLMProvider, embedder *Embedder) *Classifier {
	logger := log.New(log.Writer(), "[INTENT] ", log.LstdFlags)
	return &Classifier{
		strategies: []classifierStrategy{
			&keywordStrategy{},
			&llmStrategy{llm: llm, model: RouteModel(cfg.LLM.Routing, "classify")},
			&embeddingStrategy{embedder: embedder, floor: 0.55},
		},
		logger: logger,
	}
}

// Classify resolves the vertical for a query. partialAnswer, when available,
// gives the adjudication layers extra context.
func (c *Classifier) Classify(ctx context.Context, query, partialAnswer string) Classification {
	for _, s := range c.strategies {
		result, ok, err := s.Attempt(ctx, query, partialAnswer)
		if err != nil {
			c.logger.Printf("layer %s failed: %v", s.Name(), err)
			continue
		}
		if ok {
			return result
		}
	}
	return Classification{Vertical: VerticalGeneral, Layer: "default", Confidence: 0}
}

// validVerticals is the closed label set; anything else maps to general.
var validVerticals = map[Vertical]bool{
	VerticalShopping:    true,
	VerticalHotels:      true,
	VerticalMovies:      true,
	VerticalFlights:     true,
	VerticalRestaurants: true,
	VerticalGeneral:     true,
}

// --- layer 1: deterministic keyword tables ---

type keywordStrategy struct{}

func (s *keywordStrategy) Name() string { return "keyword" }

var verticalKeywords = map[Vertical][]string{
	VerticalHotels: {
		"hotel", "hotels", "hostel", "resort", "motel", "accommodation",
		"place to stay", "room rate", "check-in", "bed and breakfast",
	},
	VerticalShopping: {
		"buy", "purchase", "shop", "price of", "cheap", "cheapest", "deal on",
		"discount", "shoes", "sneakers", "dress", "jacket", "handbag",
		"headphones", "laptop", "under $",
	},
	VerticalMovies: {
		"movie", "movies", "film", "trailer", "showtimes", "showtime",
		"box office", "imdb", "cast of", "director of", "cinema",
	},
	VerticalFlights: {
		"flight", "flights", "airline", "airfare", "round trip", "one way",
		"layover", "nonstop", "red-eye", "departure",
	},
	VerticalRestaurants: {
		"restaurant", "restaurants", "eat", "dinner", "lunch", "brunch",
		"cafe", "food near", "best pizza", "best sushi", "reservation",
	},
}

var brandTerms = []string{
	"nike", "adidas", "puma", "zara", "h&m", "uniqlo", "gucci", "prada",
	"rolex", "casio", "seiko", "apple", "samsung", "sony", "dyson", "lego",
}

var priceTermRe = regexp.MustCompile(`(?i)(\$\s?\d+|\d+\s?(usd|dollars|bucks)|under\s+\d+|below\s+\d+|budget)`)

var movieContextTerms = []string{
	"trailer", "showtimes", "stream", "streaming", "where to watch",
	"cinema", "film", "movie", "imdb", "cast",
}

var flightContextTerms = []string{
	"flight", "fly", "airline", "airport", "round trip", "one way", "depart",
}

// modelNumberRe matches product model strings ("eos r5", "xps 15", "rx 580")
// that would otherwise look like short movie titles.
var modelNumberRe = regexp.MustCompile(`(?i)\b[a-z]{1,4}[- ]?\d{2,4}[a-z]{0,2}\b`)

func (s *keywordStrategy) Attempt(_ context.Context, query, _ string) (Classification, bool, error) {
	q := strings.ToLower(query)

	hasBrand := false
	for _, b := range brandTerms {
		if strings.Contains(q, b) {
			hasBrand = true
			break
		}
	}
	hasPrice := priceTermRe.MatchString(q)

	// Polysemous terms are adjudicated before the general tables so that
	// e.g. "watch" does not fall through to a wrong vertical.
	if strings.Contains(q, "watch") {
		if hasBrand || hasPrice {
			return decided(VerticalShopping, s.Name()), true, nil
		}
		if containsAny(q, movieContextTerms) {
			return decided(VerticalMovies, s.Name()), true, nil
		}
	}
	if strings.Contains(q, "ticket") {
		if containsAny(q, flightContextTerms) {
			return decided(VerticalFlights, s.Name()), true, nil
		}
		if containsAny(q, movieContextTerms) {
			return decided(VerticalMovies, s.Name()), true, nil
		}
	}

	// checked most-specific first; shopping terms ("cheap", "buy") are the
	// most generic and must not shadow the other verticals
	for _, vertical := range []Vertical{VerticalHotels, VerticalFlights, VerticalMovies, VerticalRestaurants, VerticalShopping} {
		terms := verticalKeywords[vertical]
		if !containsAny(q, terms) {
			continue
		}
		// model numbers (cameras, laptops, vehicles) are not movie titles
		if vertical == VerticalMovies && modelNumberRe.MatchString(q) {
			continue
		}
		return decided(vertical, s.Name()), true, nil
	}

	if hasBrand && hasPrice {
		return decided(VerticalShopping, s.Name()), true, nil
	}
	return Classification{}, false, nil
}

func decided(v Vertical, layer string) Classification {
	return Classification{Vertical: v, Layer: layer, Confidence: 1.0}
}

func containsAny(s string, terms []string) bool {
	for _, t := range terms {
		if strings.Contains(s, t) {
			return true
		}
	}
	return false
}

// --- layer 2: LLM adjudication ---

type llmStrategy struct {
	llm   LLMProvider
	model string
}

func (s *llmStrategy) Name() string { return "llm" }

func (s *llmStrategy) Attempt(ctx context.Context, query, partialAnswer string) (Classification, bool, error) {
	if s.llm == nil || s.model == "" {
		return Classification{}, false, nil
	}
	prompt := fmt.Sprintf(`Classify the user query into exactly one label from:
shopping, hotels, movies, flights, restaurants, general

Disambiguation rules:
- "watch" with a brand or price term means shopping; with movie context (trailer, showtimes, streaming) it means movies.
- "ticket" with flight context (airline, airport, route) means flights; with cinema context it means movies.
- Product model numbers (camera, laptop, vehicle codes) are never movie titles.
- When unsure, answer general.

QUERY: %s
%s
Answer with the single label only.`, query, partialContext(partialAnswer))

	raw, err := s.llm.Generate(ctx, prompt, s.model, map[string]interface{}{
		"temperature": 0.0,
		"max_tokens":  8,
	})
	if err != nil {
		return Classification{}, false, err
	}
	label := Vertical(strings.ToLower(strings.TrimSpace(strings.Trim(raw, `"'.`))))
	if !validVerticals[label] {
		label = VerticalGeneral
	}
	if label == VerticalGeneral {
		// not a confident match; let the embedding layer try
		return Classification{}, false, nil
	}
	return Classification{Vertical: label, Layer: s.Name(), Confidence: 0.9}, true, nil
}

func partialContext(partial string) string {
	partial = strings.TrimSpace(partial)
	if partial == "" {
		return ""
	}
	if len(partial) > 400 {
		partial = partial[:400]
	}
	return "PARTIAL ANSWER SO FAR: " + partial + "\n"
}

// --- layer 3: embedding fallback ---

type embeddingStrategy struct {
	embedder *Embedder
	floor    float64
}

func (s *embeddingStrategy) Name() string { return "embedding" }

// intentExamples are fixed per-vertical anchor phrases; the query is compared
// against each set and the best mean similarity wins if above the floor.
var intentExamples = map[Vertical][]string{
	VerticalShopping:    {"buy running shoes online", "best price for a winter jacket", "cheap wireless earbuds"},
	VerticalHotels:      {"hotels in paris city centre", "cheap place to stay near the beach", "5 star resort with pool"},
	VerticalMovies:      {"new sci-fi movies this month", "when does the sequel premiere", "best thriller films to stream"},
	VerticalFlights:     {"flights from london to rome", "cheapest airfare next weekend", "nonstop flight to tokyo"},
	VerticalRestaurants: {"best ramen restaurant nearby", "romantic dinner spot downtown", "where to eat authentic tacos"},
}

func (s *embeddingStrategy) Attempt(ctx context.Context, query, _ string) (Classification, bool, error) {
	if s.embedder == nil {
		return Classification{}, false, nil
	}

	texts := []string{query}
	var order []Vertical
	for vertical, examples := range intentExamples {
		order = append(order, vertical)
		texts = append(texts, examples...)
	}
	vecs, err := s.embedder.EmbedMany(ctx, texts)
	if err != nil {
		return Classification{}, false, err
	}
	if len(vecs) != len(texts) {
		return Classification{}, false, fmt.Errorf("embedding count mismatch: %d != %d", len(vecs), len(texts))
	}

	queryVec := vecs[0]
	best := VerticalGeneral
	bestScore := 0.0
	idx := 1
	for _, vertical := range order {
		examples := intentExamples[vertical]
		var sum float64
		for range examples {
			sum += Cosine(queryVec, vecs[idx])
			idx++
		}
		mean := sum / float64(len(examples))
		if mean > bestScore {
			bestScore = mean
			best = vertical
		}
	}
	if bestScore < s.floor {
		return Classification{Vertical: VerticalGeneral, Layer: s.Name(), Confidence: bestScore}, true, nil
	}
	return Classification{Vertical: best, Layer: s.Name(), Confidence: bestScore}, true, nil
}
