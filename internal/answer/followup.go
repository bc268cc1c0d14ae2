package answer

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"

	"github.com/clonar-ai/answer-engine/internal/memory"
)

const (
	maxFollowUps       = 5
	preferredFollowUps = 3
)

// FollowUpRanker generates candidate follow-up questions with the light
// model, then scores and filters them locally. The output is at most five
// questions; when enough survive filtering it prefers at least three.
type FollowUpRanker struct {
	llm    LLMProvider
	model  string
	logger *log.Logger
}

func NewFollowUpRanker(llm LLMProvider, model string) *FollowUpRanker {
	return &FollowUpRanker{
		llm:    llm,
		model:  model,
		logger: log.New(log.Writer(), "[FOLLOWUP] ", log.LstdFlags),
	}
}

// Generic filler the model tends to emit; these never survive ranking.
var followUpBlocklist = []string{
	"anything else",
	"is there anything",
	"can i help",
	"let me know",
	"what else",
	"more information",
	"tell me more",
}

// Bare acknowledgements are not questions; drop them before scoring.
var acknowledgements = map[string]bool{
	"ok":        true,
	"okay":      true,
	"yes":       true,
	"no":        true,
	"sure":      true,
	"thanks":    true,
	"thank you": true,
	"yep":       true,
	"nope":      true,
	"got it":    true,
}

var interrogatives = []string{"what", "which", "how", "where", "when", "who", "can", "should", "are", "is", "do", "does"}

// verticalFollowUpTerms reward follow-ups that stay in the user's vertical.
var verticalFollowUpTerms = map[Vertical][]string{
	VerticalShopping:    {"price", "brand", "cheaper", "discount", "size", "color", "review"},
	VerticalHotels:      {"hotel", "room", "night", "amenities", "breakfast", "pool", "location"},
	VerticalMovies:      {"movie", "showtime", "cast", "director", "rating", "theater"},
	VerticalFlights:     {"flight", "airline", "layover", "baggage", "direct", "departure"},
	VerticalRestaurants: {"restaurant", "menu", "cuisine", "reservation", "dish", "vegetarian"},
}

// Rank produces the final follow-up list for a turn.
func (f *FollowUpRanker) Rank(ctx context.Context, query string, vertical Vertical, mem *memory.Memory, answer string) []string {
	candidates := f.generate(ctx, query, answer)
	if len(candidates) == 0 {
		return f.Fallback(vertical, mem)
	}

	type scoredQ struct {
		q     string
		score float64
	}
	scored := make([]scoredQ, 0, len(candidates))
	for _, c := range candidates {
		c = strings.TrimSpace(c)
		if c == "" || degenerate(c) || f.blocked(c) {
			continue
		}
		scored = append(scored, scoredQ{q: c, score: f.score(c, vertical, mem)})
	}
	sort.SliceStable(scored, func(i, j int) bool { return scored[i].score > scored[j].score })

	// Greedy diversity pass: a candidate whose substantive keywords are
	// mostly claimed by the already picked questions combined is redundant.
	picked := make([]string, 0, maxFollowUps)
	claimed := make(map[string]bool)
	for _, s := range scored {
		kw := keywords(s.q)
		if redundant(kw, claimed) {
			continue
		}
		picked = append(picked, s.q)
		for w := range kw {
			claimed[w] = true
		}
		if len(picked) == maxFollowUps {
			break
		}
	}

	// Prefer three: if diversity filtering cut below three, backfill with
	// the next best survivors regardless of overlap.
	if len(picked) < preferredFollowUps {
		for _, s := range scored {
			if len(picked) >= preferredFollowUps {
				break
			}
			if !containsString(picked, s.q) {
				picked = append(picked, s.q)
			}
		}
	}
	if len(picked) == 0 {
		return f.Fallback(vertical, mem)
	}
	return picked
}

// Fallback returns exactly three generic but on-topic follow-ups for turns
// with no usable documents or when generation fails.
func (f *FollowUpRanker) Fallback(vertical Vertical, mem *memory.Memory) []string {
	subject := "this"
	if mem != nil {
		switch {
		case mem.Brand != "" && mem.Category != "":
			subject = mem.Brand + " " + mem.Category
		case mem.Category != "":
			subject = mem.Category
		case mem.Brand != "":
			subject = mem.Brand
		}
	}
	switch vertical {
	case VerticalShopping:
		return []string{
			fmt.Sprintf("What are the top rated %s options?", subject),
			fmt.Sprintf("Are there any deals on %s right now?", subject),
			"Which brands should I compare?",
		}
	case VerticalHotels:
		return []string{
			"Which hotels have the best reviews?",
			"What is a good area to stay in?",
			"Are there options with free cancellation?",
		}
	case VerticalFlights:
		return []string{
			"Are there direct flights available?",
			"Which days are cheapest to fly?",
			"What airlines serve this route?",
		}
	case VerticalMovies:
		return []string{
			"What are the showtimes near me?",
			"How are the reviews for this movie?",
			"What else is playing this week?",
		}
	case VerticalRestaurants:
		return []string{
			"Which restaurants are highly rated nearby?",
			"Do any of these take reservations?",
			"What cuisine options are available?",
		}
	default:
		return []string{
			"Can you go deeper on any part of this?",
			"What are the main alternatives?",
			"How recent is this information?",
		}
	}
}

func (f *FollowUpRanker) generate(ctx context.Context, query, answer string) []string {
	if f.llm == nil || f.model == "" {
		return nil
	}
	prompt := fmt.Sprintf(`Given a user query and the answer they received, suggest up to 8 natural
follow-up questions the user might ask next. One question per line, no
numbering, no other text.

QUERY: %s

ANSWER:
%s`, query, truncateForPrompt(answer, 1500))

	raw, err := f.llm.Generate(ctx, prompt, f.model, map[string]interface{}{
		"temperature": 0.7,
		"max_tokens":  300,
	})
	if err != nil {
		f.logger.Printf("generation failed: %v", err)
		return nil
	}
	var out []string
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(strings.TrimLeft(line, "-*0123456789. "))
		if line != "" {
			out = append(out, line)
		}
	}
	return out
}

func (f *FollowUpRanker) blocked(q string) bool {
	return containsAny(strings.ToLower(q), followUpBlocklist)
}

// degenerate catches candidates that are not real questions: pure
// acknowledgements, one-or-two-word stubs, and lines with no substantive
// keyword at all.
func degenerate(q string) bool {
	low := strings.ToLower(strings.Trim(q, "?.,! "))
	if acknowledgements[low] {
		return true
	}
	if len(strings.Fields(q)) < 3 {
		return true
	}
	return len(keywords(q)) == 0
}

func (f *FollowUpRanker) score(q string, vertical Vertical, mem *memory.Memory) float64 {
	low := strings.ToLower(q)
	var s float64

	if terms, ok := verticalFollowUpTerms[vertical]; ok {
		for _, t := range terms {
			if strings.Contains(low, t) {
				s += 1.5
				break
			}
		}
	}
	if mem != nil {
		if mem.Brand != "" && strings.Contains(low, strings.ToLower(mem.Brand)) {
			s += 1.0
		}
		if mem.Category != "" && strings.Contains(low, strings.ToLower(mem.Category)) {
			s += 1.0
		}
		if mem.City != "" && strings.Contains(low, strings.ToLower(mem.City)) {
			s += 0.5
		}
	}
	first := strings.ToLower(strings.SplitN(strings.TrimSpace(q), " ", 2)[0])
	for _, w := range interrogatives {
		if first == w {
			s += 0.5
			break
		}
	}
	// Mid-length questions read best; penalize one-word stubs and essays.
	n := len(strings.Fields(q))
	if n >= 4 && n <= 12 {
		s += 0.5
	} else if n < 3 {
		s -= 1.0
	}
	return s
}

// keywords returns the substantive tokens of a question (over three chars,
// lowercased).
func keywords(q string) map[string]bool {
	out := make(map[string]bool)
	for _, w := range strings.Fields(strings.ToLower(q)) {
		w = strings.Trim(w, "?.,!\"'")
		if len(w) > 3 {
			out[w] = true
		}
	}
	return out
}

// redundant reports whether more than half of kw is already claimed by the
// accepted candidates' combined keyword set.
func redundant(kw map[string]bool, claimed map[string]bool) bool {
	if len(kw) == 0 {
		return true
	}
	var shared int
	for w := range kw {
		if claimed[w] {
			shared++
		}
	}
	return float64(shared)/float64(len(kw)) > 0.5
}
