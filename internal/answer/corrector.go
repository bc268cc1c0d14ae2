package answer

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
)

// Corrector prunes cards that contradict the generated answer text. It
// makes a single LLM call listing the indices to drop and fails open: any
// error or unparseable response leaves the cards untouched. With two or
// fewer candidates it does nothing at all, since a tiny set is cheaper to
// show than to second-guess.
type Corrector struct {
	llm    LLMProvider
	model  string
	logger *log.Logger
}

func NewCorrector(llm LLMProvider, model string) *Corrector {
	return &Corrector{
		llm:    llm,
		model:  model,
		logger: log.New(log.Writer(), "[CORRECT] ", log.LstdFlags),
	}
}

// Correct returns cards with contradicting entries removed. Order of the
// survivors is preserved.
func (c *Corrector) Correct(ctx context.Context, answer string, cards []Card) []Card {
	if len(cards) <= 2 {
		return cards
	}
	if c.llm == nil || c.model == "" {
		return cards
	}

	var b strings.Builder
	for i, card := range cards {
		fmt.Fprintf(&b, "[%d] %s | price: %s | rating: %.1f | %s\n",
			i, card.Name, card.PriceText, card.Rating, card.Location)
	}

	prompt := fmt.Sprintf(`The following answer was generated for a user, along with result cards.
List the indices of any cards that CONTRADICT the answer (wrong price claims,
items the answer explicitly rules out, mismatched locations). Only flag clear
contradictions. If none, return an empty array.

ANSWER:
%s

CARDS:
%s
Respond with a JSON array of integers. No other text.`, truncateForPrompt(answer, 2000), b.String())

	raw, err := c.llm.Generate(ctx, prompt, c.model, map[string]interface{}{
		"temperature": 0.0,
		"max_tokens":  100,
	})
	if err != nil {
		c.logger.Printf("correction skipped: %v", err)
		return cards
	}

	start := strings.Index(raw, "[")
	end := strings.LastIndex(raw, "]")
	if start < 0 || end <= start {
		return cards
	}
	var drop []int
	if err := json.Unmarshal([]byte(raw[start:end+1]), &drop); err != nil {
		c.logger.Printf("correction skipped, bad response: %v", err)
		return cards
	}
	if len(drop) == 0 {
		return cards
	}

	dropped := make(map[int]bool, len(drop))
	for _, i := range drop {
		if i >= 0 && i < len(cards) {
			dropped[i] = true
		}
	}
	// Never drop everything; a fully contradicted set means the model is
	// confused, not the cards.
	if len(dropped) >= len(cards) {
		return cards
	}

	out := make([]Card, 0, len(cards)-len(dropped))
	for i, card := range cards {
		if !dropped[i] {
			out = append(out, card)
		}
	}
	c.logger.Printf("dropped %d of %d cards as contradicting", len(dropped), len(cards))
	return out
}
