package answer

import (
	"context"
	"fmt"
	"testing"
)

func threeCards() []Card {
	return []Card{
		{Name: "Air Max 270", Price: 89.99},
		{Name: "Ultraboost", Price: 179.99},
		{Name: "Gel-Kayano", Price: 149.99},
	}
}

func TestCorrectorNoOpOnSmallSets(t *testing.T) {
	llm := &fakeLLM{generate: func(prompt, model string) (string, error) {
		t.Fatal("corrector must not call the model for two or fewer cards")
		return "", nil
	}}
	c := NewCorrector(llm, "m")

	cards := []Card{{Name: "only"}, {Name: "pair"}}
	got := c.Correct(context.Background(), "answer", cards)
	if len(got) != 2 {
		t.Fatalf("small set must pass through, got %d", len(got))
	}
}

func TestCorrectorDropsContradictingCards(t *testing.T) {
	llm := &fakeLLM{generate: func(prompt, model string) (string, error) {
		return "[1]", nil
	}}
	c := NewCorrector(llm, "m")

	got := c.Correct(context.Background(), "everything under $150", threeCards())
	if len(got) != 2 {
		t.Fatalf("expected 2 survivors, got %d", len(got))
	}
	for _, card := range got {
		if card.Name == "Ultraboost" {
			t.Fatalf("flagged card not removed")
		}
	}
}

func TestCorrectorFailOpen(t *testing.T) {
	erroring := &fakeLLM{generate: func(prompt, model string) (string, error) {
		return "", fmt.Errorf("rate limited")
	}}
	c := NewCorrector(erroring, "m")
	if got := c.Correct(context.Background(), "answer", threeCards()); len(got) != 3 {
		t.Fatalf("LLM failure must leave cards untouched, got %d", len(got))
	}

	garbled := &fakeLLM{generate: func(prompt, model string) (string, error) {
		return "I think card two looks wrong", nil
	}}
	c = NewCorrector(garbled, "m")
	if got := c.Correct(context.Background(), "answer", threeCards()); len(got) != 3 {
		t.Fatalf("unparseable response must leave cards untouched, got %d", len(got))
	}
}

func TestCorrectorNeverDropsEverything(t *testing.T) {
	llm := &fakeLLM{generate: func(prompt, model string) (string, error) {
		return "[0, 1, 2]", nil
	}}
	c := NewCorrector(llm, "m")
	if got := c.Correct(context.Background(), "answer", threeCards()); len(got) != 3 {
		t.Fatalf("flagging every card must be ignored, got %d", len(got))
	}
}
