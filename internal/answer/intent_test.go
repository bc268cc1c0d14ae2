package answer

import (
	"context"
	"testing"

	"github.com/clonar-ai/answer-engine/config"
)

func newKeywordOnlyClassifier() *Classifier {
	return NewClassifier(&config.Config{}, nil, nil)
}

func TestClassifyHotelsByKeyword(t *testing.T) {
	c := newKeywordOnlyClassifier()
	got := c.Classify(context.Background(), "hotels in bangkok", "")
	if got.Vertical != VerticalHotels {
		t.Fatalf("expected hotels, got %s", got.Vertical)
	}
	if got.Layer != "keyword" {
		t.Fatalf("expected keyword layer, got %s", got.Layer)
	}
}

func TestClassifyWatchDisambiguation(t *testing.T) {
	c := newKeywordOnlyClassifier()

	got := c.Classify(context.Background(), "casio watch under $100", "")
	if got.Vertical != VerticalShopping {
		t.Fatalf("watch with brand and price should be shopping, got %s", got.Vertical)
	}

	got = c.Classify(context.Background(), "where to watch the new trailer", "")
	if got.Vertical != VerticalMovies {
		t.Fatalf("watch with movie context should be movies, got %s", got.Vertical)
	}
}

func TestClassifyTicketDisambiguation(t *testing.T) {
	c := newKeywordOnlyClassifier()

	got := c.Classify(context.Background(), "ticket from the airport with a good airline", "")
	if got.Vertical != VerticalFlights {
		t.Fatalf("ticket with flight context should be flights, got %s", got.Vertical)
	}

	got = c.Classify(context.Background(), "ticket for the new film at the cinema", "")
	if got.Vertical != VerticalMovies {
		t.Fatalf("ticket with cinema context should be movies, got %s", got.Vertical)
	}
}

func TestClassifyModelNumberIsNotAMovie(t *testing.T) {
	c := newKeywordOnlyClassifier()
	// "film" would match the movie table, but the model number blocks it
	got := c.Classify(context.Background(), "xps 15 film simulation settings", "")
	if got.Vertical == VerticalMovies {
		t.Fatalf("model number string classified as movies")
	}
}

func TestClassifyAmbiguousFallsToGeneral(t *testing.T) {
	c := newKeywordOnlyClassifier()
	got := c.Classify(context.Background(), "what is the meaning of life", "")
	if got.Vertical != VerticalGeneral {
		t.Fatalf("expected general, got %s", got.Vertical)
	}
	if got.Layer != "default" {
		t.Fatalf("expected default layer, got %s", got.Layer)
	}
}

func TestClassifyPriorityOrder(t *testing.T) {
	c := newKeywordOnlyClassifier()
	// both hotel and shopping terms present; hotels is more specific
	got := c.Classify(context.Background(), "cheap hotels in rome", "")
	if got.Vertical != VerticalHotels {
		t.Fatalf("expected hotels to win over shopping, got %s", got.Vertical)
	}
}

func TestClassifyLLMLayerRejectsInvalidLabel(t *testing.T) {
	llm := &fakeLLM{generate: func(prompt, model string) (string, error) {
		return "weather", nil
	}}
	cfg := &config.Config{}
	cfg.LLM.Routing.Classify = "classify-model"
	c := NewClassifier(cfg, llm, nil)

	got := c.Classify(context.Background(), "zorple blarg", "")
	// invalid label maps to general and the layer declines, falling through
	if got.Vertical != VerticalGeneral {
		t.Fatalf("expected general, got %s", got.Vertical)
	}
}

func TestClassifyLLMLayerDecides(t *testing.T) {
	llm := &fakeLLM{generate: func(prompt, model string) (string, error) {
		return "restaurants", nil
	}}
	cfg := &config.Config{}
	cfg.LLM.Routing.Classify = "classify-model"
	c := NewClassifier(cfg, llm, nil)

	got := c.Classify(context.Background(), "somewhere nice to take my parents tonight", "")
	if got.Vertical != VerticalRestaurants {
		t.Fatalf("expected restaurants, got %s", got.Vertical)
	}
	if got.Layer != "llm" {
		t.Fatalf("expected llm layer, got %s", got.Layer)
	}
}

func TestClassifyNeverErrorsOnLLMFailure(t *testing.T) {
	llm := &fakeLLM{generate: func(prompt, model string) (string, error) {
		return "", context.DeadlineExceeded
	}}
	cfg := &config.Config{}
	cfg.LLM.Routing.Classify = "classify-model"
	c := NewClassifier(cfg, llm, nil)

	got := c.Classify(context.Background(), "zorple blarg", "")
	if got.Vertical != VerticalGeneral {
		t.Fatalf("expected graceful general, got %s", got.Vertical)
	}
}
