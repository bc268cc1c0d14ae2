package answer

import (
	"reflect"
	"testing"
)

func TestDedupKeyNormalization(t *testing.T) {
	a := DedupKey("Café  Río!", "México City")
	b := DedupKey("cafe rio", "mexico city")
	if a != b {
		t.Fatalf("keys differ: %q vs %q", a, b)
	}
}

func TestMergeCardsCompleteness(t *testing.T) {
	// two sources return the same hotel, one with price, one with rating
	withPrice := []Card{{Name: "Grand Plaza Hotel", Location: "Bangkok", Price: 120, PriceText: "$120", Sources: []string{"serpapi"}}}
	withRating := []Card{{Name: "grand plaza hotel", Location: "bangkok", Rating: 4.6, Reviews: 2847, Sources: []string{"brave"}}}

	merged := MergeCards(withPrice, withRating)
	if len(merged) != 1 {
		t.Fatalf("expected 1 merged card, got %d", len(merged))
	}
	got := merged[0]
	if got.Price != 120 || got.Rating != 4.6 || got.Reviews != 2847 {
		t.Fatalf("populated fields lost in merge: %+v", got)
	}
	if !reflect.DeepEqual(got.Sources, []string{"serpapi", "brave"}) {
		t.Fatalf("source tags not accumulated: %v", got.Sources)
	}
}

func TestMergeCardsFirstSourceWins(t *testing.T) {
	first := []Card{{Name: "Grand Plaza", Location: "Bangkok", Price: 120}}
	second := []Card{{Name: "Grand Plaza", Location: "Bangkok", Price: 99}}

	merged := MergeCards(first, second)
	if len(merged) != 1 {
		t.Fatalf("expected 1 card, got %d", len(merged))
	}
	if merged[0].Price != 120 {
		t.Fatalf("later source overwrote populated field: %v", merged[0].Price)
	}
}

func TestMergeCardsDeterministic(t *testing.T) {
	a := []Card{{Name: "A", Location: "x"}, {Name: "B", Location: "y"}}
	b := []Card{{Name: "C", Location: "z"}, {Name: "A", Location: "x", Rating: 5}}

	first := MergeCards(a, b)
	second := MergeCards(a, b)
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("merge not deterministic")
	}
	if first[0].Name != "A" || first[1].Name != "B" || first[2].Name != "C" {
		t.Fatalf("first-seen order not preserved: %+v", first)
	}
}

func TestMergeScoredKeepsHighest(t *testing.T) {
	items := []Scored[Card]{
		{Item: Card{Name: "A", Location: "x"}, Score: 0.4},
		{Item: Card{Name: "a", Location: "X"}, Score: 0.9},
		{Item: Card{Name: "B", Location: "y"}, Score: 0.5},
	}
	merged := MergeScored(items, func(c Card) string { return DedupKey(c.Name, c.Location) })
	if len(merged) != 2 {
		t.Fatalf("expected 2, got %d", len(merged))
	}
	if merged[0].Score != 0.9 {
		t.Fatalf("highest score not kept: %v", merged[0].Score)
	}
}

func TestMergeScoredTieKeepsEarlier(t *testing.T) {
	items := []Scored[Card]{
		{Item: Card{Name: "A", Location: "x", Link: "first"}, Score: 0.5},
		{Item: Card{Name: "A", Location: "x", Link: "second"}, Score: 0.5},
	}
	merged := MergeScored(items, func(c Card) string { return DedupKey(c.Name, c.Location) })
	if merged[0].Item.Link != "first" {
		t.Fatalf("tie should keep the higher-precedence candidate, got %q", merged[0].Item.Link)
	}
}

func TestDeduplicateChunks(t *testing.T) {
	chunks := []Chunk{
		{URL: "https://a.example", Content: "one"},
		{URL: "https://a.example", Content: "duplicate by url"},
		{Content: "Same   text"},
		{Content: "same text"},
		{URL: "https://b.example", Content: "two"},
	}
	got := DeduplicateChunks(chunks)
	if len(got) != 3 {
		t.Fatalf("expected 3 unique chunks, got %d", len(got))
	}
	if got[0].Content != "one" || got[2].URL != "https://b.example" {
		t.Fatalf("order not preserved: %+v", got)
	}
}
