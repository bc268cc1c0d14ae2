package memory

import (
	"context"
	"testing"
	"time"
)

func TestMergeNonEmptyOverwritesOnly(t *testing.T) {
	m := Memory{
		Brand:    "nike",
		Category: "shoes",
		City:     "Rome",
		PriceMax: 150,
	}

	m.Merge(Memory{Brand: "adidas", PriceMax: 100})

	if m.Brand != "adidas" {
		t.Fatalf("brand = %q, want adidas", m.Brand)
	}
	if m.PriceMax != 100 {
		t.Fatalf("price_max = %v, want 100", m.PriceMax)
	}
	// Absent fields never erase.
	if m.Category != "shoes" {
		t.Fatalf("category erased by absent value: %q", m.Category)
	}
	if m.City != "Rome" {
		t.Fatalf("city erased by absent value: %q", m.City)
	}
	if m.UpdatedAt.IsZero() {
		t.Fatalf("merge must stamp updated_at")
	}
}

func TestMergeEmptyUpdateKeepsEverything(t *testing.T) {
	m := Memory{Domain: "shopping", Brand: "sony", LastQuery: "sony headphones"}
	m.Merge(Memory{})
	if m.Domain != "shopping" || m.Brand != "sony" || m.LastQuery != "sony headphones" {
		t.Fatalf("empty merge mutated memory: %+v", m)
	}
}

func TestInMemoryStoreRoundtrip(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore(time.Minute)

	if err := s.Put(ctx, "sess", Memory{Brand: "nike", City: "Paris"}, time.Minute); err != nil {
		t.Fatalf("put: %v", err)
	}
	got, err := s.Get(ctx, "sess")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got == nil || got.Brand != "nike" || got.City != "Paris" {
		t.Fatalf("roundtrip lost fields: %+v", got)
	}
}

func TestInMemoryStoreMissingSession(t *testing.T) {
	s := NewInMemoryStore(time.Minute)
	got, err := s.Get(context.Background(), "nope")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != nil {
		t.Fatalf("missing session must be nil, got %+v", got)
	}
}

func TestInMemoryStoreReturnsCopy(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore(time.Minute)
	if err := s.Put(ctx, "sess", Memory{Brand: "nike"}, time.Minute); err != nil {
		t.Fatalf("put: %v", err)
	}

	first, _ := s.Get(ctx, "sess")
	first.Brand = "mutated"

	second, _ := s.Get(ctx, "sess")
	if second.Brand != "nike" {
		t.Fatalf("caller mutation leaked into the store: %q", second.Brand)
	}
}

func TestInMemoryStoreTTLExpiry(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore(time.Minute)
	if err := s.Put(ctx, "sess", Memory{Brand: "nike"}, 10*time.Millisecond); err != nil {
		t.Fatalf("put: %v", err)
	}
	time.Sleep(30 * time.Millisecond)
	got, err := s.Get(ctx, "sess")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != nil {
		t.Fatalf("expired session still present: %+v", got)
	}
}
