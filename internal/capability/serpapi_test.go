package capability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/clonar-ai/answer-engine/config"
	"github.com/clonar-ai/answer-engine/internal/answer"
)

func serpapiFixture(t *testing.T, body string) (*SerpAPIProvider, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("api_key") != "test-key" {
			t.Errorf("api key not forwarded")
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(body))
	}))
	p := NewSerpAPIProvider(config.SerpAPIConfig{
		APIKey:   "test-key",
		Endpoint: srv.URL,
		Country:  "us",
		Language: "en",
	}, 10, answer.NewHTTPClient(time.Second, 0, time.Millisecond, time.Millisecond))
	return p, srv
}

func TestSerpAPIShoppingTrimsToCardFields(t *testing.T) {
	p, srv := serpapiFixture(t, `{
		"search_metadata": {"id": "abc", "raw_html_file": "should-never-surface"},
		"shopping_results": [
			{"title": "Nike Pegasus 41", "price": "$129.99", "extracted_price": 129.99,
			 "extracted_price_old": 149.99, "rating": 4.6, "reviews": 2100,
			 "product_link": "https://shop.example/pegasus", "thumbnail": "https://img.example/p.jpg",
			 "tag": "SALE", "delivery": "Free delivery"},
			{"title": "Nike Vomero", "extracted_price": 189.99}
		]
	}`)
	defer srv.Close()

	res, err := p.Search(context.Background(), "shopping_search",
		map[string]interface{}{"query": "nike running shoes", "price_max": 150.0})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(res.Cards) != 1 {
		t.Fatalf("price_max filter failed, got %d cards", len(res.Cards))
	}
	c := res.Cards[0]
	if c.Name != "Nike Pegasus 41" || c.Price != 129.99 || c.OldPrice != 149.99 {
		t.Fatalf("card fields wrong: %+v", c)
	}
	if c.Link != "https://shop.example/pegasus" {
		t.Fatalf("product_link fallback missing: %q", c.Link)
	}
	if c.Tag != "SALE" || c.Delivery != "Free delivery" || c.Reviews != 2100 {
		t.Fatalf("card fields wrong: %+v", c)
	}
	if len(c.Sources) != 1 || c.Sources[0] != "serpapi" {
		t.Fatalf("source tag missing: %v", c.Sources)
	}
}

func TestSerpAPIHotelsRatePerNight(t *testing.T) {
	p, srv := serpapiFixture(t, `{
		"properties": [
			{"name": "Hotel Artemide", "overall_rating": 4.7, "reviews": 5300,
			 "link": "https://hotels.example/artemide",
			 "rate_per_night": {"lowest": "$210", "extracted_lowest": 210},
			 "images": [{"thumbnail": "https://img.example/1.jpg"}, {"thumbnail": "https://img.example/2.jpg"}]},
			{"name": "Budget Inn", "overall_rating": 3.1,
			 "rate_per_night": {"lowest": "$60", "extracted_lowest": 60}}
		]
	}`)
	defer srv.Close()

	res, err := p.Search(context.Background(), "hotel_search",
		map[string]interface{}{"query": "hotels", "location": "Rome", "min_rating": 4.0})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(res.Cards) != 1 {
		t.Fatalf("min_rating filter failed, got %d", len(res.Cards))
	}
	c := res.Cards[0]
	if c.Name != "Hotel Artemide" || c.Price != 210 || c.PriceText != "$210" {
		t.Fatalf("rate_per_night not mapped: %+v", c)
	}
	if c.Location != "Rome" {
		t.Fatalf("location not carried: %q", c.Location)
	}
	if c.Thumbnail != "https://img.example/1.jpg" || len(c.Images) != 2 {
		t.Fatalf("images wrong: %+v", c)
	}
}

func TestSerpAPIFlightsSummarizesLegs(t *testing.T) {
	p, srv := serpapiFixture(t, `{
		"best_flights": [
			{"price": 420, "total_duration": 700, "flights": [
				{"airline": "ANA", "departure_airport": {"id": "JFK"}, "arrival_airport": {"id": "NRT"}},
				{"airline": "ANA", "departure_airport": {"id": "NRT"}, "arrival_airport": {"id": "BKK"}}
			]}
		],
		"other_flights": [
			{"price": 380, "total_duration": 910, "flights": [
				{"airline": "United", "departure_airport": {"id": "JFK"}, "arrival_airport": {"id": "BKK"}}
			]}
		]
	}`)
	defer srv.Close()

	res, err := p.Search(context.Background(), "flight_search",
		map[string]interface{}{"departure": "JFK", "arrival": "BKK", "date": "2026-09-10"})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(res.Cards) != 2 {
		t.Fatalf("cards = %d, want best + other", len(res.Cards))
	}
	best := res.Cards[0]
	if best.Name != "ANA: JFK to BKK, 1 stop(s)" {
		t.Fatalf("leg summary wrong: %q", best.Name)
	}
	if best.Price != 420 || best.PriceText != "$420" {
		t.Fatalf("price wrong: %+v", best)
	}
	if best.Delivery != "11h 40m total" {
		t.Fatalf("duration wrong: %q", best.Delivery)
	}
}

func TestSerpAPIMissingKeyReturnsEmpty(t *testing.T) {
	p := NewSerpAPIProvider(config.SerpAPIConfig{}, 10,
		answer.NewHTTPClient(time.Second, 0, time.Millisecond, time.Millisecond))
	res, err := p.Search(context.Background(), "shopping_search", map[string]interface{}{"query": "shoes"})
	if err != nil {
		t.Fatalf("missing key must degrade, not fail: %v", err)
	}
	if len(res.Cards) != 0 || len(res.Chunks) != 0 {
		t.Fatalf("expected empty result")
	}
}

func TestSerpAPIUnsupportedCapability(t *testing.T) {
	p, srv := serpapiFixture(t, `{}`)
	defer srv.Close()
	if _, err := p.Search(context.Background(), "stock_quotes", nil); err == nil {
		t.Fatalf("expected error for unsupported capability")
	}
}
