package capability

import (
	"context"
	"fmt"
	"log"
	"net/url"
	"strings"

	"github.com/google/uuid"

	"github.com/clonar-ai/answer-engine/config"
	"github.com/clonar-ai/answer-engine/internal/answer"
)

// SerpAPIProvider serves the vertical capabilities through SerpAPI's
// engines: google_shopping, google_hotels, google_flights, google_local
// (restaurants) and plain google for movies. Responses are trimmed to the
// fields the cards need; the raw engine payload is never forwarded.
type SerpAPIProvider struct {
	cfg        config.SerpAPIConfig
	maxResults int
	client     *answer.HTTPClient
	logger     *log.Logger
}

func NewSerpAPIProvider(cfg config.SerpAPIConfig, maxResults int, client *answer.HTTPClient) *SerpAPIProvider {
	if maxResults <= 0 {
		maxResults = 10
	}
	return &SerpAPIProvider{
		cfg:        cfg,
		maxResults: maxResults,
		client:     client,
		logger:     log.New(log.Writer(), "[SERPAPI] ", log.LstdFlags),
	}
}

func (p *SerpAPIProvider) Name() string { return "serpapi" }

func (p *SerpAPIProvider) Capabilities() []string {
	return []string{"shopping_search", "hotel_search", "flight_search", "restaurant_search", "movie_search"}
}

func (p *SerpAPIProvider) Search(ctx context.Context, capability string, args map[string]interface{}) (answer.CapabilityResult, error) {
	if p.cfg.APIKey == "" {
		p.logger.Printf("warning: no api key configured, %s returns empty", capability)
		return answer.CapabilityResult{}, nil
	}

	var payload map[string]interface{}
	params := p.baseParams()
	switch capability {
	case "shopping_search":
		params.Set("engine", "google_shopping")
		params.Set("q", strArg(args, "query"))
	case "hotel_search":
		params.Set("engine", "google_hotels")
		q := strArg(args, "query")
		if loc := strArg(args, "location"); loc != "" && !strings.Contains(strings.ToLower(q), strings.ToLower(loc)) {
			q = strings.TrimSpace(q + " " + loc)
		}
		params.Set("q", q)
		if in := strArg(args, "check_in"); in != "" {
			params.Set("check_in_date", in)
		}
		if out := strArg(args, "check_out"); out != "" {
			params.Set("check_out_date", out)
		}
	case "flight_search":
		params.Set("engine", "google_flights")
		if dep := strArg(args, "departure"); dep != "" {
			params.Set("departure_id", dep)
		}
		if arr := strArg(args, "arrival"); arr != "" {
			params.Set("arrival_id", arr)
		}
		if d := strArg(args, "date"); d != "" {
			params.Set("outbound_date", d)
		}
	case "restaurant_search":
		params.Set("engine", "google_local")
		params.Set("q", strArg(args, "query"))
		if loc := strArg(args, "location"); loc != "" {
			params.Set("location", loc)
		}
	case "movie_search":
		params.Set("engine", "google")
		params.Set("q", strArg(args, "query"))
	default:
		return answer.CapabilityResult{}, fmt.Errorf("serpapi: unsupported capability %s", capability)
	}

	endpoint := p.cfg.Endpoint + "?" + params.Encode()
	if err := p.client.DoJSON(ctx, "GET", endpoint, nil, nil, &payload); err != nil {
		return answer.CapabilityResult{}, fmt.Errorf("serpapi %s: %w", capability, err)
	}

	switch capability {
	case "shopping_search":
		return answer.CapabilityResult{Cards: p.extractShopping(payload, args)}, nil
	case "hotel_search":
		return answer.CapabilityResult{Cards: p.extractHotels(payload, args)}, nil
	case "flight_search":
		return answer.CapabilityResult{Cards: p.extractFlights(payload)}, nil
	case "restaurant_search":
		return answer.CapabilityResult{Cards: p.extractLocal(payload)}, nil
	default:
		return answer.CapabilityResult{Chunks: p.extractOrganic(payload)}, nil
	}
}

func (p *SerpAPIProvider) baseParams() url.Values {
	params := url.Values{}
	params.Set("api_key", p.cfg.APIKey)
	params.Set("hl", p.cfg.Language)
	params.Set("gl", p.cfg.Country)
	return params
}

func (p *SerpAPIProvider) extractShopping(payload map[string]interface{}, args map[string]interface{}) []answer.Card {
	items, _ := payload["shopping_results"].([]interface{})
	priceMax := floatArg(args, "price_max")
	priceMin := floatArg(args, "price_min")

	var cards []answer.Card
	for _, it := range items {
		if len(cards) >= p.maxResults {
			break
		}
		m, ok := it.(map[string]interface{})
		if !ok {
			continue
		}
		link := asString(m["link"])
		if link == "" {
			link = asString(m["product_link"])
		}
		card := answer.Card{
			ID:        uuid.NewString(),
			Name:      asString(m["title"]),
			PriceText: asString(m["price"]),
			Price:     parseFloat(asString(m["extracted_price"])),
			OldPrice:  parseFloat(asString(m["extracted_price_old"])),
			Rating:    parseFloat(asString(m["rating"])),
			Reviews:   parseCount(m["reviews"]),
			Link:      link,
			Thumbnail: asString(m["thumbnail"]),
			Tag:       asString(m["tag"]),
			Delivery:  asString(m["delivery"]),
			Sources:   []string{p.Name()},
		}
		if card.Name == "" {
			continue
		}
		if priceMax > 0 && card.Price > priceMax {
			continue
		}
		if priceMin > 0 && card.Price > 0 && card.Price < priceMin {
			continue
		}
		cards = append(cards, card)
	}
	return cards
}

func (p *SerpAPIProvider) extractHotels(payload map[string]interface{}, args map[string]interface{}) []answer.Card {
	items, _ := payload["properties"].([]interface{})
	minRating := floatArg(args, "min_rating")
	location := strArg(args, "location")

	var cards []answer.Card
	for _, it := range items {
		if len(cards) >= p.maxResults {
			break
		}
		m, ok := it.(map[string]interface{})
		if !ok {
			continue
		}
		card := answer.Card{
			ID:       uuid.NewString(),
			Name:     asString(m["name"]),
			Rating:   parseFloat(asString(m["overall_rating"])),
			Reviews:  parseCount(m["reviews"]),
			Link:     asString(m["link"]),
			Location: location,
			Sources:  []string{p.Name()},
		}
		if rate, ok := m["rate_per_night"].(map[string]interface{}); ok {
			card.PriceText = asString(rate["lowest"])
			card.Price = parseFloat(asString(rate["extracted_lowest"]))
		}
		if imgs, ok := m["images"].([]interface{}); ok {
			for _, img := range imgs {
				im, ok := img.(map[string]interface{})
				if !ok {
					continue
				}
				if t := asString(im["thumbnail"]); t != "" {
					if card.Thumbnail == "" {
						card.Thumbnail = t
					}
					card.Images = append(card.Images, t)
				}
			}
		}
		if card.Name == "" {
			continue
		}
		if minRating > 0 && card.Rating > 0 && card.Rating < minRating {
			continue
		}
		cards = append(cards, card)
	}
	return cards
}

func (p *SerpAPIProvider) extractFlights(payload map[string]interface{}) []answer.Card {
	var cards []answer.Card
	for _, key := range []string{"best_flights", "other_flights"} {
		items, _ := payload[key].([]interface{})
		for _, it := range items {
			if len(cards) >= p.maxResults {
				return cards
			}
			m, ok := it.(map[string]interface{})
			if !ok {
				continue
			}
			card := answer.Card{
				ID:      uuid.NewString(),
				Price:   floatArg(m, "price"),
				Sources: []string{p.Name()},
			}
			if card.Price > 0 {
				card.PriceText = fmt.Sprintf("$%.0f", card.Price)
			}
			legs, _ := m["flights"].([]interface{})
			var airlines []string
			for _, leg := range legs {
				lm, ok := leg.(map[string]interface{})
				if !ok {
					continue
				}
				if a := asString(lm["airline"]); a != "" && !containsStr(airlines, a) {
					airlines = append(airlines, a)
				}
			}
			if len(legs) > 0 {
				first, _ := legs[0].(map[string]interface{})
				last, _ := legs[len(legs)-1].(map[string]interface{})
				dep := airportName(first, "departure_airport")
				arr := airportName(last, "arrival_airport")
				stops := ""
				if len(legs) > 1 {
					stops = fmt.Sprintf(", %d stop(s)", len(legs)-1)
				}
				card.Name = fmt.Sprintf("%s: %s to %s%s", strings.Join(airlines, "/"), dep, arr, stops)
			}
			if dur := intArg(m, "total_duration"); dur > 0 {
				card.Delivery = fmt.Sprintf("%dh %dm total", dur/60, dur%60)
			}
			if card.Name == "" {
				continue
			}
			cards = append(cards, card)
		}
	}
	return cards
}

func (p *SerpAPIProvider) extractLocal(payload map[string]interface{}) []answer.Card {
	items, _ := payload["local_results"].([]interface{})
	var cards []answer.Card
	for _, it := range items {
		if len(cards) >= p.maxResults {
			break
		}
		m, ok := it.(map[string]interface{})
		if !ok {
			continue
		}
		card := answer.Card{
			ID:        uuid.NewString(),
			Name:      asString(m["title"]),
			Rating:    parseFloat(asString(m["rating"])),
			Reviews:   parseCount(m["reviews"]),
			Location:  asString(m["address"]),
			PriceText: asString(m["price"]),
			Thumbnail: asString(m["thumbnail"]),
			Link:      asString(m["website"]),
			Sources:   []string{p.Name()},
		}
		if card.Name == "" {
			continue
		}
		cards = append(cards, card)
	}
	return cards
}

func (p *SerpAPIProvider) extractOrganic(payload map[string]interface{}) []answer.Chunk {
	items, _ := payload["organic_results"].([]interface{})
	var chunks []answer.Chunk
	for _, it := range items {
		if len(chunks) >= p.maxResults {
			break
		}
		m, ok := it.(map[string]interface{})
		if !ok {
			continue
		}
		c := answer.Chunk{
			ID:      uuid.NewString(),
			Title:   asString(m["title"]),
			URL:     asString(m["link"]),
			Content: asString(m["snippet"]),
			Source:  p.Name(),
		}
		if c.Title == "" && c.Content == "" {
			continue
		}
		chunks = append(chunks, c)
	}
	return chunks
}

func airportName(leg map[string]interface{}, key string) string {
	if leg == nil {
		return ""
	}
	if ap, ok := leg[key].(map[string]interface{}); ok {
		if id := asString(ap["id"]); id != "" {
			return id
		}
		return asString(ap["name"])
	}
	return ""
}

func containsStr(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
