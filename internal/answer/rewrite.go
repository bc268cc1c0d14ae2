package answer

import (
	"log"
	"regexp"
	"strconv"
	"strings"

	"github.com/clonar-ai/answer-engine/internal/memory"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Rewrite is the outcome of query normalization and context healing.
type Rewrite struct {
	Query   string  `json:"query"`
	Filters Filters `json:"filters"`
	Healed  bool    `json:"healed"` // memory slots were substituted in
}

// Rewriter repairs typos and merged tokens, reinterprets vague follow-ups
// using session memory, and extracts structured filters. It never overrides
// values explicitly present in the current query, so a query that already
// carries every slot passes through unchanged.
type Rewriter struct {
	logger *log.Logger
}

func NewRewriter() *Rewriter {
	return &Rewriter{logger: log.New(log.Writer(), "[REWRITE] ", log.LstdFlags)}
}

// typoTable fixes the misspellings we actually see in query logs.
var typoTable = map[string]string{
	"hotle":      "hotel",
	"hotles":     "hotels",
	"restraunt":  "restaurant",
	"restraunts": "restaurants",
	"chepest":    "cheapest",
	"cheep":      "cheap",
	"flighs":     "flights",
	"tickts":     "tickets",
	"sneekers":   "sneakers",
	"acommodation": "accommodation",
}

// mergedTokenRe splits brand-category runs like "nikeshoes" or "adidasjacket".
var mergedTokenRe = regexp.MustCompile(`(?i)^(nike|adidas|puma|zara|gucci|apple|samsung|sony)(\p{L}{3,})$`)

// vagueFollowUpRe matches follow-ups that only make sense against memory.
var vagueFollowUpRe = regexp.MustCompile(`(?i)^\s*(cheaper|cheapest|more|other|similar|better|pricier|fancier)\s*(ones?|options?|alternatives?|choices?)?\s*\??\s*$`)

// Rewrite normalizes the query and extracts filters. mem may be nil (no
// session context); healing only fills slots the query does not state.
// Stateless clients that replay the conversation in q.History get the same
// follow-up healing: the most recent user turn stands in for empty memory.
func (r *Rewriter) Rewrite(q Query, mem *memory.Memory) Rewrite {
	text := repairTokens(q.Text)

	healCtx := mem
	if healCtx == nil || (healCtx.Brand == "" && healCtx.Category == "") {
		if h := historyContext(q.History); h != nil {
			healCtx = h
		}
	}

	healed := false
	if healCtx != nil {
		if healedText, ok := healFollowUp(text, healCtx); ok {
			text = healedText
			healed = true
		}
	}

	filters := ExtractFilters(text)

	// a healed follow-up inherits the remembered slots it did not restate
	if healCtx != nil && healed {
		if filters.Brand == "" {
			filters.Brand = healCtx.Brand
		}
		if filters.Category == "" {
			filters.Category = healCtx.Category
		}
		if filters.Gender == "" {
			filters.Gender = healCtx.Gender
		}
	}

	return Rewrite{Query: text, Filters: filters, Healed: healed}
}

// historyContext rebuilds healing slots from the latest user turn that
// states a brand or category. Assistant turns are skipped; they restate the
// user's constraints in prose we would mis-extract from.
func historyContext(history []Turn) *memory.Memory {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role != "user" {
			continue
		}
		f := ExtractFilters(repairTokens(history[i].Content))
		if f.Brand == "" && f.Category == "" {
			continue
		}
		return &memory.Memory{
			Brand:    f.Brand,
			Category: f.Category,
			Gender:   f.Gender,
			City:     f.Location,
		}
	}
	return nil
}

func repairTokens(text string) string {
	words := strings.Fields(text)
	changed := false
	for i, w := range words {
		lower := strings.ToLower(w)
		if fixed, ok := typoTable[lower]; ok {
			words[i] = fixed
			changed = true
			continue
		}
		if m := mergedTokenRe.FindStringSubmatch(w); m != nil {
			words[i] = m[1] + " " + m[2]
			changed = true
		}
	}
	if !changed {
		return text
	}
	return strings.Join(words, " ")
}

// healFollowUp rewrites vague follow-ups ("cheaper ones", "more options")
// into self-contained queries using remembered brand and category. Location
// is deliberately not injected; price adjectives do not imply a place.
func healFollowUp(text string, mem *memory.Memory) (string, bool) {
	m := vagueFollowUpRe.FindStringSubmatch(text)
	if m == nil {
		return text, false
	}
	if mem.Brand == "" && mem.Category == "" {
		return text, false
	}
	parts := []string{strings.ToLower(m[1])}
	if mem.Brand != "" {
		parts = append(parts, mem.Brand)
	}
	if mem.Category != "" {
		parts = append(parts, mem.Category)
	}
	return strings.Join(parts, " "), true
}

// --- structured filter extraction ---

var (
	priceUnderRe   = regexp.MustCompile(`(?i)\b(?:under|below|less than|at most|max(?:imum)?)\s*\$?\s*(\d+(?:\.\d+)?)`)
	priceOverRe    = regexp.MustCompile(`(?i)\b(?:over|above|more than|at least|min(?:imum)?)\s*\$?\s*(\d+(?:\.\d+)?)`)
	priceBetweenRe = regexp.MustCompile(`(?i)\b(?:between|from)\s*\$?\s*(\d+(?:\.\d+)?)\s*(?:and|to|-)\s*\$?\s*(\d+(?:\.\d+)?)`)
	ratingRe       = regexp.MustCompile(`(?i)\b(\d(?:\.\d)?)\s*(?:\+\s*)?star`)
	locationRe     = regexp.MustCompile(`(?i)\b(?:in|near|around|at)\s+([A-Za-z][A-Za-z .'-]{2,40}?)(?:\s+(?:under|below|over|above|between|for|with|that)\b|[,.?!]|$)`)
)

var genderTerms = map[string]string{
	"men": "men", "mens": "men", "men's": "men", "male": "men",
	"women": "women", "womens": "women", "women's": "women", "ladies": "women", "female": "women",
	"kids": "kids", "kid's": "kids", "children": "kids", "boys": "kids", "girls": "kids",
}

var categoryTerms = []string{
	"shoes", "sneakers", "boots", "sandals", "dress", "dresses", "jacket",
	"jackets", "jeans", "t-shirt", "shirt", "sweater", "watch", "watches",
	"handbag", "backpack", "headphones", "earbuds", "laptop", "phone",
	"hotel", "hotels", "resort", "flight", "flights", "restaurant",
}

// airportCodes expands IATA codes into the city names providers expect.
var airportCodes = map[string]string{
	"BKK": "Bangkok", "JFK": "New York", "LGA": "New York", "EWR": "New York",
	"LHR": "London", "LGW": "London", "CDG": "Paris", "ORY": "Paris",
	"NRT": "Tokyo", "HND": "Tokyo", "DXB": "Dubai", "SIN": "Singapore",
	"SFO": "San Francisco", "LAX": "Los Angeles", "FRA": "Frankfurt",
	"AMS": "Amsterdam", "IST": "Istanbul", "HKG": "Hong Kong",
}

var titleCaser = cases.Title(language.English)

// ExtractFilters pulls structured constraints out of normalized query text.
func ExtractFilters(text string) Filters {
	var f Filters

	if m := priceBetweenRe.FindStringSubmatch(text); m != nil {
		f.PriceMin, _ = strconv.ParseFloat(m[1], 64)
		f.PriceMax, _ = strconv.ParseFloat(m[2], 64)
	} else {
		if m := priceUnderRe.FindStringSubmatch(text); m != nil {
			f.PriceMax, _ = strconv.ParseFloat(m[1], 64)
		}
		if m := priceOverRe.FindStringSubmatch(text); m != nil {
			f.PriceMin, _ = strconv.ParseFloat(m[1], 64)
		}
	}

	if m := ratingRe.FindStringSubmatch(text); m != nil {
		f.MinRating, _ = strconv.ParseFloat(m[1], 64)
	}

	for _, w := range strings.Fields(strings.ToLower(text)) {
		if g, ok := genderTerms[strings.Trim(w, ",.!?")]; ok {
			f.Gender = g
			break
		}
	}

	lower := strings.ToLower(text)
	for _, b := range brandTerms {
		if strings.Contains(lower, b) {
			f.Brand = b
			break
		}
	}
	for _, c := range categoryTerms {
		if containsWord(lower, c) {
			f.Category = c
			break
		}
	}

	if m := locationRe.FindStringSubmatch(text); m != nil {
		f.Location = CanonicalLocation(m[1])
	} else {
		// a bare airport code counts as a location even without "in/near"
		for _, w := range strings.Fields(text) {
			code := strings.ToUpper(strings.Trim(w, ",.!?"))
			if city, ok := airportCodes[code]; ok && w == code {
				f.Location = city
				break
			}
		}
	}

	return f
}

// CanonicalLocation normalizes a captured place string: airport codes expand
// to city names, everything else is trimmed and title-cased.
func CanonicalLocation(loc string) string {
	loc = strings.TrimSpace(loc)
	if loc == "" {
		return ""
	}
	if city, ok := airportCodes[strings.ToUpper(loc)]; ok {
		return city
	}
	return titleCaser.String(strings.ToLower(loc))
}

func containsWord(s, word string) bool {
	idx := 0
	for {
		i := strings.Index(s[idx:], word)
		if i < 0 {
			return false
		}
		start := idx + i
		end := start + len(word)
		leftOK := start == 0 || !isWordChar(s[start-1])
		rightOK := end == len(s) || !isWordChar(s[end])
		if leftOK && rightOK {
			return true
		}
		idx = start + 1
	}
}

func isWordChar(b byte) bool {
	return b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z' || b >= '0' && b <= '9'
}
