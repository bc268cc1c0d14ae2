package answer

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// deaccent strips combining marks so "Café" and "Cafe" share a dedup key.
var deaccent = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// NormalizeKeyPart lowercases, strips diacritics and punctuation, and
// collapses whitespace.
func NormalizeKeyPart(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if out, _, err := transform.String(deaccent, s); err == nil {
		s = out
	}
	var b strings.Builder
	lastSpace := false
	for _, r := range s {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			lastSpace = false
		case unicode.IsSpace(r):
			if !lastSpace && b.Len() > 0 {
				b.WriteRune(' ')
				lastSpace = true
			}
		}
	}
	return strings.TrimSpace(b.String())
}

// DedupKey identifies one real-world entity across sources.
func DedupKey(name, location string) string {
	return NormalizeKeyPart(name) + "|" + NormalizeKeyPart(location)
}

// MergeCards merges per-source card lists in the given precedence order. The
// first occurrence of a dedup key becomes canonical; later occurrences fill
// only fields the canonical record is missing and append their source tag.
// Populated data from either side is never lost. Output order is first-seen
// order, so the result is deterministic for identical inputs.
func MergeCards(sources ...[]Card) []Card {
	byKey := make(map[string]int)
	var merged []Card
	for _, cards := range sources {
		for _, c := range cards {
			key := DedupKey(c.Name, c.Location)
			idx, seen := byKey[key]
			if !seen {
				byKey[key] = len(merged)
				merged = append(merged, c)
				continue
			}
			merged[idx] = fillMissing(merged[idx], c)
		}
	}
	return merged
}

// fillMissing copies populated fields of donor into the gaps of base and
// appends donor's source tags. Base fields that already hold data win.
func fillMissing(base, donor Card) Card {
	if base.ID == "" {
		base.ID = donor.ID
	}
	if base.Name == "" {
		base.Name = donor.Name
	}
	if base.Price == 0 {
		base.Price = donor.Price
	}
	if base.PriceText == "" {
		base.PriceText = donor.PriceText
	}
	if base.OldPrice == 0 {
		base.OldPrice = donor.OldPrice
	}
	if base.Rating == 0 {
		base.Rating = donor.Rating
	}
	if base.Reviews == 0 {
		base.Reviews = donor.Reviews
	}
	if base.Location == "" {
		base.Location = donor.Location
	}
	if len(base.Images) == 0 {
		base.Images = donor.Images
	}
	if base.Thumbnail == "" {
		base.Thumbnail = donor.Thumbnail
	}
	if base.Link == "" {
		base.Link = donor.Link
	}
	if base.Tag == "" {
		base.Tag = donor.Tag
	}
	if base.Delivery == "" {
		base.Delivery = donor.Delivery
	}
	for _, tag := range donor.Sources {
		if !containsString(base.Sources, tag) {
			base.Sources = append(base.Sources, tag)
		}
	}
	return base
}

// MergeScored keeps, per dedup key, only the highest-scoring candidate.
// Ties keep the earlier (higher-precedence) candidate. Output is first-seen
// key order.
func MergeScored[T any](items []Scored[T], keyOf func(T) string) []Scored[T] {
	byKey := make(map[string]int)
	var merged []Scored[T]
	for _, it := range items {
		key := keyOf(it.Item)
		idx, seen := byKey[key]
		if !seen {
			byKey[key] = len(merged)
			merged = append(merged, it)
			continue
		}
		if it.Score > merged[idx].Score {
			merged[idx] = it
		}
	}
	return merged
}

// DeduplicateChunks removes chunks that repeat an earlier chunk's URL (or
// content when no URL is set), preserving order.
func DeduplicateChunks(chunks []Chunk) []Chunk {
	seen := make(map[string]struct{}, len(chunks))
	var out []Chunk
	for _, c := range chunks {
		key := c.URL
		if key == "" {
			key = NormalizeKeyPart(c.Content)
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, c)
	}
	return out
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
