// Package memory holds per-session conversational memory behind a TTL
// key-value store contract. Implementations make no persistence guarantee
// beyond the TTL.
package memory

import (
	"context"
	"time"
)

// Memory is what the engine remembers about a session between turns.
type Memory struct {
	Domain     string    `json:"domain,omitempty"`
	Brand      string    `json:"brand,omitempty"`
	Category   string    `json:"category,omitempty"`
	Gender     string    `json:"gender,omitempty"`
	City       string    `json:"city,omitempty"`
	PriceMin   float64   `json:"price_min,omitempty"`
	PriceMax   float64   `json:"price_max,omitempty"`
	LastQuery  string    `json:"last_query,omitempty"`
	LastAnswer string    `json:"last_answer,omitempty"`
	UpdatedAt  time.Time `json:"updated_at,omitempty"`
}

// Merge applies an update onto m. Fields are overwritten only by explicit
// non-zero values; absent values never erase what is remembered.
func (m *Memory) Merge(update Memory) {
	if update.Domain != "" {
		m.Domain = update.Domain
	}
	if update.Brand != "" {
		m.Brand = update.Brand
	}
	if update.Category != "" {
		m.Category = update.Category
	}
	if update.Gender != "" {
		m.Gender = update.Gender
	}
	if update.City != "" {
		m.City = update.City
	}
	if update.PriceMin != 0 {
		m.PriceMin = update.PriceMin
	}
	if update.PriceMax != 0 {
		m.PriceMax = update.PriceMax
	}
	if update.LastQuery != "" {
		m.LastQuery = update.LastQuery
	}
	if update.LastAnswer != "" {
		m.LastAnswer = update.LastAnswer
	}
	m.UpdatedAt = time.Now()
}

// Store is a TTL key-value session memory service.
type Store interface {
	// Get returns the memory for a session id, or nil when none exists.
	Get(ctx context.Context, id string) (*Memory, error)

	// Put stores the memory under the session id with the given TTL.
	Put(ctx context.Context, id string, m Memory, ttl time.Duration) error
}
