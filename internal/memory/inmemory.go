package memory

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// InMemoryStore keeps session memory in process. Entries expire on their
// own TTL; the janitor sweeps expired entries every minute.
type InMemoryStore struct {
	cache *gocache.Cache
}

func NewInMemoryStore(defaultTTL time.Duration) *InMemoryStore {
	return &InMemoryStore{cache: gocache.New(defaultTTL, time.Minute)}
}

func (s *InMemoryStore) Get(_ context.Context, id string) (*Memory, error) {
	v, ok := s.cache.Get(id)
	if !ok {
		return nil, nil
	}
	m, ok := v.(Memory)
	if !ok {
		return nil, nil
	}
	cp := m
	return &cp, nil
}

func (s *InMemoryStore) Put(_ context.Context, id string, m Memory, ttl time.Duration) error {
	s.cache.Set(id, m, ttl)
	return nil
}
