package rolecache

import (
	"context"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
)

// MemoryBackend keeps snapshots in a process-local expiring LRU
type MemoryBackend struct {
	cache *lru.LRU[int64, Snapshot]
}

// NewMemoryBackend creates a backend holding at most size entries, each for
// at most ttl
func NewMemoryBackend(size int, ttl time.Duration) *MemoryBackend {
	if size <= 0 {
		size = 10000
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryBackend{cache: lru.NewLRU[int64, Snapshot](size, nil, ttl)}
}

// Name implements Backend
func (m *MemoryBackend) Name() string { return "memory" }

// Get implements Backend
func (m *MemoryBackend) Get(_ context.Context, actorID int64) (*Snapshot, error) {
	s, ok := m.cache.Get(actorID)
	if !ok {
		return nil, nil
	}
	return &s, nil
}

// Set implements Backend. The LRU applies its own TTL.
func (m *MemoryBackend) Set(_ context.Context, snapshot *Snapshot, _ time.Duration) error {
	m.cache.Add(snapshot.ActorID, *snapshot)
	return nil
}

// Delete implements Backend
func (m *MemoryBackend) Delete(_ context.Context, actorID int64) error {
	m.cache.Remove(actorID)
	return nil
}

// Len returns the number of live entries
func (m *MemoryBackend) Len() int {
	return m.cache.Len()
}
