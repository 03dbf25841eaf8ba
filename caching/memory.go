package caching

import (
	"context"
	"math/big"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	log "github.com/sirupsen/logrus"
)

type memoryEntry struct {
	value    *big.Int
	storedAt time.Time
}

// MemoryCache is an in-process ReadCache bounded by an LRU.
type MemoryCache struct {
	entries   *lru.Cache[Key, memoryEntry]
	staleness time.Duration
	now       func() time.Time
}

var _ ReadCache = (*MemoryCache)(nil)

func NewMemoryCache(size int, staleness time.Duration) (*MemoryCache, error) {
	entries, err := lru.New[Key, memoryEntry](size)
	if err != nil {
		log.WithError(err).Error("failed to create lru cache")

		return nil, err
	}

	return &MemoryCache{entries: entries, staleness: staleness, now: time.Now}, nil
}

func (m *MemoryCache) Get(_ context.Context, key Key) (*big.Int, bool, error) {
	entry, ok := m.entries.Get(key)
	if !ok {
		return nil, false, nil
	}

	if m.now().Sub(entry.storedAt) > m.staleness {
		m.entries.Remove(key)

		return nil, false, nil
	}

	return new(big.Int).Set(entry.value), true, nil
}

func (m *MemoryCache) Set(_ context.Context, key Key, value *big.Int) error {
	m.entries.Add(key, memoryEntry{value: new(big.Int).Set(value), storedAt: m.now()})

	return nil
}

func (m *MemoryCache) Invalidate(_ context.Context, keys ...Key) error {
	for _, key := range keys {
		m.entries.Remove(key)
	}

	return nil
}
