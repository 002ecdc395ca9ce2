// Package orderbook holds the latest order book snapshot per (exchange, pair).
package orderbook

import (
	"sort"
	"sync"

	"github.com/cespare/xxhash/v2"

	"arbiter/models"
)

const shardCount = 32

type bookKey struct {
	exchange string
	pair     string
}

type shard struct {
	mu    sync.RWMutex
	books map[bookKey]models.OrderBookSnapshot
}

// Store is a concurrent last-write-wins map of order book snapshots. It is
// sharded by key so writers for different (exchange, pair) keys rarely share a
// lock. Entries are never evicted.
type Store struct {
	shards [shardCount]*shard
}

// NewStore returns an empty store.
func NewStore() *Store {
	s := &Store{}
	for i := range s.shards {
		s.shards[i] = &shard{books: make(map[bookKey]models.OrderBookSnapshot)}
	}
	return s
}

func (s *Store) shardFor(exchange, pair string) *shard {
	h := xxhash.Sum64String(models.BookKey(exchange, pair))
	return s.shards[h%shardCount]
}

// Update inserts or replaces the snapshot for its (exchange, pair).
// The store keeps its own copy of the levels.
func (s *Store) Update(snapshot models.OrderBookSnapshot) {
	stored := snapshot.Clone()
	sh := s.shardFor(stored.Exchange, stored.Pair)

	sh.mu.Lock()
	sh.books[bookKey{exchange: stored.Exchange, pair: stored.Pair}] = stored
	sh.mu.Unlock()
}

// Get returns a copy of the current snapshot for (exchange, pair).
func (s *Store) Get(exchange, pair string) (models.OrderBookSnapshot, bool) {
	sh := s.shardFor(exchange, pair)

	sh.mu.RLock()
	snap, ok := sh.books[bookKey{exchange: exchange, pair: pair}]
	sh.mu.RUnlock()
	if !ok {
		return models.OrderBookSnapshot{}, false
	}
	return snap.Clone(), true
}

// All returns copies of every stored snapshot ordered by key. Each shard is
// read under its own lock, so the result is consistent per entry but not a
// single atomic view across keys.
func (s *Store) All() []models.OrderBookSnapshot {
	out := make([]models.OrderBookSnapshot, 0, s.Len())
	for _, sh := range s.shards {
		sh.mu.RLock()
		for _, snap := range sh.books {
			out = append(out, snap.Clone())
		}
		sh.mu.RUnlock()
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Exchange != out[j].Exchange {
			return out[i].Exchange < out[j].Exchange
		}
		return out[i].Pair < out[j].Pair
	})
	return out
}

// Len reports the number of stored keys.
func (s *Store) Len() int {
	n := 0
	for _, sh := range s.shards {
		sh.mu.RLock()
		n += len(sh.books)
		sh.mu.RUnlock()
	}
	return n
}
