// Package localcache provides a bounded in-process TTL cache with LRU
// eviction. It is the fast middle tier of the product cache: no I/O, no
// suspension, safe for concurrent use.
package localcache

import (
	"container/list"
	"fmt"
	"sync"
	"time"

	"github.com/retailstack/product-cache/pkg/catalog"
)

// Config holds store configuration.
type Config struct {
	// MaxEntries is the capacity before LRU eviction kicks in.
	// Zero means unbounded.
	MaxEntries int

	// SweepInterval enables a background janitor that purges expired
	// entries. Zero disables the janitor; expired entries are still
	// purged lazily on access.
	SweepInterval time.Duration
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig() Config {
	return Config{
		MaxEntries:    10000,
		SweepInterval: 5 * time.Minute,
	}
}

// Stats is a snapshot of store counters.
type Stats struct {
	Hits      uint64
	Misses    uint64
	Evictions uint64
}

type item struct {
	key       string
	value     any
	expiresAt int64 // UnixNano; entries at or past this are treated as miss
}

func (it *item) expired(now int64) bool {
	return now >= it.expiresAt
}

// Store is a thread-safe key/value map with per-entry TTL and LRU ordering.
// Lookup is O(1); eviction removes from the back of the LRU list.
type Store struct {
	mu       sync.RWMutex
	entries  map[string]*list.Element
	lru      *list.List // front = most recently used, elements hold *item
	max      int
	stats    Stats
	stopOnce sync.Once
	stop     chan struct{}
}

// New creates a store and starts the janitor if a sweep interval is set.
func New(cfg Config) *Store {
	s := &Store{
		entries: make(map[string]*list.Element),
		lru:     list.New(),
		max:     cfg.MaxEntries,
		stop:    make(chan struct{}),
	}

	if cfg.SweepInterval > 0 {
		go s.janitor(cfg.SweepInterval)
	}

	return s
}

// Get returns the value for key, or false if absent or expired.
// Expired entries are purged on access.
func (s *Store) Get(key string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	elem, ok := s.entries[key]
	if !ok {
		s.stats.Misses++
		localMisses.Inc()
		return nil, false
	}

	it := elem.Value.(*item)
	if it.expired(time.Now().UnixNano()) {
		s.removeElement(elem)
		s.stats.Misses++
		localMisses.Inc()
		return nil, false
	}

	s.lru.MoveToFront(elem)
	s.stats.Hits++
	localHits.Inc()
	return it.value, true
}

// Set inserts or overwrites key with the given TTL. A non-positive TTL is
// an error: the store never holds immortal entries.
func (s *Store) Set(key string, value any, ttl time.Duration) error {
	if ttl <= 0 {
		return fmt.Errorf("%w: ttl must be positive, got %s", catalog.ErrInvalidArgument, ttl)
	}

	expiresAt := time.Now().Add(ttl).UnixNano()

	s.mu.Lock()
	defer s.mu.Unlock()

	if elem, ok := s.entries[key]; ok {
		it := elem.Value.(*item)
		it.value = value
		it.expiresAt = expiresAt
		s.lru.MoveToFront(elem)
		return nil
	}

	for s.max > 0 && s.lru.Len() >= s.max {
		s.evictOldest()
	}

	elem := s.lru.PushFront(&item{key: key, value: value, expiresAt: expiresAt})
	s.entries[key] = elem
	localSize.Set(float64(s.lru.Len()))
	return nil
}

// Delete removes key and reports whether it was present.
func (s *Store) Delete(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	elem, ok := s.entries[key]
	if !ok {
		return false
	}
	s.removeElement(elem)
	return true
}

// Len returns the current entry count, including not-yet-purged expired
// entries.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lru.Len()
}

// Stats returns a snapshot of the store counters.
func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stats
}

// Close stops the janitor. The store remains usable afterwards.
func (s *Store) Close() error {
	s.stopOnce.Do(func() { close(s.stop) })
	return nil
}

func (s *Store) evictOldest() {
	if elem := s.lru.Back(); elem != nil {
		s.removeElement(elem)
		s.stats.Evictions++
		localEvictions.Inc()
	}
}

// removeElement must be called with s.mu held.
func (s *Store) removeElement(elem *list.Element) {
	s.lru.Remove(elem)
	delete(s.entries, elem.Value.(*item).key)
	localSize.Set(float64(s.lru.Len()))
}

func (s *Store) janitor(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.purgeExpired()
		}
	}
}

func (s *Store) purgeExpired() {
	now := time.Now().UnixNano()

	s.mu.Lock()
	defer s.mu.Unlock()

	for elem := s.lru.Back(); elem != nil; {
		prev := elem.Prev()
		if elem.Value.(*item).expired(now) {
			s.removeElement(elem)
		}
		elem = prev
	}
}
