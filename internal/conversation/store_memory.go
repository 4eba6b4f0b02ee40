package conversation

import (
	"container/heap"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// memoryStore is the default conversation arena (spec §9): a bounded
// hashicorp/golang-lru cache for capacity, plus a container/heap min-heap
// keyed on last_seen driving the TTL sweep. A single mutex guards the
// arena's bookkeeping (cache membership, heap position); it is never held
// across an entry's own critical section, since entry.mu is what
// linearizes reads/writes against one conversation's state.
type memoryStore struct {
	mu    sync.Mutex
	cache *lru.Cache[string, *entry]
	heap  *ttlHeap
	ttl   time.Duration
}

func newMemoryStore(maxEntries int, ttl time.Duration) *memoryStore {
	s := &memoryStore{heap: newTTLHeap(), ttl: ttl}
	c, err := lru.NewWithEvict[string, *entry](maxEntries, s.onEvict)
	if err != nil {
		// Only returns an error for a non-positive size; fall back to a
		// single-entry cache rather than panic in production code.
		c, _ = lru.New[string, *entry](1)
	}
	s.cache = c
	return s
}

// onEvict is invoked by the LRU cache when capacity eviction drops an
// entry; it only reconciles the heap side-index, never calls back into
// the cache, so it is safe to run while s.mu is already held by the
// caller that triggered the eviction (Add).
func (s *memoryStore) onEvict(id string, _ *entry) {
	if item, ok := s.heap.lookup[id]; ok {
		heap.Remove(s.heap, item.index)
	}
}

func (s *memoryStore) getOrCreate(id string, now time.Time) *entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.cache.Get(id); ok {
		return e
	}
	e := &entry{ctx: &Context{ConversationID: id, LastSeen: now, Backend: "memory"}}
	s.cache.Add(id, e)
	heap.Push(s.heap, &heapItem{id: id, lastSeen: now})
	return e
}

func (s *memoryStore) touch(id string, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.heap.lookup[id]
	if !ok {
		return
	}
	item.lastSeen = now
	heap.Fix(s.heap, item.index)
}

// sweepExpired removes and returns the ids of every entry whose last_seen
// is older than the configured TTL, as of now.
func (s *memoryStore) sweepExpired(now time.Time) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var expired []string
	for {
		item, ok := s.heap.peek()
		if !ok || now.Sub(item.lastSeen) <= s.ttl {
			break
		}
		heap.Pop(s.heap)
		s.cache.Remove(item.id)
		expired = append(expired, item.id)
	}
	return expired
}

func (s *memoryStore) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cache.Len()
}
