package syncqueue

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisKey is the Redis set holding pending tags.
const DefaultRedisKey = "paradigm:sync:pending"

// PendingStore remembers tags that still need to run when connectivity returns.
type PendingStore interface {
	Add(ctx context.Context, tag string) error
	Remove(ctx context.Context, tag string) error
	List(ctx context.Context) ([]string, error)
}

// MemoryPending keeps pending tags in process memory.
type MemoryPending struct {
	mu   sync.Mutex
	tags map[string]struct{}
}

// NewMemoryPending creates an empty in-memory pending set.
func NewMemoryPending() *MemoryPending {
	return &MemoryPending{tags: make(map[string]struct{})}
}

// Add implements PendingStore.
func (m *MemoryPending) Add(_ context.Context, tag string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tags[tag] = struct{}{}
	return nil
}

// Remove implements PendingStore.
func (m *MemoryPending) Remove(_ context.Context, tag string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tags, tag)
	return nil
}

// List implements PendingStore. Tags are sorted.
func (m *MemoryPending) List(_ context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	tags := make([]string, 0, len(m.tags))
	for tag := range m.tags {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags, nil
}

// RedisPending keeps pending tags in a Redis set so they survive restarts.
type RedisPending struct {
	redis *redis.Client
	key   string
}

// NewRedisPending creates a pending set stored under key (DefaultRedisKey when empty).
func NewRedisPending(redisClient *redis.Client, key string) *RedisPending {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	if key == "" {
		key = DefaultRedisKey
	}
	return &RedisPending{redis: redisClient, key: key}
}

// Add implements PendingStore.
func (r *RedisPending) Add(ctx context.Context, tag string) error {
	if err := r.redis.SAdd(ctx, r.key, tag).Err(); err != nil {
		return fmt.Errorf("redis sadd: %w", err)
	}
	return nil
}

// Remove implements PendingStore.
func (r *RedisPending) Remove(ctx context.Context, tag string) error {
	if err := r.redis.SRem(ctx, r.key, tag).Err(); err != nil {
		return fmt.Errorf("redis srem: %w", err)
	}
	return nil
}

// List implements PendingStore. Tags are sorted.
func (r *RedisPending) List(ctx context.Context) ([]string, error) {
	tags, err := r.redis.SMembers(ctx, r.key).Result()
	if err != nil {
		return nil, fmt.Errorf("redis smembers: %w", err)
	}
	sort.Strings(tags)
	return tags, nil
}
