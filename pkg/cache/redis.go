package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisPrefix namespaces every key the store writes.
const DefaultRedisPrefix = "paradigm:cache"

// RedisStore keeps each partition in a Redis hash and tracks partition
// names in a Redis set.
//
// Layout:
//
//	<prefix>:partitions         SET  of partition names
//	<prefix>:partition:<name>   HASH RequestKey.String() -> JSON Entry
type RedisStore struct {
	redis  *redis.Client
	prefix string
}

// NewRedisStore creates a partition store with Redis backend.
func NewRedisStore(redisClient *redis.Client, prefix string) *RedisStore {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &RedisStore{
		redis:  redisClient,
		prefix: prefix,
	}
}

func (s *RedisStore) namesKey() string {
	return s.prefix + ":partitions"
}

func (s *RedisStore) partitionKey(name string) string {
	return s.prefix + ":partition:" + name
}

// Open returns a handle to the named partition.
func (s *RedisStore) Open(_ context.Context, name string) (Partition, error) {
	if name == "" {
		return nil, fmt.Errorf("partition name cannot be empty")
	}
	return &redisPartition{store: s, name: name}, nil
}

// Delete removes the partition hash and its name in one transaction.
func (s *RedisStore) Delete(ctx context.Context, name string) (bool, error) {
	pipe := s.redis.TxPipeline()
	pipe.Del(ctx, s.partitionKey(name))
	removed := pipe.SRem(ctx, s.namesKey(), name)

	if _, err := pipe.Exec(ctx); err != nil {
		CacheErrors.WithLabelValues("delete").Inc()
		return false, fmt.Errorf("redis delete partition %s: %w", name, err)
	}

	existed := removed.Val() > 0
	if existed {
		PartitionsDeleted.Inc()
	}
	return existed, nil
}

// Names lists existing partitions.
func (s *RedisStore) Names(ctx context.Context) ([]string, error) {
	names, err := s.redis.SMembers(ctx, s.namesKey()).Result()
	if err != nil {
		CacheErrors.WithLabelValues("names").Inc()
		return nil, fmt.Errorf("redis smembers: %w", err)
	}
	sort.Strings(names)
	return names, nil
}

type redisPartition struct {
	store *RedisStore
	name  string
}

func (p *redisPartition) Name() string { return p.name }

// Get retrieves an entry by key.
// Returns ErrCacheMiss if the key doesn't exist.
func (p *redisPartition) Get(ctx context.Context, key RequestKey) (*Entry, error) {
	data, err := p.store.redis.HGet(ctx, p.store.partitionKey(p.name), key.String()).Bytes()
	if err != nil {
		if err == redis.Nil {
			CacheMisses.Inc()
			return nil, ErrCacheMiss
		}
		CacheErrors.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("redis hget: %w", err)
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		CacheErrors.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("%w: %v", ErrInvalidEntry, err)
	}

	CacheHits.WithLabelValues(p.name).Inc()
	return &entry, nil
}

// Put stores an entry and registers the partition name atomically.
func (p *redisPartition) Put(ctx context.Context, key RequestKey, entry *Entry) error {
	if entry == nil {
		return fmt.Errorf("cache entry cannot be nil")
	}

	data, err := json.Marshal(entry)
	if err != nil {
		CacheErrors.WithLabelValues("put").Inc()
		return fmt.Errorf("marshal cache entry: %w", err)
	}

	pipe := p.store.redis.TxPipeline()
	pipe.HSet(ctx, p.store.partitionKey(p.name), key.String(), data)
	pipe.SAdd(ctx, p.store.namesKey(), p.name)
	if _, err := pipe.Exec(ctx); err != nil {
		CacheErrors.WithLabelValues("put").Inc()
		return fmt.Errorf("redis hset: %w", err)
	}

	return nil
}

func (p *redisPartition) Keys(ctx context.Context) ([]string, error) {
	keys, err := p.store.redis.HKeys(ctx, p.store.partitionKey(p.name)).Result()
	if err != nil {
		CacheErrors.WithLabelValues("keys").Inc()
		return nil, fmt.Errorf("redis hkeys: %w", err)
	}
	sort.Strings(keys)
	return keys, nil
}
