package trust

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/redis/go-redis/v9"
)

// RedisStore shares trust decisions between instances through Redis. Records
// are stored as JSON values with a set of file identities as the index.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// RedisOption configures a RedisStore.
type RedisOption func(*RedisStore)

// WithPrefix overrides the key prefix for decision records.
func WithPrefix(prefix string) RedisOption {
	return func(s *RedisStore) { s.prefix = prefix }
}

// NewRedisStore connects to Redis at the given address.
func NewRedisStore(addr, password string, db int, opts ...RedisOption) *RedisStore {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return NewRedisStoreFromClient(client, opts...)
}

// NewRedisStoreFromClient wraps an existing client.
func NewRedisStoreFromClient(client *redis.Client, opts ...RedisOption) *RedisStore {
	s := &RedisStore{
		client: client,
		prefix: "docrender:trust:",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisStore) key(fileID string) string { return s.prefix + fileID }

func (s *RedisStore) indexKey() string { return s.prefix + "index" }

func (s *RedisStore) Load(ctx context.Context) ([]Record, error) {
	ids, err := s.client.SMembers(ctx, s.indexKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("trust: list decisions: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}
	sort.Strings(ids)

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.key(id)
	}
	vals, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("trust: fetch decisions: %w", err)
	}

	out := make([]Record, 0, len(vals))
	for i, val := range vals {
		raw, ok := val.(string)
		if !ok {
			// Index entry whose record was dropped, skip it.
			continue
		}
		var rec Record
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			return nil, fmt.Errorf("trust: decode decision %s: %w", ids[i], err)
		}
		out = append(out, rec)
	}
	return out, nil
}

// Put writes the record and its index entry in one pipeline so the store
// never lists an identity it cannot resolve.
func (s *RedisStore) Put(ctx context.Context, rec Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("trust: encode decision: %w", err)
	}
	pipe := s.client.Pipeline()
	pipe.Set(ctx, s.key(rec.FileID), data, 0)
	pipe.SAdd(ctx, s.indexKey(), rec.FileID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("trust: save decision: %w", err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, fileID string) error {
	pipe := s.client.Pipeline()
	pipe.Del(ctx, s.key(fileID))
	pipe.SRem(ctx, s.indexKey(), fileID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("trust: delete decision: %w", err)
	}
	return nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
