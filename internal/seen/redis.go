package seen

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps one expiring key per notified listing.
type RedisStore struct {
	rdb    redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewRedisStore wraps an existing client. ttl <= 0 keeps keys until evicted.
func NewRedisStore(rdb redis.UniversalClient, prefix string, ttl time.Duration) *RedisStore {
	if prefix == "" {
		prefix = "silvermon"
	}
	return &RedisStore{rdb: rdb, prefix: prefix, ttl: ttl}
}

func (s *RedisStore) key(k string) string {
	return fmt.Sprintf("%s:seen:%s", s.prefix, k)
}

// FilterNew implements Store.
func (s *RedisStore) FilterNew(ctx context.Context, keys []string) ([]string, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	pipe := s.rdb.Pipeline()
	cmds := make([]*redis.IntCmd, len(keys))
	for i, k := range keys {
		cmds[i] = pipe.Exists(ctx, s.key(k))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("redis exists: %w", err)
	}

	out := make([]string, 0, len(keys))
	dup := make(map[string]struct{}, len(keys))
	for i, k := range keys {
		if _, ok := dup[k]; ok {
			continue
		}
		dup[k] = struct{}{}
		if cmds[i].Val() == 0 {
			out = append(out, k)
		}
	}
	return out, nil
}

// MarkSeen implements Store.
func (s *RedisStore) MarkSeen(ctx context.Context, keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	now := time.Now().UTC().Format(time.RFC3339)
	pipe := s.rdb.Pipeline()
	for _, k := range keys {
		pipe.Set(ctx, s.key(k), now, s.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

var _ Store = (*RedisStore)(nil)
