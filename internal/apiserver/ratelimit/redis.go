package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// undoScript 只在键存在且计数为正时递减，避免为已过期的窗口创建无过期时间的键
var undoScript = redis.NewScript(`
local n = tonumber(redis.call("GET", KEYS[1]) or "0")
if n > 0 then
	return redis.call("DECR", KEYS[1])
end
return 0
`)

// RedisStore 基于 INCR + PEXPIRE 的共享计数
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisStore 创建 Redis 计数存储
func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "rl"
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) key(key string) string {
	return fmt.Sprintf("%s:%s", s.prefix, key)
}

func (s *RedisStore) Hit(ctx context.Context, key string, size time.Duration, now time.Time) (int64, time.Time, error) {
	k := s.key(key)
	count, err := s.client.Incr(ctx, k).Result()
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	// 首次命中设置窗口过期时间
	if count == 1 {
		if err := s.client.PExpire(ctx, k, size).Err(); err != nil {
			return 0, time.Time{}, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
		}
		return count, now.Add(size), nil
	}

	ttl, err := s.client.PTTL(ctx, k).Result()
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	if ttl < 0 {
		// 过期时间丢失（INCR 后进程中断），补设以免计数永不重置
		if err := s.client.PExpire(ctx, k, size).Err(); err != nil {
			return 0, time.Time{}, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
		}
		ttl = size
	}
	return count, now.Add(ttl), nil
}

func (s *RedisStore) Undo(ctx context.Context, key string, _ time.Time) error {
	if err := undoScript.Run(ctx, s.client, []string{s.key(key)}).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	return nil
}
