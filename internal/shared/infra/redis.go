// Package infra Redis 基础设施初始化
package infra

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// NewRedisClient 从 URL 创建 Redis 客户端并检查连通性
func NewRedisClient(redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	return connect(opts)
}

// NewRedisClientFromAddr 从地址创建 Redis 客户端
func NewRedisClientFromAddr(addr, password string, db int) (*redis.Client, error) {
	return connect(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
}

func connect(opts *redis.Options) (*redis.Client, error) {
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return client, nil
}
