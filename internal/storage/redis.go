package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"ledmkt-backend/pkg/logger"
)

type RedisStorage struct {
	url    string
	prefix string
	client *redis.Client
}

func NewRedisStorage(url, prefix string) *RedisStorage {
	return &RedisStorage{url: url, prefix: prefix}
}

func (r *RedisStorage) Init() error {
	opt, err := redis.ParseURL(r.url)
	if err != nil {
		logger.Warnf("Failed to parse Redis URL: %v. Using direct Addr", err)
		opt = &redis.Options{Addr: r.url}
	}

	r.client = redis.NewClient(opt)
	if err := r.client.Ping(context.Background()).Err(); err != nil {
		r.client.Close()
		return fmt.Errorf("%w: %v", ErrStorageInit, err)
	}

	logger.Info("Redis storage initialized successfully")
	return nil
}

func (r *RedisStorage) Get(ctx context.Context, key string) (string, error) {
	value, err := r.client.Get(ctx, r.prefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrKeyNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", key, err)
	}
	return value, nil
}

func (r *RedisStorage) Set(ctx context.Context, key, value string) error {
	if err := r.client.Set(ctx, r.prefix+key, value, 0).Err(); err != nil {
		return fmt.Errorf("failed to write %s: %w", key, err)
	}
	return nil
}

func (r *RedisStorage) Remove(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, r.prefix+key).Err(); err != nil {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}
	return nil
}

func (r *RedisStorage) Close() error {
	if r.client == nil {
		return nil
	}
	return r.client.Close()
}

// Backup asks the server for a background RDB snapshot.
func (r *RedisStorage) Backup() error {
	return r.client.BgSave(context.Background()).Err()
}
