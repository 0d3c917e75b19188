package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"secondhand-aggregator/models"
)

// RedisMirror shares finished search responses between instances. It sits
// behind the in-memory cache and is only asked on a local miss.
type RedisMirror struct {
	client redis.Cmdable
	prefix string
}

func NewRedisMirror(client redis.Cmdable, prefix string) *RedisMirror {
	if prefix == "" {
		prefix = "secondhand:search:"
	}
	return &RedisMirror{client: client, prefix: prefix}
}

// DialRedis opens a client and checks that the server answers.
func DialRedis(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	return rdb, nil
}

// Get returns the stored response, or nil with no error when the key is absent.
func (m *RedisMirror) Get(ctx context.Context, key string) (*models.SearchResponse, error) {
	data, err := m.client.Get(ctx, m.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var resp models.SearchResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("decode cached response: %w", err)
	}
	return &resp, nil
}

func (m *RedisMirror) Set(ctx context.Context, key string, resp *models.SearchResponse, ttl time.Duration) error {
	data, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("encode response: %w", err)
	}
	if err := m.client.Set(ctx, m.prefix+key, data, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Clear drops every mirrored response under the prefix.
func (m *RedisMirror) Clear(ctx context.Context) error {
	iter := m.client.Scan(ctx, 0, m.prefix+"*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("redis scan: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}
	if err := m.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}
