// Package redisdb implements the key-value storage on top of redis.
package redisdb

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "userdir:"

// RedisDB stores every key under the "userdir:" namespace without expiry.
type RedisDB struct {
	client *redis.Client
}

// New connects to addr and verifies the connection.
func New(ctx context.Context, addr string, db int) (*RedisDB, error) {
	client := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   db,
	})

	result := NewWithClient(client)
	if err := result.Ping(ctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("in internal/db/redisdb/redisdb.go/New(): error while `result.Ping()` calling: %w", err)
	}

	return result, nil
}

// NewWithClient wraps an existing client.
func NewWithClient(client *redis.Client) *RedisDB {
	return &RedisDB{client: client}
}

func (db *RedisDB) Get(ctx context.Context, key string) ([]byte, bool, error) {
	value, err := db.client.Get(ctx, keyPrefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, err
	}

	return value, true, nil
}

func (db *RedisDB) Set(ctx context.Context, key string, value []byte) error {
	return db.client.Set(ctx, keyPrefix+key, value, 0).Err()
}

func (db *RedisDB) Ping(ctx context.Context) error {
	return db.client.Ping(ctx).Err()
}

func (db *RedisDB) Close() error {
	return db.client.Close()
}
