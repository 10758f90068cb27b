package cache

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis backs the cache with a shared Redis instance so repeated
// uploads hit warm entries across replicas. Backend failures are
// logged and reported as misses; the cache never blocks correctness.
type Redis struct {
	client *redis.Client
}

// NewRedis creates a Redis-backed cache and verifies connectivity
func NewRedis(ctx context.Context, addr, password string, db int) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return &Redis{client: client}, nil
}

// Get retrieves a value; backend errors degrade to a miss
func (r *Redis) Get(ctx context.Context, key string) ([]byte, bool) {
	value, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			log.Printf("cache: redis GET %s failed: %v", key, err)
		}
		return nil, false
	}
	return value, true
}

// Set stores a value under key for ttl
func (r *Redis) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := r.client.Set(ctx, key, value, ttl).Err(); err != nil {
		log.Printf("cache: redis SET %s failed: %v", key, err)
		return err
	}
	return nil
}

// Delete removes a key
func (r *Redis) Delete(ctx context.Context, key string) error {
	return r.client.Del(ctx, key).Err()
}

// Close releases the client connection
func (r *Redis) Close() error {
	return r.client.Close()
}
