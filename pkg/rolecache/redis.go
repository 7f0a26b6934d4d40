package rolecache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisBackend shares snapshots between replicas
type RedisBackend struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisBackend creates a backend storing keys under prefix
func NewRedisBackend(client redis.UniversalClient, prefix string) *RedisBackend {
	if prefix == "" {
		prefix = "tenantguard:roles"
	}
	return &RedisBackend{client: client, prefix: prefix}
}

// NewRedisClient parses a redis:// URL and verifies the connection
func NewRedisClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return client, nil
}

func (r *RedisBackend) key(actorID int64) string {
	return fmt.Sprintf("%s:%d", r.prefix, actorID)
}

// Name implements Backend
func (r *RedisBackend) Name() string { return "redis" }

// Get implements Backend
func (r *RedisBackend) Get(ctx context.Context, actorID int64) (*Snapshot, error) {
	key := r.key(actorID)

	data, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	} else if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}

	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		// corrupt entries are dropped and treated as a miss
		r.client.Del(ctx, key)
		return nil, fmt.Errorf("failed to unmarshal role snapshot: %w", err)
	}
	return &s, nil
}

// Set implements Backend
func (r *RedisBackend) Set(ctx context.Context, snapshot *Snapshot, ttl time.Duration) error {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("failed to marshal role snapshot: %w", err)
	}
	if err := r.client.Set(ctx, r.key(snapshot.ActorID), data, ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

// Delete implements Backend
func (r *RedisBackend) Delete(ctx context.Context, actorID int64) error {
	if err := r.client.Del(ctx, r.key(actorID)).Err(); err != nil {
		return fmt.Errorf("redis del failed: %w", err)
	}
	return nil
}
