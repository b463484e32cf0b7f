package cache

import (
	"context"
	"errors"
	"time"

	"shorturl-analytics/models"

	"github.com/redis/go-redis/v9"
	"github.com/vmihailenco/msgpack/v5"
)

// RedisStore is a RecordCache shared between ingester instances through Redis.
// Its Client is also used for the flush event channel.
type RedisStore struct {
	Client *redis.Client
	ctx    context.Context
	ttl    time.Duration
	prefix string
}

// NewRedisStore connects to Redis and pings it. Entries expire after ttl;
// a zero ttl keeps them until Redis evicts them.
func NewRedisStore(addr, password string, db int, ttl time.Duration) (*RedisStore, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx := context.Background()
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, err
	}

	return &RedisStore{
		Client: rdb,
		ctx:    ctx,
		ttl:    ttl,
		prefix: "analytics:",
	}, nil
}

// Set stores a value in Redis.
func (r *RedisStore) Set(key string, value models.AnalyticsRecord) error {
	data, err := msgpack.Marshal(value)
	if err != nil {
		return err
	}
	return r.Client.Set(r.ctx, r.prefix+key, data, r.ttl).Err()
}

// Get retrieves a value from Redis.
func (r *RedisStore) Get(key string) (models.AnalyticsRecord, error) {
	var result models.AnalyticsRecord
	data, err := r.Client.Get(r.ctx, r.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return result, ErrCacheMiss
	}
	if err != nil {
		return result, err
	}
	err = msgpack.Unmarshal(data, &result)
	return result, err
}

// Close closes the Redis client.
func (r *RedisStore) Close() error {
	return r.Client.Close()
}
