package kvstore

import (
	"context"
	"encoding/json"

	"tiempos-digital/internal/cache"
)

const redisKeyPrefix = "tiempos:slot:"

// Redis keeps slots in Redis so several instances can share one session.
type Redis struct {
	client *cache.Redis
}

// NewRedis wraps an existing cache client.
func NewRedis(client *cache.Redis) *Redis {
	return &Redis{client: client}
}

func (r *Redis) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var raw json.RawMessage
	ok, err := r.client.GetJSON(ctx, redisKeyPrefix+key, &raw)
	if err != nil || !ok {
		return nil, false, err
	}
	return raw, true, nil
}

// Set stores value without expiry. Values must be JSON documents.
func (r *Redis) Set(ctx context.Context, key string, value []byte) error {
	return r.client.SetJSON(ctx, redisKeyPrefix+key, json.RawMessage(value), 0)
}

func (r *Redis) Delete(ctx context.Context, key string) error {
	return r.client.Delete(ctx, redisKeyPrefix+key)
}

func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx)
}

func (r *Redis) Close() error {
	return r.client.Close()
}
