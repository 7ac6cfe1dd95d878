package storage

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/rl1809/dapr-shop/internal/port"
)

const stateKeyPrefix = "state:"

// Each key is a hash holding the blob and a monotonically increasing version.
var saveStateScript = redis.NewScript(`
redis.call('HSET', KEYS[1], 'value', ARGV[1])
return redis.call('HINCRBY', KEYS[1], 'version', 1)
`)

var saveStateIfVersionScript = redis.NewScript(`
local key = KEYS[1]
local expected = ARGV[2]

local current = redis.call('HGET', key, 'version')
if expected == '' then
	if current then
		return 0
	end
elseif current ~= expected then
	return 0
end

redis.call('HSET', key, 'value', ARGV[1])
redis.call('HINCRBY', key, 'version', 1)
return 1
`)

type RedisAdapter struct {
	client *redis.Client
}

func NewRedisAdapter(client *redis.Client) *RedisAdapter {
	return &RedisAdapter{client: client}
}

func (r *RedisAdapter) Get(ctx context.Context, key string) (*port.StateItem, error) {
	values, err := r.client.HMGet(ctx, stateKeyPrefix+key, "value", "version").Result()
	if err != nil {
		return nil, fmt.Errorf("redis hmget %s: %w", key, err)
	}

	value, ok := values[0].(string)
	if !ok {
		return nil, nil
	}
	version, _ := values[1].(string)

	return &port.StateItem{Key: key, Value: []byte(value), Version: version}, nil
}

func (r *RedisAdapter) Save(ctx context.Context, key string, value []byte) error {
	if err := saveStateScript.Run(ctx, r.client, []string{stateKeyPrefix + key}, value).Err(); err != nil {
		return fmt.Errorf("redis save %s: %w", key, err)
	}
	return nil
}

func (r *RedisAdapter) SaveIfVersion(ctx context.Context, key string, value []byte, version string) error {
	result, err := saveStateIfVersionScript.Run(ctx, r.client, []string{stateKeyPrefix + key}, value, version).Int()
	if err != nil {
		return fmt.Errorf("redis conditional save %s: %w", key, err)
	}
	if result != 1 {
		return port.ErrVersionConflict
	}
	return nil
}

func (r *RedisAdapter) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, stateKeyPrefix+key).Err(); err != nil {
		return fmt.Errorf("redis del %s: %w", key, err)
	}
	return nil
}
