package state

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"
)

const defaultRedisPrefix = "silverscout:"

// compareAndSwapScript sets KEYS[1] to ARGV[3] when its value equals
// ARGV[1], or when it is missing and ARGV[2] is "1".
var compareAndSwapScript = redis.NewScript(`
local key = KEYS[1]
local expected = ARGV[1]
local mustBeAbsent = ARGV[2] == '1'

local current = redis.call('GET', key)
if mustBeAbsent then
	if current then
		return 0
	end
elseif (not current) or current ~= expected then
	return 0
end

redis.call('SET', key, ARGV[3])
return 1
`)

// RedisStore keeps records as plain string values under Prefix+key.
type RedisStore struct {
	client *redis.Client
	prefix string
}

func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = defaultRedisPrefix
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (r *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	b, err := r.client.Get(ctx, r.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return b, nil
}

func (r *RedisStore) Set(ctx context.Context, key string, value []byte) error {
	return r.client.Set(ctx, r.prefix+key, value, 0).Err()
}

func (r *RedisStore) CompareAndSwap(ctx context.Context, key string, prev, next []byte) (bool, error) {
	absent := "0"
	if prev == nil {
		absent = "1"
	}
	res, err := compareAndSwapScript.Run(ctx, r.client, []string{r.prefix + key}, prev, absent, next).Int()
	if err != nil {
		return false, err
	}
	return res == 1, nil
}
