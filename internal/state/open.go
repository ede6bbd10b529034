package state

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Backend selects a Store implementation.
type Backend struct {
	Kind        string // file | memory | redis
	Dir         string
	RedisAddr   string
	RedisPrefix string
}

// Open builds the store for b. The returned close function releases the
// Redis connection pool and is a no-op for the other backends.
func Open(ctx context.Context, b Backend) (Store, func() error, error) {
	nop := func() error { return nil }
	switch b.Kind {
	case "", "file":
		s, err := NewFileStore(b.Dir)
		if err != nil {
			return nil, nop, err
		}
		return s, nop, nil
	case "memory":
		return NewMemoryStore(), nop, nil
	case "redis":
		client := redis.NewClient(&redis.Options{Addr: b.RedisAddr})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, nop, fmt.Errorf("redis %s: %w", b.RedisAddr, err)
		}
		return NewRedisStore(client, b.RedisPrefix), client.Close, nil
	}
	return nil, nop, fmt.Errorf("unknown state backend %q", b.Kind)
}
