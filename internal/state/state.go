// Package state persists the run-to-run records (quota usage, spot price
// cache, notified deals) as whole values under string keys.
package state

import (
	"context"
	"errors"
)

// Record keys shared by the components that own them.
const (
	KeyAPIUsage       = "api_usage"
	KeySpotPriceCache = "spot_price_cache"
	KeyNotifiedDeals  = "notified_deals"
)

// Keys lists every record in the order it is mirrored to external sinks.
var Keys = []string{KeyAPIUsage, KeySpotPriceCache, KeyNotifiedDeals}

var (
	// ErrNotFound is returned by Get when the key has never been written.
	ErrNotFound = errors.New("state: record not found")
	// ErrConflict marks a compare-and-swap that lost against another writer.
	ErrConflict = errors.New("state: record changed since it was loaded")
)

// Store reads and writes whole records.
//
// CompareAndSwap writes next only if the stored value still equals prev.
// A nil prev means the key must not exist yet.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	CompareAndSwap(ctx context.Context, key string, prev, next []byte) (bool, error)
}

// Swap is the helper ledgers use to save: it runs CompareAndSwap and turns
// a lost race into ErrConflict.
func Swap(ctx context.Context, s Store, key string, prev, next []byte) error {
	ok, err := s.CompareAndSwap(ctx, key, prev, next)
	if err != nil {
		return err
	}
	if !ok {
		return ErrConflict
	}
	return nil
}

// Load returns the stored value or nil when the key is missing.
func Load(ctx context.Context, s Store, key string) ([]byte, error) {
	b, err := s.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	return b, err
}
