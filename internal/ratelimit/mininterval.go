// Package ratelimit spaces out requests a source adapter makes to the same
// retailer.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Gate blocks until the next request may go out or ctx is done.
type Gate interface {
	Wait(ctx context.Context) error
}

// None never blocks.
type None struct{}

func (None) Wait(ctx context.Context) error { return ctx.Err() }

// MinInterval enforces a minimum time between successive Waits.
// Concurrent callers queue behind each other.
type MinInterval struct {
	Interval time.Duration

	mu   sync.Mutex
	last time.Time
}

func (m *MinInterval) Wait(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Interval > 0 && !m.last.IsZero() {
		if wait := time.Until(m.last.Add(m.Interval)); wait > 0 {
			t := time.NewTimer(wait)
			defer t.Stop()
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-t.C:
			}
		}
	}
	m.last = time.Now()
	return nil
}

// New picks a token bucket when a per-minute rate is configured, else a
// minimum interval, else no limiting.
func New(maxPerMinute, burst int, minInterval time.Duration) Gate {
	if maxPerMinute > 0 {
		return NewTokenBucket(float64(maxPerMinute)/60.0, burst)
	}
	if minInterval > 0 {
		return &MinInterval{Interval: minInterval}
	}
	return None{}
}
