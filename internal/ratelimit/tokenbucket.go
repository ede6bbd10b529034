package ratelimit

import (
	"context"
	"sync"
	"time"
)

// TokenBucket allows a burst of requests and then one request per
// 1/rate seconds. Each Wait reserves its slot up front, so concurrent
// callers are served in arrival order.
type TokenBucket struct {
	per   time.Duration // time to earn one token
	burst time.Duration // per * capacity
	now   func() time.Time

	mu   sync.Mutex
	next time.Time // when the bucket is empty again; zero means full
}

func NewTokenBucket(tokensPerSecond float64, burst int) *TokenBucket {
	if tokensPerSecond <= 0 {
		tokensPerSecond = 1e-7
	}
	if burst <= 0 {
		burst = 1
	}
	per := time.Duration(float64(time.Second) / tokensPerSecond)
	return &TokenBucket{per: per, burst: per * time.Duration(burst), now: time.Now}
}

// reserve claims the next token and returns how long the caller must wait
// for it.
func (tb *TokenBucket) reserve() time.Duration {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	now := tb.now()
	// a full bucket is the same as an empty point burst in the past
	if floor := now.Add(-tb.burst); tb.next.Before(floor) {
		tb.next = floor
	}
	tb.next = tb.next.Add(tb.per)
	return tb.next.Sub(now)
}

// cancel hands back a token reserved by a caller that gave up.
func (tb *TokenBucket) cancel() {
	tb.mu.Lock()
	tb.next = tb.next.Add(-tb.per)
	tb.mu.Unlock()
}

// Wait blocks until a token is available or ctx is done.
func (tb *TokenBucket) Wait(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	wait := tb.reserve()
	if wait <= 0 {
		return nil
	}
	t := time.NewTimer(wait)
	defer t.Stop()
	select {
	case <-ctx.Done():
		tb.cancel()
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
