// Package quota tracks monthly request counts per spot-price API key.
//
// The provider bills every HTTP call it answers, so callers record usage
// for every response received, even one carrying an application error.
// Calls that never got a response are not recorded.
package quota

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"time"

	"silverscout/internal/state"
)

const keyIDLen = 6

// DefaultMonthlyLimit is the free-tier allowance per key.
const DefaultMonthlyLimit = 100

// Usage is the persisted record.
type Usage struct {
	Month string         `json:"month"`
	Keys  map[string]int `json:"keys"`
}

// Ledger holds the usage record for one run. It is not safe for
// concurrent use; a run is single-writer.
type Ledger struct {
	store state.Store
	limit int
	now   func() time.Time

	usage  Usage
	loaded []byte // raw record as last read or written, for CAS
	dirty  bool
}

type Option func(*Ledger)

// WithClock overrides time.Now, mainly for tests.
func WithClock(now func() time.Time) Option { return func(l *Ledger) { l.now = now } }

// Load reads the usage record from store. A missing record is an empty
// ledger.
func Load(ctx context.Context, store state.Store, monthlyLimit int, opts ...Option) (*Ledger, error) {
	if monthlyLimit <= 0 {
		monthlyLimit = DefaultMonthlyLimit
	}
	l := &Ledger{store: store, limit: monthlyLimit, now: time.Now}
	for _, o := range opts {
		o(l)
	}
	raw, err := state.Load(ctx, store, state.KeyAPIUsage)
	if err != nil {
		return nil, fmt.Errorf("load quota usage: %w", err)
	}
	// An empty record has nothing to lose. A malformed one stays fatal:
	// starting from zero would spend requests the provider already billed.
	if len(bytes.TrimSpace(raw)) > 0 {
		if err := json.Unmarshal(raw, &l.usage); err != nil {
			return nil, fmt.Errorf("decode quota usage: %w", err)
		}
	}
	l.loaded = raw
	return l, nil
}

// KeyID is the non-secret identifier a key is stored and displayed under.
func KeyID(key string) string {
	if len(key) <= keyIDLen {
		return key
	}
	return key[len(key)-keyIDLen:]
}

func (l *Ledger) currentMonth() string { return l.now().Format("2006-01") }

// used returns the key's count for the current month; a record from an
// older month counts as zero.
func (l *Ledger) used(key string) int {
	if l.usage.Month != l.currentMonth() {
		return 0
	}
	return l.usage.Keys[KeyID(key)]
}

// Limit is the configured monthly allowance per key.
func (l *Ledger) Limit() int { return l.limit }

// RemainingRequests sums what is left this month across keys.
func (l *Ledger) RemainingRequests(keys []string) int {
	total := 0
	for _, k := range keys {
		if left := l.limit - l.used(k); left > 0 {
			total += left
		}
	}
	return total
}

// AvailableKey returns the first key, in the given priority order, that
// is still below the monthly limit.
func (l *Ledger) AvailableKey(keys []string) (string, bool) {
	for _, k := range keys {
		if l.used(k) < l.limit {
			return k, true
		}
	}
	return "", false
}

// RecordUsage counts one request against key and persists the ledger. A
// record from a previous month is reset before counting.
func (l *Ledger) RecordUsage(ctx context.Context, key string) error {
	month := l.currentMonth()
	if l.usage.Month != month || l.usage.Keys == nil {
		l.usage = Usage{Month: month, Keys: map[string]int{}}
	}
	l.usage.Keys[KeyID(key)]++
	l.dirty = true
	return l.Flush(ctx)
}

// Flush writes unsaved changes. It is a no-op when the last write
// succeeded.
func (l *Ledger) Flush(ctx context.Context) error {
	if !l.dirty {
		return nil
	}
	b, err := json.MarshalIndent(l.usage, "", "  ")
	if err != nil {
		return fmt.Errorf("encode quota usage: %w", err)
	}
	if err := state.Swap(ctx, l.store, state.KeyAPIUsage, l.loaded, b); err != nil {
		return fmt.Errorf("save quota usage: %w", err)
	}
	l.loaded = b
	l.dirty = false
	return nil
}

// Snapshot returns the stored record as seen for the current month.
func (l *Ledger) Snapshot() Usage {
	if l.usage.Month != l.currentMonth() {
		return Usage{Month: l.currentMonth(), Keys: map[string]int{}}
	}
	return Usage{Month: l.usage.Month, Keys: maps.Clone(l.usage.Keys)}
}
