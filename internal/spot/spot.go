// Package spot acquires the silver spot price, serving it from the
// persisted cache while fresh and otherwise spending one request of the
// monthly quota.
package spot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"silverscout/internal/quota"
	"silverscout/internal/spot/goldapi"
)

var (
	ErrQuotaExhausted      = errors.New("spot: all api keys exhausted for this month")
	ErrUpstreamUnreachable = errors.New("spot: provider unreachable")
	ErrUpstreamRejected    = errors.New("spot: provider rejected request")
)

// Fetcher is the upstream provider, satisfied by *goldapi.Client.
type Fetcher interface {
	GetPrice(ctx context.Context, apiKey, metal, currency string) (goldapi.Response, error)
}

// Ledger is the quota accounting the acquirer needs, satisfied by
// *quota.Ledger.
type Ledger interface {
	AvailableKey(keys []string) (string, bool)
	RemainingRequests(keys []string) int
	RecordUsage(ctx context.Context, key string) error
}

type Config struct {
	Keys     []string // priority order
	Metal    string   // default XAG
	Currency string   // default EUR
}

// Acquirer returns the spot price for one run. It makes at most one
// upstream attempt per call and never retries.
type Acquirer struct {
	cfg     Config
	cache   *Cache
	ledger  Ledger
	fetcher Fetcher
	log     *slog.Logger
	now     func() time.Time
}

func NewAcquirer(cfg Config, cache *Cache, ledger Ledger, fetcher Fetcher, log *slog.Logger) *Acquirer {
	if cfg.Metal == "" {
		cfg.Metal = "XAG"
	}
	if cfg.Currency == "" {
		cfg.Currency = "EUR"
	}
	if log == nil {
		log = slog.Default()
	}
	return &Acquirer{cfg: cfg, cache: cache, ledger: ledger, fetcher: fetcher, log: log, now: time.Now}
}

// WithClock overrides time.Now, mainly for tests.
func (a *Acquirer) WithClock(now func() time.Time) *Acquirer {
	a.now = now
	return a
}

// SpotPrice returns the price per troy ounce rounded to cents.
func (a *Acquirer) SpotPrice(ctx context.Context) (decimal.Decimal, error) {
	now := a.now()
	if p, ok, err := a.cache.Fresh(ctx, now); err != nil {
		return decimal.Zero, err
	} else if ok {
		a.log.Info("using cached spot price", "price", p.Amount.StringFixed(2), "age", p.Age(now).Round(time.Minute).String())
		return p.Amount, nil
	}

	key, ok := a.ledger.AvailableKey(a.cfg.Keys)
	if !ok {
		return decimal.Zero, ErrQuotaExhausted
	}
	a.log.Info("fetching spot price", "key_id", quota.KeyID(key), "remaining", a.ledger.RemainingRequests(a.cfg.Keys))

	res, err := a.fetcher.GetPrice(ctx, key, a.cfg.Metal, a.cfg.Currency)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %v", ErrUpstreamUnreachable, err)
	}

	// The provider bills every answered call, usable or not.
	if err := a.ledger.RecordUsage(ctx, key); err != nil {
		return decimal.Zero, err
	}

	if !res.OK() {
		return decimal.Zero, fmt.Errorf("%w: %s", ErrUpstreamRejected, res.Reason())
	}

	price := res.Price.Round(2)
	if !price.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: non-positive price %s", ErrUpstreamRejected, price)
	}
	if err := a.cache.Put(ctx, Price{Amount: price, FetchedAt: now.UTC()}); err != nil {
		return decimal.Zero, err
	}
	return price, nil
}
