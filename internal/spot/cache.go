package spot

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"silverscout/internal/state"
)

// Price is the cached spot price per troy ounce.
type Price struct {
	Amount    decimal.Decimal `json:"price"`
	FetchedAt time.Time       `json:"fetched_at"`
}

// priceRecord decodes the stored form; fetched_at is parsed separately.
type priceRecord struct {
	Price     decimal.Decimal `json:"price"`
	FetchedAt json.RawMessage `json:"fetched_at"`
}

// MarshalJSON writes price as a JSON number and fetched_at as Unix
// seconds, the form the chat worker reads.
func (p Price) MarshalJSON() ([]byte, error) {
	secs := decimal.NewFromInt(p.FetchedAt.UnixMicro()).Shift(-6)
	return json.Marshal(struct {
		Price     json.Number `json:"price"`
		FetchedAt json.Number `json:"fetched_at"`
	}{json.Number(p.Amount.String()), json.Number(secs.String())})
}

// UnmarshalJSON accepts fetched_at as Unix seconds (fractional allowed)
// or as an RFC 3339 string, and price as a number or a quoted number.
func (p *Price) UnmarshalJSON(b []byte) error {
	var rec priceRecord
	if err := json.Unmarshal(b, &rec); err != nil {
		return err
	}
	p.Amount = rec.Price
	p.FetchedAt = time.Time{}
	switch raw := bytes.TrimSpace(rec.FetchedAt); {
	case len(raw) == 0, bytes.Equal(raw, []byte("null")):
	case raw[0] == '"':
		if err := json.Unmarshal(raw, &p.FetchedAt); err != nil {
			return fmt.Errorf("fetched_at: %w", err)
		}
	default:
		secs, err := decimal.NewFromString(string(raw))
		if err != nil {
			return fmt.Errorf("fetched_at: %w", err)
		}
		p.FetchedAt = time.UnixMicro(secs.Shift(6).IntPart()).UTC()
	}
	return nil
}

// Age is how old the price is at now.
func (p Price) Age(now time.Time) time.Duration { return now.Sub(p.FetchedAt) }

// Cache persists the last fetched spot price in the state store.
type Cache struct {
	Store state.Store
	TTL   time.Duration
}

// Get returns the cached price regardless of age; ok is false when
// nothing usable is stored. A corrupt record reads as a miss.
func (c *Cache) Get(ctx context.Context) (Price, bool, error) {
	raw, err := state.Load(ctx, c.Store, state.KeySpotPriceCache)
	if err != nil {
		return Price{}, false, fmt.Errorf("load spot cache: %w", err)
	}
	if raw == nil {
		return Price{}, false, nil
	}
	var p Price
	if err := json.Unmarshal(raw, &p); err != nil || p.FetchedAt.IsZero() {
		return Price{}, false, nil
	}
	return p, true, nil
}

// Fresh returns the cached price only while its age is below TTL.
func (c *Cache) Fresh(ctx context.Context, now time.Time) (Price, bool, error) {
	p, ok, err := c.Get(ctx)
	if err != nil || !ok {
		return Price{}, false, err
	}
	if c.TTL <= 0 || p.Age(now) >= c.TTL {
		return p, false, nil
	}
	return p, true, nil
}

// Put overwrites the cached price.
func (c *Cache) Put(ctx context.Context, p Price) error {
	b, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return fmt.Errorf("encode spot cache: %w", err)
	}
	if err := c.Store.Set(ctx, state.KeySpotPriceCache, b); err != nil {
		return fmt.Errorf("save spot cache: %w", err)
	}
	return nil
}
