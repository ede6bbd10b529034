// Package notified remembers which listing terms have already been
// alerted so a deal is announced once per (url, price) observation.
package notified

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"

	"silverscout/internal/state"
)

// Terms are the prices last notified for a listing.
type Terms struct {
	PricePerUnit decimal.Decimal `json:"price_per_oz"`
	TotalPrice   decimal.Decimal `json:"total_price"`
}

// MarshalJSON writes both amounts as JSON numbers, the form the chat
// worker formats with toFixed. Decoding accepts numbers or quoted numbers.
func (t Terms) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		PricePerUnit json.Number `json:"price_per_oz"`
		TotalPrice   json.Number `json:"total_price"`
	}{json.Number(t.PricePerUnit.String()), json.Number(t.TotalPrice.String())})
}

// Ledger is loaded once at the start of a run and saved once at the end.
type Ledger struct {
	store  state.Store
	deals  map[string]Terms
	loaded []byte
	dirty  bool

	discarded error
}

// Load reads the ledger from store. A missing record is an empty ledger,
// and so is one that does not decode; Discarded reports the latter. Only
// a store failure is an error.
func Load(ctx context.Context, store state.Store) (*Ledger, error) {
	raw, err := state.Load(ctx, store, state.KeyNotifiedDeals)
	if err != nil {
		return nil, fmt.Errorf("load notified deals: %w", err)
	}
	l := &Ledger{store: store, deals: map[string]Terms{}, loaded: raw}
	if len(bytes.TrimSpace(raw)) == 0 {
		return l, nil
	}
	if err := json.Unmarshal(raw, &l.deals); err != nil {
		l.deals = map[string]Terms{}
		l.discarded = fmt.Errorf("decode notified deals: %w", err)
	}
	if l.deals == nil {
		l.deals = map[string]Terms{}
	}
	return l, nil
}

// Discarded is the decode error of a stored record that Load replaced
// with an empty ledger, or nil.
func (l *Ledger) Discarded() error { return l.discarded }

// WasNotified is true only when url was notified with exactly these
// terms, compared at cent precision.
func (l *Ledger) WasNotified(url string, pricePerUnit, totalPrice decimal.Decimal) bool {
	prev, ok := l.deals[url]
	if !ok {
		return false
	}
	return prev.PricePerUnit.Round(2).Equal(pricePerUnit.Round(2)) &&
		prev.TotalPrice.Round(2).Equal(totalPrice.Round(2))
}

// MarkNotified records the terms for url, replacing earlier ones.
func (l *Ledger) MarkNotified(url string, pricePerUnit, totalPrice decimal.Decimal) {
	l.deals[url] = Terms{PricePerUnit: pricePerUnit.Round(2), TotalPrice: totalPrice.Round(2)}
	l.dirty = true
}

// Len is the number of listings with recorded terms.
func (l *Ledger) Len() int { return len(l.deals) }

// Save writes the ledger if it changed since Load.
func (l *Ledger) Save(ctx context.Context) error {
	if !l.dirty {
		return nil
	}
	b, err := json.MarshalIndent(l.deals, "", "  ")
	if err != nil {
		return fmt.Errorf("encode notified deals: %w", err)
	}
	if err := state.Swap(ctx, l.store, state.KeyNotifiedDeals, l.loaded, b); err != nil {
		return fmt.Errorf("save notified deals: %w", err)
	}
	l.loaded = b
	l.dirty = false
	return nil
}
