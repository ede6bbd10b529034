package product

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Product is the canonical shape every retailer adapter returns.
// Amounts are EUR, quantity is troy ounces.
type Product struct {
	Name         string          `json:"name"`
	PricePerUnit decimal.Decimal `json:"price_per_oz"`
	TotalPrice   decimal.Decimal `json:"total_price"`
	UnitQuantity decimal.Decimal `json:"quantity_oz"`
	URL          string          `json:"url"`
	InStock      bool            `json:"in_stock"`
}

// Listing is a product tagged with the source that produced it.
type Listing struct {
	Product
	Source string `json:"source"`
}

// Source is implemented by every retailer adapter.
type Source interface {
	Name() string
	Fetch(ctx context.Context) ([]Product, error)
}

// ScrapeError wraps any failure of a single source.
type ScrapeError struct {
	Source string
	Err    error
}

func (e *ScrapeError) Error() string { return fmt.Sprintf("scrape %s: %v", e.Source, e.Err) }
func (e *ScrapeError) Unwrap() error { return e.Err }

var (
	ErrMissingURL      = errors.New("product: missing listing url")
	ErrNotInStock      = errors.New("product: not in stock")
	ErrBadQuantity     = errors.New("product: quantity must be positive")
	ErrBadTotal        = errors.New("product: total price must be positive")
	ErrInconsistentPPU = errors.New("product: price per unit does not match total / quantity")
)

var halfCent = decimal.New(5, -3)

// New builds an in-stock product and derives the per-ounce price from the
// total, rounded to cents. The quantity is kept at two decimals like the
// listing prices.
func New(name, url string, total, quantityOz decimal.Decimal) (Product, error) {
	p := Product{
		Name:         name,
		TotalPrice:   total.Round(2),
		UnitQuantity: quantityOz.Round(2),
		URL:          url,
		InStock:      true,
	}
	if p.UnitQuantity.IsPositive() {
		p.PricePerUnit = p.TotalPrice.Div(p.UnitQuantity).Round(2)
	}
	if err := p.Validate(); err != nil {
		return Product{}, err
	}
	return p, nil
}

// Validate checks the invariants adapters must satisfy. The per-ounce
// price may differ from total/quantity only by the rounding to cents.
func (p Product) Validate() error {
	if p.URL == "" {
		return ErrMissingURL
	}
	if !p.InStock {
		return ErrNotInStock
	}
	if !p.UnitQuantity.IsPositive() {
		return ErrBadQuantity
	}
	if !p.TotalPrice.IsPositive() {
		return ErrBadTotal
	}
	exact := p.TotalPrice.DivRound(p.UnitQuantity, 8)
	if p.PricePerUnit.Sub(exact).Abs().GreaterThan(halfCent) {
		return fmt.Errorf("%w: %s vs %s / %s", ErrInconsistentPPU, p.PricePerUnit, p.TotalPrice, p.UnitQuantity)
	}
	return nil
}
