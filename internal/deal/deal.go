// Package deal holds the buy/no-buy policy.
package deal

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"silverscout/internal/product"
)

// IsDeal reports whether the per-ounce price is within maxPremium of spot
// and the total is within hardCap. Both bounds are inclusive.
func IsDeal(p product.Product, spot, maxPremium, hardCap decimal.Decimal) bool {
	return p.PricePerUnit.LessThanOrEqual(spot.Add(maxPremium)) && p.TotalPrice.LessThanOrEqual(hardCap)
}

// Premium is how far the per-ounce price sits above spot.
func Premium(p product.Product, spot decimal.Decimal) decimal.Decimal {
	return p.PricePerUnit.Sub(spot)
}

// Policy decides which listings are handed to the sink.
type Policy interface {
	Name() string
	Qualifies(p product.Product, spot decimal.Decimal) bool
}

// Threshold is the spot-relative policy.
type Threshold struct {
	MaxPremium decimal.Decimal
	HardCap    decimal.Decimal
}

func (Threshold) Name() string { return "threshold" }

func (t Threshold) Qualifies(p product.Product, spot decimal.Decimal) bool {
	return IsDeal(p, spot, t.MaxPremium, t.HardCap)
}

// All passes every in-stock listing, leaving the decision to a downstream
// dashboard.
type All struct{}

func (All) Name() string { return "all" }

func (All) Qualifies(p product.Product, _ decimal.Decimal) bool { return p.InStock }

// NewPolicy builds the policy named in configuration.
func NewPolicy(name string, maxPremium, hardCap decimal.Decimal) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "threshold":
		return Threshold{MaxPremium: maxPremium, HardCap: hardCap}, nil
	case "all":
		return All{}, nil
	}
	return nil, fmt.Errorf("unknown deal policy %q", name)
}

// Deal is a listing that qualified, with the spot price it was judged
// against.
type Deal struct {
	product.Listing
	Spot decimal.Decimal
}

func (d Deal) Premium() decimal.Decimal { return Premium(d.Product, d.Spot) }
