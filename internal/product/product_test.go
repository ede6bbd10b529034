package product

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestNew_DerivesPricePerUnit(t *testing.T) {
	cases := []struct {
		name  string
		total string
		qty   string
		want  string
	}{
		{"1 oz coin", "40.00", "1", "40"},
		{"10 oz bar", "355.47", "10", "35.55"},
		{"tube", "15000.33", "500", "30"},
		{"kilo", "1100.10", "32.1507", "34.22"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p, err := New(tc.name, "https://shop.example/"+tc.name, d(tc.total), d(tc.qty))
			require.NoError(t, err)
			require.True(t, p.PricePerUnit.Equal(d(tc.want)), "ppu=%s want %s", p.PricePerUnit, tc.want)
			require.True(t, p.InStock)

			// pricePerUnit * quantity stays within rounding of the total.
			exact := p.TotalPrice.DivRound(p.UnitQuantity, 8)
			require.True(t, p.PricePerUnit.Sub(exact).Abs().LessThanOrEqual(d("0.005")))
			if p.UnitQuantity.Equal(decimal.NewFromInt(1)) {
				require.True(t, p.PricePerUnit.Mul(p.UnitQuantity).Sub(p.TotalPrice).Abs().LessThanOrEqual(d("0.01")))
			}
		})
	}
}

func TestValidate_Rejects(t *testing.T) {
	good := Product{
		Name:         "Maple Leaf",
		PricePerUnit: d("40"),
		TotalPrice:   d("40"),
		UnitQuantity: d("1"),
		URL:          "https://shop.example/maple",
		InStock:      true,
	}
	require.NoError(t, good.Validate())

	cases := map[string]struct {
		mutate func(*Product)
		want   error
	}{
		"missing url":  {func(p *Product) { p.URL = "" }, ErrMissingURL},
		"out of stock": {func(p *Product) { p.InStock = false }, ErrNotInStock},
		"zero qty":     {func(p *Product) { p.UnitQuantity = decimal.Zero }, ErrBadQuantity},
		"zero total":   {func(p *Product) { p.TotalPrice = decimal.Zero }, ErrBadTotal},
		"ppu mismatch": {func(p *Product) { p.PricePerUnit = d("40.02") }, ErrInconsistentPPU},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			p := good
			tc.mutate(&p)
			err := p.Validate()
			require.Error(t, err)
			require.True(t, errors.Is(err, tc.want), "got %v", err)
		})
	}
}

func TestParseEuro(t *testing.T) {
	cases := map[string]string{
		"€ 2.725,24":    "2725.24",
		"85,80\u00a0€":  "85.8",
		"  1.234.567,8": "1234567.8",
		"€40":           "40",
	}
	for in, want := range cases {
		got, err := ParseEuro(in)
		require.NoError(t, err, in)
		require.True(t, got.Equal(d(want)), "%q -> %s want %s", in, got, want)
	}

	_, err := ParseEuro("op aanvraag")
	require.Error(t, err)
	_, err = ParseEuro("€")
	require.Error(t, err)
}

func TestParseQuantityOz(t *testing.T) {
	cases := []struct {
		name string
		want string
		ok   bool
	}{
		{"Monsterbox 500 x 1 troy ounce Maple Leaf", "500", true},
		{"Tube 25 x 1 once troy Philharmoniker", "25", true},
		{"Britannia 1 troy ounce zilveren munt", "1", true},
		{"10 Troy Ounce zilverbaar", "10", true},
		{"Zilverbaar 1 kilogram", "32.1507", true},
		{"Zilveren lepel", "0", false},
	}
	for _, tc := range cases {
		got, ok := ParseQuantityOz(tc.name)
		require.Equal(t, tc.ok, ok, tc.name)
		require.True(t, got.Equal(d(tc.want)), "%q -> %s", tc.name, got)
	}
}

func TestNormalizeSpace(t *testing.T) {
	require.Equal(t, "In voorraad", NormalizeSpace("  In \n voorraad\t"))
	require.Equal(t, "", NormalizeSpace("   "))
}

func TestScrapeError_Unwraps(t *testing.T) {
	inner := errors.New("boom")
	err := error(&ScrapeError{Source: "goldsilver_be", Err: inner})
	require.ErrorIs(t, err, inner)
	require.Contains(t, err.Error(), "goldsilver_be")
}
