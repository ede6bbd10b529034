package aggregate

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"silverscout/internal/product"
)

func p(name, url string) product.Product {
	one := decimal.NewFromInt(1)
	return product.Product{Name: name, URL: url, PricePerUnit: one, TotalPrice: one, UnitQuantity: one, InStock: true}
}

func names(ls []product.Listing) []string {
	out := make([]string, 0, len(ls))
	for _, l := range ls {
		out = append(out, l.Source+"/"+l.Name)
	}
	return out
}

func TestMerge_StableOrderBySourceThenDiscovery(t *testing.T) {
	in := []SourceResult{
		{Source: "b", Products: []product.Product{p("b1", "u://b1"), p("b2", "u://b2")}},
		{Source: "a", Products: []product.Product{p("a1", "u://a1")}},
		{Source: "c", Products: []product.Product{p("c1", "u://c1"), p("c2", "u://c2")}},
	}
	got, failed := Merge(in)
	require.Empty(t, failed)
	require.Equal(t, []string{"b/b1", "b/b2", "a/a1", "c/c1", "c/c2"}, names(got))
}

func TestMerge_FailedSourcesReported(t *testing.T) {
	in := []SourceResult{
		{Source: "ok1", Products: []product.Product{p("x", "u://x")}},
		{Source: "broken", Products: []product.Product{p("ignored", "u://ignored")}, Err: errors.New("timeout")},
		{Source: "ok2", Products: []product.Product{p("y", "u://y")}},
	}
	got, failed := Merge(in)
	require.Equal(t, []string{"ok1/x", "ok2/y"}, names(got))
	require.Equal(t, []string{"broken"}, failed)
}

func TestMerge_DuplicateURLsFirstWins(t *testing.T) {
	in := []SourceResult{
		{Source: "a", Products: []product.Product{p("first", "https://shop/x/"), p("again", "https://shop/x")}},
		{Source: "b", Products: []product.Product{p("other", " https://shop/x ")}},
	}
	got, _ := Merge(in)
	require.Equal(t, []string{"a/first"}, names(got))
}

func TestBySource_KeepsFirstAppearanceOrder(t *testing.T) {
	ls := []product.Listing{
		{Product: p("1", "u1"), Source: "hollandgold_nl"},
		{Product: p("2", "u2"), Source: "goldsilver_be"},
		{Product: p("3", "u3"), Source: "hollandgold_nl"},
	}
	groups := BySource(ls)
	require.Len(t, groups, 2)
	require.Equal(t, "hollandgold_nl", groups[0].Source)
	require.Equal(t, []string{"hollandgold_nl/1", "hollandgold_nl/3"}, names(groups[0].Listings))
	require.Equal(t, "goldsilver_be", groups[1].Source)
	require.Len(t, groups[1].Listings, 1)
}

func TestNormalizeURL(t *testing.T) {
	cases := map[string]string{
		" https://a/b/ ": "https://a/b",
		"https://a/b":    "https://a/b",
		"/":              "/",
		"":               "",
	}
	for in, want := range cases {
		require.Equal(t, want, NormalizeURL(in), in)
	}
}
