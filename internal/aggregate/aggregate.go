package aggregate

import (
	"strings"

	"silverscout/internal/product"
)

// SourceResult is what one source produced in a run.
type SourceResult struct {
	Source   string
	Products []product.Product
	Err      error
}

// Merge flattens results into listings ordered by source (in the order
// given), then by discovery order within a source. A listing URL seen
// earlier wins; later duplicates are dropped. Failed sources contribute
// nothing and are returned by name.
func Merge(results []SourceResult) (listings []product.Listing, failed []string) {
	seen := make(map[string]struct{})
	for _, r := range results {
		if r.Err != nil {
			failed = append(failed, r.Source)
			continue
		}
		for _, p := range r.Products {
			key := NormalizeURL(p.URL)
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			listings = append(listings, product.Listing{Product: p, Source: r.Source})
		}
	}
	return listings, failed
}

// NormalizeURL trims whitespace and a trailing slash so the same listing
// linked two ways collapses to one key.
func NormalizeURL(u string) string {
	u = strings.TrimSpace(u)
	if len(u) > 1 {
		u = strings.TrimSuffix(u, "/")
	}
	return u
}

// Group is the listings of one source, in discovery order.
type Group struct {
	Source   string
	Listings []product.Listing
}

// BySource groups listings by source, keeping the order in which sources
// first appear.
func BySource(listings []product.Listing) []Group {
	idx := make(map[string]int)
	var out []Group
	for _, l := range listings {
		i, ok := idx[l.Source]
		if !ok {
			i = len(out)
			idx[l.Source] = i
			out = append(out, Group{Source: l.Source})
		}
		out[i].Listings = append(out[i].Listings, l)
	}
	return out
}
