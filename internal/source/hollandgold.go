package source

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/shopspring/decimal"

	"silverscout/internal/product"
)

const hollandGoldURL = "https://www.hollandgold.nl/zilver-kopen/zilveren-munten-kopen.html?selectie=508&instock=1&sort=price.asc"

// HollandGold reads the schema.org ItemList that hollandgold.nl embeds as
// JSON-LD instead of scraping markup.
type HollandGold struct {
	cfg Config
}

func NewHollandGold(cfg Config) *HollandGold {
	return &HollandGold{cfg: cfg.withDefaults(hollandGoldURL)}
}

func (h *HollandGold) Name() string { return "hollandgold_nl" }

type ldNode struct {
	Type            string   `json:"@type"`
	Name            string   `json:"name"`
	ItemListElement []ldNode `json:"itemListElement"`
	Item            *ldNode  `json:"item"`
	Offers          *ldOffer `json:"offers"`
}

type ldOffer struct {
	Price        json.Number `json:"price"`
	Availability string      `json:"availability"`
	URL          string      `json:"url"`
}

func (h *HollandGold) Fetch(ctx context.Context) ([]product.Product, error) {
	b, err := page(ctx, h.cfg, h.cfg.BaseURL)
	if err != nil {
		return nil, err
	}
	doc, err := document(b)
	if err != nil {
		return nil, err
	}
	var out []product.Product
	doc.Find(`script[type="application/ld+json"]`).Each(func(_ int, s *goquery.Selection) {
		for _, list := range decodeLD(s.Text()) {
			if list.Type != "ItemList" {
				continue
			}
			for _, el := range list.ItemListElement {
				if p, ok := hollandGoldProduct(el); ok {
					out = append(out, p)
				}
			}
		}
	})
	return out, nil
}

// decodeLD accepts a single JSON-LD object or an array of them.
func decodeLD(raw string) []ldNode {
	raw = strings.TrimSpace(raw)
	var many []ldNode
	if err := json.Unmarshal([]byte(raw), &many); err == nil {
		return many
	}
	var one ldNode
	if err := json.Unmarshal([]byte(raw), &one); err == nil {
		return []ldNode{one}
	}
	return nil
}

func hollandGoldProduct(el ldNode) (product.Product, bool) {
	node := el
	if node.Type != "Product" && node.Item != nil {
		node = *node.Item
	}
	if node.Type != "Product" || node.Offers == nil {
		return product.Product{}, false
	}
	if !inStock(node.Offers.Availability) {
		return product.Product{}, false
	}
	total, err := decimal.NewFromString(node.Offers.Price.String())
	if err != nil || !total.IsPositive() {
		return product.Product{}, false
	}
	qty, ok := product.ParseQuantityOz(node.Name)
	if !ok {
		return product.Product{}, false
	}
	p, err := product.New(node.Name, node.Offers.URL, total, qty)
	if err != nil {
		return product.Product{}, false
	}
	return p, true
}

// inStock accepts both "InStock" and "https://schema.org/InStock".
func inStock(availability string) bool {
	a := availability
	if i := strings.LastIndex(a, "/"); i >= 0 {
		a = a[i+1:]
	}
	return a == "InStock"
}
