package source

import (
	"context"
	"fmt"
	"regexp"
	"strconv"

	"github.com/PuerkitoBio/goquery"
	"github.com/shopspring/decimal"

	"silverscout/internal/product"
)

const goldSilverURL = "https://goldsilver.be/nl/84-1-oz-30-gr?orderby=price&orderway=asc&orderby1=quantity"

var (
	goldSilverInStock = map[string]bool{
		"In voorraad": true,
		"Product is beschikbaar met verschillende opties": true,
	}
	pageParamRe = regexp.MustCompile(`(?:[?&]|&amp;)p=(\d+)`)
)

// GoldSilver scrapes the paginated 1 oz category of goldsilver.be. Every
// listing in the category is a single troy ounce.
type GoldSilver struct {
	cfg Config
}

func NewGoldSilver(cfg Config) *GoldSilver {
	return &GoldSilver{cfg: cfg.withDefaults(goldSilverURL)}
}

func (g *GoldSilver) Name() string { return "goldsilver_be" }

func (g *GoldSilver) Fetch(ctx context.Context) ([]product.Product, error) {
	first, err := page(ctx, g.cfg, g.cfg.BaseURL)
	if err != nil {
		return nil, err
	}
	out, err := g.parse(first)
	if err != nil {
		return nil, err
	}
	for p := 2; p <= lastPage(first); p++ {
		b, err := page(ctx, g.cfg, fmt.Sprintf("%s&p=%d", g.cfg.BaseURL, p))
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", p, err)
		}
		items, err := g.parse(b)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", p, err)
		}
		out = append(out, items...)
	}
	return out, nil
}

// lastPage is the highest p=N referenced by pagination links.
func lastPage(b []byte) int {
	last := 1
	for _, m := range pageParamRe.FindAllSubmatch(b, -1) {
		if n, err := strconv.Atoi(string(m[1])); err == nil && n > last {
			last = n
		}
	}
	return last
}

func (g *GoldSilver) parse(b []byte) ([]product.Product, error) {
	doc, err := document(b)
	if err != nil {
		return nil, err
	}
	one := decimal.NewFromInt(1)
	var out []product.Product
	doc.Find("li.ajax_block_product").Each(func(_ int, card *goquery.Selection) {
		if !goldSilverInStock[text(card.Find("span.availability").First())] {
			return
		}
		link := card.Find("h5 a").First()
		href, _ := link.Attr("href")
		name := text(link)
		price, err := product.ParseEuro(text(card.Find("span.price.product-price").First()))
		if err != nil || name == "" {
			return
		}
		p, err := product.New(name, href, price, one)
		if err != nil {
			return
		}
		out = append(out, p)
	})
	return out, nil
}
