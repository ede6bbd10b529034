package source

import (
	"context"

	"github.com/PuerkitoBio/goquery"

	"silverscout/internal/product"
)

const argentorShopURL = "https://www.argentorshop.be/nl/zilver-kopen/zilveren-munten-kopen/"

// ArgentorShop scrapes the silver coin listing of argentorshop.be. Listing
// quantities are read from the product name.
type ArgentorShop struct {
	cfg Config
}

func NewArgentorShop(cfg Config) *ArgentorShop {
	return &ArgentorShop{cfg: cfg.withDefaults(argentorShopURL)}
}

func (a *ArgentorShop) Name() string { return "argentorshop_be" }

func (a *ArgentorShop) Fetch(ctx context.Context) ([]product.Product, error) {
	b, err := page(ctx, a.cfg, a.cfg.BaseURL)
	if err != nil {
		return nil, err
	}
	doc, err := document(b)
	if err != nil {
		return nil, err
	}
	var out []product.Product
	doc.Find(".product-item").Each(func(_ int, card *goquery.Selection) {
		if text(card.Find("span.text-green-700").First()) != "Op voorraad" {
			return
		}
		link := card.Find("a.product-item-link").First()
		href, _ := link.Attr("href")
		name := text(link)
		total, err := product.ParseEuro(text(card.Find("span.price").First()))
		if err != nil {
			return
		}
		qty, ok := product.ParseQuantityOz(name)
		if !ok {
			return
		}
		p, err := product.New(name, href, total, qty)
		if err != nil {
			return
		}
		out = append(out, p)
	})
	return out, nil
}
