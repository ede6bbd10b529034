// Package source holds the retailer adapters. Each adapter downloads its
// catalog pages and returns the in-stock listings as canonical products.
package source

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/PuerkitoBio/goquery"

	"silverscout/internal/product"
	"silverscout/internal/ratelimit"
)

// HTTPClient describes an HTTP client.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Config is shared by all adapters.
type Config struct {
	// BaseURL overrides the catalog URL, used by tests.
	BaseURL string
	Client  HTTPClient
	// Gate spaces out requests to the same retailer.
	Gate ratelimit.Gate
}

func (c Config) withDefaults(base string) Config {
	if c.BaseURL == "" {
		c.BaseURL = base
	}
	if c.Client == nil {
		c.Client = http.DefaultClient
	}
	if c.Gate == nil {
		c.Gate = ratelimit.None{}
	}
	return c
}

// Names lists the known adapters in their default order.
var Names = []string{"goldsilver_be", "argentorshop_be", "hollandgold_nl"}

// New builds the adapter registered under name.
func New(name string, cfg Config) (product.Source, error) {
	switch name {
	case "goldsilver_be":
		return NewGoldSilver(cfg), nil
	case "argentorshop_be":
		return NewArgentorShop(cfg), nil
	case "hollandgold_nl":
		return NewHollandGold(cfg), nil
	}
	return nil, fmt.Errorf("unknown source %q", name)
}

// page fetches url through the gate and returns its body.
func page(ctx context.Context, cfg Config, url string) ([]byte, error) {
	if err := cfg.Gate.Wait(ctx); err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml")
	res, err := cfg.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("performing request: %w", err)
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return nil, fmt.Errorf("GET %s -> %d", url, res.StatusCode)
	}
	b, err := io.ReadAll(io.LimitReader(res.Body, 8<<20))
	if err != nil {
		return nil, fmt.Errorf("reading body: %w", err)
	}
	return b, nil
}

func document(b []byte) (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(b))
	if err != nil {
		return nil, fmt.Errorf("parsing html: %w", err)
	}
	return doc, nil
}

func text(s *goquery.Selection) string { return product.NormalizeSpace(s.Text()) }
