// Package dashboard pushes listings to the SilverStack dashboard, which
// evaluates and stores deals on its side.
package dashboard

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"silverscout/internal/aggregate"
	"silverscout/internal/deal"
	"silverscout/internal/product"
	"silverscout/internal/sink"
)

// BatchSize is the most items the dashboard accepts per request.
const BatchSize = 50

// HTTPClient describes an HTTP client.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Item is one entry of a POST /api/deals batch.
type Item struct {
	Title    string      `json:"title"`
	PriceEUR json.Number `json:"price_eur"`
	URL      string      `json:"url"`
	Source   string      `json:"source"`
	ImageURL *string     `json:"image_url"`
}

// Client posts deal batches to <baseURL>/api/deals.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient HTTPClient
	log        *slog.Logger
}

func New(baseURL, apiKey string, httpClient HTTPClient, log *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if log == nil {
		log = slog.Default()
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), apiKey: apiKey, httpClient: httpClient, log: log}
}

func (c *Client) Name() string { return "dashboard" }

// Deliver posts deals grouped by source in batches of BatchSize. Batches
// are independent; every item of a batch the dashboard answered counts as
// delivered, whatever it reports as accepted.
func (c *Client) Deliver(ctx context.Context, deals []deal.Deal) sink.Report {
	listings := make([]product.Listing, len(deals))
	for i, d := range deals {
		listings[i] = d.Listing
	}

	var r sink.Report
	for _, g := range aggregate.BySource(listings) {
		for i := 0; i < len(g.Listings); i += BatchSize {
			batch := g.Listings[i:min(i+BatchSize, len(g.Listings))]
			urls := make([]string, len(batch))
			for j, l := range batch {
				urls[j] = l.URL
			}
			r.Sent += len(batch)

			accepted, err := c.post(ctx, batch)
			if err != nil {
				c.log.Warn("dashboard batch failed", "source", g.Source, "batch", i/BatchSize+1, "size", len(batch), "err", err)
				r.Errors = append(r.Errors, &sink.SendError{Sink: c.Name(), URLs: urls, Err: err})
				continue
			}
			c.log.Info("dashboard batch sent", "source", g.Source, "batch", i/BatchSize+1, "size", len(batch), "accepted", accepted)
			r.Accepted += accepted
			r.Delivered = append(r.Delivered, urls...)
		}
	}
	return r
}

type postResponse struct {
	Accepted *int `json:"accepted"`
}

func (c *Client) post(ctx context.Context, batch []product.Listing) (int, error) {
	items := make([]Item, len(batch))
	for i, l := range batch {
		items[i] = Item{Title: l.Name, PriceEUR: json.Number(l.TotalPrice.StringFixed(2)), URL: l.URL, Source: l.Source}
	}
	payload, err := json.Marshal(items)
	if err != nil {
		return 0, fmt.Errorf("encoding batch: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/deals", bytes.NewReader(payload))
	if err != nil {
		return 0, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", c.apiKey)

	res, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("performing request: %w", err)
	}
	defer res.Body.Close()

	body, err := io.ReadAll(io.LimitReader(res.Body, 64<<10))
	if err != nil {
		return 0, fmt.Errorf("reading body: %w", err)
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return 0, fmt.Errorf("unexpected status code: %d", res.StatusCode)
	}
	var out postResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return 0, fmt.Errorf("decoding response: %w", err)
	}
	if out.Accepted == nil {
		return len(batch), nil
	}
	return *out.Accepted, nil
}
