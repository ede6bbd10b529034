// Package pipeline runs one deal-detection pass:
//
//	Init -> QuotaCheck -> PriceAcquired -> Scraping -> Evaluating -> Notifying -> Persisting -> Done
//
// Missing credentials stop the run in Init. A failed spot price stops it
// after QuotaCheck. Everything after that degrades per source or per
// deal instead of aborting.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"silverscout/internal/aggregate"
	"silverscout/internal/deal"
	"silverscout/internal/notified"
	"silverscout/internal/product"
	"silverscout/internal/quota"
	"silverscout/internal/sink"
	"silverscout/internal/spot"
	"silverscout/internal/state"
)

var (
	// ErrConfigMissing means required credentials are absent; nothing ran.
	ErrConfigMissing = errors.New("pipeline: required configuration missing")
	// ErrStateStore wraps any failure to read or write the state records.
	ErrStateStore = errors.New("pipeline: state store")
)

// Mirror copies the state records somewhere after a run, satisfied by
// *gist.Mirror.
type Mirror interface {
	Sync(ctx context.Context, store state.Store) (int, error)
}

type Options struct {
	// Missing names required credentials that are not configured.
	Missing []string

	APIKeys         []string // priority order
	Metal           string
	Currency        string
	FreshnessWindow time.Duration
	MonthlyLimit    int
	// SkipSpot runs without a spot price. Only valid for policies that do
	// not compare against spot.
	SkipSpot bool

	Policy         deal.Policy
	MaxConcurrency int
}

// Driver wires the components of a run. It holds no state between runs;
// every Run reloads the ledgers from the store.
type Driver struct {
	opts    Options
	store   state.Store
	fetcher spot.Fetcher
	sources []product.Source
	sink    sink.Sink
	mirror  Mirror
	log     *slog.Logger
	now     func() time.Time
	runID   func() string
}

func New(opts Options, store state.Store, fetcher spot.Fetcher, sources []product.Source, out sink.Sink, log *slog.Logger) *Driver {
	if opts.Policy == nil {
		opts.Policy = deal.All{}
	}
	if opts.MaxConcurrency <= 0 {
		opts.MaxConcurrency = 1
	}
	if log == nil {
		log = slog.Default()
	}
	return &Driver{
		opts:    opts,
		store:   store,
		fetcher: fetcher,
		sources: sources,
		sink:    out,
		log:     log,
		now:     time.Now,
		runID:   uuid.NewString,
	}
}

// WithMirror enables the post-run state mirror.
func (d *Driver) WithMirror(m Mirror) *Driver {
	d.mirror = m
	return d
}

// WithClock overrides time.Now, mainly for tests.
func (d *Driver) WithClock(now func() time.Time) *Driver {
	d.now = now
	return d
}

// run is the mutable state of a single pass.
type run struct {
	*Driver
	log      *slog.Logger
	sum      Summary
	quota    *quota.Ledger
	notified *notified.Ledger
}

// Run executes one pass and returns its summary. The summary is always
// produced; Summary.Err carries the reason a run stopped early or failed
// to persist.
func (d *Driver) Run(ctx context.Context) Summary {
	r := &run{Driver: d, sum: Summary{RunID: d.runID(), State: Init}}
	r.log = d.log.With("run_id", r.sum.RunID)
	start := d.now()

	r.execute(ctx)

	r.sum.Duration = d.now().Sub(start)
	r.sum.Log(r.log)
	return r.sum
}

func (r *run) enter(s State) {
	r.sum.State = s
	r.log.Debug("state", "state", string(s))
}

func (r *run) execute(ctx context.Context) {
	if len(r.opts.Missing) > 0 {
		r.sum.Err = fmt.Errorf("%w: %s", ErrConfigMissing, strings.Join(r.opts.Missing, ", "))
		return
	}
	if err := r.load(ctx); err != nil {
		r.sum.Err = fmt.Errorf("%w: %w", ErrStateStore, err)
		return
	}

	r.enter(QuotaCheck)
	spotPrice, err := r.spotPrice(ctx)
	if err != nil {
		r.sum.Err = err
		return
	}
	r.sum.SpotPrice = spotPrice
	r.enter(PriceAcquired)

	r.enter(Scraping)
	listings := r.scrape(ctx)

	r.enter(Evaluating)
	pending := r.evaluate(listings, spotPrice)

	r.enter(Notifying)
	r.notify(ctx, pending)

	r.enter(Persisting)
	if err := r.persist(ctx); err != nil {
		r.sum.Err = fmt.Errorf("%w: %w", ErrStateStore, err)
		return
	}
	r.mirrorState(ctx)
	r.enter(Done)
}

func (r *run) load(ctx context.Context) error {
	var err error
	r.quota, err = quota.Load(ctx, r.store, r.opts.MonthlyLimit, quota.WithClock(r.now))
	if err != nil {
		return err
	}
	r.notified, err = notified.Load(ctx, r.store)
	if err != nil {
		return err
	}
	if derr := r.notified.Discarded(); derr != nil {
		r.log.Warn("notified deals record unreadable, starting empty", "err", derr)
	}
	return nil
}

func (r *run) spotPrice(ctx context.Context) (decimal.Decimal, error) {
	if r.opts.SkipSpot {
		return decimal.Zero, nil
	}
	acq := spot.NewAcquirer(spot.Config{
		Keys:     r.opts.APIKeys,
		Metal:    r.opts.Metal,
		Currency: r.opts.Currency,
	}, &spot.Cache{Store: r.store, TTL: r.opts.FreshnessWindow}, r.quota, r.fetcher, r.log).WithClock(r.now)

	price, err := acq.SpotPrice(ctx)
	switch {
	case err == nil:
		r.log.Info("spot price acquired", "price", price.StringFixed(2),
			"quota_remaining", r.quota.RemainingRequests(r.opts.APIKeys))
		return price, nil
	case errors.Is(err, spot.ErrQuotaExhausted),
		errors.Is(err, spot.ErrUpstreamUnreachable),
		errors.Is(err, spot.ErrUpstreamRejected):
		return decimal.Zero, err
	}
	return decimal.Zero, fmt.Errorf("%w: %w", ErrStateStore, err)
}

// scrape fetches every source, at most MaxConcurrency at a time, and
// merges the results in source order.
func (r *run) scrape(ctx context.Context) []product.Listing {
	results := make([]aggregate.SourceResult, len(r.sources))
	var g errgroup.Group
	g.SetLimit(r.opts.MaxConcurrency)
	for i, src := range r.sources {
		g.Go(func() error {
			results[i] = r.fetchSource(ctx, src)
			return nil
		})
	}
	_ = g.Wait()

	listings, failed := aggregate.Merge(results)
	r.sum.FailedSources = failed
	r.sum.ProductsSeen = len(listings)
	return listings
}

func (r *run) fetchSource(ctx context.Context, src product.Source) aggregate.SourceResult {
	name := src.Name()
	log := r.log.With("source", name)
	res := aggregate.SourceResult{Source: name}

	products, err := src.Fetch(ctx)
	if err != nil {
		var se *product.ScrapeError
		if !errors.As(err, &se) {
			err = &product.ScrapeError{Source: name, Err: err}
		}
		log.Warn("source failed", "err", err)
		res.Err = err
		return res
	}
	for _, p := range products {
		if err := p.Validate(); err != nil {
			log.Warn("dropping invalid product", "url", p.URL, "name", p.Name, "err", err)
			continue
		}
		res.Products = append(res.Products, p)
	}
	log.Info("source scraped", "products", len(res.Products), "dropped", len(products)-len(res.Products))
	return res
}

func (r *run) evaluate(listings []product.Listing, spotPrice decimal.Decimal) []deal.Deal {
	var pending []deal.Deal
	for _, l := range listings {
		if !r.opts.Policy.Qualifies(l.Product, spotPrice) {
			continue
		}
		r.sum.DealsFound++
		if r.notified.WasNotified(l.URL, l.PricePerUnit, l.TotalPrice) {
			r.sum.Skipped++
			r.log.Debug("already notified", "url", l.URL)
			continue
		}
		pending = append(pending, deal.Deal{Listing: l, Spot: spotPrice})
	}
	r.log.Info("deals evaluated", "policy", r.opts.Policy.Name(), "found", r.sum.DealsFound,
		"pending", len(pending), "skipped", r.sum.Skipped)
	return pending
}

// notify hands pending deals to the sink and marks only the delivered ones.
func (r *run) notify(ctx context.Context, pending []deal.Deal) {
	if len(pending) == 0 {
		return
	}
	rep := r.sink.Deliver(ctx, pending)

	byURL := make(map[string]deal.Deal, len(pending))
	for _, d := range pending {
		byURL[d.URL] = d
	}
	delivered := 0
	for _, u := range rep.Delivered {
		d, ok := byURL[u]
		if !ok {
			continue
		}
		r.notified.MarkNotified(d.URL, d.PricePerUnit, d.TotalPrice)
		delete(byURL, u)
		delivered++
	}
	for _, err := range rep.Errors {
		r.log.Warn("send failed", "sink", r.sink.Name(), "err", err)
	}

	r.sum.Sent += rep.Sent
	r.sum.Accepted += rep.Accepted
	r.sum.Failed += len(pending) - delivered
}

// persist writes both ledgers once. The quota ledger normally saved
// itself when usage was recorded; Flush only retries a pending write.
func (r *run) persist(ctx context.Context) error {
	if err := r.notified.Save(ctx); err != nil {
		return err
	}
	return r.quota.Flush(ctx)
}

func (r *run) mirrorState(ctx context.Context) {
	if r.mirror == nil {
		return
	}
	n, err := r.mirror.Sync(ctx, r.store)
	if err != nil {
		r.log.Warn("state mirror failed", "err", err)
		return
	}
	r.log.Info("state mirrored", "files", n)
}
