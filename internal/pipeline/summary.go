package pipeline

import (
	"errors"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
)

// State is a step of a run.
type State string

const (
	Init          State = "init"
	QuotaCheck    State = "quota_check"
	PriceAcquired State = "price_acquired"
	Scraping      State = "scraping"
	Evaluating    State = "evaluating"
	Notifying     State = "notifying"
	Persisting    State = "persisting"
	Done          State = "done"
)

// Summary reports one run. State is Done for a completed run, otherwise
// the step at which it stopped.
type Summary struct {
	RunID         string
	State         State
	SpotPrice     decimal.Decimal
	ProductsSeen  int
	DealsFound    int
	Sent          int
	Accepted      int
	Skipped       int
	Failed        int
	FailedSources []string
	Duration      time.Duration
	Err           error
}

// Fatal reports whether the run failed in a way the caller should
// surface as a non-zero exit: missing credentials or broken state.
// Failed sources, sends or spot lookups are not fatal.
func (s Summary) Fatal() bool {
	return errors.Is(s.Err, ErrConfigMissing) || errors.Is(s.Err, ErrStateStore)
}

// Log writes the summary as one line.
func (s Summary) Log(log *slog.Logger) {
	attrs := []any{
		"state", string(s.State),
		"spot_price", s.SpotPrice.StringFixed(2),
		"products_seen", s.ProductsSeen,
		"deals_found", s.DealsFound,
		"sent", s.Sent,
		"accepted", s.Accepted,
		"skipped", s.Skipped,
		"failed", s.Failed,
		"failed_sources", s.FailedSources,
		"duration", s.Duration.Round(time.Millisecond).String(),
	}
	if s.Err != nil {
		log.Error("run stopped", append(attrs, "err", s.Err)...)
		return
	}
	log.Info("run finished", attrs...)
}
