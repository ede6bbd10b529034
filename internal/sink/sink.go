// Package sink defines where qualifying deals are delivered. A sink never
// fails the run: per-item failures are collected in its Report and the
// pipeline leaves undelivered deals unmarked so the next run retries them.
package sink

import (
	"context"
	"fmt"
	"html"
	"strings"

	"silverscout/internal/deal"
)

// Sink delivers a run's pending deals.
type Sink interface {
	Name() string
	Deliver(ctx context.Context, deals []deal.Deal) Report
}

// Report is the outcome of one Deliver call.
type Report struct {
	// Sent counts the deals handed to the remote side.
	Sent int
	// Accepted is what the remote side confirmed. A dashboard may accept
	// fewer than it receives when it already knows a listing.
	Accepted int
	// Delivered holds the listing URLs that reached the remote side.
	Delivered []string
	Errors    []error
}

// Add folds other into r.
func (r *Report) Add(other Report) {
	r.Sent += other.Sent
	r.Accepted += other.Accepted
	r.Delivered = append(r.Delivered, other.Delivered...)
	r.Errors = append(r.Errors, other.Errors...)
}

// SendError is a failed delivery of one message or batch.
type SendError struct {
	Sink string
	// URLs are the listings the failed request carried.
	URLs []string
	Err  error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("%s: send %d deal(s): %v", e.Sink, len(e.URLs), e.Err)
}

func (e *SendError) Unwrap() error { return e.Err }

// FormatMessage renders a deal as a Telegram HTML message.
func FormatMessage(d deal.Deal) string {
	var b strings.Builder
	b.WriteString("<b>🥈 Silver deal</b>\n\n")
	fmt.Fprintf(&b, "<a href=\"%s\">%s</a>\n", html.EscapeString(d.URL), html.EscapeString(d.Name))
	fmt.Fprintf(&b, "Source: %s\n", html.EscapeString(d.Source))
	fmt.Fprintf(&b, "Price: €%s/oz (total €%s, %s oz)\n",
		d.PricePerUnit.StringFixed(2), d.TotalPrice.StringFixed(2), d.UnitQuantity.String())
	if !d.Spot.IsZero() {
		fmt.Fprintf(&b, "Spot: €%s/oz, premium €%s/oz", d.Spot.StringFixed(2), d.Premium().StringFixed(2))
	}
	return strings.TrimRight(b.String(), "\n")
}
