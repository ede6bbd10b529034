// Package telegram delivers deals through the Telegram Bot API.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"silverscout/internal/deal"
	"silverscout/internal/sink"
)

const baseURL = "https://api.telegram.org"

// HTTPClient describes an HTTP client.
//
//go:generate mockgen -package=telegram_test -destination=mock_http_client_test.go -source=telegram.go HTTPClient
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Bot sends one HTML message per deal to a single chat.
type Bot struct {
	baseURL    string
	token      string
	chatID     string
	httpClient HTTPClient
}

// Option is a configuration option for the bot.
type Option func(*Bot)

// WithBaseURL sets the base URL for the Bot API.
func WithBaseURL(baseURL string) Option {
	return func(b *Bot) {
		b.baseURL = baseURL
	}
}

// WithHTTPClient sets the HTTP client for the Bot API.
func WithHTTPClient(httpClient HTTPClient) Option {
	return func(b *Bot) {
		b.httpClient = httpClient
	}
}

// New creates a bot posting to chatID.
func New(token, chatID string, options ...Option) *Bot {
	b := &Bot{
		baseURL:    baseURL,
		token:      token,
		chatID:     chatID,
		httpClient: http.DefaultClient,
	}
	for _, option := range options {
		option(b)
	}
	return b
}

func (b *Bot) Name() string { return "telegram" }

type sendMessageRequest struct {
	ChatID    string `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode"`
}

type apiResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

// Send posts text to the chat. It succeeds only on a 2xx answer whose
// body reports ok.
func (b *Bot) Send(ctx context.Context, text string) error {
	payload, err := json.Marshal(sendMessageRequest{ChatID: b.chatID, Text: text, ParseMode: "HTML"})
	if err != nil {
		return fmt.Errorf("encoding message: %w", err)
	}
	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", strings.TrimRight(b.baseURL, "/"), b.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := b.httpClient.Do(req)
	if err != nil {
		// The request URL carries the token; keep it out of logs.
		var uerr *url.Error
		if errors.As(err, &uerr) {
			err = uerr.Err
		}
		return fmt.Errorf("performing request: %w", err)
	}
	defer res.Body.Close()

	body, err := io.ReadAll(io.LimitReader(res.Body, 64<<10))
	if err != nil {
		return fmt.Errorf("reading body: %w", err)
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return fmt.Errorf("unexpected status code: %d", res.StatusCode)
	}
	var out apiResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	if !out.OK {
		return fmt.Errorf("api returned not ok: %s", out.Description)
	}
	return nil
}

// Deliver sends each deal as its own message. A failed message does not
// stop the rest.
func (b *Bot) Deliver(ctx context.Context, deals []deal.Deal) sink.Report {
	var r sink.Report
	for _, d := range deals {
		r.Sent++
		if err := b.Send(ctx, sink.FormatMessage(d)); err != nil {
			r.Errors = append(r.Errors, &sink.SendError{Sink: b.Name(), URLs: []string{d.URL}, Err: err})
			continue
		}
		r.Accepted++
		r.Delivered = append(r.Delivered, d.URL)
	}
	return r
}
