package goldapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"
)

// TransportError means no HTTP response was received.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string { return fmt.Sprintf("performing request: %v", e.Err) }
func (e *TransportError) Unwrap() error { return e.Err }

// Response is a received answer, successful or not. Price is nil when the
// body carried no usable price.
type Response struct {
	StatusCode int
	Price      *decimal.Decimal
	Error      string
}

// OK reports whether the response carries a price.
func (r Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300 && r.Error == "" && r.Price != nil
}

// Reason describes why a received response is not usable.
func (r Response) Reason() string {
	switch {
	case r.Error != "":
		return r.Error
	case r.StatusCode < 200 || r.StatusCode >= 300:
		return fmt.Sprintf("unexpected status code: %d", r.StatusCode)
	case r.Price == nil:
		return "response has no price"
	}
	return ""
}

type priceBody struct {
	Price *decimal.Decimal `json:"price"`
	Error string           `json:"error"`
}

// GetPrice fetches the spot price of metal in currency, e.g. XAG/EUR.
//
// The returned error is non-nil only when the request could not be built
// or no response arrived (*TransportError). Every received response is
// returned as a Response, so the caller can account for it.
func (c *Client) GetPrice(ctx context.Context, apiKey, metal, currency string) (Response, error) {
	url := fmt.Sprintf("%s/api/%s/%s", strings.TrimRight(c.baseURL, "/"), metal, currency)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return Response{}, fmt.Errorf("creating request: %w", err)
	}
	req.Header = c.header.Clone()
	req.Header.Set("x-access-token", apiKey)
	req.Header.Set("Accept", "application/json")

	res, err := c.httpClient.Do(req)
	if err != nil {
		return Response{}, &TransportError{Err: err}
	}
	defer res.Body.Close()

	out := Response{StatusCode: res.StatusCode}
	b, err := io.ReadAll(io.LimitReader(res.Body, 64<<10))
	if err != nil {
		out.Error = fmt.Sprintf("reading body: %v", err)
		return out, nil
	}

	var body priceBody
	if err := json.Unmarshal(b, &body); err != nil {
		if out.Error = strings.TrimSpace(string(b)); out.Error == "" || len(out.Error) > 200 {
			out.Error = fmt.Sprintf("decoding response: %v", err)
		}
		return out, nil
	}
	out.Error = body.Error
	out.Price = body.Price
	return out, nil
}
