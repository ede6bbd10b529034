// Package gist mirrors the state records to a GitHub Gist, where the chat
// bot worker reads them for its status views.
package gist

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"silverscout/internal/state"
)

const baseURL = "https://api.github.com"

// HTTPClient describes an HTTP client.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

type Mirror struct {
	baseURL    string
	token      string
	gistID     string
	httpClient HTTPClient
}

// Option is a configuration option for the mirror.
type Option func(*Mirror)

func WithBaseURL(baseURL string) Option {
	return func(m *Mirror) { m.baseURL = baseURL }
}

func WithHTTPClient(httpClient HTTPClient) Option {
	return func(m *Mirror) { m.httpClient = httpClient }
}

func New(token, gistID string, options ...Option) *Mirror {
	m := &Mirror{baseURL: baseURL, token: token, gistID: gistID, httpClient: http.DefaultClient}
	for _, option := range options {
		option(m)
	}
	return m
}

type file struct {
	Content string `json:"content"`
}

type patchRequest struct {
	Files map[string]file `json:"files"`
}

// Sync uploads every state record present in store as <key>.json and
// returns the number of files sent. Missing records are left untouched
// in the gist.
func (m *Mirror) Sync(ctx context.Context, store state.Store) (int, error) {
	files := make(map[string]file, len(state.Keys))
	for _, key := range state.Keys {
		raw, err := state.Load(ctx, store, key)
		if err != nil {
			return 0, err
		}
		if raw != nil {
			files[key+".json"] = file{Content: string(raw)}
		}
	}
	if len(files) == 0 {
		return 0, nil
	}

	payload, err := json.Marshal(patchRequest{Files: files})
	if err != nil {
		return 0, fmt.Errorf("encoding gist: %w", err)
	}
	url := fmt.Sprintf("%s/gists/%s", strings.TrimRight(m.baseURL, "/"), m.gistID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, url, bytes.NewReader(payload))
	if err != nil {
		return 0, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", "token "+m.token)
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("Content-Type", "application/json")

	res, err := m.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("performing request: %w", err)
	}
	defer res.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(res.Body, 1<<20))

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return 0, fmt.Errorf("unexpected status code: %d", res.StatusCode)
	}
	return len(files), nil
}
