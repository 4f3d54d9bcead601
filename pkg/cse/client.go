// Package cse provides a client for the Google Custom Search API, used to
// find market-size references on the open web.
package cse

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rotisserie/eris"
)

// Client defines the Custom Search operations used by market sizing.
type Client interface {
	// Search runs a query and returns result snippets in rank order.
	Search(ctx context.Context, query string) ([]Result, error)
}

// Result is one search result.
type Result struct {
	Title   string
	Link    string
	Snippet string
}

// Option configures the Custom Search client.
type Option func(*httpClient)

// WithBaseURL sets a custom base URL (for testing).
func WithBaseURL(u string) Option {
	return func(c *httpClient) {
		c.baseURL = u
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

type httpClient struct {
	apiKey   string
	engineID string
	baseURL  string
	http     *http.Client
}

// NewClient creates a new Custom Search client for the given engine.
func NewClient(apiKey, engineID string, opts ...Option) Client {
	c := &httpClient{
		apiKey:   apiKey,
		engineID: engineID,
		baseURL:  "https://customsearch.googleapis.com",
		http: &http.Client{
			Timeout: 20 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type searchResponse struct {
	Items []struct {
		Title   string `json:"title"`
		Link    string `json:"link"`
		Snippet string `json:"snippet"`
	} `json:"items"`
}

func (c *httpClient) Search(ctx context.Context, query string) ([]Result, error) {
	reqURL := fmt.Sprintf("%s/customsearch/v1?key=%s&cx=%s&q=%s",
		c.baseURL, url.QueryEscape(c.apiKey), url.QueryEscape(c.engineID), url.QueryEscape(query))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "cse: create request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "cse: search")
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "cse: read response body")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, eris.Errorf("cse: unexpected status %d: %s", resp.StatusCode, string(body))
	}

	var sr searchResponse
	if err := json.Unmarshal(body, &sr); err != nil {
		return nil, eris.Wrap(err, "cse: decode response")
	}

	results := make([]Result, 0, len(sr.Items))
	for _, item := range sr.Items {
		results = append(results, Result{Title: item.Title, Link: item.Link, Snippet: item.Snippet})
	}
	return results, nil
}
