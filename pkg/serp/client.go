// Package serp provides a client for SerpAPI, the secondary web-search
// candidate screen.
package serp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"time"

	"github.com/rotisserie/eris"
)

// Client defines the SerpAPI operations used by the reconciliation run.
type Client interface {
	// ScreenCandidates searches for public companies in a segment and
	// returns (company, ticker) pairs extracted from result titles.
	ScreenCandidates(ctx context.Context, segment string, limit int) ([]Candidate, error)
}

// Candidate is one company extracted from search results.
type Candidate struct {
	Company string
	Symbol  string
}

// Option configures the SerpAPI client.
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
	apiKey  string
	baseURL string
	http    *http.Client
}

// NewClient creates a new SerpAPI client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: "https://serpapi.com",
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
	OrganicResults []organicResult `json:"organic_results"`
}

type organicResult struct {
	Title string `json:"title"`
}

// tickerPattern matches a parenthesized symbol in a result title, e.g.
// "Acme Corp (ACM) Stock Price".
var tickerPattern = regexp.MustCompile(`^(.*?)\s*\((\w{1,5})\)`)

func (c *httpClient) ScreenCandidates(ctx context.Context, segment string, limit int) ([]Candidate, error) {
	query := fmt.Sprintf("publicly traded %s companies stock ticker", segment)
	reqURL := fmt.Sprintf("%s/search.json?engine=google&q=%s&num=%d&api_key=%s",
		c.baseURL, url.QueryEscape(query), limit, url.QueryEscape(c.apiKey))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "serp: create request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "serp: search")
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "serp: read response body")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, eris.Errorf("serp: unexpected status %d: %s", resp.StatusCode, string(body))
	}

	var sr searchResponse
	if err := json.Unmarshal(body, &sr); err != nil {
		return nil, eris.Wrap(err, "serp: decode response")
	}

	var candidates []Candidate
	for _, r := range sr.OrganicResults {
		m := tickerPattern.FindStringSubmatch(r.Title)
		if m == nil {
			continue
		}
		candidates = append(candidates, Candidate{Company: m[1], Symbol: m[2]})
	}
	return candidates, nil
}
