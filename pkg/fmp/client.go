// Package fmp provides a client for the Financial Modeling Prep API, the
// primary candidate screen and fact feed.
package fmp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Provenance is the feed tag stamped on observations sourced from FMP.
const Provenance = "FMP-API"

// Client defines the FMP operations used by the reconciliation run.
type Client interface {
	// Screen returns candidate companies for a sector keyword. A body that
	// is not a JSON array (FMP's "no match" shape) yields an empty result,
	// not an error.
	Screen(ctx context.Context, sector string, limit int) ([]ScreenHit, error)
	// Financials returns fact rows for one symbol across the income
	// statement, cash-flow statement, and company profile.
	Financials(ctx context.Context, symbol string, years int) ([]Fact, error)
}

// ScreenHit is one company returned by the stock screen.
type ScreenHit struct {
	Company string
	Symbol  string
}

// Fact is one (year, metric, value) row from the feed. A nil Value means
// the field was absent from the provider response.
type Fact struct {
	Year   int
	Metric string
	Value  *float64
}

// Option configures the FMP client.
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

// NewClient creates a new FMP client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: "https://financialmodelingprep.com",
		http: &http.Client{
			Timeout: 20 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type screenEntry struct {
	CompanyName string `json:"companyName"`
	Symbol      string `json:"symbol"`
}

func (c *httpClient) Screen(ctx context.Context, sector string, limit int) ([]ScreenHit, error) {
	reqURL := fmt.Sprintf("%s/api/v4/stock-screening?sector=%s&limit=%d&apikey=%s",
		c.baseURL, url.QueryEscape(sector), limit, url.QueryEscape(c.apiKey))

	body, err := c.get(ctx, reqURL)
	if err != nil {
		return nil, eris.Wrap(err, "fmp: screen")
	}

	var entries []screenEntry
	if err := json.Unmarshal(body, &entries); err != nil {
		// FMP answers "no sector match" with an object, not an array.
		zap.L().Info("fmp: screen returned no sector match", zap.String("sector", sector))
		return nil, nil
	}

	hits := make([]ScreenHit, 0, len(entries))
	for _, e := range entries {
		if e.CompanyName == "" {
			continue
		}
		hits = append(hits, ScreenHit{Company: e.CompanyName, Symbol: e.Symbol})
	}
	return hits, nil
}

// incomeEntry is one fiscal year of the income statement.
type incomeEntry struct {
	CalendarYear flexInt    `json:"calendarYear"`
	Revenue      *flexFloat `json:"revenue"`
	OpEx         *flexFloat `json:"operatingExpenses"`
	EBITDA       *flexFloat `json:"ebitda"`
	GrossMargin  *flexFloat `json:"grossProfitRatio"`
	NetMargin    *flexFloat `json:"netProfitMargin"`
	RDExpense    *flexFloat `json:"researchAndDevelopmentExpenses"`
}

// cashFlowEntry is one fiscal year of the cash-flow statement.
type cashFlowEntry struct {
	CalendarYear flexInt    `json:"calendarYear"`
	CapEx        *flexFloat `json:"capitalExpenditure"`
	FreeCashFlow *flexFloat `json:"freeCashFlow"`
}

// profileEntry is the company profile snapshot.
type profileEntry struct {
	Employees *flexFloat `json:"fullTimeEmployees"`
	Cash      *flexFloat `json:"cash"`
	Debt      *flexFloat `json:"debt"`
	LastDiv   *flexFloat `json:"lastDiv"`
}

func (c *httpClient) Financials(ctx context.Context, symbol string, years int) ([]Fact, error) {
	var income []incomeEntry
	if err := c.getJSON(ctx, fmt.Sprintf("%s/api/v3/income-statement/%s?limit=%d&apikey=%s",
		c.baseURL, url.PathEscape(symbol), years, url.QueryEscape(c.apiKey)), &income); err != nil {
		return nil, eris.Wrapf(err, "fmp: income statement %s", symbol)
	}

	var cashflow []cashFlowEntry
	if err := c.getJSON(ctx, fmt.Sprintf("%s/api/v3/cash-flow-statement/%s?limit=%d&apikey=%s",
		c.baseURL, url.PathEscape(symbol), years, url.QueryEscape(c.apiKey)), &cashflow); err != nil {
		return nil, eris.Wrapf(err, "fmp: cash flow statement %s", symbol)
	}

	var profile []profileEntry
	if err := c.getJSON(ctx, fmt.Sprintf("%s/api/v3/profile/%s?apikey=%s",
		c.baseURL, url.PathEscape(symbol), url.QueryEscape(c.apiKey)), &profile); err != nil {
		return nil, eris.Wrapf(err, "fmp: profile %s", symbol)
	}

	var facts []Fact
	for _, rec := range income {
		fy := int(rec.CalendarYear)
		facts = append(facts,
			Fact{fy, "Revenue", rec.Revenue.float()},
			Fact{fy, "Operating Expense", rec.OpEx.float()},
			Fact{fy, "EBITDA", rec.EBITDA.float()},
			Fact{fy, "Gross Margin", rec.GrossMargin.float()},
			Fact{fy, "Net Margin", rec.NetMargin.float()},
			Fact{fy, "R&D Expense", rec.RDExpense.float()},
		)
	}
	for _, rec := range cashflow {
		fy := int(rec.CalendarYear)
		facts = append(facts,
			Fact{fy, "CapEx", rec.CapEx.float()},
			Fact{fy, "Free Cash Flow", rec.FreeCashFlow.float()},
		)
	}
	if len(profile) > 0 {
		now := time.Now().Year()
		p := profile[0]
		facts = append(facts,
			Fact{now, "Employees", p.Employees.float()},
			Fact{now, "Cash & Equivalents", p.Cash.float()},
			Fact{now, "Total Debt", p.Debt.float()},
			Fact{now, "Dividend per Share", p.LastDiv.float()},
		)
	}
	return facts, nil
}

func (c *httpClient) get(ctx context.Context, reqURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "create request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "request failed")
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "read response body")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, eris.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
	}
	return body, nil
}

func (c *httpClient) getJSON(ctx context.Context, reqURL string, out any) error {
	body, err := c.get(ctx, reqURL)
	if err != nil {
		return err
	}
	return eris.Wrap(json.Unmarshal(body, out), "decode response")
}

// flexInt decodes a JSON number or a quoted number; FMP is inconsistent
// about which it sends for calendarYear.
type flexInt int

func (f *flexInt) UnmarshalJSON(data []byte) error {
	s := string(data)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	if s == "" || s == "null" {
		*f = 0
		return nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return eris.Wrapf(err, "fmp: parse int %q", s)
	}
	*f = flexInt(n)
	return nil
}

// flexFloat decodes a JSON number or a quoted number (fullTimeEmployees is
// a string in profile responses).
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(data []byte) error {
	s := string(data)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	if s == "" || s == "null" {
		*f = 0
		return nil
	}
	n, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return eris.Wrapf(err, "fmp: parse float %q", s)
	}
	*f = flexFloat(n)
	return nil
}

// float converts an optional flexFloat to *float64, nil when absent.
func (f *flexFloat) float() *float64 {
	if f == nil {
		return nil
	}
	v := float64(*f)
	return &v
}
