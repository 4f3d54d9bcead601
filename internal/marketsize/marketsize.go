// Package marketsize finds and normalizes dollar-denominated market-size
// figures for a segment from web search snippets.
package marketsize

import (
	"context"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/market-explorer/internal/model"
	"github.com/sells-group/market-explorer/pkg/cse"
)

// figurePattern matches "$4.2 billion", "12,5 million", "USD 1 trillion" style
// figures inside prose.
var figurePattern = regexp.MustCompile(`(?i)\$?\s*([0-9][0-9.,]*)\s*(billion|million|trillion)`)

// yearPattern picks up the reference year when the snippet mentions one.
var yearPattern = regexp.MustCompile(`\b(20\d{2})\b`)

// Parse extracts the first market-size figure from a text and normalizes it
// to USD billions. The second return is false when no figure is present.
func Parse(text string) (float64, bool) {
	m := figurePattern.FindStringSubmatch(text)
	if m == nil {
		return 0, false
	}

	raw := strings.ReplaceAll(m[1], ",", "")
	n, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false
	}

	switch strings.ToLower(m[2]) {
	case "trillion":
		return n * 1000, true
	case "million":
		return n / 1000, true
	default:
		return n, true
	}
}

// Scraper searches the web for market-size estimates.
type Scraper struct {
	search cse.Client
}

// NewScraper creates a Scraper over the given search client.
func NewScraper(search cse.Client) *Scraper {
	return &Scraper{search: search}
}

// Scrape queries for "<segment> market size" and returns the first snippet
// that parses, with its source link as the citation.
func (s *Scraper) Scrape(ctx context.Context, segment string) (*model.MarketSize, error) {
	results, err := s.search.Search(ctx, segment+" market size")
	if err != nil {
		return nil, eris.Wrapf(err, "marketsize: search %q", segment)
	}

	for _, r := range results {
		figure, ok := Parse(r.Snippet)
		if !ok {
			continue
		}

		year := time.Now().Year()
		if m := yearPattern.FindStringSubmatch(r.Snippet); m != nil {
			year, _ = strconv.Atoi(m[1])
		}

		return &model.MarketSize{
			Segment:        segment,
			FigureBillions: figure,
			Year:           year,
			Citation:       r.Link,
			RecordedAt:     time.Now().UTC(),
		}, nil
	}

	zap.L().Info("marketsize: no figure found", zap.String("segment", segment),
		zap.Int("results", len(results)))
	return nil, nil
}
