package marketsize

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/market-explorer/pkg/cse"
)

func TestParse(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		text string
		want float64
		ok   bool
	}{
		{"billion with dollar", "The market was valued at $4.2 billion in 2025.", 4.2, true},
		{"million normalizes down", "estimated at $750 million", 0.75, true},
		{"trillion normalizes up", "a $1.5 trillion opportunity", 1500, true},
		{"no dollar sign", "worth 12 billion worldwide", 12, true},
		{"thousands separator", "reached $1,250 million", 1.25, true},
		{"case insensitive", "USD 3 BILLION", 3, true},
		{"first figure wins", "$2 billion today, $9 billion by 2030", 2, true},
		{"no figure", "the market is growing quickly", 0, false},
		{"bare number without unit", "about 500 companies", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, ok := Parse(tt.text)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.InDelta(t, tt.want, got, 1e-9)
			}
		})
	}
}

type fakeSearch struct {
	results []cse.Result
	err     error
	query   string
}

func (f *fakeSearch) Search(_ context.Context, query string) ([]cse.Result, error) {
	f.query = query
	return f.results, f.err
}

func TestScrape_FirstParsableSnippetWins(t *testing.T) {
	fake := &fakeSearch{results: []cse.Result{
		{Link: "https://example.com/a", Snippet: "an overview of the industry"},
		{Link: "https://example.com/b", Snippet: "valued at $4.2 billion in 2025"},
		{Link: "https://example.com/c", Snippet: "worth $9 billion"},
	}}

	ms, err := NewScraper(fake).Scrape(context.Background(), "Specialty Chemicals")
	require.NoError(t, err)
	require.NotNil(t, ms)

	assert.Equal(t, "Specialty Chemicals", ms.Segment)
	assert.InDelta(t, 4.2, ms.FigureBillions, 1e-9)
	assert.Equal(t, 2025, ms.Year)
	assert.Equal(t, "https://example.com/b", ms.Citation)
	assert.Equal(t, "Specialty Chemicals market size", fake.query)
}

func TestScrape_NoFigure(t *testing.T) {
	fake := &fakeSearch{results: []cse.Result{
		{Link: "https://example.com/a", Snippet: "nothing quantitative here"},
	}}

	ms, err := NewScraper(fake).Scrape(context.Background(), "Widgets")
	require.NoError(t, err)
	assert.Nil(t, ms)
}

func TestScrape_SearchError(t *testing.T) {
	fake := &fakeSearch{err: assert.AnError}

	_, err := NewScraper(fake).Scrape(context.Background(), "Widgets")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Widgets")
}
