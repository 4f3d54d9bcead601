package pipeline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/market-explorer/internal/model"
	"github.com/sells-group/market-explorer/pkg/fmp"
	"github.com/sells-group/market-explorer/pkg/serp"
)

type fakeFMP struct {
	hits  []fmp.ScreenHit
	facts []fmp.Fact
	err   error
}

func (f *fakeFMP) Screen(_ context.Context, _ string, _ int) ([]fmp.ScreenHit, error) {
	return f.hits, f.err
}

func (f *fakeFMP) Financials(_ context.Context, _ string, _ int) ([]fmp.Fact, error) {
	return f.facts, f.err
}

type fakeSerp struct {
	hits []serp.Candidate
	err  error
}

func (f *fakeSerp) ScreenCandidates(_ context.Context, _ string, _ int) ([]serp.Candidate, error) {
	return f.hits, f.err
}

func TestFMPCandidateSource_FiltersInvalidSymbols(t *testing.T) {
	src := &FMPCandidateSource{Client: &fakeFMP{hits: []fmp.ScreenHit{
		{Company: "Acme Corp", Symbol: "ACM"},
		{Company: "Numbers Only", Symbol: "12345"},
		{Company: "Too Long", Symbol: "ABCDEF"},
		{Company: "Empty", Symbol: ""},
	}}, Limit: 30}

	got, err := src.Candidates(context.Background(), "Widgets")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, model.Candidate{DisplayName: "Acme Corp", Identifier: "ACM", Origin: "GICS"}, got[0])
}

func TestSerpCandidateSource_TagsOrigin(t *testing.T) {
	src := &SerpCandidateSource{Client: &fakeSerp{hits: []serp.Candidate{
		{Company: "Bolt Industries", Symbol: "BLT"},
	}}, Limit: 20}

	got, err := src.Candidates(context.Background(), "Widgets")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Web", got[0].Origin)
}

func TestFMPFactSource_ResolvesAliases(t *testing.T) {
	src := &FMPFactSource{
		Client: &fakeFMP{facts: []fmp.Fact{
			{Year: 2023, Metric: "rev", Value: f(1000)},
			{Year: 2023, Metric: "Revenue", Value: f(1000)},
			{Year: 2023, Metric: "somethingElse", Value: f(5)},
		}},
		Years:   10,
		Aliases: model.AliasTable{"rev": model.MetricRevenue},
	}

	rows, err := src.Facts(context.Background(), "ACM")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, model.MetricRevenue, rows[0].Metric)
	assert.Equal(t, model.MetricRevenue, rows[1].Metric)
	// Unknown labels pass through for the reconciler to drop.
	assert.Equal(t, model.Metric("somethingElse"), rows[2].Metric)
	assert.False(t, rows[2].Metric.Known())
}

func TestFMPFactSource_ProvenanceTag(t *testing.T) {
	src := &FMPFactSource{Client: &fakeFMP{}, Years: 10}
	assert.Equal(t, fmp.Provenance, src.Provenance())

	src.Tag = "FMP-STAGING"
	assert.Equal(t, "FMP-STAGING", src.Provenance())
}

func TestFMPFactSource_NilAliasTable(t *testing.T) {
	src := &FMPFactSource{
		Client: &fakeFMP{facts: []fmp.Fact{{Year: 2023, Metric: "Revenue", Value: f(1000)}}},
		Years:  10,
	}

	rows, err := src.Facts(context.Background(), "ACM")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, model.MetricRevenue, rows[0].Metric)
}
