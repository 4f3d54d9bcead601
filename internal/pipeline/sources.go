package pipeline

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/market-explorer/internal/model"
	"github.com/sells-group/market-explorer/internal/ticker"
	"github.com/sells-group/market-explorer/pkg/fmp"
	"github.com/sells-group/market-explorer/pkg/notionq"
	"github.com/sells-group/market-explorer/pkg/serp"
)

// CandidateSource discovers company candidates for a segment. A source
// failure is soft: the run continues on the remaining sources.
type CandidateSource interface {
	Name() string
	Candidates(ctx context.Context, segment string) ([]model.Candidate, error)
}

// FactSource fetches observation rows for one entity identifier.
type FactSource interface {
	Provenance() string
	Facts(ctx context.Context, identifier string) ([]model.FactRow, error)
}

// ConflictSink receives the run's conflict batch after it has been
// persisted. Sink failures are soft.
type ConflictSink interface {
	Publish(ctx context.Context, conflicts []model.Conflict) error
}

// FMPCandidateSource screens candidates through the FMP stock screen.
type FMPCandidateSource struct {
	Client fmp.Client
	Limit  int
}

func (s *FMPCandidateSource) Name() string { return "fmp-screen" }

// originGICS marks candidates that came in through the sector screen.
const originGICS = "GICS"

func (s *FMPCandidateSource) Candidates(ctx context.Context, segment string) ([]model.Candidate, error) {
	hits, err := s.Client.Screen(ctx, segment, s.Limit)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: fmp screen")
	}

	candidates := make([]model.Candidate, 0, len(hits))
	for _, h := range hits {
		if !ticker.Valid(h.Symbol) {
			continue
		}
		candidates = append(candidates, model.Candidate{
			DisplayName: h.Company,
			Identifier:  h.Symbol,
			Origin:      originGICS,
		})
	}
	return candidates, nil
}

// SerpCandidateSource screens candidates through web search result titles.
type SerpCandidateSource struct {
	Client serp.Client
	Limit  int
}

func (s *SerpCandidateSource) Name() string { return "serp-search" }

// originWeb marks candidates extracted from web search results.
const originWeb = "Web"

func (s *SerpCandidateSource) Candidates(ctx context.Context, segment string) ([]model.Candidate, error) {
	hits, err := s.Client.ScreenCandidates(ctx, segment, s.Limit)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: serp screen")
	}

	candidates := make([]model.Candidate, 0, len(hits))
	for _, h := range hits {
		if !ticker.Valid(h.Symbol) {
			continue
		}
		candidates = append(candidates, model.Candidate{
			DisplayName: h.Company,
			Identifier:  h.Symbol,
			Origin:      originWeb,
		})
	}
	return candidates, nil
}

// FMPFactSource fetches financials through the FMP statement endpoints.
// Aliases maps provider metric spellings onto the canonical vocabulary and
// may be nil. Tag overrides the provenance stamped on new observations.
type FMPFactSource struct {
	Client  fmp.Client
	Years   int
	Aliases model.AliasTable
	Tag     string
}

func (s *FMPFactSource) Provenance() string {
	if s.Tag != "" {
		return s.Tag
	}
	return fmp.Provenance
}

func (s *FMPFactSource) Facts(ctx context.Context, identifier string) ([]model.FactRow, error) {
	facts, err := s.Client.Financials(ctx, identifier, s.Years)
	if err != nil {
		return nil, eris.Wrapf(err, "pipeline: fmp financials %s", identifier)
	}

	rows := make([]model.FactRow, 0, len(facts))
	for _, f := range facts {
		// Unknown labels pass through so the reconciler counts and logs
		// the drop.
		m, _ := s.Aliases.Resolve(f.Metric)
		rows = append(rows, model.FactRow{Period: f.Year, Metric: m, Value: f.Value})
	}
	return rows, nil
}

// NotionConflictSink mirrors conflicts into a Notion review database.
type NotionConflictSink struct {
	Queue *notionq.Queue
}

func (s *NotionConflictSink) Publish(ctx context.Context, conflicts []model.Conflict) error {
	entries := make([]notionq.Entry, 0, len(conflicts))
	for _, c := range conflicts {
		entries = append(entries, notionq.Entry{
			RunID:         c.RunID,
			Segment:       c.Segment,
			EntityName:    c.EntityName,
			Period:        c.Period,
			Metric:        string(c.Metric),
			ExistingValue: c.ExistingValue,
			IncomingValue: c.IncomingValue,
			DetectedAt:    c.DetectedAt,
		})
	}
	_, err := s.Queue.Publish(ctx, entries)
	return err
}
