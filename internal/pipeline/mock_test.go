package pipeline

import (
	"context"

	"github.com/sells-group/market-explorer/internal/model"
)

// mockStore is an in-memory Store with per-method failure injection.
type mockStore struct {
	roster    map[string][]model.Entity
	facts     map[string][]model.Observation
	conflicts []model.Conflict
	summaries []model.RunSummary

	failLoadRoster      error
	failSaveRoster      error
	failSaveFacts       error
	failAppendConflicts error
	failAppendSummary   error

	savedRoster bool
	savedFacts  bool
}

func newMockStore() *mockStore {
	return &mockStore{
		roster: make(map[string][]model.Entity),
		facts:  make(map[string][]model.Observation),
	}
}

func (m *mockStore) LoadRoster(_ context.Context, segment string) ([]model.Entity, error) {
	if m.failLoadRoster != nil {
		return nil, m.failLoadRoster
	}
	return m.roster[segment], nil
}

func (m *mockStore) SaveRoster(_ context.Context, segment string, roster []model.Entity) error {
	if m.failSaveRoster != nil {
		return m.failSaveRoster
	}
	m.roster[segment] = roster
	m.savedRoster = true
	return nil
}

func (m *mockStore) LoadFacts(_ context.Context, segment string) ([]model.Observation, error) {
	return m.facts[segment], nil
}

func (m *mockStore) SaveFacts(_ context.Context, segment string, facts []model.Observation) error {
	if m.failSaveFacts != nil {
		return m.failSaveFacts
	}
	m.facts[segment] = facts
	m.savedFacts = true
	return nil
}

func (m *mockStore) AppendConflicts(_ context.Context, runID string, conflicts []model.Conflict) error {
	if m.failAppendConflicts != nil {
		return m.failAppendConflicts
	}
	m.conflicts = append(m.conflicts, conflicts...)
	return nil
}

func (m *mockStore) ListConflicts(_ context.Context, segment string, limit int) ([]model.Conflict, error) {
	return m.conflicts, nil
}

func (m *mockStore) AppendRunSummary(_ context.Context, summary *model.RunSummary) error {
	if m.failAppendSummary != nil {
		return m.failAppendSummary
	}
	m.summaries = append(m.summaries, *summary)
	return nil
}

func (m *mockStore) ListRunSummaries(_ context.Context, limit int) ([]model.RunSummary, error) {
	return m.summaries, nil
}

func (m *mockStore) AppendMarketSize(_ context.Context, size *model.MarketSize) error {
	return nil
}

func (m *mockStore) ListMarketSizes(_ context.Context, segment string, limit int) ([]model.MarketSize, error) {
	return nil, nil
}

func (m *mockStore) AppendInsight(_ context.Context, insight *model.Insight) error {
	return nil
}

func (m *mockStore) Migrate(_ context.Context) error { return nil }
func (m *mockStore) Close() error                    { return nil }

// mockCandidateSource returns a fixed batch or a fixed error.
type mockCandidateSource struct {
	name       string
	candidates []model.Candidate
	err        error
	calls      int
}

func (m *mockCandidateSource) Name() string { return m.name }

func (m *mockCandidateSource) Candidates(_ context.Context, _ string) ([]model.Candidate, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	return m.candidates, nil
}

// mockFactSource maps identifiers to fact rows; unknown identifiers fail.
type mockFactSource struct {
	rows map[string][]model.FactRow
}

func (m *mockFactSource) Provenance() string { return "TEST-FEED" }

func (m *mockFactSource) Facts(_ context.Context, identifier string) ([]model.FactRow, error) {
	rows, ok := m.rows[identifier]
	if !ok {
		return nil, errFactFetch
	}
	return rows, nil
}

// mockConflictSink records published batches.
type mockConflictSink struct {
	published [][]model.Conflict
	err       error
}

func (m *mockConflictSink) Publish(_ context.Context, conflicts []model.Conflict) error {
	m.published = append(m.published, conflicts)
	return m.err
}
