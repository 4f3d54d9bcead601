// Package store persists rosters, fact tables, conflicts, and run history.
package store

import (
	"context"

	"github.com/sells-group/market-explorer/internal/model"
)

// Store is the tabular persistence boundary for the reconciliation engine.
// Loads of an absent segment return empty slices, not errors. Saves replace
// the rows for one segment transactionally, so a failed save never leaves a
// segment half-written.
type Store interface {
	// Roster
	LoadRoster(ctx context.Context, segment string) ([]model.Entity, error)
	SaveRoster(ctx context.Context, segment string, roster []model.Entity) error

	// Fact table
	LoadFacts(ctx context.Context, segment string) ([]model.Observation, error)
	SaveFacts(ctx context.Context, segment string, facts []model.Observation) error

	// Review queue (append-only)
	AppendConflicts(ctx context.Context, runID string, conflicts []model.Conflict) error
	ListConflicts(ctx context.Context, segment string, limit int) ([]model.Conflict, error)

	// Run-history log (append-only)
	AppendRunSummary(ctx context.Context, summary *model.RunSummary) error
	ListRunSummaries(ctx context.Context, limit int) ([]model.RunSummary, error)

	// Market size (append-only)
	AppendMarketSize(ctx context.Context, size *model.MarketSize) error
	ListMarketSizes(ctx context.Context, segment string, limit int) ([]model.MarketSize, error)

	// Insights (append-only)
	AppendInsight(ctx context.Context, insight *model.Insight) error

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
