// Package pipeline orchestrates one reconciliation run end to end:
// candidate discovery, roster merge, fact upsert, conflict routing, and
// run-history logging.
package pipeline

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/market-explorer/internal/model"
	"github.com/sells-group/market-explorer/internal/recon"
	"github.com/sells-group/market-explorer/internal/store"
)

// Options tunes a Pipeline.
type Options struct {
	// DryRun reconciles in memory but persists nothing.
	DryRun bool
}

// Pipeline wires the reconciliation engine to its collaborators.
type Pipeline struct {
	store      store.Store
	candidates []CandidateSource
	facts      FactSource
	sinks      []ConflictSink
	opts       Options
}

// New creates a Pipeline. Candidate sources are consulted in order; sinks
// receive the persisted conflict batch at the end of the run.
func New(st store.Store, candidates []CandidateSource, facts FactSource, sinks []ConflictSink, opts Options) *Pipeline {
	return &Pipeline{
		store:      st,
		candidates: candidates,
		facts:      facts,
		sinks:      sinks,
		opts:       opts,
	}
}

// Run reconciles one segment and returns its summary. The summary is
// appended to the run-history log on every outcome except an empty segment
// name; the returned error is non-nil only when the run could not complete.
func (p *Pipeline) Run(ctx context.Context, segment string) (*model.RunSummary, error) {
	if segment == "" {
		return nil, eris.New("pipeline: segment name is empty")
	}

	started := time.Now().UTC()
	summary := &model.RunSummary{
		ID:        uuid.NewString(),
		Segment:   segment,
		StartedAt: started,
	}
	log := zap.L().With(zap.String("run_id", summary.ID), zap.String("segment", segment))
	log.Info("pipeline: run started", zap.Bool("dry_run", p.opts.DryRun))

	roster, err := p.store.LoadRoster(ctx, segment)
	if err != nil {
		return p.finish(ctx, summary, model.RunStatusError), eris.Wrap(err, "pipeline: load roster")
	}
	table, err := p.store.LoadFacts(ctx, segment)
	if err != nil {
		return p.finish(ctx, summary, model.RunStatusError), eris.Wrap(err, "pipeline: load facts")
	}

	// Discovery failures are soft: a run with a dead screen still
	// reconciles whatever the other sources found.
	var incoming []model.Candidate
	for _, src := range p.candidates {
		batch, err := src.Candidates(ctx, segment)
		if err != nil {
			log.Warn("pipeline: candidate source failed",
				zap.String("source", src.Name()), zap.Error(err))
			continue
		}
		incoming = append(incoming, batch...)
	}

	merged := recon.MergeCandidates(segment, roster, incoming)
	summary.Added = merged.Added
	summary.EntityCount = len(merged.Roster)
	log.Info("pipeline: roster merged",
		zap.Int("incoming", len(incoming)),
		zap.Int("added", merged.Added),
		zap.Int("dropped_duplicate", merged.DroppedDuplicate),
		zap.Int("dropped_invalid", merged.DroppedInvalid),
	)

	if len(merged.Roster) == 0 {
		log.Warn("pipeline: no candidates for segment")
		return p.finish(ctx, summary, model.RunStatusNoCandidates), nil
	}

	if !p.opts.DryRun {
		if err := p.store.SaveRoster(ctx, segment, merged.Roster); err != nil {
			return p.finish(ctx, summary, model.RunStatusError), eris.Wrap(err, "pipeline: save roster")
		}
	}

	var conflicts []model.Conflict
	for _, entity := range merged.Roster {
		rows, err := p.facts.Facts(ctx, entity.Identifier)
		if err != nil {
			// Soft failure: the entity stays on the roster and gets
			// another chance next run.
			log.Warn("pipeline: fact fetch failed",
				zap.String("identifier", entity.Identifier), zap.Error(err))
			summary.Missing = append(summary.Missing, entity.Identifier)
			continue
		}

		res := recon.UpsertObservations(table, entity, p.facts.Provenance(), rows)
		table = res.Facts
		conflicts = append(conflicts, res.Conflicts...)
	}

	detectedAt := time.Now().UTC()
	for i := range conflicts {
		conflicts[i].RunID = summary.ID
		conflicts[i].DetectedAt = detectedAt
	}
	summary.Conflicts = len(conflicts)

	if !p.opts.DryRun {
		if err := p.store.SaveFacts(ctx, segment, table); err != nil {
			return p.finish(ctx, summary, model.RunStatusError), eris.Wrap(err, "pipeline: save facts")
		}
		if err := p.store.AppendConflicts(ctx, summary.ID, conflicts); err != nil {
			return p.finish(ctx, summary, model.RunStatusError), eris.Wrap(err, "pipeline: append conflicts")
		}

		// Mirrors are best effort; the durable queue is the store.
		for _, sink := range p.sinks {
			if err := sink.Publish(ctx, conflicts); err != nil {
				log.Warn("pipeline: conflict sink failed", zap.Error(err))
			}
		}
	}

	// Per-entity fetch failures do not degrade the run outcome: the run is
	// "ok" as long as any entity reconciled, with the stragglers listed in
	// Missing. Only a run where every entity failed is an error.
	status := model.RunStatusOK
	if len(summary.Missing) == len(merged.Roster) {
		status = model.RunStatusError
	}

	log.Info("pipeline: run finished",
		zap.String("status", string(status)),
		zap.Int("entities", summary.EntityCount),
		zap.Int("conflicts", summary.Conflicts),
		zap.Strings("missing", summary.Missing),
	)
	return p.finish(ctx, summary, status), nil
}

// finish stamps the summary and appends it to the run-history log. Logging
// failures never mask the run outcome.
func (p *Pipeline) finish(ctx context.Context, summary *model.RunSummary, status model.RunStatus) *model.RunSummary {
	summary.Status = status
	summary.FinishedAt = time.Now().UTC()
	summary.Duration = summary.FinishedAt.Sub(summary.StartedAt).Milliseconds()

	if !p.opts.DryRun {
		if err := p.store.AppendRunSummary(ctx, summary); err != nil {
			zap.L().Warn("pipeline: append run summary failed",
				zap.String("run_id", summary.ID), zap.Error(err))
		}
	}
	return summary
}
