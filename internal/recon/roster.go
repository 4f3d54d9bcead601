// Package recon implements the reconciliation engine: candidate merge into
// segment rosters and fact upsert with conflict routing. All functions are
// pure transforms over their inputs; persistence is the caller's concern.
package recon

import (
	"go.uber.org/zap"

	"github.com/sells-group/market-explorer/internal/model"
	"github.com/sells-group/market-explorer/internal/ticker"
)

// MergeResult is the outcome of reconciling a candidate batch against a
// segment roster.
type MergeResult struct {
	Roster           []model.Entity
	Added            int
	DroppedDuplicate int
	DroppedInvalid   int
}

// MergeCandidates merges freshly discovered candidates into the existing
// roster for one segment. Matching is by case-normalized identifier,
// first-seen-wins: an existing entry is never modified, and within the
// incoming batch only the first record for an identifier is kept. Records
// whose identifier fails validity are dropped; candidate sources are
// supposed to filter them, but the merge re-checks.
//
// The input roster is not mutated. Merging the same batch twice yields the
// same roster.
func MergeCandidates(segment string, existing []model.Entity, incoming []model.Candidate) MergeResult {
	seen := make(map[string]bool, len(existing)+len(incoming))
	for _, e := range existing {
		seen[ticker.Normalize(e.Identifier)] = true
	}

	roster := make([]model.Entity, len(existing), len(existing)+len(incoming))
	copy(roster, existing)

	res := MergeResult{}
	for _, c := range incoming {
		if !ticker.Valid(c.Identifier) {
			res.DroppedInvalid++
			zap.L().Debug("recon: dropped candidate with invalid identifier",
				zap.String("segment", segment),
				zap.String("identifier", c.Identifier),
				zap.String("origin", c.Origin),
			)
			continue
		}

		norm := ticker.Normalize(c.Identifier)
		if seen[norm] {
			res.DroppedDuplicate++
			continue
		}
		seen[norm] = true

		roster = append(roster, model.Entity{
			Segment:     segment,
			DisplayName: c.DisplayName,
			Identifier:  c.Identifier,
			Origin:      c.Origin,
		})
		res.Added++
	}

	res.Roster = roster
	return res
}
