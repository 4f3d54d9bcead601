package recon

import (
	"math"

	"go.uber.org/zap"

	"github.com/sells-group/market-explorer/internal/model"
	"github.com/sells-group/market-explorer/internal/ticker"
)

// ratioTolerance is the relative tolerance for comparing ratio metrics.
// Providers recompute margins upstream and round differently in the last
// decimal; treating those as conflicts would flood the review queue.
const ratioTolerance = 1e-6

// UpsertResult is the outcome of reconciling an observation batch for one
// entity against the segment fact table.
type UpsertResult struct {
	Facts          []model.Observation
	Added          int
	Conflicts      []model.Conflict
	Unchanged      int
	SkippedNull    int
	DroppedInvalid int
}

// factKey identifies one observation within a segment.
type factKey struct {
	identifier string // normalized
	period     int
	metric     model.Metric
}

// UpsertObservations reconciles incoming fact rows for one entity against
// the existing fact table for its segment. Per row:
//
//   - nil value: skipped.
//   - unknown metric or non-positive period: dropped as invalid.
//   - no stored observation for the key: inserted with the given provenance.
//   - stored value equal to the incoming value: no-op.
//   - stored value differs: the stored value is kept and a Conflict is
//     emitted for human review.
//
// Every input row lands in exactly one of those dispositions, so
// Added + len(Conflicts) + Unchanged + SkippedNull + DroppedInvalid
// == len(incoming).
// The input slice is not mutated. Re-running with the same inputs against
// the updated table adds nothing and re-reports the same conflicts.
func UpsertObservations(existing []model.Observation, entity model.Entity, provenance string, incoming []model.FactRow) UpsertResult {
	index := make(map[factKey]float64, len(existing))
	for _, o := range existing {
		index[factKey{ticker.Normalize(o.Identifier), o.Period, o.Metric}] = o.Value
	}

	facts := make([]model.Observation, len(existing), len(existing)+len(incoming))
	copy(facts, existing)

	norm := ticker.Normalize(entity.Identifier)
	res := UpsertResult{}

	for _, row := range incoming {
		if row.Value == nil {
			res.SkippedNull++
			continue
		}
		if !row.Metric.Known() || row.Period <= 0 {
			res.DroppedInvalid++
			zap.L().Debug("recon: dropped invalid observation",
				zap.String("segment", entity.Segment),
				zap.String("identifier", entity.Identifier),
				zap.Int("period", row.Period),
				zap.String("metric", string(row.Metric)),
			)
			continue
		}

		key := factKey{norm, row.Period, row.Metric}
		stored, ok := index[key]
		if !ok {
			facts = append(facts, model.Observation{
				Segment:    entity.Segment,
				Identifier: entity.Identifier,
				Period:     row.Period,
				Metric:     row.Metric,
				Value:      *row.Value,
				Provenance: provenance,
				IsEstimate: false,
			})
			index[key] = *row.Value
			res.Added++
			continue
		}

		if valuesEqual(row.Metric, stored, *row.Value) {
			res.Unchanged++
			continue
		}

		res.Conflicts = append(res.Conflicts, model.Conflict{
			Segment:       entity.Segment,
			EntityName:    entity.DisplayName,
			Period:        row.Period,
			Metric:        row.Metric,
			ExistingValue: stored,
			IncomingValue: *row.Value,
		})
	}

	res.Facts = facts
	return res
}

// valuesEqual compares a stored and an incoming value for one metric.
// Ratio metrics compare within a relative tolerance; everything else is
// exact.
func valuesEqual(m model.Metric, stored, incoming float64) bool {
	if stored == incoming {
		return true
	}
	if !m.Ratio() {
		return false
	}
	scale := math.Max(math.Abs(stored), math.Abs(incoming))
	return math.Abs(stored-incoming) <= ratioTolerance*scale
}
