package recon

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/market-explorer/internal/model"
)

func f(v float64) *float64 { return &v }

var acme = model.Entity{
	Segment:     "Widgets",
	DisplayName: "Acme",
	Identifier:  "ACM",
	Origin:      "GICS",
}

func TestUpsertObservations_InsertNew(t *testing.T) {
	t.Parallel()

	res := UpsertObservations(nil, acme, "FMP-API", []model.FactRow{
		{Period: 2023, Metric: model.MetricRevenue, Value: f(100)},
		{Period: 2023, Metric: model.MetricEBITDA, Value: f(25)},
	})

	require.Len(t, res.Facts, 2)
	assert.Equal(t, 2, res.Added)
	assert.Empty(t, res.Conflicts)

	o := res.Facts[0]
	assert.Equal(t, "Widgets", o.Segment)
	assert.Equal(t, "ACM", o.Identifier)
	assert.Equal(t, 2023, o.Period)
	assert.Equal(t, model.MetricRevenue, o.Metric)
	assert.Equal(t, 100.0, o.Value)
	assert.Equal(t, "FMP-API", o.Provenance)
	assert.False(t, o.IsEstimate)
}

// Equal incoming value: no-op, no conflict.
func TestUpsertObservations_EqualValueNoop(t *testing.T) {
	t.Parallel()

	existing := []model.Observation{
		{Segment: "Widgets", Identifier: "ACM", Period: 2023, Metric: model.MetricRevenue, Value: 100, Provenance: "FMP-API"},
	}

	res := UpsertObservations(existing, acme, "FMP-API", []model.FactRow{
		{Period: 2023, Metric: model.MetricRevenue, Value: f(100)},
	})

	assert.Zero(t, res.Added)
	assert.Empty(t, res.Conflicts)
	assert.Equal(t, 1, res.Unchanged)
	assert.Equal(t, existing, res.Facts)
}

// Differing incoming value: stored value kept, conflict emitted.
func TestUpsertObservations_ConflictKeepsStored(t *testing.T) {
	t.Parallel()

	existing := []model.Observation{
		{Segment: "Widgets", Identifier: "ACM", Period: 2023, Metric: model.MetricRevenue, Value: 100, Provenance: "FMP-API"},
	}

	res := UpsertObservations(existing, acme, "FMP-API", []model.FactRow{
		{Period: 2023, Metric: model.MetricRevenue, Value: f(105)},
	})

	assert.Zero(t, res.Added)
	require.Len(t, res.Conflicts, 1)

	c := res.Conflicts[0]
	assert.Equal(t, "Acme", c.EntityName)
	assert.Equal(t, 2023, c.Period)
	assert.Equal(t, model.MetricRevenue, c.Metric)
	assert.Equal(t, 100.0, c.ExistingValue)
	assert.Equal(t, 105.0, c.IncomingValue)

	// Stored value is untouched.
	require.Len(t, res.Facts, 1)
	assert.Equal(t, 100.0, res.Facts[0].Value)
}

func TestUpsertObservations_NullSkipped(t *testing.T) {
	t.Parallel()

	res := UpsertObservations(nil, acme, "FMP-API", []model.FactRow{
		{Period: 2023, Metric: model.MetricRevenue, Value: nil},
	})

	assert.Zero(t, res.Added)
	assert.Empty(t, res.Conflicts)
	assert.Equal(t, 1, res.SkippedNull)
	assert.Empty(t, res.Facts)
}

func TestUpsertObservations_InvalidDropped(t *testing.T) {
	t.Parallel()

	res := UpsertObservations(nil, acme, "FMP-API", []model.FactRow{
		{Period: 2023, Metric: model.Metric("Stock Price"), Value: f(10)},
		{Period: 0, Metric: model.MetricRevenue, Value: f(10)},
		{Period: -1, Metric: model.MetricRevenue, Value: f(10)},
	})

	assert.Zero(t, res.Added)
	assert.Equal(t, 3, res.DroppedInvalid)
	assert.Empty(t, res.Facts)
}

func TestUpsertObservations_Partition(t *testing.T) {
	t.Parallel()

	existing := []model.Observation{
		{Segment: "Widgets", Identifier: "ACM", Period: 2023, Metric: model.MetricRevenue, Value: 100},
		{Segment: "Widgets", Identifier: "ACM", Period: 2023, Metric: model.MetricEBITDA, Value: 25},
	}

	incoming := []model.FactRow{
		{Period: 2023, Metric: model.MetricRevenue, Value: f(100)},  // unchanged
		{Period: 2023, Metric: model.MetricEBITDA, Value: f(30)},    // conflict
		{Period: 2024, Metric: model.MetricRevenue, Value: f(120)},  // added
		{Period: 2024, Metric: model.MetricEBITDA, Value: nil},      // null skip
		{Period: 2024, Metric: model.Metric("Vibe"), Value: f(1)},   // invalid
		{Period: 2022, Metric: model.MetricFreeCashFlow, Value: f(9)}, // added
	}

	res := UpsertObservations(existing, acme, "FMP-API", incoming)

	total := res.Added + len(res.Conflicts) + res.Unchanged + res.SkippedNull + res.DroppedInvalid
	assert.Equal(t, len(incoming), total)
	assert.Equal(t, 2, res.Added)
	assert.Len(t, res.Conflicts, 1)
	assert.Equal(t, 1, res.Unchanged)
	assert.Equal(t, 1, res.SkippedNull)
	assert.Equal(t, 1, res.DroppedInvalid)
}

func TestUpsertObservations_Idempotent(t *testing.T) {
	t.Parallel()

	incoming := []model.FactRow{
		{Period: 2023, Metric: model.MetricRevenue, Value: f(100)},
		{Period: 2023, Metric: model.MetricEBITDA, Value: f(25)},
		{Period: 2022, Metric: model.MetricRevenue, Value: f(90)},
	}

	first := UpsertObservations(nil, acme, "FMP-API", incoming)
	require.Equal(t, 3, first.Added)

	second := UpsertObservations(first.Facts, acme, "FMP-API", incoming)
	assert.Zero(t, second.Added)
	assert.Empty(t, second.Conflicts)
	assert.Equal(t, 3, second.Unchanged)
	assert.Equal(t, first.Facts, second.Facts)
}

// Conflicts are re-detected on every run; they are not deduplicated
// against earlier conflict events.
func TestUpsertObservations_ConflictReemitted(t *testing.T) {
	t.Parallel()

	existing := []model.Observation{
		{Segment: "Widgets", Identifier: "ACM", Period: 2023, Metric: model.MetricRevenue, Value: 100},
	}
	incoming := []model.FactRow{
		{Period: 2023, Metric: model.MetricRevenue, Value: f(105)},
	}

	first := UpsertObservations(existing, acme, "FMP-API", incoming)
	second := UpsertObservations(first.Facts, acme, "FMP-API", incoming)

	require.Len(t, first.Conflicts, 1)
	require.Len(t, second.Conflicts, 1)
	assert.Equal(t, first.Conflicts, second.Conflicts)
}

// Keys already in the table keep their values through any upsert.
func TestUpsertObservations_NoDataLoss(t *testing.T) {
	t.Parallel()

	existing := []model.Observation{
		{Segment: "Widgets", Identifier: "ACM", Period: 2020, Metric: model.MetricRevenue, Value: 80},
		{Segment: "Widgets", Identifier: "ACM", Period: 2021, Metric: model.MetricRevenue, Value: 90},
	}

	res := UpsertObservations(existing, acme, "FMP-API", []model.FactRow{
		{Period: 2020, Metric: model.MetricRevenue, Value: f(85)},
		{Period: 2021, Metric: model.MetricRevenue, Value: f(90)},
		{Period: 2022, Metric: model.MetricRevenue, Value: f(95)},
	})

	byPeriod := map[int]float64{}
	for _, o := range res.Facts {
		byPeriod[o.Period] = o.Value
	}
	assert.Equal(t, 80.0, byPeriod[2020])
	assert.Equal(t, 90.0, byPeriod[2021])
	assert.Equal(t, 95.0, byPeriod[2022])
}

// Matching is case-insensitive on the identifier: a stored observation for
// "ACM" matches incoming rows for the entity "acm".
func TestUpsertObservations_CaseInsensitiveKey(t *testing.T) {
	t.Parallel()

	existing := []model.Observation{
		{Segment: "Widgets", Identifier: "ACM", Period: 2023, Metric: model.MetricRevenue, Value: 100},
	}
	lower := model.Entity{Segment: "Widgets", DisplayName: "Acme", Identifier: "acm"}

	res := UpsertObservations(existing, lower, "FMP-API", []model.FactRow{
		{Period: 2023, Metric: model.MetricRevenue, Value: f(100)},
	})

	assert.Zero(t, res.Added)
	assert.Equal(t, 1, res.Unchanged)
	require.Len(t, res.Facts, 1)
}

func TestValuesEqual_RatioTolerance(t *testing.T) {
	t.Parallel()

	// Last-decimal drift on a ratio metric is not a conflict.
	assert.True(t, valuesEqual(model.MetricGrossMargin, 0.4231567, 0.42315670000001))
	assert.True(t, valuesEqual(model.MetricNetMargin, 0, 0))
	assert.False(t, valuesEqual(model.MetricGrossMargin, 0.42, 0.43))

	// Currency and count metrics compare exactly.
	assert.False(t, valuesEqual(model.MetricRevenue, 100, 100.0000001))
	assert.True(t, valuesEqual(model.MetricRevenue, 100, 100))
	assert.False(t, valuesEqual(model.MetricEmployees, 5000, 5001))
}
