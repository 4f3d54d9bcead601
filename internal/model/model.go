// Package model defines the record types shared across the reconciliation
// engine and its collaborators.
package model

import (
	"time"
)

// RunStatus is the final disposition of a reconciliation run.
type RunStatus string

const (
	RunStatusOK           RunStatus = "ok"
	RunStatusPartial      RunStatus = "partial"
	RunStatusError        RunStatus = "error"
	RunStatusNoCandidates RunStatus = "no-candidates"
)

// Candidate is a freshly discovered company record from a candidate source,
// before it has been reconciled against the roster.
type Candidate struct {
	DisplayName string `json:"display_name"`
	Identifier  string `json:"identifier"`
	Origin      string `json:"origin"`
}

// Entity is a tracked company within a segment roster. Within a segment the
// case-normalized identifier is unique.
type Entity struct {
	Segment     string    `json:"segment"`
	DisplayName string    `json:"display_name"`
	Identifier  string    `json:"identifier"`
	Origin      string    `json:"origin"`
	CreatedAt   time.Time `json:"created_at,omitempty"`
}

// FactRow is one incoming (period, metric, value) triple from a fact source.
// A nil Value means the source had no data for the metric; the reconciler
// skips such rows rather than treating them as zeros or contradictions.
type FactRow struct {
	Period int      `json:"period"`
	Metric Metric   `json:"metric"`
	Value  *float64 `json:"value"`
}

// Observation is a persisted fact value. Within a segment the tuple
// (identifier, period, metric) is unique; once stored, a value is never
// overwritten by reconciliation.
type Observation struct {
	Segment    string    `json:"segment"`
	Identifier string    `json:"identifier"`
	Period     int       `json:"period"`
	Metric     Metric    `json:"metric"`
	Value      float64   `json:"value"`
	Provenance string    `json:"provenance"`
	IsEstimate bool      `json:"is_estimate"`
	CreatedAt  time.Time `json:"created_at,omitempty"`
}

// Conflict records a disagreement between a stored observation and an
// incoming value for the same key. Conflicts are append-only and resolved
// by a human, never by the engine.
type Conflict struct {
	RunID         string    `json:"run_id,omitempty"`
	Segment       string    `json:"segment"`
	EntityName    string    `json:"entity_name"`
	Period        int       `json:"period"`
	Metric        Metric    `json:"metric"`
	ExistingValue float64   `json:"existing_value"`
	IncomingValue float64   `json:"incoming_value"`
	DetectedAt    time.Time `json:"detected_at,omitempty"`
}

// RunSummary is the record appended to the run-history log at the end of
// every reconciliation run.
type RunSummary struct {
	ID          string    `json:"id"`
	Segment     string    `json:"segment"`
	EntityCount int       `json:"entity_count"`
	Added       int       `json:"added"`
	Conflicts   int       `json:"conflicts"`
	Missing     []string  `json:"missing,omitempty"`
	Status      RunStatus `json:"status"`
	Duration    int64     `json:"duration_ms"`
	StartedAt   time.Time `json:"started_at"`
	FinishedAt  time.Time `json:"finished_at"`
}

// MarketSize is one scraped market-size estimate for a segment, in USD
// billions.
type MarketSize struct {
	Segment        string    `json:"segment"`
	FigureBillions float64   `json:"figure_billions"`
	Year           int       `json:"year"`
	Citation       string    `json:"citation"`
	RecordedAt     time.Time `json:"recorded_at,omitempty"`
}

// InsightLevel distinguishes per-company from segment-wide narratives.
type InsightLevel string

const (
	InsightLevelCompany InsightLevel = "company"
	InsightLevelSegment InsightLevel = "segment"
)

// Insight is a generated narrative over reconciled facts.
type Insight struct {
	Segment   string       `json:"segment"`
	Level     InsightLevel `json:"level"`
	Target    string       `json:"target"`
	Bullets   string       `json:"bullets"`
	CreatedAt time.Time    `json:"created_at,omitempty"`
}
