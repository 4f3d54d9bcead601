package model

import (
	"io"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Metric names one tracked financial measure. The vocabulary is fixed;
// incoming rows with unknown metric names fail validation and are dropped.
type Metric string

const (
	MetricRevenue          Metric = "Revenue"
	MetricOperatingExpense Metric = "Operating Expense"
	MetricEBITDA           Metric = "EBITDA"
	MetricGrossMargin      Metric = "Gross Margin"
	MetricNetMargin        Metric = "Net Margin"
	MetricRDExpense        Metric = "R&D Expense"
	MetricCapEx            Metric = "CapEx"
	MetricFreeCashFlow     Metric = "Free Cash Flow"
	MetricEmployees        Metric = "Employees"
	MetricCash             Metric = "Cash & Equivalents"
	MetricTotalDebt        Metric = "Total Debt"
	MetricDividendPerShare Metric = "Dividend per Share"
)

// Metrics lists the full vocabulary in presentation order.
var Metrics = []Metric{
	MetricRevenue,
	MetricOperatingExpense,
	MetricEBITDA,
	MetricGrossMargin,
	MetricNetMargin,
	MetricRDExpense,
	MetricCapEx,
	MetricFreeCashFlow,
	MetricEmployees,
	MetricCash,
	MetricTotalDebt,
	MetricDividendPerShare,
}

var metricSet = func() map[Metric]bool {
	m := make(map[Metric]bool, len(Metrics))
	for _, metric := range Metrics {
		m[metric] = true
	}
	return m
}()

// ratioMetrics are upstream-recomputed ratios. Providers round these in the
// last decimal, so conflict detection compares them within a relative
// tolerance instead of exactly.
var ratioMetrics = map[Metric]bool{
	MetricGrossMargin:      true,
	MetricNetMargin:        true,
	MetricDividendPerShare: true,
}

// Known reports whether m is part of the fixed vocabulary.
func (m Metric) Known() bool {
	return metricSet[m]
}

// Ratio reports whether m is compared with a relative tolerance during
// conflict detection.
func (m Metric) Ratio() bool {
	return ratioMetrics[m]
}

// AliasTable maps provider-specific metric spellings onto the canonical
// vocabulary. Lookup falls through to the canonical name itself.
type AliasTable map[string]Metric

// Resolve maps a raw metric name to its canonical Metric. The boolean is
// false when neither an alias nor a canonical name matches.
func (t AliasTable) Resolve(raw string) (Metric, bool) {
	if t != nil {
		if m, ok := t[raw]; ok {
			return m, m.Known()
		}
	}
	m := Metric(raw)
	return m, m.Known()
}

// LoadAliases reads a yaml mapping of raw metric names to canonical names,
// e.g. "operatingExpenses: Operating Expense". Entries that point at a name
// outside the vocabulary are rejected.
func LoadAliases(r io.Reader) (AliasTable, error) {
	raw := map[string]string{}
	dec := yaml.NewDecoder(r)
	if err := dec.Decode(&raw); err != nil {
		if err == io.EOF {
			return AliasTable{}, nil
		}
		return nil, eris.Wrap(err, "model: decode metric aliases")
	}

	table := make(AliasTable, len(raw))
	for alias, canonical := range raw {
		m := Metric(canonical)
		if !m.Known() {
			return nil, eris.Errorf("model: alias %q targets unknown metric %q", alias, canonical)
		}
		table[alias] = m
	}
	return table, nil
}
