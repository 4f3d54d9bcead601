// Package export writes a segment workbook for analysts: roster, fact
// table, review queue, run history, and market sizes, one sheet each.
package export

import (
	"context"
	"io"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/market-explorer/internal/model"
	"github.com/sells-group/market-explorer/internal/store"
)

// listLimit caps the review-queue, run-history, and market-size sheets.
const listLimit = 1000

// Workbook assembles one XLSX workbook for a segment from the store.
func Workbook(ctx context.Context, st store.Store, segment string) (*xlsx.File, error) {
	roster, err := st.LoadRoster(ctx, segment)
	if err != nil {
		return nil, eris.Wrap(err, "export: load roster")
	}
	facts, err := st.LoadFacts(ctx, segment)
	if err != nil {
		return nil, eris.Wrap(err, "export: load facts")
	}
	conflicts, err := st.ListConflicts(ctx, segment, listLimit)
	if err != nil {
		return nil, eris.Wrap(err, "export: list conflicts")
	}
	runs, err := st.ListRunSummaries(ctx, listLimit)
	if err != nil {
		return nil, eris.Wrap(err, "export: list run summaries")
	}
	sizes, err := st.ListMarketSizes(ctx, segment, listLimit)
	if err != nil {
		return nil, eris.Wrap(err, "export: list market sizes")
	}

	f := xlsx.NewFile()
	if err := addCandidatesSheet(f, roster); err != nil {
		return nil, err
	}
	if err := addMetricsSheet(f, facts); err != nil {
		return nil, err
	}
	if err := addReviewSheet(f, conflicts); err != nil {
		return nil, err
	}
	if err := addRunLogSheet(f, runs); err != nil {
		return nil, err
	}
	if err := addMarketSizeSheet(f, sizes); err != nil {
		return nil, err
	}
	return f, nil
}

// Write assembles the workbook and writes it to w.
func Write(ctx context.Context, st store.Store, segment string, w io.Writer) error {
	f, err := Workbook(ctx, st, segment)
	if err != nil {
		return err
	}
	return eris.Wrap(f.Write(w), "export: write workbook")
}

func addCandidatesSheet(f *xlsx.File, roster []model.Entity) error {
	sheet, err := f.AddSheet("Candidates")
	if err != nil {
		return eris.Wrap(err, "export: add candidates sheet")
	}
	header(sheet, "Segment", "Company", "Ticker", "Origin", "Added")
	for _, e := range roster {
		row := sheet.AddRow()
		row.AddCell().SetString(e.Segment)
		row.AddCell().SetString(e.DisplayName)
		row.AddCell().SetString(e.Identifier)
		row.AddCell().SetString(e.Origin)
		row.AddCell().SetString(stamp(e.CreatedAt))
	}
	return nil
}

func addMetricsSheet(f *xlsx.File, facts []model.Observation) error {
	sheet, err := f.AddSheet("Metrics")
	if err != nil {
		return eris.Wrap(err, "export: add metrics sheet")
	}
	header(sheet, "Ticker", "Metric", "Year", "Value", "Provenance", "Estimate")
	for _, o := range facts {
		row := sheet.AddRow()
		row.AddCell().SetString(o.Identifier)
		row.AddCell().SetString(string(o.Metric))
		row.AddCell().SetInt(o.Period)
		row.AddCell().SetFloat(o.Value)
		row.AddCell().SetString(o.Provenance)
		row.AddCell().SetBool(o.IsEstimate)
	}
	return nil
}

func addReviewSheet(f *xlsx.File, conflicts []model.Conflict) error {
	sheet, err := f.AddSheet("Pending_Review")
	if err != nil {
		return eris.Wrap(err, "export: add review sheet")
	}
	header(sheet, "Run", "Company", "Metric", "Year", "Existing", "Incoming", "Detected")
	for _, c := range conflicts {
		row := sheet.AddRow()
		row.AddCell().SetString(c.RunID)
		row.AddCell().SetString(c.EntityName)
		row.AddCell().SetString(string(c.Metric))
		row.AddCell().SetInt(c.Period)
		row.AddCell().SetFloat(c.ExistingValue)
		row.AddCell().SetFloat(c.IncomingValue)
		row.AddCell().SetString(stamp(c.DetectedAt))
	}
	return nil
}

func addRunLogSheet(f *xlsx.File, runs []model.RunSummary) error {
	sheet, err := f.AddSheet("RunLog")
	if err != nil {
		return eris.Wrap(err, "export: add run log sheet")
	}
	header(sheet, "Run", "Segment", "Status", "Entities", "Added", "Conflicts", "Missing", "Duration ms", "Started")
	for _, r := range runs {
		row := sheet.AddRow()
		row.AddCell().SetString(r.ID)
		row.AddCell().SetString(r.Segment)
		row.AddCell().SetString(string(r.Status))
		row.AddCell().SetInt(r.EntityCount)
		row.AddCell().SetInt(r.Added)
		row.AddCell().SetInt(r.Conflicts)
		row.AddCell().SetString(strings.Join(r.Missing, ", "))
		row.AddCell().SetInt64(r.Duration)
		row.AddCell().SetString(stamp(r.StartedAt))
	}
	return nil
}

func addMarketSizeSheet(f *xlsx.File, sizes []model.MarketSize) error {
	sheet, err := f.AddSheet("MarketSize")
	if err != nil {
		return eris.Wrap(err, "export: add market size sheet")
	}
	header(sheet, "Segment", "USD Billions", "Year", "Citation", "Recorded")
	for _, s := range sizes {
		row := sheet.AddRow()
		row.AddCell().SetString(s.Segment)
		row.AddCell().SetFloat(s.FigureBillions)
		row.AddCell().SetInt(s.Year)
		row.AddCell().SetString(s.Citation)
		row.AddCell().SetString(stamp(s.RecordedAt))
	}
	return nil
}

func header(sheet *xlsx.Sheet, labels ...string) {
	row := sheet.AddRow()
	for _, l := range labels {
		row.AddCell().SetString(l)
	}
}

func stamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
