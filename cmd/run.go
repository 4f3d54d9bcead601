package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/market-explorer/internal/insight"
	"github.com/sells-group/market-explorer/internal/marketsize"
	"github.com/sells-group/market-explorer/internal/model"
	"github.com/sells-group/market-explorer/internal/pipeline"
	"github.com/sells-group/market-explorer/internal/store"
	"github.com/sells-group/market-explorer/pkg/ai"
	"github.com/sells-group/market-explorer/pkg/cse"
	"github.com/sells-group/market-explorer/pkg/fmp"
	"github.com/sells-group/market-explorer/pkg/notionq"
	"github.com/sells-group/market-explorer/pkg/serp"
)

var (
	runSegment    string
	runInsights   bool
	runMarketSize bool
	runDryRun     bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Reconcile one segment",
	Long:  "Screens candidates, merges them into the segment roster, upserts financial observations, and routes value clashes to the review queue.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		p, err := buildPipeline(st)
		if err != nil {
			return err
		}

		summary, err := p.Run(ctx, runSegment)
		if err != nil {
			return err
		}
		fmt.Println(formatRunSummary(summary))

		if runMarketSize && !runDryRun {
			if err := recordMarketSize(ctx, st); err != nil {
				zap.L().Warn("market size scrape failed", zap.Error(err))
			}
		}
		if runInsights && !runDryRun {
			if err := recordInsights(ctx, st); err != nil {
				zap.L().Warn("insight generation failed", zap.Error(err))
			}
		}

		if summary.Status == model.RunStatusError {
			return eris.Errorf("run %s finished with status %s", summary.ID, summary.Status)
		}
		return nil
	},
}

func buildPipeline(st store.Store) (*pipeline.Pipeline, error) {
	if cfg.FMP.Key == "" {
		return nil, eris.New("FMP API key is required (MARKET_FMP_KEY)")
	}

	aliases, err := loadAliases()
	if err != nil {
		return nil, err
	}

	fmpClient := fmp.NewClient(cfg.FMP.Key, fmp.WithBaseURL(cfg.FMP.BaseURL))
	sources := []pipeline.CandidateSource{
		&pipeline.FMPCandidateSource{Client: fmpClient, Limit: cfg.FMP.ScreenLimit},
	}
	if cfg.Serp.Key != "" {
		sources = append(sources, &pipeline.SerpCandidateSource{
			Client: serp.NewClient(cfg.Serp.Key, serp.WithBaseURL(cfg.Serp.BaseURL)),
			Limit:  cfg.Serp.ScreenLimit,
		})
	}

	var sinks []pipeline.ConflictSink
	if cfg.Notion.Token != "" && cfg.Notion.ReviewDB != "" {
		queue := notionq.NewQueue(notionq.NewClient(cfg.Notion.Token), cfg.Notion.ReviewDB)
		sinks = append(sinks, &pipeline.NotionConflictSink{Queue: queue})
	}

	facts := &pipeline.FMPFactSource{
		Client:  fmpClient,
		Years:   cfg.FMP.Years,
		Aliases: aliases,
		Tag:     cfg.Recon.Provenance,
	}
	return pipeline.New(st, sources, facts, sinks, pipeline.Options{DryRun: runDryRun}), nil
}

func loadAliases() (model.AliasTable, error) {
	if cfg.Recon.MetricAliasFile == "" {
		return nil, nil
	}
	f, err := os.Open(cfg.Recon.MetricAliasFile)
	if err != nil {
		return nil, eris.Wrap(err, "open metric alias file")
	}
	defer f.Close() //nolint:errcheck
	return model.LoadAliases(f)
}

func recordMarketSize(ctx context.Context, st store.Store) error {
	if cfg.CSE.Key == "" || cfg.CSE.ID == "" {
		return eris.New("custom search key and engine ID are required (MARKET_CSE_KEY, MARKET_CSE_ID)")
	}

	scraper := marketsize.NewScraper(cse.NewClient(cfg.CSE.Key, cfg.CSE.ID, cse.WithBaseURL(cfg.CSE.BaseURL)))
	ms, err := scraper.Scrape(ctx, runSegment)
	if err != nil {
		return err
	}
	if ms == nil {
		fmt.Println("no market-size figure found")
		return nil
	}
	if err := st.AppendMarketSize(ctx, ms); err != nil {
		return err
	}
	fmt.Printf("market size: $%.2fB (%d) %s\n", ms.FigureBillions, ms.Year, ms.Citation)
	return nil
}

func recordInsights(ctx context.Context, st store.Store) error {
	if cfg.Anthropic.Key == "" {
		return eris.New("anthropic API key is required (MARKET_ANTHROPIC_KEY)")
	}

	roster, err := st.LoadRoster(ctx, runSegment)
	if err != nil {
		return err
	}
	facts, err := st.LoadFacts(ctx, runSegment)
	if err != nil {
		return err
	}

	gen := insight.NewGenerator(ai.NewClient(cfg.Anthropic.Key), cfg.Anthropic.Model, cfg.Anthropic.MaxTokens)

	in, err := gen.Segment(ctx, runSegment, roster, facts)
	if err != nil {
		return err
	}
	if err := st.AppendInsight(ctx, in); err != nil {
		return err
	}
	fmt.Printf("segment insight:\n%s\n", in.Bullets)

	byEntity := make(map[string][]model.Observation)
	for _, o := range facts {
		byEntity[o.Identifier] = append(byEntity[o.Identifier], o)
	}
	for _, e := range roster {
		rows := byEntity[e.Identifier]
		if len(rows) == 0 {
			continue
		}
		ci, err := gen.Company(ctx, e, rows)
		if err != nil {
			zap.L().Warn("company insight failed",
				zap.String("identifier", e.Identifier), zap.Error(err))
			continue
		}
		if err := st.AppendInsight(ctx, ci); err != nil {
			return err
		}
	}
	return nil
}

// formatRunSummary renders one run for the terminal.
func formatRunSummary(s *model.RunSummary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "run %s [%s] segment=%q entities=%d added=%d conflicts=%d duration=%dms",
		s.ID, s.Status, s.Segment, s.EntityCount, s.Added, s.Conflicts, s.Duration)
	if len(s.Missing) > 0 {
		fmt.Fprintf(&b, " missing=%s", strings.Join(s.Missing, ","))
	}
	return b.String()
}

func init() {
	runCmd.Flags().StringVar(&runSegment, "segment", "", "segment to reconcile (required)")
	runCmd.Flags().BoolVar(&runInsights, "insights", false, "generate analyst insights after the run")
	runCmd.Flags().BoolVar(&runMarketSize, "market-size", false, "scrape a market-size estimate for the segment")
	runCmd.Flags().BoolVar(&runDryRun, "dry-run", false, "reconcile in memory without persisting")
	_ = runCmd.MarkFlagRequired("segment")
	rootCmd.AddCommand(runCmd)
}
