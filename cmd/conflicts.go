package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sells-group/market-explorer/internal/model"
)

var (
	conflictsSegment string
	conflictsLimit   int
)

var conflictsCmd = &cobra.Command{
	Use:   "conflicts",
	Short: "List pending review-queue entries for a segment",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		conflicts, err := st.ListConflicts(ctx, conflictsSegment, conflictsLimit)
		if err != nil {
			return err
		}
		if len(conflicts) == 0 {
			fmt.Println("review queue is empty")
			return nil
		}
		for _, c := range conflicts {
			fmt.Println(formatConflict(c))
		}
		return nil
	},
}

// formatConflict renders one review-queue entry for the terminal.
func formatConflict(c model.Conflict) string {
	return fmt.Sprintf("%s %s %d: stored %.4f vs incoming %.4f (run %s)",
		c.EntityName, c.Metric, c.Period, c.ExistingValue, c.IncomingValue, c.RunID)
}

func init() {
	conflictsCmd.Flags().StringVar(&conflictsSegment, "segment", "", "segment to list (required)")
	conflictsCmd.Flags().IntVar(&conflictsLimit, "limit", 50, "maximum entries to list")
	_ = conflictsCmd.MarkFlagRequired("segment")
	rootCmd.AddCommand(conflictsCmd)
}
