package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var runsLimit int

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List recent reconciliation runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		summaries, err := st.ListRunSummaries(ctx, runsLimit)
		if err != nil {
			return err
		}
		if len(summaries) == 0 {
			fmt.Println("no runs recorded")
			return nil
		}
		for i := range summaries {
			fmt.Println(formatRunSummary(&summaries[i]))
		}
		return nil
	},
}

func init() {
	runsCmd.Flags().IntVar(&runsLimit, "limit", 20, "maximum runs to list")
	rootCmd.AddCommand(runsCmd)
}
