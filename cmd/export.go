package main

import (
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/market-explorer/internal/export"
)

var (
	exportSegment string
	exportOut     string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write a segment workbook (XLSX)",
	Long:  "Exports the roster, fact table, review queue, run history, and market sizes for one segment as an XLSX workbook.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		out := exportOut
		if out == "" {
			out = exportSegment + ".xlsx"
		}
		f, err := os.Create(out)
		if err != nil {
			return eris.Wrap(err, "create workbook file")
		}
		defer f.Close() //nolint:errcheck

		if err := export.Write(ctx, st, exportSegment, f); err != nil {
			return err
		}
		fmt.Printf("wrote %s\n", out)
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportSegment, "segment", "", "segment to export (required)")
	exportCmd.Flags().StringVarP(&exportOut, "out", "o", "", "output path (default <segment>.xlsx)")
	_ = exportCmd.MarkFlagRequired("segment")
	rootCmd.AddCommand(exportCmd)
}
