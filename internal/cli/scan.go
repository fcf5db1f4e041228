package cli

import (
	"github.com/spf13/cobra"

	"github.com/Stripstone/OfflineEbayMonitor/internal/app"
)

var (
	scanAll     bool
	scanSummary bool
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Run one scan cycle over the snapshot directory and print the verdicts",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Scan(cmd.Context(), app.ScanOptions{All: scanAll, Summary: scanSummary})
	},
}

func init() {
	scanCmd.Flags().BoolVar(&scanAll, "all", false, "Also print MISS and INELIGIBLE rows")
	scanCmd.Flags().BoolVar(&scanSummary, "summary", false, "Print the diagnostics summary after the table")
}
