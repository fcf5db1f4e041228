package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Stripstone/OfflineEbayMonitor/internal/app"
)

var (
	showLimit int
	showWhat  string
)

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Display benchmarks, recent scan runs or recent alerts",
	RunE: func(cmd *cobra.Command, args []string) error {
		if showLimit < 0 {
			return fmt.Errorf("--limit cannot be negative")
		}

		opts := app.ShowOptions{
			What:  showWhat,
			Limit: showLimit,
		}

		return getApp().Show(cmd.Context(), opts)
	},
}

func init() {
	showCmd.Flags().StringVar(&showWhat, "what", "benchmarks", "What to display: benchmarks, runs or alerts")
	showCmd.Flags().IntVar(&showLimit, "limit", 20, "Number of rows to display (0 for all benchmarks)")
}
