package cli

import (
	"github.com/spf13/cobra"

	"github.com/Stripstone/OfflineEbayMonitor/internal/app"
)

var (
	replayDir     string
	replayPattern string
	replayDryRun  bool
)

var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Rebuild benchmarks from archived snapshots",
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := app.ReplayOptions{
			Dir:     replayDir,
			Pattern: replayPattern,
			DryRun:  replayDryRun,
		}
		return getApp().Replay(cmd.Context(), opts)
	},
}

func init() {
	replayCmd.Flags().StringVar(&replayDir, "dir", "", "Directory of archived snapshots (defaults to scan.archive_dir)")
	replayCmd.Flags().StringVar(&replayPattern, "pattern", "*.json", "Snapshot file glob")
	replayCmd.Flags().BoolVar(&replayDryRun, "dry-run", false, "Print the rebuilt table without writing it")
}
