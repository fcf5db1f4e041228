package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Stripstone/OfflineEbayMonitor/internal/app"
	"github.com/Stripstone/OfflineEbayMonitor/internal/config"
	"github.com/Stripstone/OfflineEbayMonitor/internal/logging"
	"github.com/Stripstone/OfflineEbayMonitor/internal/version"
)

var (
	cfgFile     string
	logLevel    string
	snapshotDir string
	appHandle   *app.App
)

var rootCmd = &cobra.Command{
	Use:          "silvermonitor",
	Short:        "Classify saved silver auction listings against melt value and EMA benchmarks",
	Version:      version.Version,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if appHandle != nil {
			return nil
		}

		cfg, err := config.Load(cfgFile)
		if err != nil {
			return err
		}

		if logLevel != "" {
			cfg.Logging.Level = logLevel
		}
		if snapshotDir != "" {
			cfg.Scan.SnapshotDir = snapshotDir
		}

		logger := logging.NewLogger(cfg.Logging)
		appHandle = app.NewApp(cfg, logger)
		return nil
	},
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override log level defined in config")
	rootCmd.PersistentFlags().StringVar(&snapshotDir, "snapshot-dir", "", "Override scan.snapshot_dir")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(replayCmd)
	rootCmd.AddCommand(evaluateCmd)
	rootCmd.AddCommand(versionCmd)
}

func getApp() *app.App {
	if appHandle == nil {
		panic("application not initialized; PersistentPreRunE not executed")
	}
	return appHandle
}
